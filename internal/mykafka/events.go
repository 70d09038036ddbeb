package mykafka

import "time"

const (
	TopicUsers     = "user_events"
	TopicAccounts  = "account_events"
	TopicProducts  = "product_events"
	TopicPurchases = "purchase_events"
)

type UserEvent struct {
	Type      string    `json:"type"`
	UserID    uint      `json:"userID"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	SessionID string    `json:"sessionID,omitempty"`
	At        time.Time `json:"at"`
}

type DepositEvent struct {
	Type    string    `json:"type"`
	UserID  uint      `json:"userID"`
	Amount  int       `json:"amount"`
	Deposit int       `json:"deposit"`
	At      time.Time `json:"at"`
}

type ProductEvent struct {
	Type            string    `json:"type"`
	ProductID       uint      `json:"productID"`
	SellerID        uint      `json:"sellerID"`
	Name            string    `json:"name,omitempty"`
	Cost            int       `json:"cost,omitempty"`
	AmountAvailable int       `json:"amountAvailable"`
	At              time.Time `json:"at"`
}

type PurchaseEvent struct {
	Type       string    `json:"type"`
	BuyerID    uint      `json:"buyerID"`
	ProductID  uint      `json:"productID"`
	Quantity   int       `json:"quantity"`
	TotalSpent int       `json:"totalSpent"`
	Change     []int     `json:"change"`
	At         time.Time `json:"at"`
}
