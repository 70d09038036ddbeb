package handlers

import (
	"time"

	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/util"
)

type registerRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	Role            string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access     string `json:"access"`
	Refresh    string `json:"refresh,omitempty"`
	AccessExp  int64  `json:"access_exp"`
	RefreshExp int64  `json:"refresh_exp,omitempty"`
}

type userResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Deposit   int    `json:"deposit"`
	SessionID string `json:"session_id,omitempty"`
}

func newUserResponse(u *models.User, sessionID string) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Role:      string(u.Role),
		Deposit:   u.Deposit,
		SessionID: sessionID,
	}
}

type sessionResponse struct {
	SessionID    string    `json:"session_id"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	Current      bool      `json:"current"`
}

type depositRequest struct {
	Amount int `json:"amount"`
}

type depositResponse struct {
	Deposit int `json:"deposit"`
}

type resetResponse struct {
	PreviousDeposit int `json:"previous_deposit"`
	Deposit         int `json:"deposit"`
}

type buyRequest struct {
	Product  uint `json:"product"`
	Quantity int  `json:"quantity"`
}

// productRequest uses pointers so PATCH can tell "absent" from zero.
type productRequest struct {
	Name            *string `json:"name"`
	Cost            *int    `json:"cost"`
	AmountAvailable *int    `json:"amount_available"`
}

type productList struct {
	Data []models.Product `json:"data"`
	Meta util.Meta        `json:"meta"`
}
