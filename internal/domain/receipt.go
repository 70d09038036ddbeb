package domain

// Receipt is returned once per successful purchase and never stored.
type Receipt struct {
	TotalSpent  int    `json:"total_spent"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Change      []int  `json:"change"`
}
