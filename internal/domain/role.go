package domain

import "strings"

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBuyer:
		return RoleBuyer, true
	case RoleSeller:
		return RoleSeller, true
	}
	return "", false
}

func (r Role) Valid() bool { return r == RoleBuyer || r == RoleSeller }

func (r Role) IsBuyer() bool  { return r == RoleBuyer }
func (r Role) IsSeller() bool { return r == RoleSeller }

// OwnsProduct reports whether an account with this role and id may mutate a
// product owned by sellerID.
func (r Role) OwnsProduct(accountID, sellerID uint) bool {
	return r.IsSeller() && accountID == sellerID
}
