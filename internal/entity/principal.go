package entity

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller of a session or request.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Owns reports whether p may act as the owner of an entity belonging to
// userID.
func (p Principal) Owns(userID string) bool {
	return p.UserID != "" && p.UserID == userID
}
