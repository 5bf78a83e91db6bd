package identity

import "time"

const (
	// RoleUser is the default role of a wallet owner.
	RoleUser = "user"
	// RoleAdmin may resolve funding requests and read the audit log.
	RoleAdmin = "admin"
)

// User represents a registered wallet owner.
type User struct {
	ID           string
	Phone        string
	Tier         string
	Role         string
	PINHash      []byte
	DeviceID     string
	TokenVersion int
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Principal is the verified identity attached to a privileged call.
type Principal struct {
	UserID string
	Phone  string
	Role   string
}

// IsAdmin reports whether the principal may act as a resolver.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Principal returns the caller identity for u.
func (u User) Principal() Principal {
	return Principal{UserID: u.ID, Phone: u.Phone, Role: u.Role}
}

// Credentials request structure.
type Credentials struct {
	Phone    string
	PIN      string
	DeviceID string
}
