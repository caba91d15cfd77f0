package models

// Role of a user account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the canonical account record stored under users/{id}. The
// username index (users_by_username/{username}) maps back to ID and is
// created in the same atomic batch as this record.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash []byte `json:"password_hash"`
	Salt         []byte `json:"salt"`
	Role         Role   `json:"role"`
	CreatedAt    int64  `json:"created_at"` // unix ms
	Email        string `json:"email,omitempty"`
}

// PublicUser is the externally visible view of a user. Hash and salt
// never leave the service layer.
type PublicUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	CreatedAt int64  `json:"created_at"`
	Email     string `json:"email,omitempty"`
}

// Public strips credential material from the record.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Role: u.Role, CreatedAt: u.CreatedAt, Email: u.Email}
}
