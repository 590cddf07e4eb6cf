package models

// UserRole - represents user role
type UserRole string

// user roles
const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

// User - represents user without password
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// Principal - authenticated caller, built from a verified token
type Principal struct {
	UserID string   `json:"id"`
	Email  string   `json:"email"`
	Role   UserRole `json:"role"`
}

// IsAdmin - checks whether principal may use admin API
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// LoginRequest - represents credentials that user inputs on login page.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegistrationRequest - represents admin registration request. AdminKey must match the configured registration key
type RegistrationRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	AdminKey string `json:"adminKey"`
}

// LoginResponse - successful login
type LoginResponse struct {
	Success bool  `json:"success"`
	User    *User `json:"user"`
}

// SessionResponse - current session. User is null when nobody is logged in
type SessionResponse struct {
	User *Principal `json:"user"`
}
