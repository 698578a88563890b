package auth

import (
	"errors"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Identity represents an authenticated employee's claims.
type Identity struct {
	EmployeeID  string `json:"employee_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	TokenType   string `json:"token_type"` // "access" or "refresh"
}
