package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors
var (
	ErrEmptyUserID   = errors.New("user ID cannot be empty")
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrEmptyEmail    = errors.New("email cannot be empty")
)

// User is the read model of a microblog account. Registration, passwords and
// profiles are owned by the web layer; the task pipeline only needs identity
// and a delivery address.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewUser creates a new User with a fresh ID.
// Returns an error if validation fails.
func NewUser(username, email string) (*User, error) {
	user := &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(u.Username) == "" {
		return ErrEmptyUsername
	}
	if u.Email == "" {
		return ErrEmptyEmail
	}
	if !validateEmailFormat(u.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// validateEmailFormat performs basic validation of email format: an '@' that is
// neither first nor last, followed by a domain containing an inner dot.
func validateEmailFormat(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}

	domainPart := email[at+1:]
	dot := strings.IndexByte(domainPart, '.')
	return dot > 0 && dot < len(domainPart)-1
}
