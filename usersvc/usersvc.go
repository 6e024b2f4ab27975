package usersvc

import (
	"errors"
	"time"
)

// User is the full identity record. HashedPassword never leaves the
// directory boundary; use Profile for anything user-facing.
type User struct {
	ID             uint64
	Username       string
	Email          string
	FullName       *string
	IsActive       bool
	CreatedAt      time.Time
	HashedPassword string
}

// Profile is the public view of a User.
type Profile struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// UserRepository stores user records. Create must check username then email
// uniqueness and insert atomically, assigning the next sequential ID.
type UserRepository interface {
	Create(u User) (User, error)
	FindByID(id uint64) (User, error)
	FindByUsername(username string) (User, error)
	FindByEmail(email string) (User, error)
	SetActive(id uint64, active bool) error
}

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUsername  = errors.New("username already registered")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
)
