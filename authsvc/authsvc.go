package authsvc

import (
	"errors"
	"os"
	"time"
)

// AccessSecret is the default HMAC key for bearer tokens. It is read once
// at startup and fixed for the process lifetime.
var AccessSecret = getEnv("ACCESS_SECRET", "access-secret")

// AccessTokenExpiry is the lifetime of a bearer token unless configured
// otherwise.
const AccessTokenExpiry = 30 * time.Minute

// TokenType is returned alongside every access token.
const TokenType = "bearer"

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

type contextKey string

// UserContextKey holds the usersvc.Profile resolved from the bearer token.
const UserContextKey contextKey = "User"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("could not validate credentials")
	ErrInactiveAccount = errors.New("inactive user")
)
