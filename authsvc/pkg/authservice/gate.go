package authservice

import (
	"context"
	"errors"

	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/usersvc"
)

// UserFinder is the part of the user directory the gate depends on.
type UserFinder interface {
	UserByUsername(ctx context.Context, username string) (usersvc.User, error)
}

// Gate turns a bearer token into the identity of an existing user.
type Gate struct {
	tokens Tokenizer
	users  UserFinder
}

func NewGate(t Tokenizer, u UserFinder) *Gate {
	return &Gate{tokens: t, users: u}
}

// Resolve fails with authsvc.ErrUnauthorized when the token is empty or
// invalid, or when its subject no longer names a user.
func (g *Gate) Resolve(ctx context.Context, token string) (usersvc.Profile, error) {
	if token == "" {
		return usersvc.Profile{}, authsvc.ErrUnauthorized
	}

	username, ok := g.tokens.Subject(token)
	if !ok {
		return usersvc.Profile{}, authsvc.ErrUnauthorized
	}

	u, err := g.users.UserByUsername(ctx, username)
	if errors.Is(err, usersvc.ErrUserNotFound) {
		return usersvc.Profile{}, authsvc.ErrUnauthorized
	}
	if err != nil {
		return usersvc.Profile{}, err
	}

	return u.Profile(), nil
}

// Identify resolves the token and requires the account to be active.
func (g *Gate) Identify(ctx context.Context, token string) (usersvc.Profile, error) {
	p, err := g.Resolve(ctx, token)
	if err != nil {
		return usersvc.Profile{}, err
	}
	if err := RequireActive(p); err != nil {
		return usersvc.Profile{}, err
	}
	return p, nil
}

func RequireActive(p usersvc.Profile) error {
	if !p.IsActive {
		return authsvc.ErrInactiveAccount
	}
	return nil
}
