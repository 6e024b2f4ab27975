package userservice

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/todokit/usersvc"
	"github.com/ichigozero/todokit/usersvc/pkg/passwd"
)

// Service is the user directory. Lookups by username and email return the
// full record for authentication; lookups by ID return the public profile.
type Service interface {
	Register(ctx context.Context, username, email, password string, fullName *string) (usersvc.Profile, error)
	Authenticate(ctx context.Context, username, password string) (usersvc.User, error)
	UserByUsername(ctx context.Context, username string) (usersvc.User, error)
	UserByEmail(ctx context.Context, email string) (usersvc.User, error)
	UserByID(ctx context.Context, id uint64) (usersvc.Profile, error)
	SetActive(ctx context.Context, id uint64, active bool) error
}

func New(r usersvc.UserRepository, h passwd.Hasher, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(r, h)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	users  usersvc.UserRepository
	hasher passwd.Hasher
	now    func() time.Time

	// dummyHash is verified against when the username is unknown so that
	// both rejection paths cost one hash comparison.
	dummyHash string
}

func NewBasicService(r usersvc.UserRepository, h passwd.Hasher) Service {
	dummy, _ := h.Hash("")
	return basicService{users: r, hasher: h, now: time.Now, dummyHash: dummy}
}

func (s basicService) Register(_ context.Context, username, email, password string, fullName *string) (usersvc.Profile, error) {
	if username == "" || email == "" {
		return usersvc.Profile{}, usersvc.ErrInvalidArgument
	}

	// Fail fast before paying for the hash. The repository re-checks
	// atomically on insert.
	if _, err := s.users.FindByUsername(username); err == nil {
		return usersvc.Profile{}, usersvc.ErrDuplicateUsername
	} else if !errors.Is(err, usersvc.ErrUserNotFound) {
		return usersvc.Profile{}, err
	}
	if _, err := s.users.FindByEmail(email); err == nil {
		return usersvc.Profile{}, usersvc.ErrDuplicateEmail
	} else if !errors.Is(err, usersvc.ErrUserNotFound) {
		return usersvc.Profile{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return usersvc.Profile{}, err
	}

	u, err := s.users.Create(usersvc.User{
		Username:       username,
		Email:          email,
		FullName:       fullName,
		IsActive:       true,
		CreatedAt:      s.now(),
		HashedPassword: hash,
	})
	if err != nil {
		return usersvc.Profile{}, err
	}

	return u.Profile(), nil
}

func (s basicService) Authenticate(_ context.Context, username, password string) (usersvc.User, error) {
	u, err := s.users.FindByUsername(username)
	if errors.Is(err, usersvc.ErrUserNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		return usersvc.User{}, usersvc.ErrInvalidCredentials
	}
	if err != nil {
		return usersvc.User{}, err
	}

	if !s.hasher.Verify(password, u.HashedPassword) {
		return usersvc.User{}, usersvc.ErrInvalidCredentials
	}
	if !u.IsActive {
		return usersvc.User{}, usersvc.ErrInvalidCredentials
	}

	return u, nil
}

func (s basicService) UserByUsername(_ context.Context, username string) (usersvc.User, error) {
	return s.users.FindByUsername(username)
}

func (s basicService) UserByEmail(_ context.Context, email string) (usersvc.User, error) {
	return s.users.FindByEmail(email)
}

func (s basicService) UserByID(_ context.Context, id uint64) (usersvc.Profile, error) {
	u, err := s.users.FindByID(id)
	if err != nil {
		return usersvc.Profile{}, err
	}
	return u.Profile(), nil
}

func (s basicService) SetActive(_ context.Context, id uint64, active bool) error {
	return s.users.SetActive(id, active)
}
