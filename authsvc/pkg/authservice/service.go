package authservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/usersvc"
	"github.com/ichigozero/todokit/usersvc/pkg/userservice"
)

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Service interface {
	Register(ctx context.Context, username, email, password string, fullName *string) (usersvc.Profile, error)
	Login(ctx context.Context, username, password string) (Token, error)
	Identify(ctx context.Context, token string) (usersvc.Profile, error)
}

func New(users userservice.Service, t Tokenizer, ttl time.Duration, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(users, t, ttl)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	users     userservice.Service
	tokenizer Tokenizer
	gate      *Gate
	ttl       time.Duration
}

// NewBasicService falls back to authsvc.AccessTokenExpiry for a
// non-positive ttl.
func NewBasicService(users userservice.Service, t Tokenizer, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = authsvc.AccessTokenExpiry
	}
	return &basicService{
		users:     users,
		tokenizer: t,
		gate:      NewGate(t, users),
		ttl:       ttl,
	}
}

func (s *basicService) Register(ctx context.Context, username, email, password string, fullName *string) (usersvc.Profile, error) {
	return s.users.Register(ctx, username, email, password, fullName)
}

func (s *basicService) Login(ctx context.Context, username, password string) (Token, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return Token{}, err
	}

	access, err := s.tokenizer.Generate(u.Username, s.ttl)
	if err != nil {
		return Token{}, err
	}

	return Token{AccessToken: access, TokenType: authsvc.TokenType}, nil
}

func (s *basicService) Identify(ctx context.Context, token string) (usersvc.Profile, error) {
	return s.gate.Identify(ctx, token)
}
