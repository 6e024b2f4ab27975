package authendpoint

import (
	"context"
	"net/http"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/authsvc/pkg/authservice"
	"github.com/ichigozero/todokit/usersvc"
)

type Set struct {
	RegisterEndpoint endpoint.Endpoint
	LoginEndpoint    endpoint.Endpoint
	MeEndpoint       endpoint.Endpoint
}

// New wires the auth endpoints. A non-nil loginLimit rejects login attempts
// beyond its rate with ratelimit.ErrLimited.
func New(svc authservice.Service, logger log.Logger, loginLimit ratelimit.Allower) Set {
	var registerEndpoint endpoint.Endpoint
	{
		registerEndpoint = MakeRegisterEndpoint(svc)
		registerEndpoint = LoggingMiddleware(log.With(logger, "method", "Register"))(registerEndpoint)
	}

	var loginEndpoint endpoint.Endpoint
	{
		loginEndpoint = MakeLoginEndpoint(svc)
		if loginLimit != nil {
			loginEndpoint = ratelimit.NewErroringLimiter(loginLimit)(loginEndpoint)
		}
		loginEndpoint = LoggingMiddleware(log.With(logger, "method", "Login"))(loginEndpoint)
	}

	var meEndpoint endpoint.Endpoint
	{
		meEndpoint = MakeMeEndpoint()
		meEndpoint = Authenticator(svc)(meEndpoint)
		meEndpoint = LoggingMiddleware(log.With(logger, "method", "Me"))(meEndpoint)
	}

	return Set{
		RegisterEndpoint: registerEndpoint,
		LoginEndpoint:    loginEndpoint,
		MeEndpoint:       meEndpoint,
	}
}

func (s Set) Register(ctx context.Context, username, email, password string, fullName *string) (usersvc.Profile, error) {
	response, err := s.RegisterEndpoint(ctx, RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
		FullName: fullName,
	})
	if err != nil {
		return usersvc.Profile{}, err
	}

	resp := response.(RegisterResponse)
	return resp.Profile, resp.Err
}

func (s Set) Login(ctx context.Context, username, password string) (authservice.Token, error) {
	response, err := s.LoginEndpoint(ctx, LoginRequest{Username: username, Password: password})
	if err != nil {
		return authservice.Token{}, err
	}

	resp := response.(LoginResponse)
	return resp.Token, resp.Err
}

// Identify presents token the same way the HTTP transport does, through
// kitjwt.JWTTokenContextKey.
func (s Set) Identify(ctx context.Context, token string) (usersvc.Profile, error) {
	ctx = context.WithValue(ctx, kitjwt.JWTTokenContextKey, token)
	response, err := s.MeEndpoint(ctx, MeRequest{})
	if err != nil {
		return usersvc.Profile{}, err
	}

	resp := response.(MeResponse)
	return resp.Profile, resp.Err
}

func MakeRegisterEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(RegisterRequest)
		p, err := s.Register(ctx, req.Username, req.Email, req.Password, req.FullName)

		return RegisterResponse{Profile: p, Err: err}, nil
	}
}

func MakeLoginEndpoint(s authservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(LoginRequest)
		t, err := s.Login(ctx, req.Username, req.Password)

		return LoginResponse{Token: t, Err: err}, nil
	}
}

// MakeMeEndpoint expects Authenticator to have placed the caller's profile
// in the context.
func MakeMeEndpoint() endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		_ = request.(MeRequest)
		p, ok := ctx.Value(authsvc.UserContextKey).(usersvc.Profile)
		if !ok {
			return MeResponse{Err: authsvc.ErrUnauthorized}, nil
		}

		return MeResponse{Profile: p}, nil
	}
}

var (
	_ endpoint.Failer = RegisterResponse{}
	_ endpoint.Failer = LoginResponse{}
	_ endpoint.Failer = MeResponse{}
)

type RegisterRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
}

type RegisterResponse struct {
	usersvc.Profile
	Err error `json:"-"`
}

func (r RegisterResponse) Failed() error { return r.Err }

func (r RegisterResponse) StatusCode() int { return http.StatusCreated }

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	authservice.Token
	Err error `json:"-"`
}

func (r LoginResponse) Failed() error { return r.Err }

type MeRequest struct{}

type MeResponse struct {
	usersvc.Profile
	Err error `json:"-"`
}

func (r MeResponse) Failed() error { return r.Err }
