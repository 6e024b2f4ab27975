package authendpoint

import (
	"context"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/usersvc"
)

// Identifier resolves a bearer token to an active user.
type Identifier interface {
	Identify(ctx context.Context, token string) (usersvc.Profile, error)
}

// Authenticator reads the bearer token left by kitjwt.HTTPToContext and
// stores the resolved profile under authsvc.UserContextKey.
func Authenticator(id Identifier) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (interface{}, error) {
			token, _ := ctx.Value(kitjwt.JWTTokenContextKey).(string)

			p, err := id.Identify(ctx, token)
			if err != nil {
				return nil, err
			}

			ctx = context.WithValue(ctx, authsvc.UserContextKey, p)
			return next(ctx, request)
		}
	}
}

// LoggingMiddleware logs the transport error, if any, and the duration of
// each call.
func LoggingMiddleware(logger log.Logger) endpoint.Middleware {
	return func(next endpoint.Endpoint) endpoint.Endpoint {
		return func(ctx context.Context, request interface{}) (response interface{}, err error) {
			defer func(begin time.Time) {
				logger.Log("transport_error", err, "took", time.Since(begin))
			}(time.Now())
			return next(ctx, request)
		}
	}
}
