package authservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/todokit/usersvc"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Register(ctx context.Context, username, email, password string, fullName *string) (p usersvc.Profile, err error) {
	defer func() {
		mw.logger.Log("method", "Register", "username", username, "id", p.ID, "err", err)
	}()
	return mw.next.Register(ctx, username, email, password, fullName)
}

func (mw loggingMiddleware) Login(ctx context.Context, username, password string) (t Token, err error) {
	defer func() {
		mw.logger.Log("method", "Login", "username", username, "err", err)
	}()
	return mw.next.Login(ctx, username, password)
}

func (mw loggingMiddleware) Identify(ctx context.Context, token string) (p usersvc.Profile, err error) {
	defer func() {
		mw.logger.Log("method", "Identify", "username", p.Username, "err", err)
	}()
	return mw.next.Identify(ctx, token)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) Register(ctx context.Context, username, email, password string, fullName *string) (usersvc.Profile, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "register").Add(1)
		mw.requestLatency.With("method", "register").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Register(ctx, username, email, password, fullName)
}

func (mw instrumentingMiddleware) Login(ctx context.Context, username, password string) (Token, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "login").Add(1)
		mw.requestLatency.With("method", "login").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Login(ctx, username, password)
}

func (mw instrumentingMiddleware) Identify(ctx context.Context, token string) (usersvc.Profile, error) {
	defer func(begin time.Time) {
		mw.requestCount.With("method", "identify").Add(1)
		mw.requestLatency.With("method", "identify").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mw.next.Identify(ctx, token)
}
