package userservice

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
		mw.logger.Log("method", "Register", "username", username, "email", email, "id", p.ID, "err", err)
	}()
	return mw.next.Register(ctx, username, email, password, fullName)
}

func (mw loggingMiddleware) Authenticate(ctx context.Context, username, password string) (u usersvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "Authenticate", "username", username, "id", u.ID, "err", err)
	}()
	return mw.next.Authenticate(ctx, username, password)
}

func (mw loggingMiddleware) UserByUsername(ctx context.Context, username string) (u usersvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "UserByUsername", "username", username, "id", u.ID, "err", err)
	}()
	return mw.next.UserByUsername(ctx, username)
}

func (mw loggingMiddleware) UserByEmail(ctx context.Context, email string) (u usersvc.User, err error) {
	defer func() {
		mw.logger.Log("method", "UserByEmail", "email", email, "id", u.ID, "err", err)
	}()
	return mw.next.UserByEmail(ctx, email)
}

func (mw loggingMiddleware) UserByID(ctx context.Context, id uint64) (p usersvc.Profile, err error) {
	defer func() {
		mw.logger.Log("method", "UserByID", "id", id, "err", err)
	}()
	return mw.next.UserByID(ctx, id)
}

func (mw loggingMiddleware) SetActive(ctx context.Context, id uint64, active bool) (err error) {
	defer func() {
		mw.logger.Log("method", "SetActive", "id", id, "active", active, "err", err)
	}()
	return mw.next.SetActive(ctx, id, active)
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

func (mw instrumentingMiddleware) observe(method string, begin time.Time) {
	mw.requestCount.With("method", method).Add(1)
	mw.requestLatency.With("method", method).Observe(time.Since(begin).Seconds())
}

func (mw instrumentingMiddleware) Register(ctx context.Context, username, email, password string, fullName *string) (usersvc.Profile, error) {
	defer mw.observe("register", time.Now())
	return mw.next.Register(ctx, username, email, password, fullName)
}

func (mw instrumentingMiddleware) Authenticate(ctx context.Context, username, password string) (usersvc.User, error) {
	defer mw.observe("authenticate", time.Now())
	return mw.next.Authenticate(ctx, username, password)
}

func (mw instrumentingMiddleware) UserByUsername(ctx context.Context, username string) (usersvc.User, error) {
	defer mw.observe("user_by_username", time.Now())
	return mw.next.UserByUsername(ctx, username)
}

func (mw instrumentingMiddleware) UserByEmail(ctx context.Context, email string) (usersvc.User, error) {
	defer mw.observe("user_by_email", time.Now())
	return mw.next.UserByEmail(ctx, email)
}

func (mw instrumentingMiddleware) UserByID(ctx context.Context, id uint64) (usersvc.Profile, error) {
	defer mw.observe("user_by_id", time.Now())
	return mw.next.UserByID(ctx, id)
}

func (mw instrumentingMiddleware) SetActive(ctx context.Context, id uint64, active bool) error {
	defer mw.observe("set_active", time.Now())
	return mw.next.SetActive(ctx, id, active)
}
