package authservice

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/usersvc"
	"github.com/ichigozero/todokit/usersvc/inmem"
	"github.com/ichigozero/todokit/usersvc/pkg/passwd"
	"github.com/ichigozero/todokit/usersvc/pkg/userservice"
)

func newServices() (Service, userservice.Service, Tokenizer) {
	users := userservice.New(inmem.NewUserRepository(), passwd.NewHasherWithCost(bcrypt.MinCost), log.NewNopLogger())
	tk := NewTokenizer(testSecret)
	svc := New(users, tk, 0, log.NewNopLogger())
	svc = InstrumentingMiddleware(discard.NewCounter(), discard.NewHistogram())(svc)
	return svc, users, tk
}

func TestLoginAndIdentify(t *testing.T) {
	svc, _, _ := newServices()
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice", "alice@x.com", "pw123", nil)
	require.NoError(t, err)

	token, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", token.TokenType)
	assert.NotEmpty(t, token.AccessToken)

	p, err := svc.Identify(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered, p)
}

func TestLogin_Rejected(t *testing.T) {
	svc, _, _ := newServices()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@x.com", "pw123", nil)
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, usersvc.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "pw123")
	assert.ErrorIs(t, err, usersvc.ErrInvalidCredentials)
}

func TestIdentify_Unauthorized(t *testing.T) {
	svc, _, tk := newServices()
	ctx := context.Background()

	ghost, err := tk.Generate("ghost", time.Minute)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", ghost} {
		_, err := svc.Identify(ctx, token)
		assert.ErrorIs(t, err, authsvc.ErrUnauthorized, token)
	}
}

func TestIdentify_InactiveAccount(t *testing.T) {
	svc, users, _ := newServices()
	ctx := context.Background()

	p, err := svc.Register(ctx, "alice", "alice@x.com", "pw123", nil)
	require.NoError(t, err)

	token, err := svc.Login(ctx, "alice", "pw123")
	require.NoError(t, err)

	require.NoError(t, users.SetActive(ctx, p.ID, false))

	_, err = svc.Identify(ctx, token.AccessToken)
	assert.ErrorIs(t, err, authsvc.ErrInactiveAccount)
}

func TestGate_ResolveIgnoresActiveFlag(t *testing.T) {
	_, users, tk := newServices()
	ctx := context.Background()

	p, err := users.Register(ctx, "alice", "alice@x.com", "pw123", nil)
	require.NoError(t, err)
	require.NoError(t, users.SetActive(ctx, p.ID, false))

	token, err := tk.Generate("alice", time.Minute)
	require.NoError(t, err)

	gate := NewGate(tk, users)
	resolved, err := gate.Resolve(ctx, token)
	require.NoError(t, err)
	assert.False(t, resolved.IsActive)

	assert.ErrorIs(t, RequireActive(resolved), authsvc.ErrInactiveAccount)
	assert.NoError(t, RequireActive(usersvc.Profile{IsActive: true}))
}
