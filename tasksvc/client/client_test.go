package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/sd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ichigozero/todokit/authsvc/pkg/authservice"
	"github.com/ichigozero/todokit/tasksvc"
	"github.com/ichigozero/todokit/tasksvc/inmem"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskservice"
	"github.com/ichigozero/todokit/tasksvc/pkg/tasktransport"
	userinmem "github.com/ichigozero/todokit/usersvc/inmem"
	"github.com/ichigozero/todokit/usersvc/pkg/passwd"
	"github.com/ichigozero/todokit/usersvc/pkg/userservice"
)

func TestNewFromInstancer(t *testing.T) {
	logger := log.NewNopLogger()
	users := userservice.New(userinmem.NewUserRepository(), passwd.NewHasherWithCost(bcrypt.MinCost), logger)
	tokens := authservice.NewTokenizer("test-secret")
	auth := authservice.New(users, tokens, 0, logger)
	tasks := taskservice.New(inmem.NewTaskRepository(), logger)

	mux := http.NewServeMux()
	mux.Handle(tasktransport.PathPrefix+"/", http.StripPrefix(
		tasktransport.PathPrefix,
		tasktransport.NewHTTPHandler(taskendpoint.New(tasks, auth, logger), logger),
	))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := users.Register(context.Background(), "alice", "alice@x.com", "pw", nil)
	require.NoError(t, err)
	token, err := tokens.Generate("alice", time.Minute)
	require.NoError(t, err)

	instance := strings.TrimPrefix(srv.URL, "http://")
	set := NewFromInstancer(sd.FixedInstancer{instance}, logger, 3, time.Second)

	ctx := context.WithValue(context.Background(), kitjwt.JWTTokenContextKey, token)
	a := tasksvc.Auth{}

	// The endpointer picks up the instance asynchronously.
	require.Eventually(t, func() bool {
		_, err := set.Tasks(ctx, a)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	created, err := set.CreateTask(ctx, a, tasksvc.NewTask{Title: "balanced", Priority: tasksvc.PriorityTop})
	require.NoError(t, err)
	assert.Equal(t, tasksvc.PriorityTop, created.Priority)

	list, err := set.Tasks(ctx, a)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "balanced", list[0].Title)

	updated, err := set.UpdateTask(ctx, a, created.ID, tasksvc.TaskUpdate{Title: tasksvc.Some("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)

	got, err := set.Task(ctx, a, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, set.DeleteTask(ctx, a, created.ID))

	_, err = set.Task(ctx, a, created.ID)
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
}

func TestNewFromInstancer_NoInstances(t *testing.T) {
	set := NewFromInstancer(sd.FixedInstancer{}, log.NewNopLogger(), 2, 100*time.Millisecond)

	_, err := set.Tasks(context.Background(), tasksvc.Auth{})
	assert.Error(t, err)
}
