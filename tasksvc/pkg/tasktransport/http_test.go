package tasktransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/authsvc/pkg/authservice"
	"github.com/ichigozero/todokit/tasksvc"
	"github.com/ichigozero/todokit/tasksvc/inmem"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskservice"
	userinmem "github.com/ichigozero/todokit/usersvc/inmem"
	"github.com/ichigozero/todokit/usersvc/pkg/passwd"
	"github.com/ichigozero/todokit/usersvc/pkg/userservice"
)

type fixture struct {
	srv    *httptest.Server
	users  userservice.Service
	tokens authservice.Tokenizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := log.NewNopLogger()
	users := userservice.New(userinmem.NewUserRepository(), passwd.NewHasherWithCost(bcrypt.MinCost), logger)
	tokens := authservice.NewTokenizer("test-secret")
	auth := authservice.New(users, tokens, 0, logger)
	tasks := taskservice.New(inmem.NewTaskRepository(), logger)

	srv := httptest.NewServer(NewHTTPHandler(taskendpoint.New(tasks, auth, logger), logger))
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, users: users, tokens: tokens}
}

// user registers username and returns a bearer token for it.
func (f *fixture) user(t *testing.T, username string) string {
	t.Helper()

	_, err := f.users.Register(context.Background(), username, username+"@x.com", "pw", nil)
	require.NoError(t, err)

	token, err := f.tokens.Generate(username, time.Minute)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, f.srv.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeTask(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func TestCreateTask(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	resp := f.do(t, "POST", "/", token, `{"title":"write","description":"details","priority":"High","due_date":"2030-01-01T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	task := decodeTask(t, resp)
	assert.Equal(t, float64(1), task["id"])
	assert.Equal(t, float64(1), task["owner_id"])
	assert.Equal(t, "write", task["title"])
	assert.Equal(t, "details", task["description"])
	assert.Equal(t, "High", task["priority"])
	assert.Equal(t, false, task["completed"])
	assert.Equal(t, "2030-01-01T10:00:00Z", task["due_date"])
	assert.Contains(t, task, "created_at")
	assert.Nil(t, task["completed_at"])
}

func TestCreateTask_Defaults(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	resp := f.do(t, "POST", "/", token, `{"title":"minimal"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	task := decodeTask(t, resp)
	assert.Equal(t, "Normal", task["priority"])
	assert.Nil(t, task["description"])
	assert.Nil(t, task["due_date"])
}

func TestCreateTask_Invalid(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	for _, body := range []string{
		`{}`,
		`{"title":null}`,
		`{"title":""}`,
		`{"title":"x","priority":"InvalidPriority"}`,
		`{"title":"x","priority":null}`,
		`{"title":"x","completed":null}`,
		`{"title":"x","due_date":"tomorrow"}`,
		`{`,
	} {
		resp := f.do(t, "POST", "/", token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, body)
	}
}

func TestUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.user(t, "alice")
	ghost, err := f.tokens.Generate("ghost", time.Minute)
	require.NoError(t, err)
	expired, err := f.tokens.Generate("alice", -time.Minute)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", ghost, expired} {
		resp := f.do(t, "GET", "/", token, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
	}
}

func TestInactiveUser(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	require.NoError(t, f.users.SetActive(context.Background(), 1, false))

	resp := f.do(t, "GET", "/", token, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Inactive user", decodeTask(t, resp)["error"])
}

func TestTasks_EmptyList(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	resp := f.do(t, "GET", "/", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tasks []interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	resp := f.do(t, "POST", "/", token, `{"title":"x","description":"d"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, "PUT", "/1", token, `{"completed":true,"description":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	task := decodeTask(t, resp)
	assert.Equal(t, true, task["completed"])
	assert.NotNil(t, task["completed_at"])
	assert.Nil(t, task["description"])
	assert.Equal(t, "x", task["title"])

	resp = f.do(t, "PUT", "/1", token, `{"title":null}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.do(t, "DELETE", "/1", token, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, "GET", "/1", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "task not found", decodeTask(t, resp)["error"])

	resp = f.do(t, "DELETE", "/1", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadTaskID(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	resp := f.do(t, "GET", "/abc", token, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestForeignTask(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	resp := f.do(t, "POST", "/", alice, `{"title":"private"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, method := range []string{"GET", "PUT", "DELETE"} {
		body := ""
		if method == "PUT" {
			body = `{"title":"mine"}`
		}
		resp := f.do(t, method, "/1", bob, body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, method)
	}

	resp = f.do(t, "GET", "/1", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "private", decodeTask(t, resp)["title"])
}

func TestHTTPClient(t *testing.T) {
	f := newFixture(t)
	token := f.user(t, "alice")

	client, err := NewHTTPClient(f.srv.URL, log.NewNopLogger())
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), kitjwt.JWTTokenContextKey, token)
	a := tasksvc.Auth{}

	desc := "details"
	created, err := client.CreateTask(ctx, a, tasksvc.NewTask{Title: "remote", Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "remote", created.Title)
	assert.Equal(t, tasksvc.PriorityNormal, created.Priority)

	tasks, err := client.Tasks(ctx, a)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)

	updated, err := client.UpdateTask(ctx, a, created.ID, tasksvc.TaskUpdate{
		Completed:   tasksvc.Some(true),
		Description: tasksvc.Null[string](),
	})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.NotNil(t, updated.CompletedAt)
	assert.Nil(t, updated.Description)

	got, err := client.Task(ctx, a, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Title)

	require.NoError(t, client.DeleteTask(ctx, a, created.ID))

	_, err = client.Task(ctx, a, created.ID)
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
	assert.ErrorIs(t, client.DeleteTask(ctx, a, created.ID), tasksvc.ErrTaskNotFound)

	_, err = client.CreateTask(ctx, a, tasksvc.NewTask{})
	assert.ErrorIs(t, err, tasksvc.ErrInvalidArgument)

	_, err = client.Tasks(context.Background(), a)
	assert.ErrorIs(t, err, authsvc.ErrUnauthorized)
}

func TestErr2Code_HidesInternalErrors(t *testing.T) {
	code, msg := err2code(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal error", msg)
	assert.False(t, strings.Contains(msg, assert.AnError.Error()))
}
