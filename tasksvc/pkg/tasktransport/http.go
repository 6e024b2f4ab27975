package tasktransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/tasksvc"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskendpoint"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// PathPrefix is where the task routes are mounted on the public API.
const PathPrefix = "/api/v1/tasks"

// NewHTTPHandler serves the task collection at "/" and single tasks at
// "/{task_id}". Every route expects an Authorization bearer header.
func NewHTTPHandler(endpoints taskendpoint.Set, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
		httptransport.ServerBefore(kitjwt.HTTPToContext()),
	}

	r := mux.NewRouter()

	r.Methods("POST").Path("/").Handler(httptransport.NewServer(
		endpoints.CreateTaskEndpoint,
		decodeHTTPCreateTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("GET").Path("/").Handler(httptransport.NewServer(
		endpoints.TasksEndpoint,
		decodeHTTPTasksRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("GET").Path("/{task_id}").Handler(httptransport.NewServer(
		endpoints.TaskEndpoint,
		decodeHTTPTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("PUT").Path("/{task_id}").Handler(httptransport.NewServer(
		endpoints.UpdateTaskEndpoint,
		decodeHTTPUpdateTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("DELETE").Path("/{task_id}").Handler(httptransport.NewServer(
		endpoints.DeleteTaskEndpoint,
		decodeHTTPDeleteTaskRequest,
		encodeHTTPGenericResponse,
		options...,
	))

	return r
}

// NewHTTPClient returns endpoints backed by the task routes under instance,
// which may carry a path prefix. The Set satisfies taskservice.Service.
// The bearer token is taken from kitjwt.JWTTokenContextKey in each call's
// context. Business failures come back as service errors and never trip the
// circuit breaker.
func NewHTTPClient(instance string, logger log.Logger) (taskendpoint.Set, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return taskendpoint.Set{}, err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/"

	// One limiter is shared by every endpoint of this client.
	limiter := ratelimit.NewErroringLimiter(rate.NewLimiter(rate.Limit(100), 100))

	options := []httptransport.ClientOption{
		httptransport.ClientBefore(kitjwt.ContextToHTTP()),
	}

	wrap := func(name string, e endpoint.Endpoint) endpoint.Endpoint {
		e = limiter(e)
		e = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Log("breaker", name, "from", from.String(), "to", to.String())
			},
		}))(e)
		return e
	}

	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = httptransport.NewClient(
			"POST",
			u,
			encodeHTTPCreateTaskRequest,
			decodeHTTPCreateTaskResponse,
			options...,
		).Endpoint()
		createTaskEndpoint = wrap("CreateTask", createTaskEndpoint)
	}

	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = httptransport.NewClient(
			"GET",
			u,
			encodeHTTPEmptyRequest,
			decodeHTTPTasksResponse,
			options...,
		).Endpoint()
		tasksEndpoint = wrap("Tasks", tasksEndpoint)
	}

	var taskEndpoint endpoint.Endpoint
	{
		taskEndpoint = httptransport.NewClient(
			"GET",
			u,
			encodeHTTPTaskRequest,
			decodeHTTPTaskResponse,
			options...,
		).Endpoint()
		taskEndpoint = wrap("Task", taskEndpoint)
	}

	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = httptransport.NewClient(
			"PUT",
			u,
			encodeHTTPUpdateTaskRequest,
			decodeHTTPUpdateTaskResponse,
			options...,
		).Endpoint()
		updateTaskEndpoint = wrap("UpdateTask", updateTaskEndpoint)
	}

	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = httptransport.NewClient(
			"DELETE",
			u,
			encodeHTTPDeleteTaskRequest,
			decodeHTTPDeleteTaskResponse,
			options...,
		).Endpoint()
		deleteTaskEndpoint = wrap("DeleteTask", deleteTaskEndpoint)
	}

	return taskendpoint.Set{
		CreateTaskEndpoint: createTaskEndpoint,
		TasksEndpoint:      tasksEndpoint,
		TaskEndpoint:       taskEndpoint,
		UpdateTaskEndpoint: updateTaskEndpoint,
		DeleteTaskEndpoint: deleteTaskEndpoint,
	}, nil
}

func errorEncoder(_ context.Context, err error, w http.ResponseWriter) {
	code, msg := err2code(err)
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorWrapper{Error: msg})
}

type errorWrapper struct {
	Error string `json:"error"`
}

// err2code maps an error to its status and the message clients may see.
// Unknown errors never leak their text.
func err2code(err error) (int, string) {
	switch {
	case errors.Is(err, tasksvc.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, "invalid argument"
	case errors.Is(err, tasksvc.ErrTaskNotFound):
		return http.StatusNotFound, "task not found"
	case errors.Is(err, authsvc.ErrUnauthorized):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, authsvc.ErrInactiveAccount):
		return http.StatusBadRequest, "Inactive user"
	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests, "too many requests"
	}
	return http.StatusInternalServerError, "internal error"
}

// code2err is the client-side inverse of err2code. It returns the service
// error a response stands for, or a transport error for server faults.
func code2err(r *http.Response) (svcErr error, err error) {
	var w errorWrapper
	json.NewDecoder(r.Body).Decode(&w)

	switch r.StatusCode {
	case http.StatusUnprocessableEntity:
		return tasksvc.ErrInvalidArgument, nil
	case http.StatusNotFound:
		return tasksvc.ErrTaskNotFound, nil
	case http.StatusUnauthorized:
		return authsvc.ErrUnauthorized, nil
	case http.StatusTooManyRequests:
		return ratelimit.ErrLimited, nil
	case http.StatusBadRequest:
		if w.Error == "Inactive user" {
			return authsvc.ErrInactiveAccount, nil
		}
		return errors.New(w.Error), nil
	}
	return nil, fmt.Errorf("%s: %s", r.Status, w.Error)
}

func invalidArgument(reason string) error {
	return fmt.Errorf("%w: %s", tasksvc.ErrInvalidArgument, reason)
}

func taskID(r *http.Request) (uint64, error) {
	vars := mux.Vars(r)
	id, ok := vars["task_id"]
	if !ok {
		return 0, ErrBadRouting
	}
	taskID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, invalidArgument("task_id must be a positive integer")
	}
	return taskID, nil
}

type createTaskBody struct {
	Title       tasksvc.Optional[string]           `json:"title"`
	Description *string                            `json:"description"`
	Completed   tasksvc.Optional[bool]             `json:"completed"`
	DueDate     *time.Time                         `json:"due_date"`
	Priority    tasksvc.Optional[tasksvc.Priority] `json:"priority"`
}

func decodeHTTPCreateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var body createTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, invalidArgument(err.Error())
	}

	switch {
	case !body.Title.Set || body.Title.Null:
		return nil, invalidArgument("title is required")
	case body.Completed.Null:
		return nil, invalidArgument("completed must be a boolean")
	case body.Priority.Null:
		return nil, invalidArgument("priority must be one of Low, Normal, Medium, High, Top")
	}

	return taskendpoint.CreateTaskRequest{NewTask: tasksvc.NewTask{
		Title:       body.Title.Value,
		Description: body.Description,
		Completed:   body.Completed.Value,
		DueDate:     body.DueDate,
		Priority:    body.Priority.Value,
	}}, nil
}

func decodeHTTPTasksRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return taskendpoint.TasksRequest{}, nil
}

func decodeHTTPTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.TaskRequest{TaskID: id}, nil
}

func decodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}

	var u tasksvc.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		return nil, invalidArgument(err.Error())
	}

	return taskendpoint.UpdateTaskRequest{TaskID: id, Update: u}, nil
}

func decodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.DeleteTaskRequest{TaskID: id}, nil
}

func decodeHTTPCreateTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusCreated {
		svcErr, err := code2err(r)
		if err != nil {
			return nil, err
		}
		return taskendpoint.CreateTaskResponse{Err: svcErr}, nil
	}
	var resp taskendpoint.CreateTaskResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPTasksResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		svcErr, err := code2err(r)
		if err != nil {
			return nil, err
		}
		return taskendpoint.TasksResponse{Err: svcErr}, nil
	}
	var resp taskendpoint.TasksResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		svcErr, err := code2err(r)
		if err != nil {
			return nil, err
		}
		return taskendpoint.TaskResponse{Err: svcErr}, nil
	}
	var resp taskendpoint.TaskResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPUpdateTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		svcErr, err := code2err(r)
		if err != nil {
			return nil, err
		}
		return taskendpoint.UpdateTaskResponse{Err: svcErr}, nil
	}
	var resp taskendpoint.UpdateTaskResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPDeleteTaskResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusNoContent {
		svcErr, err := code2err(r)
		if err != nil {
			return nil, err
		}
		return taskendpoint.DeleteTaskResponse{Err: svcErr}, nil
	}
	return taskendpoint.DeleteTaskResponse{}, nil
}

func encodeHTTPCreateTaskRequest(ctx context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.CreateTaskRequest)
	return encodeHTTPGenericRequest(ctx, r, req.NewTask)
}

func encodeHTTPTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.TaskRequest)
	r.URL.Path += strconv.FormatUint(req.TaskID, 10)
	return nil
}

func encodeHTTPUpdateTaskRequest(ctx context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.UpdateTaskRequest)
	r.URL.Path += strconv.FormatUint(req.TaskID, 10)
	return encodeHTTPGenericRequest(ctx, r, req.Update)
}

func encodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request, request interface{}) error {
	req := request.(taskendpoint.DeleteTaskRequest)
	r.URL.Path += strconv.FormatUint(req.TaskID, 10)
	return nil
}

func encodeHTTPEmptyRequest(_ context.Context, _ *http.Request, _ interface{}) error {
	return nil
}

// encodeHTTPGenericRequest is a transport/http.EncodeRequestFunc that
// JSON-encodes any request to the request body. Primarily useful in a client.
func encodeHTTPGenericRequest(_ context.Context, r *http.Request, request interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(request); err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.Body = ioutil.NopCloser(&buf)
	return nil
}

// ErrBadRouting is returned when an expected path variable is missing.
// It always indicates programmer error.
var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")

func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	return httptransport.EncodeJSONResponse(ctx, w, response)
}
