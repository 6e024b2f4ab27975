package authtransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/authsvc/pkg/authendpoint"
	"github.com/ichigozero/todokit/authsvc/pkg/authservice"
	"github.com/ichigozero/todokit/usersvc"
)

// PathPrefix is where the auth routes are mounted on the public API.
const PathPrefix = "/api/v1/auth"

// NewHTTPHandler serves /register, /login and /me relative to wherever the
// handler is mounted.
func NewHTTPHandler(endpoints authendpoint.Set, logger log.Logger) http.Handler {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(errorEncoder),
		httptransport.ServerErrorHandler(transport.NewLogErrorHandler(logger)),
	}

	r := mux.NewRouter()

	r.Methods("POST").Path("/register").Handler(httptransport.NewServer(
		endpoints.RegisterEndpoint,
		decodeHTTPRegisterRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("POST").Path("/login").Handler(httptransport.NewServer(
		endpoints.LoginEndpoint,
		decodeHTTPLoginRequest,
		encodeHTTPGenericResponse,
		options...,
	))
	r.Methods("GET").Path("/me").Handler(httptransport.NewServer(
		endpoints.MeEndpoint,
		decodeHTTPMeRequest,
		encodeHTTPGenericResponse,
		append(options, httptransport.ServerBefore(kitjwt.HTTPToContext()))...,
	))

	return r
}

// NewHTTPClient returns an authservice.Service backed by a remote instance.
// Identify forwards its token as an Authorization bearer header.
func NewHTTPClient(instance string) (authservice.Service, error) {
	// Quickly sanitize the instance string.
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	var options []httptransport.ClientOption

	var registerEndpoint endpoint.Endpoint
	{
		registerEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/register"),
			encodeHTTPGenericRequest,
			decodeHTTPRegisterResponse,
			options...,
		).Endpoint()
	}

	var loginEndpoint endpoint.Endpoint
	{
		loginEndpoint = httptransport.NewClient(
			"POST",
			copyURL(u, "/login"),
			encodeHTTPGenericRequest,
			decodeHTTPLoginResponse,
			options...,
		).Endpoint()
	}

	var meEndpoint endpoint.Endpoint
	{
		meEndpoint = httptransport.NewClient(
			"GET",
			copyURL(u, "/me"),
			encodeHTTPEmptyRequest,
			decodeHTTPMeResponse,
			append(options, httptransport.ClientBefore(kitjwt.ContextToHTTP()))...,
		).Endpoint()
	}

	return authendpoint.Set{
		RegisterEndpoint: registerEndpoint,
		LoginEndpoint:    loginEndpoint,
		MeEndpoint:       meEndpoint,
	}, nil
}

func copyURL(base *url.URL, path string) *url.URL {
	next := *base
	next.Path = strings.TrimSuffix(base.Path, "/") + path
	return &next
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

// err2code maps an error to its status and the message clients may see.
// Unknown errors never leak their text.
func err2code(err error) (int, string) {
	switch {
	case errors.Is(err, authsvc.ErrInvalidArgument), errors.Is(err, usersvc.ErrInvalidArgument):
		return http.StatusUnprocessableEntity, "invalid argument"
	case errors.Is(err, usersvc.ErrDuplicateUsername), errors.Is(err, usersvc.ErrDuplicateEmail):
		return http.StatusBadRequest, "user already registered"
	case errors.Is(err, usersvc.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect username or password"
	case errors.Is(err, authsvc.ErrUnauthorized):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, authsvc.ErrInactiveAccount):
		return http.StatusBadRequest, "Inactive user"
	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests, "too many requests"
	}
	return http.StatusInternalServerError, "internal error"
}

type errorWrapper struct {
	Error string `json:"error"`
}

func invalidArgument(reason string) error {
	return fmt.Errorf("%w: %s", authsvc.ErrInvalidArgument, reason)
}

type registerBody struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	FullName *string `json:"full_name"`
}

func decodeHTTPRegisterRequest(_ context.Context, r *http.Request) (interface{}, error) {
	var body registerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, invalidArgument(err.Error())
	}

	switch {
	case body.Username == nil:
		return nil, invalidArgument("username is required")
	case body.Email == nil:
		return nil, invalidArgument("email is required")
	case body.Password == nil:
		return nil, invalidArgument("password is required")
	}
	if !validEmail(*body.Email) {
		return nil, invalidArgument("email is not a valid address")
	}

	return authendpoint.RegisterRequest{
		Username: *body.Username,
		Email:    *body.Email,
		Password: *body.Password,
		FullName: body.FullName,
	}, nil
}

// validEmail accepts a bare addr-spec only, so "Name <a@b>" is rejected.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// decodeHTTPLoginRequest accepts an OAuth2 password form or a JSON body.
func decodeHTTPLoginRequest(_ context.Context, r *http.Request) (interface{}, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Username *string `json:"username"`
			Password *string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, invalidArgument(err.Error())
		}
		if body.Username == nil || body.Password == nil {
			return nil, invalidArgument("username and password are required")
		}
		return authendpoint.LoginRequest{Username: *body.Username, Password: *body.Password}, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, invalidArgument(err.Error())
	}
	username, password := r.PostForm["username"], r.PostForm["password"]
	if len(username) == 0 || len(password) == 0 {
		return nil, invalidArgument("username and password are required")
	}

	return authendpoint.LoginRequest{Username: username[0], Password: password[0]}, nil
}

func decodeHTTPMeRequest(_ context.Context, _ *http.Request) (interface{}, error) {
	return authendpoint.MeRequest{}, nil
}

func decodeHTTPRegisterResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusCreated {
		return nil, decodeHTTPError(r)
	}
	var resp authendpoint.RegisterResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPLoginResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, decodeHTTPError(r)
	}
	var resp authendpoint.LoginResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPMeResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.StatusCode != http.StatusOK {
		return nil, decodeHTTPError(r)
	}
	var resp authendpoint.MeResponse
	err := json.NewDecoder(r.Body).Decode(&resp)
	return resp, err
}

func decodeHTTPError(r *http.Response) error {
	var w errorWrapper
	if err := json.NewDecoder(r.Body).Decode(&w); err != nil || w.Error == "" {
		return errors.New(r.Status)
	}
	return fmt.Errorf("%s: %s", r.Status, w.Error)
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

func encodeHTTPEmptyRequest(_ context.Context, _ *http.Request, _ interface{}) error {
	return nil
}

// encodeHTTPGenericResponse is a transport/http.EncodeResponseFunc that encodes
// the response as JSON to the response writer. Primarily useful in a server.
func encodeHTTPGenericResponse(ctx context.Context, w http.ResponseWriter, response interface{}) error {
	if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
		errorEncoder(ctx, f.Failed(), w)
		return nil
	}
	return httptransport.EncodeJSONResponse(ctx, w, response)
}
