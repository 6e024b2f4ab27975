package apigateway

import (
	"net/http"

	"github.com/go-kit/kit/log"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/todokit/authsvc/pkg/authendpoint"
	"github.com/ichigozero/todokit/authsvc/pkg/authtransport"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/todokit/tasksvc/pkg/tasktransport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "0.1.0"

// NewHandler mounts the auth and task APIs under /api/v1 next to the
// informational routes and the Prometheus scrape endpoint.
func NewHandler(auth authendpoint.Set, tasks taskendpoint.Set, logger log.Logger) http.Handler {
	r := mux.NewRouter()

	{
		h := authtransport.NewHTTPHandler(auth, log.With(logger, "component", "authtransport"))
		r.PathPrefix(authtransport.PathPrefix + "/").Handler(http.StripPrefix(authtransport.PathPrefix, h))
	}
	{
		h := tasktransport.NewHTTPHandler(tasks, log.With(logger, "component", "tasktransport"))
		r.Path(tasktransport.PathPrefix).Handler(http.RedirectHandler(tasktransport.PathPrefix+"/", http.StatusTemporaryRedirect))
		r.PathPrefix(tasktransport.PathPrefix + "/").Handler(http.StripPrefix(tasktransport.PathPrefix, h))
	}

	r.Methods("GET").Path("/").Handler(info(map[string]string{
		"message": "Welcome to the todokit API",
	}))
	r.Methods("GET").Path("/health").Handler(info(map[string]string{
		"status":  "healthy",
		"version": Version,
	}))
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	return r
}

func info(body map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httptransport.EncodeJSONResponse(r.Context(), w, body)
	})
}
