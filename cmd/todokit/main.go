package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	consulsd "github.com/go-kit/kit/sd/consul"
	"github.com/hashicorp/consul/api"
	"github.com/oklog/oklog/pkg/group"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/twinj/uuid"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"

	"github.com/ichigozero/todokit/apigateway"
	"github.com/ichigozero/todokit/authsvc"
	"github.com/ichigozero/todokit/authsvc/pkg/authendpoint"
	"github.com/ichigozero/todokit/authsvc/pkg/authservice"
	"github.com/ichigozero/todokit/tasksvc"
	taskclient "github.com/ichigozero/todokit/tasksvc/client"
	taskgorm "github.com/ichigozero/todokit/tasksvc/db/gorm"
	taskinmem "github.com/ichigozero/todokit/tasksvc/inmem"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/todokit/tasksvc/pkg/taskservice"
	"github.com/ichigozero/todokit/usersvc"
	usergorm "github.com/ichigozero/todokit/usersvc/db/gorm"
	userinmem "github.com/ichigozero/todokit/usersvc/inmem"
	"github.com/ichigozero/todokit/usersvc/pkg/passwd"
	"github.com/ichigozero/todokit/usersvc/pkg/userservice"
)

func main() {
	fs := flag.NewFlagSet("todokit", flag.ExitOnError)
	var (
		httpAddr = fs.String(
			"http.addr",
			getEnv("HTTP_ADDR", ":8000"),
			"HTTP listen address",
		)
		consulAddr = fs.String(
			"consul.addr",
			getEnv("CONSUL_ADDR", ""),
			"Consul agent address; registration is skipped when empty",
		)
		databaseURL = fs.String(
			"database.url",
			getEnv("DATABASE_URL", ""),
			"Postgres DSN, sqlite:<path>, or empty for in-memory stores",
		)
		tokenTTL = fs.Duration(
			"token.ttl",
			getEnvAsDuration("ACCESS_TOKEN_TTL", authsvc.AccessTokenExpiry),
			"Access token lifetime",
		)
		loginRate = fs.Int(
			"login.rate",
			getEnvAsInt("LOGIN_RATE", 10),
			"Login attempts allowed per second",
		)
		tasksRemote = fs.Bool(
			"tasks.remote",
			false,
			"Forward task requests to task service instances found in Consul",
		)
		retryMax = fs.Int(
			"retry.max",
			getEnvAsInt("RETRY_MAX", 3),
			"Per-request retries to remote task service instances",
		)
		retryTimeout = fs.Duration(
			"retry.timeout",
			getEnvAsDuration("RETRY_TIMEOUT", 500*time.Millisecond),
			"Per-request timeout to remote task service instances, including retries",
		)
	)

	fs.Usage = usageFor(fs, os.Args[0]+" [flags]")
	fs.Parse(os.Args[1:])

	var logger log.Logger
	{
		logger = log.NewLogfmtLogger(os.Stderr)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}

	users, tasks, err := openStores(*databaseURL)
	if err != nil {
		logger.Log("during", "open stores", "err", err)
		os.Exit(1)
	}

	fieldKeys := []string{"method"}

	var userService userservice.Service
	{
		userService = userservice.New(users, passwd.NewHasher(), logger)
		userService = userservice.InstrumentingMiddleware(
			newCounter("user_service", fieldKeys),
			newHistogram("user_service", fieldKeys),
		)(userService)
	}

	var authService authservice.Service
	{
		authService = authservice.New(
			userService,
			authservice.NewTokenizer(authsvc.AccessSecret),
			*tokenTTL,
			logger,
		)
		authService = authservice.InstrumentingMiddleware(
			newCounter("auth_service", fieldKeys),
			newHistogram("auth_service", fieldKeys),
		)(authService)
	}

	var consulClient consulsd.Client
	if *consulAddr != "" {
		consulConfig := api.DefaultConfig()
		consulConfig.Address = *consulAddr
		c, err := api.NewClient(consulConfig)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		consulClient = consulsd.NewClient(c)
	}

	var taskEndpoints taskendpoint.Set
	if *tasksRemote {
		if consulClient == nil {
			logger.Log("err", "-tasks.remote requires -consul.addr")
			os.Exit(1)
		}
		taskEndpoints, err = taskclient.New(consulClient, logger, *retryMax, *retryTimeout)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
	} else {
		var taskService taskservice.Service
		{
			taskService = taskservice.New(tasks, logger)
			taskService = taskservice.InstrumentingMiddleware(
				newCounter("task_service", fieldKeys),
				newHistogram("task_service", fieldKeys),
			)(taskService)
		}
		taskEndpoints = taskendpoint.New(taskService, authService, logger)
	}

	limit := rate.NewLimiter(rate.Limit(*loginRate), *loginRate)
	handler := apigateway.NewHandler(
		authendpoint.New(authService, logger, limit),
		taskEndpoints,
		logger,
	)

	if consulClient != nil && !*tasksRemote {
		registrar, err := newRegistrar(consulClient, *httpAddr, logger)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		registrar.Register()
		defer registrar.Deregister()
	}

	var g group.Group
	{
		httpListener, err := net.Listen("tcp", *httpAddr)
		if err != nil {
			logger.Log("transport", "HTTP", "during", "Listen", "err", err)
			os.Exit(1)
		}
		g.Add(func() error {
			logger.Log("transport", "HTTP", "addr", *httpAddr)
			return http.Serve(httpListener, handler)
		}, func(error) {
			httpListener.Close()
		})
	}
	{
		// This function just sits and waits for ctrl-C.
		cancelInterrupt := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancelInterrupt:
				return nil
			}
		}, func(error) {
			close(cancelInterrupt)
		})
	}
	logger.Log("exit", g.Run())
}

// openStores picks the backing stores from the database URL: in-memory
// when empty, sqlite for a "sqlite:" prefix and postgres otherwise.
func openStores(databaseURL string) (usersvc.UserRepository, tasksvc.TaskRepository, error) {
	if databaseURL == "" {
		return userinmem.NewUserRepository(), taskinmem.NewTaskRepository(), nil
	}

	var dialector libgorm.Dialector
	if path := strings.TrimPrefix(databaseURL, "sqlite:"); path != databaseURL {
		dialector = sqlite.Open(path)
	} else {
		dialector = postgres.Open(databaseURL)
	}

	db, err := libgorm.Open(dialector, &libgorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	if err := usergorm.Migrate(db); err != nil {
		return nil, nil, err
	}
	if err := taskgorm.Migrate(db); err != nil {
		return nil, nil, err
	}

	return usergorm.NewUserRepository(db), taskgorm.NewTaskRepository(db), nil
}

func newRegistrar(client consulsd.Client, addr string, logger log.Logger) (*consulsd.Registrar, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = "localhost"
	}

	p, _ := strconv.Atoi(port)
	asr := &api.AgentServiceRegistration{
		ID:      uuid.NewV4().String(),
		Name:    taskclient.ServiceName,
		Address: host,
		Port:    p,
	}

	return consulsd.NewRegistrar(client, asr, logger), nil
}

func newCounter(subsystem string, fieldKeys []string) *kitprometheus.Counter {
	return kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "api",
		Subsystem: subsystem,
		Name:      "request_count",
		Help:      "Number of requests received.",
	}, fieldKeys)
}

func newHistogram(subsystem string, fieldKeys []string) *kitprometheus.Histogram {
	return kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Namespace: "api",
		Subsystem: subsystem,
		Name:      "request_latency_seconds",
		Help:      "Total duration of requests in seconds.",
	}, fieldKeys)
}

func usageFor(fs *flag.FlagSet, short string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "USAGE\n")
		fmt.Fprintf(os.Stderr, "  %s\n", short)
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		w := tabwriter.NewWriter(os.Stderr, 0, 2, 2, ' ', 0)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(w, "\t-%s %s\t%s\n", f.Name, f.DefValue, f.Usage)
		})
		w.Flush()
		fmt.Fprintf(os.Stderr, "\n")
	}
}

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := getEnv(key, "")
	if v, err := strconv.Atoi(value); err == nil {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if v, err := time.ParseDuration(value); err == nil {
		return v
	}
	return fallback
}
