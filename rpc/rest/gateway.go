package rest

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ValentinKolb/dCache/lib/registry"
	"github.com/ValentinKolb/dCache/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rest")

const (
	shutdownTimeout = 5 * time.Second
	moduleKey       = "module"
)

// Module is the part of a served shard the gateway talks to
type Module struct {
	Store    store.IStore
	Registry registry.IRegistry
}

// Gateway exposes the stores and named caches of all modules as a form based HTTP API.
// Every route exists twice: under /memcache for the default module and under
// /modules/:module/memcache for an explicitly addressed one.
type Gateway struct {
	modules       map[string]Module
	defaultModule string
	metrics       *metrics.Set
	echo          *echo.Echo
}

// NewGateway creates a gateway for the given modules. set receives the request counters
// and is exposed on /metrics together with the process metrics, it may be nil.
func NewGateway(modules map[string]Module, defaultModule string, set *metrics.Set) *Gateway {
	if set == nil {
		set = metrics.NewSet()
	}
	g := &Gateway{
		modules:       modules,
		defaultModule: defaultModule,
		metrics:       set,
	}
	g.echo = g.newEcho()
	return g
}

// Handler returns the http.Handler serving all routes
func (g *Gateway) Handler() http.Handler {
	return g.echo
}

// Listen serves the gateway on addr until ctx is done
func (g *Gateway) Listen(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	Logger.Infof("Starting REST gateway on %s (default module %s)", addr, g.defaultModule)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --------------------------------------------------------------------------
// Routing
// --------------------------------------------------------------------------

func (g *Gateway) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler
	e.Use(middleware.Recover())
	e.Use(g.countRequests)

	e.GET("/metrics", g.writeMetrics)
	e.GET("/modules", g.listModules)

	g.registerMemcache(e.Group("/memcache", g.resolveModule))
	g.registerMemcache(e.Group("/modules/:module/memcache", g.resolveModule))
	return e
}

func (g *Gateway) registerMemcache(r *echo.Group) {
	r.POST("", putEntry)
	r.GET("", getEntry)
	r.DELETE("", deleteEntry)

	r.POST("/multi", putEntries)
	r.GET("/multi", getEntries)
	r.DELETE("/multi", deleteEntries)

	r.GET("/incr", increment)
	r.POST("/incr", increment)

	r.GET("/cas", gets)
	r.POST("/cas", compareAndSwap)

	r.POST("/counter", createCounter)
	r.GET("/counter", incrementCounter)
	r.DELETE("/counter", deleteCounter)

	r.POST("/jcache", writeCache)
	r.GET("/jcache", readCache)
	r.DELETE("/jcache", removeCache)
}

// resolveModule stores the addressed module in the request context
func (g *Gateway) resolveModule(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param("module")
		if name == "" {
			name = g.defaultModule
		}
		m, ok := g.modules[name]
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "unknown module "+name)
		}
		c.Set(moduleKey, m)
		return next(c)
	}
}

func moduleOf(c echo.Context) Module {
	return c.Get(moduleKey).(Module)
}

func (g *Gateway) listModules(c echo.Context) error {
	names := make([]string, 0, len(g.modules))
	for name := range g.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return c.JSON(http.StatusOK, map[string]any{
		"modules":        names,
		"default_module": g.defaultModule,
	})
}

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// countRequests counts requests per route and status
func (g *Gateway) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		status := c.Response().Status
		g.metrics.GetOrCreateCounter(`dcache_rest_requests_total{method="` + c.Request().Method +
			`",route="` + c.Path() + `",status="` + strconv.Itoa(status) + `"}`).Inc()
		Logger.Debugf("%s %s => %d took %s", c.Request().Method, c.Request().URL.Path, status, time.Since(start))
		return nil
	}
}

func (g *Gateway) writeMetrics(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	metrics.WritePrometheus(w, true)
	g.metrics.WritePrometheus(w)
	return nil
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// statusOf maps store return codes to http status codes
func statusOf(code store.RetCode) int {
	switch code {
	case store.RetCInvalidArgument:
		return http.StatusBadRequest
	case store.RetCNotFound:
		return http.StatusNotFound
	case store.RetCConflict, store.RetCTypeMismatch:
		return http.StatusConflict
	case store.RetCUnsupportedOperation, store.RetCInvalidOperation:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler writes every error as {"error": "..."}
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()

	var he *echo.HTTPError
	var se *store.Error
	switch {
	case errors.As(err, &he):
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		} else {
			msg = http.StatusText(code)
		}
	case errors.As(err, &se):
		code = statusOf(se.Code)
		msg = se.Msg
	}

	if code >= http.StatusInternalServerError {
		Logger.Errorf("%s %s failed: %v", c.Request().Method, c.Request().URL.Path, err)
	}
	if err := c.JSON(code, map[string]string{"error": msg}); err != nil {
		Logger.Warningf("failed to write error response: %v", err)
	}
}

// errNotFound is returned for absent keys
var errNotFound = echo.NewHTTPError(http.StatusNotFound, "not found")
