package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/dCache/rpc/common"
	"github.com/ValentinKolb/dCache/rpc/transport"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// shutdownTimeout bounds how long in-flight requests may take after the context is done
const shutdownTimeout = 5 * time.Second

func NewHttpServerTransport() transport.IRPCServerTransport {
	return &httpServerTransport{}
}

type httpServerTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *httpServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *httpServerTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	t.config = config
	e := t.newEcho()

	srv := &http.Server{
		Addr:    config.Endpoint,
		Handler: e,
	}
	if config.TimeoutSecond > 0 {
		srv.ReadTimeout = time.Duration(config.TimeoutSecond) * time.Second
		srv.WriteTimeout = time.Duration(config.TimeoutSecond) * time.Second
	}

	Logger.Infof("Starting HTTP server on %s", config.Endpoint)

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
		Logger.Infof("Shutting down HTTP server on %s", config.Endpoint)
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// newEcho builds the router. Request logging is only installed on debug level.
func (t *httpServerTransport) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if t.config.LogLevel == "debug" {
		e.Use(loggerMiddleware)
	}
	e.POST("/:shardId", t.handleRequest)
	return e
}

// handleRequest passes the raw body to the registered handler and writes its response
func (t *httpServerTransport) handleRequest(c echo.Context) error {
	shardId, err := strconv.ParseUint(c.Param("shardId"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid shardId")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to read request body")
	}

	resp := t.handler(shardId, body)
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, resp)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// loggerMiddleware logs method, path, status and duration of every request
func loggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		Logger.Debugf("%s %s => %d took %s", c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
		return nil
	}
}
