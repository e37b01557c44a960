package webserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	clone "github.com/huandu/go-clone/generic"
	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/msync"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"
)

// InflaterAPI is what the control API needs from a running job.
type InflaterAPI interface {
	Snapshot() inflater.Snapshot
	Abort()
}

// WebServer represents the HTTP server
type WebServer struct {
	port               int
	api                InflaterAPI
	logger             *logger.Logger
	srv                *http.Server
	operationalAPILock *semaphore.Weighted
	result             *msync.TypedAtomic[*inflater.JobResult]
}

// APIResponse is the schema for Operational API response
type APIResponse struct {
	Success          bool    `json:"success"`
	Error            *string `json:"error,omitempty"`
	ErrorDescription *string `json:"errorDescription,omitempty"`
}

// Progress is the body of a progress response.
type Progress struct {
	inflater.Snapshot
	Result *inflater.JobResult `json:"result,omitempty"`
}

// New creates a WebServer object
func New(port int, api InflaterAPI, logger *logger.Logger) *WebServer {
	return &WebServer{
		port:               port,
		api:                api,
		logger:             logger,
		operationalAPILock: semaphore.NewWeighted(1),
		result:             msync.NewTypedAtomic[*inflater.JobResult](nil),
	}
}

// SetResult makes the job's final result available from the progress
// endpoint.
func (server *WebServer) SetResult(result inflater.JobResult) {
	server.result.Store(lo.ToPtr(clone.Clone(result)))
}

func (server *WebServer) operationalAPILockMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !server.operationalAPILock.TryAcquire(1) {
			server.operationalErrorResponse(c, fmt.Errorf("request in progress"))
			c.Abort()
			return
		}
		defer server.operationalAPILock.Release(1)
		c.Next()
	}
}

// A wrapper around gin.ResponseWriter with its own buffer.
// This lets us capture the response body and log it separately.
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (rbw responseBodyWriter) Write(b []byte) (int, error) {
	rbw.body.Write(b)
	return rbw.ResponseWriter.Write(b)
}

// RequestAndResponseLogger is the middleware for logging the request and response.
func (server *WebServer) RequestAndResponseLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()

		// A UUID to correlate each request with a response in the logs.
		traceID := uuid.New().String()

		var buf []byte
		if c.Request.Body != nil {
			buf, _ = io.ReadAll(c.Request.Body)
		}
		server.logger.Debug().Str("uri", c.Request.RequestURI).
			Str("method", c.Request.Method).
			Str("body", string(buf)).
			Str("clientIP", c.ClientIP()).
			Str("traceID", traceID).
			Msg("received request")

		c.Request.Body = io.NopCloser(bytes.NewBuffer(buf))
		c.Header("Trace-Id", traceID)

		rbw := &responseBodyWriter{ResponseWriter: c.Writer, body: bytes.NewBufferString("")}
		c.Writer = rbw

		c.Next()

		server.logger.Debug().Int("status", c.Writer.Status()).
			Str("body", rbw.body.String()).
			Str("traceID", traceID).
			Str("latency", time.Since(t).String()).
			Msg("sent response")
	}
}

func (server *WebServer) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(server.RequestAndResponseLogger(), gin.Recovery())

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/progress", server.progressEndpoint)
			v1.POST("/abort", server.operationalAPILockMiddleware(), server.abortEndpoint)
		}
	}

	router.HandleMethodNotAllowed = true

	return router
}

// Run runs the web server until ctx is canceled. This is a blocking call.
// This function should only be called once during each WebServer's life time.
func (server *WebServer) Run(ctx context.Context) error {
	server.srv = &http.Server{
		Addr:    "0.0.0.0:" + strconv.Itoa(server.port),
		Handler: server.setupRouter(),
	}

	webServerCtx, shutDownWebServer := context.WithCancel(ctx)
	defer shutDownWebServer()

	server.logger.Info().Int("port", server.port).Msg("Running webserver.")

	serveErr := make(chan error, 1)

	go func() {
		// We always get a non-nil error at the end.
		err := server.srv.ListenAndServe()

		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			shutDownWebServer()
		}
	}()

	<-webServerCtx.Done()
	if err := server.srv.Shutdown(context.Background()); err != nil {
		server.logger.Error().Err(err).Msg("Web server forced to shutdown")
	}

	select {
	case err := <-serveErr:
		return errors.Wrapf(err, "serving on port %d", server.port)
	default:
		return nil
	}
}

// EmptyRequest is for request with empty body
type EmptyRequest struct{}

func (server *WebServer) abortEndpoint(c *gin.Context) {
	if c.Request.ContentLength > 0 {
		var json EmptyRequest

		if err := c.ShouldBindJSON(&json); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	server.logger.Info().Msg("Abort requested over HTTP.")
	server.api.Abort()
	successResponse(c)
}

func (server *WebServer) progressEndpoint(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"progress": Progress{
			Snapshot: server.api.Snapshot(),
			Result:   server.result.Load(),
		},
	})
}

func successResponse(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{true, nil, nil})
}

func (server *WebServer) operationalErrorResponse(c *gin.Context, err error) {
	errorName := "APIError"
	errorDescription := err.Error()

	server.logger.Warn().Err(err).Msg("Rejected operational API request.")

	c.JSON(http.StatusOK, APIResponse{false, &errorName, &errorDescription})
}
