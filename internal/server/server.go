package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/milcheck/internal/analysis"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

const maxBodyBytes = 1 << 20

const welcomeMessage = "Welcome to the MIL Content Analysis API!"

// Analyzer is the part of the analysis pipeline the server needs.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.AnalysisRequest) (*analysis.AnalysisResponse, error)
}

// Server is the HTTP shell around the analysis pipeline.
type Server struct {
	analyzer Analyzer
	logger   *zap.Logger
	engine   *gin.Engine
}

// New creates a new Server.
func New(analyzer Analyzer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		analyzer: analyzer,
		logger:   logger.Named("server"),
		engine:   gin.New(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.Use(s.requestID(), s.accessLog(), gin.CustomRecovery(s.recover))

	s.engine.GET("/", s.handleWelcome)
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/api/v1/analyze", s.handleAnalyze)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("request_id", c.GetString(RequestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) recover(c *gin.Context, recovered any) {
	s.logger.Error("panic in handler",
		zap.String("request_id", c.GetString(RequestIDHeader)),
		zap.Any("panic", recovered),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}

func (s *Server) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		var b analysis.ValidationBuilder
		b.Add([]string{"body"}, "request body could not be read", analysis.TypeValueError)
		c.JSON(http.StatusUnprocessableEntity, b.Report())
		return
	}

	req, report := decodeRequest(body)
	if report != nil {
		c.JSON(http.StatusUnprocessableEntity, report)
		return
	}

	resp, err := s.analyzer.Analyze(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) writeError(c *gin.Context, err error) {
	var report *analysis.ValidationReport
	if errors.As(err, &report) {
		c.JSON(http.StatusUnprocessableEntity, report)
		return
	}

	s.logger.Error("analysis failed",
		zap.String("request_id", c.GetString(RequestIDHeader)),
		zap.Error(err),
	)
	if errors.Is(err, analysis.ErrScoringUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "analysis temporarily unavailable"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
}

// decodeRequest turns a raw JSON body into a request. Body-level problems
// and a wrong content type are reported together; length checks are left to
// the pipeline.
func decodeRequest(body []byte) (analysis.AnalysisRequest, *analysis.ValidationReport) {
	var b analysis.ValidationBuilder

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		b.Add([]string{"body"}, err.Error(), analysis.TypeJSONDecode)
		return analysis.AnalysisRequest{}, b.Report()
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		b.Add([]string{"body"}, "value is not a valid dict", analysis.TypeDict)
		b.Missing(analysis.ContentLoc)
		return analysis.AnalysisRequest{}, b.Report()
	}

	switch v := obj["content"].(type) {
	case nil:
		b.Missing(analysis.ContentLoc)
	case string:
		return analysis.NewRequest(v), nil
	default:
		b.WrongType(analysis.ContentLoc)
	}
	return analysis.AnalysisRequest{}, b.Report()
}

// Serve runs the server on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, analyzer Analyzer, logger *zap.Logger) error {
	srv := New(analyzer, logger)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", zap.String("addr", "http://"+addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.logger.Info("shutting down server")
		return httpSrv.Shutdown(shutdownCtx)
	}
}
