// Package httpapi is the gin adapter over the reconciliation subsystem's
// operations. Handlers translate requests into service calls and wrap the
// outcome in a structured success/error envelope; the presentation layer
// decides how to render manual-review flags versus hard failures.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/montesion/reconciliation/internal/ingest"
	"github.com/montesion/reconciliation/internal/intake"
	"github.com/montesion/reconciliation/internal/receipts"
	"github.com/montesion/reconciliation/internal/reconcile"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP adapter.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	pipeline   *ingest.Pipeline
	analyzer   *receipts.Analyzer
	reconciler *reconcile.Service
	intake     *intake.Service
	receiptDir string
	logger     *zap.Logger
}

// NewServer wires the routes over the subsystem services. receiptDir is
// the storage prefix anonymous uploads are written under.
func NewServer(
	config Config,
	pipeline *ingest.Pipeline,
	analyzer *receipts.Analyzer,
	reconciler *reconcile.Service,
	intakeService *intake.Service,
	logger *zap.Logger,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware())

	s := &Server{
		config:     config,
		router:     router,
		pipeline:   pipeline,
		analyzer:   analyzer,
		reconciler: reconciler,
		intake:     intakeService,
		receiptDir: "anonymous",
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "reconciliation",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	api := s.router.Group("/api/v1")
	{
		api.POST("/bank-reports", s.handleInitReport)
		api.POST("/bank-reports/:id/chunks", s.handleProcessChunk)
		api.POST("/bank-reports/:id/finalize", s.handleFinalizeReport)
		api.POST("/bank-reports/upload", s.handleUploadWorkbook)
		api.GET("/bank-transactions", s.handleListTransactions)
		api.POST("/forms/:id/analyze-receipts", s.handleAnalyzeReceipts)
		api.POST("/payments/:id/reconcile", s.handleReconcile)
		api.GET("/financial-summary", s.handleFinancialSummary)
		api.POST("/public/payments", s.handleAnonymousPayment)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
