// Package httpserver exposes the ledger, gem, debt and payment services over
// HTTP. Payment-gateway callbacks arrive here as form posts; everything else
// speaks JSON.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/gems"
	"github.com/nagorik/civicledger/pkg/ledger"
	"github.com/nagorik/civicledger/pkg/reconcile"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Config holds the HTTP façade settings.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// Services bundles the domain services the façade fronts.
type Services struct {
	Ledger    *ledger.Service
	Gems      *gems.Service
	Debts     *debt.Service
	Reconcile *reconcile.Service
}

// Server is the assembled gin application.
type Server struct {
	config   Config
	services Services
	logger   *zap.Logger
	router   *gin.Engine
}

// New wires the routes and returns a ready Server.
func New(config Config, services Services, logger *zap.Logger) (*Server, error) {
	if services.Ledger == nil || services.Gems == nil || services.Debts == nil || services.Reconcile == nil {
		return nil, errors.New("all services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{config: config, services: services, logger: logger}
	server.router = server.setupRouter()
	return server, nil
}

// Handler exposes the router for tests and for the HTTP listener.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.config.ListenAddr,
		Handler: server.router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http listening", zap.String("addr", server.config.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(server.config.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	api.POST("/ledger/transactions", server.handleRecordTransaction)
	api.GET("/users/:id/balance", server.handleBalance)
	api.GET("/users/:id/transactions", server.handleListTransactions)

	api.GET("/users/:id/gems", server.handleGemAccount)
	api.POST("/users/:id/gems/adjust", server.handleAdjustGems)
	api.PUT("/users/:id/gems/restriction", server.handleSetRestriction)

	api.GET("/debts/:id", server.handleGetDebt)
	api.POST("/debts/:id/waive", server.handleWaiveDebt)
	api.POST("/users/:id/debts/check", server.handleDebtCheck)

	api.POST("/payments/debt/session", server.handleDebtSession)
	api.POST("/payments/fine/session", server.handleFineSession)
	api.POST("/payments/callback/success", server.handleSuccessCallback)
	api.POST("/payments/callback/fail", server.handleFailCallback)
	api.POST("/payments/callback/cancel", server.handleCancelCallback)

	return router
}
