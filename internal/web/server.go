package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/marketdata"
	"github.com/marginguard/marginguard/internal/usecase"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Server struct {
	router     *http.ServeMux
	server     *http.Server
	automation *usecase.AutomationService
	plan       *usecase.PlanService
	market     *marketdata.Service
	gate       *usecase.ProtectionGate
	scheduler  *usecase.Scheduler
	execLog    domain.ExecutionLogRepository
	logger     *zap.Logger
}

func NewServer(
	port int,
	automation *usecase.AutomationService,
	plan *usecase.PlanService,
	market *marketdata.Service,
	gate *usecase.ProtectionGate,
	scheduler *usecase.Scheduler,
	execLog domain.ExecutionLogRepository,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:     http.NewServeMux(),
		automation: automation,
		plan:       plan,
		market:     market,
		gate:       gate,
		scheduler:  scheduler,
		execLog:    execLog,
		logger:     logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Automations
	s.router.HandleFunc("POST /automations", s.handleCreateAutomation)
	s.router.HandleFunc("GET /automations", s.handleListAutomations)
	s.router.HandleFunc("GET /automations/{id}", s.handleGetAutomation)
	s.router.HandleFunc("PUT /automations/{id}/config", s.handleUpdateConfig)
	s.router.HandleFunc("POST /automations/{id}/toggle", s.handleToggleAutomation)
	s.router.HandleFunc("DELETE /automations/{id}", s.handleDeleteAutomation)
	s.router.HandleFunc("GET /automations/{id}/logs", s.handleExecutionLogs)

	// Plan capabilities
	s.router.HandleFunc("GET /plans/{tier}/capabilities", s.handleCapabilities)
	s.router.HandleFunc("GET /plans/{tier}/default-config", s.handleDefaultConfig)
	s.router.HandleFunc("POST /plans/{tier}/validate", s.handleValidateConfig)

	// Market data
	s.router.HandleFunc("GET /market", s.handleMarketData)
	s.router.HandleFunc("POST /market/refresh", s.handleForceRefresh)
	s.router.HandleFunc("POST /market/breakers/{provider}/reset", s.handleResetBreaker)

	// Protection gate
	s.router.HandleFunc("GET /gate/{userID}", s.handleGateCheck)

	// Operational
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.Handle("GET /metrics", promhttp.Handler())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
