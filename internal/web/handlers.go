package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/usecase"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// parseTier resolves the {tier} path segment, writing a 400 on failure.
func (s *Server) parseTier(w http.ResponseWriter, r *http.Request) (domain.Tier, bool) {
	tier, ok := domain.ParseTier(r.PathValue("tier"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown tier "+r.PathValue("tier"))
	}
	return tier, ok
}

type automationView struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	AccountID string               `json:"account_id"`
	Tier      string               `json:"tier"`
	IsActive  bool                 `json:"is_active"`
	Config    domain.Configuration `json:"config"`
}

func viewOf(a *domain.Automation) automationView {
	return automationView{
		ID:        a.ID,
		UserID:    a.UserID,
		AccountID: a.AccountID,
		Tier:      a.Tier.String(),
		IsActive:  a.IsActive,
		Config:    a.Config,
	}
}

func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string               `json:"user_id"`
		AccountID string               `json:"account_id"`
		Tier      string               `json:"tier"`
		Config    domain.Configuration `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier, ok := domain.ParseTier(req.Tier)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown tier "+req.Tier)
		return
	}
	if req.UserID == "" || req.AccountID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id and account_id are required")
		return
	}

	a, err := s.automation.Create(r.Context(), req.UserID, req.AccountID, tier, req.Config)
	if err != nil {
		s.writeAutomationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, viewOf(a))
}

func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	automations, err := s.automation.ListByUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("Failed to list automations", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list automations")
		return
	}
	views := make([]automationView, 0, len(automations))
	for _, a := range automations {
		views = append(views, viewOf(a))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	a, err := s.automation.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAutomationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(a))
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.automation.UpdateConfig(r.Context(), r.PathValue("id"), cfg)
	if err != nil {
		s.writeAutomationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(a))
}

func (s *Server) handleToggleAutomation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := s.automation.SetActive(r.Context(), r.PathValue("id"), req.Active)
	if err != nil {
		s.writeAutomationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(a))
}

func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	if err := s.automation.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeAutomationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExecutionLogs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	logs, err := s.execLog.ListExecutionLogs(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.logger.Error("Failed to list execution logs", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list execution logs")
		return
	}
	s.writeJSON(w, http.StatusOK, logs)
}

func (s *Server) writeAutomationError(w http.ResponseWriter, err error) {
	var cfgErr *usecase.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "configuration invalid",
			"reasons": cfgErr.Reasons,
		})
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "automation not found")
	case errors.Is(err, domain.ErrDuplicateAutomation):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("Automation request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	tier, ok := s.parseTier(w, r)
	if !ok {
		return
	}
	caps := domain.CapabilitiesFor(tier)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":                       tier.String(),
		"max_positions":              caps.MaxPositions,
		"supports_individual_config": caps.SupportsIndividualConfig,
		"supports_multiple_modes":    caps.SupportsMultipleModes,
		"supports_advanced_channels": caps.SupportsAdvancedChannels,
		"allowed_actions":            caps.AllowedActions,
		"allowed_modes":              caps.AllowedModes,
		"allowed_channels":           caps.AllowedChannels,
	})
}

func (s *Server) handleDefaultConfig(w http.ResponseWriter, r *http.Request) {
	tier, ok := s.parseTier(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.plan.DefaultConfiguration(tier))
}

func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	tier, ok := s.parseTier(w, r)
	if !ok {
		return
	}
	var cfg domain.Configuration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.writeJSON(w, http.StatusOK, s.plan.Validate(tier, cfg))
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	snap, err := s.market.GetMarketData(r.Context())
	health := s.market.Health()
	resp := map[string]interface{}{
		"health":   health,
		"breakers": s.market.BreakerStates(),
	}
	if err != nil {
		resp["source"] = domain.SourceUnavailable
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp["snapshot"] = snap
	resp["source"] = snap.Source
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.market.ForceRefresh(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if !s.market.ResetBreaker(provider) {
		s.writeError(w, http.StatusNotFound, "unknown provider "+provider)
		return
	}
	s.logger.Info("Breaker reset via API", zap.String("provider", provider))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGateCheck(w http.ResponseWriter, r *http.Request) {
	decision := s.gate.CanExecute(r.Context(), r.PathValue("userID"))
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_schedules": s.scheduler.ActiveCount(),
		"market":           s.market.Health(),
		"breakers":         s.market.BreakerStates(),
	})
}
