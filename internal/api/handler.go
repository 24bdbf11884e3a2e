package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// assessmentCacheTTL bounds how long a scored verdict stays hot.
const assessmentCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	scorer  *scoring.Scorer
	history *history.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, scorer *scoring.Scorer, hist *history.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		scorer:  scorer,
		history: hist,
		version: version,
	}
}

// Score handles POST /score requests and runs the pipeline synchronously.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountId is required",
		})
		return
	}
	if req.Transaction.Amount == nil || req.Transaction.Amount.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction.amount is required and must be non-zero",
		})
		return
	}

	tx := req.ToTransaction(tenantID)
	tx.ID = uuid.New().String()

	// Caller-supplied history takes precedence over the stored window
	entries := req.History
	if entries == nil && h.history != nil {
		loaded, err := h.history.TrailingWindow(ctx, tenantID, req.AccountID)
		if err != nil {
			slog.Error("failed to load history",
				"account_id", req.AccountID,
				"error", err,
			)
		} else {
			entries = loaded
		}
	}

	assessment := h.scorer.Score(ctx, tx, entries)
	assessment.Metadata.TraceID = traceID

	// Persist the candidate only after scoring so it never counts
	// toward its own history window
	if h.repo != nil {
		if err := h.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
		if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment", "tx_id", tx.ID, "error", err)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetAssessment(ctx, tenantID, assessment, assessmentCacheTTL); err != nil {
			slog.Debug("failed to cache assessment", "id", assessment.ID, "error", err)
		}
	}

	resp := assessment.ToResponse()

	if h.bus != nil {
		payload, _ := json.Marshal(resp)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
			slog.Debug("failed to publish assessment", "id", assessment.ID, "error", err)
		}
		if verdict.ShouldAlert(assessment) {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
				slog.Debug("failed to publish alert", "id", assessment.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SubmitTransaction handles POST /transactions by publishing the transaction
// for async scoring by the worker pool.
func (h *Handler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountId is required",
		})
		return
	}
	if req.Transaction.Amount == nil || req.Transaction.Amount.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction.amount is required and must be non-zero",
		})
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	txID := uuid.New().String()

	msg := map[string]string{
		"txId":            txID,
		"tenantId":        tenantID,
		"traceId":         traceID,
		"accountId":       req.AccountID,
		"amount":          req.Transaction.Amount.String(),
		"description":     req.Transaction.Description,
		"toAccountNumber": req.Transaction.ToAccountNumber,
	}
	payload, _ := json.Marshal(msg)

	if err := h.bus.Publish(ctx, tenantID, domain.TopicTransactionSubmitted, payload); err != nil {
		slog.Error("failed to publish transaction", "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to submit transaction",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"txId":    txID,
		"traceId": traceID,
		"status":  "accepted",
	})
}

// GetAssessment retrieves an assessment by ID, checking the cache first.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assessmentID := chi.URLParam(r, "id")

	if assessmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.cache != nil {
		cached, err := h.cache.GetAssessment(ctx, tenantID, assessmentID)
		if err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached.ToResponse())
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	assessment, err := h.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetAssessment(ctx, tenantID, assessment, assessmentCacheTTL)
	}

	writeJSON(w, http.StatusOK, assessment.ToResponse())
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ListAccountTransactions returns the trailing transaction window for an account.
func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "id")

	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "account id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}
	if limit == 0 {
		limit = history.DefaultLimit
	}

	transactions, err := h.repo.ListRecentTransactions(ctx, tenantID, accountID, limit)
	if err != nil {
		slog.Error("failed to list transactions", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId":    accountID,
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Delta       int    `json:"delta"`
	Alert       string `json:"alert"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if req.Delta <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "delta must be positive",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Delta:       req.Delta,
		Alert:       req.Alert,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression before persisting
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule soft-deletes a rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteRuleConfig(ctx, GlobalTenantID, ruleID); err != nil {
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload the engine after delete, keeping builtins in place
	if err := h.reloadEngineRules(ctx); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.reloadEngineRules(ctx); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	count := h.engine.RulesCount()
	slog.Info("rules reloaded from database", "count", count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// reloadEngineRules rebuilds the engine rule set: builtins first so their
// alert positions are stable, then database rules, which may override
// builtins in place.
func (h *Handler) reloadEngineRules(ctx context.Context) error {
	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		return err
	}
	combined := append(rules.BuiltinRules(), dbRules...)
	return h.engine.ReloadRules(combined)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
