// Package worker provides async transaction processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/verdict"
)

// Worker scores submitted transactions from the EventBus.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	scorer  *scoring.Scorer
	history *history.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, scorer *scoring.Scorer, hist *history.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		scorer:  scorer,
		history: hist,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicTransactionSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processTransaction(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionSubmitted,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processTransaction(ctx, msg.TenantID, msg)
}

// TransactionMessage is the message payload for transaction scoring.
type TransactionMessage struct {
	TxID            string `json:"txId,omitempty"`
	TenantID        string `json:"tenantId"`
	TraceID         string `json:"traceId,omitempty"`
	AccountID       string `json:"accountId"`
	Amount          string `json:"amount"`
	Description     string `json:"description,omitempty"`
	ToAccountNumber string `json:"toAccountNumber,omitempty"`
}

// processTransaction scores a transaction through the full pipeline.
func (w *Worker) processTransaction(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if txMsg.TenantID != "" {
		tenantID = txMsg.TenantID
	}

	if txMsg.AccountID == "" {
		return fmt.Errorf("accountId is required")
	}
	if txMsg.Amount == "" {
		return fmt.Errorf("amount is required")
	}

	amount, err := decimal.NewFromString(txMsg.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", txMsg.Amount, err)
	}
	if amount.IsZero() {
		return fmt.Errorf("amount must be non-zero")
	}

	traceID := txMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	txID := txMsg.TxID
	if txID == "" {
		txID = uuid.New().String()
	}

	slog.Debug("processing transaction",
		"tx_id", txID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	now := start.UTC()
	tx := &domain.Transaction{
		ID:              txID,
		TenantID:        tenantID,
		AccountID:       txMsg.AccountID,
		Amount:          amount,
		Description:     txMsg.Description,
		ToAccountNumber: txMsg.ToAccountNumber,
		Timestamp:       now,
		CreatedAt:       now,
	}

	// 1. Load account history
	var entries []domain.HistoryEntry
	if w.history != nil {
		entries, err = w.history.TrailingWindow(ctx, tenantID, txMsg.AccountID)
		if err != nil {
			slog.Error("failed to load history",
				"tx_id", txID,
				"error", err,
			)
			entries = nil
		}
	}

	// 2. Score
	assessment := w.scorer.Score(ctx, tx, entries)
	assessment.Metadata.TraceID = traceID

	// 3. Persist transaction and assessment
	if w.repo != nil {
		if err := w.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			slog.Error("failed to save transaction",
				"tx_id", txID,
				"error", err,
			)
		}
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"tx_id", txID,
				"error", err,
			)
		}
	}

	// 4. Publish assessment
	resultPayload, _ := json.Marshal(assessment.ToResponse())
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment",
			"tx_id", txID,
			"error", err,
		)
	}

	// 5. If alert, publish to alert topic
	if verdict.ShouldAlert(assessment) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"tx_id", txID,
				"error", err,
			)
		}
	}

	slog.Info("transaction processed",
		"tx_id", txID,
		"tenant_id", tenantID,
		"fraud_score", assessment.Verdict.FraudScore,
		"recommendation", assessment.Verdict.Recommendation,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
