package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/classifier"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

func newTestScorer(t *testing.T) *scoring.Scorer {
	t.Helper()

	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	detector := anomaly.NewDetector(anomaly.DefaultConfig())
	cls := classifier.NewBestEffort(nil, 0, nil)

	return scoring.NewScorer(domain.DefaultScoringConfig(), engine, detector, cls, nil)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	scorer := newTestScorer(t)

	t.Run("StartAndStop", func(t *testing.T) {
		worker := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessTransaction", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		// Track published assessments
		var assessmentReceived atomic.Bool
		var assessmentPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			assessmentPayload = msg.Payload
			assessmentReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		txMsg := TransactionMessage{
			TxID:      "tx-001",
			TenantID:  "tenant-test",
			TraceID:   "trace-001",
			AccountID: "acc-001",
			Amount:    "500.00",
		}

		payload, _ := json.Marshal(txMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicTransactionSubmitted, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !assessmentReceived.Load() {
			t.Fatal("expected assessment to be published")
		}

		var resp domain.AssessmentResponse
		if err := json.Unmarshal(assessmentPayload, &resp); err != nil {
			t.Fatalf("failed to parse assessment: %v", err)
		}

		if resp.TxID != "tx-001" {
			t.Errorf("expected txID 'tx-001', got '%s'", resp.TxID)
		}
		if resp.AccountID != "acc-001" {
			t.Errorf("expected accountID 'acc-001', got '%s'", resp.AccountID)
		}
		if resp.Recommendation != domain.RecommendationApprove {
			t.Errorf("expected recommendation %q, got %q", domain.RecommendationApprove, resp.Recommendation)
		}
	})

	t.Run("NoAlertBelowThreshold", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// With no history the new-recipient rule alone scores 20,
		// below the review threshold
		txMsg := TransactionMessage{
			TxID:            "tx-alert",
			TenantID:        "tenant-alert",
			AccountID:       "acc-alert",
			Amount:          "99999.00",
			ToAccountNumber: "unknown-account",
		}

		payload, _ := json.Marshal(txMsg)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicTransactionSubmitted, payload)

		time.Sleep(100 * time.Millisecond)

		if alertReceived.Load() {
			t.Error("did not expect alert below review threshold")
		}
	})

	t.Run("InvalidAmountRejected", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-bad"},
		}
		w.Start(cfg)
		defer w.Stop()

		var assessmentReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-bad", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			assessmentReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		txMsg := TransactionMessage{
			TxID:      "tx-bad",
			TenantID:  "tenant-bad",
			AccountID: "acc-bad",
			Amount:    "not-a-number",
		}

		payload, _ := json.Marshal(txMsg)
		eventBus.Publish(context.Background(), "tenant-bad", domain.TopicTransactionSubmitted, payload)

		time.Sleep(100 * time.Millisecond)

		if assessmentReceived.Load() {
			t.Error("expected no assessment for invalid amount")
		}
	})

	t.Run("ZeroAmountRejected", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-zero"},
		}
		w.Start(cfg)
		defer w.Stop()

		var assessmentReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-zero", domain.TopicAssessmentCompleted, func(ctx context.Context, msg *domain.Message) error {
			assessmentReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		txMsg := TransactionMessage{
			TxID:      "tx-zero",
			TenantID:  "tenant-zero",
			AccountID: "acc-zero",
			Amount:    "0.00",
		}

		payload, _ := json.Marshal(txMsg)
		eventBus.Publish(context.Background(), "tenant-zero", domain.TopicTransactionSubmitted, payload)

		time.Sleep(100 * time.Millisecond)

		if assessmentReceived.Load() {
			t.Error("expected no assessment for zero amount")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, scorer, nil)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestTransactionMessageParsing(t *testing.T) {
	msg := TransactionMessage{
		TxID:            "tx-123",
		TenantID:        "tenant-001",
		TraceID:         "trace-456",
		AccountID:       "acc-001",
		Amount:          "1234.56",
		Description:     "consulting invoice",
		ToAccountNumber: "acc-900",
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed TransactionMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.TxID != msg.TxID {
		t.Errorf("expected TxID '%s', got '%s'", msg.TxID, parsed.TxID)
	}
	if parsed.Amount != msg.Amount {
		t.Errorf("expected Amount %s, got %s", msg.Amount, parsed.Amount)
	}
	if parsed.ToAccountNumber != msg.ToAccountNumber {
		t.Errorf("expected ToAccountNumber %s, got %s", msg.ToAccountNumber, parsed.ToAccountNumber)
	}
}
