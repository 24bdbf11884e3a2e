// Package history loads bounded trailing transaction windows for scoring.
package history

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultLimit bounds the window when the caller does not set one.
const DefaultLimit = 50

// Service provides account history windows from the repository.
type Service struct {
	repo  domain.Repository
	limit int
}

// NewService creates a history service. A non-positive limit falls back
// to DefaultLimit.
func NewService(repo domain.Repository, limit int) *Service {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Service{repo: repo, limit: limit}
}

// TrailingWindow returns up to the configured number of prior
// transactions for the account, oldest first.
func (s *Service) TrailingWindow(ctx context.Context, tenantID, accountID string) ([]domain.HistoryEntry, error) {
	if tenantID == "" || accountID == "" {
		return nil, fmt.Errorf("tenantID and accountID are required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	txs, err := s.repo.ListRecentTransactions(ctx, tenantID, accountID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, tx.ToHistoryEntry())
	}
	return entries, nil
}
