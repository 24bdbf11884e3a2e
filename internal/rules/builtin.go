package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// Builtin rule identifiers.
const (
	RuleLargeAmount  = "large-amount"
	RuleOddHour      = "odd-hour"
	RuleNewRecipient = "new-recipient"
)

// BuiltinRules returns the stock fraud heuristics, in the order their
// alerts appear on a verdict. Tenants may override a builtin by saving
// a rule with the same ID.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          RuleLargeAmount,
			Name:        "Large amount",
			Description: "Amount exceeds five times the recent average for the account",
			Version:     "1.0.0",
			Expression:  "history_len > 0 && mean_recent_amount > 0.0 && amount > 5.0 * mean_recent_amount",
			Delta:       30,
			Alert:       "Unusually large transaction amount",
			Enabled:     true,
		},
		{
			ID:          RuleOddHour,
			Name:        "Odd hour",
			Description: "Transaction scored outside normal activity hours",
			Version:     "1.0.0",
			Expression:  "hour < 6 || hour > 22",
			Delta:       10,
			Alert:       "Transaction at unusual hour",
			Enabled:     true,
		},
		{
			ID:          RuleNewRecipient,
			Name:        "New recipient",
			Description: "Recipient not seen in the account's recent history",
			Version:     "1.0.0",
			Expression:  "has_recipient && is_new_recipient",
			Delta:       20,
			Alert:       "First time transacting with this recipient",
			Enabled:     true,
		},
	}
}
