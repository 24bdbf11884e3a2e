package domain

// RuleConfig defines a fraud scoring rule.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate; must produce a boolean
	Expression string `json:"expression"`

	// Score contribution when the expression is true
	Delta int `json:"delta"`

	// Alert appended to the verdict when the rule triggers
	Alert string `json:"alert"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleResult is the output of a rule evaluation.
type RuleResult struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Delta     int    `json:"delta"`
	Alert     string `json:"alert,omitempty"`
	Err       string `json:"err,omitempty"`
	ProcessMs int64  `json:"processMs"`
}
