// Package rules provides the CEL-Go based rule evaluation engine.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based rule evaluation engine.
//
// Rules are kept in load order and evaluated sequentially, so the alerts
// on a verdict always appear in a stable, configured order.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*CompiledRule
	index    map[string]int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine() (*Engine, error) {
	// Create CEL environment with scoring variables
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("mean_recent_amount", cel.DoubleType),
		cel.Variable("stddev_recent_amount", cel.DoubleType),
		cel.Variable("history_len", cel.IntType),
		cel.Variable("has_recipient", cel.BoolType),
		cel.Variable("is_new_recipient", cel.BoolType),
		cel.Variable("description", cel.StringType),
		cel.Variable("to_account", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:   env,
		index: make(map[string]int),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
// A rule with a known ID keeps its position in the evaluation order;
// a new rule is appended at the end.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	if pos, ok := e.index[cfg.ID]; ok {
		e.compiled[pos] = compiled
		return nil
	}

	e.index[cfg.ID] = len(e.compiled)
	e.compiled = append(e.compiled, compiled)

	return nil
}

// LoadRules compiles and loads multiple rules, preserving slice order.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the transaction data for rule evaluation.
type EvaluateInput struct {
	TenantID string
	TxID     string
	Tx       *domain.Transaction
	History  []domain.HistoryEntry
	Features domain.FeatureVector
}

// EvaluateAll evaluates all loaded rules in order.
// A rule that fails to evaluate counts as not triggered.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, len(e.compiled))
	copy(rules, e.compiled)
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	activation := buildActivation(input)

	results := make([]domain.RuleResult, 0, len(rules))
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, e.evaluateRule(rule, activation))
	}

	return results, nil
}

// buildActivation derives the CEL variables from the input.
func buildActivation(input *EvaluateInput) map[string]any {
	fv := input.Features

	toAccount := ""
	description := ""
	if input.Tx != nil {
		toAccount = input.Tx.ToAccountNumber
		description = input.Tx.Description
	}

	return map[string]any{
		"amount":               fv[domain.FeatureAmount],
		"hour":                 int64(fv[domain.FeatureHourOfDay]),
		"weekday":              int64(fv[domain.FeatureDayOfWeek]),
		"mean_recent_amount":   fv[domain.FeatureMeanRecentAmount],
		"stddev_recent_amount": fv[domain.FeatureStdDevRecentAmount],
		"history_len":          int64(len(input.History)),
		"has_recipient":        toAccount != "",
		"is_new_recipient":     isNewRecipient(toAccount, input.History),
		"description":          description,
		"to_account":           toAccount,
	}
}

// isNewRecipient reports whether the recipient is absent from the trailing
// recipient window of the history.
func isNewRecipient(toAccount string, history []domain.HistoryEntry) bool {
	if toAccount == "" {
		return false
	}
	start := len(history) - domain.RecipientWindow
	if start < 0 {
		start = 0
	}
	for _, entry := range history[start:] {
		if entry.ToAccountNumber == toAccount {
			return false
		}
	}
	return true
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID: rule.Config.ID,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if triggered, ok := out.(types.Bool); ok && bool(triggered) {
		result.Triggered = true
		result.Delta = rule.Config.Delta
		result.Alert = rule.Config.Alert
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// ReloadRules clears all existing rules and loads new ones in slice order.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make([]*CompiledRule, 0, len(configs))
	newIndex := make(map[string]int)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}

		if pos, ok := newIndex[cfg.ID]; ok {
			newRules[pos] = compiled
			continue
		}
		newIndex[cfg.ID] = len(newRules)
		newRules = append(newRules, compiled)
	}

	e.compiled = newRules
	e.index = newIndex

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations in
// evaluation order.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	e.index = make(map[string]int)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
