// Package policy evaluates Rego policies over a generated kernel
// configuration. Policies receive the final symbol assignment as input
// and emit deny messages; error-severity violations fail the check.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Severity classifies a policy violation.
type Severity string

const (
	// SeverityWarning marks violations that should be reviewed but do
	// not fail the check.
	SeverityWarning Severity = "warning"

	// SeverityError marks violations that fail the check.
	SeverityError Severity = "error"
)

// Policy is one Rego policy rule.
type Policy struct {
	// Name is the policy name, derived from the file name.
	Name string `json:"name"`

	// Rego is the policy source.
	Rego string `json:"rego"`

	// Severity applies to every violation the policy emits.
	Severity Severity `json:"severity"`
}

// Violation is one deny message emitted by a policy.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Message is the deny message.
	Message string `json:"message"`

	// Severity is the violation severity.
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating all policies.
type Result struct {
	// Allowed is false when any error-severity violation exists.
	Allowed bool `json:"allowed"`

	// Violations lists every deny message.
	Violations []Violation `json:"violations"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Engine evaluates a set of compiled policies.
type Engine struct {
	policies []preparedPolicy
	logger   zerolog.Logger
}

type preparedPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// NewEngine compiles the given policies.
func NewEngine(ctx context.Context, policies []Policy, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{logger: logger.With().Str("component", "policy-engine").Logger()}
	for _, p := range policies {
		query, err := rego.New(
			rego.Query("data.autokernel.deny"),
			rego.Module(p.Name+".rego", p.Rego),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
		e.policies = append(e.policies, preparedPolicy{policy: p, query: query})
	}
	return e, nil
}

// LoadDir loads every .rego file in a directory as a policy. Files
// whose names end in _warn.rego carry warning severity.
func LoadDir(dir string) ([]Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy directory: %w", err)
	}

	var out []Policy
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".rego")
		severity := SeverityError
		if strings.HasSuffix(name, "_warn") {
			severity = SeverityWarning
		}
		out = append(out, Policy{Name: name, Rego: string(raw), Severity: severity})
	}
	return out, nil
}

// Evaluate runs every policy against the final symbol assignment. The
// input document is {"config": {"NET": "y", ...}, "kernel_version": v}.
func (e *Engine) Evaluate(ctx context.Context, config map[string]string, kernelVersion string) (*Result, error) {
	input := map[string]any{
		"config":         config,
		"kernel_version": kernelVersion,
	}

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}
	for _, pp := range e.policies {
		rs, err := pp.query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", pp.policy.Name, err)
		}
		for _, r := range rs {
			for _, exprResult := range r.Expressions {
				for _, msg := range toMessages(exprResult.Value) {
					v := Violation{
						Policy:   pp.policy.Name,
						Message:  msg,
						Severity: pp.policy.Severity,
					}
					result.Violations = append(result.Violations, v)
					if v.Severity == SeverityError {
						result.Allowed = false
					}
					e.logger.Warn().
						Str("policy", v.Policy).
						Str("severity", string(v.Severity)).
						Msg(v.Message)
				}
			}
		}
	}
	return result, nil
}

// toMessages flattens a deny rule result into its message strings.
func toMessages(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
