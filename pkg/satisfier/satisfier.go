// Package satisfier computes the ordered set of prerequisite
// assignments that make a target assignment legal. It handles the
// common tractable dependency shapes deterministically and reports
// ambiguity instead of guessing; it is explicitly not a SAT solver.
package satisfier

import (
	"sort"
	"strings"

	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
)

// Sym is the satisfier's view of a registry symbol.
type Sym interface {
	expr.Sym
	PromptCount() int
	VisibilityExpr() (*expr.Expr, error)
	RevDepExpr() (*expr.Expr, error)
}

// Model is the registry view the satisfier reads. Only the validator
// writes; the satisfier never mutates state.
type Model interface {
	Symbol(name string) (Sym, bool)
}

// Assignment is one prerequisite step of a satisfying configuration.
type Assignment struct {
	Symbol string
	Value  kconfig.Tristate
}

// Options configures a satisfier run.
type Options struct {
	// Desired is the value the target should become assignable to.
	Desired kconfig.Tristate

	// Recursive also satisfies the dependencies of every encountered
	// prerequisite; otherwise only the first level is emitted.
	Recursive bool
}

// Ambiguity describes a symbol whose activation admits several equally
// viable select clauses.
type Ambiguity struct {
	// Symbol is the promptless symbol that must be selected.
	Symbol string
	// Clauses are the rendered alternatives, any one of which would
	// activate the symbol.
	Clauses []string
}

// assignments maps symbol names to required tristate values within one
// solved sub-problem.
type assignments map[string]kconfig.Tristate

// Satisfy computes an ordered list of assignments that, applied first,
// make `symbol = opts.Desired` legal. Dependencies always precede their
// dependents; the target itself is appended last when it carries a
// prompt (promptless targets are activated by the emitted selector
// instead). Symbols the solver cannot order or solve produce cycle,
// ambiguous-choice or unsupported errors.
func Satisfy(model Model, symbol string, opts Options) ([]Assignment, error) {
	if opts.Desired == kconfig.No {
		opts.Desired = kconfig.Yes
	}
	symbol = kconfig.NormalizeName(symbol)
	if _, ok := model.Symbol(symbol); !ok {
		return nil, kconfig.NewError(kconfig.KindUnknownSymbol, "symbol does not exist").
			WithSymbol(symbol)
	}

	r := &run{
		model:        model,
		opts:         opts,
		solved:       make(map[string]assignments),
		dependencies: make(map[string][]string),
		done:         make(map[string]bool),
	}
	if err := r.solveAll(symbol); err != nil {
		return nil, err
	}
	ordered, err := r.order()
	if err != nil {
		return nil, err
	}

	if len(r.ambiguities) > 0 {
		err := kconfig.NewError(kconfig.KindAmbiguousChoice,
			"solution is ambiguous, satisfy at least one of the expressions for each symbol")
		for _, a := range r.ambiguities {
			err = err.WithNote("%s: one of the following must be satisfied", a.Symbol)
			for _, c := range a.Clauses {
				err = err.WithNote("  - %s", c)
			}
		}
		return ordered, err.WithDetail("ambiguities", r.ambiguities)
	}

	// The target appears last when it can be set directly; promptless
	// targets are reached through the selector already emitted.
	if target, ok := model.Symbol(symbol); ok && target.PromptCount() > 0 {
		want := opts.Desired
		if target.Type() == kconfig.TypeBoolean && want == kconfig.Mod {
			want = kconfig.Yes
		}
		if target.Tristate() < want {
			ordered = append(ordered, Assignment{Symbol: symbol, Value: want})
		}
	}
	return ordered, nil
}

// run carries the state of one Satisfy invocation.
type run struct {
	model Model
	opts  Options

	solved       map[string]assignments
	dependencies map[string][]string
	done         map[string]bool
	ambiguities  []Ambiguity
	inProgress   string
}

// solveAll walks the dependency frontier breadth-first from the target,
// solving each encountered symbol's effective visibility expression.
func (r *run) solveAll(symbol string) error {
	queue := []string{symbol}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if r.done[name] {
			continue
		}
		r.done[name] = true

		sym, ok := r.model.Symbol(name)
		if !ok {
			return kconfig.NewError(kconfig.KindUnknownSymbol, "symbol does not exist").
				WithSymbol(name)
		}

		e, err := r.effectiveExpr(sym)
		if err != nil {
			return err
		}

		r.inProgress = name
		solved, err := r.satisfy(e, r.opts.Desired)
		r.inProgress = ""
		if err != nil {
			return withSymbol(err, name)
		}

		var dependsOn []string
		for dep, val := range solved {
			if val != kconfig.No {
				dependsOn = append(dependsOn, dep)
			}
		}
		sort.Strings(dependsOn)

		// Promptless prerequisites cannot be assigned; they stay in
		// the dependency graph (their own selectors get solved) but
		// are removed from the emitted assignment set.
		for dep := range solved {
			if s, ok := r.model.Symbol(dep); ok && s.PromptCount() == 0 {
				delete(solved, dep)
			}
		}
		r.solved[name] = solved

		if !r.opts.Recursive {
			r.dependencies[name] = nil
			break
		}
		queue = append(queue, dependsOn...)
		r.dependencies[name] = dependsOn
	}

	// Merge everything once to surface cross-branch conflicts before
	// any ordering is attempted.
	merged := make(assignments)
	for _, a := range r.solved {
		if err := merge(merged, a); err != nil {
			return err
		}
	}
	return nil
}

// effectiveExpr computes the expression that must hold for the symbol
// to become assignable. Promptless symbols can only be activated by a
// select, so their reverse dependencies are folded in: zero clauses
// means trivially activatable, one clause is solved, several clauses
// are ambiguous and recorded for the aggregate report.
func (r *run) effectiveExpr(sym Sym) (*expr.Expr, error) {
	vis, err := sym.VisibilityExpr()
	if err != nil {
		return nil, err
	}
	if vis == nil {
		vis = expr.Const(true)
	}
	if sym.PromptCount() > 0 {
		return vis, nil
	}

	rev, err := sym.RevDepExpr()
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return expr.And(vis, expr.Const(true)), nil
	}
	clauses := rev.OrClauses()
	switch len(clauses) {
	case 0:
		return expr.And(vis, expr.Const(true)), nil
	case 1:
		return expr.And(vis, clauses[0]), nil
	default:
		// Several selectors could activate this symbol; refusing to
		// guess, but everything solved so far is still a useful hint.
		rendered := make([]string, 0, len(clauses))
		for _, c := range clauses {
			rendered = append(rendered, c.String())
		}
		r.ambiguities = append(r.ambiguities, Ambiguity{Symbol: sym.Name(), Clauses: rendered})
		return expr.And(vis, expr.Const(true)), nil
	}
}

// order emits the solved assignments such that every dependency
// appears before any symbol that depends on it. A deadlocked graph
// means the dependency chain re-entered itself.
func (r *run) order() ([]Assignment, error) {
	var out []Assignment
	emitted := make(map[string]bool)
	remaining := r.dependencies

	for len(remaining) > 0 {
		var fulfilled []string
		next := make(map[string][]string)
		for name, deps := range remaining {
			if len(deps) == 0 {
				fulfilled = append(fulfilled, name)
			} else {
				next[name] = deps
			}
		}
		if len(fulfilled) == 0 {
			names := make([]string, 0, len(next))
			for name := range next {
				names = append(names, name)
			}
			sort.Strings(names)
			return nil, kconfig.NewErrorf(kconfig.KindCycle,
				"dependency chain re-entered itself (%s)", strings.Join(names, " -> "))
		}
		sort.Strings(fulfilled)

		for _, name := range fulfilled {
			for _, key := range sortedKeys(r.solved[name]) {
				if emitted[key] {
					continue
				}
				emitted[key] = true
				out = append(out, Assignment{Symbol: key, Value: r.solved[name][key]})
			}
		}

		isFulfilled := make(map[string]bool, len(fulfilled))
		for _, name := range fulfilled {
			isFulfilled[name] = true
		}
		for name, deps := range next {
			kept := deps[:0]
			for _, d := range deps {
				if !isFulfilled[d] {
					kept = append(kept, d)
				}
			}
			next[name] = kept
		}
		remaining = next
	}
	return out, nil
}

func sortedKeys(a assignments) []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func withSymbol(err error, name string) error {
	if e, ok := err.(*kconfig.Error); ok && e.Symbol == "" {
		return e.WithSymbol(name)
	}
	return err
}

// merge combines two assignment sets, rejecting contradictions.
func merge(dst assignments, src assignments) error {
	for k, v := range src {
		if prev, ok := dst[k]; ok && prev != v {
			return kconfig.NewErrorf(kconfig.KindConflictingAssignment,
				"solver requires both %s and %s for the same symbol", prev, v).
				WithSymbol(k)
		}
		dst[k] = v
	}
	return nil
}
