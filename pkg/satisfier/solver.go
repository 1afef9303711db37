package satisfier

import (
	"strings"

	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
)

// satisfy solves one expression bottom-up, returning the assignments
// that raise it to at least the desired value. Conjunctions solve all
// children; disjunctions pick the cheaper viable branch (fewer enabled
// symbols, ties broken by lexicographic name order); negations are
// handled over ground comparisons only.
func (r *run) satisfy(e *expr.Expr, desired kconfig.Tristate) (assignments, error) {
	// Nothing to change when the expression already holds.
	cur, err := e.Eval()
	if err != nil {
		return nil, err
	}
	if cur >= desired {
		return assignments{}, nil
	}

	switch e.Op {
	case expr.OpConst:
		if !e.Value {
			return nil, kconfig.NewError(kconfig.KindUnsupported,
				"the expression is provably unsatisfiable")
		}
		return assignments{}, nil

	case expr.OpAnd:
		a, err := r.satisfy(e.L, desired)
		if err != nil {
			return nil, err
		}
		b, err := r.satisfy(e.R, desired)
		if err != nil {
			return nil, err
		}
		if err := merge(a, b); err != nil {
			return nil, err
		}
		return a, nil

	case expr.OpOr:
		return r.satisfyOr(e, desired)

	case expr.OpNot:
		return r.satisfyNot(e.L, desired)

	case expr.OpSymbol:
		// Boolean symbols cannot be modules; promote the requirement.
		want := desired
		if e.Sym.Type() == kconfig.TypeBoolean {
			want = kconfig.Yes
		}
		return r.satisfyNeq(e.Sym, kconfig.No, want)

	case expr.OpEq:
		return r.satisfyConstCmp(e, false, desired)

	case expr.OpNeq:
		return r.satisfyConstCmp(e, true, desired)
	}

	return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
		"expression contains unsupported constructs: %s", e)
}

// satisfyOr solves both branches and picks deterministically: the
// branch enabling fewer symbols wins, ties fall to the branch whose
// sorted symbol list orders first.
func (r *run) satisfyOr(e *expr.Expr, desired kconfig.Tristate) (assignments, error) {
	a, errA := r.satisfy(e.L, desired)
	b, errB := r.satisfy(e.R, desired)
	switch {
	case errA != nil && errB != nil:
		return nil, errA
	case errA != nil:
		return b, nil
	case errB != nil:
		return a, nil
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return a, nil
		}
		return b, nil
	}
	if strings.Join(sortedKeys(a), ",") <= strings.Join(sortedKeys(b), ",") {
		return a, nil
	}
	return b, nil
}

// satisfyNot handles negations of ground comparisons; anything deeper
// is outside the deterministic subset.
func (r *run) satisfyNot(inner *expr.Expr, desired kconfig.Tristate) (assignments, error) {
	if inner == nil {
		return nil, kconfig.NewError(kconfig.KindUnsupported, "encountered an invalid expression")
	}
	switch inner.Op {
	case expr.OpEq:
		return r.satisfyConstCmp(inner, true, desired)
	case expr.OpNeq:
		return r.satisfyConstCmp(inner, false, desired)
	case expr.OpSymbol:
		return r.satisfyEq(inner.Sym, kconfig.No)
	case expr.OpAnd, expr.OpOr, expr.OpNot:
		return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
			"complex negated expressions are unsupported: !%s", inner)
	}
	return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
		"expression contains unsupported constructs: !%s", inner)
}

// satisfyConstCmp solves `sym == const` / `sym != const` comparisons.
// Exactly one side must be a constant; comparisons between two live
// symbols admit no single satisfying literal.
func (r *run) satisfyConstCmp(e *expr.Expr, negate bool, desired kconfig.Tristate) (assignments, error) {
	l, rr := e.L.Sym, e.R.Sym
	var live, constant expr.Sym
	switch {
	case l.IsConst() && !rr.IsConst():
		live, constant = rr, l
	case rr.IsConst() && !l.IsConst():
		live, constant = l, rr
	default:
		return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
			"expression contains an ambiguous comparison: %s", e)
	}

	target, err := kconfig.ParseTristate(constant.Name())
	if err != nil {
		return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
			"no single literal satisfies the comparison: %s", e)
	}

	wantEqual := e.Op == expr.OpEq
	if negate {
		wantEqual = !wantEqual
	}
	if wantEqual {
		return r.satisfyEq(live, target)
	}
	return r.satisfyNeq(live, target, desired)
}

// satisfyEq requires a symbol to take exactly the given value.
func (r *run) satisfyEq(s expr.Sym, value kconfig.Tristate) (assignments, error) {
	name := s.Name()
	if name == "" {
		return nil, kconfig.NewError(kconfig.KindUnsupported, "encountered an invalid symbol")
	}
	if err := r.checkReentry(name); err != nil {
		return nil, err
	}
	if value == kconfig.Mod && s.Type() != kconfig.TypeTristate {
		return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
			"expression would require m for non-tristate symbol %s", name)
	}
	return assignments{name: value}, nil
}

// satisfyNeq requires a symbol to differ from the given value, choosing
// the concrete assignment closest to the desired level:
//
//	s != y -> m; s != m -> y; s != n -> desired.
func (r *run) satisfyNeq(s expr.Sym, avoid kconfig.Tristate, desired kconfig.Tristate) (assignments, error) {
	name := s.Name()
	if name == "" {
		return nil, kconfig.NewError(kconfig.KindUnsupported, "encountered an invalid symbol")
	}
	if err := r.checkReentry(name); err != nil {
		return nil, err
	}

	var value kconfig.Tristate
	switch avoid {
	case kconfig.No:
		value = desired
	case kconfig.Mod:
		value = kconfig.Yes
	case kconfig.Yes:
		value = kconfig.Mod
	}
	if value == kconfig.Mod && s.Type() != kconfig.TypeTristate {
		return nil, kconfig.NewErrorf(kconfig.KindUnsupported,
			"expression would require m for non-tristate symbol %s", name)
	}
	return assignments{name: value}, nil
}

// checkReentry fails a branch whose solution would require the symbol
// currently being solved, breaking select/depends cycles.
func (r *run) checkReentry(name string) error {
	if name == r.inProgress {
		return kconfig.NewErrorf(kconfig.KindCycle,
			"solving %s re-entered itself", name).WithSymbol(name)
	}
	return nil
}
