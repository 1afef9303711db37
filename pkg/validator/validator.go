// Package validator mediates every user assignment to a Kconfig symbol.
// It is the single write path: type coercion, range checks, visibility
// and dependency enforcement, choice-group uniqueness, the kernel-side
// write with recalculation, readback verification and transaction
// recording all happen here, in that order.
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
	"github.com/autokernel/autokernel/pkg/telemetry"
	"github.com/autokernel/autokernel/pkg/tracker"
)

// Sym is the validator's view of a registry symbol.
type Sym interface {
	expr.Sym
	IsChoice() bool
	PromptCount() int
	Visible() kconfig.Tristate
	RevDepTri() kconfig.Tristate
	IntRange() (uint64, uint64)
	SetTristateRaw(kconfig.Tristate) bool
	SetStringRaw(string) bool
	VisibilityExpr() (*expr.Expr, error)
	RevDepExpr() (*expr.Expr, error)
	Value() kconfig.Value
}

// Model is the registry view the validator operates on. The bridge
// satisfies it through the Adapt wrapper; tests substitute fakes.
type Model interface {
	Symbol(name string) (Sym, bool)
	RecalculateAll()
	ChoiceSiblings(Sym) []Sym
}

// Validator enforces the assignment rules of the evaluator.
type Validator struct {
	model   Model
	history *tracker.History
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

// New creates a validator over a registry model and a history log.
func New(model Model, history *tracker.History, logger zerolog.Logger, metrics *telemetry.Metrics) *Validator {
	return &Validator{
		model:   model,
		history: history,
		logger:  logger,
		metrics: metrics,
	}
}

// History returns the assignment log the validator records into.
func (v *Validator) History() *tracker.History {
	return v.history
}

// Model returns the registry model.
func (v *Validator) Model() Model {
	return v.model
}

// Set performs a validated, pinning assignment.
func (v *Validator) Set(name string, value kconfig.Value, origin kconfig.Origin) error {
	return v.set(name, value, origin, true)
}

// Merge performs a validated, non-pinning assignment. The write still
// runs every check and recalc, but does not conflict with later explicit
// assignments.
func (v *Validator) Merge(name string, value kconfig.Value, origin kconfig.Origin) error {
	return v.set(name, value, origin, false)
}

func (v *Validator) set(name string, value kconfig.Value, origin kconfig.Origin, explicit bool) error {
	err := v.doSet(name, value, origin, explicit)
	v.metrics.ObserveAssignment(string(kconfig.KindOf(err)))
	if err != nil {
		return err
	}
	return nil
}

func (v *Validator) doSet(name string, value kconfig.Value, origin kconfig.Origin, explicit bool) error {
	name = kconfig.NormalizeName(name)

	sym, ok := v.model.Symbol(name)
	if !ok || sym.Type() == kconfig.TypeUnknown {
		err := kconfig.NewErrorf(kconfig.KindUnknownSymbol, "symbol does not exist").
			WithSymbol(name).WithOrigin(origin)
		v.record(nil, name, value, origin, explicit, err)
		return err
	}

	before := sym.Value()
	err := v.apply(sym, value, origin, explicit)
	t := tracker.Transaction{
		Symbol:      name,
		Value:       value,
		ValueBefore: before,
		ValueAfter:  sym.Value(),
		Origin:      origin,
		Explicit:    explicit,
		Err:         err,
	}
	v.history.Record(t)
	if err != nil {
		v.logger.Debug().
			Str("symbol", name).
			Str("value", value.String()).
			Str("origin", origin.String()).
			Err(err).
			Msg("Assignment rejected")
		return err
	}
	v.logger.Debug().
		Str("symbol", name).
		Str("value", value.String()).
		Str("origin", origin.String()).
		Msg("Assignment applied")
	return nil
}

// record logs a transaction for a symbol that failed before its wrapper
// could be resolved.
func (v *Validator) record(sym Sym, name string, value kconfig.Value, origin kconfig.Origin, explicit bool, err error) {
	t := tracker.Transaction{
		Symbol:   name,
		Value:    value,
		Origin:   origin,
		Explicit: explicit,
		Err:      err,
	}
	if sym != nil {
		t.ValueBefore = sym.Value()
		t.ValueAfter = sym.Value()
	}
	v.history.Record(t)
}

// apply runs validation steps 2-7 for an existing symbol.
func (v *Validator) apply(sym Sym, value kconfig.Value, origin kconfig.Origin, explicit bool) error {
	plan, err := v.coerce(sym, value)
	if err != nil {
		return err.WithOrigin(origin)
	}

	if err := v.history.CheckPin(sym.Name(), value, origin, explicit); err != nil {
		return err
	}

	if sym.IsConst() {
		return kconfig.NewError(kconfig.KindAssignmentRejected, "symbol is constant").
			WithSymbol(sym.Name()).WithOrigin(origin)
	}
	if sym.IsChoice() {
		return kconfig.NewError(kconfig.KindAssignmentRejected,
			"choice groups cannot be set directly, assign a member instead").
			WithSymbol(sym.Name()).WithOrigin(origin)
	}

	if plan.tristate {
		if err := v.checkTristateBounds(sym, plan.tri, origin); err != nil {
			return err
		}
	} else if sym.Visible() == kconfig.No {
		err := kconfig.NewError(kconfig.KindUnmetDependencies,
			"symbol is not visible, its dependencies are unmet").
			WithSymbol(sym.Name()).WithOrigin(origin)
		if vis, verr := sym.VisibilityExpr(); verr == nil && vis != nil {
			err = err.WithNote("dependency expression: %s", vis)
			for _, clause := range vis.FalseClauses() {
				err = err.WithNote("currently false: %s", clause)
			}
		}
		return err
	}

	demoted, err := v.demoteChoiceSiblings(sym, plan)
	if err != nil {
		return err
	}

	accepted := false
	if plan.tristate {
		accepted = sym.SetTristateRaw(plan.tri)
	} else {
		accepted = sym.SetStringRaw(plan.str)
	}
	if !accepted {
		v.restoreSiblings(demoted)
		return kconfig.NewError(kconfig.KindAssignmentRejected,
			"value was rejected by Kconfig").
			WithSymbol(sym.Name()).WithOrigin(origin).
			WithDetail("value", value.String())
	}

	v.model.RecalculateAll()

	if err := v.verifyReadback(sym, plan, origin); err != nil {
		v.restoreSiblings(demoted)
		v.model.RecalculateAll()
		return err
	}
	return nil
}

// setPlan is the coerced write: either a tristate or a string write.
type setPlan struct {
	tristate bool
	tri      kconfig.Tristate
	str      string
}

// coerce validates a raw value against the symbol's type and declared
// ranges and produces the concrete write.
func (v *Validator) coerce(sym Sym, value kconfig.Value) (setPlan, *kconfig.Error) {
	name := sym.Name()
	switch sym.Type() {
	case kconfig.TypeBoolean:
		switch value.Kind {
		case kconfig.KindAuto:
			if value.Str != "y" && value.Str != "n" {
				return setPlan{}, kconfig.NewErrorf(kconfig.KindInvalidValue,
					"invalid boolean %q (valid values are: n, y)", value.Str).WithSymbol(name)
			}
			t, _ := kconfig.ParseTristate(value.Str)
			return setPlan{tristate: true, tri: t}, nil
		case kconfig.KindBoolean:
			return setPlan{tristate: true, tri: kconfig.TristateFromBool(value.Bool)}, nil
		case kconfig.KindTristate:
			if value.Tri == kconfig.Mod {
				return setPlan{}, kconfig.NewError(kconfig.KindInvalidValue,
					"invalid boolean \"m\" (valid values are: n, y)").WithSymbol(name)
			}
			return setPlan{tristate: true, tri: value.Tri}, nil
		}

	case kconfig.TypeTristate:
		switch value.Kind {
		case kconfig.KindAuto:
			t, err := kconfig.ParseTristate(value.Str)
			if err != nil {
				return setPlan{}, kconfig.WrapError(kconfig.KindInvalidValue,
					"invalid tristate", err).WithSymbol(name)
			}
			return setPlan{tristate: true, tri: t}, nil
		case kconfig.KindBoolean:
			return setPlan{tristate: true, tri: kconfig.TristateFromBool(value.Bool)}, nil
		case kconfig.KindTristate:
			return setPlan{tristate: true, tri: value.Tri}, nil
		}

	case kconfig.TypeInt:
		var n uint64
		switch value.Kind {
		case kconfig.KindAuto:
			parsed, err := strconv.ParseUint(value.Str, 10, 64)
			if err != nil {
				return setPlan{}, kconfig.NewErrorf(kconfig.KindInvalidValue,
					"%q cannot be parsed as an integer", value.Str).WithSymbol(name)
			}
			n = parsed
		case kconfig.KindInt, kconfig.KindNumber:
			n = value.Num
		default:
			return setPlan{}, kconfig.NewError(kconfig.KindInvalidValue,
				"incompatible value type for int symbol").WithSymbol(name)
		}
		if err := v.checkRange(sym, n, false); err != nil {
			return setPlan{}, err
		}
		return setPlan{str: strconv.FormatUint(n, 10)}, nil

	case kconfig.TypeHex:
		var n uint64
		switch value.Kind {
		case kconfig.KindAuto:
			if !strings.HasPrefix(value.Str, "0x") && !strings.HasPrefix(value.Str, "0X") {
				return setPlan{}, kconfig.NewErrorf(kconfig.KindInvalidValue,
					"%q cannot be parsed as a hex integer (missing 0x prefix)", value.Str).WithSymbol(name)
			}
			parsed, err := strconv.ParseUint(value.Str[2:], 16, 64)
			if err != nil {
				return setPlan{}, kconfig.NewErrorf(kconfig.KindInvalidValue,
					"%q cannot be parsed as a hex integer", value.Str).WithSymbol(name)
			}
			n = parsed
		case kconfig.KindHex, kconfig.KindNumber:
			n = value.Num
		default:
			return setPlan{}, kconfig.NewError(kconfig.KindInvalidValue,
				"incompatible value type for hex symbol").WithSymbol(name)
		}
		if err := v.checkRange(sym, n, true); err != nil {
			return setPlan{}, err
		}
		return setPlan{str: fmt.Sprintf("0x%x", n)}, nil

	case kconfig.TypeString:
		switch value.Kind {
		case kconfig.KindAuto, kconfig.KindString:
			return setPlan{str: value.Str}, nil
		}
	}

	return setPlan{}, kconfig.NewErrorf(kconfig.KindInvalidValue,
		"incompatible value type for %s symbol", sym.Type()).WithSymbol(name)
}

// checkRange enforces the declared range properties; (0, 0) means no
// range is declared.
func (v *Validator) checkRange(sym Sym, n uint64, hex bool) *kconfig.Error {
	min, max := sym.IntRange()
	if min == 0 && max == 0 {
		return nil
	}
	if n < min || n > max {
		if hex {
			return kconfig.NewErrorf(kconfig.KindInvalidValue,
				"value must be in range [0x%x, 0x%x]", min, max).WithSymbol(sym.Name())
		}
		return kconfig.NewErrorf(kconfig.KindInvalidValue,
			"value must be in range [%d, %d]", min, max).WithSymbol(sym.Name())
	}
	return nil
}

// checkTristateBounds enforces the visibility ceiling, the reverse
// dependency floor, prompt availability and module support.
func (v *Validator) checkTristateBounds(sym Sym, want kconfig.Tristate, origin kconfig.Origin) error {
	if sym.PromptCount() == 0 {
		err := kconfig.NewError(kconfig.KindAssignmentRejected,
			"symbol has no prompt and cannot be set directly; it is activated by select").
			WithSymbol(sym.Name()).WithOrigin(origin)
		if rev, rerr := sym.RevDepExpr(); rerr == nil && rev != nil {
			err = err.WithNote("satisfy any of the following to activate it:")
			for _, clause := range rev.OrClauses() {
				err = err.WithNote("  - %s", clause)
			}
		}
		return err
	}

	min := sym.RevDepTri()
	max := sym.Visible()

	if want > max {
		err := kconfig.NewErrorf(kconfig.KindUnmetDependencies,
			"cannot set a value above %s, the symbol has unmet dependencies", max).
			WithSymbol(sym.Name()).WithOrigin(origin).
			WithDetail("min", min.String()).
			WithDetail("max", max.String())
		if vis, verr := sym.VisibilityExpr(); verr == nil && vis != nil {
			err = err.WithNote("dependency expression: %s", vis)
			for _, clause := range vis.FalseClauses() {
				err = err.WithNote("currently false: %s", clause)
			}
		}
		return err
	}

	if want < min {
		err := kconfig.NewErrorf(kconfig.KindAssignmentRejected,
			"cannot set a value below %s, the symbol is selected by other symbols", min).
			WithSymbol(sym.Name()).WithOrigin(origin).
			WithDetail("min", min.String()).
			WithDetail("max", max.String())
		if rev, rerr := sym.RevDepExpr(); rerr == nil && rev != nil {
			for _, clause := range rev.OrClauses() {
				err = err.WithNote("selected by: %s", clause)
			}
		}
		return err
	}

	if max < min {
		return kconfig.NewErrorf(kconfig.KindAssignmentRejected,
			"symbol's minimum visibility %s exceeds its maximum %s", min, max).
			WithSymbol(sym.Name()).WithOrigin(origin)
	}

	if want == kconfig.Mod {
		if modules, ok := v.model.Symbol("MODULES"); !ok || modules.Tristate() == kconfig.No {
			return kconfig.NewError(kconfig.KindUnmetDependencies,
				"module support is not enabled (try setting MODULES=y beforehand)").
				WithSymbol(sym.Name()).WithOrigin(origin)
		}
	}
	return nil
}

// demotedSibling remembers a choice member demoted during step 4 so a
// failed write can restore it.
type demotedSibling struct {
	sym  Sym
	prev kconfig.Tristate
}

// demoteChoiceSiblings sets any y-valued sibling of a choice member to
// n before the member itself is raised to y.
func (v *Validator) demoteChoiceSiblings(sym Sym, plan setPlan) ([]demotedSibling, error) {
	if !plan.tristate || plan.tri != kconfig.Yes {
		return nil, nil
	}
	var demoted []demotedSibling
	for _, sib := range v.model.ChoiceSiblings(sym) {
		if sib.Tristate() != kconfig.Yes {
			continue
		}
		prev := sib.Tristate()
		if !sib.SetTristateRaw(kconfig.No) {
			v.restoreSiblings(demoted)
			return nil, kconfig.NewErrorf(kconfig.KindAssignmentRejected,
				"could not release choice member %s", sib.Name()).
				WithSymbol(sym.Name())
		}
		demoted = append(demoted, demotedSibling{sym: sib, prev: prev})
	}
	return demoted, nil
}

func (v *Validator) restoreSiblings(demoted []demotedSibling) {
	for i := len(demoted) - 1; i >= 0; i-- {
		demoted[i].sym.SetTristateRaw(demoted[i].prev)
	}
}

// verifyReadback confirms that the post-recalc value matches what was
// requested. A mismatch means Kconfig silently adjusted the value, most
// often because of a reverse-dependency lower bound.
func (v *Validator) verifyReadback(sym Sym, plan setPlan, origin kconfig.Origin) error {
	if plan.tristate {
		got := sym.Tristate()
		if got == plan.tri {
			return nil
		}
		return kconfig.NewErrorf(kconfig.KindAssignmentRejected,
			"Kconfig kept the value at %s instead of %s", got, plan.tri).
			WithSymbol(sym.Name()).WithOrigin(origin).
			WithDetail("observed", got.String()).
			WithDetail("requested", plan.tri.String())
	}
	got := sym.StringValue()
	if got == plan.str {
		return nil
	}
	return kconfig.NewErrorf(kconfig.KindAssignmentRejected,
		"Kconfig kept the value at %q instead of %q", got, plan.str).
		WithSymbol(sym.Name()).WithOrigin(origin).
		WithDetail("observed", got).
		WithDetail("requested", plan.str)
}
