package bridge

import (
	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
)

// Symbol flag bits, mirroring the kernel's SYMBOL_* constants. Only the
// bits the evaluator inspects are named.
const (
	flagConst  = 0x0001
	flagChoice = 0x0010
)

// Symbol wraps one native Kconfig symbol. It implements expr.Sym, so
// expression leaves and registry consumers share one view. All value
// mutation goes through the raw setters, which only the validator
// calls.
type Symbol struct {
	bridge *Bridge
	handle SymbolHandle

	name    string
	symType kconfig.SymbolType
}

// Handle returns the native handle used to reach back into the bridge.
func (s *Symbol) Handle() SymbolHandle { return s.handle }

// Name returns the symbol name, empty for anonymous choice groups.
func (s *Symbol) Name() string { return s.name }

// Type returns the declared symbol type.
func (s *Symbol) Type() kconfig.SymbolType { return s.symType }

// IsConst reports whether the symbol is one of the constant value
// carriers (y/m/n and literal operands).
func (s *Symbol) IsConst() bool {
	return s.bridge.vt.symGetFlags(s.handle)&flagConst != 0
}

// IsChoice reports whether the symbol is a choice group head.
func (s *Symbol) IsChoice() bool {
	return s.bridge.vt.symGetFlags(s.handle)&flagChoice != 0
}

// Tristate returns the current tristate value.
func (s *Symbol) Tristate() kconfig.Tristate {
	return kconfig.Tristate(s.bridge.vt.symGetTristate(s.handle))
}

// StringValue returns the current value in its string form.
func (s *Symbol) StringValue() string {
	return s.bridge.vt.symGetStringValue(s.handle)
}

// Visible recalculates the symbol and returns its prompt visibility,
// the upper bound on user-assignable values.
func (s *Symbol) Visible() kconfig.Tristate {
	return kconfig.Tristate(s.bridge.vt.symGetVisible(s.handle))
}

// RevDepTri returns the evaluated reverse-dependency tristate, the
// lower bound select statements impose on the value.
func (s *Symbol) RevDepTri() kconfig.Tristate {
	return kconfig.Tristate(s.bridge.vt.symGetRevDep(s.handle))
}

// PromptCount returns the number of prompts attached to the symbol.
// Symbols without prompts cannot be set directly.
func (s *Symbol) PromptCount() int {
	return int(s.bridge.vt.symPromptCount(s.handle))
}

// Prompts returns the prompt texts attached to the symbol.
func (s *Symbol) Prompts() ([]string, error) {
	raw := s.bridge.vt.takeCString(s.bridge.vt.promptsJSON(s.handle))
	return decodeStringList(raw)
}

// IntRange returns the declared [min, max] for an int/hex symbol;
// (0, 0) means unbounded.
func (s *Symbol) IntRange() (uint64, uint64) {
	return s.bridge.vt.symIntGetMin(s.handle), s.bridge.vt.symIntGetMax(s.handle)
}

// Recalculate re-evaluates the symbol's value from its current inputs.
func (s *Symbol) Recalculate() {
	s.bridge.vt.symCalcValue(s.handle)
}

// SetTristateRaw writes a tristate through Kconfig's own setter and
// reports whether Kconfig accepted the value. No validation happens
// here; the validator is the single mediated entry point.
func (s *Symbol) SetTristateRaw(v kconfig.Tristate) bool {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	return s.bridge.vt.symSetTristate(s.handle, int32(v)) != 0
}

// SetStringRaw writes a string value through Kconfig's own setter and
// reports whether Kconfig accepted the value.
func (s *Symbol) SetStringRaw(v string) bool {
	s.bridge.mu.Lock()
	defer s.bridge.mu.Unlock()
	return s.bridge.vt.symSetStringValue(s.handle, v) != 0
}

// VisibilityExpr returns the effective visibility expression: the
// direct dependencies AND-ed with the OR of all prompt guards. A nil
// tree means unconditionally visible.
func (s *Symbol) VisibilityExpr() (*expr.Expr, error) {
	raw := s.bridge.vt.takeCString(s.bridge.vt.visibilityExprJSON(s.handle))
	return s.bridge.decodeExpr(raw)
}

// RevDepExpr returns the reverse-dependency expression formed by all
// select statements pointing at this symbol, or nil if none exist.
func (s *Symbol) RevDepExpr() (*expr.Expr, error) {
	raw := s.bridge.vt.takeCString(s.bridge.vt.revDepExprJSON(s.handle))
	return s.bridge.decodeExpr(raw)
}

// ImpliedExpr returns the weak-select expression, or nil.
func (s *Symbol) ImpliedExpr() (*expr.Expr, error) {
	raw := s.bridge.vt.takeCString(s.bridge.vt.impliedExprJSON(s.handle))
	return s.bridge.decodeExpr(raw)
}

// Choices returns the member symbols of a choice group in declaration
// order. Calling it on a non-choice symbol is an error.
func (s *Symbol) Choices() ([]*Symbol, error) {
	if !s.IsChoice() {
		return nil, kconfig.NewErrorf(kconfig.KindBridge,
			"symbol %s is not a choice group", s.name)
	}
	count := s.bridge.vt.choiceSymbols(s.handle, nil)
	if count == 0 {
		return nil, nil
	}
	handles := make([]SymbolHandle, count)
	s.bridge.vt.choiceSymbols(s.handle, &handles[0])

	members := make([]*Symbol, 0, count)
	for _, h := range handles {
		members = append(members, s.bridge.wrapKnown(h))
	}
	return members, nil
}

// Value returns the typed current value.
func (s *Symbol) Value() kconfig.Value {
	switch s.symType {
	case kconfig.TypeBoolean:
		return kconfig.BoolValue(s.Tristate() == kconfig.Yes)
	case kconfig.TypeTristate:
		return kconfig.TriValue(s.Tristate())
	default:
		return kconfig.StringValue(s.StringValue())
	}
}
