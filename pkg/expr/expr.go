// Package expr models Kconfig dependency and visibility expressions as
// owned trees. Leaves carry stable symbol views rather than references
// back into the registry, so trees survive recalculation and cyclic
// dependency graphs cannot keep symbols alive.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// Sym is the view of a symbol an expression leaf needs: identity, type
// and current value. The bridge's symbol wrapper implements it; tests
// substitute fakes.
type Sym interface {
	Name() string
	Type() kconfig.SymbolType
	Tristate() kconfig.Tristate
	StringValue() string
	IsConst() bool
}

// Op discriminates expression nodes.
type Op uint8

const (
	// OpConst is a constant truth value.
	OpConst Op = iota
	// OpSymbol references a symbol; evaluates to its tristate.
	OpSymbol
	// OpNot negates its left child on the n/m/y lattice.
	OpNot
	// OpAnd is the lattice minimum of both children.
	OpAnd
	// OpOr is the lattice maximum of both children.
	OpOr
	// OpEq compares two symbol leaves for equality.
	OpEq
	// OpNeq compares two symbol leaves for inequality.
	OpNeq
	// OpLt is a strict less-than comparison.
	OpLt
	// OpLe is a less-or-equal comparison.
	OpLe
	// OpGt is a strict greater-than comparison.
	OpGt
	// OpGe is a greater-or-equal comparison.
	OpGe
	// OpRange is a numeric range property expression.
	OpRange
	// OpList is a choice member list expression.
	OpList
)

// Expr is one node of an expression tree. Comparison nodes hold symbol
// leaves in L and R; And/Or/Not hold sub-expressions.
type Expr struct {
	Op    Op
	Value bool // OpConst only
	Sym   Sym  // OpSymbol only
	L     *Expr
	R     *Expr
}

// Const returns a constant expression.
func Const(v bool) *Expr { return &Expr{Op: OpConst, Value: v} }

// Symbol returns a symbol leaf.
func Symbol(s Sym) *Expr { return &Expr{Op: OpSymbol, Sym: s} }

// Not negates an expression.
func Not(e *Expr) *Expr { return &Expr{Op: OpNot, L: e} }

// And conjoins two expressions. A nil side is treated as absent.
func And(l, r *Expr) *Expr {
	if l == nil {
		return r
	}
	if r == nil {
		return l
	}
	return &Expr{Op: OpAnd, L: l, R: r}
}

// Or disjoins two expressions. A nil side is treated as absent.
func Or(l, r *Expr) *Expr {
	if l == nil {
		return r
	}
	if r == nil {
		return l
	}
	return &Expr{Op: OpOr, L: l, R: r}
}

// Compare builds a comparison node over two symbol leaves.
func Compare(op Op, l, r Sym) *Expr {
	return &Expr{Op: op, L: Symbol(l), R: Symbol(r)}
}

// Eval evaluates the expression to a tristate following Kconfig
// semantics: And is min, Or is max, Not is y-a; tristate comparisons use
// the n<m<y ordering, int/hex compare numerically and strings compare
// lexicographically. List and Range nodes are outside the evaluable
// subset and yield an unsupported error.
func (e *Expr) Eval() (kconfig.Tristate, error) {
	if e == nil {
		return kconfig.Yes, nil
	}
	switch e.Op {
	case OpConst:
		return kconfig.TristateFromBool(e.Value), nil
	case OpSymbol:
		return symTristate(e.Sym), nil
	case OpNot:
		v, err := e.L.Eval()
		if err != nil {
			return kconfig.No, err
		}
		return v.Not(), nil
	case OpAnd:
		l, err := e.L.Eval()
		if err != nil {
			return kconfig.No, err
		}
		r, err := e.R.Eval()
		if err != nil {
			return kconfig.No, err
		}
		return l.Min(r), nil
	case OpOr:
		l, err := e.L.Eval()
		if err != nil {
			return kconfig.No, err
		}
		r, err := e.R.Eval()
		if err != nil {
			return kconfig.No, err
		}
		return l.Max(r), nil
	case OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe:
		return e.evalComparison()
	}
	return kconfig.No, kconfig.NewErrorf(kconfig.KindUnsupported,
		"expression contains unsupported constructs: %s", e)
}

func (e *Expr) evalComparison() (kconfig.Tristate, error) {
	l, r := e.L, e.R
	if l == nil || r == nil || l.Op != OpSymbol || r.Op != OpSymbol {
		return kconfig.No, kconfig.NewErrorf(kconfig.KindUnsupported,
			"comparison over non-symbol operands: %s", e)
	}
	cmp, err := compareSyms(l.Sym, r.Sym)
	if err != nil {
		return kconfig.No, err
	}
	var res bool
	switch e.Op {
	case OpEq:
		res = cmp == 0
	case OpNeq:
		res = cmp != 0
	case OpLt:
		res = cmp < 0
	case OpLe:
		res = cmp <= 0
	case OpGt:
		res = cmp > 0
	case OpGe:
		res = cmp >= 0
	}
	return kconfig.TristateFromBool(res), nil
}

// symTristate projects a symbol's current value onto the tristate
// lattice: tristate and boolean symbols use their value directly, other
// types are n iff empty or zero.
func symTristate(s Sym) kconfig.Tristate {
	switch s.Type() {
	case kconfig.TypeBoolean, kconfig.TypeTristate:
		return s.Tristate()
	case kconfig.TypeInt, kconfig.TypeHex:
		v := s.StringValue()
		if v == "" || v == "0" || v == "0x0" {
			return kconfig.No
		}
		return kconfig.Yes
	default:
		if s.StringValue() == "" {
			return kconfig.No
		}
		return kconfig.Yes
	}
}

// compareSyms orders two symbols per their common type. Constant
// symbols (y/m/n and literal values) carry their literal as both name
// and string value, matching the kernel's representation.
func compareSyms(a, b Sym) (int, error) {
	ta, tb := a.Type(), b.Type()
	switch {
	case isTristateLike(ta) || isTristateLike(tb):
		va, err := tristateOperand(a)
		if err != nil {
			return 0, err
		}
		vb, err := tristateOperand(b)
		if err != nil {
			return 0, err
		}
		return int(va) - int(vb), nil
	case ta == kconfig.TypeInt || tb == kconfig.TypeInt:
		va, err := strconv.ParseInt(operandString(a), 10, 64)
		if err != nil {
			return 0, kconfig.WrapError(kconfig.KindUnsupported, "non-numeric int operand", err)
		}
		vb, err := strconv.ParseInt(operandString(b), 10, 64)
		if err != nil {
			return 0, kconfig.WrapError(kconfig.KindUnsupported, "non-numeric int operand", err)
		}
		return compareInt(va, vb), nil
	case ta == kconfig.TypeHex || tb == kconfig.TypeHex:
		va, err := parseHexOperand(operandString(a))
		if err != nil {
			return 0, err
		}
		vb, err := parseHexOperand(operandString(b))
		if err != nil {
			return 0, err
		}
		return compareInt(va, vb), nil
	default:
		return strings.Compare(operandString(a), operandString(b)), nil
	}
}

func isTristateLike(t kconfig.SymbolType) bool {
	return t == kconfig.TypeBoolean || t == kconfig.TypeTristate
}

// tristateOperand reads a comparison operand as a tristate. Constant
// symbols named n/m/y parse by name even though their type is unknown.
func tristateOperand(s Sym) (kconfig.Tristate, error) {
	if isTristateLike(s.Type()) {
		return s.Tristate(), nil
	}
	if t, err := kconfig.ParseTristate(s.Name()); err == nil {
		return t, nil
	}
	return kconfig.No, kconfig.NewErrorf(kconfig.KindUnsupported,
		"symbol %s is not comparable to a tristate", s.Name())
}

func operandString(s Sym) string {
	if s.IsConst() {
		return s.Name()
	}
	return s.StringValue()
}

func parseHexOperand(v string) (int64, error) {
	v = strings.TrimPrefix(strings.ToLower(v), "0x")
	n, err := strconv.ParseInt(v, 16, 64)
	if err != nil {
		return 0, kconfig.WrapError(kconfig.KindUnsupported, "non-numeric hex operand", err)
	}
	return n, nil
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// AndClauses splits a conjunction into its flattened conjuncts. A
// non-And expression is its own single clause.
func (e *Expr) AndClauses() []*Expr {
	if e == nil {
		return nil
	}
	if e.Op != OpAnd {
		return []*Expr{e}
	}
	return append(e.L.AndClauses(), e.R.AndClauses()...)
}

// OrClauses splits a disjunction into its flattened disjuncts.
func (e *Expr) OrClauses() []*Expr {
	if e == nil {
		return nil
	}
	if e.Op != OpOr {
		return []*Expr{e}
	}
	return append(e.L.OrClauses(), e.R.OrClauses()...)
}

// FalseClauses returns the top-level conjuncts that currently evaluate
// to n; these are the sub-expressions cited by unmet-dependency
// diagnostics. Clauses that cannot be evaluated are included as-is.
func (e *Expr) FalseClauses() []*Expr {
	var out []*Expr
	for _, c := range e.AndClauses() {
		v, err := c.Eval()
		if err != nil || v == kconfig.No {
			out = append(out, c)
		}
	}
	return out
}

// String renders the expression in Kconfig notation. Chains of the same
// associative operator print without redundant parentheses.
func (e *Expr) String() string {
	var sb strings.Builder
	e.render(&sb, opOther)
	return sb.String()
}

type renderCtx uint8

const (
	opOther renderCtx = iota
	opInAnd
	opInOr
)

func (e *Expr) render(sb *strings.Builder, parent renderCtx) {
	if e == nil {
		sb.WriteString("true")
		return
	}
	switch e.Op {
	case OpAnd:
		if parent != opInAnd {
			sb.WriteByte('(')
		}
		e.L.render(sb, opInAnd)
		sb.WriteString(" && ")
		e.R.render(sb, opInAnd)
		if parent != opInAnd {
			sb.WriteByte(')')
		}
	case OpOr:
		if parent != opInOr {
			sb.WriteByte('(')
		}
		e.L.render(sb, opInOr)
		sb.WriteString(" || ")
		e.R.render(sb, opInOr)
		if parent != opInOr {
			sb.WriteByte(')')
		}
	case OpNot:
		sb.WriteByte('!')
		e.L.render(sb, opOther)
	case OpConst:
		sb.WriteString(strconv.FormatBool(e.Value))
	case OpSymbol:
		sb.WriteString(leafName(e.Sym))
	case OpEq, OpNeq, OpLt, OpLe, OpGt, OpGe:
		fmt.Fprintf(sb, "(%s %s %s)", leafName(e.L.Sym), cmpToken(e.Op), leafName(e.R.Sym))
	case OpRange:
		fmt.Fprintf(sb, "[%s, %s]", leafName(e.L.Sym), leafName(e.R.Sym))
	case OpList:
		sb.WriteString("<list>")
	}
}

func cmpToken(op Op) string {
	switch op {
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	}
	return "?"
}

func leafName(s Sym) string {
	if s == nil {
		return "<nil>"
	}
	if n := s.Name(); n != "" {
		return n
	}
	return "<choice>"
}
