package satisfier

import (
	"errors"
	"strings"
	"testing"

	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
)

// fakeSym is an in-memory symbol for satisfier tests.
type fakeSym struct {
	name    string
	typ     kconfig.SymbolType
	tri     kconfig.Tristate
	str     string
	konst   bool
	prompts int
	visExpr *expr.Expr
	revExpr *expr.Expr
}

func (f *fakeSym) Name() string                        { return f.name }
func (f *fakeSym) Type() kconfig.SymbolType            { return f.typ }
func (f *fakeSym) Tristate() kconfig.Tristate          { return f.tri }
func (f *fakeSym) StringValue() string                 { return f.str }
func (f *fakeSym) IsConst() bool                       { return f.konst }
func (f *fakeSym) PromptCount() int                    { return f.prompts }
func (f *fakeSym) VisibilityExpr() (*expr.Expr, error) { return f.visExpr, nil }
func (f *fakeSym) RevDepExpr() (*expr.Expr, error)     { return f.revExpr, nil }

type fakeModel map[string]*fakeSym

func (m fakeModel) Symbol(name string) (Sym, bool) {
	s, ok := m[kconfig.NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return s, true
}

func boolSym(name string) *fakeSym {
	return &fakeSym{name: name, typ: kconfig.TypeBoolean, tri: kconfig.No, str: "n", prompts: 1}
}

func names(steps []Assignment) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Symbol+"="+s.Value.String())
	}
	return out
}

func wantSteps(t *testing.T, steps []Assignment, want ...string) {
	t.Helper()
	got := names(steps)
	if len(got) != len(want) {
		t.Fatalf("Got steps %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Got steps %v, want %v", got, want)
		}
	}
}

func TestSatisfyConjunctionOrdersDependenciesFirst(t *testing.T) {
	// NET has no dependencies; NETDEVICES depends on NET; WLAN depends
	// on NETDEVICES && NET; the target depends on NETDEVICES && WLAN.
	net := boolSym("NET")
	netdev := boolSym("NETDEVICES")
	netdev.visExpr = expr.Symbol(net)
	wlan := boolSym("WLAN")
	wlan.visExpr = expr.And(expr.Symbol(netdev), expr.Symbol(net))
	realtek := boolSym("WLAN_VENDOR_REALTEK")
	realtek.visExpr = expr.And(expr.Symbol(netdev), expr.Symbol(wlan))

	m := fakeModel{"NET": net, "NETDEVICES": netdev, "WLAN": wlan, "WLAN_VENDOR_REALTEK": realtek}
	steps, err := Satisfy(m, "WLAN_VENDOR_REALTEK", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "NET=y", "NETDEVICES=y", "WLAN=y", "WLAN_VENDOR_REALTEK=y")
}

func TestSatisfySimpleChain(t *testing.T) {
	a := boolSym("A")
	b := boolSym("B")
	s := boolSym("S")
	s.visExpr = expr.And(expr.Symbol(a), expr.Symbol(b))

	m := fakeModel{"A": a, "B": b, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "A=y", "B=y", "S=y")
}

func TestSatisfyPromptlessEmitsSelector(t *testing.T) {
	q := boolSym("Q")
	s := boolSym("S")
	s.prompts = 0
	s.revExpr = expr.Symbol(q)

	m := fakeModel{"Q": q, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "Q=y")
}

func TestSatisfyAmbiguousSelectors(t *testing.T) {
	q1 := boolSym("Q1")
	q2 := boolSym("Q2")
	s := boolSym("S")
	s.prompts = 0
	s.revExpr = expr.Or(expr.Symbol(q1), expr.Symbol(q2))

	m := fakeModel{"Q1": q1, "Q2": q2, "S": s}
	_, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	var e *kconfig.Error
	if !errors.As(err, &e) || e.Kind != kconfig.KindAmbiguousChoice {
		t.Fatalf("Expected ambiguous-choice error, got %v", err)
	}
	notes := strings.Join(e.Notes, "\n")
	for _, want := range []string{"Q1", "Q2"} {
		if !strings.Contains(notes, want) {
			t.Errorf("Expected alternatives to list %s, notes: %q", want, notes)
		}
	}
}

func TestSatisfyDisjunctionPicksCheaperBranch(t *testing.T) {
	a := boolSym("A")
	b := boolSym("B")
	c := boolSym("C")
	s := boolSym("S")
	s.visExpr = expr.Or(expr.And(expr.Symbol(b), expr.Symbol(c)), expr.Symbol(a))

	m := fakeModel{"A": a, "B": b, "C": c, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "A=y", "S=y")
}

func TestSatisfyDisjunctionTieBreaksLexicographically(t *testing.T) {
	a := boolSym("A")
	b := boolSym("B")
	s := boolSym("S")
	s.visExpr = expr.Or(expr.Symbol(b), expr.Symbol(a))

	m := fakeModel{"A": a, "B": b, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "A=y", "S=y")
}

func TestSatisfyCycleDetected(t *testing.T) {
	a := boolSym("A")
	b := boolSym("B")
	a.visExpr = expr.Symbol(b)
	b.visExpr = expr.Symbol(a)

	m := fakeModel{"A": a, "B": b}
	_, err := Satisfy(m, "A", Options{Desired: kconfig.Yes, Recursive: true})
	var e *kconfig.Error
	if !errors.As(err, &e) || e.Kind != kconfig.KindCycle {
		t.Fatalf("Expected cycle error, got %v", err)
	}
}

func TestSatisfyAlreadySatisfiedIsEmpty(t *testing.T) {
	a := boolSym("A")
	a.tri, a.str = kconfig.Yes, "y"
	s := boolSym("S")
	s.tri, s.str = kconfig.Yes, "y"
	s.visExpr = expr.Symbol(a)

	m := fakeModel{"A": a, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("Expected nothing to do, got %v", names(steps))
	}
}

func TestSatisfyBooleanPromotesModToYes(t *testing.T) {
	a := boolSym("A")
	s := boolSym("S")
	s.visExpr = expr.Symbol(a)

	m := fakeModel{"A": a, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Mod, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "A=y", "S=y")
}

func TestSatisfyEqualityAgainstConstant(t *testing.T) {
	mode := &fakeSym{name: "MODE", typ: kconfig.TypeTristate, tri: kconfig.No, str: "n", prompts: 1}
	yconst := &fakeSym{name: "y", typ: kconfig.TypeUnknown, str: "y", konst: true}
	s := boolSym("S")
	s.visExpr = expr.Compare(expr.OpEq, mode, yconst)

	m := fakeModel{"MODE": mode, "S": s}
	steps, err := Satisfy(m, "S", Options{Desired: kconfig.Yes, Recursive: true})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "MODE=y", "S=y")
}

func TestSatisfyNonRecursiveStopsAtFirstLevel(t *testing.T) {
	net := boolSym("NET")
	netdev := boolSym("NETDEVICES")
	netdev.visExpr = expr.Symbol(net)
	wlan := boolSym("WLAN")
	wlan.visExpr = expr.Symbol(netdev)

	m := fakeModel{"NET": net, "NETDEVICES": netdev, "WLAN": wlan}
	steps, err := Satisfy(m, "WLAN", Options{Desired: kconfig.Yes, Recursive: false})
	if err != nil {
		t.Fatalf("Satisfy failed: %v", err)
	}
	wantSteps(t, steps, "NETDEVICES=y", "WLAN=y")
}

func TestSatisfyUnknownSymbol(t *testing.T) {
	m := fakeModel{}
	_, err := Satisfy(m, "NO_SUCH", Options{Desired: kconfig.Yes})
	var e *kconfig.Error
	if !errors.As(err, &e) || e.Kind != kconfig.KindUnknownSymbol {
		t.Fatalf("Expected unknown-symbol error, got %v", err)
	}
}

func TestSatisfyUnsupportedShape(t *testing.T) {
	s := boolSym("S")
	s.visExpr = &expr.Expr{Op: expr.OpList}

	m := fakeModel{"S": s}
	_, err := Satisfy(m, "S", Options{Desired: kconfig.Yes})
	var e *kconfig.Error
	if !errors.As(err, &e) || e.Kind != kconfig.KindUnsupported {
		t.Fatalf("Expected unsupported error, got %v", err)
	}
}
