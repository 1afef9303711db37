package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/expr"
	"github.com/autokernel/autokernel/pkg/kconfig"
	"github.com/autokernel/autokernel/pkg/tracker"
)

// fakeSym is an in-memory symbol for validator tests. Raw writes apply
// directly unless a clamp simulates a kernel-side refusal.
type fakeSym struct {
	name    string
	typ     kconfig.SymbolType
	tri     kconfig.Tristate
	str     string
	konst   bool
	choice  bool
	prompts int
	visible kconfig.Tristate
	revTri  kconfig.Tristate
	min     uint64
	max     uint64
	visExpr *expr.Expr
	revExpr *expr.Expr

	// clampTri keeps the tristate at this value regardless of writes,
	// simulating a rev-dep lower bound.
	clampTri *kconfig.Tristate
	// rejectWrites makes Kconfig refuse the raw write outright.
	rejectWrites bool
}

func (f *fakeSym) Name() string                        { return f.name }
func (f *fakeSym) Type() kconfig.SymbolType            { return f.typ }
func (f *fakeSym) Tristate() kconfig.Tristate          { return f.tri }
func (f *fakeSym) StringValue() string                 { return f.str }
func (f *fakeSym) IsConst() bool                       { return f.konst }
func (f *fakeSym) IsChoice() bool                      { return f.choice }
func (f *fakeSym) PromptCount() int                    { return f.prompts }
func (f *fakeSym) Visible() kconfig.Tristate           { return f.visible }
func (f *fakeSym) RevDepTri() kconfig.Tristate         { return f.revTri }
func (f *fakeSym) IntRange() (uint64, uint64)          { return f.min, f.max }
func (f *fakeSym) VisibilityExpr() (*expr.Expr, error) { return f.visExpr, nil }
func (f *fakeSym) RevDepExpr() (*expr.Expr, error)     { return f.revExpr, nil }

func (f *fakeSym) SetTristateRaw(v kconfig.Tristate) bool {
	if f.rejectWrites {
		return false
	}
	f.tri = v
	if f.clampTri != nil {
		f.tri = *f.clampTri
	}
	f.str = f.tri.String()
	return true
}

func (f *fakeSym) SetStringRaw(v string) bool {
	if f.rejectWrites {
		return false
	}
	f.str = v
	return true
}

func (f *fakeSym) Value() kconfig.Value {
	switch f.typ {
	case kconfig.TypeBoolean:
		return kconfig.BoolValue(f.tri == kconfig.Yes)
	case kconfig.TypeTristate:
		return kconfig.TriValue(f.tri)
	default:
		return kconfig.StringValue(f.str)
	}
}

// fakeModel is an in-memory registry.
type fakeModel struct {
	syms     map[string]*fakeSym
	siblings map[string][]*fakeSym
}

func (m *fakeModel) Symbol(name string) (Sym, bool) {
	s, ok := m.syms[kconfig.NormalizeName(name)]
	if !ok {
		return nil, false
	}
	return s, true
}

func (m *fakeModel) RecalculateAll() {}

func (m *fakeModel) ChoiceSiblings(s Sym) []Sym {
	var out []Sym
	for _, sib := range m.siblings[s.Name()] {
		out = append(out, sib)
	}
	return out
}

func newTestValidator(syms ...*fakeSym) (*Validator, *fakeModel) {
	m := &fakeModel{syms: make(map[string]*fakeSym), siblings: make(map[string][]*fakeSym)}
	for _, s := range syms {
		m.syms[s.name] = s
	}
	v := New(m, tracker.NewHistory(zerolog.Nop()), zerolog.Nop(), nil)
	return v, m
}

func boolSym(name string) *fakeSym {
	return &fakeSym{
		name: name, typ: kconfig.TypeBoolean,
		tri: kconfig.No, str: "n",
		prompts: 1, visible: kconfig.Yes,
	}
}

func triSym(name string) *fakeSym {
	return &fakeSym{
		name: name, typ: kconfig.TypeTristate,
		tri: kconfig.No, str: "n",
		prompts: 1, visible: kconfig.Yes,
	}
}

func origin(line int) kconfig.Origin {
	return kconfig.Origin{File: "kernel.lua", Line: line}
}

func wantKind(t *testing.T, err error, kind kconfig.ErrorKind) *kconfig.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	var e *kconfig.Error
	if !errors.As(err, &e) {
		t.Fatalf("Expected classified error, got %v", err)
	}
	if e.Kind != kind {
		t.Fatalf("Expected kind %s, got %s (%v)", kind, e.Kind, err)
	}
	return e
}

func TestBooleanRejectsModuleValue(t *testing.T) {
	net := boolSym("NET")
	v, _ := newTestValidator(net)

	err := v.Set("NET", kconfig.Auto("m"), origin(1))
	e := wantKind(t, err, kconfig.KindInvalidValue)
	if want := "n, y"; !contains(e.Message, want) {
		t.Errorf("Expected message to name allowed values %q, got %q", want, e.Message)
	}
}

func TestBooleanAcceptsYes(t *testing.T) {
	net := boolSym("NET")
	v, _ := newTestValidator(net)

	if err := v.Set("NET", kconfig.Auto("y"), origin(1)); err != nil {
		t.Fatalf("Expected assignment to succeed, got %v", err)
	}
	if net.tri != kconfig.Yes {
		t.Errorf("Expected NET=y, got %v", net.tri)
	}
}

func TestIntRange(t *testing.T) {
	loglevel := &fakeSym{
		name: "CONSOLE_LOGLEVEL_DEFAULT", typ: kconfig.TypeInt,
		str: "4", prompts: 1, visible: kconfig.Yes,
		min: 1, max: 7,
	}
	v, _ := newTestValidator(loglevel)

	err := v.Set("CONSOLE_LOGLEVEL_DEFAULT", kconfig.Auto("9"), origin(1))
	e := wantKind(t, err, kconfig.KindInvalidValue)
	if !contains(e.Message, "[1, 7]") {
		t.Errorf("Expected range in message, got %q", e.Message)
	}

	if err := v.Set("CONSOLE_LOGLEVEL_DEFAULT", kconfig.Auto("5"), origin(2)); err != nil {
		t.Fatalf("Expected in-range assignment to succeed, got %v", err)
	}
	if loglevel.str != "5" {
		t.Errorf("Expected value 5, got %q", loglevel.str)
	}
}

func TestHexRequiresPrefix(t *testing.T) {
	base := &fakeSym{
		name: "PHYSICAL_START", typ: kconfig.TypeHex,
		str: "0x100000", prompts: 1, visible: kconfig.Yes,
	}
	v, _ := newTestValidator(base)

	err := v.Set("PHYSICAL_START", kconfig.Auto("100000"), origin(1))
	wantKind(t, err, kconfig.KindInvalidValue)

	if err := v.Set("PHYSICAL_START", kconfig.Auto("0x200000"), origin(2)); err != nil {
		t.Fatalf("Expected hex assignment to succeed, got %v", err)
	}
	if base.str != "0x200000" {
		t.Errorf("Expected 0x200000, got %q", base.str)
	}
}

func TestUnmetDependenciesCitesFalseClauses(t *testing.T) {
	wlan := boolSym("WLAN")
	netdev := boolSym("NETDEVICES")
	realtek := boolSym("WLAN_VENDOR_REALTEK")
	realtek.visible = kconfig.No
	realtek.visExpr = expr.And(expr.Symbol(netdev), expr.Symbol(wlan))

	v, _ := newTestValidator(realtek, wlan, netdev)
	err := v.Set("WLAN_VENDOR_REALTEK", kconfig.Auto("y"), origin(1))
	e := wantKind(t, err, kconfig.KindUnmetDependencies)

	notes := joinNotes(e)
	for _, want := range []string{"NETDEVICES", "WLAN"} {
		if !contains(notes, want) {
			t.Errorf("Expected diagnostic to enumerate %s, notes: %q", want, notes)
		}
	}
}

func TestRevDepFloorRejectsLowering(t *testing.T) {
	usb := triSym("RTLWIFI_USB")
	usb.revTri = kconfig.Yes
	usb.tri, usb.str = kconfig.Yes, "y"

	v, _ := newTestValidator(usb)
	err := v.Set("RTLWIFI_USB", kconfig.Auto("n"), origin(1))
	wantKind(t, err, kconfig.KindAssignmentRejected)
}

func TestPromptlessSymbolCannotBeSetDirectly(t *testing.T) {
	selector := boolSym("RTLWIFI")
	target := triSym("RTLWIFI_USB")
	target.prompts = 0
	target.revExpr = expr.Symbol(selector)

	v, _ := newTestValidator(target, selector)
	err := v.Set("RTLWIFI_USB", kconfig.Auto("y"), origin(1))
	e := wantKind(t, err, kconfig.KindAssignmentRejected)
	if !contains(e.Message, "select") {
		t.Errorf("Expected explanation mentioning select, got %q", e.Message)
	}
	if !contains(joinNotes(e), "RTLWIFI") {
		t.Errorf("Expected notes to list the selector, got %q", joinNotes(e))
	}
}

func TestConflictingAssignmentCitesBothSites(t *testing.T) {
	net := boolSym("NET")
	v, _ := newTestValidator(net)

	if err := v.Set("NET", kconfig.Auto("y"), origin(3)); err != nil {
		t.Fatalf("First assignment failed: %v", err)
	}
	err := v.Set("NET", kconfig.Auto("n"), origin(9))
	e := wantKind(t, err, kconfig.KindConflictingAssignment)
	if e.Origin == nil || e.Origin.Line != 9 {
		t.Error("Expected the conflict to carry the second site")
	}
	if !contains(joinNotes(e), "kernel.lua:3") {
		t.Errorf("Expected the conflict to cite the first site, notes: %q", joinNotes(e))
	}
}

func TestDuplicateSameValueSucceeds(t *testing.T) {
	net := boolSym("NET")
	v, _ := newTestValidator(net)

	if err := v.Set("NET", kconfig.Auto("y"), origin(1)); err != nil {
		t.Fatalf("First assignment failed: %v", err)
	}
	if err := v.Set("NET", kconfig.Auto("y"), origin(2)); err != nil {
		t.Errorf("Expected duplicate same-value assignment to pass, got %v", err)
	}
}

func TestMergeDoesNotPin(t *testing.T) {
	net := boolSym("NET")
	v, _ := newTestValidator(net)

	if err := v.Merge("NET", kconfig.Auto("y"), kconfig.Origin{File: "defconfig", Line: 10}); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := v.Set("NET", kconfig.Auto("n"), origin(1)); err != nil {
		t.Errorf("Expected explicit override of merged value to pass, got %v", err)
	}
}

func TestReadbackMismatchIsRejected(t *testing.T) {
	usb := triSym("RTLWIFI_USB")
	clamp := kconfig.Yes
	usb.clampTri = &clamp
	usb.tri, usb.str = kconfig.Yes, "y"
	usb.revTri = kconfig.No // floor check passes; the kernel still refuses
	modules := boolSym("MODULES")
	modules.tri, modules.str = kconfig.Yes, "y"

	v, _ := newTestValidator(usb, modules)
	err := v.Set("RTLWIFI_USB", kconfig.Auto("m"), origin(1))
	e := wantKind(t, err, kconfig.KindAssignmentRejected)
	if e.Details["observed"] != "y" {
		t.Errorf("Expected observed value y, got %v", e.Details["observed"])
	}
}

func TestChoiceSiblingDemotion(t *testing.T) {
	gzip := boolSym("KERNEL_GZIP")
	gzip.tri, gzip.str = kconfig.Yes, "y"
	xz := boolSym("KERNEL_XZ")

	v, m := newTestValidator(gzip, xz)
	m.siblings["KERNEL_XZ"] = []*fakeSym{gzip}
	m.siblings["KERNEL_GZIP"] = []*fakeSym{xz}

	if err := v.Set("KERNEL_XZ", kconfig.Auto("y"), origin(1)); err != nil {
		t.Fatalf("Expected choice member assignment to succeed, got %v", err)
	}
	if gzip.tri != kconfig.No {
		t.Errorf("Expected sibling KERNEL_GZIP demoted to n, got %v", gzip.tri)
	}
	if xz.tri != kconfig.Yes {
		t.Errorf("Expected KERNEL_XZ=y, got %v", xz.tri)
	}
}

func TestUnknownSymbol(t *testing.T) {
	v, _ := newTestValidator()
	err := v.Set("NO_SUCH_SYMBOL", kconfig.Auto("y"), origin(1))
	wantKind(t, err, kconfig.KindUnknownSymbol)
}

func TestModuleValueRequiresModules(t *testing.T) {
	drv := triSym("E1000")
	v, m := newTestValidator(drv)

	err := v.Set("E1000", kconfig.Auto("m"), origin(1))
	wantKind(t, err, kconfig.KindUnmetDependencies)

	modules := boolSym("MODULES")
	modules.tri, modules.str = kconfig.Yes, "y"
	m.syms["MODULES"] = modules

	if err := v.Set("E1000", kconfig.Auto("m"), origin(2)); err != nil {
		t.Errorf("Expected m assignment with MODULES=y to pass, got %v", err)
	}
}

func TestChoiceGroupHeadIsNotAssignable(t *testing.T) {
	head := &fakeSym{name: "", typ: kconfig.TypeBoolean, choice: true, prompts: 1, visible: kconfig.Yes}
	head.name = "CC_OPTIMIZE"
	v, _ := newTestValidator(head)
	err := v.Set("CC_OPTIMIZE", kconfig.Auto("y"), origin(1))
	wantKind(t, err, kconfig.KindAssignmentRejected)
}

func TestHistoryRecordsFailures(t *testing.T) {
	net := boolSym("NET")
	v, _ := newTestValidator(net)
	_ = v.Set("NET", kconfig.Auto("m"), origin(1))

	if got := len(v.History().Errors()); got != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", got)
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}

func joinNotes(e *kconfig.Error) string {
	out := ""
	for _, n := range e.Notes {
		out += n + "\n"
	}
	return out
}
