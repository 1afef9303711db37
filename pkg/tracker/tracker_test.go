package tracker

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

func newTestHistory() *History {
	return NewHistory(zerolog.Nop())
}

func TestPinStateMachine(t *testing.T) {
	h := newTestHistory()
	origin := kconfig.Origin{File: "defconfig", Line: 1}

	if h.State("NET") != Unset {
		t.Fatal("Expected initial state Unset")
	}

	h.Record(Transaction{Symbol: "NET", Value: kconfig.Auto("y"), Origin: origin, Explicit: false})
	if h.State("NET") != Implicit {
		t.Errorf("Expected Implicit after merge write, got %v", h.State("NET"))
	}

	h.Record(Transaction{Symbol: "NET", Value: kconfig.Auto("y"), Origin: origin, Explicit: true})
	if h.State("NET") != Explicit {
		t.Errorf("Expected Explicit after explicit write, got %v", h.State("NET"))
	}
}

func TestConflictingExplicitAssignment(t *testing.T) {
	h := newTestHistory()
	first := kconfig.Origin{File: "kernel.lua", Line: 3}
	second := kconfig.Origin{File: "kernel.lua", Line: 9}

	h.Record(Transaction{Symbol: "NET", Value: kconfig.Auto("y"), Origin: first, Explicit: true})

	err := h.CheckPin("NET", kconfig.Auto("n"), second, true)
	if err == nil {
		t.Fatal("Expected ConflictingAssignment for a different explicit value")
	}
	var e *kconfig.Error
	if !errors.As(err, &e) || e.Kind != kconfig.KindConflictingAssignment {
		t.Fatalf("Expected conflicting-assignment kind, got %v", err)
	}
	if e.Details["first_origin"] != first.String() {
		t.Errorf("Expected conflict to cite the first origin, got %v", e.Details["first_origin"])
	}
	if e.Origin == nil || e.Origin.Line != 9 {
		t.Error("Expected conflict to carry the second origin")
	}
}

func TestDuplicateSameValueIsNotAConflict(t *testing.T) {
	h := newTestHistory()
	origin := kconfig.Origin{File: "kernel.lua", Line: 3}
	h.Record(Transaction{Symbol: "NET", Value: kconfig.Auto("y"), Origin: origin, Explicit: true})

	if err := h.CheckPin("NET", kconfig.TriValue(kconfig.Yes), origin, true); err != nil {
		t.Errorf("Expected same-value duplicate to pass, got %v", err)
	}
}

func TestImplicitWritesNeverPin(t *testing.T) {
	h := newTestHistory()
	h.Record(Transaction{Symbol: "NET", Value: kconfig.Auto("y"),
		Origin: kconfig.Origin{File: "defconfig"}, Explicit: false})

	// A later explicit write with a different value is allowed; only
	// explicit pins conflict.
	if err := h.CheckPin("NET", kconfig.Auto("n"), kconfig.Origin{File: "kernel.lua", Line: 1}, true); err != nil {
		t.Errorf("Expected merge-seeded symbol to accept an explicit override, got %v", err)
	}
}

func TestFailedTransactionsDoNotPin(t *testing.T) {
	h := newTestHistory()
	h.Record(Transaction{
		Symbol:   "NET",
		Value:    kconfig.Auto("y"),
		Origin:   kconfig.Origin{File: "kernel.lua", Line: 1},
		Explicit: true,
		Err:      kconfig.NewError(kconfig.KindInvalidValue, "nope"),
	})
	if h.State("NET") != Unset {
		t.Errorf("Expected failed write to leave the state Unset, got %v", h.State("NET"))
	}
	if len(h.Errors()) != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", len(h.Errors()))
	}
	if h.FirstError() == nil {
		t.Error("Expected FirstError to return the failure")
	}
}

func TestTransactionsAreOrdered(t *testing.T) {
	h := newTestHistory()
	for i, sym := range []string{"A", "B", "C"} {
		h.Record(Transaction{Symbol: sym, Value: kconfig.Auto("y"),
			Origin: kconfig.Origin{File: "kernel.lua", Line: i + 1}, Explicit: true})
	}
	log := h.Transactions()
	if len(log) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(log))
	}
	for i, want := range []string{"A", "B", "C"} {
		if log[i].Symbol != want {
			t.Errorf("Transaction %d = %s, want %s", i, log[i].Symbol, want)
		}
	}
}
