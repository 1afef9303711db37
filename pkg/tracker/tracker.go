// Package tracker records every mediated symbol assignment with its
// source location and enforces the pinning rules: explicit assignments
// commit a symbol to one value, implicit writes (merged config files)
// never do.
package tracker

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// PinState tracks how committed a symbol's value is.
type PinState uint8

const (
	// Unset means no mediated assignment has touched the symbol.
	Unset PinState = iota
	// Implicit means only non-pinning writes (Validator.Merge) have
	// touched the symbol.
	Implicit
	// Explicit means a validated user assignment pinned the value;
	// later explicit assignments must agree.
	Explicit
)

// Transaction is one mediated assignment event. The log is append-only
// and ordered; failed assignments are recorded with their error so the
// final report can cite every failing site.
type Transaction struct {
	// Symbol is the affected symbol name.
	Symbol string
	// Value is the intended new value.
	Value kconfig.Value
	// ValueBefore is the symbol's value before the write.
	ValueBefore kconfig.Value
	// ValueAfter is the symbol's value after the write and recalc.
	ValueAfter kconfig.Value
	// Origin is where the assignment came from.
	Origin kconfig.Origin
	// Time is when the assignment was executed.
	Time time.Time
	// Explicit marks validated user assignments; merge writes are not
	// explicit and never pin.
	Explicit bool
	// Err records the validation or kernel-side failure, if any.
	Err error
}

type pin struct {
	state  PinState
	value  kconfig.Value
	origin kconfig.Origin
}

// History is the ordered assignment log plus the per-symbol pin state
// machine. Only the validator writes to it.
type History struct {
	// RunID identifies this evaluation run.
	RunID uuid.UUID

	log    []Transaction
	pins   map[string]pin
	logger zerolog.Logger

	// SuppressDuplicateWarnings silences the warning for re-assigning
	// an already pinned value.
	SuppressDuplicateWarnings bool
}

// NewHistory creates an empty assignment history.
func NewHistory(logger zerolog.Logger) *History {
	return &History{
		RunID:  uuid.New(),
		pins:   make(map[string]pin),
		logger: logger,
	}
}

// CheckPin verifies that assigning value to symbol from origin is
// consistent with the pin state. A conflicting explicit re-assignment
// returns ConflictingAssignment citing both sites; a duplicate with the
// same value passes with a warning.
func (h *History) CheckPin(symbol string, value kconfig.Value, origin kconfig.Origin, explicit bool) error {
	p, ok := h.pins[symbol]
	if !ok || p.state != Explicit || !explicit {
		return nil
	}
	if p.value.Equal(value) {
		if !h.SuppressDuplicateWarnings {
			h.logger.Warn().
				Str("symbol", symbol).
				Str("value", value.String()).
				Str("origin", origin.String()).
				Str("first_origin", p.origin.String()).
				Msg("Duplicate assignment of the same value")
		}
		return nil
	}
	return kconfig.NewErrorf(kconfig.KindConflictingAssignment,
		"symbol was already set to %q, refusing to change it to %q", p.value, value).
		WithSymbol(symbol).
		WithOrigin(origin).
		WithNote("first assigned at %s", p.origin).
		WithDetail("first_value", p.value.String()).
		WithDetail("first_origin", p.origin.String())
}

// Record appends a transaction and advances the pin state machine:
// Unset moves to Implicit or Explicit depending on the write kind, and
// Implicit is promoted by the first explicit write. Failed transactions
// are logged but never pin.
func (h *History) Record(t Transaction) {
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	h.log = append(h.log, t)
	if t.Err != nil {
		return
	}

	p := h.pins[t.Symbol]
	if t.Explicit {
		p.state = Explicit
		p.value = t.Value
		p.origin = t.Origin
	} else if p.state == Unset {
		p.state = Implicit
		p.value = t.Value
		p.origin = t.Origin
	}
	h.pins[t.Symbol] = p
}

// State returns the pin state for a symbol.
func (h *History) State(symbol string) PinState {
	return h.pins[symbol].state
}

// PinnedValue returns the pinned value and origin for a symbol, valid
// only when State is not Unset.
func (h *History) PinnedValue(symbol string) (kconfig.Value, kconfig.Origin) {
	p := h.pins[symbol]
	return p.value, p.origin
}

// Transactions returns the ordered assignment log.
func (h *History) Transactions() []Transaction {
	return h.log
}

// Errors returns every transaction recorded with a failure.
func (h *History) Errors() []Transaction {
	var out []Transaction
	for _, t := range h.log {
		if t.Err != nil {
			out = append(out, t)
		}
	}
	return out
}

// FirstError returns the first recorded failure, or nil.
func (h *History) FirstError() error {
	for _, t := range h.log {
		if t.Err != nil {
			return t.Err
		}
	}
	return nil
}
