// Package script executes user configuration programs against the live
// Kconfig model. Three dialects share one validator-backed host: a flat
// kconfig-like dialect, a Lua dialect and a Starlark dialect. Every
// statement carries its captured source position into diagnostics.
package script

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/bridge"
	"github.com/autokernel/autokernel/pkg/kconfig"
	"github.com/autokernel/autokernel/pkg/satisfier"
	"github.com/autokernel/autokernel/pkg/validator"
)

// Host binds the script dialects to the evaluator. All symbol access in
// user programs funnels through its validator.
type Host struct {
	bridge    *bridge.Bridge
	validator *validator.Validator
	model     satisfier.Model
	logger    zerolog.Logger
}

// NewHost creates a script host over a bridge and its validator.
func NewHost(b *bridge.Bridge, v *validator.Validator, logger zerolog.Logger) *Host {
	return &Host{
		bridge:    b,
		validator: v,
		model:     satisfier.Adapt(b),
		logger:    logger,
	}
}

// Apply loads and runs a script file, dispatching on the extension:
// .lua and .star run the scripted dialects, .txt and .config the flat
// dialect.
func (h *Host) Apply(path string) error {
	h.logger.Info().Str("script", path).Msg("Applying script")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return h.applyLua(path)
	case ".star":
		return h.applyStarlark(path)
	case ".txt", ".config":
		return h.applyFlat(path)
	}
	return kconfig.NewErrorf(kconfig.KindInvalidValue,
		"unknown script type %q (expected .lua, .star, .txt or .config)", filepath.Ext(path))
}

// Set routes one explicit assignment through the validator.
func (h *Host) Set(name string, value kconfig.Value, origin kconfig.Origin) error {
	return h.validator.Set(name, value, origin)
}

// SatisfyAndSet computes a satisfying configuration for the symbol and
// applies every prerequisite (and, when assignable, the target itself)
// through the validator.
func (h *Host) SatisfyAndSet(name string, desired kconfig.Tristate, recursive bool, origin kconfig.Origin) error {
	steps, err := satisfier.Satisfy(h.model, name, satisfier.Options{
		Desired:   desired,
		Recursive: recursive,
	})
	if err != nil {
		if e, ok := err.(*kconfig.Error); ok {
			return e.WithOrigin(origin)
		}
		return err
	}
	for _, step := range steps {
		if err := h.validator.Set(step.Symbol, kconfig.TriValue(step.Value), origin); err != nil {
			return err
		}
	}
	return nil
}

// Satisfy computes the satisfying configuration without applying it.
func (h *Host) Satisfy(name string, desired kconfig.Tristate, recursive bool) ([]satisfier.Assignment, error) {
	return satisfier.Satisfy(h.model, name, satisfier.Options{
		Desired:   desired,
		Recursive: recursive,
	})
}

// LoadKconfig merges a classical kconfig file, routing every assignment
// through the validator as an explicit, pinning set.
func (h *Host) LoadKconfig(path string) error {
	return h.applyFlat(path)
}

// LoadKconfigUnchecked merges a kconfig file through the kernel's own
// loader: no validation, no pinning. Used to seed from a defconfig.
func (h *Host) LoadKconfigUnchecked(path string) error {
	h.logger.Info().Str("path", path).Msg("Merging kconfig file (unchecked)")
	if err := h.bridge.LoadConfigUnchecked(path); err != nil {
		return err
	}
	h.bridge.RecalculateAll()
	return nil
}

// SymbolValue returns a symbol's current value in string form.
func (h *Host) SymbolValue(name string) (string, error) {
	s, ok := h.bridge.Symbol(name)
	if !ok {
		return "", kconfig.NewError(kconfig.KindUnknownSymbol, "symbol does not exist").
			WithSymbol(kconfig.NormalizeName(name))
	}
	return s.StringValue(), nil
}

// SymbolType returns a symbol's type name.
func (h *Host) SymbolType(name string) (string, error) {
	s, ok := h.bridge.Symbol(name)
	if !ok {
		return "", kconfig.NewError(kconfig.KindUnknownSymbol, "symbol does not exist").
			WithSymbol(kconfig.NormalizeName(name))
	}
	return s.Type().String(), nil
}

// SymbolExists reports whether the name denotes a known symbol.
func (h *Host) SymbolExists(name string) bool {
	_, ok := h.bridge.Symbol(name)
	return ok
}

// KernelVersion returns the kernel release the bridge captured.
func (h *Host) KernelVersion() string {
	return h.bridge.Env("KERNELVERSION")
}

// KernelDir returns the kernel source directory.
func (h *Host) KernelDir() string {
	return h.bridge.KernelDir
}

// KernelEnv reads the bridge's isolated environment.
func (h *Host) KernelEnv(name string) string {
	return h.bridge.Env(name)
}
