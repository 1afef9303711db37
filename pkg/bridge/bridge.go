// Package bridge builds, loads and drives the native Kconfig bridge: a
// shared library compiled from the kernel tree's own Kconfig sources
// plus a small exported shim. It owns the symbol registry and the
// primitive value operations every higher stage builds on.
package bridge

import (
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// Options configures bridge construction.
type Options struct {
	// Bash overrides the shell used for the interceptor shebang.
	Bash string

	// Logger receives build and parse progress.
	Logger zerolog.Logger
}

// Bridge is the in-process view of one kernel tree's Kconfig state.
// Kconfig's C state is process-global and not thread-safe; the bridge
// serializes all mutation behind one mutex and must not be shared with
// a second live instance in the same process.
type Bridge struct {
	mu sync.Mutex
	vt *vtable

	// KernelDir is the kernel source tree this bridge was built from.
	KernelDir string

	version *semver.Version
	logger  zerolog.Logger

	handles  []SymbolHandle
	byName   map[string]*Symbol
	byHandle map[SymbolHandle]*Symbol
	choiceOf map[SymbolHandle]SymbolHandle
}

// New prepares (compiling if necessary), loads and initializes the
// bridge for a kernel tree. Any failure is a fatal BridgeError; kernels
// older than MinimumKernelVersion fail with UnsupportedKernel before a
// build is attempted.
func New(kernelDir string, opts Options) (*Bridge, error) {
	version, err := KernelVersion(kernelDir)
	if err != nil {
		return nil, err
	}
	if err := checkKernelVersion(version); err != nil {
		return nil, err
	}

	start := time.Now()
	opts.Logger.Info().Str("kernel_dir", kernelDir).Str("kernel_version", version.String()).
		Msg("Building bridge")
	libPath, env, err := prepare(kernelDir, opts.Bash)
	if err != nil {
		return nil, err
	}
	opts.Logger.Info().Dur("elapsed", time.Since(start)).Msg("Built bridge")

	start = time.Now()
	vt, err := loadVTable(libPath)
	if err != nil {
		return nil, err
	}

	block := envBlock(env)
	ok := vt.init(&block[0])
	runtime.KeepAlive(block)
	if !ok {
		_ = vt.close()
		return nil, kconfig.NewError(kconfig.KindBridge, "failed to initialize C bridge").
			WithDetail("library", libPath)
	}

	b := &Bridge{
		vt:        vt,
		KernelDir: kernelDir,
		version:   version,
		logger:    opts.Logger,
		byName:    make(map[string]*Symbol),
		byHandle:  make(map[SymbolHandle]*Symbol),
		choiceOf:  make(map[SymbolHandle]SymbolHandle),
	}
	if err := b.loadRegistry(); err != nil {
		_ = vt.close()
		return nil, err
	}

	opts.Logger.Info().
		Str("kernel_version", b.Env("KERNELVERSION")).
		Int("symbols", len(b.byName)).
		Dur("elapsed", time.Since(start)).
		Msg("Initialized bridge")
	return b, nil
}

// loadRegistry enumerates all symbols once and indexes them by name and
// by handle. Unknown-typed symbols only carry values for others and are
// not name-indexed.
func (b *Bridge) loadRegistry() error {
	count := b.vt.symbolCount()
	if count == 0 {
		return kconfig.NewError(kconfig.KindBridge, "bridge reported an empty symbol table")
	}

	b.handles = make([]SymbolHandle, count)
	b.vt.getAllSymbols(&b.handles[0])

	for _, h := range b.handles {
		s := b.wrap(h)
		b.byHandle[h] = s
		if s.symType == kconfig.TypeUnknown {
			continue
		}
		if s.name != "" {
			b.byName[s.name] = s
		}
	}

	// Second pass: record choice membership so the validator can
	// demote siblings when a member is set to y.
	for _, h := range b.handles {
		head := b.byHandle[h]
		if !head.IsChoice() {
			continue
		}
		members, err := head.Choices()
		if err != nil {
			continue
		}
		for _, m := range members {
			b.choiceOf[m.handle] = h
		}
	}
	return nil
}

// ChoiceGroup returns the choice group head a symbol belongs to, or
// nil when the symbol is not a choice member.
func (b *Bridge) ChoiceGroup(s *Symbol) *Symbol {
	h, ok := b.choiceOf[s.handle]
	if !ok {
		return nil
	}
	return b.byHandle[h]
}

// ChoiceSiblings returns the other members of a symbol's choice group,
// or nil when the symbol is not a choice member.
func (b *Bridge) ChoiceSiblings(s *Symbol) []*Symbol {
	head := b.ChoiceGroup(s)
	if head == nil {
		return nil
	}
	members, err := head.Choices()
	if err != nil {
		return nil
	}
	out := make([]*Symbol, 0, len(members))
	for _, m := range members {
		if m.handle != s.handle {
			out = append(out, m)
		}
	}
	return out
}

// wrap builds a symbol wrapper with its immutable metadata snapshot.
func (b *Bridge) wrap(h SymbolHandle) *Symbol {
	return &Symbol{
		bridge:  b,
		handle:  h,
		name:    b.vt.symGetName(h),
		symType: kconfig.SymbolType(b.vt.symGetType(h)),
	}
}

// wrapKnown returns the registered wrapper for a handle, creating one
// for handles outside the initial enumeration.
func (b *Bridge) wrapKnown(h SymbolHandle) *Symbol {
	if s, ok := b.byHandle[h]; ok {
		return s
	}
	s := b.wrap(h)
	b.byHandle[h] = s
	return s
}

// Symbol looks a symbol up by name, with or without the CONFIG_ prefix.
func (b *Bridge) Symbol(name string) (*Symbol, bool) {
	s, ok := b.byName[kconfig.NormalizeName(name)]
	return s, ok
}

// AllSymbols returns every registered symbol in enumeration order,
// including anonymous choice groups.
func (b *Bridge) AllSymbols() []*Symbol {
	out := make([]*Symbol, 0, len(b.handles))
	for _, h := range b.handles {
		out = append(out, b.byHandle[h])
	}
	return out
}

// NamedSymbols returns the name-indexed symbols.
func (b *Bridge) NamedSymbols() map[string]*Symbol {
	return b.byName
}

// Version returns the kernel release the bridge was built from.
func (b *Bridge) Version() *semver.Version {
	return b.version
}

// Env reads a variable from the environment captured at init. The
// bridge owns this snapshot; later changes to the process environment
// do not affect it.
func (b *Bridge) Env(name string) string {
	return b.vt.getenv(name)
}

// RecalculateAll re-evaluates every non-constant named symbol. Called
// after each mediated write so readers observe a consistent state.
func (b *Bridge) RecalculateAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.handles {
		s := b.byHandle[h]
		if s.IsConst() || s.name == "" {
			continue
		}
		b.vt.symCalcValue(h)
	}
}

// WriteConfig writes the current configuration in the kernel's
// canonical .config format.
func (b *Bridge) WriteConfig(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vt.confWrite(path) != 0 {
		return kconfig.NewError(kconfig.KindBridge, "could not write config").
			WithDetail("path", path)
	}
	return nil
}

// LoadConfigUnchecked merges a kconfig file through the kernel's own
// loader, bypassing validation and pinning. Used for defconfig seeds.
func (b *Bridge) LoadConfigUnchecked(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vt.confRead(path) != 0 {
		return kconfig.NewError(kconfig.KindBridge, "conf_read failed; is the file accessible?").
			WithDetail("path", path)
	}
	return nil
}

// Close shuts the C side down, releasing all bridge-allocated memory,
// and unloads the shared library. The bridge must not be used after
// Close; a new bridge may then be constructed in the same process.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vt == nil {
		return nil
	}
	err := b.vt.close()
	b.vt = nil
	return err
}

func decodeStringList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, kconfig.WrapError(kconfig.KindBridge, "could not decode string list", err)
	}
	return out, nil
}
