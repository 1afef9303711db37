package script

import (
	_ "embed"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	lua "github.com/yuin/gopher-lua"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

//go:embed api.lua
var apiLua string

// luaRunner executes one Lua configuration program. Validator errors
// unwind the VM as Lua errors; the first classified error is kept so
// the caller sees the evaluator diagnostic rather than its string form.
type luaRunner struct {
	host *Host
	err  error
}

// applyLua runs a Lua dialect script. Every symbol is addressable as a
// bare global (with or without the CONFIG_ prefix); unknown global
// lookups resolve against the symbol registry on first access.
func (h *Host) applyLua(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "could not read script", err).
			WithDetail("path", path)
	}

	processed, err := rewriteStringEscapes(string(code))
	if err != nil {
		if e, ok := err.(*kconfig.Error); ok {
			return e.WithOrigin(kconfig.Origin{File: path})
		}
		return err
	}

	r := &luaRunner{host: h}
	L := lua.NewState()
	defer L.Close()

	r.register(L)
	if err := L.DoString(apiLua); err != nil {
		return kconfig.WrapError(kconfig.KindBridge, "could not load the Lua symbol API", err)
	}

	fn, err := L.Load(strings.NewReader(processed), path)
	if err != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "could not parse script", err).
			WithDetail("path", path)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if r.err != nil {
			return r.err
		}
		return kconfig.WrapError(kconfig.KindInvalidValue, "script execution failed", err).
			WithDetail("path", path)
	}
	return r.err
}

// register installs the ak trampoline table the embedded api.lua builds
// the user-facing surface on.
func (r *luaRunner) register(L *lua.LState) {
	ak := L.NewTable()
	L.SetField(ak, "kernel_version_str", lua.LString(r.host.KernelVersion()))
	L.SetField(ak, "kernel_dir", lua.LString(r.host.KernelDir()))

	register := func(name string, fn lua.LGFunction) {
		L.SetField(ak, name, L.NewFunction(fn))
	}
	register("symbol_set_auto", r.symbolSetAuto)
	register("symbol_set_bool", r.symbolSetBool)
	register("symbol_set_number", r.symbolSetNumber)
	register("symbol_set_tristate", r.symbolSetTristate)
	register("symbol_satisfy_and_set", r.symbolSatisfyAndSet)
	register("symbol_get_string", r.symbolGetString)
	register("symbol_get_type", r.symbolGetType)
	register("symbol_exists", r.symbolExists)
	register("kernel_env", r.kernelEnv)
	register("version_cmp", r.versionCmp)
	register("load_kconfig", r.loadKconfig)
	L.SetGlobal("ak", ak)
}

// fail records the first classified error and unwinds the VM.
func (r *luaRunner) fail(L *lua.LState, err error) int {
	if r.err == nil {
		r.err = err
	}
	L.RaiseError("%s", err.Error())
	return 0
}

// origin reconstructs the statement position captured by api.lua.
func origin(L *lua.LState, fileIdx, lineIdx, tbIdx int) kconfig.Origin {
	o := kconfig.Origin{
		File: L.CheckString(fileIdx),
		Line: L.CheckInt(lineIdx),
	}
	if tbIdx > 0 && L.GetTop() >= tbIdx {
		if tb, ok := L.Get(tbIdx).(lua.LString); ok {
			o.Traceback = string(tb)
		}
	}
	return o
}

func (r *luaRunner) symbolSetAuto(L *lua.LState) int {
	name := L.CheckString(1)
	value := L.CheckString(2)
	if err := r.host.Set(name, kconfig.Auto(value), origin(L, 3, 4, 5)); err != nil {
		return r.fail(L, err)
	}
	return 0
}

func (r *luaRunner) symbolSetBool(L *lua.LState) int {
	name := L.CheckString(1)
	value := L.CheckBool(2)
	if err := r.host.Set(name, kconfig.BoolValue(value), origin(L, 3, 4, 5)); err != nil {
		return r.fail(L, err)
	}
	return 0
}

func (r *luaRunner) symbolSetNumber(L *lua.LState) int {
	name := L.CheckString(1)
	value := L.CheckNumber(2)
	if value < 0 || value != lua.LNumber(uint64(value)) {
		return r.fail(L, kconfig.NewErrorf(kconfig.KindInvalidValue,
			"%v is not a non-negative integer; pass large values in string syntax", value).
			WithSymbol(kconfig.NormalizeName(name)).WithOrigin(origin(L, 3, 4, 5)))
	}
	if err := r.host.Set(name, kconfig.NumberValue(uint64(value)), origin(L, 3, 4, 5)); err != nil {
		return r.fail(L, err)
	}
	return 0
}

func (r *luaRunner) symbolSetTristate(L *lua.LState) int {
	name := L.CheckString(1)
	raw := L.CheckString(2)
	t, err := kconfig.ParseTristate(raw)
	if err != nil {
		return r.fail(L, kconfig.WrapError(kconfig.KindInvalidValue, "invalid tristate", err).
			WithSymbol(kconfig.NormalizeName(name)).WithOrigin(origin(L, 3, 4, 5)))
	}
	if err := r.host.Set(name, kconfig.TriValue(t), origin(L, 3, 4, 5)); err != nil {
		return r.fail(L, err)
	}
	return 0
}

func (r *luaRunner) symbolSatisfyAndSet(L *lua.LState) int {
	name := L.CheckString(1)
	raw := L.CheckString(2)
	recursive := L.CheckBool(3)
	o := origin(L, 4, 5, 6)

	t, err := kconfig.ParseTristate(raw)
	if err != nil {
		return r.fail(L, kconfig.WrapError(kconfig.KindInvalidValue, "invalid tristate", err).
			WithSymbol(kconfig.NormalizeName(name)).WithOrigin(o))
	}
	if err := r.host.SatisfyAndSet(name, t, recursive, o); err != nil {
		return r.fail(L, err)
	}
	return 0
}

func (r *luaRunner) symbolGetString(L *lua.LState) int {
	v, err := r.host.SymbolValue(L.CheckString(1))
	if err != nil {
		return r.fail(L, err)
	}
	L.Push(lua.LString(v))
	return 1
}

func (r *luaRunner) symbolGetType(L *lua.LState) int {
	v, err := r.host.SymbolType(L.CheckString(1))
	if err != nil {
		return r.fail(L, err)
	}
	L.Push(lua.LString(v))
	return 1
}

func (r *luaRunner) symbolExists(L *lua.LState) int {
	L.Push(lua.LBool(r.host.SymbolExists(L.CheckString(1))))
	return 1
}

func (r *luaRunner) kernelEnv(L *lua.LState) int {
	L.Push(lua.LString(r.host.KernelEnv(L.CheckString(1))))
	return 1
}

// versionCmp compares two semantic version strings, returning -1, 0 or
// 1. Partial versions like "5.6" are padded the way kernel releases
// are spoken about.
func (r *luaRunner) versionCmp(L *lua.LState) int {
	a, err := parseLooseVersion(L.CheckString(1))
	if err != nil {
		return r.fail(L, err)
	}
	b, err := parseLooseVersion(L.CheckString(2))
	if err != nil {
		return r.fail(L, err)
	}
	L.Push(lua.LNumber(a.Compare(b)))
	return 1
}

func (r *luaRunner) loadKconfig(L *lua.LState) int {
	path := L.CheckString(1)
	unchecked := L.OptBool(2, false)
	var err error
	if unchecked {
		err = r.host.LoadKconfigUnchecked(path)
	} else {
		err = r.host.LoadKconfig(path)
	}
	if err != nil {
		return r.fail(L, err)
	}
	return 0
}

// parseLooseVersion accepts "5", "5.6" and "5.6.1" forms.
func parseLooseVersion(s string) (*semver.Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, kconfig.NewErrorf(kconfig.KindInvalidValue, "invalid version %q", s)
	}
	return v, nil
}

