package script

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// starlarkRunner executes one Starlark configuration program. It is the
// second scripted dialect: the same validator surface as Lua, with
// positions taken from the Starlark call frames.
type starlarkRunner struct {
	host *Host
	err  error
}

// applyStarlark runs a Starlark dialect script.
func (h *Host) applyStarlark(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return kconfig.WrapError(kconfig.KindInvalidValue, "could not read script", err).
			WithDetail("path", path)
	}

	r := &starlarkRunner{host: h}
	thread := &starlark.Thread{
		Name: "autokernel",
		Print: func(_ *starlark.Thread, msg string) {
			h.logger.Info().Str("script", path).Msg(msg)
		},
	}

	predeclared := starlark.StringDict{
		"struct":                 starlarkstruct.Default,
		"set":                    starlark.NewBuiltin("set", r.builtinSet),
		"satisfy":                starlark.NewBuiltin("satisfy", r.builtinSatisfy),
		"value":                  starlark.NewBuiltin("value", r.builtinValue),
		"symbol_type":            starlark.NewBuiltin("symbol_type", r.builtinSymbolType),
		"symbol_exists":          starlark.NewBuiltin("symbol_exists", r.builtinSymbolExists),
		"kernel_env":             starlark.NewBuiltin("kernel_env", r.builtinKernelEnv),
		"load_kconfig":           starlark.NewBuiltin("load_kconfig", r.builtinLoadKconfig),
		"load_kconfig_unchecked": starlark.NewBuiltin("load_kconfig_unchecked", r.builtinLoadKconfigUnchecked),
		"ver":                    starlark.NewBuiltin("ver", builtinVer),
		"kernel_dir":             starlark.String(h.KernelDir()),
	}
	if v, err := parseLooseVersion(h.KernelVersion()); err == nil {
		predeclared["kernel_version"] = verValue{v: v}
	} else {
		predeclared["kernel_version"] = starlark.String(h.KernelVersion())
	}

	if _, err := starlark.ExecFile(thread, path, code, predeclared); err != nil {
		if r.err != nil {
			return r.err
		}
		return kconfig.WrapError(kconfig.KindInvalidValue, "script execution failed", err).
			WithDetail("path", path)
	}
	return r.err
}

// callOrigin captures the user call site of the current builtin.
func callOrigin(thread *starlark.Thread) kconfig.Origin {
	if thread.CallStackDepth() < 2 {
		return kconfig.Origin{}
	}
	pos := thread.CallFrame(1).Pos
	return kconfig.Origin{
		File:      pos.Filename(),
		Line:      int(pos.Line),
		Traceback: thread.CallStack().String(),
	}
}

// fail records the first classified error and unwinds execution.
func (r *starlarkRunner) fail(err error) error {
	if r.err == nil {
		r.err = err
	}
	return err
}

// starlarkRawValue converts a script value into an evaluator value.
func starlarkRawValue(v starlark.Value) (kconfig.Value, error) {
	switch val := v.(type) {
	case starlark.String:
		return kconfig.Auto(string(val)), nil
	case starlark.Bool:
		return kconfig.BoolValue(bool(val)), nil
	case starlark.Int:
		n, ok := val.Uint64()
		if !ok {
			return kconfig.Value{}, fmt.Errorf("integer out of range")
		}
		return kconfig.NumberValue(n), nil
	}
	return kconfig.Value{}, fmt.Errorf("unsupported value type %s", v.Type())
}

func (r *starlarkRunner) builtinSet(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &name, "value", &value); err != nil {
		return nil, err
	}
	raw, err := starlarkRawValue(value)
	if err != nil {
		return nil, err
	}
	if err := r.host.Set(name, raw, callOrigin(thread)); err != nil {
		return nil, r.fail(err)
	}
	return starlark.None, nil
}

func (r *starlarkRunner) builtinSatisfy(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	value := "y"
	recursive := false
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"symbol", &name, "value?", &value, "recursive?", &recursive); err != nil {
		return nil, err
	}
	t, err := kconfig.ParseTristate(value)
	if err != nil {
		return nil, err
	}
	if err := r.host.SatisfyAndSet(name, t, recursive, callOrigin(thread)); err != nil {
		return nil, r.fail(err)
	}
	return starlark.None, nil
}

func (r *starlarkRunner) builtinValue(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &name); err != nil {
		return nil, err
	}
	v, err := r.host.SymbolValue(name)
	if err != nil {
		return nil, r.fail(err)
	}
	return starlark.String(v), nil
}

func (r *starlarkRunner) builtinSymbolType(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &name); err != nil {
		return nil, err
	}
	t, err := r.host.SymbolType(name)
	if err != nil {
		return nil, r.fail(err)
	}
	return starlark.String(t), nil
}

func (r *starlarkRunner) builtinSymbolExists(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "symbol", &name); err != nil {
		return nil, err
	}
	return starlark.Bool(r.host.SymbolExists(name)), nil
}

func (r *starlarkRunner) builtinKernelEnv(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	return starlark.String(r.host.KernelEnv(name)), nil
}

func (r *starlarkRunner) builtinLoadKconfig(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	if err := r.host.LoadKconfig(path); err != nil {
		return nil, r.fail(err)
	}
	return starlark.None, nil
}

func (r *starlarkRunner) builtinLoadKconfigUnchecked(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "path", &path); err != nil {
		return nil, err
	}
	if err := r.host.LoadKconfigUnchecked(path); err != nil {
		return nil, r.fail(err)
	}
	return starlark.None, nil
}

// verValue is a semantic version with ordered comparisons, so scripts
// can write `kernel_version >= ver("5.6")`.
type verValue struct {
	v *semver.Version
}

func builtinVer(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "version", &s); err != nil {
		return nil, err
	}
	v, err := parseLooseVersion(s)
	if err != nil {
		return nil, err
	}
	return verValue{v: v}, nil
}

func (v verValue) String() string        { return v.v.String() }
func (v verValue) Type() string          { return "version" }
func (v verValue) Freeze()               {}
func (v verValue) Truth() starlark.Bool  { return starlark.True }
func (v verValue) Hash() (uint32, error) { return starlark.String(v.v.String()).Hash() }

// CompareSameType implements ordered comparison between versions.
func (v verValue) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	cmp := v.v.Compare(y.(verValue).v)
	switch op {
	case syntax.EQL:
		return cmp == 0, nil
	case syntax.NEQ:
		return cmp != 0, nil
	case syntax.LT:
		return cmp < 0, nil
	case syntax.LE:
		return cmp <= 0, nil
	case syntax.GT:
		return cmp > 0, nil
	case syntax.GE:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unsupported comparison %s for versions", op)
}
