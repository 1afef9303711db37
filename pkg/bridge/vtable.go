package bridge

import (
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// SymbolHandle is an opaque reference to a symbol inside the loaded
// Kconfig library. Handles are stable for the lifetime of the bridge.
type SymbolHandle uintptr

// vtable resolves the C entry points exported by the bridge shared
// library. Only plain scalars and byte buffers cross the boundary.
type vtable struct {
	lib uintptr

	init           func(env *byte) bool
	shutdown       func()
	symbolCount    func() uint64
	getAllSymbols  func(out *SymbolHandle)
	symGetName     func(SymbolHandle) string
	symGetType     func(SymbolHandle) int32
	symGetFlags    func(SymbolHandle) int32
	symGetVisible  func(SymbolHandle) int32
	symGetRevDep   func(SymbolHandle) int32
	symGetTristate func(SymbolHandle) int32
	symIntGetMin   func(SymbolHandle) uint64
	symIntGetMax   func(SymbolHandle) uint64
	symPromptCount func(SymbolHandle) uint64
	choiceSymbols  func(SymbolHandle, *SymbolHandle) uint64

	symGetStringValue  func(SymbolHandle) string
	symSetStringValue  func(SymbolHandle, string) int32
	symSetTristate     func(SymbolHandle, int32) int32
	symCalcValue       func(SymbolHandle)
	visibilityExprJSON func(SymbolHandle) uintptr
	revDepExprJSON     func(SymbolHandle) uintptr
	impliedExprJSON    func(SymbolHandle) uintptr
	promptsJSON        func(SymbolHandle) uintptr
	freeCString        func(uintptr)

	confWrite func(string) int32
	confRead  func(string) int32
	getenv    func(string) string
}

// loadVTable dlopens the bridge library and resolves every entry point.
func loadVTable(path string) (*vtable, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, kconfig.WrapError(kconfig.KindBridge, "could not load bridge library", err).
			WithDetail("path", path)
	}

	vt := &vtable{lib: lib}
	purego.RegisterLibFunc(&vt.init, lib, "init")
	purego.RegisterLibFunc(&vt.shutdown, lib, "bridge_shutdown")
	purego.RegisterLibFunc(&vt.symbolCount, lib, "symbol_count")
	purego.RegisterLibFunc(&vt.getAllSymbols, lib, "get_all_symbols")
	purego.RegisterLibFunc(&vt.symGetName, lib, "sym_get_name")
	purego.RegisterLibFunc(&vt.symGetType, lib, "sym_get_type")
	purego.RegisterLibFunc(&vt.symGetFlags, lib, "sym_get_flags")
	purego.RegisterLibFunc(&vt.symGetVisible, lib, "sym_get_visible")
	purego.RegisterLibFunc(&vt.symGetRevDep, lib, "sym_get_rev_dep_tri")
	purego.RegisterLibFunc(&vt.symGetTristate, lib, "sym_get_tristate")
	purego.RegisterLibFunc(&vt.symIntGetMin, lib, "sym_int_get_min")
	purego.RegisterLibFunc(&vt.symIntGetMax, lib, "sym_int_get_max")
	purego.RegisterLibFunc(&vt.symPromptCount, lib, "sym_prompt_count")
	purego.RegisterLibFunc(&vt.choiceSymbols, lib, "get_choice_symbols")
	purego.RegisterLibFunc(&vt.symGetStringValue, lib, "sym_get_string_value")
	purego.RegisterLibFunc(&vt.symSetStringValue, lib, "sym_set_string_value")
	purego.RegisterLibFunc(&vt.symSetTristate, lib, "sym_set_tristate_value")
	purego.RegisterLibFunc(&vt.symCalcValue, lib, "sym_calc_value")
	purego.RegisterLibFunc(&vt.visibilityExprJSON, lib, "sym_visibility_expr_json")
	purego.RegisterLibFunc(&vt.revDepExprJSON, lib, "sym_rev_dep_expr_json")
	purego.RegisterLibFunc(&vt.impliedExprJSON, lib, "sym_implied_expr_json")
	purego.RegisterLibFunc(&vt.promptsJSON, lib, "sym_prompts_json")
	purego.RegisterLibFunc(&vt.freeCString, lib, "free_cstring")
	purego.RegisterLibFunc(&vt.confWrite, lib, "conf_write")
	purego.RegisterLibFunc(&vt.confRead, lib, "conf_read")
	purego.RegisterLibFunc(&vt.getenv, lib, "autokernel_getenv")

	return vt, nil
}

// close shuts the C side down and releases the library handle.
func (vt *vtable) close() error {
	vt.shutdown()
	if err := purego.Dlclose(vt.lib); err != nil {
		return kconfig.WrapError(kconfig.KindBridge, "could not unload bridge library", err)
	}
	return nil
}

// takeCString copies a malloc'd C string into Go memory and frees the
// original through the library's own allocator.
func (vt *vtable) takeCString(ptr uintptr) []byte {
	if ptr == 0 {
		return nil
	}
	defer vt.freeCString(ptr)

	var n uintptr
	for *(*byte)(unsafe.Pointer(ptr + n)) != 0 {
		n++
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n))
	return out
}

// envBlock renders an environment map as NUL-separated KEY=VALUE
// entries with an empty entry terminating the block, the layout init()
// consumes.
func envBlock(env map[string]string) []byte {
	var out []byte
	for k, v := range env {
		out = append(out, k...)
		out = append(out, '=')
		out = append(out, v...)
		out = append(out, 0)
	}
	out = append(out, 0)
	return out
}
