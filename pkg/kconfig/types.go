// Package kconfig defines the shared value model for the autokernel
// evaluator: tristates, symbol types, symbol values and the classified
// error taxonomy used by every stage of the pipeline.
package kconfig

import (
	"fmt"
	"strconv"
	"strings"
)

// Tristate is a Kconfig tristate value, ordered No < Mod < Yes.
type Tristate uint8

const (
	// No disables a feature entirely.
	No Tristate = iota
	// Mod builds a feature as a loadable module.
	Mod
	// Yes builds a feature into the kernel.
	Yes
)

// String returns the canonical single-letter form (n, m, y).
func (t Tristate) String() string {
	switch t {
	case No:
		return "n"
	case Mod:
		return "m"
	case Yes:
		return "y"
	}
	return fmt.Sprintf("Tristate(%d)", uint8(t))
}

// ParseTristate parses the canonical single-letter form.
func ParseTristate(s string) (Tristate, error) {
	switch s {
	case "n":
		return No, nil
	case "m":
		return Mod, nil
	case "y":
		return Yes, nil
	}
	return No, fmt.Errorf("invalid tristate %q (valid values are: n, m, y)", s)
}

// TristateFromBool maps true to Yes and false to No.
func TristateFromBool(b bool) Tristate {
	if b {
		return Yes
	}
	return No
}

// Min returns the smaller of two tristates on the n<m<y lattice.
func (t Tristate) Min(o Tristate) Tristate {
	if o < t {
		return o
	}
	return t
}

// Max returns the larger of two tristates on the n<m<y lattice.
func (t Tristate) Max(o Tristate) Tristate {
	if o > t {
		return o
	}
	return t
}

// Not returns y-t on the n/m/y = 0/1/2 lattice.
func (t Tristate) Not() Tristate {
	return Yes - t
}

// SymbolType classifies a Kconfig symbol. The numeric values match the
// kernel's enum symbol_type and are part of the bridge ABI.
type SymbolType uint8

const (
	// TypeUnknown marks helper symbols that only carry values for others.
	TypeUnknown SymbolType = iota
	// TypeBoolean symbols take values in {n, y}.
	TypeBoolean
	// TypeTristate symbols take values in {n, m, y}.
	TypeTristate
	// TypeInt symbols hold base-10 integers.
	TypeInt
	// TypeHex symbols hold 0x-prefixed hexadecimal integers.
	TypeHex
	// TypeString symbols hold arbitrary strings.
	TypeString
)

// String returns the lower-case type name as printed by the kernel.
func (t SymbolType) String() string {
	switch t {
	case TypeUnknown:
		return "unknown"
	case TypeBoolean:
		return "boolean"
	case TypeTristate:
		return "tristate"
	case TypeInt:
		return "int"
	case TypeHex:
		return "hex"
	case TypeString:
		return "string"
	}
	return fmt.Sprintf("SymbolType(%d)", uint8(t))
}

// ParseSymbolType parses the lower-case type name.
func ParseSymbolType(s string) (SymbolType, error) {
	switch s {
	case "unknown":
		return TypeUnknown, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "tristate":
		return TypeTristate, nil
	case "int":
		return TypeInt, nil
	case "hex":
		return TypeHex, nil
	case "string":
		return TypeString, nil
	}
	return TypeUnknown, fmt.Errorf("invalid symbol type %q", s)
}

// ValueKind discriminates Value variants.
type ValueKind uint8

const (
	// KindAuto carries a raw string that is coerced by the target
	// symbol's type during validation.
	KindAuto ValueKind = iota
	// KindBoolean carries a boolean.
	KindBoolean
	// KindTristate carries a tristate.
	KindTristate
	// KindInt carries a base-10 integer.
	KindInt
	// KindHex carries a hexadecimal integer.
	KindHex
	// KindNumber carries an integer whose int/hex interpretation is
	// decided by the target symbol's type.
	KindNumber
	// KindString carries an arbitrary string.
	KindString
)

// Value is a symbol value before type coercion. The zero value is an
// empty Auto value.
type Value struct {
	Kind ValueKind
	Str  string
	Tri  Tristate
	Num  uint64
	Bool bool
}

// Auto wraps a raw string value for type-directed coercion.
func Auto(s string) Value { return Value{Kind: KindAuto, Str: s} }

// BoolValue wraps a boolean value.
func BoolValue(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

// TriValue wraps a tristate value.
func TriValue(t Tristate) Value { return Value{Kind: KindTristate, Tri: t} }

// IntValue wraps a base-10 integer value.
func IntValue(n uint64) Value { return Value{Kind: KindInt, Num: n} }

// HexValue wraps a hexadecimal integer value.
func HexValue(n uint64) Value { return Value{Kind: KindHex, Num: n} }

// NumberValue wraps an integer whose rendering follows the symbol type.
func NumberValue(n uint64) Value { return Value{Kind: KindNumber, Num: n} }

// StringValue wraps an arbitrary string value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// String renders the value the way it would appear in a .config file.
func (v Value) String() string {
	switch v.Kind {
	case KindAuto, KindString:
		return v.Str
	case KindBoolean:
		return TristateFromBool(v.Bool).String()
	case KindTristate:
		return v.Tri.String()
	case KindInt, KindNumber:
		return strconv.FormatUint(v.Num, 10)
	case KindHex:
		return fmt.Sprintf("0x%x", v.Num)
	}
	return ""
}

// Equal reports whether two values render identically. Values recorded
// by the tracker compare by rendered form so that Auto("y") and
// TriValue(Yes) do not spuriously conflict.
func (v Value) Equal(o Value) bool {
	return v.String() == o.String()
}

// NormalizeName strips an optional CONFIG_ prefix from a symbol name.
func NormalizeName(name string) string {
	return strings.TrimPrefix(name, "CONFIG_")
}
