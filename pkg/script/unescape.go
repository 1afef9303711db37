package script

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/runenames"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// rewriteStringEscapes translates the dialect's extended string escapes
// (\xHH, \OOO octal, \uHHHH, \UHHHHHHHH, \N{Name}) inside quoted Lua
// string literals into plain decimal byte escapes before the VM parses
// the source. Comments and long-bracket strings pass through verbatim;
// the simple escapes (\\ \" \' \n \r \t) are already native.
func rewriteStringEscapes(src string) (string, error) {
	var out strings.Builder
	out.Grow(len(src))

	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			// Comment: long-bracket comments span lines, line comments
			// run to end of line.
			if lvl, ok := longBracketLevel(src[i+2:]); ok {
				end := findLongBracketEnd(src, i+2, lvl)
				out.WriteString(src[i:end])
				i = end
			} else {
				end := strings.IndexByte(src[i:], '\n')
				if end < 0 {
					end = len(src) - i
				}
				out.WriteString(src[i : i+end])
				i += end
			}
		case c == '[':
			if lvl, ok := longBracketLevel(src[i:]); ok {
				end := findLongBracketEnd(src, i, lvl)
				out.WriteString(src[i:end])
				i = end
			} else {
				out.WriteByte(c)
				i++
			}
		case c == '"' || c == '\'':
			end, rewritten, err := rewriteQuoted(src, i)
			if err != nil {
				return "", err
			}
			out.WriteString(rewritten)
			i = end
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

// longBracketLevel reports whether s starts a long bracket [[, [=[, ...
// and returns its level.
func longBracketLevel(s string) (int, bool) {
	if len(s) == 0 || s[0] != '[' {
		return 0, false
	}
	lvl := 0
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '=':
			lvl++
		case '[':
			return lvl, true
		default:
			return 0, false
		}
	}
	return 0, false
}

// findLongBracketEnd returns the index just past the matching closing
// long bracket.
func findLongBracketEnd(src string, start, lvl int) int {
	closing := "]" + strings.Repeat("=", lvl) + "]"
	idx := strings.Index(src[start:], closing)
	if idx < 0 {
		return len(src)
	}
	return start + idx + len(closing)
}

// rewriteQuoted processes one quoted string literal starting at src[i].
func rewriteQuoted(src string, start int) (int, string, error) {
	quote := src[start]
	var out strings.Builder
	out.WriteByte(quote)

	i := start + 1
	for i < len(src) {
		c := src[i]
		if c == quote {
			out.WriteByte(quote)
			return i + 1, out.String(), nil
		}
		if c != '\\' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(src) {
			break
		}

		next := src[i+1]
		switch {
		case next == 'x':
			v, n, err := parseFixedHex(src[i+2:], 2)
			if err != nil {
				return 0, "", escapeError("\\x", src[i:min(i+4, len(src))])
			}
			writeByteEscape(&out, byte(v))
			i += 2 + n
		case next >= '0' && next <= '7':
			// Octal, up to three digits.
			j := i + 1
			v := 0
			for j < len(src) && j < i+4 && src[j] >= '0' && src[j] <= '7' {
				v = v*8 + int(src[j]-'0')
				j++
			}
			if v > 0xFF {
				return 0, "", escapeError("octal", src[i:j])
			}
			writeByteEscape(&out, byte(v))
			i = j
		case next == 'u':
			v, n, err := parseFixedHex(src[i+2:], 4)
			if err != nil {
				return 0, "", escapeError("\\u", src[i:min(i+6, len(src))])
			}
			writeRuneEscape(&out, rune(v))
			i += 2 + n
		case next == 'U':
			v, n, err := parseFixedHex(src[i+2:], 8)
			if err != nil || v > utf8.MaxRune {
				return 0, "", escapeError("\\U", src[i:min(i+10, len(src))])
			}
			writeRuneEscape(&out, rune(v))
			i += 2 + n
		case next == 'N':
			if i+2 >= len(src) || src[i+2] != '{' {
				return 0, "", escapeError("\\N", src[i:min(i+3, len(src))])
			}
			close := strings.IndexByte(src[i+3:], '}')
			if close < 0 {
				return 0, "", escapeError("\\N", src[i:min(i+16, len(src))])
			}
			name := src[i+3 : i+3+close]
			r, ok := runeByName(name)
			if !ok {
				return 0, "", kconfig.NewErrorf(kconfig.KindInvalidValue,
					"unknown character name %q in \\N escape", name)
			}
			writeRuneEscape(&out, r)
			i += 3 + close + 1
		default:
			// Native Lua escape; pass through untouched.
			out.WriteByte(c)
			out.WriteByte(next)
			i += 2
		}
	}
	return 0, "", kconfig.NewError(kconfig.KindInvalidValue, "unterminated string literal")
}

func escapeError(kind, snippet string) error {
	return kconfig.NewErrorf(kconfig.KindInvalidValue,
		"invalid %s escape %q in string literal", kind, snippet)
}

func parseFixedHex(s string, n int) (uint64, int, error) {
	if len(s) < n {
		return 0, 0, fmt.Errorf("short escape")
	}
	v, err := strconv.ParseUint(s[:n], 16, 64)
	if err != nil {
		return 0, 0, err
	}
	return v, n, nil
}

// writeByteEscape emits one byte as a Lua decimal escape. Always three
// digits, so a literal digit following the escape is never absorbed.
func writeByteEscape(out *strings.Builder, b byte) {
	fmt.Fprintf(out, "\\%03d", b)
}

// writeRuneEscape emits a rune as UTF-8 decimal byte escapes.
func writeRuneEscape(out *strings.Builder, r rune) {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	for _, b := range buf[:n] {
		writeByteEscape(out, b)
	}
}

// runeByName resolves a Unicode character name to its rune. Reverse
// lookup scans the rune space; \N escapes are rare enough that this
// stays off every hot path.
func runeByName(name string) (rune, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for r := rune(0); r <= utf8.MaxRune; r++ {
		if runenames.Name(r) == name {
			return r, true
		}
	}
	return 0, false
}
