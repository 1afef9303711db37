package script

import (
	"bufio"
	"os"
	"strings"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

// notSetSuffix marks the kernel's disabled-symbol comment form.
const notSetSuffix = " is not set"

// flatStatement is one parsed line of the flat dialect.
type flatStatement struct {
	symbol string
	value  string
	line   int
}

// applyFlat parses and executes a flat, line-oriented kconfig file. One
// statement per line, `#` starts a comment, no conditionals, no loops.
func (h *Host) applyFlat(path string) error {
	stmts, err := parseFlat(path)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		origin := kconfig.Origin{File: path, Line: stmt.line}
		if err := h.Set(stmt.symbol, kconfig.Auto(stmt.value), origin); err != nil {
			return err
		}
	}
	return nil
}

// parseFlat reads the statements of a flat dialect file. Lines of the
// form `# CONFIG_X is not set` are assignments to n; every other
// comment and empty line is skipped.
func parseFlat(path string) ([]flatStatement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kconfig.WrapError(kconfig.KindInvalidValue, "could not open kconfig file", err).
			WithDetail("path", path)
	}
	defer f.Close()

	var stmts []flatStatement
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if strings.HasPrefix(body, "CONFIG_") && strings.HasSuffix(body, notSetSuffix) {
				name := strings.TrimSuffix(body, notSetSuffix)
				stmts = append(stmts, flatStatement{
					symbol: kconfig.NormalizeName(strings.TrimSpace(name)),
					value:  "n",
					line:   lineno,
				})
			}
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, kconfig.NewErrorf(kconfig.KindInvalidValue, "invalid line %q", line).
				WithOrigin(kconfig.Origin{File: path, Line: lineno})
		}
		stmts = append(stmts, flatStatement{
			symbol: kconfig.NormalizeName(strings.TrimSpace(key)),
			value:  unquoteConfigValue(strings.TrimSpace(value)),
			line:   lineno,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, kconfig.WrapError(kconfig.KindInvalidValue, "could not read kconfig file", err).
			WithDetail("path", path)
	}
	return stmts, nil
}

// ParseConfigFile reads a .config-style file into a symbol-to-value
// map, with `# CONFIG_X is not set` lines mapped to "n". Used by the
// check command for order-independent comparison.
func ParseConfigFile(path string) (map[string]string, error) {
	stmts, err := parseFlat(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(stmts))
	for _, s := range stmts {
		out[s.symbol] = s.value
	}
	return out, nil
}

// unquoteConfigValue strips the kernel's double-quote wrapping from
// string values and resolves its two escapes (backslash and quote).
func unquoteConfigValue(v string) string {
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	inner := v[1 : len(v)-1]
	var sb strings.Builder
	escaped := false
	for _, r := range inner {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
