package bridge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

//go:embed cbridge/bridge.c
var bridgeSource []byte

//go:embed cbridge/interceptor.sh
var interceptorSource []byte

// envMarker separates Makefile noise from the environment JSON the
// interceptor emits.
const envMarker = "[AUTOKERNEL BRIDGE]"

// MinimumKernelVersion is the oldest kernel release the bridge builds
// against; older Kconfig trees predate the entry points we rely on.
var MinimumKernelVersion = semver.MustParse("4.2.0")

var makefileVersionRe = regexp.MustCompile(`(?m)^(VERSION|PATCHLEVEL|SUBLEVEL)\s*=\s*(\d*)\s*$`)

// KernelVersion reads the kernel release version from the tree's
// top-level Makefile.
func KernelVersion(kernelDir string) (*semver.Version, error) {
	raw, err := os.ReadFile(filepath.Join(kernelDir, "Makefile"))
	if err != nil {
		return nil, kconfig.WrapError(kconfig.KindBridge, "could not read kernel Makefile", err).
			WithDetail("kernel_dir", kernelDir)
	}

	parts := map[string]string{"VERSION": "0", "PATCHLEVEL": "0", "SUBLEVEL": "0"}
	for _, m := range makefileVersionRe.FindAllStringSubmatch(string(raw), -1) {
		if m[2] != "" {
			parts[m[1]] = m[2]
		}
	}
	v, err := semver.NewVersion(fmt.Sprintf("%s.%s.%s", parts["VERSION"], parts["PATCHLEVEL"], parts["SUBLEVEL"]))
	if err != nil {
		return nil, kconfig.WrapError(kconfig.KindBridge, "could not parse kernel version from Makefile", err)
	}
	return v, nil
}

// checkKernelVersion enforces the minimum supported kernel release.
func checkKernelVersion(v *semver.Version) error {
	if v.LessThan(MinimumKernelVersion) {
		return kconfig.NewErrorf(kconfig.KindUnsupportedKernel,
			"kernel %s is not supported (minimum is %s)", v, MinimumKernelVersion)
	}
	return nil
}

// prepare writes the bridge C source and the interceptor into
// scripts/kconfig, drives `make defconfig` with the interceptor as the
// Makefile SHELL, and returns the shared library path together with the
// captured environment. The interceptor compiles the library (guarded
// by a sha256 over the C source) and emits the environment as JSON.
func prepare(kernelDir, bash string) (string, map[string]string, error) {
	kconfigDir := filepath.Join(kernelDir, "scripts", "kconfig")

	bridgeC := filepath.Join(kconfigDir, "autokernel_bridge.c")
	if err := os.WriteFile(bridgeC, bridgeSource, 0o644); err != nil {
		return "", nil, kconfig.WrapError(kconfig.KindBridge, "could not write bridge source", err).
			WithDetail("path", bridgeC)
	}

	if bash == "" {
		bash = "/usr/bin/env bash"
	}
	interceptor := filepath.Join(kconfigDir, "autokernel_interceptor.sh")
	script := append([]byte("#!"+bash+"\n"), interceptorSource...)
	if err := os.WriteFile(interceptor, script, 0o755); err != nil {
		return "", nil, kconfig.WrapError(kconfig.KindBridge, "could not write interceptor", err).
			WithDetail("path", interceptor)
	}
	interceptorAbs, err := filepath.Abs(interceptor)
	if err != nil {
		return "", nil, kconfig.WrapError(kconfig.KindBridge, "could not resolve interceptor path", err)
	}

	cmd := exec.Command("bash", "-c", "--", `umask 022 && make SHELL="$INTERCEPTOR_SHELL" defconfig`)
	cmd.Dir = kernelDir
	cmd.Env = append(os.Environ(), "INTERCEPTOR_SHELL="+interceptorAbs)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	if err != nil {
		return "", nil, kconfig.WrapError(kconfig.KindBridge, "bridge build via make failed", err).
			WithDetail("kernel_dir", kernelDir)
	}

	_, jsonPart, found := bytes.Cut(out, []byte(envMarker))
	if !found {
		return "", nil, kconfig.NewError(kconfig.KindBridge,
			"interceptor output did not contain the environment marker").
			WithDetail("marker", envMarker)
	}

	env := make(map[string]string)
	if err := json.Unmarshal(bytes.TrimSpace(jsonPart), &env); err != nil {
		return "", nil, kconfig.WrapError(kconfig.KindBridge, "could not decode captured environment", err)
	}
	if env["PWD"] == "" {
		abs, err := filepath.Abs(kernelDir)
		if err == nil {
			env["PWD"] = abs
		}
	}

	return filepath.Join(kconfigDir, "autokernel_bridge.so"), env, nil
}

// ConfigLine renders one .config line for a symbol name and value in
// the kernel's canonical format.
func ConfigLine(name string, value kconfig.Value, symType kconfig.SymbolType) string {
	full := "CONFIG_" + kconfig.NormalizeName(name)
	s := value.String()
	switch symType {
	case kconfig.TypeBoolean, kconfig.TypeTristate:
		if s == "n" {
			return "# " + full + " is not set"
		}
		return full + "=" + s
	case kconfig.TypeString:
		return full + "=" + quoteConfigString(s)
	default:
		return full + "=" + s
	}
}

func quoteConfigString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}
