package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/autokernel/autokernel/pkg/kconfig"
)

func writeMakefile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Makefile"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestKernelVersion(t *testing.T) {
	dir := writeMakefile(t, `# SPDX-License-Identifier: GPL-2.0
VERSION = 5
PATCHLEVEL = 19
SUBLEVEL = 0
EXTRAVERSION =
NAME = Superb Owl
`)
	v, err := KernelVersion(dir)
	if err != nil {
		t.Fatalf("KernelVersion failed: %v", err)
	}
	if v.String() != "5.19.0" {
		t.Errorf("KernelVersion = %s, want 5.19.0", v)
	}
}

func TestKernelVersionEmptySublevel(t *testing.T) {
	dir := writeMakefile(t, "VERSION = 6\nPATCHLEVEL = 1\nSUBLEVEL =\n")
	v, err := KernelVersion(dir)
	if err != nil {
		t.Fatalf("KernelVersion failed: %v", err)
	}
	if v.String() != "6.1.0" {
		t.Errorf("KernelVersion = %s, want 6.1.0", v)
	}
}

func TestCheckKernelVersionRejectsOldKernels(t *testing.T) {
	dir := writeMakefile(t, "VERSION = 4\nPATCHLEVEL = 1\nSUBLEVEL = 15\n")
	v, err := KernelVersion(dir)
	if err != nil {
		t.Fatalf("KernelVersion failed: %v", err)
	}
	err = checkKernelVersion(v)
	var e *kconfig.Error
	if !errors.As(err, &e) || e.Kind != kconfig.KindUnsupportedKernel {
		t.Fatalf("Expected unsupported-kernel error, got %v", err)
	}
}

func TestCheckKernelVersionAcceptsMinimum(t *testing.T) {
	dir := writeMakefile(t, "VERSION = 4\nPATCHLEVEL = 2\nSUBLEVEL = 0\n")
	v, err := KernelVersion(dir)
	if err != nil {
		t.Fatalf("KernelVersion failed: %v", err)
	}
	if err := checkKernelVersion(v); err != nil {
		t.Errorf("Expected 4.2.0 to be supported, got %v", err)
	}
}

func TestConfigLine(t *testing.T) {
	tests := []struct {
		name  string
		value kconfig.Value
		typ   kconfig.SymbolType
		want  string
	}{
		{"NET", kconfig.Auto("y"), kconfig.TypeBoolean, "CONFIG_NET=y"},
		{"E1000", kconfig.TriValue(kconfig.Mod), kconfig.TypeTristate, "CONFIG_E1000=m"},
		{"WLAN", kconfig.Auto("n"), kconfig.TypeBoolean, "# CONFIG_WLAN is not set"},
		{"NR_CPUS", kconfig.IntValue(64), kconfig.TypeInt, "CONFIG_NR_CPUS=64"},
		{"CMDLINE", kconfig.StringValue(`a "b"`), kconfig.TypeString, `CONFIG_CMDLINE="a \"b\""`},
	}
	for _, tt := range tests {
		if got := ConfigLine(tt.name, tt.value, tt.typ); got != tt.want {
			t.Errorf("ConfigLine(%s) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEnvBlock(t *testing.T) {
	block := envBlock(map[string]string{"KERNELVERSION": "5.19.0"})
	want := "KERNELVERSION=5.19.0\x00\x00"
	if string(block) != want {
		t.Errorf("envBlock = %q, want %q", block, want)
	}
}

func TestDecodeExpr(t *testing.T) {
	a := &Symbol{name: "A", symType: kconfig.TypeBoolean}
	b := &Symbol{name: "B", symType: kconfig.TypeBoolean}
	br := &Bridge{
		byHandle: map[SymbolHandle]*Symbol{
			0x10: a,
			0x20: b,
		},
	}

	raw := []byte(`{"type":"and","left":{"type":"symbol","lsym":"0x10"},"right":{"type":"not","left":{"type":"symbol","lsym":"0x20"}}}`)
	e, err := br.decodeExpr(raw)
	if err != nil {
		t.Fatalf("decodeExpr failed: %v", err)
	}
	if got := e.String(); got != "(A && !B)" {
		t.Errorf("Decoded expression = %q, want (A && !B)", got)
	}
}

func TestDecodeExprComparison(t *testing.T) {
	a := &Symbol{name: "A", symType: kconfig.TypeTristate}
	y := &Symbol{name: "y", symType: kconfig.TypeUnknown}
	br := &Bridge{
		byHandle: map[SymbolHandle]*Symbol{
			0x10: a,
			0x30: y,
		},
	}

	raw := []byte(`{"type":"equal","lsym":"0x10","rsym":"0x30"}`)
	e, err := br.decodeExpr(raw)
	if err != nil {
		t.Fatalf("decodeExpr failed: %v", err)
	}
	if got := e.String(); got != "(A == y)" {
		t.Errorf("Decoded expression = %q, want (A == y)", got)
	}
}

func TestDecodeExprNull(t *testing.T) {
	br := &Bridge{byHandle: map[SymbolHandle]*Symbol{}}
	e, err := br.decodeExpr([]byte("null"))
	if err != nil || e != nil {
		t.Errorf("Expected nil expression for null, got %v, %v", e, err)
	}
}

func TestDecodeExprRejectsBadAddress(t *testing.T) {
	br := &Bridge{byHandle: map[SymbolHandle]*Symbol{}}
	_, err := br.decodeExpr([]byte(`{"type":"symbol","lsym":"zzz"}`))
	if err == nil {
		t.Fatal("Expected an error for a malformed symbol address")
	}
}

func TestEnvMarkerSplit(t *testing.T) {
	out := "make noise\nmore noise\n" + envMarker + "\n{\"KERNELVERSION\":\"5.19.0\"}\n"
	_, jsonPart, found := strings.Cut(out, envMarker)
	if !found {
		t.Fatal("Expected marker to be found")
	}
	if !strings.Contains(jsonPart, "KERNELVERSION") {
		t.Errorf("Unexpected json part %q", jsonPart)
	}
}
