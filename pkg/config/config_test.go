package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, `
[config]
script = "kernel.lua"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := filepath.Join(filepath.Dir(path), "kernel.lua")
	if cfg.Config.Script != want {
		t.Errorf("Script = %q, want %q", cfg.Config.Script, want)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[config]
script = "/etc/autokernel/kernel.lua"

[config.install]
enable = true
path = "/boot/config-{KERNEL_VERSION}"

[initramfs]
enable = true
builtin = false
command = ["dracut", "--kver", "{KERNEL_VERSION}", "{OUTPUT}"]

[initramfs.install]
enable = true
path = "/boot/initramfs-{KERNEL_VERSION}.img"

[modules.install]
enable = false

[kernel.install]
enable = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Config.Script != "/etc/autokernel/kernel.lua" {
		t.Errorf("Absolute script path should pass through, got %q", cfg.Config.Script)
	}
	if !cfg.Initramfs.Enable || len(cfg.Initramfs.Command) != 4 {
		t.Errorf("Unexpected initramfs section: %+v", cfg.Initramfs)
	}
}

func TestLoadRejectsMissingScript(t *testing.T) {
	path := writeConfig(t, `
[config]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an error for a config without a script")
	}
}

func TestLoadRejectsBadToml(t *testing.T) {
	path := writeConfig(t, `[config`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected an error for invalid TOML")
	}
}

func TestValidateRejectsEmptyScript(t *testing.T) {
	err := Validate(&Config{Config: ScriptConfig{Script: ""}})
	if err == nil {
		t.Fatal("Expected an error for an empty script path")
	}
	if !strings.Contains(err.Error(), "invalid") && !strings.Contains(err.Error(), "schema") {
		t.Errorf("Unexpected error: %v", err)
	}
}
