package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const denyUnsetNet = `package autokernel

deny contains msg if {
	input.config.NET != "y"
	msg := "networking must be built in"
}
`

const warnModules = `package autokernel

deny contains msg if {
	input.config.MODULES == "y"
	msg := "module support is discouraged for this target"
}
`

func TestEvaluateDeny(t *testing.T) {
	engine, err := NewEngine(context.Background(),
		[]Policy{{Name: "require_net", Rego: denyUnsetNet, Severity: SeverityError}},
		zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	result, err := engine.Evaluate(context.Background(),
		map[string]string{"NET": "n"}, "5.19.0")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected the check to fail")
	}
	if len(result.Violations) != 1 || result.Violations[0].Policy != "require_net" {
		t.Errorf("Unexpected violations: %+v", result.Violations)
	}
}

func TestEvaluatePass(t *testing.T) {
	engine, err := NewEngine(context.Background(),
		[]Policy{{Name: "require_net", Rego: denyUnsetNet, Severity: SeverityError}},
		zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	result, err := engine.Evaluate(context.Background(),
		map[string]string{"NET": "y"}, "5.19.0")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed || len(result.Violations) != 0 {
		t.Errorf("Expected a clean pass, got %+v", result)
	}
}

func TestWarningSeverityDoesNotFail(t *testing.T) {
	engine, err := NewEngine(context.Background(),
		[]Policy{{Name: "modules_warn", Rego: warnModules, Severity: SeverityWarning}},
		zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	result, err := engine.Evaluate(context.Background(),
		map[string]string{"MODULES": "y"}, "5.19.0")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Error("Expected warnings not to fail the check")
	}
	if len(result.Violations) != 1 {
		t.Errorf("Expected 1 warning violation, got %d", len(result.Violations))
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "require_net.rego"), []byte(denyUnsetNet), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "modules_warn.rego"), []byte(warnModules), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a policy"), 0o644); err != nil {
		t.Fatal(err)
	}

	policies, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	bySeverity := map[string]Severity{}
	for _, p := range policies {
		bySeverity[p.Name] = p.Severity
	}
	if bySeverity["require_net"] != SeverityError {
		t.Errorf("Expected require_net to be error severity")
	}
	if bySeverity["modules_warn"] != SeverityWarning {
		t.Errorf("Expected modules_warn to be warning severity")
	}
}
