package dispatch

import (
	"errors"
	"strings"
	"testing"
)

func validCommands() map[string]string {
	return map[string]string{
		"architect": "foreman-worker",
		"builder":   "foreman-worker",
		"planner":   "foreman-worker",
	}
}

func TestNewRegistry_CompleteTable(t *testing.T) {
	reg, err := NewRegistry(validCommands())
	if err != nil {
		t.Fatalf("expected complete table to validate, got: %v", err)
	}

	if got := len(reg.All()); got != 3 {
		t.Fatalf("expected 3 strategies, got %d", got)
	}

	s, ok := reg.Lookup(RoleBuilder, KindImplement)
	if !ok {
		t.Fatal("expected builder/implement to resolve")
	}
	if s.Command != "foreman-worker" {
		t.Errorf("unexpected command %q", s.Command)
	}
	if !s.NeedsContext {
		t.Error("builder strategy should require an isolated context")
	}
}

func TestNewRegistry_MissingRoleIsFatal(t *testing.T) {
	commands := validCommands()
	delete(commands, "planner")

	_, err := NewRegistry(commands)
	if err == nil {
		t.Fatal("expected missing role to fail construction")
	}

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if !strings.Contains(cfgErr.Error(), "planner") {
		t.Errorf("error should name the missing role: %v", cfgErr)
	}
}

func TestNewRegistry_CollectsAllProblems(t *testing.T) {
	commands := map[string]string{
		"architect": "foreman-worker",
		"builder":   "   ",
		"oracle":    "whatever",
	}

	_, err := NewRegistry(commands)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T", err)
	}

	// Empty builder command, unknown role, missing planner.
	if len(cfgErr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %d: %v", len(cfgErr.Problems), cfgErr.Problems)
	}
}

func TestNewRegistry_SplitsCommandArguments(t *testing.T) {
	commands := validCommands()
	commands["architect"] = "foreman-worker --model fast"

	reg, err := NewRegistry(commands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, _ := reg.StrategyFor(RoleArchitect)
	if s.Command != "foreman-worker" {
		t.Errorf("expected executable foreman-worker, got %q", s.Command)
	}
	want := []string{"--model", "fast", "--role", "architect"}
	if len(s.BaseArgs) != len(want) {
		t.Fatalf("unexpected base args: %v", s.BaseArgs)
	}
	for i := range want {
		if s.BaseArgs[i] != want[i] {
			t.Errorf("base arg %d = %q, want %q", i, s.BaseArgs[i], want[i])
		}
	}
}

func TestLookup_RejectsMismatchedPair(t *testing.T) {
	reg, err := NewRegistry(validCommands())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := reg.Lookup(RoleArchitect, KindImplement); ok {
		t.Error("architect/implement is not part of the closed table")
	}
	if _, ok := reg.Lookup(Role("reviewer"), KindSpec); ok {
		t.Error("unknown role must not resolve")
	}
}

func TestKindFor(t *testing.T) {
	tests := []struct {
		role Role
		want Kind
	}{
		{RoleArchitect, KindSpec},
		{RoleBuilder, KindImplement},
		{RolePlanner, KindReplan},
	}
	for _, tt := range tests {
		got, ok := KindFor(tt.role)
		if !ok || got != tt.want {
			t.Errorf("KindFor(%s) = %s (ok=%v), want %s", tt.role, got, ok, tt.want)
		}
	}

	if _, ok := KindFor(Role("reviewer")); ok {
		t.Error("unknown role should not map to a kind")
	}
}

func TestRoleFor(t *testing.T) {
	tests := []struct {
		kind Kind
		want Role
	}{
		{KindSpec, RoleArchitect},
		{KindImplement, RoleBuilder},
		{KindReplan, RolePlanner},
	}
	for _, tt := range tests {
		got, ok := RoleFor(tt.kind)
		if !ok || got != tt.want {
			t.Errorf("RoleFor(%s) = %s (ok=%v), want %s", tt.kind, got, ok, tt.want)
		}
	}

	if _, ok := RoleFor(Kind("audit")); ok {
		t.Error("unknown kind should not map to a role")
	}
}

func TestRoleAndKindValidity(t *testing.T) {
	for _, r := range Roles() {
		if !r.Valid() {
			t.Errorf("role %s should be valid", r)
		}
	}
	if Role("intern").Valid() {
		t.Error("unknown role must be invalid")
	}
	if !KindReplan.Valid() || Kind("review").Valid() {
		t.Error("kind validity misclassified")
	}
}
