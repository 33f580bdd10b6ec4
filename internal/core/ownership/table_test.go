package ownership

import (
	"errors"
	"strings"
	"testing"
)

func TestNewTable_ValidPartition(t *testing.T) {
	table, err := NewTable(DefaultRules(), DefaultSharedWrites())
	if err != nil {
		t.Fatalf("expected default rules to validate, got: %v", err)
	}
	if len(table.Rules()) != len(DefaultRules()) {
		t.Errorf("expected %d rules, got %d", len(DefaultRules()), len(table.Rules()))
	}
}

func TestNewTable_RejectsMalformedRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"empty prefix", []Rule{{PathPrefix: "", Owners: []string{"builder"}}}},
		{"root prefix", []Rule{{PathPrefix: ".", Owners: []string{"builder"}}}},
		{"absolute prefix", []Rule{{PathPrefix: "/src", Owners: []string{"builder"}}}},
		{"escaping prefix", []Rule{{PathPrefix: "../src", Owners: []string{"builder"}}}},
		{"empty owners", []Rule{{PathPrefix: "src", Owners: nil}}},
		{"duplicate prefix", []Rule{
			{PathPrefix: "src", Owners: []string{"builder"}},
			{PathPrefix: "src/", Owners: []string{"architect"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.rules, nil); err == nil {
				t.Errorf("expected construction to fail for %s", tt.name)
			}
		})
	}
}

func TestNewTable_RejectsOverlapWithDifferentOwners(t *testing.T) {
	rules := []Rule{
		{PathPrefix: "docs", Owners: []string{"architect"}},
		{PathPrefix: "docs/decisions", Owners: []string{"planner"}},
	}
	if _, err := NewTable(rules, nil); err == nil {
		t.Fatal("expected overlapping rules with different owners to be fatal")
	}
}

func TestValidateNoOverlaps(t *testing.T) {
	bad := []Rule{
		{PathPrefix: "src", Owners: []string{"builder"}},
		{PathPrefix: "src/gen", Owners: []string{"architect"}},
		{PathPrefix: "plans", Owners: []string{"planner"}},
	}

	first := ValidateNoOverlaps(bad)
	if len(first) != 1 {
		t.Fatalf("expected 1 overlap, got %d", len(first))
	}
	if first[0].PrefixA != "src" || first[0].PrefixB != "src/gen" {
		t.Errorf("unexpected overlap pair: %q / %q", first[0].PrefixA, first[0].PrefixB)
	}

	// Deterministic on repeated runs.
	second := ValidateNoOverlaps(bad)
	if len(second) != 1 || second[0].String() != first[0].String() {
		t.Error("expected identical violations across repeated runs")
	}
}

func TestValidateNoOverlaps_SameOwnersAllowed(t *testing.T) {
	rules := []Rule{
		{PathPrefix: "src", Owners: []string{"builder"}},
		{PathPrefix: "src/internal", Owners: []string{"builder"}},
	}
	if overlaps := ValidateNoOverlaps(rules); len(overlaps) != 0 {
		t.Errorf("nested prefixes with identical owners should be sound, got %v", overlaps)
	}
}

func TestOwnerOf_LongestPrefixWins(t *testing.T) {
	table, err := NewTable([]Rule{
		{PathPrefix: "src", Owners: []string{"builder"}},
		{PathPrefix: "src/internal/deep", Owners: []string{"builder"}},
	}, nil)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	rule, ok := table.OwnerOf("src/internal/deep/file.go")
	if !ok {
		t.Fatal("expected a matching rule")
	}
	if rule.PathPrefix != "src/internal/deep" {
		t.Errorf("expected longest prefix src/internal/deep, got %q", rule.PathPrefix)
	}

	rule, ok = table.OwnerOf("src/main.go")
	if !ok || rule.PathPrefix != "src" {
		t.Errorf("expected prefix src for src/main.go, got %q (ok=%v)", rule.PathPrefix, ok)
	}
}

func TestOwnerOf_SegmentBoundaries(t *testing.T) {
	table, err := NewTable([]Rule{
		{PathPrefix: "src", Owners: []string{"builder"}},
	}, nil)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	// "srcmore" shares a string prefix with "src" but is a different segment.
	if _, ok := table.OwnerOf("srcmore/file.go"); ok {
		t.Error("expected no match for sibling directory srcmore")
	}
}

func TestCanWrite_DefaultDeny(t *testing.T) {
	table, err := NewTable(DefaultRules(), nil)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	if table.CanWrite("builder", "untracked/file.txt") {
		t.Error("expected default deny for a path outside every rule")
	}
}

func TestCanWrite_OwnerAllowedOthersDenied(t *testing.T) {
	table, err := NewTable(DefaultRules(), nil)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	if !table.CanWrite("architect", "specs/item-012.md") {
		t.Error("architect should own specs/")
	}
	if table.CanWrite("builder", "specs/item-012.md") {
		t.Error("builder must not write specs/")
	}
	if !table.CanWrite("builder", "src/items/item_012.go") {
		t.Error("builder should own src/")
	}
}

func TestAssertCanWrite_Violation(t *testing.T) {
	table, err := NewTable(DefaultRules(), nil)
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	err = table.AssertCanWrite("builder", "specs/item-001.md")
	if err == nil {
		t.Fatal("expected a write violation")
	}

	var violation *WriteViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected *WriteViolation, got %T", err)
	}
	if violation.Role != "builder" || violation.MatchedPrefix != "specs" {
		t.Errorf("unexpected violation detail: %+v", violation)
	}

	if err := table.AssertCanWrite("architect", "specs/item-001.md"); err != nil {
		t.Errorf("owner write should pass, got: %v", err)
	}
}

func TestCheck_SharedWriteDowngradesToWarning(t *testing.T) {
	table, err := NewTable(DefaultRules(), DefaultSharedWrites())
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	d := table.Check("builder", "STATUS.md")
	if !d.Allowed {
		t.Fatal("shared-write path should be allowed for a declared role")
	}
	if d.Warning == "" {
		t.Error("shared write should carry a warning")
	}

	// AssertCanWrite must not fail on a shared write.
	if err := table.AssertCanWrite("planner", "STATUS.md"); err != nil {
		t.Errorf("shared write should not be a violation, got: %v", err)
	}

	// A role outside the shared set still gets denied.
	if d := table.Check("reviewer", "STATUS.md"); d.Allowed {
		t.Error("role outside the shared-write set must be denied")
	}
}

func TestMirrorYAML(t *testing.T) {
	table, err := NewTable(DefaultRules(), DefaultSharedWrites())
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	out, err := table.MirrorYAML()
	if err != nil {
		t.Fatalf("MirrorYAML failed: %v", err)
	}

	text := string(out)
	for _, want := range []string{"specs", "src", "architect", "builder", "STATUS.md"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected audit listing to mention %q", want)
		}
	}
}
