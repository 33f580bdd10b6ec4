// Package ownership contains the pure write-partition logic that keeps
// concurrently running workers from mutating the same paths. The rule table is
// immutable after construction: validation happens once, before any work is
// accepted, and reads never need locking.
package ownership

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule grants write access for everything under PathPrefix to the listed roles.
// Prefixes are slash-separated paths relative to the managed tree root.
type Rule struct {
	PathPrefix string
	Owners     []string
}

// Overlap describes a pair of rules where one prefix contains the other but
// the owner sets differ. Any overlap is a fatal configuration error.
type Overlap struct {
	PrefixA string
	OwnersA []string
	PrefixB string
	OwnersB []string
}

// String renders the overlap for startup diagnostics.
func (o Overlap) String() string {
	return fmt.Sprintf("rules %q (owners: %s) and %q (owners: %s) overlap with different owners",
		o.PrefixA, strings.Join(o.OwnersA, ","), o.PrefixB, strings.Join(o.OwnersB, ","))
}

// WriteViolation is returned by AssertCanWrite when a role attempts to write
// a path it does not own. It is fatal to the write attempt, not the process.
type WriteViolation struct {
	Role          string
	Path          string
	MatchedPrefix string   // empty when no rule covers the path
	Owners        []string // owners of the matched rule, nil when unmatched
}

// Error implements the error interface.
func (v *WriteViolation) Error() string {
	if v.MatchedPrefix == "" {
		return fmt.Sprintf("ownership violation: no rule covers %q (default deny for role %s)", v.Path, v.Role)
	}
	return fmt.Sprintf("ownership violation: role %s may not write %q (prefix %q owned by %s)",
		v.Role, v.Path, v.MatchedPrefix, strings.Join(v.Owners, ","))
}

// Decision is the outcome of a single write check.
type Decision struct {
	Allowed bool
	Warning string // set when the write is allowed only as a shared write
	Matched string // the rule prefix that decided the outcome, empty if none
}

// Table is the validated, immutable ownership partition.
type Table struct {
	rules        []Rule
	sharedWrites map[string][]string
}

// NewTable validates and builds an ownership table. Rules with malformed
// prefixes, empty owner sets, duplicate prefixes, or overlapping prefixes
// with different owners are rejected. The returned table never changes.
func NewTable(rules []Rule, sharedWrites map[string][]string) (*Table, error) {
	normalized := make([]Rule, 0, len(rules))
	seen := make(map[string]bool, len(rules))

	for i, r := range rules {
		prefix, err := normalizePrefix(r.PathPrefix)
		if err != nil {
			return nil, fmt.Errorf("ownership rule %d: %w", i, err)
		}
		if len(r.Owners) == 0 {
			return nil, fmt.Errorf("ownership rule %d (%q): empty owner set", i, prefix)
		}
		if seen[prefix] {
			return nil, fmt.Errorf("ownership rule %d: duplicate prefix %q", i, prefix)
		}
		seen[prefix] = true

		owners := append([]string(nil), r.Owners...)
		sort.Strings(owners)
		normalized = append(normalized, Rule{PathPrefix: prefix, Owners: owners})
	}

	if overlaps := ValidateNoOverlaps(normalized); len(overlaps) > 0 {
		msgs := make([]string, len(overlaps))
		for i, o := range overlaps {
			msgs[i] = o.String()
		}
		return nil, fmt.Errorf("ownership table invalid: %s", strings.Join(msgs, "; "))
	}

	sort.Slice(normalized, func(i, j int) bool {
		return normalized[i].PathPrefix < normalized[j].PathPrefix
	})

	shared := make(map[string][]string, len(sharedWrites))
	for p, roles := range sharedWrites {
		clean, err := normalizePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("shared-write path %q: %w", p, err)
		}
		cp := append([]string(nil), roles...)
		sort.Strings(cp)
		shared[clean] = cp
	}

	return &Table{rules: normalized, sharedWrites: shared}, nil
}

// ValidateNoOverlaps returns every pair of rules where one prefix contains the
// other but the owner sets differ. The result is deterministic across runs:
// pairs are reported in sorted prefix order. An empty result means the
// partition is sound.
func ValidateNoOverlaps(rules []Rule) []Overlap {
	sorted := append([]Rule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PathPrefix < sorted[j].PathPrefix
	})

	var overlaps []Overlap
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if !prefixContains(a.PathPrefix, b.PathPrefix) && !prefixContains(b.PathPrefix, a.PathPrefix) {
				continue
			}
			if sameOwners(a.Owners, b.Owners) {
				continue
			}
			overlaps = append(overlaps, Overlap{
				PrefixA: a.PathPrefix,
				OwnersA: append([]string(nil), a.Owners...),
				PrefixB: b.PathPrefix,
				OwnersB: append([]string(nil), b.Owners...),
			})
		}
	}
	return overlaps
}

// Rules returns a copy of the rule list, sorted by prefix.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = Rule{PathPrefix: r.PathPrefix, Owners: append([]string(nil), r.Owners...)}
	}
	return out
}

// SharedWrites returns a copy of the shared-write path map.
func (t *Table) SharedWrites() map[string][]string {
	out := make(map[string][]string, len(t.sharedWrites))
	for p, roles := range t.sharedWrites {
		out[p] = append([]string(nil), roles...)
	}
	return out
}

// OwnerOf resolves the rule governing a path. When several prefixes match,
// the longest (most specific) one wins. The second return is false when no
// rule covers the path.
func (t *Table) OwnerOf(p string) (Rule, bool) {
	clean, err := normalizePrefix(p)
	if err != nil {
		return Rule{}, false
	}

	best := -1
	for i, r := range t.rules {
		if !prefixContains(r.PathPrefix, clean) {
			continue
		}
		if best == -1 || len(r.PathPrefix) > len(t.rules[best].PathPrefix) {
			best = i
		}
	}
	if best == -1 {
		return Rule{}, false
	}
	r := t.rules[best]
	return Rule{PathPrefix: r.PathPrefix, Owners: append([]string(nil), r.Owners...)}, true
}

// CanWrite reports whether role may write path. Paths outside every rule are
// denied (default deny).
func (t *Table) CanWrite(role, p string) bool {
	rule, ok := t.OwnerOf(p)
	if !ok {
		return false
	}
	return containsRole(rule.Owners, role)
}

// Check evaluates a write and explains the outcome. Writes to a declared
// shared-write path by a role with partial ownership are allowed but carry a
// warning instead of failing.
func (t *Table) Check(role, p string) Decision {
	clean, err := normalizePrefix(p)
	if err != nil {
		return Decision{Allowed: false}
	}

	rule, matched := t.OwnerOf(clean)
	if matched && containsRole(rule.Owners, role) {
		return Decision{Allowed: true, Matched: rule.PathPrefix}
	}

	if roles, ok := t.sharedWrites[clean]; ok && containsRole(roles, role) {
		return Decision{
			Allowed: true,
			Matched: rule.PathPrefix,
			Warning: fmt.Sprintf("shared write: role %s writing %q without exclusive ownership", role, clean),
		}
	}

	if matched {
		return Decision{Allowed: false, Matched: rule.PathPrefix}
	}
	return Decision{Allowed: false}
}

// AssertCanWrite returns a *WriteViolation unless the write is permitted.
// Shared-write paths do not fail here; callers surface the warning from Check.
func (t *Table) AssertCanWrite(role, p string) error {
	d := t.Check(role, p)
	if d.Allowed {
		return nil
	}

	clean, _ := normalizePrefix(p)
	v := &WriteViolation{Role: role, Path: clean, MatchedPrefix: d.Matched}
	if d.Matched != "" {
		if rule, ok := t.OwnerOf(clean); ok {
			v.Owners = rule.Owners
		}
	}
	return v
}

// MirrorYAML renders the table as a human-readable audit listing. The table
// itself is code-defined; the YAML form is informational only.
func (t *Table) MirrorYAML() ([]byte, error) {
	type yamlRule struct {
		Prefix string   `yaml:"prefix"`
		Owners []string `yaml:"owners"`
	}
	doc := struct {
		Rules        []yamlRule          `yaml:"rules"`
		SharedWrites map[string][]string `yaml:"shared_writes,omitempty"`
	}{}

	for _, r := range t.rules {
		doc.Rules = append(doc.Rules, yamlRule{Prefix: r.PathPrefix, Owners: r.Owners})
	}
	doc.SharedWrites = t.sharedWrites

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render ownership table: %w", err)
	}
	return out, nil
}

// DefaultRules is the built-in partition of the managed work tree. Specs
// belong to the architect, source and tests to the builder, and planning
// artifacts to the planner.
func DefaultRules() []Rule {
	return []Rule{
		{PathPrefix: "specs", Owners: []string{"architect"}},
		{PathPrefix: "docs", Owners: []string{"architect"}},
		{PathPrefix: "src", Owners: []string{"builder"}},
		{PathPrefix: "tests", Owners: []string{"builder"}},
		{PathPrefix: "plans", Owners: []string{"planner"}},
		{PathPrefix: "backlog", Owners: []string{"planner"}},
	}
}

// DefaultSharedWrites lists the paths every role may append to, with a
// warning instead of a violation. STATUS.md is the cross-role handoff file.
func DefaultSharedWrites() map[string][]string {
	return map[string][]string{
		"STATUS.md": {"architect", "builder", "planner"},
	}
}

func normalizePrefix(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	clean := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	clean = strings.TrimPrefix(clean, "./")
	clean = strings.TrimSuffix(clean, "/")
	if clean == "" || clean == "." {
		return "", fmt.Errorf("path %q resolves to the tree root", p)
	}
	if strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("path %q must be relative to the managed tree", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the managed tree", p)
	}
	return clean, nil
}

// prefixContains reports whether p covers sub at a path-segment boundary.
func prefixContains(p, sub string) bool {
	return sub == p || strings.HasPrefix(sub, p+"/")
}

func sameOwners(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func containsRole(owners []string, role string) bool {
	for _, o := range owners {
		if o == role {
			return true
		}
	}
	return false
}
