// Package dispatch maps worker roles and task kinds to spawn strategies. The
// mapping is a closed table, checked exhaustively when the registry is built,
// so a missing or misspelled role is a startup failure rather than a runtime
// string-match miss.
package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// Role identifies a class of worker executable.
type Role string

const (
	// RoleArchitect writes specs for backlog items that lack one.
	RoleArchitect Role = "architect"
	// RoleBuilder implements specced backlog items inside isolated contexts.
	RoleBuilder Role = "builder"
	// RolePlanner runs periodic replanning over the backlog.
	RolePlanner Role = "planner"
)

// Roles lists every known role in a stable order.
func Roles() []Role {
	return []Role{RoleArchitect, RoleBuilder, RolePlanner}
}

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleArchitect, RoleBuilder, RolePlanner:
		return true
	}
	return false
}

// Kind identifies the unit of work a task carries.
type Kind string

const (
	KindSpec      Kind = "spec"
	KindImplement Kind = "implement"
	KindReplan    Kind = "replan"
)

// Valid reports whether the kind is one of the closed set.
func (k Kind) Valid() bool {
	switch k {
	case KindSpec, KindImplement, KindReplan:
		return true
	}
	return false
}

// Each role handles exactly one task kind.
var roleKinds = map[Role]Kind{
	RoleArchitect: KindSpec,
	RoleBuilder:   KindImplement,
	RolePlanner:   KindReplan,
}

// KindFor returns the task kind a role handles.
func KindFor(role Role) (Kind, bool) {
	k, ok := roleKinds[role]
	return k, ok
}

// RoleFor returns the role that handles a task kind. The pairing is
// one-to-one, so at most one role matches.
func RoleFor(kind Kind) (Role, bool) {
	for role, k := range roleKinds {
		if k == kind {
			return role, true
		}
	}
	return "", false
}

// Default queue priorities per kind. Lower is more urgent: spec work keeps
// the look-ahead buffer full, replanning is background maintenance.
var kindPriorities = map[Kind]int{
	KindSpec:      3,
	KindImplement: 5,
	KindReplan:    7,
}

// DefaultPriority returns the queue priority used when a caller does not set
// one. Unknown kinds land mid-band.
func DefaultPriority(kind Kind) int {
	if p, ok := kindPriorities[kind]; ok {
		return p
	}
	return 5
}

// Strategy describes how to launch a worker for one {role, kind} pair.
type Strategy struct {
	Role            Role
	Kind            Kind
	Command         string
	BaseArgs        []string
	DefaultPriority int
	NeedsContext    bool // worker must run inside an isolated context
}

// ConfigError reports every problem found while building a registry. It is
// fatal at startup and never retried.
type ConfigError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("dispatch configuration invalid: %s", strings.Join(e.Problems, "; "))
}

// Registry is the validated, immutable dispatch table.
type Registry struct {
	strategies map[Role]Strategy
}

// NewRegistry builds the dispatch table from per-role command lines. Every
// role in the closed set must have a non-empty command; unknown role names
// are rejected. Command values may carry leading arguments ("worker --fast").
func NewRegistry(commands map[string]string) (*Registry, error) {
	var problems []string

	for name := range commands {
		if !Role(name).Valid() {
			problems = append(problems, fmt.Sprintf("unknown role %q", name))
		}
	}

	strategies := make(map[Role]Strategy, len(roleKinds))
	for _, role := range Roles() {
		command, ok := commands[string(role)]
		if !ok || strings.TrimSpace(command) == "" {
			problems = append(problems, fmt.Sprintf("no worker command for role %q", role))
			continue
		}

		fields := strings.Fields(command)
		kind := roleKinds[role]
		strategies[role] = Strategy{
			Role:            role,
			Kind:            kind,
			Command:         fields[0],
			BaseArgs:        append(fields[1:], "--role", string(role)),
			DefaultPriority: kindPriorities[kind],
			NeedsContext:    role == RoleBuilder,
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &ConfigError{Problems: problems}
	}
	return &Registry{strategies: strategies}, nil
}

// Lookup returns the strategy for a {role, kind} pair. The second return is
// false when the pair is not part of the closed table.
func (r *Registry) Lookup(role Role, kind Kind) (Strategy, bool) {
	s, ok := r.strategies[role]
	if !ok || s.Kind != kind {
		return Strategy{}, false
	}
	return cloneStrategy(s), true
}

// StrategyFor returns the strategy for a role and the kind it handles.
func (r *Registry) StrategyFor(role Role) (Strategy, bool) {
	s, ok := r.strategies[role]
	if !ok {
		return Strategy{}, false
	}
	return cloneStrategy(s), true
}

// All returns every strategy, sorted by role.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, cloneStrategy(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func cloneStrategy(s Strategy) Strategy {
	s.BaseArgs = append([]string(nil), s.BaseArgs...)
	return s
}
