// Package permission implements the permission manager and tool proxy from
// spec §4.K: profile resolution, path/tool/risk gating, and approval
// persistence. Profile merging follows the allow/block-list shape of
// features/policy/basic.Engine, adapted from "which tools a planner may
// call next" to "does this tool/path/profile combination pass".
package permission

import (
	"path"
	"strings"

	"github.com/subagentctl/subagentctl/model"
)

// Manager resolves and evaluates PermissionProfiles. A profile named
// "default" is always effective even if the caller never registers one
// explicitly (spec §3).
type Manager struct {
	profiles    map[string]model.PermissionProfile
	projectRoot string
}

// New constructs a Manager rooted at projectRoot (used to resolve relative
// paths and detect escapes), seeded with the always-present default
// profile.
func New(projectRoot string) *Manager {
	m := &Manager{
		profiles:    map[string]model.PermissionProfile{"default": model.DefaultProfile()},
		projectRoot: projectRoot,
	}
	return m
}

// Register adds or replaces a named profile. Registering "default"
// overrides the built-in default.
func (m *Manager) Register(p model.PermissionProfile) { m.profiles[p.Name] = p }

// Profile resolves name, falling back to "default" when name is empty or
// unregistered.
func (m *Manager) Profile(name string) model.PermissionProfile {
	if name != "" {
		if p, ok := m.profiles[name]; ok {
			return p
		}
	}
	return m.profiles["default"]
}

// Operation names the kind of filesystem action a tool call performs.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

func (o Operation) isMutating() bool {
	return o == OpWrite || o == OpEdit || o == OpDelete
}

// Flags carries the non-path attributes of a tool call that profile rules
// key off (spec §4.K).
type Flags struct {
	RequiresBash    bool
	RequiresNetwork bool
}

// Result is the outcome of Validate.
type Result struct {
	Allowed    bool
	Reason     string
	Violations []string
}

// Validate checks one tool call against profile, in the exact order spec
// §4.K lists:
//  1. tool must be in profile's allowed list, if that list is non-empty.
//  2. RequiresBash implies profile permits bash.
//  3. RequiresNetwork implies profile permits network.
//  4. path resolved; outside project root or matching paths_forbidden denies.
//  5. non-empty paths_allowed and no match denies.
//  6. mutating operation on a test path with can_modify_tests=false denies.
func (m *Manager) Validate(tool string, op Operation, filePath string, flags Flags, profile model.PermissionProfile) Result {
	if len(profile.Tools) > 0 && !contains(profile.Tools, tool) {
		return deny("tool:"+tool, "tool not in profile allowlist")
	}
	if flags.RequiresBash && !profile.CanRunBash {
		return deny("tool:"+tool, "profile does not permit bash")
	}
	if flags.RequiresNetwork && !profile.CanAccessNetwork {
		return deny("tool:"+tool, "profile does not permit network access")
	}

	if filePath != "" {
		resolved := m.resolve(filePath)
		if m.escapesRoot(resolved) {
			return deny("path:"+filePath, "path escapes project root")
		}
		if matchesAny(profile.PathsForbidden, resolved) || matchesAny(profile.PathsForbidden, filePath) {
			return deny("path:"+filePath, "path matches paths_forbidden")
		}
		// Open Question 2 (SPEC_FULL.md): paths_allowed=[] means allow-all.
		if len(profile.PathsAllowed) > 0 && !matchesAny(profile.PathsAllowed, resolved) && !matchesAny(profile.PathsAllowed, filePath) {
			return deny("path:"+filePath, "path does not match paths_allowed")
		}
		if op.isMutating() && IsTestPath(filePath) && !profile.CanModifyTests {
			return deny("path:"+filePath, "profile does not permit modifying tests")
		}
	}

	return Result{Allowed: true}
}

func deny(reason, violation string) Result {
	return Result{Allowed: false, Reason: reason, Violations: []string{violation}}
}

// IsTestPath reports whether p looks like a protected test path: it begins
// with "tests/" or its basename begins with "test_" (spec §4.K).
func IsTestPath(p string) bool {
	clean := strings.TrimPrefix(filepathToSlash(p), "./")
	if strings.HasPrefix(clean, "tests/") {
		return true
	}
	return strings.HasPrefix(path.Base(clean), "test_")
}

func filepathToSlash(p string) string { return strings.ReplaceAll(p, "\\", "/") }

func (m *Manager) resolve(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	if m.projectRoot == "" {
		return path.Clean(p)
	}
	return path.Clean(path.Join(m.projectRoot, p))
}

func (m *Manager) escapesRoot(resolved string) bool {
	if m.projectRoot == "" {
		return false
	}
	root := path.Clean(m.projectRoot)
	return resolved != root && !strings.HasPrefix(resolved, root+"/")
}

func matchesAny(globs []string, p string) bool {
	for _, g := range globs {
		if ok, _ := path.Match(g, p); ok {
			return true
		}
		// path.Match doesn't support "**"; treat a "**" glob as a simple
		// prefix match on the segment before it, which covers the
		// spec's examples (e.g. "src/**").
		if idx := strings.Index(g, "**"); idx >= 0 {
			prefix := g[:idx]
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
