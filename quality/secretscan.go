package quality

import (
	"context"
	"fmt"
	"regexp"
)

// defaultSecretPatterns mirrors gates.py's _DEFAULT_SECRET_PATTERNS.
var defaultSecretPatterns = []string{
	`password\s*=\s*['"][^'"]+['"]`,
	`api_key\s*=\s*['"][^'"]+['"]`,
	`secret\s*=\s*['"][^'"]+['"]`,
}

// SecretScanGate regex-sweeps a set of (path, text) blobs for hardcoded
// secrets, grounded on gates.py's SecretScanGate. Unlike the original it
// takes file content directly rather than reading the filesystem itself, so
// it composes with whatever diff/file source the caller already has.
type SecretScanGate struct {
	Files    map[string]string // path -> text content
	Patterns []string          // defaults to defaultSecretPatterns when nil

	compiled []*regexp.Regexp
}

// Name implements Gate.
func (g *SecretScanGate) Name() string { return "no_secrets" }

func (g *SecretScanGate) patterns() []*regexp.Regexp {
	if g.compiled != nil {
		return g.compiled
	}
	patterns := g.Patterns
	if patterns == nil {
		patterns = defaultSecretPatterns
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		g.compiled = append(g.compiled, re)
	}
	return g.compiled
}

type secretMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Pattern string `json:"pattern"`
}

// Run implements Gate.
func (g *SecretScanGate) Run(context.Context) Result {
	compiled := g.patterns()
	var matches []secretMatch
	seen := map[string]bool{}

	for path, text := range g.Files {
		for lineNo, line := range splitLines(text) {
			for _, re := range compiled {
				if re.MatchString(line) {
					matches = append(matches, secretMatch{Path: path, Line: lineNo + 1, Pattern: re.String()})
					seen[path] = true
				}
			}
		}
	}

	if len(matches) > 0 {
		return Result{
			Name:     g.Name(),
			Passed:   false,
			Required: true,
			Message:  fmt.Sprintf("secrets detected in %d file(s)", len(seen)),
			Details:  map[string]any{"matches": matches},
		}
	}
	return Result{Name: g.Name(), Passed: true, Required: true}
}

func splitLines(text string) []string {
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	lines = append(lines, text[start:])
	return lines
}
