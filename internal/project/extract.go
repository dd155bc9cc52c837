package project

import (
	"regexp"
	"sort"
)

// Declaration patterns recognized by Extract. Purely textual and
// language-agnostic: function/def-style declarations for functions,
// var/let/const-style declarations for variables.
var (
	funcPatterns = []*regexp.Regexp{
		regexp.MustCompile(`function\s+(\w+)\s*\(`),
		regexp.MustCompile(`def\s+(\w+)\s*\(`),
		regexp.MustCompile(`const\s+(\w+)\s*=\s*\(`),
	}
	varPatterns = []*regexp.Regexp{
		regexp.MustCompile(`var\s+(\w+)`),
		regexp.MustCompile(`let\s+(\w+)`),
		regexp.MustCompile(`const\s+(\w+)`),
	}
)

// Extract scans source text for declared variable and function names.
// It is a heuristic continuity aid, not a parser: false positives and
// negatives are acceptable as long as the result is deterministic for
// identical input. Results are deduplicated and sorted.
func Extract(code string) (vars, funcs []string) {
	return matchAll(varPatterns, code), matchAll(funcPatterns, code)
}

func matchAll(patterns []*regexp.Regexp, code string) []string {
	seen := make(map[string]bool)
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatch(code, -1) {
			seen[m[1]] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Truncate returns at most n names, preserving order. Used to bound the
// continuity context passed to the model.
func Truncate(names []string, n int) []string {
	if len(names) <= n {
		return names
	}
	return names[:n]
}
