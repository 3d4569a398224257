package ratelimit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Rule is one route-pattern limit: at most Max requests per Window.
type Rule struct {
	Name   string // the pattern as configured, or "default"
	Max    int
	Window time.Duration
}

// Rules maps route patterns to limits. A pattern is an echo route path
// ("/v1/auth/login"), optionally prefixed by a method ("POST /v1/auth/login"),
// or ending in "*" to match every path under a prefix ("/v1/admin/*").
// Exact patterns win over prefixes; longer prefixes win over shorter;
// everything else falls back to Default.
type Rules struct {
	Default  Rule
	exact    map[string]Rule
	prefixes []prefixRule
}

type prefixRule struct {
	method string
	prefix string
	rule   Rule
}

// NewRules builds a rule set from a default limit and a pattern map.
func NewRules(def Rule, patterns map[string]Rule) Rules {
	def.Name = "default"
	rs := Rules{Default: def, exact: make(map[string]Rule)}
	for pattern, rule := range patterns {
		rule.Name = pattern
		method, path := splitPattern(pattern)
		if strings.HasSuffix(path, "*") {
			rs.prefixes = append(rs.prefixes, prefixRule{method: method, prefix: strings.TrimSuffix(path, "*"), rule: rule})
			continue
		}
		rs.exact[method+" "+path] = rule
	}
	sort.Slice(rs.prefixes, func(i, j int) bool {
		if len(rs.prefixes[i].prefix) != len(rs.prefixes[j].prefix) {
			return len(rs.prefixes[i].prefix) > len(rs.prefixes[j].prefix)
		}
		// method-qualified before method-less at equal length
		return rs.prefixes[i].method > rs.prefixes[j].method
	})
	return rs
}

func splitPattern(pattern string) (method, path string) {
	pattern = strings.TrimSpace(pattern)
	if i := strings.IndexByte(pattern, ' '); i > 0 {
		return strings.ToUpper(pattern[:i]), strings.TrimSpace(pattern[i+1:])
	}
	return "", pattern
}

// Match returns the rule for a request.
func (rs Rules) Match(method, path string) Rule {
	method = strings.ToUpper(method)
	if r, ok := rs.exact[method+" "+path]; ok {
		return r
	}
	if r, ok := rs.exact[" "+path]; ok {
		return r
	}
	for _, p := range rs.prefixes {
		if (p.method == "" || p.method == method) && strings.HasPrefix(path, p.prefix) {
			return p.rule
		}
	}
	return rs.Default
}

// ParseLimit parses "max/windowSeconds", e.g. "5/60".
func ParseLimit(s string) (Rule, error) {
	maxStr, winStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Rule{}, fmt.Errorf("invalid limit %q: want max/windowSeconds", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(maxStr))
	if err != nil || n < 1 {
		return Rule{}, fmt.Errorf("invalid max in limit %q", s)
	}
	win, err := strconv.Atoi(strings.TrimSpace(winStr))
	if err != nil || win < 1 {
		return Rule{}, fmt.Errorf("invalid window in limit %q", s)
	}
	return Rule{Max: n, Window: time.Duration(win) * time.Second}, nil
}

// ParseRules parses a default limit and a comma separated list of
// pattern=limit pairs:
//
//	POST /v1/auth/login=5/60,/v1/admin/*=30/60
func ParseRules(def, list string) (Rules, error) {
	d, err := ParseLimit(def)
	if err != nil {
		return Rules{}, fmt.Errorf("default rule: %w", err)
	}
	patterns := make(map[string]Rule)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		i := strings.LastIndexByte(item, '=')
		if i <= 0 {
			return Rules{}, fmt.Errorf("invalid rule %q: want pattern=max/windowSeconds", item)
		}
		r, err := ParseLimit(item[i+1:])
		if err != nil {
			return Rules{}, err
		}
		patterns[strings.TrimSpace(item[:i])] = r
	}
	return NewRules(d, patterns), nil
}
