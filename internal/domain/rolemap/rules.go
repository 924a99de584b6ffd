// Package rolemap computes local role changes from Azure AD group membership.
// Everything here is pure: no I/O, no logging, deterministic output.
package rolemap

import (
	"strings"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
)

// Skip reasons reported for rule lines that do not produce a MappingRule.
const (
	ReasonNoSeparator = "missing '|' separator"
	ReasonEmptyRole   = "empty role key"
	ReasonUnknownRole = "role not found"
	ReasonEmptyGroups = "no groups listed"
)

// MappingRule maps a resolved role to the group identifiers that grant it.
type MappingRule struct {
	RoleID string
	Groups []string
	// Line is the 1-based line number in the source text.
	Line int
}

// SkippedRule describes a non-empty rule line that was ignored.
type SkippedRule struct {
	Line   int
	Text   string
	Reason string
}

// ParseRules parses line-oriented "role|group1;group2" rule text.
// The role key resolves by exact id first, then by case-sensitive label.
// Lines that cannot be resolved are returned as skipped rather than failing the parse.
func ParseRules(text string, roles []domainauth.Role) ([]MappingRule, []SkippedRule) {
	byID := make(map[string]string, len(roles))
	byLabel := make(map[string]string, len(roles))
	for _, r := range roles {
		byID[r.ID] = r.ID
		if _, taken := byLabel[r.Label]; !taken {
			byLabel[r.Label] = r.ID
		}
	}

	var (
		rules   []MappingRule
		skipped []SkippedRule
	)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		skip := func(reason string) {
			skipped = append(skipped, SkippedRule{Line: i + 1, Text: line, Reason: reason})
		}

		key, groupText, found := strings.Cut(line, "|")
		if !found {
			skip(ReasonNoSeparator)
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			skip(ReasonEmptyRole)
			continue
		}

		roleID, ok := byID[key]
		if !ok {
			roleID, ok = byLabel[key]
		}
		if !ok {
			skip(ReasonUnknownRole)
			continue
		}

		groups := splitGroups(groupText)
		if len(groups) == 0 {
			skip(ReasonEmptyGroups)
			continue
		}

		rules = append(rules, MappingRule{RoleID: roleID, Groups: groups, Line: i + 1})
	}
	return rules, skipped
}

// ValidateRules reports every rule line that reconciliation would skip.
// It is intended for configuration-time checks; reconciliation itself keeps skipping silently.
func ValidateRules(text string, roles []domainauth.Role) []SkippedRule {
	_, skipped := ParseRules(text, roles)
	return skipped
}

func splitGroups(text string) []string {
	parts := strings.Split(text, ";")
	groups := make([]string, 0, len(parts))
	for _, p := range parts {
		if g := strings.TrimSpace(p); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
