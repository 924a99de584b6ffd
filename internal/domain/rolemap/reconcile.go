package rolemap

import (
	"sort"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
)

// GroupSet is the session's group membership keyed by both object id and display name.
// A name that equals another group's id collides by design of the source data.
type GroupSet map[string]struct{}

// NewGroupSet builds a GroupSet from flat identifiers (e.g. an ID token groups claim)
// and from memberOf objects, each contributing its display name and id.
func NewGroupSet(flat []string, memberOf []domainauth.GraphGroup) GroupSet {
	set := make(GroupSet, len(flat)+2*len(memberOf))
	for _, g := range flat {
		if g != "" {
			set[g] = struct{}{}
		}
	}
	for _, g := range memberOf {
		if g.DisplayName != "" {
			set[g.DisplayName] = struct{}{}
		}
		if g.ID != "" {
			set[g.ID] = struct{}{}
		}
	}
	return set
}

// Has reports membership by id or display name.
func (s GroupSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// ReconcileInput carries everything Reconcile needs; all slices are treated as sets.
type ReconcileInput struct {
	FlatGroups          []string
	MemberOf            []domainauth.GraphGroup
	MappingRules        string
	CurrentUserRoles    []string
	PreviousMappedRoles []string
	KnownRoles          []domainauth.Role
}

// ReconcileResult holds the role deltas and the set to persist for the next cycle.
type ReconcileResult struct {
	ToAdd     []string
	ToRemove  []string
	NewMapped []string
	Skipped   []SkippedRule
}

// Reconcile computes which roles to add and remove for a user.
// Only roles this engine granted earlier (PreviousMappedRoles) are ever removed.
func Reconcile(in ReconcileInput) ReconcileResult {
	groups := NewGroupSet(in.FlatGroups, in.MemberOf)
	rules, skipped := ParseRules(in.MappingRules, in.KnownRoles)

	mapped := make(map[string]struct{})
	for _, rule := range rules {
		for _, g := range rule.Groups {
			if groups.Has(g) {
				mapped[rule.RoleID] = struct{}{}
				break
			}
		}
	}

	current := toSet(in.CurrentUserRoles)
	previous := toSet(in.PreviousMappedRoles)

	var res ReconcileResult
	for r := range mapped {
		res.NewMapped = append(res.NewMapped, r)
		if _, has := current[r]; !has {
			res.ToAdd = append(res.ToAdd, r)
		}
	}
	for r := range previous {
		if _, still := mapped[r]; !still {
			res.ToRemove = append(res.ToRemove, r)
		}
	}
	sort.Strings(res.ToAdd)
	sort.Strings(res.ToRemove)
	sort.Strings(res.NewMapped)
	res.Skipped = skipped
	return res
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
