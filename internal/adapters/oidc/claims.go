package oidc

import (
	"log/slog"

	jmespath "github.com/jmespath-community/go-jmespath"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
)

// DefaultGroupsClaim selects the Azure AD "groups" claim.
const DefaultGroupsClaim = "groups"

func mapIDClaims(claims map[string]any) domainauth.IDClaims {
	return domainauth.IDClaims{
		ObjectID:          stringClaim(claims, "oid"),
		PreferredUsername: stringClaim(claims, "preferred_username"),
	}
}

func stringClaim(claims map[string]any, name string) string {
	s, _ := claims[name].(string)
	return s
}

// extractGroups evaluates expr against the decoded claims and returns the
// inline group identifiers. Anything other than an array of strings yields nil.
// An Azure AD groups overage (_claim_names.groups) also yields nil; the
// memberOf call covers that case.
func extractGroups(logger *slog.Logger, expr string, claims map[string]any) []string {
	if expr == "" {
		expr = DefaultGroupsClaim
	}
	if names, ok := claims["_claim_names"].(map[string]any); ok {
		if _, overage := names["groups"]; overage {
			logger.Info("id_token groups overage, relying on graph memberOf")
			return nil
		}
	}

	res, err := jmespath.Search(expr, claims)
	if err != nil {
		logger.Warn("groups claim expression failed", "expression", expr, "error", err)
		return nil
	}
	items, ok := res.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, isString := it.(string)
		if !isString {
			return nil
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
