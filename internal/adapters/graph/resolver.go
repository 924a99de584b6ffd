package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseURL is the Microsoft Graph v1.0 root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	profileSelect = "id,displayName,givenName,surname,jobTitle,mail,userPrincipalName,officeLocation,onPremisesExtensionAttributes"

	// maxGroupPages bounds @odata.nextLink traversal.
	maxGroupPages = 20
)

// Fetcher is the subset of Client the resolver needs.
type Fetcher interface {
	Get(ctx context.Context, rawURL, accessToken string) (json.RawMessage, error)
}

// Resolver builds UserInfo from /me and, when group mapping is enabled, /me/memberOf.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(fetcher Fetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

type profile struct {
	ID                            string                         `json:"id"`
	DisplayName                   string                         `json:"displayName"`
	GivenName                     string                         `json:"givenName"`
	Surname                       string                         `json:"surname"`
	JobTitle                      string                         `json:"jobTitle"`
	Mail                          string                         `json:"mail"`
	UserPrincipalName             string                         `json:"userPrincipalName"`
	OfficeLocation                string                         `json:"officeLocation"`
	OnPremisesExtensionAttributes domainauth.ExtensionAttributes `json:"onPremisesExtensionAttributes"`
}

type groupPage struct {
	Value    []domainauth.GraphGroup `json:"value"`
	NextLink string                  `json:"@odata.nextLink"`
}

// Resolve fetches the signed-in user's profile and group memberships.
// A failed profile call aborts resolution; a failed group call degrades to no groups.
func (r *Resolver) Resolve(ctx context.Context, accessToken string, cfg domainauth.ClientConfiguration) (domainauth.UserInfo, error) {
	base := strings.TrimSuffix(cfg.GraphBaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	var (
		p       profile
		groups  []domainauth.GraphGroup
		fetched bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p, err = r.fetchProfile(gctx, base, accessToken)
		return err
	})
	if cfg.MapADGroupsToRoles {
		// Group failures are absorbed; only the profile call may cancel gctx.
		g.Go(func() error {
			var err error
			groups, err = r.fetchGroups(gctx, base+"/me/memberOf", accessToken)
			if err != nil {
				if ctx.Err() == nil && gctx.Err() == nil {
					r.logger.ErrorContext(ctx, "graph group membership fetch failed",
						"endpoint", endpointOf(err, base+"/me/memberOf"),
						"error", err)
				}
				groups = nil
				return nil
			}
			fetched = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domainauth.UserInfo{}, err
	}

	info := domainauth.UserInfo{
		ID:                            p.ID,
		DisplayName:                   p.DisplayName,
		GivenName:                     p.GivenName,
		Surname:                       p.Surname,
		JobTitle:                      p.JobTitle,
		Mail:                          p.Mail,
		UserPrincipalName:             p.UserPrincipalName,
		OfficeLocation:                p.OfficeLocation,
		OnPremisesExtensionAttributes: p.OnPremisesExtensionAttributes,
		Name:                          DeriveName(p.UserPrincipalName, p.DisplayName),
		Groups:                        groups,
		GroupsFetched:                 fetched,
	}
	if info.Groups == nil {
		info.Groups = []domainauth.GraphGroup{}
	}

	if p.Mail != "" {
		info.Email = p.Mail
	} else {
		info.Email = p.UserPrincipalName
		r.logger.WarnContext(ctx, "graph profile has no mail, using userPrincipalName as email",
			"user_id", p.ID,
			"user_principal_name", p.UserPrincipalName)
	}

	if p.OnPremisesExtensionAttributes == nil {
		r.logger.InfoContext(ctx, "graph profile missing onPremisesExtensionAttributes",
			"user_id", p.ID,
			"hint", "grant User.Read.All or Directory.Read.All to read extension attributes")
	}

	return info, nil
}

// DeriveName returns the local part of upn, or displayName when upn is empty.
func DeriveName(upn, displayName string) string {
	if upn == "" {
		return displayName
	}
	name, _, _ := strings.Cut(upn, "@")
	return name
}

func (r *Resolver) fetchProfile(ctx context.Context, base, accessToken string) (profile, error) {
	raw, err := r.fetcher.Get(ctx, base+"/me?$select="+profileSelect, accessToken)
	if err != nil {
		return profile{}, err
	}
	var p profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return profile{}, apperrors.GraphRequestFailed(base+"/me", "decode profile", err)
	}
	return p, nil
}

func (r *Resolver) fetchGroups(ctx context.Context, next, accessToken string) ([]domainauth.GraphGroup, error) {
	var out []domainauth.GraphGroup
	for page := 0; next != "" && page < maxGroupPages; page++ {
		raw, err := r.fetcher.Get(ctx, next, accessToken)
		if err != nil {
			return nil, err
		}
		var gp groupPage
		if err := json.Unmarshal(raw, &gp); err != nil {
			return nil, apperrors.GraphRequestFailed(stripQuery(next), "decode memberOf", err)
		}
		out = append(out, gp.Value...)
		next = gp.NextLink
	}
	if next != "" {
		r.logger.WarnContext(ctx, "graph group membership truncated", "max_pages", maxGroupPages)
	}
	return out, nil
}

func endpointOf(err error, fallback string) string {
	if ep := apperrors.GetEndpoint(err); ep != "" {
		return ep
	}
	return fallback
}
