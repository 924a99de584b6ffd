package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	"github.com/target/aad-connect/internal/domain/rolemap"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/observability/metrics"
	"github.com/target/aad-connect/internal/ports"
)

// Keyed state location of the roles granted by the previous reconciliation.
const (
	StateNamespace         = "aad_connect"
	PreviousMappedRolesKey = "previous_mapped_roles"
)

// Role change operations, used as metric and log labels.
const (
	opAdd    = "add"
	opRemove = "remove"
)

// DefaultAdminRoles are the role ids or labels treated as administrative when none are configured.
var DefaultAdminRoles = []string{"administrator", "admin"}

// RoleSyncStores groups the stores RoleSyncService reads and mutates.
type RoleSyncStores struct {
	Roles    ports.RoleStore
	State    ports.StateStore
	Accounts ports.AccountStore
}

// RoleSyncServiceOptions groups dependencies for RoleSyncService.
type RoleSyncServiceOptions struct {
	Stores RoleSyncStores // Required
	// AdminRoles lists role ids or labels whose grant unblocks a blocked account.
	AdminRoles []string
	Obs        Observability
}

// RoleSyncService applies group-derived role changes to a user and remembers what it granted.
type RoleSyncService struct {
	roles      ports.RoleStore
	state      ports.StateStore
	accounts   ports.AccountStore
	adminRoles []string
	logger     *slog.Logger
	metrics    *metrics.Recorder
}

// NewRoleSyncService constructs a RoleSyncService. It panics when a store is missing.
func NewRoleSyncService(opts RoleSyncServiceOptions) *RoleSyncService {
	if opts.Stores.Roles == nil || opts.Stores.State == nil || opts.Stores.Accounts == nil {
		panic("role sync: Roles, State and Accounts stores are required")
	}
	admin := opts.AdminRoles
	if len(admin) == 0 {
		admin = DefaultAdminRoles
	}
	return &RoleSyncService{
		roles:      opts.Stores.Roles,
		state:      opts.Stores.State,
		accounts:   opts.Stores.Accounts,
		adminRoles: admin,
		logger:     opts.Obs.logger(),
		metrics:    opts.Obs.Metrics,
	}
}

// SyncInput carries the user's group membership and the rule text for one reconciliation.
type SyncInput struct {
	UserID       string
	FlatGroups   []string
	MemberOf     []domainauth.GraphGroup
	MappingRules string
	// GroupsUnavailable is set when the memberOf lookup failed and MemberOf is empty as a result.
	GroupsUnavailable bool
}

// SyncResult reports what a reconciliation changed.
type SyncResult struct {
	Added   []string
	Removed []string
	// Failed lists role ids whose change the role store rejected.
	Failed  []string
	Skipped []rolemap.SkippedRule
	// Unblocked is set when an administrative grant activated a blocked account.
	Unblocked bool
	// Notice is the user-facing message shown after an administrative unblock.
	Notice string
}

// Sync reconciles the user's roles against their group membership.
// Individual role failures are logged and do not stop the remaining changes.
func (s *RoleSyncService) Sync(ctx context.Context, in SyncInput) (*SyncResult, error) {
	if in.UserID == "" {
		return nil, apperrors.ValidationField("user_id", "user id is required")
	}

	previous, err := s.previousMapped(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("read previous mapped roles: %w", err)
	}
	known, err := s.roles.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	current, err := s.roles.UserRoles(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}

	rec := rolemap.Reconcile(rolemap.ReconcileInput{
		FlatGroups:          in.FlatGroups,
		MemberOf:            in.MemberOf,
		MappingRules:        in.MappingRules,
		CurrentUserRoles:    current,
		PreviousMappedRoles: previous,
		KnownRoles:          known,
	})
	for _, sk := range rec.Skipped {
		s.logger.WarnContext(ctx, "group mapping rule skipped",
			"line", sk.Line,
			"rule", sk.Text,
			"reason", sk.Reason,
		)
	}

	if in.GroupsUnavailable && len(rec.ToRemove) > 0 {
		s.logger.WarnContext(ctx, "removing mapped roles without fetched group membership",
			"user_id", in.UserID,
			"roles", rec.ToRemove,
		)
	}

	labels := make(map[string]string, len(known))
	for _, r := range known {
		labels[r.ID] = r.Label
	}

	res := &SyncResult{Skipped: rec.Skipped}
	var keep []string
	for _, roleID := range rec.ToRemove {
		if !s.apply(ctx, opRemove, in.UserID, roleID, labels[roleID]) {
			res.Failed = append(res.Failed, roleID)
			// Still ours to remove next time.
			keep = append(keep, roleID)
			continue
		}
		res.Removed = append(res.Removed, roleID)
	}
	for _, roleID := range rec.ToAdd {
		if !s.apply(ctx, opAdd, in.UserID, roleID, labels[roleID]) {
			res.Failed = append(res.Failed, roleID)
			continue
		}
		res.Added = append(res.Added, roleID)
	}

	s.unblockIfElevated(ctx, in.UserID, labels, res)
	s.persist(ctx, in.UserID, append(slices.Clone(rec.NewMapped), keep...))
	return res, nil
}

// apply performs one role change and reports whether it succeeded.
func (s *RoleSyncService) apply(ctx context.Context, op, userID, roleID, label string) bool {
	var err error
	if op == opAdd {
		err = s.roles.AddRole(ctx, userID, roleID)
	} else {
		err = s.roles.RemoveRole(ctx, userID, roleID)
	}
	s.metrics.RoleChange(op, err)

	if err != nil {
		appErr := apperrors.RoleApplicationFailed(roleID, err)
		s.logger.ErrorContext(ctx, "role change failed",
			"error_kind", string(appErr.Code),
			"error", appErr,
			"op", op,
			"user_id", userID,
			"role_id", roleID,
			"role_label", label,
		)
		return false
	}
	msg := "role granted from azure ad group"
	if op == opRemove {
		msg = "role revoked, azure ad group no longer matches"
	}
	s.logger.InfoContext(ctx, msg,
		"audit", true,
		"user_id", userID,
		"role_id", roleID,
		"role_label", label,
	)
	return true
}

func (s *RoleSyncService) unblockIfElevated(ctx context.Context, userID string, labels map[string]string, res *SyncResult) {
	idx := slices.IndexFunc(res.Added, func(id string) bool { return s.isAdminRole(id, labels[id]) })
	if idx < 0 {
		return
	}
	roleID := res.Added[idx]

	blocked, err := s.accounts.IsBlocked(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "check account status failed", "user_id", userID, "error", err)
		return
	}
	if !blocked {
		return
	}
	if err := s.accounts.Unblock(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "unblock account failed", "user_id", userID, "role_id", roleID, "error", err)
		return
	}

	label := labels[roleID]
	if label == "" {
		label = roleID
	}
	res.Unblocked = true
	res.Notice = fmt.Sprintf("Your account has been activated because you were granted the %s role.", label)
	s.logger.InfoContext(ctx, "blocked account activated by administrative role mapping",
		"audit", true,
		"user_id", userID,
		"role_id", roleID,
		"role_label", label,
	)
}

func (s *RoleSyncService) isAdminRole(id, label string) bool {
	for _, a := range s.adminRoles {
		if strings.EqualFold(a, id) || (label != "" && strings.EqualFold(a, label)) {
			return true
		}
	}
	return false
}

func (s *RoleSyncService) previousMapped(ctx context.Context, userID string) ([]string, error) {
	raw, ok, err := s.state.Get(ctx, StateNamespace, userID, PreviousMappedRolesKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var roles []string
	if err := json.Unmarshal(raw, &roles); err != nil {
		// Treat corrupt state as empty: nothing is removed until the next write.
		s.logger.WarnContext(ctx, "previous mapped roles unreadable, treating as empty", "user_id", userID, "error", err)
		return nil, nil
	}
	return roles, nil
}

// persist stores the mapped set for the next cycle. Concurrent logins are last-writer-wins.
func (s *RoleSyncService) persist(ctx context.Context, userID string, mapped []string) {
	slices.Sort(mapped)
	mapped = slices.Compact(mapped)
	if mapped == nil {
		mapped = []string{}
	}
	raw, err := json.Marshal(mapped)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode mapped roles failed", "user_id", userID, "error", err)
		return
	}
	if err := s.state.Set(ctx, StateNamespace, userID, PreviousMappedRolesKey, raw); err != nil {
		s.logger.ErrorContext(ctx, "persist mapped roles failed", "user_id", userID, "error", err)
	}
}
