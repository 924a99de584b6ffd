package data

import (
	"context"
	"database/sql"
	"fmt"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/ports"
)

// RoleRepo reads roles and manages user role assignments.
type RoleRepo struct {
	db *sql.DB
}

var _ ports.RoleStore = (*RoleRepo)(nil)

// NewRoleRepo creates a new RoleRepo.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

// ListRoles returns every assignable role, excluding the anonymous and authenticated pseudo-roles.
func (r *RoleRepo) ListRoles(ctx context.Context) ([]domainauth.Role, error) {
	const q = `
		SELECT id, label
		FROM roles
		WHERE id NOT IN ('anonymous', 'authenticated')
		ORDER BY weight, id`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	var roles []domainauth.Role
	for rows.Next() {
		var role domainauth.Role
		if scanErr := rows.Scan(&role.ID, &role.Label); scanErr != nil {
			return nil, fmt.Errorf("scan role: %w", scanErr)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", apperrors.MapDBError(err))
	}
	return roles, nil
}

// UserRoles returns the role ids assigned to a user.
func (r *RoleRepo) UserRoles(ctx context.Context, userID string) ([]string, error) {
	const q = `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`

	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("scan user role: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", apperrors.MapDBError(err))
	}
	return ids, nil
}

// AddRole assigns a role. Assigning a role the user already has is a no-op.
func (r *RoleRepo) AddRole(ctx context.Context, userID, roleID string) error {
	const q = `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, q, userID, roleID); err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}

// RemoveRole revokes a role. Revoking a role the user does not have is a no-op.
func (r *RoleRepo) RemoveRole(ctx context.Context, userID, roleID string) error {
	const q = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`

	if _, err := r.db.ExecContext(ctx, q, userID, roleID); err != nil {
		return apperrors.MapDBError(err)
	}
	return nil
}
