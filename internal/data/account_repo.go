package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/target/aad-connect/internal/data/pgxutil"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/ports"
)

// AccountRepoConfig controls how a first-time provider identity is matched to local users.
type AccountRepoConfig struct {
	// LinkByEmail links an unlinked identity to the existing user with the same email.
	// Provider email addresses are not verified; enable only for a single trusted tenant.
	LinkByEmail bool
}

// AccountRepo manages local user records and their links to provider accounts.
type AccountRepo struct {
	db          *sql.DB
	linkByEmail bool
	newID       func() string
}

var _ ports.AccountStore = (*AccountRepo)(nil)

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB, cfg AccountRepoConfig) *AccountRepo {
	return &AccountRepo{
		db:          db,
		linkByEmail: cfg.LinkByEmail,
		newID:       func() string { return uuid.NewString() },
	}
}

// Upsert returns the local user linked to (Provider, ExternalID), creating user and link on first login.
// An existing user whose email matches is only reused when LinkByEmail is set; otherwise the
// login is refused with a Conflict error.
func (r *AccountRepo) Upsert(ctx context.Context, in ports.AccountInput) (string, error) {
	if in.Provider == "" || in.ExternalID == "" {
		return "", apperrors.Validation("provider and external id are required")
	}
	if strings.TrimSpace(in.Username) == "" {
		return "", apperrors.ValidationField("username", "username is required")
	}

	var userID string
	err := pgxutil.WithSQLTx(ctx, r.db, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		id, found, err := linkedUser(ctx, tx, in)
		if err != nil {
			return err
		}
		if found {
			userID = id
			return refreshEmail(ctx, tx, id, in.Email)
		}

		id, err = r.findOrCreateUser(ctx, tx, in)
		if err != nil {
			return err
		}
		const link = `INSERT INTO connected_accounts (provider, external_id, user_id) VALUES ($1, $2, $3)`
		if _, err := tx.ExecContext(ctx, link, in.Provider, in.ExternalID, id); err != nil {
			return fmt.Errorf("link account: %w", apperrors.MapDBError(err))
		}
		userID = id
		return nil
	}})
	if err != nil {
		return "", err
	}
	return userID, nil
}

func linkedUser(ctx context.Context, tx *sql.Tx, in ports.AccountInput) (string, bool, error) {
	const q = `SELECT user_id FROM connected_accounts WHERE provider = $1 AND external_id = $2`
	var id string
	err := tx.QueryRowContext(ctx, q, in.Provider, in.ExternalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find linked account: %w", apperrors.MapDBError(err))
	}
	return id, true, nil
}

func refreshEmail(ctx context.Context, tx *sql.Tx, userID, email string) error {
	if email == "" {
		return nil
	}
	const q = `UPDATE users SET email = $2, updated_at = now() WHERE id = $1 AND email <> $2`
	if _, err := tx.ExecContext(ctx, q, userID, email); err != nil {
		return fmt.Errorf("refresh email: %w", apperrors.MapDBError(err))
	}
	return nil
}

func userByEmail(ctx context.Context, tx *sql.Tx, email string) (string, bool, error) {
	const q = `SELECT id FROM users WHERE lower(email) = lower($1) ORDER BY created_at LIMIT 1`
	var id string
	err := tx.QueryRowContext(ctx, q, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find user by email: %w", apperrors.MapDBError(err))
	}
	return id, true, nil
}

func (r *AccountRepo) findOrCreateUser(ctx context.Context, tx *sql.Tx, in ports.AccountInput) (string, error) {
	if in.Email != "" {
		id, found, err := userByEmail(ctx, tx, in.Email)
		if err != nil {
			return "", err
		}
		if found {
			if r.linkByEmail {
				return id, nil
			}
			return "", apperrors.Conflict("email belongs to a local account not linked to this identity")
		}
	}

	id := r.newID()
	const insert = `
		INSERT INTO users (id, username, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING`
	res, err := tx.ExecContext(ctx, insert, id, in.Username, in.Email)
	if err != nil {
		return "", fmt.Errorf("create user: %w", apperrors.MapDBError(err))
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return id, nil
	}

	// Username taken by an unrelated account: disambiguate with the new id.
	if _, err := tx.ExecContext(ctx, insert, id, in.Username+"_"+id[:8], in.Email); err != nil {
		return "", fmt.Errorf("create user: %w", apperrors.MapDBError(err))
	}
	return id, nil
}

// IsBlocked reports whether the user account is blocked.
func (r *AccountRepo) IsBlocked(ctx context.Context, userID string) (bool, error) {
	var blocked bool
	if err := r.db.QueryRowContext(ctx, `SELECT blocked FROM users WHERE id = $1`, userID).Scan(&blocked); err != nil {
		return false, apperrors.MapDBError(err)
	}
	return blocked, nil
}

// Unblock activates a blocked account.
func (r *AccountRepo) Unblock(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET blocked = false, updated_at = now() WHERE id = $1`, userID)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("user not found")
	}
	return nil
}

// ConnectedProviders lists the provider keys linked to a user.
func (r *AccountRepo) ConnectedProviders(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT provider FROM connected_accounts WHERE user_id = $1 ORDER BY provider`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connected providers: %w", apperrors.MapDBError(err))
	}
	defer func() { _ = rows.Close() }()

	var providers []string
	for rows.Next() {
		var p string
		if scanErr := rows.Scan(&p); scanErr != nil {
			return nil, fmt.Errorf("scan provider: %w", scanErr)
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connected providers: %w", apperrors.MapDBError(err))
	}
	return providers, nil
}
