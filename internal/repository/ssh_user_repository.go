package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
)

// SSHUser is an allow-listed public key for the terminal dashboard.
type SSHUser struct {
	ID          int64
	Username    string
	DisplayName string
	PublicKey   string
	KeyType     string
	Fingerprint string
	IsActive    bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const sshUserColumns = `id, username, display_name, public_key, key_type, fingerprint,
       is_active, last_login_at, created_at, updated_at`

type SSHUserRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSSHUserRepository(pool PgxPool, tracer trace.Tracer) *SSHUserRepository {
	return &SSHUserRepository{pool: pool, tracer: tracer}
}

func (r *SSHUserRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "ssh-user-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ssh_users (
    id BIGSERIAL PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL DEFAULT '',
    public_key TEXT NOT NULL,
    key_type TEXT NOT NULL,
    fingerprint TEXT NOT NULL UNIQUE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    last_login_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	return err
}

// FindByFingerprint resolves an active user by key fingerprint. A missing or
// deactivated user returns (nil, nil), not an error.
func (r *SSHUserRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*SSHUser, error) {
	_, span := r.tracer.Start(ctx, "ssh-user-repo.find-by-fingerprint")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		`SELECT `+sshUserColumns+` FROM ssh_users WHERE fingerprint = $1 AND is_active = TRUE`,
		fingerprint,
	)
	u, err := scanSSHUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *SSHUserRepository) UpsertUser(ctx context.Context, username, displayName, publicKey, keyType, fingerprint string) error {
	_, span := r.tracer.Start(ctx, "ssh-user-repo.upsert-user")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO ssh_users (username, display_name, public_key, key_type, fingerprint)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO UPDATE SET
		     display_name = EXCLUDED.display_name,
		     public_key = EXCLUDED.public_key,
		     key_type = EXCLUDED.key_type,
		     fingerprint = EXCLUDED.fingerprint,
		     is_active = TRUE,
		     updated_at = NOW()`,
		username, displayName, publicKey, keyType, fingerprint,
	)
	return err
}

func (r *SSHUserRepository) UpdateLastLogin(ctx context.Context, userID int64) error {
	_, span := r.tracer.Start(ctx, "ssh-user-repo.update-last-login")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE ssh_users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`,
		userID,
	)
	return err
}

func (r *SSHUserRepository) ListActive(ctx context.Context) ([]SSHUser, error) {
	_, span := r.tracer.Start(ctx, "ssh-user-repo.list-active")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT `+sshUserColumns+` FROM ssh_users WHERE is_active = TRUE ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []SSHUser
	for rows.Next() {
		u, err := scanSSHUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// scanSSHUser works for both QueryRow results and row iterators; pgx.Rows
// satisfies pgx.Row.
func scanSSHUser(row pgx.Row) (*SSHUser, error) {
	var u SSHUser
	err := row.Scan(
		&u.ID, &u.Username, &u.DisplayName, &u.PublicKey, &u.KeyType,
		&u.Fingerprint, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
