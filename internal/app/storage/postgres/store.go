package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/luggez/groupsystem/internal/app/domain/group"
	"github.com/luggez/groupsystem/internal/app/domain/membership"
	"github.com/luggez/groupsystem/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.GroupStore = (*Store)(nil)
var _ storage.MembershipStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the backing tables and indexes if absent and seeds the
// protected default group. Bootstrap treats any failure here as fatal.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS groups (
			id     BIGSERIAL PRIMARY KEY,
			name   VARCHAR(36) NOT NULL UNIQUE,
			prefix VARCHAR(64) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			user_id     UUID PRIMARY KEY,
			group_id    BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			expires_at  TIMESTAMPTZ NULL,
			assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_group ON memberships (group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_expires ON memberships (expires_at)`,
		`CREATE TABLE IF NOT EXISTS group_permissions (
			group_id   BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			permission VARCHAR(255) NOT NULL,
			PRIMARY KEY (group_id, permission)
		)`,
		`INSERT INTO groups (name, prefix) VALUES
			('default', '&7[Member]'),
			('vip', '&6[VIP]'),
			('admin', '&c[Admin]')
		 ON CONFLICT (name) DO NOTHING`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// --- GroupStore -------------------------------------------------------------

func (s *Store) ListGroups(ctx context.Context) ([]group.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, prefix
		FROM groups
		ORDER BY id
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []group.Group
	index := make(map[int64]int)
	for rows.Next() {
		var g group.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Prefix); err != nil {
			return nil, mapError(err)
		}
		index[g.ID] = len(result)
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	permRows, err := s.db.QueryContext(ctx, `
		SELECT group_id, permission
		FROM group_permissions
		ORDER BY group_id, permission
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var (
			groupID int64
			perm    string
		)
		if err := permRows.Scan(&groupID, &perm); err != nil {
			return nil, mapError(err)
		}
		if i, ok := index[groupID]; ok {
			result[i].Permissions = append(result[i].Permissions, perm)
		}
	}
	return result, mapError(permRows.Err())
}

func (s *Store) CreateGroup(ctx context.Context, name, prefix string) (group.Group, error) {
	g := group.Group{Name: group.Key(name), Prefix: prefix}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO groups (name, prefix)
		VALUES ($1, $2)
		RETURNING id
	`, g.Name, g.Prefix).Scan(&g.ID)
	if err != nil {
		return group.Group{}, mapError(err)
	}
	return g, nil
}

func (s *Store) DeleteGroup(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM groups WHERE name = $1
	`, group.Key(name))
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GrantPermission(ctx context.Context, groupID int64, permission string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_permissions (group_id, permission)
		VALUES ($1, $2)
		ON CONFLICT (group_id, permission) DO NOTHING
	`, groupID, permission)
	return mapError(err)
}

func (s *Store) RevokePermission(ctx context.Context, groupID int64, permission string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM group_permissions
		WHERE group_id = $1 AND permission = $2
	`, groupID, permission)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- MembershipStore --------------------------------------------------------

func (s *Store) GetMembership(ctx context.Context, userID uuid.UUID) (membership.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.user_id, m.group_id, g.name, m.expires_at, m.assigned_at
		FROM memberships m
		JOIN groups g ON g.id = m.group_id
		WHERE m.user_id = $1
	`, userID)

	return scanMembership(row)
}

func (s *Store) UpsertMembership(ctx context.Context, rec membership.Record) (membership.Record, error) {
	if rec.AssignedAt.IsZero() {
		rec.AssignedAt = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO memberships (user_id, group_id, expires_at, assigned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET group_id = EXCLUDED.group_id,
		    expires_at = EXCLUDED.expires_at,
		    assigned_at = EXCLUDED.assigned_at
		RETURNING user_id, group_id,
			(SELECT name FROM groups WHERE id = memberships.group_id),
			expires_at, assigned_at
	`, rec.UserID, rec.GroupID, toNullTime(rec.ExpiresAt), rec.AssignedAt.UTC())

	return scanMembership(row)
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID int64) ([]membership.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.group_id, g.name, m.expires_at, m.assigned_at
		FROM memberships m
		JOIN groups g ON g.id = m.group_id
		WHERE m.group_id = $1
	`, groupID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]membership.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.user_id, m.group_id, g.name, m.expires_at, m.assigned_at
		FROM memberships m
		JOIN groups g ON g.id = m.group_id
		WHERE m.expires_at IS NOT NULL AND m.expires_at <= $1
	`, now.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembership(row rowScanner) (membership.Record, error) {
	var (
		rec       membership.Record
		expiresAt sql.NullTime
	)
	if err := row.Scan(&rec.UserID, &rec.GroupID, &rec.GroupName, &expiresAt, &rec.AssignedAt); err != nil {
		return membership.Record{}, mapError(err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time.UTC()
	}
	rec.AssignedAt = rec.AssignedAt.UTC()
	return rec, nil
}

func scanMemberships(rows *sql.Rows) ([]membership.Record, error) {
	var result []membership.Record
	for rows.Next() {
		rec, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, mapError(rows.Err())
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// mapError folds driver failures into the storage error taxonomy.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return storage.ErrUnavailable
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return storage.ErrDuplicateName
		case "connection_exception", "connection_failure",
			"sqlclient_unable_to_establish_sqlconnection",
			"sqlserver_rejected_establishment_of_sqlconnection":
			return storage.ErrUnavailable
		}
	}
	return err
}
