package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/repositories/models"
	"github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string, migrations string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, uid string) (*models.User, error) {
	q := `
	INSERT INTO users (id, display_name, created_at) VALUES (?, ?, ?)
	ON CONFLICT (id) DO NOTHING;
	`
	if _, err := r.db.ExecContext(ctx, q, uid, defaultDisplayName(uid), time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %v", err)
	}

	return r.GetUser(ctx, uid)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	q := `
	SELECT id, display_name, created_at FROM users WHERE id = ?;
	`
	user := &models.User{}
	if err := r.db.QueryRowContext(ctx, q, uid).Scan(&user.ID, &user.DisplayName, &user.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}

	return user, nil
}

func (r *SQLiteRepository) InsertSession(ctx context.Context, session *gametypes.Session) error {
	session.UpdatedAt = time.Now().UnixMilli()
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	q := `
	INSERT INTO sessions (id, version, phase, updated_at, document) VALUES (?, ?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, session.ID, session.Version, string(session.Phase), session.UpdatedAt, string(doc)); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return &ErrConflict{}
		}
		return fmt.Errorf("failed to insert session: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, sessionID string) (*gametypes.Session, error) {
	q := `
	SELECT document FROM sessions WHERE id = ?;
	`
	var doc string
	if err := r.db.QueryRowContext(ctx, q, sessionID).Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan session: %v", err)
	}

	session := &gametypes.Session{}
	if err := json.Unmarshal([]byte(doc), session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %v", err)
	}

	return session, nil
}

func (r *SQLiteRepository) UpdateSession(ctx context.Context, session *gametypes.Session) error {
	expected := session.Version
	session.Version++
	session.UpdatedAt = time.Now().UnixMilli()
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	q := `
	UPDATE sessions SET version = ?, phase = ?, updated_at = ?, document = ?
	WHERE id = ? AND version = ?;
	`
	result, err := r.db.ExecContext(ctx, q, session.Version, string(session.Phase), session.UpdatedAt, string(doc), session.ID, expected)
	if err != nil {
		session.Version = expected
		return fmt.Errorf("failed to update session: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		session.Version = expected
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if affected == 0 {
		session.Version = expected
		var exists int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", session.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session existence: %v", err)
		}
		if exists == 0 {
			return &ErrNotFound{}
		}
		return &ErrConflict{}
	}

	return nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, sessionID string) error {
	q := `
	DELETE FROM sessions WHERE id = ?;
	`
	if _, err := r.db.ExecContext(ctx, q, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) ListIdleSessions(ctx context.Context, updatedBefore int64, limit int) ([]*gametypes.Session, error) {
	q := `
	SELECT document FROM sessions WHERE updated_at < ? ORDER BY updated_at ASC LIMIT ?;
	`
	rows, err := r.db.QueryContext(ctx, q, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %v", err)
	}
	defer rows.Close()

	var sessions []*gametypes.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan session: %v", err)
		}
		session := &gametypes.Session{}
		if err := json.Unmarshal([]byte(doc), session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %v", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
