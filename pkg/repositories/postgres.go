package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/repositories/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the postgres error code for a unique constraint.
const uniqueViolation = "23505"

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository creates a new PostgresRepository.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) CreateUser(ctx context.Context, uid string) (*models.User, error) {
	q := `
	INSERT INTO users (id, display_name, created_at) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
	RETURNING id, display_name, created_at;
	`
	user := &models.User{}
	if err := r.conn.QueryRow(ctx, q, uid, defaultDisplayName(uid), time.Now().UnixMilli()).Scan(&user.ID, &user.DisplayName, &user.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to upsert user: %v", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	q := `
	SELECT id, display_name, created_at FROM users WHERE id = $1;
	`
	user := &models.User{}
	if err := r.conn.QueryRow(ctx, q, uid).Scan(&user.ID, &user.DisplayName, &user.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan user: %v", err)
	}

	return user, nil
}

func (r *PostgresRepository) InsertSession(ctx context.Context, session *gametypes.Session) error {
	session.UpdatedAt = time.Now().UnixMilli()
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	q := `
	INSERT INTO sessions (id, version, phase, updated_at, document) VALUES ($1, $2, $3, $4, $5);
	`
	if _, err := r.conn.Exec(ctx, q, session.ID, session.Version, string(session.Phase), session.UpdatedAt, doc); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &ErrConflict{}
		}
		return fmt.Errorf("failed to insert session: %v", err)
	}

	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*gametypes.Session, error) {
	q := `
	SELECT document FROM sessions WHERE id = $1;
	`
	var doc []byte
	if err := r.conn.QueryRow(ctx, q, sessionID).Scan(&doc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to scan session: %v", err)
	}

	session := &gametypes.Session{}
	if err := json.Unmarshal(doc, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %v", err)
	}

	return session, nil
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, session *gametypes.Session) error {
	expected := session.Version
	session.Version++
	session.UpdatedAt = time.Now().UnixMilli()
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	q := `
	UPDATE sessions SET version = $1, phase = $2, updated_at = $3, document = $4
	WHERE id = $5 AND version = $6;
	`
	tag, err := r.conn.Exec(ctx, q, session.Version, string(session.Phase), session.UpdatedAt, doc, session.ID, expected)
	if err != nil {
		session.Version = expected
		return fmt.Errorf("failed to update session: %v", err)
	}
	if tag.RowsAffected() == 0 {
		session.Version = expected
		var exists bool
		if err := r.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", session.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session existence: %v", err)
		}
		if !exists {
			return &ErrNotFound{}
		}
		return &ErrConflict{}
	}

	return nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	q := `
	DELETE FROM sessions WHERE id = $1;
	`
	if _, err := r.conn.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %v", err)
	}

	return nil
}

func (r *PostgresRepository) ListIdleSessions(ctx context.Context, updatedBefore int64, limit int) ([]*gametypes.Session, error) {
	q := `
	SELECT document FROM sessions WHERE updated_at < $1 ORDER BY updated_at ASC LIMIT $2;
	`
	rows, err := r.conn.Query(ctx, q, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle sessions: %v", err)
	}
	defer rows.Close()

	var sessions []*gametypes.Session
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan session: %v", err)
		}
		session := &gametypes.Session{}
		if err := json.Unmarshal(doc, session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %v", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
