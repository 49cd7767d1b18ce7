package repositories

import (
	"context"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/repositories/models"
)

type Repository interface {
	Close(ctx context.Context) error
	// CreateUser upserts a user row for an authenticated uid.
	CreateUser(ctx context.Context, uid string) (*models.User, error)
	GetUser(ctx context.Context, uid string) (*models.User, error)
	// InsertSession stores a new session document. The document's
	// Version must be its initial value. Returns ErrConflict when the
	// id is already taken.
	InsertSession(ctx context.Context, session *gametypes.Session) error
	GetSession(ctx context.Context, sessionID string) (*gametypes.Session, error)
	// UpdateSession performs a conditional write: it succeeds only if
	// session.Version matches the stored version, and increments the
	// stored version on success. The passed document is updated with
	// the new version and timestamp. Returns ErrConflict on mismatch.
	UpdateSession(ctx context.Context, session *gametypes.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	// ListIdleSessions returns sessions not updated since the given
	// unix-millisecond timestamp, up to limit.
	ListIdleSessions(ctx context.Context, updatedBefore int64, limit int) ([]*gametypes.Session, error)
}
