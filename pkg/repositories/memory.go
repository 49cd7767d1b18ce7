package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/repositories/models"
)

// MemoryRepository is an in-memory Repository used in tests and
// single-process deployments.
type MemoryRepository struct {
	lock     sync.RWMutex
	users    map[string]*models.User
	sessions map[string]*gametypes.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*gametypes.Session),
	}
}

func (r *MemoryRepository) Close(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) CreateUser(ctx context.Context, uid string) (*models.User, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if user, ok := r.users[uid]; ok {
		return user, nil
	}
	user := &models.User{
		ID:          uid,
		DisplayName: defaultDisplayName(uid),
		CreatedAt:   time.Now().UnixMilli(),
	}
	r.users[uid] = user
	return user, nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, uid string) (*models.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	user, ok := r.users[uid]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return user, nil
}

func (r *MemoryRepository) InsertSession(ctx context.Context, session *gametypes.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return &ErrConflict{}
	}
	session.UpdatedAt = time.Now().UnixMilli()
	r.sessions[session.ID] = session.Copy()
	return nil
}

func (r *MemoryRepository) GetSession(ctx context.Context, sessionID string) (*gametypes.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, &ErrNotFound{}
	}
	return session.Copy(), nil
}

func (r *MemoryRepository) UpdateSession(ctx context.Context, session *gametypes.Session) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored, ok := r.sessions[session.ID]
	if !ok {
		return &ErrNotFound{}
	}
	if stored.Version != session.Version {
		return &ErrConflict{}
	}
	session.Version++
	session.UpdatedAt = time.Now().UnixMilli()
	r.sessions[session.ID] = session.Copy()
	return nil
}

func (r *MemoryRepository) DeleteSession(ctx context.Context, sessionID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryRepository) ListIdleSessions(ctx context.Context, updatedBefore int64, limit int) ([]*gametypes.Session, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var idle []*gametypes.Session
	for _, session := range r.sessions {
		if session.UpdatedAt < updatedBefore {
			idle = append(idle, session.Copy())
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return idle[i].UpdatedAt < idle[j].UpdatedAt
	})
	if limit > 0 && len(idle) > limit {
		idle = idle[:limit]
	}
	return idle, nil
}

func defaultDisplayName(uid string) string {
	if len(uid) > 8 {
		return "player-" + uid[:8]
	}
	return "player-" + uid
}
