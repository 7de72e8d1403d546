package memory

import (
	"companion-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository holds one SocketSession per live connection. Entries never
// expire; they are removed on disconnect.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *SessionRepository) Save(session *store.SocketSession) {
	r.cache.Set(session.ID, session, cache.NoExpiration)
}

func (r *SessionRepository) Get(connectionID string) (*store.SocketSession, bool) {
	if x, found := r.cache.Get(connectionID); found {
		return x.(*store.SocketSession), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(connectionID string) {
	r.cache.Delete(connectionID)
}

func (r *SessionRepository) All() []*store.SocketSession {
	items := r.cache.Items()
	out := make([]*store.SocketSession, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*store.SocketSession))
	}
	return out
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
