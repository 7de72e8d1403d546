package memory

import (
	"companion-be/pkg/store"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DetectionSessionRepository expires idle detection sessions. Every Touch
// refreshes the TTL; the janitor removes sessions idle for longer.
type DetectionSessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	now   func() time.Time
}

func NewDetectionSessionRepository(ttl, sweepInterval time.Duration) *DetectionSessionRepository {
	return &DetectionSessionRepository{
		cache: cache.New(ttl, sweepInterval),
		now:   time.Now,
	}
}

// OnExpire registers fn to run whenever a session is removed, by expiry or Delete.
func (r *DetectionSessionRepository) OnExpire(fn func(sessionID string)) {
	r.cache.OnEvicted(func(key string, _ interface{}) {
		fn(key)
	})
}

// Touch creates the session on first use and records activity.
func (r *DetectionSessionRepository) Touch(sessionID, clientID string) store.DetectionSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var sess store.DetectionSession
	if x, found := r.cache.Get(sessionID); found {
		sess = x.(store.DetectionSession)
	} else {
		sess = store.DetectionSession{ID: sessionID, CreatedAt: now}
	}
	if clientID != "" {
		sess.ClientID = clientID
	}
	sess.LastActivity = now
	sess.Requests++

	r.cache.Set(sessionID, sess, cache.DefaultExpiration)
	return sess
}

func (r *DetectionSessionRepository) Get(sessionID string) (store.DetectionSession, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(store.DetectionSession), true
	}
	return store.DetectionSession{}, false
}

func (r *DetectionSessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *DetectionSessionRepository) Count() int {
	return r.cache.ItemCount()
}
