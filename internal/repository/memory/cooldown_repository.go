package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// CooldownRepository remembers when each user's last greeted session ended.
// Entries drop out of the cache once the window has passed.
type CooldownRepository struct {
	cache  *cache.Cache
	window time.Duration
}

func NewCooldownRepository(window time.Duration) *CooldownRepository {
	return &CooldownRepository{
		cache:  cache.New(window, window),
		window: window,
	}
}

func (r *CooldownRepository) Window() time.Duration {
	return r.window
}

func (r *CooldownRepository) Record(userID string, endedAt time.Time) {
	r.cache.Set(userID, endedAt, cache.DefaultExpiration)
}

func (r *CooldownRepository) LastGreeted(userID string) (time.Time, bool) {
	if x, found := r.cache.Get(userID); found {
		return x.(time.Time), true
	}
	return time.Time{}, false
}

// Active reports whether now still falls inside the user's cooldown window.
func (r *CooldownRepository) Active(userID string, now time.Time) bool {
	last, ok := r.LastGreeted(userID)
	if !ok {
		return false
	}
	return now.Sub(last) < r.window
}
