package coordinator

import (
	"strings"
	"sync"
	"time"
)

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock lets tests drive timers by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

const taskIdentify = "identify"

func taskKey(connectionID, kind string) string {
	return connectionID + "/" + kind
}

type scheduledTask struct {
	id    uint64
	timer Timer
}

// taskSet holds cancellable delayed tasks keyed by connection and kind.
// Scheduling a key again replaces the previous task.
type taskSet struct {
	mu    sync.Mutex
	clock Clock
	seq   uint64
	tasks map[string]scheduledTask
}

func newTaskSet(clock Clock) *taskSet {
	return &taskSet{clock: clock, tasks: make(map[string]scheduledTask)}
}

func (t *taskSet) schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.tasks[key]; ok {
		cur.timer.Stop()
	}
	t.seq++
	id := t.seq

	timer := t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.tasks[key]
		if !ok || cur.id != id {
			// Cancelled or replaced after the timer had already fired.
			t.mu.Unlock()
			return
		}
		delete(t.tasks, key)
		t.mu.Unlock()
		fn()
	})
	t.tasks[key] = scheduledTask{id: id, timer: timer}
}

func (t *taskSet) cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.tasks[key]; ok {
		cur.timer.Stop()
		delete(t.tasks, key)
	}
}

func (t *taskSet) cancelConnection(connectionID string) {
	prefix := connectionID + "/"
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cur := range t.tasks {
		if strings.HasPrefix(key, prefix) {
			cur.timer.Stop()
			delete(t.tasks, key)
		}
	}
}

func (t *taskSet) pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tasks[key]
	return ok
}

func (t *taskSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, cur := range t.tasks {
		cur.timer.Stop()
		delete(t.tasks, key)
	}
}
