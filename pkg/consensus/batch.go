package consensus

import (
	"errors"
	"sync"
)

var ErrBatchInFlight = errors.New("a batch for this detection session is already being matched")

type Frame struct {
	Image []byte
}

// Batch is a snapshot of the frames collected for one detection session.
type Batch struct {
	SessionID string
	Frames    []Frame
	Size      int
}

func (b Batch) Full() bool {
	return len(b.Frames) >= b.Size
}

type pending struct {
	frames   []Frame
	inFlight bool
}

// Collector gathers frames per detection session until a batch is full. Only one
// full batch per session can be in flight; distinct sessions never block each
// other.
type Collector struct {
	size    int
	mu      sync.Mutex
	batches map[string]*pending
}

func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &Collector{size: size, batches: make(map[string]*pending)}
}

func (c *Collector) Size() int {
	return c.size
}

// Add appends frames to the session's batch. Frames beyond the batch size are
// dropped. When the returned batch is full the caller owns it and must call
// Release once matching is done.
func (c *Collector) Add(sessionID string, frames []Frame) (Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.batches[sessionID]
	if !ok {
		p = &pending{}
		c.batches[sessionID] = p
	}
	if p.inFlight {
		return Batch{}, ErrBatchInFlight
	}

	for _, f := range frames {
		if len(p.frames) >= c.size {
			break
		}
		p.frames = append(p.frames, f)
	}

	out := Batch{
		SessionID: sessionID,
		Frames:    append([]Frame(nil), p.frames...),
		Size:      c.size,
	}
	if out.Full() {
		p.inFlight = true
	}
	return out, nil
}

// Release discards the session's batch after a full batch has been matched.
func (c *Collector) Release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.batches, sessionID)
}

// Reset drops a partially collected batch. A batch that is being matched is left
// alone; it is cleared by Release.
func (c *Collector) Reset(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.batches[sessionID]
	if !ok || p.inFlight {
		return false
	}
	delete(c.batches, sessionID)
	return true
}

func (c *Collector) Progress(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.batches[sessionID]; ok {
		return len(p.frames)
	}
	return 0
}
