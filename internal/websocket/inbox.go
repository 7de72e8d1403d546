package websocket

import "sync"

const inboxBuffer = 32

// inbox runs onMessage for each queued frame on its own goroutine, in arrival
// order, so a slow handler never stalls the read loop and its pong handling.
type inbox struct {
	frames chan []byte
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newInbox(onMessage func([]byte)) *inbox {
	in := &inbox{
		frames: make(chan []byte, inboxBuffer),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(in.done)
		for data := range in.frames {
			onMessage(data)
		}
	}()
	return in
}

// push reports false when the backlog is full and the frame was dropped.
func (in *inbox) push(data []byte) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return false
	}
	select {
	case in.frames <- data:
		return true
	default:
		return false
	}
}

// close stops accepting frames and waits for the queued ones to finish.
func (in *inbox) close() {
	in.mu.Lock()
	if !in.closed {
		in.closed = true
		close(in.frames)
	}
	in.mu.Unlock()
	<-in.done
}
