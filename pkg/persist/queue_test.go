package persist

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-be/internal/pkg/logger"
)

func newQueue(t *testing.T) (*Queue, context.CancelFunc) {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	q := NewQueue(pubSub, "", logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Consume(ctx))
	t.Cleanup(func() {
		cancel()
		_ = pubSub.Close()
	})
	return q, cancel
}

func TestQueueRunsSaver(t *testing.T) {
	q, _ := newQueue(t)

	var faces, conversations atomic.Int32
	q.Register("faces", func() error { faces.Add(1); return nil })
	q.Register("conversations", func() error { conversations.Add(1); return nil })

	q.Requester("conversations").RequestSave()
	assert.Eventually(t, func() bool { return conversations.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, faces.Load())

	q.Request("faces")
	assert.Eventually(t, func() bool { return faces.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueueCoalescesBurst(t *testing.T) {
	q, _ := newQueue(t)

	release := make(chan struct{})
	var saves atomic.Int32
	q.Register("doc", func() error {
		if saves.Add(1) == 1 {
			<-release
		}
		return nil
	})

	q.Request("doc")
	assert.Eventually(t, func() bool { return saves.Load() == 1 }, time.Second, 5*time.Millisecond)

	// While the first write is blocked, a burst collapses into one more write.
	for i := 0; i < 10; i++ {
		q.Request("doc")
	}
	close(release)

	assert.Eventually(t, func() bool { return saves.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), saves.Load())
}

func TestQueueSurvivesSaveError(t *testing.T) {
	q, _ := newQueue(t)

	var calls atomic.Int32
	q.Register("doc", func() error {
		calls.Add(1)
		return errors.New("disk full")
	})

	q.Request("doc")
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	q.Request("doc")
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestQueueSavesBeforeConsumeStarts(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	t.Cleanup(func() { _ = pubSub.Close() })
	q := NewQueue(pubSub, "", logger.NewNopLogger())

	var saves atomic.Int32
	q.Register("conversations", func() error { saves.Add(1); return nil })

	q.Request("conversations")
	assert.Equal(t, int32(1), saves.Load(), "written inline while nothing consumes the topic")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, q.Consume(ctx))

	for i := 0; i < 5; i++ {
		q.Request("conversations")
		want := int32(2 + i)
		assert.Eventually(t, func() bool { return saves.Load() == want }, time.Second, 5*time.Millisecond)
	}
}

func TestQueueFallsBackInlineAfterConsumerStops(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	t.Cleanup(func() { _ = pubSub.Close() })
	q := NewQueue(pubSub, "", logger.NewNopLogger())

	var saves atomic.Int32
	q.Register("faces", func() error { saves.Add(1); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Consume(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return !q.consuming
	}, time.Second, 5*time.Millisecond)

	q.Request("faces")
	q.Request("faces")
	assert.Equal(t, int32(2), saves.Load())
}
