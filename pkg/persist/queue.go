// Package persist funnels snapshot requests for the JSON documents through a
// watermill topic with a single consumer, so each document has exactly one writer
// and bursts of requests collapse into one write.
package persist

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"companion-be/internal/pkg/logger"
)

const DefaultTopic = "document.snapshot"

type Saver func() error

type saveRequest struct {
	Document string `json:"document"`
}

type Queue struct {
	pubSub *gochannel.GoChannel
	topic  string
	logger logger.ILogger

	mu        sync.Mutex
	savers    map[string]Saver
	pending   map[string]bool
	consuming bool
}

func NewQueue(pubSub *gochannel.GoChannel, topic string, log logger.ILogger) *Queue {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Queue{
		pubSub:  pubSub,
		topic:   topic,
		logger:  log,
		savers:  make(map[string]Saver),
		pending: make(map[string]bool),
	}
}

// Register binds a document name to the function that writes it.
func (q *Queue) Register(document string, save Saver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.savers[document] = save
}

// Request asks for a snapshot of document. If one is already queued the call is
// a no-op. While no consumer is running the snapshot is written inline, since the
// topic drops messages nobody is subscribed to.
func (q *Queue) Request(document string) {
	q.mu.Lock()
	if !q.consuming {
		q.mu.Unlock()
		q.save(document)
		return
	}
	if q.pending[document] {
		q.mu.Unlock()
		return
	}
	q.pending[document] = true
	q.mu.Unlock()

	payload, _ := json.Marshal(saveRequest{Document: document})
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := q.pubSub.Publish(q.topic, msg); err != nil {
		q.mu.Lock()
		q.pending[document] = false
		q.mu.Unlock()
		q.logger.Error("PersistQueue", "Failed to enqueue snapshot", map[string]interface{}{
			"document": document,
			"error":    err.Error(),
		})
	}
}

// Requester adapts the queue to a single document.
func (q *Queue) Requester(document string) *Requester {
	return &Requester{queue: q, document: document}
}

type Requester struct {
	queue    *Queue
	document string
}

func (r *Requester) RequestSave() {
	r.queue.Request(r.document)
}

// Consume starts the writer goroutine. It stops when ctx is cancelled.
func (q *Queue) Consume(ctx context.Context) error {
	messages, err := q.pubSub.Subscribe(ctx, q.topic)
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.consuming = true
	q.mu.Unlock()

	go func() {
		for msg := range messages {
			q.process(msg)
		}

		// Anything still marked pending was dropped with the subscription.
		q.mu.Lock()
		q.consuming = false
		q.pending = make(map[string]bool)
		q.mu.Unlock()
	}()
	return nil
}

func (q *Queue) process(msg *message.Message) {
	var req saveRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		q.logger.Warn("PersistQueue", "Dropping malformed snapshot request", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack()
		return
	}

	// Cleared before writing so a request arriving mid-write queues another pass.
	q.mu.Lock()
	q.pending[req.Document] = false
	q.mu.Unlock()

	q.save(req.Document)
	// Failures are not redelivered; the next request writes a fresher snapshot anyway.
	msg.Ack()
}

func (q *Queue) save(document string) {
	q.mu.Lock()
	save, ok := q.savers[document]
	q.mu.Unlock()

	if !ok {
		q.logger.Warn("PersistQueue", "No saver registered", map[string]interface{}{
			"document": document,
		})
		return
	}

	if err := save(); err != nil {
		q.logger.Error("PersistQueue", "Snapshot failed", map[string]interface{}{
			"document": document,
			"error":    err.Error(),
		})
	}
}
