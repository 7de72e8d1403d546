package coordinator

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"companion-be/internal/dto"
	"companion-be/pkg/dialogue"
	"companion-be/pkg/events"
	"companion-be/pkg/voice/stt"
	"companion-be/pkg/voice/tts"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type sentEvent struct {
	room    string
	event   dto.RealtimeEvent
	exclude string
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []sentEvent
	noClient bool
}

func (n *fakeNotifier) Broadcast(room string, event dto.RealtimeEvent, exclude string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEvent{room: room, event: event, exclude: exclude})
	return 1
}

func (n *fakeNotifier) HasClients(string) bool {
	return !n.noClient
}

func (n *fakeNotifier) ofType(eventType string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, s := range n.sent {
		if s.event.Type == eventType {
			out = append(out, s)
		}
	}
	return out
}

func (n *fakeNotifier) robotLines() []string {
	var out []string
	for _, s := range n.ofType("robot_message") {
		out = append(out, s.event.Data.(dto.RobotMessagePayload).Text)
	}
	return out
}

type fakeDialogue struct {
	mu       sync.Mutex
	reply    dialogue.Reply
	err      error
	requests []dialogue.Request
}

func (d *fakeDialogue) Respond(_ context.Context, req dialogue.Request) (dialogue.Reply, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.err != nil {
		return dialogue.Reply{}, d.err
	}
	return d.reply, nil
}

func (d *fakeDialogue) calls() []dialogue.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dialogue.Request(nil), d.requests...)
}

type fakeSynth struct {
	err error
}

func (s fakeSynth) Synthesize(_ context.Context, text string, _ tts.SynthesizeOptions) (*tts.Synthesis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Synthesis{Audio: []byte("audio:" + text), Format: "mp3"}, nil
}

type fakeTranscriber struct {
	text string
}

func (t fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, _ stt.TranscribeOptions) (*stt.Transcript, error) {
	if _, err := io.ReadAll(audio); err != nil {
		return nil, err
	}
	return &stt.Transcript{Text: t.text}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var errBoom = errors.New("boom")
