package service

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-be/internal/dto"
	"companion-be/internal/pkg/logger"
	"companion-be/internal/pkg/serverutils"
	"companion-be/internal/repository/memory"
	"companion-be/pkg/consensus"
	"companion-be/pkg/coordinator"
	"companion-be/pkg/events"
	"companion-be/pkg/facestore"
)

type fakeProvider struct {
	faces map[string][]float64
	err   error
}

func (p *fakeProvider) Extract(_ context.Context, image []byte) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.faces[string(image)], nil
}

type fakeSink struct {
	mu      sync.Mutex
	results []consensus.Result
	err     error
}

func (s *fakeSink) HandleConsensus(_ context.Context, _ string, result consensus.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return s.err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type recognitionHarness struct {
	svc       IRecognitionService
	faces     *facestore.Store
	provider  *fakeProvider
	sink      *fakeSink
	publisher *fakePublisher
	collector *consensus.Collector
}

func newRecognitionHarness(t *testing.T) *recognitionHarness {
	t.Helper()
	faces, err := facestore.Open(filepath.Join(t.TempDir(), "faces.json"), 5)
	require.NoError(t, err)

	h := &recognitionHarness{
		faces: faces,
		provider: &fakeProvider{faces: map[string][]float64{
			"alice": {0.05, 0},
			"bob":   {3, 0},
		}},
		sink:      &fakeSink{},
		publisher: &fakePublisher{},
		collector: consensus.NewCollector(5),
	}
	log := logger.NewNopLogger()
	matcher := consensus.NewMatcher(h.provider, faces, consensus.Config{}, log)
	detections := memory.NewDetectionSessionRepository(time.Minute, time.Minute)
	h.svc = NewRecognitionService(matcher, h.collector, detections, h.sink, h.publisher, log)
	return h
}

func images(face string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = base64.StdEncoding.EncodeToString([]byte(face))
	}
	return out
}

func TestRecognizeEnrollsThenRecognizes(t *testing.T) {
	h := newRecognitionHarness(t)
	ctx := context.Background()

	res, err := h.svc.Recognize(ctx, dto.RecognizeRequest{SessionId: "s1", Images: images("alice", 2)})
	require.NoError(t, err)
	assert.True(t, res.IsPreliminary)
	assert.Equal(t, 2, res.DetectionProgress)
	assert.Equal(t, 5, res.TotalRequired)

	res, err = h.svc.Recognize(ctx, dto.RecognizeRequest{SessionId: "s1", Images: images("alice", 3)})
	require.NoError(t, err)
	require.True(t, res.IsConfirmed)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, dto.UserStatusNewUnknown, res.UserStatus)
	require.NotNil(t, res.UserId)
	assert.Equal(t, "user1", *res.UserId)
	assert.Equal(t, 0, h.collector.Progress("s1"))

	res, err = h.svc.Recognize(ctx, dto.RecognizeRequest{SessionId: "s1", Images: images("alice", 5)})
	require.NoError(t, err)
	assert.Equal(t, dto.UserStatusKnownUnnamed, res.UserStatus)
	assert.Equal(t, "user1", *res.UserId)
	assert.Equal(t, 2, res.VisitCount)

	_, err = h.faces.Rename("user1", "Alice")
	require.NoError(t, err)

	res, err = h.svc.Recognize(ctx, dto.RecognizeRequest{SessionId: "s2", Images: images("alice", 5)})
	require.NoError(t, err)
	assert.Equal(t, dto.UserStatusIdentified, res.UserStatus)
	require.NotNil(t, res.UserName)
	assert.Equal(t, "Alice", *res.UserName)
}

func TestRecognizeDataURL(t *testing.T) {
	h := newRecognitionHarness(t)
	imgs := images("bob", 5)
	for i := range imgs {
		imgs[i] = "data:image/jpeg;base64," + imgs[i]
	}

	res, err := h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", Images: imgs})
	require.NoError(t, err)
	assert.True(t, res.IsConfirmed)
}

func TestRecognizeRejectsInvalidImage(t *testing.T) {
	h := newRecognitionHarness(t)

	for _, img := range []string{"***", "", "data:image/png;base64"} {
		_, err := h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", Images: []string{img}})
		require.ErrorIs(t, err, ErrInvalidImage, img)

		var appErr *serverutils.AppError
		require.ErrorAs(t, ToAppError(err), &appErr)
		assert.Equal(t, http.StatusBadRequest, appErr.Status)
	}
}

func TestRecognizeModelUnavailable(t *testing.T) {
	h := newRecognitionHarness(t)
	h.provider.err = consensus.ErrModelUnavailable

	_, err := h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", Images: images("alice", 5)})
	require.ErrorIs(t, err, consensus.ErrModelUnavailable)

	var appErr *serverutils.AppError
	require.ErrorAs(t, ToAppError(err), &appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.Status)

	// The failed batch is released so the kiosk can retry.
	assert.Equal(t, 0, h.collector.Progress("s"))
}

func TestRecognizeDelivery(t *testing.T) {
	t.Run("connection gets the result", func(t *testing.T) {
		h := newRecognitionHarness(t)
		_, err := h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", ConnectionId: "c1", Images: images("alice", 5)})
		require.NoError(t, err)

		require.Len(t, h.sink.results, 1)
		assert.IsType(t, consensus.Confirmed{}, h.sink.results[0])
		assert.Empty(t, h.publisher.events)
	})

	t.Run("unknown connection falls back to the bus", func(t *testing.T) {
		h := newRecognitionHarness(t)
		h.sink.err = coordinator.ErrUnknownConnection
		_, err := h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", ConnectionId: "gone", Images: images("alice", 5)})
		require.NoError(t, err)

		require.Len(t, h.publisher.events, 1)
		assert.Equal(t, events.UserEnrolled, h.publisher.events[0].EventType())
	})

	t.Run("no connection publishes confirmed results only", func(t *testing.T) {
		h := newRecognitionHarness(t)
		_, err := h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", Images: images("alice", 4)})
		require.NoError(t, err)
		assert.Empty(t, h.publisher.events)

		_, err = h.svc.Recognize(context.Background(), dto.RecognizeRequest{SessionId: "s", Images: images("alice", 1)})
		require.NoError(t, err)
		require.Len(t, h.publisher.events, 1)
		assert.Equal(t, "user1", h.publisher.events[0].Payload()["user_id"])
		assert.Empty(t, h.sink.results)
	})
}

func TestResetDetection(t *testing.T) {
	h := newRecognitionHarness(t)
	ctx := context.Background()

	_, err := h.svc.Recognize(ctx, dto.RecognizeRequest{SessionId: "s", Images: images("alice", 3)})
	require.NoError(t, err)

	res, err := h.svc.ResetDetection(ctx, dto.ResetDetectionRequest{SessionId: "s"})
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, 0, h.collector.Progress("s"))

	res, err = h.svc.ResetDetection(ctx, dto.ResetDetectionRequest{SessionId: "s"})
	require.NoError(t, err)
	assert.False(t, res.Cleared)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{facestore.ErrUserNotFound, http.StatusNotFound},
		{facestore.ErrInvalidName, http.StatusBadRequest},
		{consensus.ErrBatchInFlight, http.StatusConflict},
		{logger.ErrLogNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var appErr *serverutils.AppError
		require.ErrorAs(t, ToAppError(tt.err), &appErr)
		assert.Equal(t, tt.status, appErr.Status, tt.err.Error())
	}
	assert.NoError(t, ToAppError(nil))
}
