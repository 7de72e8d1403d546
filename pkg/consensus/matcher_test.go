package consensus

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-be/internal/pkg/logger"
	"companion-be/pkg/embedding"
	"companion-be/pkg/facestore"
)

// fakeProvider resolves an image to a descriptor by its literal bytes.
type fakeProvider struct {
	faces map[string][]float64
	err   error
	calls int
}

func (p *fakeProvider) Extract(_ context.Context, image []byte) ([]float64, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.faces[string(image)], nil
}

var (
	faceAlice = []float64{0, 0}
	faceBob   = []float64{1, 0}
)

func newProvider() *fakeProvider {
	return &fakeProvider{faces: map[string][]float64{
		"alice": {0.05, 0},
		"bob":   {0.95, 0},
		"new":   {0, 3.02},
	}}
}

func frames(images ...string) []Frame {
	out := make([]Frame, len(images))
	for i, img := range images {
		out[i] = Frame{Image: []byte(img)}
	}
	return out
}

func newStore(t *testing.T) *facestore.Store {
	t.Helper()
	s, err := facestore.Open(filepath.Join(t.TempDir(), "faces.json"), 5)
	require.NoError(t, err)
	return s
}

func seedUsers(t *testing.T, s *facestore.Store) (alice, bob facestore.UserRecord) {
	t.Helper()
	now := time.Now()
	alice = s.Enroll([][]float64{faceAlice}, now)
	bob = s.Enroll([][]float64{faceBob}, now)
	var err error
	alice, err = s.Rename(alice.ID, "Alice")
	require.NoError(t, err)
	return alice, bob
}

func newMatcher(p embedding.DescriptorProvider, s Store, cfg Config) *Matcher {
	return NewMatcher(p, s, cfg, logger.NewNopLogger())
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2}, []float64{1, 2}, 1},
		{"half", []float64{0, 0}, []float64{0.5, 0}, 0.5},
		{"clamped", []float64{0, 0}, []float64{3, 4}, 0},
		{"length mismatch", []float64{0}, []float64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b, 1), 1e-9)
		})
	}
}

func TestPartialBatchIsPreliminary(t *testing.T) {
	p := newProvider()
	m := newMatcher(p, newStore(t), Config{})

	res, err := m.Match(context.Background(), Batch{Frames: frames("alice", "alice", "alice"), Size: 5}, "")
	require.NoError(t, err)
	assert.Equal(t, Preliminary{Progress: 3, Total: 5}, res)
	assert.Zero(t, p.calls, "no descriptors are extracted before the batch is full")
}

func TestMajorityConfirmsKnownUser(t *testing.T) {
	s := newStore(t)
	alice, _ := seedUsers(t, s)
	m := newMatcher(newProvider(), s, Config{})

	res, err := m.Match(context.Background(), Batch{Frames: frames("alice", "alice", "alice", "bob", "bob"), Size: 5}, "")
	require.NoError(t, err)

	c, ok := res.(Confirmed)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, alice.ID, c.UserID)
	assert.Equal(t, "Alice", c.UserName)
	assert.Equal(t, OutcomeIdentified, c.Outcome)
	assert.False(t, c.NeedsIdentification())
	assert.InDelta(t, 0.6, c.Ratio, 1e-9)
	assert.Equal(t, 2, c.VisitCount)
}

func TestSplitVoteIsUncertain(t *testing.T) {
	s := newStore(t)
	seedUsers(t, s)
	m := newMatcher(newProvider(), s, Config{})

	res, err := m.Match(context.Background(), Batch{Frames: frames("alice", "alice", "bob", "bob", "blank"), Size: 5}, "")
	require.NoError(t, err)

	u, ok := res.(Uncertain)
	require.True(t, ok, "got %T", res)
	assert.InDelta(t, 0.4, u.Ratio, 1e-9)
	assert.Equal(t, 5, u.Total)
}

func TestFramesWithoutFacesAbstain(t *testing.T) {
	m := newMatcher(newProvider(), newStore(t), Config{})

	res, err := m.Match(context.Background(), Batch{Frames: frames("blank", "blank", "blank", "blank", "blank"), Size: 5}, "")
	require.NoError(t, err)
	assert.Equal(t, Uncertain{Progress: 5, Total: 5, Ratio: 0}, res)
}

func TestUnknownMajorityEnrollsNewUser(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	for i := 0; i < 6; i++ {
		s.Enroll([][]float64{{float64(10 + i*5), 10}}, now)
	}
	m := newMatcher(newProvider(), s, Config{})

	res, err := m.Match(context.Background(), Batch{Frames: frames("new", "new", "new", "new", "new"), Size: 5}, "")
	require.NoError(t, err)

	c, ok := res.(Confirmed)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "user7", c.UserID)
	assert.True(t, c.IsNewUser())
	assert.True(t, c.NeedsIdentification())
	assert.Equal(t, 1.0, c.Ratio)
	assert.Equal(t, 7, s.Len())

	t.Run("same face again is recognised but still unnamed", func(t *testing.T) {
		res, err := m.Match(context.Background(), Batch{Frames: frames("new", "new", "new", "new", "new"), Size: 5}, "")
		require.NoError(t, err)

		c, ok := res.(Confirmed)
		require.True(t, ok, "got %T", res)
		assert.Equal(t, "user7", c.UserID)
		assert.Equal(t, OutcomeNeedsName, c.Outcome)
		assert.Equal(t, 2, c.VisitCount)
		assert.Equal(t, 7, s.Len())
	})
}

func TestModelUnavailableLeavesStoreUntouched(t *testing.T) {
	s := newStore(t)
	seedUsers(t, s)
	p := newProvider()
	p.err = fmt.Errorf("warming up: %w", embedding.ErrModelUnavailable)
	m := newMatcher(p, s, Config{})

	_, err := m.Match(context.Background(), Batch{Frames: frames("new", "new", "new", "new", "new"), Size: 5}, "")
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, 2, s.Len())
}

func TestExtractionErrorIsReturned(t *testing.T) {
	p := newProvider()
	p.err = errors.New("decode failed")
	m := newMatcher(p, newStore(t), Config{})

	_, err := m.Match(context.Background(), Batch{Frames: frames("a", "a", "a", "a", "a"), Size: 5}, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
}

func TestTieBreakPrefersHint(t *testing.T) {
	s := newStore(t)
	alice, bob := seedUsers(t, s)
	m := newMatcher(newProvider(), s, Config{BatchSize: 4, MinRatio: 0.5})

	res, err := m.Match(context.Background(), Batch{Frames: frames("alice", "alice", "bob", "bob"), Size: 4}, bob.ID)
	require.NoError(t, err)
	c := res.(Confirmed)
	assert.Equal(t, bob.ID, c.UserID)
	assert.Equal(t, OutcomeNeedsName, c.Outcome)

	res, err = m.Match(context.Background(), Batch{Frames: frames("alice", "alice", "bob", "bob"), Size: 4}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.(Confirmed).UserID)
}

// gatedProvider holds every extraction until release is closed.
type gatedProvider struct {
	faces   map[string][]float64
	arrived chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Extract(_ context.Context, image []byte) ([]float64, error) {
	p.arrived <- struct{}{}
	<-p.release
	return p.faces[string(image)], nil
}

func TestOverlappingBatchesOfSameFaceShareOneUser(t *testing.T) {
	s := newStore(t)
	p := &gatedProvider{
		faces:   newProvider().faces,
		arrived: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
	m := newMatcher(p, s, Config{})

	type outcome struct {
		res Result
		err error
	}
	results := make(chan outcome, 2)
	for _, session := range []string{"a", "b"} {
		go func(session string) {
			res, err := m.Match(context.Background(), Batch{SessionID: session, Frames: frames("new", "new", "new", "new", "new"), Size: 5}, "")
			results <- outcome{res, err}
		}(session)
	}

	// Both batches take their candidate snapshot before either enrolls.
	<-p.arrived
	<-p.arrived
	close(p.release)

	var ids []string
	created := 0
	for i := 0; i < 2; i++ {
		o := <-results
		require.NoError(t, o.err)
		c, ok := o.res.(Confirmed)
		require.True(t, ok, "got %T", o.res)
		ids = append(ids, c.UserID)
		if c.IsNewUser() {
			created++
		} else {
			assert.Equal(t, OutcomeNeedsName, c.Outcome)
		}
	}

	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.Len())
}
