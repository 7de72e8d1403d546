package facestore

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "face_descriptors.json"), 3)
	require.NoError(t, err)
	return s
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := openTemp(t)
	assert.Zero(t, s.Len())
	assert.Empty(t, s.List())
}

func TestEnrollAssignsSequentialIDs(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	a := s.Enroll([][]float64{{0.1, 0.2}}, now)
	b := s.Enroll([][]float64{{0.3, 0.4}}, now)

	assert.Equal(t, "user1", a.ID)
	assert.Equal(t, "user2", b.ID)
	assert.Equal(t, UnknownName, a.Name)
	assert.True(t, a.Temporary)
	assert.False(t, a.HasName())
	assert.Equal(t, 1, a.VisitCount)
}

func TestRecordVisitCapsSamples(t *testing.T) {
	s := openTemp(t)
	now := time.Now()
	u := s.Enroll([][]float64{{1}, {2}}, now)

	later := now.Add(time.Minute)
	got, err := s.RecordVisit(u.ID, [][]float64{{3}, {4}}, later)
	require.NoError(t, err)

	assert.Equal(t, 2, got.VisitCount)
	assert.Equal(t, later, got.LastSeen)
	assert.Equal(t, [][]float64{{2}, {3}, {4}}, got.Descriptors)

	_, err = s.RecordVisit("user99", nil, later)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRenameKeepsID(t *testing.T) {
	s := openTemp(t)
	u := s.Enroll([][]float64{{0.5}}, time.Now())

	renamed, err := s.Rename(u.ID, "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, renamed.ID)
	assert.Equal(t, "Alice", renamed.Name)
	assert.True(t, renamed.HasName())

	_, err = s.Rename(u.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = s.Rename("user42", "Bob")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFindByNamePrefersMostRecentlySeen(t *testing.T) {
	s := openTemp(t)
	t0 := time.Now()
	a := s.Enroll([][]float64{{1}}, t0)
	b := s.Enroll([][]float64{{2}}, t0.Add(time.Hour))
	_, err := s.Rename(a.ID, "Sam")
	require.NoError(t, err)
	_, err = s.Rename(b.ID, "sam")
	require.NoError(t, err)

	got, ok := s.FindByName("SAM")
	require.True(t, ok)
	assert.Equal(t, b.ID, got.ID)

	_, ok = s.FindByName("nobody")
	assert.False(t, ok)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := openTemp(t)
	u := s.Enroll([][]float64{{1, 2}}, time.Now())
	u.Descriptors[0][0] = 99

	got, _ := s.Get(u.ID)
	assert.Equal(t, 1.0, got.Descriptors[0][0])

	c := s.Candidates()
	c[u.ID][0][1] = 42
	got, _ = s.Get(u.ID)
	assert.Equal(t, 2.0, got.Descriptors[0][1])
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "face_descriptors.json")
	s, err := Open(path, 5)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.Enroll([][]float64{{0.1}}, now)
	u := s.Enroll([][]float64{{0.2}}, now)
	_, err = s.Rename(u.ID, "Bea")
	require.NoError(t, err)

	reloaded, err := Open(path, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())

	got, ok := reloaded.Get(u.ID)
	require.True(t, ok)
	assert.Equal(t, "Bea", got.Name)
	assert.Equal(t, [][]float64{{0.2}}, got.Descriptors)

	next := reloaded.Enroll(nil, now)
	assert.Equal(t, "user3", next.ID)
}

func TestConcurrentEnrollAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face_descriptors.json")
	s, err := Open(path, 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Enroll([][]float64{{0.1}}, time.Now())
			assert.NoError(t, s.Save())
		}()
	}
	wg.Wait()

	reloaded, err := Open(path, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, reloaded.Len())
}

// firstCoord scores by distance on the first coordinate only.
func firstCoord(desc []float64, stored [][]float64) float64 {
	var best float64
	for _, d := range stored {
		if len(d) == 0 || len(desc) == 0 {
			continue
		}
		diff := desc[0] - d[0]
		if diff < 0 {
			diff = -diff
		}
		if v := 1 - diff; v > best {
			best = v
		}
	}
	return best
}

func TestEnrollUnlessMatched(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first, created := s.EnrollUnlessMatched([][]float64{{0.5}, {0.52}}, firstCoord, 0.4, now)
	require.True(t, created)
	assert.Equal(t, "user1", first.ID)
	assert.Equal(t, 1, first.VisitCount)

	later := now.Add(time.Minute)
	again, created := s.EnrollUnlessMatched([][]float64{{0.51}}, firstCoord, 0.4, later)
	assert.False(t, created)
	assert.Equal(t, "user1", again.ID)
	assert.Equal(t, 2, again.VisitCount)
	assert.Equal(t, later, again.LastSeen)
	assert.Len(t, again.Descriptors, 3)

	other, created := s.EnrollUnlessMatched([][]float64{{5}}, firstCoord, 0.4, later)
	assert.True(t, created)
	assert.Equal(t, "user2", other.ID)
	assert.Equal(t, 2, s.Len())
}

func TestConcurrentEnrollUnlessMatchedKeepsOneUser(t *testing.T) {
	s := openTemp(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.EnrollUnlessMatched([][]float64{{0.3}}, firstCoord, 0.4, time.Now())
		}()
	}
	wg.Wait()

	require.Equal(t, 1, s.Len())
	u, ok := s.Get("user1")
	require.True(t, ok)
	assert.Equal(t, 8, u.VisitCount)
}
