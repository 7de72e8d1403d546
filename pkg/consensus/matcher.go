// Package consensus decides who is in front of the camera by letting every frame
// of a fixed-size batch vote and only accepting a clear majority.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"companion-be/internal/pkg/logger"
	"companion-be/pkg/embedding"
	"companion-be/pkg/facestore"
)

const (
	DefaultBatchSize      = 5
	DefaultMatchThreshold = 0.4
	DefaultMinRatio       = 0.6
	DefaultDistanceScale  = 1.0

	ratioEpsilon = 1e-9
)

var ErrModelUnavailable = embedding.ErrModelUnavailable

type Config struct {
	BatchSize      int
	MatchThreshold float64
	MinRatio       float64
	DistanceScale  float64
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = DefaultMatchThreshold
	}
	if c.MinRatio <= 0 {
		c.MinRatio = DefaultMinRatio
	}
	if c.DistanceScale <= 0 {
		c.DistanceScale = DefaultDistanceScale
	}
	return c
}

// Store is the subset of the face store the matcher needs.
type Store interface {
	Candidates() map[string][][]float64
	EnrollUnlessMatched(samples [][]float64, score facestore.Scorer, threshold float64, now time.Time) (facestore.UserRecord, bool)
	RecordVisit(id string, samples [][]float64, now time.Time) (facestore.UserRecord, error)
	Save() error
}

type Matcher struct {
	provider embedding.DescriptorProvider
	store    Store
	cfg      Config
	now      func() time.Time
	logger   logger.ILogger
}

func NewMatcher(provider embedding.DescriptorProvider, store Store, cfg Config, log logger.ILogger) *Matcher {
	return &Matcher{
		provider: provider,
		store:    store,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		logger:   log,
	}
}

func (m *Matcher) Config() Config {
	return m.cfg
}

// unknownFace is the pseudo-candidate for frames that match nobody.
const unknownFace = ""

type tally struct {
	votes    int
	simSum   float64
	samples  [][]float64
	best     []float64
	bestSimV float64
}

func (t *tally) meanSimilarity() float64 {
	if t.votes == 0 {
		return 0
	}
	return t.simSum / float64(t.votes)
}

// Match evaluates a batch. knownUserID is an optional hint from the client and is
// only used to break ties.
func (m *Matcher) Match(ctx context.Context, batch Batch, knownUserID string) (Result, error) {
	total := batch.Size
	if total <= 0 {
		total = m.cfg.BatchSize
	}
	if len(batch.Frames) < total {
		return Preliminary{Progress: len(batch.Frames), Total: total}, nil
	}

	candidates := m.store.Candidates()
	tallies := make(map[string]*tally)

	for i, frame := range batch.Frames {
		desc, err := m.provider.Extract(ctx, frame.Image)
		if err != nil {
			if errors.Is(err, embedding.ErrModelUnavailable) {
				return nil, ErrModelUnavailable
			}
			return nil, fmt.Errorf("extract descriptor for frame %d: %w", i, err)
		}
		if desc == nil {
			// No face in this frame; it abstains.
			continue
		}

		id, sim := m.closest(desc, candidates)
		if sim <= m.cfg.MatchThreshold {
			id = unknownFace
		}

		t, ok := tallies[id]
		if !ok {
			t = &tally{}
			tallies[id] = t
		}
		t.votes++
		t.simSum += sim
		t.samples = append(t.samples, desc)
		if t.best == nil || sim > t.bestSimV {
			t.best, t.bestSimV = desc, sim
		}
	}

	winner, wt := pickWinner(tallies, knownUserID)
	ratio := 0.0
	if wt != nil {
		ratio = float64(wt.votes) / float64(len(batch.Frames))
	}
	if ratio > 1 {
		ratio = 1
	}

	if wt == nil || ratio+ratioEpsilon < m.cfg.MinRatio {
		m.logger.Info("Consensus", "No consensus reached", map[string]interface{}{
			"session_id": batch.SessionID,
			"ratio":      ratio,
			"candidates": len(tallies),
		})
		return Uncertain{Progress: len(batch.Frames), Total: total, Ratio: ratio}, nil
	}

	now := m.now()
	var (
		rec     facestore.UserRecord
		outcome Outcome
	)
	if winner == unknownFace {
		// Another batch may have enrolled this face since the snapshot.
		var created bool
		rec, created = m.store.EnrollUnlessMatched(wt.samples, m.score, m.cfg.MatchThreshold, now)
		switch {
		case created:
			outcome = OutcomeNewUser
		case rec.HasName():
			outcome = OutcomeIdentified
		default:
			outcome = OutcomeNeedsName
		}
	} else {
		var err error
		rec, err = m.store.RecordVisit(winner, [][]float64{wt.best}, now)
		if err != nil {
			return nil, fmt.Errorf("record visit for %s: %w", winner, err)
		}
		outcome = OutcomeNeedsName
		if rec.HasName() {
			outcome = OutcomeIdentified
		}
	}

	if err := m.store.Save(); err != nil {
		m.logger.Error("Consensus", "Failed to persist face store", map[string]interface{}{
			"error":   err.Error(),
			"user_id": rec.ID,
		})
	}

	m.logger.Info("Consensus", "Consensus reached", map[string]interface{}{
		"session_id": batch.SessionID,
		"user_id":    rec.ID,
		"outcome":    outcome.String(),
		"ratio":      ratio,
	})

	return Confirmed{
		UserID:     rec.ID,
		UserName:   rec.Name,
		Outcome:    outcome,
		Ratio:      ratio,
		VisitCount: rec.VisitCount,
	}, nil
}

func (m *Matcher) score(desc []float64, stored [][]float64) float64 {
	return BestSimilarity(desc, stored, m.cfg.DistanceScale)
}

func (m *Matcher) closest(desc []float64, candidates map[string][][]float64) (string, float64) {
	bestID, bestSim := unknownFace, 0.0
	for id, samples := range candidates {
		sim := BestSimilarity(desc, samples, m.cfg.DistanceScale)
		if sim > bestSim || (sim == bestSim && bestID != unknownFace && id < bestID) {
			bestID, bestSim = id, sim
		}
	}
	return bestID, bestSim
}

// pickWinner orders by votes, then the client's hint, then mean similarity, then id.
func pickWinner(tallies map[string]*tally, hint string) (string, *tally) {
	var (
		winner string
		wt     *tally
	)
	for id, t := range tallies {
		if wt == nil || beats(id, t, winner, wt, hint) {
			winner, wt = id, t
		}
	}
	return winner, wt
}

func beats(id string, t *tally, curID string, cur *tally, hint string) bool {
	if t.votes != cur.votes {
		return t.votes > cur.votes
	}
	if hint != "" && (id == hint) != (curID == hint) {
		return id == hint
	}
	if a, b := t.meanSimilarity(), cur.meanSimilarity(); a != b {
		return a > b
	}
	return id < curID
}
