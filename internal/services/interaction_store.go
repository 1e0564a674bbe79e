package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/pkg/models"
)

// Interaction score bounds per kind. viewed/started/completed raise the stored
// score to at least their floor, skipped caps it at its ceiling.
const (
	viewedFloor    = 0.1
	startedFloor   = 0.3
	completedFloor = 0.7
	skippedCeiling = -0.2
)

// InteractionListener is notified after an interaction score changes.
type InteractionListener func(userID, templateID string)

// InteractionStore holds the latest interaction score per (user, template).
// All writes are serialized by mu; the last writer wins.
type InteractionStore struct {
	mu        sync.RWMutex
	scores    map[string]map[string]models.InteractionRecord
	listeners []InteractionListener
	now       func() time.Time
	logger    *logrus.Logger
	metrics   *MetricsCollector
}

func NewInteractionStore(logger *logrus.Logger, metrics *MetricsCollector) *InteractionStore {
	return &InteractionStore{
		scores:  make(map[string]map[string]models.InteractionRecord),
		now:     time.Now,
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers l for every subsequent write. Listeners run synchronously
// after the store lock is released and must not block.
func (s *InteractionStore) Subscribe(l InteractionListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// RecordInteraction applies the per-kind update rule and returns the new score.
func (s *InteractionStore) RecordInteraction(
	ctx context.Context,
	userID, templateID string,
	kind models.InteractionKind,
	rating *models.Rating010,
) (float64, error) {
	if userID == "" || templateID == "" {
		return 0, fmt.Errorf("%w: user id and template id are required", ErrInvalidEvent)
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown interaction kind %q", ErrInvalidEvent, kind)
	}
	if kind == models.InteractionRated && rating == nil {
		return 0, fmt.Errorf("%w: rated interaction requires a rating", ErrInvalidEvent)
	}

	s.mu.Lock()
	row, ok := s.scores[userID]
	if !ok {
		row = make(map[string]models.InteractionRecord)
		s.scores[userID] = row
	}
	prev, existed := row[templateID]
	score := nextInteractionScore(prev.Score, existed, kind, rating)
	row[templateID] = models.InteractionRecord{
		UserID:     userID,
		TemplateID: templateID,
		Score:      score,
		UpdatedAt:  s.now(),
	}
	users := len(s.scores)
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l(userID, templateID)
	}

	s.metrics.RecordInteraction(string(kind))
	s.metrics.SetTrackedUsers(users)

	s.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"template_id": templateID,
		"kind":        kind,
		"score":       score,
	}).Debug("Recorded interaction")

	return score, nil
}

func nextInteractionScore(old float64, existed bool, kind models.InteractionKind, rating *models.Rating010) float64 {
	floor := func(v float64) float64 {
		if existed && old > v {
			return old
		}
		return v
	}

	switch kind {
	case models.InteractionViewed:
		return floor(viewedFloor)
	case models.InteractionStarted:
		return floor(startedFloor)
	case models.InteractionCompleted:
		return floor(completedFloor)
	case models.InteractionRated:
		return float64(rating.Normalized())
	case models.InteractionSkipped:
		if existed && old < skippedCeiling {
			return old
		}
		return skippedCeiling
	default:
		return old
	}
}

// Score returns the stored score for a pair.
func (s *InteractionStore) Score(userID, templateID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.scores[userID][templateID]
	return rec.Score, ok
}

// UserScores returns a copy of a user's template scores.
func (s *InteractionStore) UserScores(userID string) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.scores[userID]
	out := make(map[string]float64, len(row))
	for id, rec := range row {
		out[id] = rec.Score
	}
	return out
}

// HasHistory reports whether the user has any recorded interaction.
func (s *InteractionStore) HasHistory(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores[userID]) > 0
}

// Users returns every user with history, sorted.
func (s *InteractionStore) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.scores))
	for id := range s.scores {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Matrix copies the full user → template → score matrix.
func (s *InteractionStore) Matrix() map[string]map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]float64, len(s.scores))
	for user, row := range s.scores {
		copied := make(map[string]float64, len(row))
		for id, rec := range row {
			copied[id] = rec.Score
		}
		out[user] = copied
	}
	return out
}

// Restore replaces the matrix with persisted state. Listeners are not notified.
func (s *InteractionStore) Restore(matrix map[string]map[string]float64, savedAt time.Time) {
	scores := make(map[string]map[string]models.InteractionRecord, len(matrix))
	for user, row := range matrix {
		restored := make(map[string]models.InteractionRecord, len(row))
		for id, score := range row {
			restored[id] = models.InteractionRecord{UserID: user, TemplateID: id, Score: score, UpdatedAt: savedAt}
		}
		scores[user] = restored
	}

	s.mu.Lock()
	s.scores = scores
	s.mu.Unlock()

	s.metrics.SetTrackedUsers(len(scores))
}
