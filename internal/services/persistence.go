package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

// PersistenceGateway is the durable snapshot store. The engine reads it once
// at startup and writes to it behind the request path.
type PersistenceGateway interface {
	// Load returns the last saved snapshot or ErrNoSnapshot.
	Load(ctx context.Context) (*models.EngineSnapshot, error)
	Save(ctx context.Context, snapshot *models.EngineSnapshot) error
}

// SnapshotMirror receives every successfully saved snapshot, e.g. to project
// the similarity matrix into a graph database.
type SnapshotMirror interface {
	MirrorSnapshot(ctx context.Context, snapshot *models.EngineSnapshot) error
}

// SnapshotWriter flushes engine state to the gateway in the background.
// Schedule never blocks; failures are logged and counted, never surfaced to
// the request that caused them.
type SnapshotWriter struct {
	gateway PersistenceGateway
	mirrors []SnapshotMirror
	build   func() *models.EngineSnapshot
	breaker *gobreaker.CircuitBreaker[struct{}]
	config  *config.PersistenceConfig
	logger  *logrus.Logger
	metrics *MetricsCollector

	dirty    atomic.Bool
	flushMu  sync.Mutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSnapshotWriter(
	gateway PersistenceGateway,
	build func() *models.EngineSnapshot,
	cfg *config.PersistenceConfig,
	logger *logrus.Logger,
	metrics *MetricsCollector,
	mirrors ...SnapshotMirror,
) *SnapshotWriter {
	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}

	w := &SnapshotWriter{
		gateway:  gateway,
		mirrors:  mirrors,
		build:    build,
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		stopChan: make(chan struct{}),
	}

	w.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "snapshot-gateway",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Persistence circuit breaker changed state")
		},
	})

	return w
}

// Start launches the flush worker.
func (w *SnapshotWriter) Start() {
	w.wg.Add(1)
	go w.flushWorker()
}

// Schedule marks state dirty; the worker saves it on its next tick.
func (w *SnapshotWriter) Schedule() {
	w.dirty.Store(true)
}

func (w *SnapshotWriter) flushWorker() {
	defer w.wg.Done()

	interval := w.config.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.dirty.Load() {
				_ = w.Flush(context.Background())
			}
		case <-w.stopChan:
			return
		}
	}
}

// Flush saves the current state now. The returned error is informational;
// callers on the request path must ignore it.
func (w *SnapshotWriter) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.dirty.Store(false)
	snapshot := w.build()

	timeout := w.config.SaveTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	saveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.gateway.Save(saveCtx, snapshot)
	})
	if err != nil {
		w.dirty.Store(true)
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "rejected"
		}
		w.metrics.RecordSnapshotSave(outcome)
		w.logger.WithError(err).WithField("outcome", outcome).Warn("Failed to persist engine snapshot")
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	w.metrics.RecordSnapshotSave("success")

	for _, m := range w.mirrors {
		if err := m.MirrorSnapshot(saveCtx, snapshot); err != nil {
			w.logger.WithError(err).Warn("Failed to mirror engine snapshot")
		}
	}

	w.logger.WithFields(logrus.Fields{
		"users":     len(snapshot.Interactions),
		"templates": len(snapshot.Features),
		"duration":  time.Since(start),
	}).Debug("Engine snapshot persisted")

	return nil
}

// Stop halts the worker and performs a final flush when state is dirty.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	if !w.dirty.Load() {
		return nil
	}
	return w.Flush(ctx)
}

// BreakerState reports the circuit breaker state for health checks.
func (w *SnapshotWriter) BreakerState() string {
	return w.breaker.State().String()
}
