package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/pkg/models"
)

const publishTimeout = 5 * time.Second

// snapshotOutbox hands computed snapshots to an AnalyticsPublisher off the
// request path. Pending snapshots are keyed by template, so a burst of
// recomputations publishes only the latest one.
type snapshotOutbox struct {
	publisher AnalyticsPublisher
	ttl       time.Duration
	logger    *logrus.Logger
	metrics   *MetricsCollector

	mu      sync.Mutex
	pending map[string]models.TemplateAnalyticsSnapshot
	drainMu sync.Mutex

	signal   chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newSnapshotOutbox(publisher AnalyticsPublisher, ttl time.Duration, logger *logrus.Logger, metrics *MetricsCollector) *snapshotOutbox {
	return &snapshotOutbox{
		publisher: publisher,
		ttl:       ttl,
		logger:    logger,
		metrics:   metrics,
		pending:   make(map[string]models.TemplateAnalyticsSnapshot),
		signal:    make(chan struct{}, 1),
		stopChan:  make(chan struct{}),
	}
}

// Enqueue never blocks.
func (o *snapshotOutbox) Enqueue(snap models.TemplateAnalyticsSnapshot) {
	o.mu.Lock()
	o.pending[snap.TemplateID] = snap
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *snapshotOutbox) Start() {
	o.wg.Add(1)
	go o.worker()
}

func (o *snapshotOutbox) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.signal:
			o.drain(context.Background())
		case <-o.stopChan:
			return
		}
	}
}

// Stop halts the worker and publishes whatever is still pending.
func (o *snapshotOutbox) Stop(ctx context.Context) {
	o.stopOnce.Do(func() { close(o.stopChan) })
	o.wg.Wait()
	o.drain(ctx)
}

func (o *snapshotOutbox) drain(ctx context.Context) {
	o.drainMu.Lock()
	defer o.drainMu.Unlock()

	o.mu.Lock()
	batch := o.pending
	o.pending = make(map[string]models.TemplateAnalyticsSnapshot)
	o.mu.Unlock()

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		snap := batch[id]
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := o.publisher.PublishSnapshot(pubCtx, &snap, o.ttl)
		cancel()
		if err != nil {
			o.metrics.RecordAnalyticsPublish("error")
			o.logger.WithError(err).WithField("template_id", id).Warn("Failed to publish analytics snapshot")
			continue
		}
		o.metrics.RecordAnalyticsPublish("success")
	}
}

// Pending reports how many snapshots wait for publication.
func (o *snapshotOutbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
