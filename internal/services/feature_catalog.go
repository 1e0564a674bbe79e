package services

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/pkg/models"
)

// FeatureCatalog holds the externally supplied feature vectors. Every Replace
// bumps the version so that derived matrices know when to recompute.
type FeatureCatalog struct {
	mu       sync.RWMutex
	features map[string]models.TemplateFeatureVector
	ids      []string
	version  uint64
	logger   *logrus.Logger
}

func NewFeatureCatalog(logger *logrus.Logger) *FeatureCatalog {
	return &FeatureCatalog{
		features: make(map[string]models.TemplateFeatureVector),
		logger:   logger,
	}
}

// Replace swaps in a full catalog refresh. Vectors without an id are skipped.
func (c *FeatureCatalog) Replace(vectors []models.TemplateFeatureVector) {
	next := make(map[string]models.TemplateFeatureVector, len(vectors))
	for _, v := range vectors {
		if v.TemplateID == "" {
			c.logger.Warn("Skipping feature vector without template id")
			continue
		}
		next[v.TemplateID] = v
	}

	ids := make([]string, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c.mu.Lock()
	c.features = next
	c.ids = ids
	c.version++
	version := c.version
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"templates": len(ids),
		"version":   version,
	}).Info("Feature catalog refreshed")
}

// Get returns the feature vector for id.
func (c *FeatureCatalog) Get(id string) (models.TemplateFeatureVector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.features[id]
	return v, ok
}

// IDs returns the sorted template ids, truncated to limit when limit > 0.
func (c *FeatureCatalog) IDs(limit int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.ids)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]string(nil), c.ids[:n]...)
}

// All returns a copy of every vector in id order.
func (c *FeatureCatalog) All() []models.TemplateFeatureVector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.TemplateFeatureVector, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.features[id])
	}
	return out
}

func (c *FeatureCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

func (c *FeatureCatalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
