package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/internal/config"
	"github.com/temcen/drillsense/pkg/models"
)

// SimilarityEngine maintains the template–template and user–user similarity
// matrices. Rebuilds are incremental: the template matrix is recomputed only
// when the catalog version changes, and only user rows marked dirty by new
// interactions are recomputed. Rebuilds are serialized by rebuildMu; readers
// always see the last completed matrices.
type SimilarityEngine struct {
	catalog      *FeatureCatalog
	interactions *InteractionStore
	normalizer   *TextNormalizer
	config       *config.SimilarityConfig
	maxTemplates int
	logger       *logrus.Logger
	metrics      *MetricsCollector

	rebuildMu sync.Mutex

	mu              sync.RWMutex
	built           bool
	catalogVersion  uint64
	templateSim     map[string]map[string]float64
	profiles        map[string]*templateProfile
	userSim         map[string]map[string]models.UserSimilarityEdge
	dirtyUsers      map[string]struct{}
	allUsersDirty   bool
	lastTemplateRun time.Time
	lastUserRun     time.Time

	signal   chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSimilarityEngine(
	catalog *FeatureCatalog,
	interactions *InteractionStore,
	normalizer *TextNormalizer,
	cfg *config.SimilarityConfig,
	maxTemplates int,
	logger *logrus.Logger,
	metrics *MetricsCollector,
) *SimilarityEngine {
	e := &SimilarityEngine{
		catalog:       catalog,
		interactions:  interactions,
		normalizer:    normalizer,
		config:        cfg,
		maxTemplates:  maxTemplates,
		logger:        logger,
		metrics:       metrics,
		templateSim:   make(map[string]map[string]float64),
		profiles:      make(map[string]*templateProfile),
		userSim:       make(map[string]map[string]models.UserSimilarityEdge),
		dirtyUsers:    make(map[string]struct{}),
		allUsersDirty: true,
		signal:        make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}

	interactions.Subscribe(func(userID, _ string) {
		e.InvalidateUser(userID)
	})

	return e
}

// Start launches the background rebuilder when enabled in configuration.
func (e *SimilarityEngine) Start() {
	if !e.config.Background {
		return
	}
	e.wg.Add(1)
	go e.rebuildWorker()
}

func (e *SimilarityEngine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	e.wg.Wait()
}

func (e *SimilarityEngine) rebuildWorker() {
	defer e.wg.Done()

	interval := e.config.RebuildInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.signal:
		case <-ticker.C:
		case <-e.stopChan:
			return
		}
		if err := e.Rebuild(context.Background()); err != nil {
			e.logger.WithError(err).Warn("Similarity rebuild failed")
		}
	}
}

// InvalidateUser marks a user's similarity row stale.
func (e *SimilarityEngine) InvalidateUser(userID string) {
	e.mu.Lock()
	e.dirtyUsers[userID] = struct{}{}
	e.mu.Unlock()
	e.notify()
}

// InvalidateAll marks every matrix stale, e.g. after a catalog refresh.
func (e *SimilarityEngine) InvalidateAll() {
	e.mu.Lock()
	e.allUsersDirty = true
	e.mu.Unlock()
	e.notify()
}

func (e *SimilarityEngine) notify() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Rebuild brings both matrices up to date.
func (e *SimilarityEngine) Rebuild(ctx context.Context) error {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	if err := e.rebuildTemplates(ctx); err != nil {
		return err
	}
	if err := e.rebuildUsers(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.built = true
	e.mu.Unlock()
	return nil
}

func (e *SimilarityEngine) rebuildTemplates(ctx context.Context) error {
	version := e.catalog.Version()

	e.mu.RLock()
	current := e.built && e.catalogVersion == version
	e.mu.RUnlock()
	if current {
		return nil
	}

	start := time.Now()
	ids := e.catalog.IDs(e.maxTemplates)
	profiles := make(map[string]*templateProfile, len(ids))
	ordered := make([]*templateProfile, 0, len(ids))
	for _, id := range ids {
		v, ok := e.catalog.Get(id)
		if !ok {
			continue
		}
		p := newTemplateProfile(v, e.normalizer)
		profiles[id] = p
		ordered = append(ordered, p)
	}

	matrix := make(map[string]map[string]float64, len(ordered))
	for _, p := range ordered {
		matrix[p.id] = make(map[string]float64)
	}
	for i := 0; i < len(ordered); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for j := i + 1; j < len(ordered); j++ {
			a, b := ordered[i], ordered[j]
			score, _ := templateSimilarity(a, b)
			if score <= 0 {
				continue
			}
			matrix[a.id][b.id] = score
			matrix[b.id][a.id] = score
		}
	}

	e.mu.Lock()
	e.templateSim = matrix
	e.profiles = profiles
	e.catalogVersion = version
	e.lastTemplateRun = time.Now()
	e.mu.Unlock()

	e.metrics.ObserveRebuild("template", time.Since(start))
	e.logger.WithFields(logrus.Fields{
		"templates":       len(ordered),
		"catalog_version": version,
		"duration":        time.Since(start),
	}).Info("Template similarity matrix rebuilt")

	return nil
}

func (e *SimilarityEngine) rebuildUsers(ctx context.Context) error {
	e.mu.Lock()
	full := e.allUsersDirty
	dirty := e.dirtyUsers
	e.allUsersDirty = false
	e.dirtyUsers = make(map[string]struct{})
	e.mu.Unlock()

	if !full && len(dirty) == 0 {
		return nil
	}

	start := time.Now()
	users := e.interactions.Users()
	rows := make(map[string]map[string]float64, len(users))
	for _, u := range users {
		rows[u] = e.interactions.UserScores(u)
	}

	targets := users
	if !full {
		targets = make([]string, 0, len(dirty))
		for u := range dirty {
			targets = append(targets, u)
		}
		sort.Strings(targets)
	}

	updates := make(map[string]map[string]models.UserSimilarityEdge, len(targets))
	for _, u := range targets {
		if err := ctx.Err(); err != nil {
			// Put the work back so the next run picks it up.
			e.mu.Lock()
			for _, t := range targets {
				e.dirtyUsers[t] = struct{}{}
			}
			e.allUsersDirty = e.allUsersDirty || full
			e.mu.Unlock()
			return err
		}
		row := make(map[string]models.UserSimilarityEdge)
		for _, other := range users {
			if other == u {
				continue
			}
			edge, ok := e.userEdge(u, other, rows[u], rows[other])
			if ok {
				row[other] = edge
			}
		}
		updates[u] = row
	}

	e.mu.Lock()
	if full {
		e.userSim = make(map[string]map[string]models.UserSimilarityEdge, len(updates))
	}
	for u, row := range updates {
		// Drop stale mirror entries before writing the fresh row.
		for other := range e.userSim[u] {
			if _, ok := row[other]; !ok {
				delete(e.userSim[other], u)
			}
		}
		e.userSim[u] = row
		for other, edge := range row {
			mirror, ok := e.userSim[other]
			if !ok {
				mirror = make(map[string]models.UserSimilarityEdge)
				e.userSim[other] = mirror
			}
			mirror[u] = models.UserSimilarityEdge{
				UserA: other, UserB: u, Score: edge.Score, CommonRatings: edge.CommonRatings,
			}
		}
	}
	e.lastUserRun = time.Now()
	e.mu.Unlock()

	e.metrics.ObserveRebuild("user", time.Since(start))
	e.logger.WithFields(logrus.Fields{
		"users":    len(targets),
		"full":     full,
		"duration": time.Since(start),
	}).Debug("User similarity rows rebuilt")

	return nil
}

func (e *SimilarityEngine) userEdge(a, b string, rowA, rowB map[string]float64) (models.UserSimilarityEdge, bool) {
	r, common := pearson(rowA, rowB)
	minCommon := e.config.MinCommonTemplates
	if minCommon < 2 {
		minCommon = 2
	}
	if common < minCommon || absFloat(r) <= e.config.UserThreshold {
		return models.UserSimilarityEdge{}, false
	}
	return models.UserSimilarityEdge{UserA: a, UserB: b, Score: r, CommonRatings: common}, true
}

// ensureFresh builds synchronously when the matrices were never built, or on
// every read when no background rebuilder is running.
func (e *SimilarityEngine) ensureFresh(ctx context.Context) {
	e.mu.RLock()
	built := e.built
	stale := e.allUsersDirty || len(e.dirtyUsers) > 0 || e.catalogVersion != e.catalog.Version()
	e.mu.RUnlock()

	if built && (e.config.Background || !stale) {
		return
	}
	if err := e.Rebuild(ctx); err != nil {
		e.logger.WithError(err).Warn("Synchronous similarity rebuild failed")
	}
}

// TemplateSimilarity returns the stored similarity of two templates.
func (e *SimilarityEngine) TemplateSimilarity(ctx context.Context, a, b string) float64 {
	e.ensureFresh(ctx)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.templateSim[a][b]
}

// TemplateNeighbors returns templates whose similarity to id is at least floor.
func (e *SimilarityEngine) TemplateNeighbors(ctx context.Context, id string, floor float64) map[string]float64 {
	e.ensureFresh(ctx)
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64)
	for other, score := range e.templateSim[id] {
		if score >= floor {
			out[other] = score
		}
	}
	return out
}

// SimilarTemplates returns id's row sorted by score with the factor breakdown.
func (e *SimilarityEngine) SimilarTemplates(ctx context.Context, id string, limit int) ([]models.SimilarityEdge, error) {
	e.ensureFresh(ctx)
	e.mu.RLock()
	defer e.mu.RUnlock()

	source, ok := e.profiles[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}

	edges := make([]models.SimilarityEdge, 0, len(e.templateSim[id]))
	for other, score := range e.templateSim[id] {
		edges = append(edges, models.SimilarityEdge{TemplateA: id, TemplateB: other, Score: models.Score01(score)})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Score != edges[j].Score {
			return edges[i].Score > edges[j].Score
		}
		return edges[i].TemplateB < edges[j].TemplateB
	})
	if limit > 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	for i := range edges {
		if target, ok := e.profiles[edges[i].TemplateB]; ok {
			_, edges[i].Factors = templateSimilarity(source, target)
		}
	}
	return edges, nil
}

// UserSimilarity returns the stored correlation, 0 for untracked pairs.
func (e *SimilarityEngine) UserSimilarity(ctx context.Context, a, b string) float64 {
	e.ensureFresh(ctx)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userSim[a][b].Score
}

// UserNeighbors returns up to k positively correlated users, most similar first.
func (e *SimilarityEngine) UserNeighbors(ctx context.Context, userID string, k int) []models.UserSimilarityEdge {
	e.ensureFresh(ctx)
	e.mu.RLock()
	neighbors := make([]models.UserSimilarityEdge, 0, len(e.userSim[userID]))
	for _, edge := range e.userSim[userID] {
		if edge.Score > 0 {
			neighbors = append(neighbors, edge)
		}
	}
	e.mu.RUnlock()

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].UserB < neighbors[j].UserB
	})
	if k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// SimilarityStats summarises matrix sizes for health reporting.
type SimilarityStats struct {
	Templates       int       `json:"templates"`
	TemplateEdges   int       `json:"template_edges"`
	UserEdges       int       `json:"user_edges"`
	CatalogVersion  uint64    `json:"catalog_version"`
	LastTemplateRun time.Time `json:"last_template_run"`
	LastUserRun     time.Time `json:"last_user_run"`
}

func (e *SimilarityEngine) Stats() SimilarityStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := SimilarityStats{
		Templates:       len(e.profiles),
		CatalogVersion:  e.catalogVersion,
		LastTemplateRun: e.lastTemplateRun,
		LastUserRun:     e.lastUserRun,
	}
	for _, row := range e.templateSim {
		stats.TemplateEdges += len(row)
	}
	for _, row := range e.userSim {
		stats.UserEdges += len(row)
	}
	stats.TemplateEdges /= 2
	stats.UserEdges /= 2
	return stats
}

// Matrices copies both matrices for persistence.
func (e *SimilarityEngine) Matrices() (templates, users map[string]map[string]float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	templates = make(map[string]map[string]float64, len(e.templateSim))
	for id, row := range e.templateSim {
		copied := make(map[string]float64, len(row))
		for other, score := range row {
			copied[other] = score
		}
		templates[id] = copied
	}

	users = make(map[string]map[string]float64, len(e.userSim))
	for id, row := range e.userSim {
		copied := make(map[string]float64, len(row))
		for other, edge := range row {
			copied[other] = edge.Score
		}
		users[id] = copied
	}
	return templates, users
}

// TemplateEdges lists every undirected template edge once, for graph mirrors.
func (e *SimilarityEngine) TemplateEdges(floor float64) []models.SimilarityEdge {
	e.mu.RLock()
	defer e.mu.RUnlock()
	edges := make([]models.SimilarityEdge, 0)
	for a, row := range e.templateSim {
		for b, score := range row {
			if a < b && score >= floor {
				edges = append(edges, models.SimilarityEdge{TemplateA: a, TemplateB: b, Score: models.Score01(score)})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].TemplateA != edges[j].TemplateA {
			return edges[i].TemplateA < edges[j].TemplateA
		}
		return edges[i].TemplateB < edges[j].TemplateB
	})
	return edges
}

// Restore installs persisted matrices. The catalog must already be restored so
// the template matrix is tagged with the matching catalog version.
func (e *SimilarityEngine) Restore(templates, users map[string]map[string]float64) {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	profiles := make(map[string]*templateProfile)
	for _, id := range e.catalog.IDs(e.maxTemplates) {
		if v, ok := e.catalog.Get(id); ok {
			profiles[id] = newTemplateProfile(v, e.normalizer)
		}
	}

	templateSim := make(map[string]map[string]float64, len(templates))
	for id, row := range templates {
		copied := make(map[string]float64, len(row))
		for other, score := range row {
			copied[other] = score
		}
		templateSim[id] = copied
	}

	userSim := make(map[string]map[string]models.UserSimilarityEdge, len(users))
	for a, row := range users {
		rowA := e.interactions.UserScores(a)
		edges := make(map[string]models.UserSimilarityEdge, len(row))
		for b, score := range row {
			_, common := pearson(rowA, e.interactions.UserScores(b))
			edges[b] = models.UserSimilarityEdge{UserA: a, UserB: b, Score: score, CommonRatings: common}
		}
		userSim[a] = edges
	}

	e.mu.Lock()
	e.templateSim = templateSim
	e.profiles = profiles
	e.userSim = userSim
	e.catalogVersion = e.catalog.Version()
	e.allUsersDirty = false
	e.dirtyUsers = make(map[string]struct{})
	e.built = true
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"templates": len(templateSim),
		"users":     len(userSim),
	}).Info("Similarity matrices restored")
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
