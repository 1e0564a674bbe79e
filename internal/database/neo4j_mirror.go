package database

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/temcen/drillsense/pkg/models"
)

// mirrorFloor keeps weak edges out of the graph.
const mirrorFloor = 0.3

// Neo4jSimilarityMirror projects the template similarity matrix into Neo4j as
// (:Template)-[:SIMILAR_TO {score}]-(:Template) edges after each save.
type Neo4jSimilarityMirror struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jSimilarityMirror(driver neo4j.DriverWithContext, logger *logrus.Logger) *Neo4jSimilarityMirror {
	return &Neo4jSimilarityMirror{driver: driver, logger: logger}
}

// similarityRows flattens the symmetric matrix into one row per undirected
// edge at or above mirrorFloor, ordered for deterministic writes.
func similarityRows(matrix map[string]map[string]float64) []map[string]any {
	rows := make([]map[string]any, 0)
	for a, row := range matrix {
		for b, score := range row {
			if a < b && score >= mirrorFloor {
				rows = append(rows, map[string]any{"a": a, "b": b, "score": score})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i]["a"] != rows[j]["a"] {
			return rows[i]["a"].(string) < rows[j]["a"].(string)
		}
		return rows[i]["b"].(string) < rows[j]["b"].(string)
	})
	return rows
}

func (m *Neo4jSimilarityMirror) MirrorSnapshot(ctx context.Context, snapshot *models.EngineSnapshot) error {
	templates := make([]map[string]any, 0, len(snapshot.Features))
	for _, f := range snapshot.Features {
		templates = append(templates, map[string]any{
			"id":         f.TemplateID,
			"name":       f.DisplayName(),
			"type":       string(f.Type),
			"difficulty": string(f.Difficulty),
			"duration":   f.Duration,
		})
	}
	edges := similarityRows(snapshot.TemplateSimilarity)

	session := m.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			UNWIND $templates AS t
			MERGE (n:Template {template_id: t.id})
			SET n.name = t.name, n.type = t.type, n.difficulty = t.difficulty, n.duration = t.duration`,
			map[string]any{"templates": templates}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx, `MATCH (:Template)-[r:SIMILAR_TO]-(:Template) DELETE r`, nil); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
			UNWIND $edges AS e
			MATCH (a:Template {template_id: e.a}), (b:Template {template_id: e.b})
			MERGE (a)-[r:SIMILAR_TO]-(b)
			SET r.score = e.score`,
			map[string]any{"edges": edges})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to mirror similarity graph: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"templates": len(templates),
		"edges":     len(edges),
	}).Debug("Similarity graph mirrored to Neo4j")
	return nil
}
