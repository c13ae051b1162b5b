package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/finsight-ai/backend/pkg/circuitbreaker"
	"github.com/finsight-ai/backend/pkg/logger"
	"github.com/finsight-ai/backend/pkg/retry"
)

// Graph mirrors entity mentions into Neo4j as
// (:Document)-[:MENTIONS]->(:Entity) so cross-document entity traversals
// stay cheap.
type Graph struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewGraph(uri, username, password, database string) (*Graph, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j graph initialized", zap.String("uri", uri))

	return &Graph{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *Graph) execute(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return g.cb.Execute(ctx, func() error {
		return retry.Do(ctx, g.retryConfig, func() error {
			session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func (g *Graph) UpsertEntity(ctx context.Context, entityID, name, entityType string) error {
	query := `
		MERGE (e:Entity {id: $id})
		SET e.name = $name,
		    e.type = $type,
		    e.updated_at = timestamp()
	`

	return g.execute(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]interface{}{
			"id":   entityID,
			"name": name,
			"type": entityType,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert entity: %w", err)
		}
		return nil
	})
}

func (g *Graph) LinkMention(ctx context.Context, docID, entityID string, mentionCount int) error {
	query := `
		MERGE (d:Document {id: $doc_id})
		MERGE (e:Entity {id: $entity_id})
		MERGE (d)-[m:MENTIONS]->(e)
		SET m.count = $count,
		    m.updated_at = timestamp()
	`

	return g.execute(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]interface{}{
			"doc_id":    docID,
			"entity_id": entityID,
			"count":     mentionCount,
		})
		if err != nil {
			return fmt.Errorf("failed to link mention: %w", err)
		}
		return nil
	})
}
