// Package document provides the document-store sink adapter. Production
// deployments point it at a Redis-compatible document cache fronting the
// primary document database.
package document

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
)

// Document keys share a prefix so operators can scan doctrine records
// without touching other keyspaces.
const docKeyPrefix = "doctrine:doc:"

// RedisSink writes document shapes as JSON values. It satisfies
// ports.SinkAdapter.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink constructs a document sink over an existing client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

// Send stores the document under its record ID and returns the key as the
// sink's native identifier. Safe to retry: rewriting the same document under
// the same key is a no-op for identical shapes.
func (s *RedisSink) Send(ctx context.Context, shape translate.SinkShape) (models.SinkResult, error) {
	doc, ok := shape.(translate.DocumentShape)
	if !ok {
		return models.SinkResult{}, fmt.Errorf("document sink received %T, want DocumentShape", shape)
	}

	recordID, _ := doc[translate.ColRecordID].(string)
	if recordID == "" {
		return models.SinkResult{}, fmt.Errorf("document shape is missing %s", translate.ColRecordID)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return models.SinkResult{}, fmt.Errorf("encode document: %w", err)
	}

	key := docKeyPrefix + recordID
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return models.SinkResult{}, fmt.Errorf("write document %s: %w", key, err)
	}

	return models.SinkResult{ID: key}, nil
}
