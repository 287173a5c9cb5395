// Package ports defines the interfaces the doctrine engine consumes.
// Interfaces live here when more than one component depends on them.
package ports

import (
	"context"

	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/translate"
	"doctrine/pkg/platform/audit"
)

// SinkAdapter is the abstract capability representing a concrete backend
// client. It accepts a translated sink shape and returns the sink's native
// identifier for the written record. Adapters own their retry and timeout
// policy; the engine never retries.
type SinkAdapter interface {
	Send(ctx context.Context, shape translate.SinkShape) (models.SinkResult, error)
}

// BatchSinkAdapter accepts a batch of columnar rows. Row order matches the
// translated subset of the input batch.
type BatchSinkAdapter interface {
	SendBatch(ctx context.Context, rows []translate.ColumnarRow) (models.SinkResult, error)
}

// AuditPublisher emits structured events for every violation and dispatch.
// The engine does not persist its own audit trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
