// Package observability provides audit logging helpers for the doctrine
// engine.
package observability

import (
	"context"
	"log/slog"

	"doctrine/internal/doctrine/ports"
	"doctrine/pkg/attrs"
	"doctrine/pkg/platform/audit"
	"doctrine/pkg/requestcontext"
)

// LogAudit logs an enforcement event to both the structured logger and the
// audit publisher. It enriches events with the request ID and extracts the
// tool and reason from attrList.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher ports.AuditPublisher, kind audit.EventKind, action string, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	args := append(attrList, "event", action, "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, action, args...)
	}

	if publisher == nil {
		return
	}

	_ = publisher.Emit(ctx, audit.Event{
		Kind:      kind,
		Action:    action,
		ToolID:    attrs.ExtractString(attrList, "tool_id"),
		Reason:    attrs.ExtractString(attrList, "reason"),
		RequestID: requestID,
	})
}
