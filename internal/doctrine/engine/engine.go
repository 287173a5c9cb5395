// Package engine orchestrates the doctrine gate: validate -> stamp ->
// translate -> dispatch. It is the single entry point every producing tool
// must call before a record reaches a persistence backend.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"doctrine/internal/doctrine/contract"
	"doctrine/internal/doctrine/enforcement"
	"doctrine/internal/doctrine/metrics"
	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/observability"
	"doctrine/internal/doctrine/ports"
	"doctrine/internal/doctrine/translate"
	"doctrine/pkg/platform/audit"
)

// Translators binds one translator per sink kind. Document and relational
// handle single records; columnar additionally handles batches.
type Translators struct {
	Document   *translate.DocumentTranslator
	Relational *translate.RelationalTranslator
	Columnar   *translate.ColumnarTranslator
}

func (t Translators) forKind(kind models.SinkKind) (translate.Translator, error) {
	switch kind {
	case models.SinkDocument:
		if t.Document != nil {
			return t.Document, nil
		}
	case models.SinkRelational:
		if t.Relational != nil {
			return t.Relational, nil
		}
	case models.SinkColumnar:
		if t.Columnar != nil {
			return t.Columnar, nil
		}
	default:
		return nil, fmt.Errorf("unknown sink kind %q", kind)
	}
	return nil, fmt.Errorf("no translator configured for sink kind %q", kind)
}

// Engine applies the doctrine uniformly: contract validation, provenance
// stamping, enforcement policy, and sink-shape translation. Validation and
// translation are pure and run lock-free; enforcement mutations serialize
// behind the state's mutex and are never held across sink I/O.
type Engine struct {
	validator   *contract.Validator
	state       *enforcement.State
	translators Translators

	logger  *slog.Logger
	auditor ports.AuditPublisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(e *Engine) { e.auditor = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New constructs the engine. Validator, enforcement state, and at least one
// translator are required.
func New(validator *contract.Validator, state *enforcement.State, translators Translators, opts ...Option) (*Engine, error) {
	if validator == nil {
		return nil, errors.New("contract validator is required")
	}
	if state == nil {
		return nil, errors.New("enforcement state is required")
	}
	if translators.Document == nil && translators.Relational == nil && translators.Columnar == nil {
		return nil, errors.New("at least one sink translator is required")
	}

	e := &Engine{
		validator:   validator,
		state:       state,
		translators: translators,
		tracer:      otel.Tracer("doctrine/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ValidateAndStamp checks record against the payload contract and, on
// success, returns the provenance-stamped canonical record. On a contract
// violation the engine records it against toolID (escalating per the current
// mode) and re-raises the violation to the caller.
func (e *Engine) ValidateAndStamp(ctx context.Context, record map[string]any, toolID string) (*models.CanonicalRecord, error) {
	if err := e.state.Admit(toolID); err != nil {
		return nil, err
	}

	rec, err := e.validator.Validate(ctx, record, toolID)
	if err != nil {
		var violation *models.ContractViolation
		if errors.As(err, &violation) {
			e.recordViolation(ctx, toolID, violation)
		}
		return nil, err
	}
	return rec, nil
}

// Dispatch translates rec for sinkKind and forwards the shape to the
// supplied adapter. The adapter's error propagates unchanged inside a
// SinkDispatchError; the engine never retries and a sink failure is never a
// doctrine violation. The lock and blacklist checks re-arm here even if the
// caller already passed ValidateAndStamp.
func (e *Engine) Dispatch(ctx context.Context, rec *models.CanonicalRecord, sinkKind models.SinkKind, sink ports.SinkAdapter) (*models.DispatchResult, error) {
	if rec == nil {
		return nil, errors.New("nil canonical record")
	}
	if sink == nil {
		return nil, errors.New("sink adapter is required")
	}

	if err := e.state.Admit(rec.SourceID); err != nil {
		return nil, err
	}

	translator, err := e.translators.forKind(sinkKind)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "doctrine.dispatch", trace.WithAttributes(
		attribute.String("sink.kind", sinkKind.String()),
		attribute.String("record.id", rec.RecordID),
		attribute.String("tool.id", rec.SourceID),
	))
	defer span.End()

	shape, err := translator.Translate(rec)
	if err != nil {
		e.countDispatch(sinkKind, "translation_failed")
		return nil, fmt.Errorf("translate record %s for %s sink: %w", rec.RecordID, sinkKind, err)
	}

	result, err := sink.Send(ctx, shape)
	if err != nil {
		e.countDispatch(sinkKind, "sink_error")
		return nil, &models.SinkDispatchError{SinkKind: sinkKind, Err: err}
	}

	e.countDispatch(sinkKind, "ok")
	observability.LogAudit(ctx, e.logger, e.auditor, audit.KindDispatch, "record_dispatched",
		"tool_id", rec.SourceID,
		"record_id", rec.RecordID,
		"sink_kind", sinkKind.String(),
		"sink_id", result.ID,
	)

	return &models.DispatchResult{SinkKind: sinkKind, SinkID: result.ID}, nil
}

// DispatchBatch translates a batch for the columnar sink and forwards the
// valid subset to the adapter. Invalid records are reported in the result,
// positionally aligned with the input, not silently dropped. An empty valid
// subset skips the sink call entirely.
func (e *Engine) DispatchBatch(ctx context.Context, recs []*models.CanonicalRecord, sink ports.BatchSinkAdapter) (*models.BatchDispatchResult, error) {
	if sink == nil {
		return nil, errors.New("batch sink adapter is required")
	}
	if e.translators.Columnar == nil {
		return nil, errors.New("no translator configured for sink kind \"columnar\"")
	}

	for _, rec := range recs {
		if rec == nil {
			return nil, errors.New("nil canonical record in batch")
		}
		if err := e.state.Admit(rec.SourceID); err != nil {
			return nil, err
		}
	}

	ctx, span := e.tracer.Start(ctx, "doctrine.dispatch_batch", trace.WithAttributes(
		attribute.String("sink.kind", models.SinkColumnar.String()),
		attribute.Int("batch.size", len(recs)),
	))
	defer span.End()

	rows, batchErrs := e.translators.Columnar.TranslateBatch(recs)

	result := &models.BatchDispatchResult{Errors: batchErrs}
	if len(rows) == 0 {
		e.countDispatch(models.SinkColumnar, "empty_batch")
		return result, nil
	}

	sinkResult, err := sink.SendBatch(ctx, rows)
	if err != nil {
		e.countDispatch(models.SinkColumnar, "sink_error")
		return nil, &models.SinkDispatchError{SinkKind: models.SinkColumnar, Err: err}
	}

	result.SinkResult = sinkResult
	result.Dispatched = len(rows)

	e.countDispatch(models.SinkColumnar, "ok")
	for _, rec := range recs {
		observability.LogAudit(ctx, e.logger, e.auditor, audit.KindDispatch, "record_dispatched",
			"tool_id", rec.SourceID,
			"record_id", rec.RecordID,
			"sink_kind", models.SinkColumnar.String(),
			"sink_id", sinkResult.ID,
		)
	}

	return result, nil
}

// SetMode switches the enforcement mode for subsequent calls. Administrative;
// past violations are never re-evaluated.
func (e *Engine) SetMode(ctx context.Context, mode models.Mode) error {
	if err := e.state.SetMode(mode); err != nil {
		return err
	}
	observability.LogAudit(ctx, e.logger, e.auditor, audit.KindAdmin, "mode_changed",
		"mode", mode.String(),
	)
	return nil
}

// Status returns the administrative snapshot of enforcement state.
func (e *Engine) Status() models.EnforcementStatus {
	return e.state.Status()
}

// Recover lifts the lockdown given the correct operator credential. The
// attempt is audited either way and is never counted as a doctrine violation.
func (e *Engine) Recover(ctx context.Context, code string) error {
	if err := e.state.Recover(code); err != nil {
		e.countRecovery("denied")
		observability.LogAudit(ctx, e.logger, e.auditor, audit.KindRecovery, "recovery_denied",
			"reason", "invalid recovery code",
		)
		return err
	}

	e.countRecovery("ok")
	e.setLockedGauge(false)
	observability.LogAudit(ctx, e.logger, e.auditor, audit.KindRecovery, "recovery_succeeded")
	return nil
}

// Unban lifts the blacklist for a single tool without a full recovery.
func (e *Engine) Unban(ctx context.Context, toolID string) error {
	if err := e.state.Unban(toolID); err != nil {
		return err
	}
	observability.LogAudit(ctx, e.logger, e.auditor, audit.KindAdmin, "tool_unbanned",
		"tool_id", toolID,
	)
	return nil
}

func (e *Engine) recordViolation(ctx context.Context, toolID string, violation *models.ContractViolation) {
	outcome := e.state.RecordViolation(toolID)

	if e.metrics != nil {
		e.metrics.ViolationsTotal.WithLabelValues(toolID, outcome.Mode.String()).Inc()
	}

	observability.LogAudit(ctx, e.logger, e.auditor, audit.KindViolation, "contract_violation",
		"tool_id", toolID,
		"reason", violation.Error(),
		"violation_count", fmt.Sprintf("%d", outcome.ViolationCount),
		"blacklisted", fmt.Sprintf("%t", outcome.Blacklisted),
	)

	if outcome.LockEngaged {
		e.setLockedGauge(true)
		observability.LogAudit(ctx, e.logger, e.auditor, audit.KindLockdown, "lockdown_engaged",
			"tool_id", toolID,
			"violation_count", fmt.Sprintf("%d", outcome.ViolationCount),
		)
	}
}

func (e *Engine) countDispatch(kind models.SinkKind, status string) {
	if e.metrics != nil {
		e.metrics.DispatchesTotal.WithLabelValues(kind.String(), status).Inc()
	}
}

func (e *Engine) countRecovery(outcome string) {
	if e.metrics != nil {
		e.metrics.RecoveriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) setLockedGauge(locked bool) {
	if e.metrics == nil {
		return
	}
	if locked {
		e.metrics.Locked.Set(1)
	} else {
		e.metrics.Locked.Set(0)
	}
}
