// Package handler wires the doctrine engine's ingest and administrative
// endpoints to HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"doctrine/internal/doctrine/models"
	"doctrine/internal/doctrine/ports"
	dErrors "doctrine/pkg/domain-errors"
	"doctrine/pkg/platform/httputil"
	"doctrine/pkg/requestcontext"
)

// Tool identity travels in a header; the engine treats it as the violation
// and blacklist key.
const HeaderToolID = "X-Tool-ID"

// Service is the engine surface the handler depends on.
type Service interface {
	ValidateAndStamp(ctx context.Context, record map[string]any, toolID string) (*models.CanonicalRecord, error)
	Dispatch(ctx context.Context, rec *models.CanonicalRecord, sinkKind models.SinkKind, sink ports.SinkAdapter) (*models.DispatchResult, error)
	DispatchBatch(ctx context.Context, recs []*models.CanonicalRecord, sink ports.BatchSinkAdapter) (*models.BatchDispatchResult, error)
	SetMode(ctx context.Context, mode models.Mode) error
	Status() models.EnforcementStatus
	Recover(ctx context.Context, code string) error
	Unban(ctx context.Context, toolID string) error
}

// Sinks holds the configured sink adapters, one per kind. Nil entries mean
// the backend is not configured in this deployment.
type Sinks struct {
	Document   ports.SinkAdapter
	Relational ports.SinkAdapter
	Columnar   ports.BatchSinkAdapter
}

// Handler exposes the doctrine gate over HTTP.
type Handler struct {
	service Service
	sinks   Sinks
	logger  *slog.Logger
}

// New constructs a handler with its dependencies.
func New(service Service, sinks Sinks, logger *slog.Logger) *Handler {
	return &Handler{service: service, sinks: sinks, logger: logger}
}

// RegisterIngest mounts the tool-facing endpoints.
func (h *Handler) RegisterIngest(r chi.Router) {
	r.Post("/ingest/{sinkKind}", h.HandleIngest)
	r.Post("/ingest/columnar/batch", h.HandleIngestBatch)
}

// RegisterAdmin mounts the operator endpoints. The router is expected to
// guard them with authentication middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/doctrine/status", h.HandleStatus)
	r.Post("/doctrine/mode", h.HandleSetMode)
	r.Post("/doctrine/recover", h.HandleRecover)
	r.Post("/doctrine/unban", h.HandleUnban)
}

// HandleIngest handles POST /ingest/{sinkKind}: validate, stamp, translate,
// dispatch one record.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	toolID := r.Header.Get(HeaderToolID)
	if toolID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing "+HeaderToolID+" header"))
		return
	}
	ctx = requestcontext.WithToolID(ctx, toolID)

	sinkKind := models.SinkKind(chi.URLParam(r, "sinkKind"))
	if !sinkKind.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown sink kind"))
		return
	}

	sink, err := h.sinkFor(sinkKind)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := httputil.DecodeJSON[map[string]any](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := h.service.ValidateAndStamp(ctx, record, toolID)
	if err != nil {
		h.logError(ctx, "validation refused", toolID, err)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Dispatch(ctx, rec, sinkKind, sink)
	if err != nil {
		h.logError(ctx, "dispatch refused", toolID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleIngestBatch handles POST /ingest/columnar/batch: validate and stamp
// every record, then dispatch the batch to the columnar sink. Validation
// failures abort the whole request; translation failures degrade per record.
func (h *Handler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	toolID := r.Header.Get(HeaderToolID)
	if toolID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing "+HeaderToolID+" header"))
		return
	}
	ctx = requestcontext.WithToolID(ctx, toolID)

	if h.sinks.Columnar == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "columnar sink is not configured"))
		return
	}

	records, err := httputil.DecodeJSON[[]map[string]any](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	recs := make([]*models.CanonicalRecord, 0, len(records))
	for _, record := range records {
		rec, err := h.service.ValidateAndStamp(ctx, record, toolID)
		if err != nil {
			h.logError(ctx, "validation refused", toolID, err)
			httputil.WriteError(w, err)
			return
		}
		recs = append(recs, rec)
	}

	result, err := h.service.DispatchBatch(ctx, recs, h.sinks.Columnar)
	if err != nil {
		h.logError(ctx, "batch dispatch refused", toolID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, batchResponse(result))
}

// HandleStatus handles GET /doctrine/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Status())
}

// SetModeRequest is the body of POST /doctrine/mode.
type SetModeRequest struct {
	Mode string `json:"mode"`
}

// HandleSetMode handles POST /doctrine/mode.
func (h *Handler) HandleSetMode(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[SetModeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.SetMode(r.Context(), mode); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.Status())
}

// RecoverRequest is the body of POST /doctrine/recover.
type RecoverRequest struct {
	Code string `json:"code"`
}

// HandleRecover handles POST /doctrine/recover.
func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[RecoverRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Recover(r.Context(), req.Code); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.Status())
}

// UnbanRequest is the body of POST /doctrine/unban.
type UnbanRequest struct {
	ToolID string `json:"tool_id"`
}

// HandleUnban handles POST /doctrine/unban.
func (h *Handler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeJSON[UnbanRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.ToolID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "tool_id is required"))
		return
	}

	if err := h.service.Unban(r.Context(), req.ToolID); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeNotFound, "unban failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.Status())
}

func (h *Handler) sinkFor(kind models.SinkKind) (ports.SinkAdapter, error) {
	var sink ports.SinkAdapter
	switch kind {
	case models.SinkDocument:
		sink = h.sinks.Document
	case models.SinkRelational:
		sink = h.sinks.Relational
	case models.SinkColumnar:
		if h.sinks.Columnar != nil {
			if adapter, ok := h.sinks.Columnar.(ports.SinkAdapter); ok {
				sink = adapter
			}
		}
	}
	if sink == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, string(kind)+" sink is not configured")
	}
	return sink, nil
}

func (h *Handler) logError(ctx context.Context, msg, toolID string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"tool_id", toolID,
		"error", err,
	)
}

// batchResponse flattens batch errors into a JSON-friendly shape.
type batchErrorResponse struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type batchResponseBody struct {
	SinkID     string               `json:"sink_id,omitempty"`
	Dispatched int                  `json:"dispatched"`
	Errors     []batchErrorResponse `json:"errors,omitempty"`
}

func batchResponse(result *models.BatchDispatchResult) batchResponseBody {
	body := batchResponseBody{
		SinkID:     result.SinkResult.ID,
		Dispatched: result.Dispatched,
	}
	for _, be := range result.Errors {
		body.Errors = append(body.Errors, batchErrorResponse{Index: be.Index, Error: be.Err.Error()})
	}
	return body
}
