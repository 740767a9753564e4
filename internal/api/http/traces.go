package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gfxreplay/gfxreplay/internal/catalog"
	"github.com/gfxreplay/gfxreplay/internal/observability"
	"github.com/gfxreplay/gfxreplay/internal/replay"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// TraceService is the trace management surface the handlers depend on.
type TraceService interface {
	Upload(ctx context.Context, name string, r io.Reader) (*catalog.TraceRecord, error)
	ListTraces(ctx context.Context) ([]*catalog.TraceRecord, error)
	GetTrace(ctx context.Context, traceID string) (*catalog.TraceRecord, error)
	ListSteps(ctx context.Context, traceID string) ([]*catalog.StepRecord, error)
	GetStep(ctx context.Context, traceID string, stepNumber int) (*catalog.StepRecord, error)
	StepEvents(ctx context.Context, traceID string, stepNumber int, visibleOnly bool) ([]types.Event, error)
	StepContexts(ctx context.Context, traceID string, stepNumber int) (map[types.ContextID]bool, error)
	SearchSteps(ctx context.Context, traceID, typeName string) ([]*catalog.StepRecord, error)
	Replay(ctx context.Context, traceID string, visibleOnly bool) ([]replay.StepResult, error)
	Delete(ctx context.Context, traceID string) error
}

// TraceSummary is the wire form of a trace record.
type TraceSummary struct {
	TraceID    string    `json:"trace_id"`
	Name       string    `json:"name"`
	EventCount int64     `json:"event_count"`
	TypeCount  int64     `json:"type_count"`
	FrameCount int64     `json:"frame_count"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// StepSummary is the wire form of a step record.
type StepSummary struct {
	StepNumber    int     `json:"step_number"`
	StartEventID  int64   `json:"start_event_id"`
	EndEventID    int64   `json:"end_event_id"`
	FrameID       *string `json:"frame_id,omitempty"`
	FrameNumber   *int    `json:"frame_number,omitempty"`
	TotalEvents   int64   `json:"total_events"`
	VisibleEvents int64   `json:"visible_events"`
}

// StepEventsResponse carries one step's event listing.
type StepEventsResponse struct {
	TraceID    string        `json:"trace_id"`
	StepNumber int           `json:"step_number"`
	Visible    bool          `json:"visible"`
	Events     []types.Event `json:"events"`
}

// ReplayResponse carries per-step replay results.
type ReplayResponse struct {
	TraceID string              `json:"trace_id"`
	Steps   []replay.StepResult `json:"steps"`
}

// Handler serves the /v1 trace API.
type Handler struct {
	service        TraceService
	stats          *observability.FilterStats
	maxUploadBytes int64
}

// NewHandler creates the API handler. maxUploadBytes bounds capture upload
// size; zero disables the limit. stats may be nil.
func NewHandler(service TraceService, stats *observability.FilterStats, maxUploadBytes int64) *Handler {
	return &Handler{
		service:        service,
		stats:          stats,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register installs all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/traces", h.listTraces)
	mux.HandleFunc("POST /v1/traces", h.uploadTrace)
	mux.HandleFunc("GET /v1/traces/{id}", h.getTrace)
	mux.HandleFunc("DELETE /v1/traces/{id}", h.deleteTrace)
	mux.HandleFunc("GET /v1/traces/{id}/steps", h.listSteps)
	mux.HandleFunc("GET /v1/traces/{id}/steps/{n}", h.getStep)
	mux.HandleFunc("GET /v1/traces/{id}/steps/{n}/events", h.stepEvents)
	mux.HandleFunc("GET /v1/traces/{id}/steps/{n}/contexts", h.stepContexts)
	mux.HandleFunc("GET /v1/traces/{id}/search", h.searchSteps)
	mux.HandleFunc("POST /v1/traces/{id}/replay", h.replayTrace)
	mux.HandleFunc("GET /v1/stats/filtering", h.filterStats)
}

func (h *Handler) listTraces(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	records, err := h.service.ListTraces(r.Context())
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}

	summaries := make([]TraceSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, traceSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) uploadTrace(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	body := io.Reader(r.Body)
	if h.maxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	record, err := h.service.Upload(r.Context(), r.URL.Query().Get("name"), body)
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusCreated, traceSummary(record))
}

func (h *Handler) getTrace(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	record, err := h.service.GetTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, traceSummary(record))
}

func (h *Handler) deleteTrace(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeGfxError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listSteps(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	records, err := h.service.ListSteps(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}

	summaries := make([]StepSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, stepSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) getStep(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	stepNumber, ok := h.stepNumber(w, r, requestID)
	if !ok {
		return
	}
	record, err := h.service.GetStep(r.Context(), r.PathValue("id"), stepNumber)
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, stepSummary(record))
}

func (h *Handler) stepEvents(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	stepNumber, ok := h.stepNumber(w, r, requestID)
	if !ok {
		return
	}
	visibleOnly := parseBool(r.URL.Query().Get("visible"), true)

	traceID := r.PathValue("id")
	events, err := h.service.StepEvents(r.Context(), traceID, stepNumber, visibleOnly)
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	writeJSON(w, http.StatusOK, StepEventsResponse{
		TraceID:    traceID,
		StepNumber: stepNumber,
		Visible:    visibleOnly,
		Events:     events,
	})
}

func (h *Handler) stepContexts(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	stepNumber, ok := h.stepNumber(w, r, requestID)
	if !ok {
		return
	}
	contexts, err := h.service.StepContexts(r.Context(), r.PathValue("id"), stepNumber)
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}

	ids := make([]types.ContextID, 0, len(contexts))
	for id, alive := range contexts {
		if alive {
			ids = append(ids, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trace_id":    r.PathValue("id"),
		"step_number": stepNumber,
		"contexts":    ids,
	})
}

func (h *Handler) searchSteps(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	typeName := r.URL.Query().Get("type")
	if typeName == "" {
		writeError(w, http.StatusBadRequest, "type query parameter is required", requestID)
		return
	}

	records, err := h.service.SearchSteps(r.Context(), r.PathValue("id"), typeName)
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}

	summaries := make([]StepSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, stepSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) replayTrace(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	visibleOnly := parseBool(r.URL.Query().Get("visible"), true)
	traceID := r.PathValue("id")

	results, err := h.service.Replay(r.Context(), traceID, visibleOnly)
	if err != nil {
		writeGfxError(w, err, requestID)
		return
	}
	writeJSON(w, http.StatusOK, ReplayResponse{TraceID: traceID, Steps: results})
}

func (h *Handler) filterStats(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if h.stats == nil {
		writeError(w, http.StatusNotFound, "filter statistics not enabled", requestID)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_events":      h.stats.TotalEvents(),
		"suppression_ratio": h.stats.SuppressionRatio(),
		"top_types":         h.stats.TopTypes(limit),
	})
}

func (h *Handler) stepNumber(w http.ResponseWriter, r *http.Request, requestID string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "step number must be a non-negative integer", requestID)
		return 0, false
	}
	return n, true
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

func traceSummary(rec *catalog.TraceRecord) TraceSummary {
	return TraceSummary{
		TraceID:    rec.TraceID,
		Name:       rec.Name,
		EventCount: rec.EventCount,
		TypeCount:  rec.TypeCount,
		FrameCount: rec.FrameCount,
		SizeBytes:  rec.SizeBytes,
		CreatedAt:  rec.CreatedAt,
	}
}

func stepSummary(rec *catalog.StepRecord) StepSummary {
	return StepSummary{
		StepNumber:    rec.StepNumber,
		StartEventID:  rec.StartEventID,
		EndEventID:    rec.EndEventID,
		FrameID:       rec.FrameID,
		FrameNumber:   rec.FrameNumber,
		TotalEvents:   rec.TotalEvents,
		VisibleEvents: rec.VisibleEvents,
	}
}
