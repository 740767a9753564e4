package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gfxreplay/gfxreplay/internal/archive"
	"github.com/gfxreplay/gfxreplay/internal/catalog"
	"github.com/gfxreplay/gfxreplay/internal/observability"
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/trace"
	"github.com/gfxreplay/gfxreplay/internal/traces"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	base := t.TempDir()

	captureDir := filepath.Join(base, "captures")
	if err := os.MkdirAll(captureDir, 0755); err != nil {
		t.Fatalf("mkdir captures: %v", err)
	}

	cat, err := catalog.NewCatalog(filepath.Join(base, "catalog.db"))
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	arch, err := archive.NewLocalArchive(filepath.Join(base, "archive"))
	if err != nil {
		t.Fatalf("NewLocalArchive: %v", err)
	}

	stats := observability.NewFilterStats()
	svc := traces.NewService(captureDir, cat, arch, traces.WithFilterStats(stats))

	mux := http.NewServeMux()
	NewHandler(svc, stats, 64*1024*1024).Register(mux)
	return mux
}

func captureBytes(t *testing.T) []byte {
	t.Helper()

	seq := sequence.New()
	created := seq.RegisterType(types.TypeNameContextCreated, true)
	draw := seq.RegisterType("draw-arrays", false)
	fence := seq.RegisterType("fence-sync", true)
	frameEnd := seq.RegisterType(types.TypeNameFrameEnd, false)

	seq.Append(created, 1, 3, nil)
	seq.Append(draw, 1, 3, nil)
	seq.Append(fence, 1, 3, nil)
	seq.Append(frameEnd, 1, 3, nil)
	seq.Append(draw, 1, 3, nil)

	id, err := types.NewTraceIDGenerator().Generate()
	if err != nil {
		t.Fatalf("generate trace ID: %v", err)
	}
	path := filepath.Join(t.TempDir(), "c.gfxcap")
	if err := trace.WriteSequence(path, id, seq); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	return data
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func uploadTestCapture(t *testing.T, mux *http.ServeMux) TraceSummary {
	t.Helper()
	rec := doRequest(t, mux, http.MethodPost, "/v1/traces?name=test-capture", captureBytes(t))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status %d: %s", rec.Code, rec.Body.String())
	}
	var summary TraceSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return summary
}

func TestAPI_UploadAndGetTrace(t *testing.T) {
	mux := newTestMux(t)

	summary := uploadTestCapture(t, mux)
	if summary.Name != "test-capture" {
		t.Errorf("name: got %q", summary.Name)
	}
	if summary.EventCount != 5 {
		t.Errorf("event count: got %d", summary.EventCount)
	}
	if summary.FrameCount != 1 {
		t.Errorf("frame count: got %d", summary.FrameCount)
	}

	rec := doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodGet, "/v1/traces", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list []TraceSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 trace, got %d", len(list))
	}
}

func TestAPI_UploadGarbage(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/v1/traces", []byte("garbage"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "NOT_CAPTURE_FILE" {
		t.Errorf("error code: got %q", resp.Code)
	}
}

func TestAPI_GetTraceNotFound(t *testing.T) {
	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodGet, "/v1/traces/nonexistent", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPI_StepsAndEvents(t *testing.T) {
	mux := newTestMux(t)
	summary := uploadTestCapture(t, mux)

	rec := doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/steps", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("steps status %d", rec.Code)
	}
	var steps []StepSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &steps); err != nil {
		t.Fatalf("decode steps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].FrameID == nil {
		t.Error("frame step should carry a frame ID")
	}
	if steps[1].FrameID != nil {
		t.Error("trailing step should have no frame")
	}

	// Raw view of the frame step: all 4 events.
	rec = doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/steps/0/events?visible=false", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status %d", rec.Code)
	}
	var events StepEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events.Events) != 4 {
		t.Errorf("raw events: got %d", len(events.Events))
	}

	// Visible view drops the hidden fence-sync but keeps context-created.
	rec = doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/steps/0/events?visible=true", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode visible events: %v", err)
	}
	if len(events.Events) != 3 {
		t.Errorf("visible events: got %d", len(events.Events))
	}

	rec = doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/steps/xyz/events", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad step number: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/steps/9", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing step: expected 404, got %d", rec.Code)
	}
}

func TestAPI_SearchSteps(t *testing.T) {
	mux := newTestMux(t)
	summary := uploadTestCapture(t, mux)

	rec := doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/search?type=draw-arrays", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status %d", rec.Code)
	}
	var steps []StepSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &steps); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("draw-arrays appears in both steps, got %d", len(steps))
	}

	rec = doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID+"/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("search without type: expected 400, got %d", rec.Code)
	}
}

func TestAPI_Replay(t *testing.T) {
	mux := newTestMux(t)
	summary := uploadTestCapture(t, mux)

	rec := doRequest(t, mux, http.MethodPost, "/v1/traces/"+summary.TraceID+"/replay", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status %d: %s", rec.Code, rec.Body.String())
	}
	var resp ReplayResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if len(resp.Steps) != 2 {
		t.Errorf("expected 2 step results, got %d", len(resp.Steps))
	}
}

func TestAPI_DeleteTrace(t *testing.T) {
	mux := newTestMux(t)
	summary := uploadTestCapture(t, mux)

	rec := doRequest(t, mux, http.MethodDelete, "/v1/traces/"+summary.TraceID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodGet, "/v1/traces/"+summary.TraceID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("deleted trace still served: %d", rec.Code)
	}
}

func TestAPI_FilterStats(t *testing.T) {
	mux := newTestMux(t)
	uploadTestCapture(t, mux)

	rec := doRequest(t, mux, http.MethodGet, "/v1/stats/filtering", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp["total_events"].(float64) != 5 {
		t.Errorf("total events: got %v", resp["total_events"])
	}
}
