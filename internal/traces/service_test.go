package traces

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gfxreplay/gfxreplay/internal/archive"
	"github.com/gfxreplay/gfxreplay/internal/bus"
	"github.com/gfxreplay/gfxreplay/internal/cache"
	"github.com/gfxreplay/gfxreplay/internal/catalog"
	gfxerrors "github.com/gfxreplay/gfxreplay/internal/errors"
	"github.com/gfxreplay/gfxreplay/internal/observability"
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/trace"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// buildCaptureFile writes a two-frame capture with a context lifecycle and
// one hidden event type.
func buildCaptureFile(t *testing.T, dir string) (string, string) {
	t.Helper()

	seq := sequence.New()
	created := seq.RegisterType(types.TypeNameContextCreated, true)
	setActive := seq.RegisterType(types.TypeNameContextSetActive, true)
	draw := seq.RegisterType("draw-arrays", false)
	fence := seq.RegisterType("fence-sync", true)
	frameEnd := seq.RegisterType(types.TypeNameFrameEnd, false)

	seq.Append(created, 1, 7, nil)
	seq.Append(setActive, 1, 7, nil)
	seq.Append(draw, 1, 7, nil)
	seq.Append(fence, 1, 7, nil)
	seq.Append(frameEnd, 1, 7, nil)
	seq.Append(draw, 1, 7, nil)
	seq.Append(frameEnd, 1, 7, nil)

	id, err := types.NewTraceIDGenerator().Generate()
	if err != nil {
		t.Fatalf("generate trace ID: %v", err)
	}
	path := filepath.Join(dir, "capture.gfxcap")
	if err := trace.WriteSequence(path, id, seq); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	return path, id.String()
}

func newTestService(t *testing.T) (*Service, *cache.TraceCache, *archive.LocalArchive) {
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

	traceCache := cache.NewTraceCache(8)
	svc := NewService(captureDir, cat, arch,
		WithCache(traceCache),
		WithNotifier(bus.NewNotifier(16)),
		WithFilterStats(observability.NewFilterStats()),
	)
	return svc, traceCache, arch
}

func uploadCapture(t *testing.T, svc *Service, name string) *catalog.TraceRecord {
	t.Helper()
	path, _ := buildCaptureFile(t, t.TempDir())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}
	record, err := svc.Upload(context.Background(), name, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return record
}

func TestService_Upload(t *testing.T) {
	svc, _, arch := newTestService(t)
	ctx := context.Background()

	record := uploadCapture(t, svc, "two-frames")

	if record.EventCount != 7 {
		t.Errorf("event count: got %d", record.EventCount)
	}
	if record.TypeCount != 5 {
		t.Errorf("type count: got %d", record.TypeCount)
	}
	if record.FrameCount != 2 {
		t.Errorf("frame count: got %d", record.FrameCount)
	}
	if record.Name != "two-frames" {
		t.Errorf("name: got %q", record.Name)
	}

	steps, err := svc.ListSteps(ctx, record.TraceID)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].StartEventID != 0 || steps[0].EndEventID != 5 {
		t.Errorf("step 0 range: [%d, %d)", steps[0].StartEventID, steps[0].EndEventID)
	}
	if steps[1].StartEventID != 5 || steps[1].EndEventID != 7 {
		t.Errorf("step 1 range: [%d, %d)", steps[1].StartEventID, steps[1].EndEventID)
	}

	archived, err := arch.Exists(ctx, archive.CaptureKey(record.TraceID))
	if err != nil || !archived {
		t.Errorf("capture not archived: exists=%v err=%v", archived, err)
	}
}

func TestService_UploadRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Upload(context.Background(), "junk", bytes.NewReader([]byte("not a capture at all")))
	if err == nil {
		t.Fatal("expected garbage upload to fail")
	}
	var gfxErr *gfxerrors.GfxError
	if !errors.As(err, &gfxErr) || gfxErr.Code != gfxerrors.CodeNotCaptureFile {
		t.Errorf("expected NOT_CAPTURE_FILE, got %v", err)
	}
}

func TestService_UploadDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	path, _ := buildCaptureFile(t, t.TempDir())
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture: %v", err)
	}

	if _, err := svc.Upload(ctx, "first", bytes.NewReader(data)); err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	_, err = svc.Upload(ctx, "second", bytes.NewReader(data))
	var gfxErr *gfxerrors.GfxError
	if !errors.As(err, &gfxErr) || gfxErr.Code != gfxerrors.CodeDuplicateTrace {
		t.Errorf("expected DUPLICATE_TRACE, got %v", err)
	}
}

func TestService_StepEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record := uploadCapture(t, svc, "events")

	raw, err := svc.StepEvents(ctx, record.TraceID, 0, false)
	if err != nil {
		t.Fatalf("StepEvents raw: %v", err)
	}
	if len(raw) != 5 {
		t.Errorf("raw events: got %d", len(raw))
	}

	// fence-sync is hidden and not allowlisted; the context lifecycle
	// events are hidden but always visible.
	visible, err := svc.StepEvents(ctx, record.TraceID, 0, true)
	if err != nil {
		t.Fatalf("StepEvents visible: %v", err)
	}
	if len(visible) != 4 {
		t.Errorf("visible events: got %d", len(visible))
	}
	for _, ev := range visible {
		if ev.ID == 3 {
			t.Error("hidden fence-sync event leaked into visible view")
		}
	}

	_, err = svc.StepEvents(ctx, record.TraceID, 9, false)
	var gfxErr *gfxerrors.GfxError
	if !errors.As(err, &gfxErr) || gfxErr.Code != gfxerrors.CodeStepNotFound {
		t.Errorf("expected STEP_NOT_FOUND, got %v", err)
	}
}

func TestService_StepContexts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record := uploadCapture(t, svc, "contexts")

	first, err := svc.StepContexts(ctx, record.TraceID, 0)
	if err != nil {
		t.Fatalf("StepContexts step 0: %v", err)
	}
	if len(first) != 0 {
		t.Errorf("step 0 should start with no contexts, got %v", first)
	}

	second, err := svc.StepContexts(ctx, record.TraceID, 1)
	if err != nil {
		t.Fatalf("StepContexts step 1: %v", err)
	}
	if !second[7] {
		t.Errorf("step 1 should start with context 7 alive, got %v", second)
	}
}

func TestService_LoadPullsFromArchive(t *testing.T) {
	svc, traceCache, _ := newTestService(t)
	ctx := context.Background()

	record := uploadCapture(t, svc, "pull")

	// Drop the local capture file and the cached trace; Load must fall
	// back to the archive.
	if err := os.Remove(record.CapturePath); err != nil {
		t.Fatalf("remove capture: %v", err)
	}
	traceCache.Invalidate(record.TraceID)

	loaded, err := svc.Load(ctx, record.TraceID)
	if err != nil {
		t.Fatalf("Load after removing local file: %v", err)
	}
	if loaded.Sequence.Len() != 7 {
		t.Errorf("pulled trace has %d events", loaded.Sequence.Len())
	}
	if len(loaded.Steps) != 2 {
		t.Errorf("pulled trace has %d steps", len(loaded.Steps))
	}
}

func TestService_Replay(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	record := uploadCapture(t, svc, "replay")

	results, err := svc.Replay(ctx, record.TraceID, true)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(results))
	}
	if results[0].EventsReplayed != 4 {
		t.Errorf("step 0 replayed %d events", results[0].EventsReplayed)
	}
	if !results[1].FinalContexts[7] {
		t.Errorf("step 1 should end with context 7 alive: %v", results[1].FinalContexts)
	}
	if results[0].UnknownContexts != 0 || results[1].UnknownContexts != 0 {
		t.Errorf("no unknown contexts expected: %+v", results)
	}
}

func TestService_Delete(t *testing.T) {
	svc, _, arch := newTestService(t)
	ctx := context.Background()

	record := uploadCapture(t, svc, "doomed")

	if err := svc.Delete(ctx, record.TraceID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.GetTrace(ctx, record.TraceID); err == nil {
		t.Error("trace should be gone from the catalog")
	}
	if _, err := os.Stat(record.CapturePath); !os.IsNotExist(err) {
		t.Error("capture file should be removed")
	}
	archived, err := arch.Exists(ctx, archive.CaptureKey(record.TraceID))
	if err != nil || archived {
		t.Errorf("archived capture should be removed: exists=%v err=%v", archived, err)
	}

	err = svc.Delete(ctx, record.TraceID)
	var gfxErr *gfxerrors.GfxError
	if !errors.As(err, &gfxErr) || gfxErr.Code != gfxerrors.CodeTraceNotFound {
		t.Errorf("expected TRACE_NOT_FOUND on double delete, got %v", err)
	}
}
