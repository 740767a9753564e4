// Package traces implements the trace management operations behind the API:
// uploading captures, loading and segmenting them, serving step views, and
// replaying.
package traces

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gfxreplay/gfxreplay/internal/archive"
	"github.com/gfxreplay/gfxreplay/internal/bus"
	"github.com/gfxreplay/gfxreplay/internal/cache"
	"github.com/gfxreplay/gfxreplay/internal/catalog"
	gfxerrors "github.com/gfxreplay/gfxreplay/internal/errors"
	"github.com/gfxreplay/gfxreplay/internal/observability"
	"github.com/gfxreplay/gfxreplay/internal/replay"
	"github.com/gfxreplay/gfxreplay/internal/segment"
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/step"
	"github.com/gfxreplay/gfxreplay/internal/trace"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// Service coordinates the catalog, the archive, and the loaded-trace cache.
type Service struct {
	captureDir string
	catalog    catalog.Catalog
	archive    archive.Archive
	cache      *cache.TraceCache
	notifier   *bus.Notifier
	stats      *observability.FilterStats
}

// Option configures a Service.
type Option func(*Service)

// WithCache attaches a loaded-trace cache.
func WithCache(c *cache.TraceCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier publishes trace lifecycle events to the given bus.
func WithNotifier(n *bus.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithFilterStats records visibility filtering statistics while segmenting.
func WithFilterStats(stats *observability.FilterStats) Option {
	return func(s *Service) { s.stats = stats }
}

// NewService creates a trace service storing capture files in captureDir.
func NewService(captureDir string, cat catalog.Catalog, arch archive.Archive, opts ...Option) *Service {
	s := &Service{
		captureDir: captureDir,
		catalog:    cat,
		archive:    arch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload ingests a capture file: it is decoded, segmented into steps,
// registered in the catalog, and pushed to the archive. The capture's
// embedded trace ID is authoritative.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*catalog.TraceRecord, error) {
	tmp, err := os.CreateTemp(s.captureDir, "upload-*.gfxcap")
	if err != nil {
		return nil, gfxerrors.NewInternalError("failed to stage capture upload", err)
	}
	tmpPath := tmp.Name()
	size, err := io.Copy(tmp, r)
	tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return nil, gfxerrors.NewTraceError(gfxerrors.CodeCaptureCorrupt, "failed to read capture upload", err)
	}

	seq, id, err := trace.ReadFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, gfxerrors.NewTraceError(gfxerrors.CodeNotCaptureFile, "uploaded file is not a readable capture", err)
	}
	if seq.Len() == 0 {
		os.Remove(tmpPath)
		return nil, gfxerrors.NewValidationError(gfxerrors.CodeEmptyCapture, "capture contains no events")
	}

	traceID := id.String()
	capturePath := s.capturePath(traceID)
	if err := os.Rename(tmpPath, capturePath); err != nil {
		os.Remove(tmpPath)
		return nil, gfxerrors.NewInternalError("failed to place capture file", err)
	}

	steps := s.segmentSequence(seq)
	stepRecords := catalog.BuildStepRecords(traceID, seq, steps)

	if name == "" {
		name = traceID
	}
	record := &catalog.TraceRecord{
		TraceID:     traceID,
		Name:        name,
		CapturePath: capturePath,
		EventCount:  int64(seq.Len()),
		TypeCount:   int64(seq.TypeCount()),
		FrameCount:  catalog.FrameCount(stepRecords),
		SizeBytes:   size,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.catalog.RegisterTrace(ctx, record, stepRecords); err != nil {
		os.Remove(capturePath)
		return nil, err
	}

	if s.archive != nil {
		if _, err := s.archive.Push(ctx, capturePath, archive.CaptureKey(traceID)); err != nil {
			// The trace stays usable from the local capture file.
			log.Printf("traces: archive push failed for %s: %v", traceID, err)
		}
	}

	if s.cache != nil {
		s.cache.Put(&cache.LoadedTrace{TraceID: traceID, Sequence: seq, Steps: steps})
	}
	s.publish(bus.Event{Type: bus.TraceRegistered, TraceID: traceID, StepCount: len(stepRecords), Timestamp: time.Now().UnixNano()})

	log.Printf("traces: registered %s: %d events, %d steps, %d frames",
		traceID, record.EventCount, len(stepRecords), record.FrameCount)
	return record, nil
}

// Load returns the decoded trace, reading the capture file (and pulling it
// from the archive when missing locally) on a cache miss.
func (s *Service) Load(ctx context.Context, traceID string) (*cache.LoadedTrace, error) {
	if s.cache != nil {
		if loaded, ok := s.cache.Get(traceID); ok {
			return loaded, nil
		}
	}

	record, err := s.catalog.GetTrace(ctx, traceID)
	if err != nil {
		return nil, err
	}

	capturePath := record.CapturePath
	if _, statErr := os.Stat(capturePath); os.IsNotExist(statErr) {
		capturePath = s.capturePath(traceID)
		if err := s.pullCapture(ctx, traceID, capturePath); err != nil {
			return nil, err
		}
	}

	seq, _, err := trace.ReadFile(capturePath)
	if err != nil {
		return nil, gfxerrors.NewTraceError(gfxerrors.CodeCaptureCorrupt,
			fmt.Sprintf("failed to decode capture for trace %s", traceID), err)
	}

	loaded := &cache.LoadedTrace{
		TraceID:  traceID,
		Sequence: seq,
		Steps:    s.segmentSequence(seq),
	}
	if s.cache != nil {
		s.cache.Put(loaded)
	}
	return loaded, nil
}

// ListTraces returns all registered traces, most recent first.
func (s *Service) ListTraces(ctx context.Context) ([]*catalog.TraceRecord, error) {
	return s.catalog.ListTraces(ctx)
}

// GetTrace returns one trace record.
func (s *Service) GetTrace(ctx context.Context, traceID string) (*catalog.TraceRecord, error) {
	return s.catalog.GetTrace(ctx, traceID)
}

// ListSteps returns a trace's step index in step order.
func (s *Service) ListSteps(ctx context.Context, traceID string) ([]*catalog.StepRecord, error) {
	return s.catalog.ListSteps(ctx, traceID)
}

// GetStep returns one step record.
func (s *Service) GetStep(ctx context.Context, traceID string, stepNumber int) (*catalog.StepRecord, error) {
	return s.catalog.GetStep(ctx, traceID, stepNumber)
}

// StepEvents returns the events of one step, either the raw range or the
// visible subsequence.
func (s *Service) StepEvents(ctx context.Context, traceID string, stepNumber int, visibleOnly bool) ([]types.Event, error) {
	st, err := s.loadStep(ctx, traceID, stepNumber)
	if err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, st.Len())
	it := st.EventIterator(visibleOnly)
	for ev, ok := it.Next(); ok; ev, ok = it.Next() {
		events = append(events, ev)
	}
	return events, nil
}

// StepContexts returns the context snapshot a step begins with.
func (s *Service) StepContexts(ctx context.Context, traceID string, stepNumber int) (map[types.ContextID]bool, error) {
	st, err := s.loadStep(ctx, traceID, stepNumber)
	if err != nil {
		return nil, err
	}
	return st.InitialContexts(), nil
}

// SearchSteps returns steps whose type filter may contain the given event
// type name.
func (s *Service) SearchSteps(ctx context.Context, traceID, typeName string) ([]*catalog.StepRecord, error) {
	return s.catalog.FindStepsByType(ctx, traceID, typeName)
}

// Replay replays every step of the trace in isolation and returns the
// per-step results.
func (s *Service) Replay(ctx context.Context, traceID string, visibleOnly bool) ([]replay.StepResult, error) {
	loaded, err := s.Load(ctx, traceID)
	if err != nil {
		return nil, err
	}

	driver := replay.NewDriver(loaded.Sequence, visibleOnly)
	results, err := driver.Replay(ctx, loaded.Steps)
	if err != nil {
		return nil, err
	}
	s.publish(bus.Event{Type: bus.ReplayFinished, TraceID: traceID, StepCount: len(results), Timestamp: time.Now().UnixNano()})
	return results, nil
}

// Delete removes a trace from the catalog, the local capture directory, and
// the archive.
func (s *Service) Delete(ctx context.Context, traceID string) error {
	record, err := s.catalog.GetTrace(ctx, traceID)
	if err != nil {
		return err
	}
	if err := s.catalog.DeleteTrace(ctx, traceID); err != nil {
		return err
	}

	if err := os.Remove(record.CapturePath); err != nil && !os.IsNotExist(err) {
		log.Printf("traces: failed to remove capture file %s: %v", record.CapturePath, err)
	}
	if s.archive != nil {
		if err := s.archive.Remove(ctx, archive.CaptureKey(traceID)); err != nil {
			log.Printf("traces: archive remove failed for %s: %v", traceID, err)
		}
	}
	if s.cache != nil {
		s.cache.Invalidate(traceID)
	}
	s.publish(bus.Event{Type: bus.TraceDeleted, TraceID: traceID, Timestamp: time.Now().UnixNano()})
	return nil
}

func (s *Service) loadStep(ctx context.Context, traceID string, stepNumber int) (*step.Step, error) {
	loaded, err := s.Load(ctx, traceID)
	if err != nil {
		return nil, err
	}
	if stepNumber < 0 || stepNumber >= len(loaded.Steps) {
		return nil, gfxerrors.NewCatalogError(gfxerrors.CodeStepNotFound,
			fmt.Sprintf("step %d not found in trace %s", stepNumber, traceID), nil)
	}
	return loaded.Steps[stepNumber], nil
}

func (s *Service) segmentSequence(seq *sequence.EventSequence) []*step.Step {
	var opts []segment.Option
	if s.stats != nil {
		opts = append(opts, segment.WithFilterStats(s.stats))
	}
	return segment.NewSegmenter(seq, opts...).Segment()
}

func (s *Service) pullCapture(ctx context.Context, traceID, destPath string) error {
	if s.archive == nil {
		return gfxerrors.NewArchiveError(gfxerrors.CodeObjectNotFound,
			fmt.Sprintf("capture file for trace %s is missing and no archive is configured", traceID), nil)
	}
	if err := s.archive.Pull(ctx, archive.CaptureKey(traceID), destPath); err != nil {
		return gfxerrors.NewArchiveError(gfxerrors.CodePullFailed,
			fmt.Sprintf("failed to pull capture for trace %s", traceID), err)
	}
	return nil
}

func (s *Service) capturePath(traceID string) string {
	return filepath.Join(s.captureDir, traceID+".gfxcap")
}

func (s *Service) publish(ev bus.Event) {
	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}
