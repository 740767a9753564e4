// Package segment partitions a loaded event sequence into steps: consecutive,
// non-overlapping ranges that each either render one frame or perform
// intermediate bookkeeping between frames.
package segment

import (
	"github.com/google/uuid"

	"github.com/gfxreplay/gfxreplay/internal/observability"
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/step"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// Segmenter walks a sequence once, cutting a step after every frame-end
// event and tracking context lifecycle so each step carries a snapshot of
// the contexts alive when it begins.
type Segmenter struct {
	seq   *sequence.EventSequence
	stats *observability.FilterStats
}

// Option configures a Segmenter.
type Option func(*Segmenter)

// WithFilterStats records per-type frequencies and visibility suppression
// into stats while segmenting.
func WithFilterStats(stats *observability.FilterStats) Option {
	return func(s *Segmenter) {
		s.stats = stats
	}
}

// NewSegmenter creates a segmenter over the given sequence.
func NewSegmenter(seq *sequence.EventSequence, opts ...Option) *Segmenter {
	s := &Segmenter{seq: seq}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segment partitions the whole sequence into steps. A step ends after each
// frame-end event; a trailing bookkeeping step covers any remainder. The
// returned steps tile [0, seq.Len()) exactly, in order. An empty sequence
// yields no steps.
func (s *Segmenter) Segment() []*step.Step {
	frameEnd := s.seq.TypeID(types.TypeNameFrameEnd)
	created := s.seq.TypeID(types.TypeNameContextCreated)
	destroyed := s.seq.TypeID(types.TypeNameContextDestroyed)

	total := types.EventID(s.seq.Len())

	var steps []*step.Step
	contexts := make(map[types.ContextID]bool)
	snapshot := snapshotContexts(contexts)
	stepStart := types.EventID(0)
	frameNumber := 0

	for id := types.EventID(0); id < total; id++ {
		ev, err := s.seq.Get(id)
		if err != nil {
			break
		}

		// Context lifecycle updates the live set; the snapshot for the
		// current step was taken before its first event.
		switch ev.Type {
		case created:
			if ev.Context != 0 {
				contexts[ev.Context] = true
			}
		case destroyed:
			delete(contexts, ev.Context)
		}

		if ev.Type == frameEnd && frameEnd != types.TypeUnknown {
			frame := &types.Frame{
				FrameID:      uuid.New().String(),
				Number:       frameNumber,
				StartEventID: stepStart,
				EndEventID:   id + 1,
				Context:      ev.Context,
			}
			steps = append(steps, s.buildStep(stepStart, id+1, frame, snapshot))
			frameNumber++
			stepStart = id + 1
			snapshot = snapshotContexts(contexts)
		}
	}

	if stepStart < total {
		steps = append(steps, s.buildStep(stepStart, total, nil, snapshot))
	}

	return steps
}

func (s *Segmenter) buildStep(start, end types.EventID, frame *types.Frame, contexts map[types.ContextID]bool) *step.Step {
	st := step.New(s.seq, start, end, frame, contexts)
	if s.stats != nil {
		s.recordStats(st)
	}
	return st
}

// recordStats walks the raw and visible views in lockstep; events present
// in the raw view but absent from the visible one were suppressed.
func (s *Segmenter) recordStats(st *step.Step) {
	visible := st.EventIterator(true)
	nextVisible, visibleOK := visible.Next()

	raw := st.EventIterator(false)
	for {
		ev, ok := raw.Next()
		if !ok {
			return
		}
		suppressed := true
		if visibleOK && nextVisible.ID == ev.ID {
			suppressed = false
			nextVisible, visibleOK = visible.Next()
		}
		s.stats.Record(s.seq.TypeName(ev.Type), suppressed)
	}
}

func snapshotContexts(contexts map[types.ContextID]bool) map[types.ContextID]bool {
	out := make(map[types.ContextID]bool, len(contexts))
	for id, alive := range contexts {
		out[id] = alive
	}
	return out
}
