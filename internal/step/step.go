// Package step provides the bounded, visibility-filtered view over one
// contiguous slice of a trace. A Step either redraws a visual frame or
// performs intermediate state changes between frames; timeline and replay
// consumers walk its events through iterators.
package step

import (
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// alwaysVisibleTypes is the pinned allowlist of structurally significant
// type names that stay visible even when the trace marks them hidden.
// Replay and timeline consumers need context lifecycle events regardless
// of the trace's noise classification. The names are resolved against the
// sequence's registry once per Step; unregistered names resolve to the
// TypeUnknown sentinel and the allowlist entry filters nothing extra.
var alwaysVisibleTypes = map[string]bool{
	types.TypeNameContextCreated:   true,
	types.TypeNameContextSetActive: true,
}

// Step is an immutable view over the event range [start, end) of a shared
// sequence. The visible-event indirection table is computed once at
// construction and never refreshed; the sequence is append-only and a Step
// describes a historical range, so no invalidation is needed.
//
// The sequence, frame, and context snapshot are shared, unowned references.
// The owning session must outlive every Step it hands out.
type Step struct {
	events  *sequence.EventSequence
	start   types.EventID
	end     types.EventID
	visible []types.EventID

	frame           *types.Frame
	initialContexts map[types.ContextID]bool
}

// New constructs a Step over [start, end).
//
// The sequence is required. Callers guarantee start <= end; an inverted
// range is not checked here and simply yields empty iteration. frame may
// be nil for steps that only do intermediate bookkeeping. initialContexts
// is the set of rendering contexts alive when the step begins; nil means
// none. Construction scans the raw range once to build the visible-event
// table and has no other side effects.
func New(events *sequence.EventSequence, start, end types.EventID, frame *types.Frame, initialContexts map[types.ContextID]bool) *Step {
	s := &Step{
		events:          events,
		start:           start,
		end:             end,
		frame:           frame,
		initialContexts: initialContexts,
	}
	if s.initialContexts == nil {
		s.initialContexts = make(map[types.ContextID]bool)
	}
	s.visible = s.computeVisibleEvents()
	return s
}

// computeVisibleEvents builds the ordered indirection table of visible
// positions within [start, end): every event that is not hidden, plus any
// hidden event whose type is on the pinned allowlist. Positions are
// strictly increasing and each appears at most once.
func (s *Step) computeVisibleEvents() []types.EventID {
	allowed := make(map[types.TypeID]bool, len(alwaysVisibleTypes))
	for name := range alwaysVisibleTypes {
		if id := s.events.TypeID(name); id != types.TypeUnknown {
			allowed[id] = true
		}
	}

	var visible []types.EventID
	it := newRangeIterator(s.events, s.start, s.end)
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		if !ev.Hidden || allowed[ev.Type] {
			visible = append(visible, ev.ID)
		}
	}
	return visible
}

// EventIterator returns a fresh iterator over the step's window.
//
// With visibleOnly false it walks the raw range [start, end) directly.
// With visibleOnly true it walks the cached visible-event table, resolving
// each position through the shared sequence, so hidden noise is suppressed
// while order is preserved.
func (s *Step) EventIterator(visibleOnly bool) EventIterator {
	if visibleOnly {
		return newIndexedIterator(s.events, s.visible)
	}
	return newRangeIterator(s.events, s.start, s.end)
}

// StartEventID returns the inclusive lower bound of the step's range.
func (s *Step) StartEventID() types.EventID {
	return s.start
}

// EndEventID returns the exclusive upper bound of the step's range.
func (s *Step) EndEventID() types.EventID {
	return s.end
}

// Frame returns the frame this step renders, or nil for a step that only
// performs intermediate state changes.
func (s *Step) Frame() *types.Frame {
	return s.frame
}

// InitialContexts returns the set of rendering contexts that exist when
// the step begins. The returned map is a shared snapshot; callers must
// not mutate it.
func (s *Step) InitialContexts() map[types.ContextID]bool {
	return s.initialContexts
}

// Len returns the number of events in the raw range.
func (s *Step) Len() int {
	return int(s.end - s.start)
}

// VisibleLen returns the number of events in the filtered view.
func (s *Step) VisibleLen() int {
	return len(s.visible)
}
