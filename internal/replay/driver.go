// Package replay drives the replay of segmented steps: it seeds rendering
// context state from each step's snapshot and walks the step's events in
// order, either the full range or only the visible view.
package replay

import (
	"context"

	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/step"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// State is the replay-relevant context state maintained while walking
// a step's events.
type State struct {
	// Contexts maps context handles to existence
	Contexts map[types.ContextID]bool

	// Active is the context made current by the last context-set-active
	// event, 0 when none has been selected yet
	Active types.ContextID
}

// StepResult reports what one step's replay traversal observed.
type StepResult struct {
	StartEventID types.EventID `json:"start_event_id"`
	EndEventID   types.EventID `json:"end_event_id"`

	// Frame carries the frame the step renders, nil for bookkeeping steps
	Frame *types.Frame `json:"frame,omitempty"`

	// EventsReplayed counts the events the traversal yielded
	EventsReplayed int `json:"events_replayed"`

	// UnknownContexts counts events that referenced a context absent
	// from the replay state, which indicates a broken snapshot chain
	UnknownContexts int `json:"unknown_contexts"`

	// FinalContexts is the context existence set after the step
	FinalContexts map[types.ContextID]bool `json:"final_contexts"`
}

// Driver replays steps in order. It is a pure pull-based consumer: no
// background work, the caller's control flow drives the traversal.
type Driver struct {
	seq         *sequence.EventSequence
	visibleOnly bool
}

// NewDriver creates a replay driver. With visibleOnly set it walks the
// filtered view of each step, otherwise the raw range.
func NewDriver(seq *sequence.EventSequence, visibleOnly bool) *Driver {
	return &Driver{seq: seq, visibleOnly: visibleOnly}
}

// Replay walks the given steps in order and returns one result per step.
// ctx is checked between steps so long replays can be abandoned.
func (d *Driver) Replay(ctx context.Context, steps []*step.Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, d.ReplayStep(st))
	}
	return results, nil
}

// ReplayStep traverses a single step, seeding context state from the
// step's snapshot and applying context lifecycle events as they occur.
func (d *Driver) ReplayStep(st *step.Step) StepResult {
	state := State{
		Contexts: make(map[types.ContextID]bool),
	}
	for id, alive := range st.InitialContexts() {
		state.Contexts[id] = alive
	}

	created := d.seq.TypeID(types.TypeNameContextCreated)
	destroyed := d.seq.TypeID(types.TypeNameContextDestroyed)
	setActive := d.seq.TypeID(types.TypeNameContextSetActive)

	result := StepResult{
		StartEventID: st.StartEventID(),
		EndEventID:   st.EndEventID(),
		Frame:        st.Frame(),
	}

	it := st.EventIterator(d.visibleOnly)
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		result.EventsReplayed++

		switch ev.Type {
		case created:
			if ev.Context != 0 {
				state.Contexts[ev.Context] = true
			}
			continue
		case destroyed:
			delete(state.Contexts, ev.Context)
			continue
		case setActive:
			if ev.Context != 0 && !state.Contexts[ev.Context] {
				result.UnknownContexts++
				continue
			}
			state.Active = ev.Context
			continue
		}

		if ev.Context != 0 && !state.Contexts[ev.Context] {
			result.UnknownContexts++
		}
	}

	result.FinalContexts = state.Contexts
	return result
}
