// Package sequence provides the global, append-only event sequence that backs
// a loaded capture. Events are assigned contiguous integer IDs in append order
// and classified against a string-keyed type registry.
package sequence

import (
	"sync"

	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// EventSequence is an ordered, append-only collection of trace events.
//
// A sequence has a single-writer load phase followed by a read-only phase.
// Reads are safe at any point; callers that hold event ranges (steps, frames)
// must not outlive the sequence.
type EventSequence struct {
	mu     sync.RWMutex
	events []types.Event

	// Type registry: symbolic name -> stable small integer ID.
	typeIDs   map[string]types.TypeID
	typeNames []string
	// Default hidden classification per type, indexed by TypeID.
	typeHidden []bool
}

// New creates an empty event sequence.
func New() *EventSequence {
	return &EventSequence{
		typeIDs: make(map[string]types.TypeID),
	}
}

// RegisterType registers a symbolic type name with its default hidden
// classification and returns its TypeID. Registering an existing name
// returns the already-assigned ID; the hidden default is not changed.
func (s *EventSequence) RegisterType(name string, hidden bool) types.TypeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.typeIDs[name]; ok {
		return id
	}
	id := types.TypeID(len(s.typeNames))
	s.typeIDs[name] = id
	s.typeNames = append(s.typeNames, name)
	s.typeHidden = append(s.typeHidden, hidden)
	return id
}

// TypeID resolves a symbolic type name to its registered ID.
// Returns types.TypeUnknown when the name is not registered; the sentinel
// never matches any recorded event, so lookups degrade rather than fail.
func (s *EventSequence) TypeID(name string) types.TypeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.typeIDs[name]; ok {
		return id
	}
	return types.TypeUnknown
}

// TypeName returns the symbolic name for a registered TypeID,
// or the empty string for types.TypeUnknown and out-of-range IDs.
func (s *EventSequence) TypeName(id types.TypeID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || int(id) >= len(s.typeNames) {
		return ""
	}
	return s.typeNames[id]
}

// TypeCount returns the number of registered types.
func (s *EventSequence) TypeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.typeNames)
}

// TypeHidden returns the default hidden classification for a type.
func (s *EventSequence) TypeHidden(id types.TypeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || int(id) >= len(s.typeHidden) {
		return false
	}
	return s.typeHidden[id]
}

// Append records a new event of the given type, inheriting the type's
// default hidden classification, and returns its assigned ID.
func (s *EventSequence) Append(typeID types.TypeID, threadID uint64, ctx types.ContextID, args map[string]interface{}) types.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()

	hidden := false
	if typeID >= 0 && int(typeID) < len(s.typeHidden) {
		hidden = s.typeHidden[typeID]
	}
	return s.appendLocked(typeID, threadID, ctx, args, hidden)
}

// AppendWithVisibility records a new event with an explicit hidden flag,
// overriding the type's default classification.
func (s *EventSequence) AppendWithVisibility(typeID types.TypeID, threadID uint64, ctx types.ContextID, args map[string]interface{}, hidden bool) types.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(typeID, threadID, ctx, args, hidden)
}

func (s *EventSequence) appendLocked(typeID types.TypeID, threadID uint64, ctx types.ContextID, args map[string]interface{}, hidden bool) types.EventID {
	id := types.EventID(len(s.events))
	s.events = append(s.events, types.Event{
		ID:       id,
		Type:     typeID,
		Hidden:   hidden,
		ThreadID: threadID,
		Context:  ctx,
		Args:     args,
	})
	return id
}

// Len returns the number of recorded events.
func (s *EventSequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Get returns the event with the given ID.
func (s *EventSequence) Get(id types.EventID) (types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || int(id) >= len(s.events) {
		return types.Event{}, types.ErrEventOutOfRange
	}
	return s.events[id], nil
}

// Range returns a copy of the events in [start, end), clamped to the
// sequence bounds. An empty or inverted range yields no events.
func (s *EventSequence) Range(start, end types.EventID) []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if start < 0 {
		start = 0
	}
	if end > types.EventID(len(s.events)) {
		end = types.EventID(len(s.events))
	}
	if start >= end {
		return nil
	}

	out := make([]types.Event, end-start)
	copy(out, s.events[start:end])
	return out
}
