// Package types provides core data types shared across gfxreplay components.
package types

// EventID is the position of an event in the global trace sequence.
// IDs are assigned by the event sequence in strictly increasing order from 0.
type EventID int64

// TypeID identifies a registered event type. Type IDs are stable small
// integers assigned by the sequence's type registry in registration order.
type TypeID int32

// TypeUnknown is the sentinel returned when a symbolic type name is not
// registered. Lookups against TypeUnknown never match any recorded event.
const TypeUnknown TypeID = -1

// ContextID is the handle of a rendering context recorded in the trace.
type ContextID uint64

// Event is one recorded occurrence in a trace.
// Events are immutable once appended to the sequence.
type Event struct {
	// ID is the event's position in the global sequence
	ID EventID `json:"id"`

	// Type is the registered type ID for this event
	Type TypeID `json:"type"`

	// Hidden marks the event as implementation-detail noise that timeline
	// views suppress unless the type is structurally significant
	Hidden bool `json:"hidden"`

	// ThreadID identifies the recording thread that emitted the event
	ThreadID uint64 `json:"thread_id"`

	// Context is the rendering context the event executed against,
	// 0 when the event is not bound to a context
	Context ContextID `json:"context,omitempty"`

	// Args holds the decoded call arguments, keyed by parameter name
	Args map[string]interface{} `json:"args,omitempty"`
}

// Well-known event type names. The sequence's type registry maps these to
// TypeIDs at load time; consumers resolve them by name so that captures
// recorded with older registries degrade instead of failing.
const (
	TypeNameContextCreated   = "context-created"
	TypeNameContextSetActive = "context-set-active"
	TypeNameContextDestroyed = "context-destroyed"
	TypeNameFrameEnd         = "frame-end"
)
