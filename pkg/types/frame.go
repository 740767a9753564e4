package types

// Frame denotes one rendered output produced by a step of the trace.
// Frames are shared between the segmentation process and replay consumers;
// a step references a frame without owning it.
type Frame struct {
	// FrameID is a unique identifier for the frame within a session
	FrameID string `json:"frame_id"`

	// Number is the zero-based index of the frame within the capture
	Number int `json:"number"`

	// StartEventID and EndEventID bound the event range that produced
	// this frame, inclusive-exclusive
	StartEventID EventID `json:"start_event_id"`
	EndEventID   EventID `json:"end_event_id"`

	// Context is the rendering context the frame was presented from
	Context ContextID `json:"context,omitempty"`
}
