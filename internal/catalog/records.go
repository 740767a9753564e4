package catalog

import (
	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/internal/step"
	"github.com/gfxreplay/gfxreplay/internal/typeset"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// BuildStepRecords converts segmented steps into catalog records, attaching
// a serialized type membership filter per step.
func BuildStepRecords(traceID string, seq *sequence.EventSequence, steps []*step.Step) []*StepRecord {
	records := make([]*StepRecord, 0, len(steps))
	for i, st := range steps {
		record := &StepRecord{
			TraceID:       traceID,
			StepNumber:    i,
			StartEventID:  int64(st.StartEventID()),
			EndEventID:    int64(st.EndEventID()),
			TotalEvents:   int64(st.Len()),
			VisibleEvents: int64(st.VisibleLen()),
			TypeFilter:    typeset.ForRange(seq, st.StartEventID(), st.EndEventID()).Serialize(),
		}
		if frame := st.Frame(); frame != nil {
			frameID := frame.FrameID
			frameNumber := frame.Number
			record.FrameID = &frameID
			record.FrameNumber = &frameNumber
		}
		records = append(records, record)
	}
	return records
}

// FrameCount returns the number of records carrying a frame.
func FrameCount(records []*StepRecord) int64 {
	var n int64
	for _, record := range records {
		if record.FrameID != nil {
			n++
		}
	}
	return n
}

// StepFromRecord rebuilds the live step view for a record against a loaded
// sequence. The frame and context snapshot are not stored in the catalog;
// callers that need them re-segment the capture instead.
func StepFromRecord(seq *sequence.EventSequence, record *StepRecord) *step.Step {
	var frame *types.Frame
	if record.FrameID != nil {
		frame = &types.Frame{
			FrameID:      *record.FrameID,
			StartEventID: types.EventID(record.StartEventID),
			EndEventID:   types.EventID(record.EndEventID),
		}
		if record.FrameNumber != nil {
			frame.Number = *record.FrameNumber
		}
	}
	return step.New(seq, types.EventID(record.StartEventID), types.EventID(record.EndEventID), frame, nil)
}
