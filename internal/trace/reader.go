package trace

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"

	"github.com/golang/snappy"

	"github.com/gfxreplay/gfxreplay/internal/sequence"
	"github.com/gfxreplay/gfxreplay/pkg/types"
)

var (
	// ErrNotCaptureFile is returned when the file header is missing or unrecognized
	ErrNotCaptureFile = errors.New("trace: not a capture file")
)

// WriteSequence dumps a whole event sequence into a capture file at path.
func WriteSequence(path string, id types.TraceID, seq *sequence.EventSequence) error {
	w, err := NewWriter(path, id)
	if err != nil {
		return err
	}

	defs := make([]TypeDef, seq.TypeCount())
	for i := range defs {
		tid := types.TypeID(i)
		defs[i] = TypeDef{Name: seq.TypeName(tid), Hidden: seq.TypeHidden(tid)}
	}
	if err := w.WriteTypes(defs); err != nil {
		w.Close()
		return err
	}

	if err := w.AppendEvents(seq.Range(0, types.EventID(seq.Len()))); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadFile loads a capture file into a fresh event sequence.
//
// A truncated tail (crash during recording) ends the read at the last
// complete chunk; a chunk with a CRC mismatch is skipped. Both degrade to
// a shorter sequence rather than failing the load.
func ReadFile(path string) (*sequence.EventSequence, types.TraceID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.TraceID{}, fmt.Errorf("trace: failed to open capture: %w", err)
	}
	defer f.Close()

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, types.TraceID{}, ErrNotCaptureFile
	}
	if [8]byte(header[0:8]) != fileMagic {
		return nil, types.TraceID{}, ErrNotCaptureFile
	}
	id, err := types.TraceIDFromBytes(header[8:])
	if err != nil {
		return nil, types.TraceID{}, ErrNotCaptureFile
	}

	seq := sequence.New()
	offset := int64(headerSize)

	for {
		var frame [8]byte
		if _, err := io.ReadFull(f, frame[:]); err != nil {
			// EOF or a partial frame header: end of usable data
			break
		}
		length := binary.LittleEndian.Uint32(frame[0:4])
		wantCRC := binary.LittleEndian.Uint32(frame[4:8])

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			// Truncated write, stop reading
			break
		}
		offset += int64(8 + length)

		if crc32.ChecksumIEEE(payload) != wantCRC {
			log.Printf("trace: CRC mismatch at offset %d in %s, skipping chunk", offset-int64(length), path)
			continue
		}

		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			log.Printf("trace: snappy decode failed at offset %d in %s, skipping chunk", offset-int64(length), path)
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			log.Printf("trace: malformed chunk at offset %d in %s, skipping", offset-int64(length), path)
			continue
		}

		applyChunk(seq, &chunk)
	}

	return seq, id, nil
}

// applyChunk replays one chunk into the sequence: registry deltas first,
// then events. Event IDs are reassigned in append order, which matches the
// recorded order for an intact file.
func applyChunk(seq *sequence.EventSequence, chunk *Chunk) {
	for _, def := range chunk.Types {
		seq.RegisterType(def.Name, def.Hidden)
	}
	for _, ev := range chunk.Events {
		seq.AppendWithVisibility(ev.Type, ev.ThreadID, ev.Context, ev.Args, ev.Hidden)
	}
}
