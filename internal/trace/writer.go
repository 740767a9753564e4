// Package trace provides the on-disk capture format: an append-only file of
// framed, snappy-compressed chunks carrying type registry deltas and event
// batches. Readers tolerate a truncated tail so a capture interrupted by a
// crash still loads up to the last complete chunk.
package trace

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"github.com/golang/snappy"

	"github.com/gfxreplay/gfxreplay/pkg/types"
)

// File layout:
//
//	8 bytes:  magic "GFXCAP01"
//	16 bytes: trace ID
//	chunks:   [length:4 LE][crc32:4 LE][snappy(json chunk)]...
//
// The CRC covers the compressed payload.

var fileMagic = [8]byte{'G', 'F', 'X', 'C', 'A', 'P', '0', '1'}

const headerSize = 8 + 16

// maxChunkEvents bounds the number of events buffered into one chunk.
const maxChunkEvents = 4096

// TypeDef is one type registry entry. Registry deltas assign TypeIDs in
// file order, so a reader reconstructs the same IDs the recorder used.
type TypeDef struct {
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

// Chunk is one framed unit in a capture file.
type Chunk struct {
	Seq       uint64        `json:"seq"`
	Types     []TypeDef     `json:"types,omitempty"`
	Events    []types.Event `json:"events,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// Writer appends chunks to a capture file. It buffers events and flushes
// a chunk when the buffer fills or on Flush/Close.
type Writer struct {
	f       *os.File
	path    string
	id      types.TraceID
	seq     uint64
	pending []types.Event
}

// NewWriter creates a capture file at path, truncating any existing file,
// and writes the header.
func NewWriter(path string, id types.TraceID) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("trace: failed to create capture file: %w", err)
	}

	var header [headerSize]byte
	copy(header[0:8], fileMagic[:])
	copy(header[8:], id.Bytes())
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("trace: failed to write header: %w", err)
	}

	return &Writer{f: f, path: path, id: id}, nil
}

// TraceID returns the capture's trace ID.
func (w *Writer) TraceID() types.TraceID {
	return w.id
}

// WriteTypes appends a registry delta chunk. Any buffered events are
// flushed first so the delta takes effect before later events.
func (w *Writer) WriteTypes(defs []TypeDef) error {
	if len(defs) == 0 {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return w.writeChunk(&Chunk{Types: defs})
}

// AppendEvents buffers events for the next chunk, flushing full chunks
// as needed.
func (w *Writer) AppendEvents(events []types.Event) error {
	for len(events) > 0 {
		space := maxChunkEvents - len(w.pending)
		if space > len(events) {
			space = len(events)
		}
		w.pending = append(w.pending, events[:space]...)
		events = events[space:]

		if len(w.pending) >= maxChunkEvents {
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush writes any buffered events as a chunk and fsyncs the file.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	chunk := &Chunk{Events: w.pending}
	w.pending = nil
	return w.writeChunk(chunk)
}

func (w *Writer) writeChunk(chunk *Chunk) error {
	w.seq++
	chunk.Seq = w.seq
	chunk.Timestamp = time.Now().UnixNano()

	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("trace: failed to serialize chunk: %w", err)
	}
	compressed := snappy.Encode(nil, payload)

	var frame [8]byte
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(compressed))

	if _, err := w.f.Write(frame[:]); err != nil {
		return fmt.Errorf("trace: failed to write chunk frame: %w", err)
	}
	if _, err := w.f.Write(compressed); err != nil {
		return fmt.Errorf("trace: failed to write chunk payload: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("trace: failed to fsync: %w", err)
	}
	return nil
}

// Close flushes buffered events and closes the file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("trace: failed to fsync on close: %w", err)
	}
	return w.f.Close()
}
