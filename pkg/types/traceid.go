package types

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// TraceID identifies a recorded capture. It is a 128-bit, time-ordered
// identifier: 48-bit capture timestamp (milliseconds) followed by 80 random
// bits, rendered as 26 characters of Crockford Base32. Lexicographic order
// of the string form matches recording order.
type TraceID [16]byte

// Crockford's Base32 alphabet (excludes I, L, O, U to avoid confusion)
const traceIDAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// TraceIDGenerator produces time-ordered trace IDs. IDs generated within
// the same millisecond are monotonically increasing.
type TraceIDGenerator struct {
	mu       sync.Mutex
	lastMs   uint64
	lastRand [10]byte
}

// NewTraceIDGenerator creates a new trace ID generator.
func NewTraceIDGenerator() *TraceIDGenerator {
	return &TraceIDGenerator{}
}

// Generate creates a new TraceID stamped with the current time.
func (g *TraceIDGenerator) Generate() (TraceID, error) {
	return g.GenerateWithTime(time.Now())
}

// GenerateWithTime creates a new TraceID with the given timestamp.
// Useful for tests and for re-indexing historical captures.
func (g *TraceIDGenerator) GenerateWithTime(t time.Time) (TraceID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := uint64(t.UnixMilli())

	var id TraceID
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)

	if ms == g.lastMs {
		// Same millisecond: bump the random tail so ordering holds
		for i := 9; i >= 0; i-- {
			g.lastRand[i]++
			if g.lastRand[i] != 0 {
				break
			}
		}
	} else {
		if _, err := rand.Read(g.lastRand[:]); err != nil {
			return TraceID{}, err
		}
		g.lastMs = ms
	}
	copy(id[6:], g.lastRand[:])

	return id, nil
}

// Bytes returns the TraceID as a byte slice.
func (t TraceID) Bytes() []byte {
	return t[:]
}

// Timestamp returns the capture timestamp in Unix milliseconds.
func (t TraceID) Timestamp() uint64 {
	return uint64(t[0])<<40 | uint64(t[1])<<32 | uint64(t[2])<<24 |
		uint64(t[3])<<16 | uint64(t[4])<<8 | uint64(t[5])
}

// Time returns the capture timestamp as a time.Time.
func (t TraceID) Time() time.Time {
	return time.UnixMilli(int64(t.Timestamp()))
}

// IsZero reports whether the TraceID is the zero value.
func (t TraceID) IsZero() bool {
	return t == TraceID{}
}

// String renders the TraceID as 26 characters of Crockford Base32.
func (t TraceID) String() string {
	hi := binary.BigEndian.Uint64(t[0:8])
	lo := binary.BigEndian.Uint64(t[8:16])

	// 26 characters cover 130 bits; the top two bits are zero padding.
	var buf [26]byte
	for i := 25; i >= 0; i-- {
		shift := uint(5 * (25 - i))
		var v uint64
		switch {
		case shift >= 64:
			v = hi >> (shift - 64)
		case shift > 59:
			v = (lo >> shift) | (hi << (64 - shift))
		default:
			v = lo >> shift
		}
		buf[i] = traceIDAlphabet[v&31]
	}
	return string(buf[:])
}

// Compare compares two TraceIDs byte-wise.
// Returns -1 if t < other, 0 if equal, 1 if t > other.
func (t TraceID) Compare(other TraceID) int {
	for i := 0; i < 16; i++ {
		if t[i] < other[i] {
			return -1
		}
		if t[i] > other[i] {
			return 1
		}
	}
	return 0
}

// ParseTraceID parses the 26-character Crockford Base32 form of a TraceID.
func ParseTraceID(s string) (TraceID, error) {
	if len(s) != 26 {
		return TraceID{}, ErrInvalidTraceIDLength
	}

	var hi, lo uint64
	for i := 0; i < 26; i++ {
		v := decodeTraceIDChar(s[i])
		if v == 0xFF {
			return TraceID{}, ErrInvalidTraceIDCharacter
		}
		if i == 0 && v > 7 {
			// First character carries only the top 3 of 128 bits
			return TraceID{}, ErrInvalidTraceIDCharacter
		}
		hi = hi<<5 | lo>>59
		lo = lo<<5 | uint64(v)
	}

	var id TraceID
	binary.BigEndian.PutUint64(id[0:8], hi)
	binary.BigEndian.PutUint64(id[8:16], lo)
	return id, nil
}

// TraceIDFromBytes creates a TraceID from a 16-byte slice.
func TraceIDFromBytes(b []byte) (TraceID, error) {
	if len(b) != 16 {
		return TraceID{}, ErrInvalidTraceIDLength
	}
	var id TraceID
	copy(id[:], b)
	return id, nil
}

// decodeTraceIDChar decodes one Crockford Base32 character.
// Returns 0xFF for invalid characters.
func decodeTraceIDChar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'H':
		return c - 'A' + 10
	case c >= 'J' && c <= 'K':
		return c - 'J' + 18
	case c >= 'M' && c <= 'N':
		return c - 'M' + 20
	case c >= 'P' && c <= 'T':
		return c - 'P' + 22
	case c >= 'V' && c <= 'Z':
		return c - 'V' + 27
	case c >= 'a' && c <= 'h':
		return c - 'a' + 10
	case c >= 'j' && c <= 'k':
		return c - 'j' + 18
	case c >= 'm' && c <= 'n':
		return c - 'm' + 20
	case c >= 'p' && c <= 't':
		return c - 'p' + 22
	case c >= 'v' && c <= 'z':
		return c - 'v' + 27
	default:
		return 0xFF
	}
}
