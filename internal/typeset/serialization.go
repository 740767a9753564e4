package typeset

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Serialization format, stored per step in the catalog:
//
//	4 bytes: magic "GFTS"
//	1 byte:  format version
//	8 bytes: numBits (uint64 LE)
//	8 bytes: numHashes (uint64 LE)
//	8 bytes: count (uint64 LE)
//	rest:    snappy(bit array, little-endian words)

const serializedVersion = 1

var serializedMagic = [4]byte{'G', 'F', 'T', 'S'}

var (
	// ErrCorruptTypeSet is returned when serialized data fails validation
	ErrCorruptTypeSet = errors.New("typeset: corrupt serialized data")
)

// Serialize encodes the TypeSet for catalog storage. The bit array is
// snappy-compressed; sparse filters compress well.
func (ts *TypeSet) Serialize() []byte {
	bitData := make([]byte, len(ts.bits)*8)
	for i, word := range ts.bits {
		binary.LittleEndian.PutUint64(bitData[i*8:(i+1)*8], word)
	}
	compressed := snappy.Encode(nil, bitData)

	buf := make([]byte, 29+len(compressed))
	copy(buf[0:4], serializedMagic[:])
	buf[4] = serializedVersion
	binary.LittleEndian.PutUint64(buf[5:13], ts.numBits)
	binary.LittleEndian.PutUint64(buf[13:21], ts.numHashes)
	binary.LittleEndian.PutUint64(buf[21:29], ts.count)
	copy(buf[29:], compressed)
	return buf
}

// Deserialize reconstructs a TypeSet from its serialized form.
func Deserialize(data []byte) (*TypeSet, error) {
	if len(data) < 29 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptTypeSet, len(data))
	}
	if [4]byte(data[0:4]) != serializedMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptTypeSet)
	}
	if data[4] != serializedVersion {
		return nil, fmt.Errorf("typeset: unsupported version %d", data[4])
	}

	numBits := binary.LittleEndian.Uint64(data[5:13])
	numHashes := binary.LittleEndian.Uint64(data[13:21])
	count := binary.LittleEndian.Uint64(data[21:29])

	if numBits == 0 || numBits%64 != 0 || numHashes == 0 {
		return nil, fmt.Errorf("%w: invalid parameters", ErrCorruptTypeSet)
	}

	bitData, err := snappy.Decode(nil, data[29:])
	if err != nil {
		return nil, fmt.Errorf("typeset: snappy decode failed: %w", err)
	}

	numWords := numBits / 64
	if uint64(len(bitData)) != numWords*8 {
		return nil, fmt.Errorf("%w: expected %d bit-array bytes, got %d",
			ErrCorruptTypeSet, numWords*8, len(bitData))
	}

	bits := make([]uint64, numWords)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(bitData[i*8 : (i+1)*8])
	}

	return &TypeSet{
		bits:      bits,
		numBits:   numBits,
		numHashes: numHashes,
		count:     count,
	}, nil
}
