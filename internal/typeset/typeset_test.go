package typeset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfxreplay/gfxreplay/internal/sequence"
)

func TestTypeSet_NoFalseNegatives(t *testing.T) {
	ts := NewWithEstimates(100, 0.01)

	names := make([]string, 100)
	for i := range names {
		names[i] = fmt.Sprintf("gl-call-%d", i)
		ts.Add(names[i])
	}

	for _, name := range names {
		assert.True(t, ts.MayContain(name), "added name %q must be reported present", name)
	}
}

func TestTypeSet_AbsentNamesMostlyRejected(t *testing.T) {
	ts := NewWithEstimates(100, 0.01)
	for i := 0; i < 100; i++ {
		ts.Add(fmt.Sprintf("gl-call-%d", i))
	}

	falsePositives := 0
	const probes = 1000
	for i := 0; i < probes; i++ {
		if ts.MayContain(fmt.Sprintf("absent-%d", i)) {
			falsePositives++
		}
	}

	// Target FPR is 1%; allow generous slack to keep the test stable
	assert.Less(t, falsePositives, probes/10)
}

func TestOptimalParameters(t *testing.T) {
	numBits, numHashes := OptimalParameters(1000, 0.01)
	assert.GreaterOrEqual(t, numBits, 9000)
	assert.GreaterOrEqual(t, numHashes, 6)

	// Degenerate inputs fall back to defaults
	numBits, numHashes = OptimalParameters(0, -1)
	assert.GreaterOrEqual(t, numBits, 64)
	assert.GreaterOrEqual(t, numHashes, 1)
}

func TestTypeSet_SerializeRoundTrip(t *testing.T) {
	ts := NewWithEstimates(50, 0.01)
	for i := 0; i < 50; i++ {
		ts.Add(fmt.Sprintf("gl-call-%d", i))
	}

	data := ts.Serialize()
	restored, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, ts.NumBits(), restored.NumBits())
	assert.Equal(t, ts.NumHashes(), restored.NumHashes())
	assert.Equal(t, ts.Count(), restored.Count())

	for i := 0; i < 50; i++ {
		assert.True(t, restored.MayContain(fmt.Sprintf("gl-call-%d", i)))
	}
}

func TestDeserialize_Corrupt(t *testing.T) {
	_, err := Deserialize(nil)
	assert.ErrorIs(t, err, ErrCorruptTypeSet)

	_, err = Deserialize(make([]byte, 10))
	assert.ErrorIs(t, err, ErrCorruptTypeSet)

	ts := New(64, 3)
	ts.Add("draw-arrays")
	data := ts.Serialize()

	bad := append([]byte(nil), data...)
	bad[0] = 'X'
	_, err = Deserialize(bad)
	assert.ErrorIs(t, err, ErrCorruptTypeSet)

	// Truncated payload
	_, err = Deserialize(data[:len(data)-1])
	assert.Error(t, err)
}

func TestForRange(t *testing.T) {
	seq := sequence.New()
	draw := seq.RegisterType("draw-arrays", false)
	bind := seq.RegisterType("bind-buffer", true)
	clearType := seq.RegisterType("clear", false)

	seq.Append(draw, 1, 0, nil)      // 0
	seq.Append(bind, 1, 0, nil)      // 1
	seq.Append(draw, 1, 0, nil)      // 2
	seq.Append(clearType, 1, 0, nil) // 3

	ts := ForRange(seq, 0, 3)

	assert.True(t, ts.MayContain("draw-arrays"))
	assert.True(t, ts.MayContain("bind-buffer"))
	assert.Equal(t, uint64(2), ts.Count(), "distinct names only")
}
