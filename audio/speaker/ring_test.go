package speaker

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(p []byte) []float32 {
	out := make([]float32, len(p)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

func TestRingReadsInOrder(t *testing.T) {
	r := newRing(8)
	r.write([]float32{1, 2, 3})

	p := make([]byte, 3*4)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, []float32{1, 2, 3}, decode(p))
}

func TestRingPadsWithSilence(t *testing.T) {
	r := newRing(8)
	r.write([]float32{0.5})

	p := make([]byte, 3*4)
	_, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0, 0}, decode(p))
}

func TestRingDropsOldest(t *testing.T) {
	r := newRing(4)
	r.write([]float32{1, 2, 3, 4, 5, 6})

	assert.Equal(t, int64(2), r.droppedCount())

	p := make([]byte, 4*4)
	_, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4, 5, 6}, decode(p))
}
