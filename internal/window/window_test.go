package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAppendShiftFIFO(t *testing.T) {
	w := New(3)
	w.Append(1)
	w.Append(2)
	w.Append(3)

	require.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{1, 2, 3}, w.Samples())

	assert.True(t, w.ShiftOldest())
	assert.Equal(t, []float64{2, 3}, w.Samples())

	w.Append(4)
	assert.Equal(t, []float64{2, 3, 4}, w.Samples())
}

func TestWindowShiftEmptyIsNoop(t *testing.T) {
	w := New(5)
	for i := 0; i < 3; i++ {
		assert.False(t, w.ShiftOldest())
		assert.Equal(t, 0, w.Len())
	}
	assert.Empty(t, w.Samples())
}

func TestWindowIsFullBoundary(t *testing.T) {
	testCases := []struct {
		name     string
		size     uint
		dilation float64
		length   int
		full     bool
	}{
		{name: "below", size: 10, dilation: Dilation, length: 10, full: false},
		{name: "just above dilated", size: 10, dilation: Dilation, length: 11, full: true},
		{name: "exact product not full", size: 20, dilation: Dilation, length: 21, full: false},
		{name: "above exact product", size: 20, dilation: Dilation, length: 22, full: true},
		{name: "no dilation equal", size: 4, dilation: 1, length: 4, full: false},
		{name: "no dilation above", size: 4, dilation: 1, length: 5, full: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := New(tc.size)
			for i := 0; i < tc.length; i++ {
				w.Append(100)
			}
			assert.Equal(t, tc.full, w.IsFull(tc.size, tc.dilation))
		})
	}
}

func TestWindowClearAndSamplesCopy(t *testing.T) {
	w := New(2)
	w.Append(1)
	w.Append(2)

	snapshot := w.Samples()
	snapshot[0] = 42
	assert.Equal(t, 1.0, w.Samples()[0], "Samples must not alias internal state")

	w.Clear()
	assert.Equal(t, 0, w.Len())
	w.Append(7)
	assert.Equal(t, []float64{7}, w.Samples())
}

func TestMaxLen(t *testing.T) {
	assert.Equal(t, 11, MaxLen(10, Dilation))
	assert.Equal(t, 21, MaxLen(20, Dilation))
	assert.Equal(t, 0, MaxLen(0, Dilation))
}
