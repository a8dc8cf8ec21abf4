package window

import "math"

// Dilation is the slack a window may grow by before its oldest sample is evicted.
const Dilation = 1.05

// Limit returns the dilated length a window of the given size must exceed to count as full.
func Limit(size uint, dilation float64) float64 {
	return float64(size) * dilation
}

// MaxLen is the longest a window can be at the end of a poll iteration.
func MaxLen(size uint, dilation float64) int {
	return int(math.Ceil(Limit(size, dilation)))
}

// Window is an ordered FIFO buffer of price samples. It is not safe for concurrent use.
type Window struct {
	samples []float64
}

// New returns an empty window with room for a dilated window of the given size.
func New(size uint) *Window {
	return &Window{samples: make([]float64, 0, MaxLen(size, Dilation)+1)}
}

// Append adds a sample to the tail. No bound is enforced here.
func (w *Window) Append(price float64) {
	w.samples = append(w.samples, price)
}

// ShiftOldest removes the head sample and reports whether one was removed.
func (w *Window) ShiftOldest() bool {
	if len(w.samples) == 0 {
		return false
	}
	// shift in place so the backing array is reused
	copy(w.samples, w.samples[1:])
	w.samples = w.samples[:len(w.samples)-1]
	return true
}

// Len returns the current sample count.
func (w *Window) Len() int {
	return len(w.samples)
}

// IsFull reports whether the window holds more than size*dilation samples.
func (w *Window) IsFull(size uint, dilation float64) bool {
	return float64(len(w.samples)) > Limit(size, dilation)
}

// Clear drops every sample.
func (w *Window) Clear() {
	w.samples = w.samples[:0]
}

// Samples returns a copy of the buffered samples, oldest first.
func (w *Window) Samples() []float64 {
	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}
