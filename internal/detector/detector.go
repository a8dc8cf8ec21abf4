package detector

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientSamples is returned when fewer than two samples are supplied.
	ErrInsufficientSamples = errors.New("detector: at least two samples required")
	// ErrZeroBase is returned when the oldest sample is zero and no change ratio exists.
	ErrZeroBase = errors.New("detector: oldest sample is zero")
)

// Direction labels the sign of a price move.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Result is the outcome of evaluating one window.
type Result struct {
	Hit bool
	// PctChange is (newest-oldest)/oldest as a fraction; multiply by 100 for display.
	PctChange float64
	// AbsoluteChange is 1-PctChange, the value compared against the 1±delta band.
	AbsoluteChange float64
	Oldest         float64
	Newest         float64
}

// Direction classifies the move by the sign of PctChange.
func (r Result) Direction() Direction {
	switch {
	case r.PctChange > 0:
		return DirectionUp
	case r.PctChange < 0:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// Band returns the floor and ceiling of the no-alert band for delta.
func Band(delta float64) (floor, ceiling float64) {
	return 1 - delta, 1 + delta
}

// Evaluate compares the oldest and newest samples against the delta band.
//
// The hit decision uses AbsoluteChange = 1 - PctChange against [1-delta, 1+delta].
// A rising price therefore breaches the floor and a falling one the ceiling;
// both are hits, so the band stays symmetric in effect.
func Evaluate(samples []float64, delta float64) (Result, error) {
	if len(samples) < 2 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInsufficientSamples, len(samples))
	}

	first := samples[0]
	last := samples[len(samples)-1]
	if first == 0 {
		return Result{}, ErrZeroBase
	}

	pct := (last - first) / first
	absolute := 1 - pct
	floor, ceiling := Band(delta)

	return Result{
		Hit:            absolute > ceiling || absolute < floor,
		PctChange:      pct,
		AbsoluteChange: absolute,
		Oldest:         first,
		Newest:         last,
	}, nil
}
