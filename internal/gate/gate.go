package gate

import "price-move-alerts/internal/window"

// Gate counts poll iterations since the last fired alert and enforces a cooldown.
type Gate struct {
	framesSinceLastHit uint64
}

// New returns a gate with a zeroed counter.
func New() *Gate {
	return &Gate{}
}

// CanFire reports whether more than size*dilation frames have passed since the last hit.
func (g *Gate) CanFire(size uint, dilation float64) bool {
	return float64(g.framesSinceLastHit) > window.Limit(size, dilation)
}

// Tick advances the counter by one frame.
func (g *Gate) Tick() {
	g.framesSinceLastHit++
}

// Reset zeroes the counter after an alert fires.
func (g *Gate) Reset() {
	g.framesSinceLastHit = 0
}

// Frames returns the number of frames since the last hit.
func (g *Gate) Frames() uint64 {
	return g.framesSinceLastHit
}
