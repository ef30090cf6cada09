package filter

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// oneEuro is a One Euro filter over a 3D position, one channel per axis.
type oneEuro struct {
	x    r3.Vec
	dx   r3.Vec
	last time.Time
	dt   float64
}

func (e *oneEuro) reset(v r3.Vec, now time.Time) {
	e.x = v
	e.dx = r3.Vec{}
	e.last = now
	e.dt = 0
}

// filter advances the filter to now with sample v. weight in (0,1] scales how far
// the output moves toward the sample.
func (e *oneEuro) filter(cfg Config, v r3.Vec, now time.Time, weight float64) r3.Vec {
	dt := now.Sub(e.last).Seconds()
	e.dt = dt
	if dt <= 0 {
		return e.x
	}

	ad := alpha(dt, cfg.DerivativeCutoff)
	raw := r3.Scale(1/dt, r3.Sub(v, e.x))
	e.dx = r3.Add(e.dx, r3.Scale(ad, r3.Sub(raw, e.dx)))

	e.x = r3.Vec{
		X: smooth(cfg, e.x.X, v.X, e.dx.X, dt, weight),
		Y: smooth(cfg, e.x.Y, v.Y, e.dx.Y, dt, weight),
		Z: smooth(cfg, e.x.Z, v.Z, e.dx.Z, dt, weight),
	}
	e.last = now
	return e.x
}

func smooth(cfg Config, prev, next, speed, dt, weight float64) float64 {
	cutoff := cfg.MinCutoff + cfg.Beta*math.Abs(speed)
	a := alpha(dt, cutoff) * weight
	return prev + a*(next-prev)
}

func alpha(dt, cutoff float64) float64 {
	if cutoff <= 0 {
		return 1
	}
	tau := 1 / (2 * math.Pi * cutoff)
	return 1 / (1 + tau/dt)
}
