package vision

import (
	"fmt"
)

// SmootherConfig holds configuration for the temporal smoother.
type SmootherConfig struct {
	Alpha          float64 // EMA blend weight for the current sample (0,1]
	WindowCapacity int     // Bounded history of point sets per identity
}

// DefaultSmootherConfig returns default smoother configuration.
func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{
		Alpha:          0.6,
		WindowCapacity: 5,
	}
}

// Validate fails fast on misconfiguration.
func (c SmootherConfig) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("smoother config: Alpha %v out of (0,1]", c.Alpha)
	}
	if c.WindowCapacity <= 0 {
		return fmt.Errorf("smoother config: WindowCapacity must be positive, got %d", c.WindowCapacity)
	}
	return nil
}

// pointSample is one frame's keypoint observation for an identity.
type pointSample struct {
	points []Point
	confs  []float64
}

// TemporalSmoother EMA-filters keypoint and confidence sequences per
// identity and scores motion consistency across its bounded window.
//
// Single-stream component: no internal locking.
type TemporalSmoother struct {
	cfg     SmootherConfig
	history map[string][]pointSample
}

// NewTemporalSmoother creates a smoother with the given configuration.
func NewTemporalSmoother(cfg SmootherConfig) (*TemporalSmoother, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TemporalSmoother{
		cfg:     cfg,
		history: make(map[string][]pointSample),
	}, nil
}

// Smooth records the current point set for an identity and returns the
// recursive exponential blend over the window, oldest first:
//
//	blend = α·current + (1−α)·previousBlend
//
// With a single sample the blend equals that sample. A nil confidence
// slice defaults every point's confidence to 1.0.
func (s *TemporalSmoother) Smooth(key string, points []Point, confs []float64) ([]Point, []float64) {
	if confs == nil {
		confs = make([]float64, len(points))
		for i := range confs {
			confs[i] = 1.0
		}
	}

	sample := pointSample{points: clonePoints(points), confs: cloneFloats(confs)}
	window := append(s.history[key], sample)
	if len(window) > s.cfg.WindowCapacity {
		window = window[len(window)-s.cfg.WindowCapacity:]
	}
	s.history[key] = window

	// Fold the blend left to right over the window. Samples whose point
	// count differs from the current one are skipped: a detector that
	// momentarily reports a different keypoint layout must not corrupt the
	// blend.
	blendPts := make([]Point, len(points))
	blendConfs := make([]float64, len(confs))
	first := true
	for _, sm := range window {
		if len(sm.points) != len(points) {
			continue
		}
		if first {
			copy(blendPts, sm.points)
			copy(blendConfs, sm.confs)
			first = false
			continue
		}
		for i := range blendPts {
			blendPts[i].X = s.cfg.Alpha*sm.points[i].X + (1-s.cfg.Alpha)*blendPts[i].X
			blendPts[i].Y = s.cfg.Alpha*sm.points[i].Y + (1-s.cfg.Alpha)*blendPts[i].Y
			blendConfs[i] = s.cfg.Alpha*sm.confs[i] + (1-s.cfg.Alpha)*blendConfs[i]
		}
	}
	if first {
		// No usable history at all; echo the input.
		copy(blendPts, points)
		copy(blendConfs, confs)
	}

	return blendPts, blendConfs
}

// Consistency scores how steadily an identity's points have been moving:
// the inverse of the average inter-sample displacement across the window
// plus the displacement of the current sample from the windowed mean,
// clamped to [0,1]. With no history the identity is assumed consistent and
// the score is 1.0.
func (s *TemporalSmoother) Consistency(key string, current []Point) float64 {
	window := s.history[key]
	if len(window) == 0 || len(current) == 0 {
		return 1.0
	}

	// Average displacement between consecutive window samples.
	var interDisp float64
	var interCount int
	for i := 1; i < len(window); i++ {
		d, ok := meanDisplacement(window[i-1].points, window[i].points)
		if !ok {
			continue
		}
		interDisp += d
		interCount++
	}
	if interCount > 0 {
		interDisp /= float64(interCount)
	}

	// Displacement of the current sample from the windowed mean position.
	mean := meanPoints(window, len(current))
	var currentDisp float64
	if mean != nil {
		if d, ok := meanDisplacement(mean, current); ok {
			currentDisp = d
		}
	}

	return clamp01(1.0 / (1.0 + interDisp + currentDisp))
}

// Forget drops the history for one identity.
func (s *TemporalSmoother) Forget(key string) {
	delete(s.history, key)
}

// meanDisplacement returns the average point-to-point distance between two
// equally sized point sets.
func meanDisplacement(a, b []Point) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		sum += a[i].Dist(b[i])
	}
	return sum / float64(len(a)), true
}

// meanPoints averages the window samples that share the given point count.
func meanPoints(window []pointSample, n int) []Point {
	var count int
	mean := make([]Point, n)
	for _, sm := range window {
		if len(sm.points) != n {
			continue
		}
		for i, p := range sm.points {
			mean[i].X += p.X
			mean[i].Y += p.Y
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range mean {
		mean[i].X /= float64(count)
		mean[i].Y /= float64(count)
	}
	return mean
}

func clonePoints(pts []Point) []Point {
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

func cloneFloats(fs []float64) []float64 {
	out := make([]float64, len(fs))
	copy(out, fs)
	return out
}
