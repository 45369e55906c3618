package vision

import (
	"fmt"
	"image"
	"sync"
	"time"
)

// Motion detection operates on a fixed downscaled grayscale grid so cost
// is independent of the source resolution.
const (
	motionGridW = 160
	motionGridH = 120
)

// GateConfig holds configuration for the frame-skip policy.
type GateConfig struct {
	SkipInterval      int           // Allow every Nth frame; first frame always allowed
	MotionEnabled     bool          // Require pixel motion against the previous frame
	MotionPixelDelta  float64       // Per-pixel grayscale delta counted as changed (0..255)
	MotionMinFraction float64       // Fraction of changed pixels required to pass
	MinInterval       time.Duration // Minimum wall-clock gap between allowed frames (0 = off)
}

// DefaultGateConfig returns default gate configuration.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SkipInterval:      3,
		MotionEnabled:     false,
		MotionPixelDelta:  12,
		MotionMinFraction: 0.01,
		MinInterval:       0,
	}
}

// Validate fails fast on misconfiguration.
func (c GateConfig) Validate() error {
	if c.SkipInterval <= 0 {
		return fmt.Errorf("gate config: SkipInterval must be positive, got %d", c.SkipInterval)
	}
	if c.MotionEnabled {
		if c.MotionPixelDelta <= 0 || c.MotionPixelDelta >= 255 {
			return fmt.Errorf("gate config: MotionPixelDelta %v out of (0,255)", c.MotionPixelDelta)
		}
		if c.MotionMinFraction <= 0 || c.MotionMinFraction >= 1 {
			return fmt.Errorf("gate config: MotionMinFraction %v out of (0,1)", c.MotionMinFraction)
		}
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("gate config: MinInterval must not be negative, got %v", c.MinInterval)
	}
	return nil
}

// sourceGateState is the per-source gating state.
type sourceGateState struct {
	counter     int64
	prevGray    []float64
	lastAllowed time.Time
}

// FrameGate decides per source whether a frame is worth running expensive
// detection on. It is the sole producer-side throttle in the pipeline.
// State is isolated per source id; the gate itself may be shared by
// several source loops, so the state map is mutex-guarded.
type FrameGate struct {
	cfg GateConfig

	mu     sync.Mutex
	states map[string]*sourceGateState

	now func() time.Time // Injectable clock for tests
}

// NewFrameGate creates a gate with the given configuration.
func NewFrameGate(cfg GateConfig) (*FrameGate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FrameGate{
		cfg:    cfg,
		states: make(map[string]*sourceGateState),
		now:    time.Now,
	}, nil
}

// Allow reports whether the frame should be processed. A zero timestamp
// means "now". The very first frame for a new source is always allowed.
func (g *FrameGate) Allow(img image.Image, sourceID string, ts time.Time) bool {
	if ts.IsZero() {
		ts = g.now()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[sourceID]
	if !ok {
		st = &sourceGateState{}
		g.states[sourceID] = st
	}

	st.counter++
	first := st.counter == 1

	allowed := first || st.counter%int64(g.cfg.SkipInterval) == 0

	if allowed && g.cfg.MotionEnabled {
		gray := grayDownsample(img, motionGridW, motionGridH)
		// No prior frame to diff against: pass, but record the baseline.
		if st.prevGray != nil && gray != nil {
			changed := 0
			for i := range gray {
				d := gray[i] - st.prevGray[i]
				if d < 0 {
					d = -d
				}
				if d > g.cfg.MotionPixelDelta {
					changed++
				}
			}
			fraction := float64(changed) / float64(len(gray))
			if fraction <= g.cfg.MotionMinFraction {
				allowed = false
			}
		}
		if gray != nil {
			st.prevGray = gray
		}
	}

	if allowed && g.cfg.MinInterval > 0 && !st.lastAllowed.IsZero() {
		if ts.Sub(st.lastAllowed) < g.cfg.MinInterval {
			allowed = false
		}
	}

	if allowed {
		st.lastAllowed = ts
	}
	return allowed
}

// Reset clears counters and motion history for one source, or for all
// sources when sourceID is empty.
func (g *FrameGate) Reset(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sourceID == "" {
		g.states = make(map[string]*sourceGateState)
		return
	}
	delete(g.states, sourceID)
}

// grayDownsample converts an image to a fixed-size single-channel grid
// using nearest-neighbour sampling and the usual luma weights.
func grayDownsample(img image.Image, w, h int) []float64 {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil
	}

	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := bounds.Min.X + x*bounds.Dx()/w
			sy := bounds.Min.Y + y*bounds.Dy()/h
			r, g, b, _ := img.At(sx, sy).RGBA()
			gray[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256.0
		}
	}
	return gray
}
