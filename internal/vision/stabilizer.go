package vision

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StateKind is the debounced compliance state of one identity.
type StateKind string

const (
	StateNormal     StateKind = "normal"     // Sustained evidence of compliance
	StateViolation  StateKind = "violation"  // Sustained evidence of a violation
	StateTransition StateKind = "transition" // Ambiguous or changing evidence
)

// TrackState is the per-identity hysteresis state.
type TrackState struct {
	Kind              StateKind // Current tracked label
	Window            []float64 // Rolling raw confidences, bounded by config
	FramesSinceChange int       // Samples since the last label switch
	StartFrameID      string    // Frame at which the current label began
	LastFrameID       string    // Frame that last touched this state
}

// StabilizerConfig holds configuration for the state stabiliser.
type StabilizerConfig struct {
	ConfidenceThreshold float64 // Raw confidence at or above which a sample tends "violation"
	TransitionThreshold float64 // Minimum jump from the previous sample to accept an event boundary
	StabilityFrames     int     // Samples required before a label is fully trusted
	WindowCapacity      int     // Bounded raw-confidence window per identity
}

// DefaultStabilizerConfig returns default stabiliser configuration.
func DefaultStabilizerConfig() StabilizerConfig {
	return StabilizerConfig{
		ConfidenceThreshold: 0.6,
		TransitionThreshold: 0.25,
		StabilityFrames:     5,
		WindowCapacity:      10,
	}
}

// Validate fails fast on misconfiguration.
func (c StabilizerConfig) Validate() error {
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("stabilizer config: ConfidenceThreshold %v out of (0,1]", c.ConfidenceThreshold)
	}
	if c.TransitionThreshold <= 0 {
		return fmt.Errorf("stabilizer config: TransitionThreshold must be positive, got %v", c.TransitionThreshold)
	}
	if c.StabilityFrames <= 0 {
		return fmt.Errorf("stabilizer config: StabilityFrames must be positive, got %d", c.StabilityFrames)
	}
	if c.WindowCapacity < c.StabilityFrames {
		return fmt.Errorf("stabilizer config: WindowCapacity %d below StabilityFrames %d",
			c.WindowCapacity, c.StabilityFrames)
	}
	return nil
}

// StateStabilizer converts a per-identity stream of raw confidences into a
// hysteresis-stabilised categorical state. A single corrupted or empty
// frame never flips an identity's stable state: a flip requires sustained
// evidence across the stability window.
//
// Single-stream component: no internal locking. If a FrameRegistry is
// attached, stabilised labels are written back onto the frame record.
type StateStabilizer struct {
	cfg      StabilizerConfig
	states   map[string]*TrackState
	registry *FrameRegistry // Optional write-back target
}

// NewStateStabilizer creates a stabiliser with the given configuration.
func NewStateStabilizer(cfg StabilizerConfig) (*StateStabilizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &StateStabilizer{
		cfg:    cfg,
		states: make(map[string]*TrackState),
	}, nil
}

// AttachRegistry wires a registry so stabilised labels are written back
// onto the contributing frame's record.
func (s *StateStabilizer) AttachRegistry(reg *FrameRegistry) {
	s.registry = reg
}

// tend classifies a single raw confidence sample.
func (s *StateStabilizer) tend(raw float64) StateKind {
	switch {
	case raw >= s.cfg.ConfidenceThreshold:
		return StateViolation
	case raw < s.cfg.ConfidenceThreshold/2:
		return StateNormal
	default:
		return StateTransition
	}
}

// Update feeds one raw confidence sample for an identity and returns the
// stabilised state and its confidence. The identity key is usually the
// track id, but callers may supply any key.
func (s *StateStabilizer) Update(key string, raw float64, frameID string) (StateKind, float64) {
	ts, ok := s.states[key]
	if !ok {
		ts = &TrackState{
			Kind:         s.tend(raw),
			StartFrameID: frameID,
		}
		s.states[key] = ts
	}

	tending := s.tend(raw)

	// Event boundary: the tending label disagrees with the tracked label and
	// either we barely have history or the sample jumped hard. Reset the
	// window and switch immediately.
	if tending != ts.Kind {
		jump := math.Abs(raw - lastSample(ts.Window))
		if len(ts.Window) < 2 || jump >= s.cfg.TransitionThreshold {
			ts.Kind = tending
			ts.Window = ts.Window[:0]
			ts.FramesSinceChange = 0
			ts.StartFrameID = frameID
		}
	}

	ts.Window = append(ts.Window, raw)
	if len(ts.Window) > s.cfg.WindowCapacity {
		ts.Window = ts.Window[len(ts.Window)-s.cfg.WindowCapacity:]
	}
	ts.FramesSinceChange++
	ts.LastFrameID = frameID

	var state StateKind
	var confidence float64
	if len(ts.Window) >= s.cfg.StabilityFrames {
		recent := ts.Window[len(ts.Window)-s.cfg.StabilityFrames:]
		mean := stat.Mean(recent, nil)
		state = s.tend(mean)
		confidence = mean
	} else {
		// Not yet trustworthy: report the tracked label at half confidence.
		state = ts.Kind
		confidence = raw / 2
	}

	if s.registry != nil {
		s.registry.UpdateState(frameID, state, confidence)
	}

	return state, confidence
}

// State returns the per-identity hysteresis state, or nil if unseen.
func (s *StateStabilizer) State(key string) *TrackState {
	return s.states[key]
}

// Forget drops the state for one identity (e.g. when its track is deleted).
func (s *StateStabilizer) Forget(key string) {
	delete(s.states, key)
}

func lastSample(window []float64) float64 {
	if len(window) == 0 {
		return 0
	}
	return window[len(window)-1]
}
