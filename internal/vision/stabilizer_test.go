package vision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStabilizerConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultStabilizerConfig().Validate())

	t.Run("window below stability frames", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultStabilizerConfig()
		cfg.WindowCapacity = cfg.StabilityFrames - 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad confidence threshold", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultStabilizerConfig()
		cfg.ConfidenceThreshold = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestStabilizerTend(t *testing.T) {
	t.Parallel()

	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)

	assert.Equal(t, StateViolation, s.tend(0.6))
	assert.Equal(t, StateViolation, s.tend(0.95))
	assert.Equal(t, StateNormal, s.tend(0.29))
	assert.Equal(t, StateNormal, s.tend(0.0))
	assert.Equal(t, StateTransition, s.tend(0.45))
}

func TestStabilizerHalfConfidenceBeforeWindowFull(t *testing.T) {
	t.Parallel()

	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)

	state, conf := s.Update("1", 0.9, "f1")
	assert.Equal(t, StateViolation, state)
	assert.InDelta(t, 0.45, conf, 1e-12)
}

func TestStabilizerSustainedEvidence(t *testing.T) {
	t.Parallel()

	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)

	t.Run("violation confirmed over the stability window", func(t *testing.T) {
		var state StateKind
		var conf float64
		for i := 0; i < 5; i++ {
			state, conf = s.Update("1", 0.9, "f")
		}
		assert.Equal(t, StateViolation, state)
		assert.InDelta(t, 0.9, conf, 1e-12)
	})

	t.Run("minor fluctuation does not flip the state", func(t *testing.T) {
		// 0.7 still tends violation; the windowed mean barely moves.
		state, conf := s.Update("1", 0.7, "f")
		assert.Equal(t, StateViolation, state)
		assert.InDelta(t, 0.86, conf, 1e-12)
	})
}

func TestStabilizerEventBoundary(t *testing.T) {
	t.Parallel()

	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Update("1", 0.1, "early")
	}

	// A hard jump against the tracked label resets the window and switches
	// immediately, at half confidence until re-confirmed.
	state, conf := s.Update("1", 0.9, "boundary")
	assert.Equal(t, StateViolation, state)
	assert.InDelta(t, 0.45, conf, 1e-12)

	ts := s.State("1")
	require.NotNil(t, ts)
	assert.Equal(t, StateViolation, ts.Kind)
	assert.Equal(t, "boundary", ts.StartFrameID)
	assert.Len(t, ts.Window, 1)

	for i := 0; i < 4; i++ {
		state, conf = s.Update("1", 0.9, "late")
	}
	assert.Equal(t, StateViolation, state)
	assert.InDelta(t, 0.9, conf, 1e-12)
}

func TestStabilizerHoldsThroughSmallDisagreement(t *testing.T) {
	t.Parallel()

	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)

	s.Update("1", 0.65, "f")
	s.Update("1", 0.65, "f")
	s.Update("1", 0.65, "f")

	// Tends transition but the jump (0.15) is below the transition
	// threshold, so the tracked violation label holds.
	state, _ := s.Update("1", 0.5, "f")
	assert.Equal(t, StateViolation, state)

	ts := s.State("1")
	require.NotNil(t, ts)
	assert.Equal(t, StateViolation, ts.Kind)
	assert.Len(t, ts.Window, 4)
}

func TestStabilizerWindowBounded(t *testing.T) {
	t.Parallel()

	cfg := DefaultStabilizerConfig()
	cfg.WindowCapacity = 6
	s, err := NewStateStabilizer(cfg)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		s.Update("1", 0.9, "f")
	}
	ts := s.State("1")
	require.NotNil(t, ts)
	assert.Len(t, ts.Window, 6)
	assert.Equal(t, 20, ts.FramesSinceChange)
}

func TestStabilizerPerIdentityIsolation(t *testing.T) {
	t.Parallel()

	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Update("a", 0.9, "f")
		s.Update("b", 0.1, "f")
	}

	stateA, _ := s.Update("a", 0.9, "f")
	stateB, _ := s.Update("b", 0.1, "f")
	assert.Equal(t, StateViolation, stateA)
	assert.Equal(t, StateNormal, stateB)

	s.Forget("a")
	assert.Nil(t, s.State("a"))
	assert.NotNil(t, s.State("b"))
}

func TestStabilizerRegistryWriteBack(t *testing.T) {
	t.Parallel()

	reg, err := NewFrameRegistry(DefaultRegistryConfig())
	require.NoError(t, err)
	s, err := NewStateStabilizer(DefaultStabilizerConfig())
	require.NoError(t, err)
	s.AttachRegistry(reg)

	rec := reg.Create(nil, "cam0", SourceLive, time.UnixMicro(1_000_000))

	state, conf := s.Update("1", 0.9, rec.ID)

	got, ok := reg.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, state, got.StableState)
	assert.Equal(t, conf, got.StableConfidence)
}
