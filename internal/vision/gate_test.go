package vision

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformGray(level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}
	return img
}

func TestGateConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultGateConfig().Validate())

	cfg := DefaultGateConfig()
	cfg.SkipInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultGateConfig()
	cfg.MotionEnabled = true
	cfg.MotionMinFraction = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultGateConfig()
	cfg.MinInterval = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestGateSkipInterval(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{SkipInterval: 5})
	require.NoError(t, err)

	// Of ten consecutive frames only the 1st, 5th and 10th pass.
	var allowed []int
	for i := 1; i <= 10; i++ {
		if gate.Allow(nil, "cam0", time.Time{}) {
			allowed = append(allowed, i)
		}
	}
	assert.Equal(t, []int{1, 5, 10}, allowed)
}

func TestGateIntervalOneAllowsEverything(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{SkipInterval: 1})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.True(t, gate.Allow(nil, "cam0", time.Time{}))
	}
}

func TestGatePerSourceIsolation(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{SkipInterval: 3})
	require.NoError(t, err)

	assert.True(t, gate.Allow(nil, "cam0", time.Time{}))
	assert.False(t, gate.Allow(nil, "cam0", time.Time{}))

	// A fresh source starts its own counter.
	assert.True(t, gate.Allow(nil, "cam1", time.Time{}))
}

func TestGateReset(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{SkipInterval: 3})
	require.NoError(t, err)

	gate.Allow(nil, "cam0", time.Time{})
	assert.False(t, gate.Allow(nil, "cam0", time.Time{}))

	gate.Reset("cam0")
	assert.True(t, gate.Allow(nil, "cam0", time.Time{}), "first frame after reset")
}

func TestGateMinInterval(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{
		SkipInterval: 1,
		MinInterval:  100 * time.Millisecond,
	})
	require.NoError(t, err)

	t0 := time.UnixMicro(1_000_000)
	assert.True(t, gate.Allow(nil, "cam0", t0))
	assert.False(t, gate.Allow(nil, "cam0", t0.Add(50*time.Millisecond)))
	assert.True(t, gate.Allow(nil, "cam0", t0.Add(150*time.Millisecond)))
}

func TestGateMotion(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{
		SkipInterval:      1,
		MotionEnabled:     true,
		MotionPixelDelta:  12,
		MotionMinFraction: 0.01,
	})
	require.NoError(t, err)

	still := uniformGray(64)

	// First frame has no baseline and must pass.
	assert.True(t, gate.Allow(still, "cam0", time.Time{}))

	// A static scene is suppressed.
	assert.False(t, gate.Allow(still, "cam0", time.Time{}))
	assert.False(t, gate.Allow(uniformGray(66), "cam0", time.Time{}), "below the pixel delta")

	// A real change passes.
	assert.True(t, gate.Allow(uniformGray(200), "cam0", time.Time{}))

	// And the baseline advances to the new frame.
	assert.False(t, gate.Allow(uniformGray(200), "cam0", time.Time{}))
}

func TestGateMotionWithNilImagePasses(t *testing.T) {
	t.Parallel()

	gate, err := NewFrameGate(GateConfig{
		SkipInterval:      1,
		MotionEnabled:     true,
		MotionPixelDelta:  12,
		MotionMinFraction: 0.01,
	})
	require.NoError(t, err)

	// No pixels to compare: the counter policy alone decides.
	assert.True(t, gate.Allow(nil, "cam0", time.Time{}))
	assert.True(t, gate.Allow(nil, "cam0", time.Time{}))
}
