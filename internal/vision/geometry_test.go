package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIoU(t *testing.T) {
	t.Parallel()

	t.Run("identical boxes", func(t *testing.T) {
		t.Parallel()
		b := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		assert.InDelta(t, 1.0, IoU(b, b), 1e-12)
	})

	t.Run("half overlap", func(t *testing.T) {
		t.Parallel()
		a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		b := Box{X1: 5, Y1: 0, X2: 15, Y2: 10}
		// intersection 50, union 150
		assert.InDelta(t, 1.0/3.0, IoU(a, b), 1e-12)
	})

	t.Run("disjoint boxes", func(t *testing.T) {
		t.Parallel()
		a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		b := Box{X1: 20, Y1: 20, X2: 30, Y2: 30}
		assert.Zero(t, IoU(a, b))
	})

	t.Run("touching edges do not overlap", func(t *testing.T) {
		t.Parallel()
		a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		b := Box{X1: 10, Y1: 0, X2: 20, Y2: 10}
		assert.Zero(t, IoU(a, b))
	})

	t.Run("degenerate box never overlaps", func(t *testing.T) {
		t.Parallel()
		a := Box{X1: 5, Y1: 5, X2: 5, Y2: 5}
		b := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		assert.Zero(t, IoU(a, b))
		assert.Zero(t, IoU(b, a))
	})

	t.Run("inverted box never overlaps", func(t *testing.T) {
		t.Parallel()
		a := Box{X1: 10, Y1: 10, X2: 0, Y2: 0}
		b := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		assert.Zero(t, IoU(a, b))
	})
}

func TestCenterDist(t *testing.T) {
	t.Parallel()

	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}   // centre (5, 5)
	b := Box{X1: 30, Y1: 40, X2: 40, Y2: 50} // centre (35, 45)
	assert.InDelta(t, 50.0, CenterDist(a, b), 1e-12)
	assert.Zero(t, CenterDist(a, a))
}

func TestPredictBox(t *testing.T) {
	t.Parallel()

	t.Run("constant velocity extrapolation", func(t *testing.T) {
		t.Parallel()
		prev := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
		last := Box{X1: 5, Y1: 2, X2: 15, Y2: 12}
		got := predictBox(prev, last, true)
		assert.Equal(t, Box{X1: 10, Y1: 4, X2: 20, Y2: 14}, got)
	})

	t.Run("single observation returns last box", func(t *testing.T) {
		t.Parallel()
		last := Box{X1: 5, Y1: 2, X2: 15, Y2: 12}
		got := predictBox(Box{}, last, false)
		assert.Equal(t, last, got)
	})
}

func TestClamp01(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 0.5, clamp01(0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
}
