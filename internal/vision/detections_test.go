package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxHelpers(t *testing.T) {
	t.Parallel()

	b := Box{X1: 10, Y1: 20, X2: 40, Y2: 100}
	assert.Equal(t, 30.0, b.Width())
	assert.Equal(t, 80.0, b.Height())
	assert.Equal(t, 2400.0, b.Area())
	assert.Equal(t, Point{X: 25, Y: 60}, b.Center())
	assert.True(t, b.Valid())

	assert.False(t, Box{}.Valid())
	assert.Zero(t, Box{X1: 5, Y1: 5, X2: 1, Y2: 1}.Area(), "inverted box has no area")
}

func TestPointDist(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5.0, Point{X: 0, Y: 0}.Dist(Point{X: 3, Y: 4}))
	assert.Zero(t, Point{X: 1, Y: 1}.Dist(Point{X: 1, Y: 1}))
}

func TestDetectionValidation(t *testing.T) {
	t.Parallel()

	t.Run("person confidence range", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, PersonDetection{Confidence: 0.5}.Validate())
		assert.Error(t, PersonDetection{Confidence: -0.1}.Validate())
		assert.Error(t, PersonDetection{Confidence: 1.1}.Validate())
	})

	t.Run("degenerate person box is not an error", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, PersonDetection{Box: Box{}, Confidence: 0.9}.Validate())
	})

	t.Run("attribute needs a label", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, AttributeDetection{Label: "hairnet", Confidence: 0.5}.Validate())
		assert.Error(t, AttributeDetection{Confidence: 0.5}.Validate())
		assert.Error(t, AttributeDetection{Label: "hairnet", Confidence: 2}.Validate())
	})

	t.Run("pose confidences parallel to keypoints", func(t *testing.T) {
		t.Parallel()
		ok := PoseDetection{
			Keypoints:   []Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
			Confidences: []float64{0.5, 0.9},
		}
		assert.NoError(t, ok.Validate())

		mismatched := PoseDetection{
			Keypoints:   []Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
			Confidences: []float64{0.5},
		}
		assert.Error(t, mismatched.Validate())

		// A missing confidence slice means full trust.
		assert.NoError(t, PoseDetection{Keypoints: []Point{{X: 1, Y: 1}}}.Validate())

		bad := PoseDetection{
			Keypoints:   []Point{{X: 1, Y: 1}},
			Confidences: []float64{1.5},
		}
		assert.Error(t, bad.Validate())
	})

	t.Run("behavior needs a label", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, BehaviorDetection{Label: "handwash", Confidence: 0.7}.Validate())
		assert.Error(t, BehaviorDetection{Confidence: 0.7}.Validate())
	})

	t.Run("set reports the offending entry", func(t *testing.T) {
		t.Parallel()
		set := DetectionSet{
			Persons:   []PersonDetection{{Confidence: 0.5}},
			Behaviors: []BehaviorDetection{{Label: "handwash", Confidence: 3}},
		}
		err := set.Validate()
		assert.ErrorContains(t, err, "behaviors[0]")

		assert.NoError(t, DetectionSet{}.Validate())
	})
}

func TestHeadROI(t *testing.T) {
	t.Parallel()

	t.Run("top fraction with side expansion", func(t *testing.T) {
		t.Parallel()
		person := Box{X1: 100, Y1: 100, X2: 200, Y2: 300}
		roi := HeadROI(person, 640, 480)
		assert.InDelta(t, 90.0, roi.X1, 1e-9)
		assert.InDelta(t, 210.0, roi.X2, 1e-9)
		assert.InDelta(t, 100.0, roi.Y1, 1e-9)
		assert.InDelta(t, 170.0, roi.Y2, 1e-9)
	})

	t.Run("clamped to the frame", func(t *testing.T) {
		t.Parallel()
		person := Box{X1: 0, Y1: 0, X2: 640, Y2: 480}
		roi := HeadROI(person, 640, 480)
		assert.Zero(t, roi.X1)
		assert.Equal(t, 640.0, roi.X2)
		assert.Zero(t, roi.Y1)
	})

	t.Run("zero frame dimensions skip the upper clamp", func(t *testing.T) {
		t.Parallel()
		person := Box{X1: 100, Y1: 100, X2: 200, Y2: 300}
		roi := HeadROI(person, 0, 0)
		assert.InDelta(t, 210.0, roi.X2, 1e-9)
	})
}
