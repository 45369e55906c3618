package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(x1, y1, x2, y2 float64) PersonDetection {
	return PersonDetection{Box: Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: 0.9}
}

func TestTrackerConfigValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultTrackerConfig().Validate())

	t.Run("bad IoU threshold", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultTrackerConfig()
		cfg.IoUThreshold = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("revival threshold below distance threshold", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultTrackerConfig()
		cfg.RevivalDistThreshold = cfg.DistThreshold - 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown assignment mode", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultTrackerConfig()
		cfg.Assignment = "exactish"
		assert.Error(t, cfg.Validate())
	})

	t.Run("constructor rejects bad config", func(t *testing.T) {
		t.Parallel()
		cfg := DefaultTrackerConfig()
		cfg.DisappearanceThreshold = 0
		_, err := NewTracker(cfg)
		assert.Error(t, err)
	})
}

func TestTrackerMatchesOverlappingDetection(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(DefaultTrackerConfig())
	require.NoError(t, err)

	out := tracker.Update([]PersonDetection{det(10, 10, 50, 50)})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 1, out[0].Hits)

	// A slightly shifted box overlaps heavily and keeps the identity.
	out = tracker.Update([]PersonDetection{det(12, 11, 52, 51)})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 2, out[0].Hits)
	assert.Equal(t, 2, out[0].Age)
	assert.Equal(t, Box{X1: 12, Y1: 11, X2: 52, Y2: 51}, out[0].Box)
}

func TestTrackerSmoothMotionKeepsIdentity(t *testing.T) {
	t.Parallel()

	tracker, err := NewTracker(DefaultTrackerConfig())
	require.NoError(t, err)

	// Constant rightward drift; the velocity prediction keeps the match
	// comfortable every frame.
	for i := 0; i < 20; i++ {
		x := float64(10 + 5*i)
		out := tracker.Update([]PersonDetection{det(x, 10, x+40, 90)})
		require.Len(t, out, 1)
		assert.Equal(t, 1, out[0].ID)
	}

	tr := tracker.Track(1)
	require.NotNil(t, tr)
	assert.Equal(t, 20, tr.Hits)
	assert.Equal(t, TrackActive, tr.State)
}

func TestTrackerMissCounter(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.DisappearanceThreshold = 3
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	tracker.Update([]PersonDetection{det(10, 10, 50, 50)})

	t.Run("increments on empty frames", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			assert.Empty(t, tracker.Update(nil))
			tr := tracker.Track(1)
			require.NotNil(t, tr)
			assert.Equal(t, want, tr.FramesSinceUpdate)
			assert.Equal(t, TrackActive, tr.State, "still active at %d misses", want)
		}
	})

	t.Run("lost past the threshold", func(t *testing.T) {
		tracker.Update(nil)
		tr := tracker.Track(1)
		require.NotNil(t, tr)
		assert.Equal(t, TrackLost, tr.State)

		_, active, lost := tracker.TrackCount()
		assert.Equal(t, 0, active)
		assert.Equal(t, 1, lost)
	})

	t.Run("resets on rematch", func(t *testing.T) {
		out := tracker.Update([]PersonDetection{det(10, 10, 50, 50)})
		require.Len(t, out, 1)
		assert.Equal(t, 1, out[0].ID)

		tr := tracker.Track(1)
		require.NotNil(t, tr)
		assert.Equal(t, 0, tr.FramesSinceUpdate)
		assert.Equal(t, TrackActive, tr.State)
	})
}

func TestTrackerDeletionAndRecycling(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.DisappearanceThreshold = 1
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	out := tracker.Update([]PersonDetection{
		det(10, 10, 50, 50),
		det(300, 10, 340, 50),
	})
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 2, out[1].ID)

	// Deletion requires misses past twice the disappearance threshold.
	tracker.Update(nil)
	tracker.Update(nil)
	total, _, _ := tracker.TrackCount()
	assert.Equal(t, 2, total, "lost but not yet deleted")

	tracker.Update(nil)
	total, _, _ = tracker.TrackCount()
	assert.Equal(t, 0, total)

	removed := tracker.DrainRemoved()
	require.Len(t, removed, 2)
	for _, tr := range removed {
		assert.Equal(t, TrackDeleted, tr.State)
	}
	assert.Empty(t, tracker.DrainRemoved(), "drain clears the list")

	// The freed ids come back smallest first.
	out = tracker.Update([]PersonDetection{det(500, 10, 540, 50)})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)

	out = tracker.Update([]PersonDetection{
		det(500, 10, 540, 50),
		det(100, 200, 140, 240),
	})
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].ID)
	assert.Equal(t, 2, out[1].ID)
}

func TestTrackerNoRecycling(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.DisappearanceThreshold = 1
	cfg.RecycleIDs = false
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	tracker.Update([]PersonDetection{det(10, 10, 50, 50)})
	tracker.Update(nil)
	tracker.Update(nil)
	tracker.Update(nil)

	out := tracker.Update([]PersonDetection{det(500, 10, 540, 50)})
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].ID, "monotonic ids when recycling is off")
}

func TestTrackerRevival(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.DistThreshold = 50
	cfg.RevivalDistThreshold = 150

	t.Run("distant detection revives the track", func(t *testing.T) {
		t.Parallel()
		tracker, err := NewTracker(cfg)
		require.NoError(t, err)

		tracker.Update([]PersonDetection{det(0, 0, 10, 10)}) // centre (5, 5)

		// Centre (105, 5): zero IoU and 100px away, past the normal gate
		// but inside the revival gate.
		out := tracker.Update([]PersonDetection{det(100, 0, 110, 10)})
		require.Len(t, out, 1)
		assert.Equal(t, 1, out[0].ID)
		assert.Equal(t, 2, out[0].Hits)
	})

	t.Run("beyond the revival gate spawns a new track", func(t *testing.T) {
		t.Parallel()
		tracker, err := NewTracker(cfg)
		require.NoError(t, err)

		tracker.Update([]PersonDetection{det(0, 0, 10, 10)})

		// Centre (305, 5): 300px away, out of both gates.
		out := tracker.Update([]PersonDetection{det(300, 0, 310, 10)})
		require.Len(t, out, 1)
		assert.Equal(t, 2, out[0].ID)
	})

	t.Run("at most one revival per track per frame", func(t *testing.T) {
		t.Parallel()
		tracker, err := NewTracker(cfg)
		require.NoError(t, err)

		tracker.Update([]PersonDetection{det(0, 0, 10, 10)})

		// Both candidates are inside the revival gate; the first claims the
		// track and the second must spawn a fresh identity.
		out := tracker.Update([]PersonDetection{
			det(100, 0, 110, 10), // centre (105, 5), 100px
			det(120, 0, 130, 10), // centre (125, 5), 120px
		})
		require.Len(t, out, 2)
		assert.Equal(t, 1, out[0].ID)
		assert.Equal(t, Box{X1: 100, Y1: 0, X2: 110, Y2: 10}, out[0].Box)
		assert.Equal(t, 2, out[1].ID)
		assert.Equal(t, 1, out[1].Hits)
	})

	t.Run("exact distance tie revives the smallest id", func(t *testing.T) {
		t.Parallel()
		tieCfg := cfg
		tieCfg.DistThreshold = 5
		tieCfg.RevivalDistThreshold = 50

		// A detection equidistant from two revivable tracks must always
		// claim the same one, regardless of internal iteration order.
		for trial := 0; trial < 20; trial++ {
			tracker, err := NewTracker(tieCfg)
			require.NoError(t, err)

			// Tracks 1 and 2 centred at (5, 5) and (25, 5).
			tracker.Update([]PersonDetection{det(0, 0, 10, 10), det(20, 0, 30, 10)})

			// Centre (15, 5): 10px from both, past the 5px normal gate
			// with zero overlap, inside the revival gate for both.
			out := tracker.Update([]PersonDetection{det(10, 0, 20, 10)})
			require.Len(t, out, 1)
			assert.Equal(t, 1, out[0].ID)
			assert.Equal(t, Box{X1: 10, Y1: 0, X2: 20, Y2: 10}, out[0].Box)
		}
	})
}

func TestTrackerGreedyMode(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.Assignment = AssignGreedy
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	out := tracker.Update([]PersonDetection{det(10, 10, 50, 50)})
	require.Len(t, out, 1)

	out = tracker.Update([]PersonDetection{det(12, 11, 52, 51)})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].ID)
}

func TestTrackerActiveTracks(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.DisappearanceThreshold = 1
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	tracker.Update([]PersonDetection{
		det(10, 10, 50, 50),
		det(300, 10, 340, 50),
	})

	// Keep only the second person around; the first goes lost.
	tracker.Update([]PersonDetection{det(302, 10, 342, 50)})
	tracker.Update([]PersonDetection{det(304, 10, 344, 50)})

	active := tracker.ActiveTracks()
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].ID)
}

func TestTrackerHistoryBounded(t *testing.T) {
	t.Parallel()

	cfg := DefaultTrackerConfig()
	cfg.HistoryCapacity = 5
	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		x := float64(10 + 2*i)
		tracker.Update([]PersonDetection{det(x, 10, x+40, 90)})
	}

	tr := tracker.Track(1)
	require.NotNil(t, tr)
	hist := tr.History()
	require.Len(t, hist, 5)
	// Oldest to newest, ending at the last observation.
	assert.Equal(t, float64(10+2*11), hist[4].X1)
	assert.Equal(t, float64(10+2*7), hist[0].X1)
}
