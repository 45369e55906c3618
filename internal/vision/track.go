package vision

// TrackLifecycle represents the lifecycle state of a track.
type TrackLifecycle string

const (
	TrackActive  TrackLifecycle = "active"  // Updated within the disappearance threshold
	TrackLost    TrackLifecycle = "lost"    // Missed beyond the disappearance threshold
	TrackDeleted TrackLifecycle = "deleted" // Marked for removal and id recycling
)

// Track is one persistent object identity maintained by the Tracker.
type Track struct {
	// Identity
	ID    int
	State TrackLifecycle

	// Last accepted observation
	Box        Box
	Confidence float64

	// Lifecycle counters
	Age               int // Update calls since creation
	Hits              int // Successful associations
	FramesSinceUpdate int // Consecutive calls without an association

	// Bounded history of accepted boxes, oldest evicted first
	history *boxRing
}

// newTrack creates a track from an unmatched detection.
func newTrack(id int, det PersonDetection, historyCap int) *Track {
	tr := &Track{
		ID:         id,
		State:      TrackActive,
		Box:        det.Box,
		Confidence: det.Confidence,
		Age:        1,
		Hits:       1,
		history:    newBoxRing(historyCap),
	}
	tr.history.Add(det.Box)
	return tr
}

// observe applies an accepted association.
func (t *Track) observe(det PersonDetection) {
	t.Box = det.Box
	t.Confidence = det.Confidence
	t.Hits++
	t.FramesSinceUpdate = 0
	t.State = TrackActive
	t.history.Add(det.Box)
}

// predicted returns the constant-velocity extrapolation of the track's box
// from its last two observations.
func (t *Track) predicted() Box {
	last, prev, n := t.history.LastTwo()
	return predictBox(prev, last, n >= 2)
}

// History returns the accepted boxes oldest to newest.
func (t *Track) History() []Box {
	return t.history.All()
}

// boxRing is a fixed-capacity ring buffer of boxes. Oldest entries are
// overwritten once the ring is full.
type boxRing struct {
	boxes    []Box
	capacity int
	head     int // Next write position
	size     int
}

func newBoxRing(capacity int) *boxRing {
	if capacity < 1 {
		capacity = 10
	}
	return &boxRing{
		boxes:    make([]Box, capacity),
		capacity: capacity,
	}
}

// Add stores a box, overwriting the oldest if at capacity.
func (r *boxRing) Add(b Box) {
	r.boxes[r.head] = b
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// LastTwo returns the most recent box, the one before it, and the number of
// boxes stored (0, 1 or 2 of the returned values are meaningful).
func (r *boxRing) LastTwo() (last, prev Box, n int) {
	n = r.size
	if n >= 1 {
		last = r.boxes[(r.head-1+r.capacity)%r.capacity]
	}
	if n >= 2 {
		prev = r.boxes[(r.head-2+r.capacity)%r.capacity]
	}
	return last, prev, n
}

// Size returns the number of boxes currently stored.
func (r *boxRing) Size() int { return r.size }

// All returns the stored boxes oldest to newest.
func (r *boxRing) All() []Box {
	if r.size == 0 {
		return nil
	}
	out := make([]Box, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.boxes[(r.head-r.size+i+r.capacity)%r.capacity]
	}
	return out
}
