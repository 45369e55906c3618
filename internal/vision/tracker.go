package vision

import (
	"fmt"
	"sort"
)

// AssignmentMode selects the association solver.
type AssignmentMode string

const (
	AssignHungarian AssignmentMode = "hungarian" // Exact minimum-cost matching
	AssignGreedy    AssignmentMode = "greedy"    // Two-phase IoU-then-distance fallback
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	IoUThreshold           float64        // Minimum IoU for an acceptable pair
	DistThreshold          float64        // Maximum centre distance for an acceptable pair (pixels)
	RevivalDistThreshold   float64        // Centre distance allowed when reviving an unmatched track
	IoUWeight              float64        // Weight of the IoU term in the fused cost [0,1]
	DisappearanceThreshold int            // Consecutive misses before a track is marked lost
	HistoryCapacity        int            // Bounded box history per track
	RecycleIDs             bool           // Return deleted ids to a free pool for reuse
	Assignment             AssignmentMode // Solver selection
}

// DefaultTrackerConfig returns default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		IoUThreshold:           0.3,
		DistThreshold:          80.0,
		RevivalDistThreshold:   120.0,
		IoUWeight:              0.7,
		DisappearanceThreshold: 30,
		HistoryCapacity:        30,
		RecycleIDs:             true,
		Assignment:             AssignHungarian,
	}
}

// Validate fails fast on misconfiguration; runtime data noise never does.
func (c TrackerConfig) Validate() error {
	if c.IoUThreshold <= 0 || c.IoUThreshold >= 1 {
		return fmt.Errorf("tracker config: IoUThreshold %v out of (0,1)", c.IoUThreshold)
	}
	if c.DistThreshold <= 0 {
		return fmt.Errorf("tracker config: DistThreshold must be positive, got %v", c.DistThreshold)
	}
	if c.RevivalDistThreshold < c.DistThreshold {
		return fmt.Errorf("tracker config: RevivalDistThreshold %v below DistThreshold %v",
			c.RevivalDistThreshold, c.DistThreshold)
	}
	if c.IoUWeight < 0 || c.IoUWeight > 1 {
		return fmt.Errorf("tracker config: IoUWeight %v out of [0,1]", c.IoUWeight)
	}
	if c.DisappearanceThreshold <= 0 {
		return fmt.Errorf("tracker config: DisappearanceThreshold must be positive, got %d",
			c.DisappearanceThreshold)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("tracker config: HistoryCapacity must be positive, got %d", c.HistoryCapacity)
	}
	switch c.Assignment {
	case AssignHungarian, AssignGreedy:
	default:
		return fmt.Errorf("tracker config: unknown assignment mode %q", c.Assignment)
	}
	return nil
}

// TrackOutput is the per-frame result for one matched, revived or newly
// created track. Stale tracks never appear in an update's output.
type TrackOutput struct {
	ID         int     `json:"id"`
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	Age        int     `json:"age"`
	Hits       int     `json:"hits"`
}

// Tracker assigns persistent identities to per-frame person detections.
//
// It is a single-stream component: one instance per video source, invoked
// synchronously from that source's processing loop. It holds no internal
// locks and must not be shared across goroutines without external
// serialisation.
type Tracker struct {
	cfg      TrackerConfig
	assigner Assigner

	tracks  map[int]*Track
	nextID  int
	freeIDs []int // Recycled id pool, kept sorted ascending

	// Tracks deleted since the last DrainRemoved call, for archival.
	removed []*Track
}

// NewTracker creates a tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	costs := assignmentCosts{
		IoUWeight:     cfg.IoUWeight,
		IoUThreshold:  cfg.IoUThreshold,
		DistThreshold: cfg.DistThreshold,
	}
	var assigner Assigner
	switch cfg.Assignment {
	case AssignGreedy:
		assigner = &GreedyAssigner{assignmentCosts: costs}
	default:
		assigner = &HungarianAssigner{assignmentCosts: costs}
	}

	return &Tracker{
		cfg:      cfg,
		assigner: assigner,
		tracks:   make(map[int]*Track),
		nextID:   1,
	}, nil
}

// Update processes one frame of person detections and returns the tracks
// matched, revived or created in this call.
func (t *Tracker) Update(detections []PersonDetection) []TrackOutput {
	// Every existing track has seen one more frame.
	for _, tr := range t.tracks {
		tr.Age++
	}

	if len(detections) == 0 {
		for _, tr := range t.tracks {
			t.miss(tr)
		}
		t.cleanup()
		return nil
	}

	// Deterministic candidate ordering: all non-deleted tracks by id.
	candidates := t.sortedIDs()

	iou := make([][]float64, len(candidates))
	dist := make([][]float64, len(candidates))
	for i, id := range candidates {
		pred := t.tracks[id].predicted()
		iou[i] = make([]float64, len(detections))
		dist[i] = make([]float64, len(detections))
		for j, det := range detections {
			iou[i][j] = IoU(pred, det.Box)
			dist[i][j] = CenterDist(pred, det.Box)
		}
	}

	assignments := t.assigner.Assign(iou, dist)

	matchedThisFrame := make(map[int]bool, len(candidates))
	detMatched := make([]bool, len(detections))
	var outputs []TrackOutput

	for i, j := range assignments {
		if j < 0 {
			continue
		}
		tr := t.tracks[candidates[i]]
		tr.observe(detections[j])
		matchedThisFrame[tr.ID] = true
		detMatched[j] = true
		outputs = append(outputs, t.output(tr))
	}

	// Revival pass: leftover detections are offered to tracks that were not
	// matched this frame, under the larger revival distance. Each track can
	// be revived at most once per frame: a claimed candidate is removed
	// before the next detection is considered.
	revivable := make(map[int]bool, len(candidates))
	for _, id := range candidates {
		if !matchedThisFrame[id] {
			revivable[id] = true
		}
	}
	for j, det := range detections {
		if detMatched[j] {
			continue
		}
		// Candidates are scanned in ascending id order so an exact
		// distance tie resolves to the smallest id.
		bestID := -1
		bestDist := 0.0
		for _, id := range candidates {
			if !revivable[id] {
				continue
			}
			d := CenterDist(t.tracks[id].predicted(), det.Box)
			if d <= t.cfg.RevivalDistThreshold && (bestID < 0 || d < bestDist) {
				bestDist = d
				bestID = id
			}
		}
		if bestID < 0 {
			continue
		}
		delete(revivable, bestID)
		tr := t.tracks[bestID]
		tr.observe(det)
		matchedThisFrame[bestID] = true
		detMatched[j] = true
		outputs = append(outputs, t.output(tr))
	}

	// Spawn new tracks for detections still unmatched.
	for j, det := range detections {
		if detMatched[j] {
			continue
		}
		tr := newTrack(t.allocID(), det, t.cfg.HistoryCapacity)
		t.tracks[tr.ID] = tr
		outputs = append(outputs, t.output(tr))
	}

	// Penalise tracks that saw nothing this frame. Tracks created above are
	// exempt: they were born from this frame's detections.
	for id, tr := range t.tracks {
		if !matchedThisFrame[id] && !isNew(tr) {
			t.miss(tr)
		}
	}

	t.cleanup()

	sort.Slice(outputs, func(a, b int) bool { return outputs[a].ID < outputs[b].ID })
	return outputs
}

// isNew reports whether the track was created in the current update call.
func isNew(tr *Track) bool { return tr.Age == 1 }

// miss increments a track's miss counter and demotes it to lost once past
// the disappearance threshold.
func (t *Tracker) miss(tr *Track) {
	tr.FramesSinceUpdate++
	if tr.FramesSinceUpdate > t.cfg.DisappearanceThreshold {
		tr.State = TrackLost
	}
}

// cleanup deletes tracks missed beyond twice the disappearance threshold
// and recycles their ids when enabled.
func (t *Tracker) cleanup() {
	for id, tr := range t.tracks {
		if tr.FramesSinceUpdate > 2*t.cfg.DisappearanceThreshold {
			tr.State = TrackDeleted
			t.removed = append(t.removed, tr)
			delete(t.tracks, id)
			if t.cfg.RecycleIDs {
				t.freeIDs = append(t.freeIDs, id)
				sort.Ints(t.freeIDs)
			}
		}
	}
}

// allocID returns the smallest recycled id, or the next monotonic one.
func (t *Tracker) allocID() int {
	if t.cfg.RecycleIDs && len(t.freeIDs) > 0 {
		id := t.freeIDs[0]
		t.freeIDs = t.freeIDs[1:]
		return id
	}
	id := t.nextID
	t.nextID++
	return id
}

func (t *Tracker) output(tr *Track) TrackOutput {
	return TrackOutput{
		ID:         tr.ID,
		Box:        tr.Box,
		Confidence: tr.Confidence,
		Age:        tr.Age,
		Hits:       tr.Hits,
	}
}

func (t *Tracker) sortedIDs() []int {
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ActiveTracks returns the currently active (non-lost) tracks, by id.
func (t *Tracker) ActiveTracks() []*Track {
	var active []*Track
	for _, id := range t.sortedIDs() {
		if tr := t.tracks[id]; tr.State == TrackActive {
			active = append(active, tr)
		}
	}
	return active
}

// Track returns a track by id, or nil if not currently tracked.
func (t *Tracker) Track(id int) *Track {
	return t.tracks[id]
}

// TrackCount returns counts of tracks by lifecycle state.
func (t *Tracker) TrackCount() (total, active, lost int) {
	for _, tr := range t.tracks {
		total++
		switch tr.State {
		case TrackActive:
			active++
		case TrackLost:
			lost++
		}
	}
	return total, active, lost
}

// DrainRemoved returns tracks deleted since the last call and clears the
// internal list. The write-behind archive consumes this.
func (t *Tracker) DrainRemoved() []*Track {
	removed := t.removed
	t.removed = nil
	return removed
}
