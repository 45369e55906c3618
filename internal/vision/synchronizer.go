package vision

import (
	"fmt"
	"sync"
)

// SynchronizerConfig holds configuration for the result synchroniser.
type SynchronizerConfig struct {
	WindowMicros     int64 // Half-width of the timestamp matching window
	MaxFrames        int   // Bounded cache; oldest frames evicted past this
	TimeBucketMicros int64 // Rounding granularity of the timestamp index
}

// DefaultSynchronizerConfig returns default synchroniser configuration.
func DefaultSynchronizerConfig() SynchronizerConfig {
	return SynchronizerConfig{
		WindowMicros:     100_000, // ±100ms
		MaxFrames:        256,
		TimeBucketMicros: 100_000,
	}
}

// Validate fails fast on misconfiguration.
func (c SynchronizerConfig) Validate() error {
	if c.WindowMicros <= 0 {
		return fmt.Errorf("synchronizer config: WindowMicros must be positive, got %d", c.WindowMicros)
	}
	if c.MaxFrames <= 0 {
		return fmt.Errorf("synchronizer config: MaxFrames must be positive, got %d", c.MaxFrames)
	}
	if c.TimeBucketMicros <= 0 {
		return fmt.Errorf("synchronizer config: TimeBucketMicros must be positive, got %d", c.TimeBucketMicros)
	}
	return nil
}

// pendingFrame accumulates per-detector partial results for one frame.
type pendingFrame struct {
	record  *FrameRecord
	results map[DetectorKind]DetectionSet
}

// ResultSynchronizer lets detectors for different attributes of the same
// frame, running concurrently and finishing at different times, publish
// independently and later be assembled into one merged view.
//
// Like the registry it is a multi-writer shared component guarded by one
// coarse mutex. A very late publish may find its frame already evicted
// from the bounded cache; it is silently re-registered and will age out
// again unless resolved.
type ResultSynchronizer struct {
	cfg SynchronizerConfig

	mu       sync.Mutex
	frames   map[string]*pendingFrame
	byBucket map[int64][]string
	order    []string // Registration order, for bounded eviction
}

// NewResultSynchronizer creates a synchroniser with the given configuration.
func NewResultSynchronizer(cfg SynchronizerConfig) (*ResultSynchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ResultSynchronizer{
		cfg:      cfg,
		frames:   make(map[string]*pendingFrame),
		byBucket: make(map[int64][]string),
	}, nil
}

func (rs *ResultSynchronizer) bucket(tsMicros int64) int64 {
	return tsMicros / rs.cfg.TimeBucketMicros
}

// Publish registers the frame if unseen and stores the result under the
// detector kind. An all-nil set is a valid empty publish: a failed
// detector task substitutes one rather than aborting the frame.
func (rs *ResultSynchronizer) Publish(rec *FrameRecord, kind DetectorKind, set DetectionSet) {
	if rec == nil {
		return
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	pf, ok := rs.frames[rec.ID]
	if !ok {
		pf = &pendingFrame{
			record:  rec,
			results: make(map[DetectorKind]DetectionSet),
		}
		rs.frames[rec.ID] = pf
		b := rs.bucket(rec.TimestampMicros)
		rs.byBucket[b] = append(rs.byBucket[b], rec.ID)
		rs.order = append(rs.order, rec.ID)
		rs.evictOverflowLocked()
	}
	pf.results[kind] = set
}

// evictOverflowLocked drops the oldest cached frames beyond the bound.
// Callers must hold rs.mu.
func (rs *ResultSynchronizer) evictOverflowLocked() {
	for len(rs.order) > rs.cfg.MaxFrames {
		oldest := rs.order[0]
		rs.order = rs.order[1:]
		rs.dropLocked(oldest)
	}
}

// dropLocked removes one frame from the cache and its bucket index.
// Callers must hold rs.mu.
func (rs *ResultSynchronizer) dropLocked(frameID string) {
	pf, ok := rs.frames[frameID]
	if !ok {
		return
	}
	delete(rs.frames, frameID)
	b := rs.bucket(pf.record.TimestampMicros)
	rs.byBucket[b] = removeID(rs.byBucket[b], frameID)
	if len(rs.byBucket[b]) == 0 {
		delete(rs.byBucket, b)
	}
}

// Resolve finds the cached frame whose exact timestamp is closest to the
// query within ±WindowMicros, optionally filtered by source, and merges
// every published detector bucket into a single derived FrameRecord.
// Detector kinds never published fall back to empty result lists. Returns
// false if no cached frame falls inside the window.
func (rs *ResultSynchronizer) Resolve(tsMicros int64, sourceID string) (*FrameRecord, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	lo := tsMicros - rs.cfg.WindowMicros
	hi := tsMicros + rs.cfg.WindowMicros

	var best *pendingFrame
	var bestDiff int64
	for b := rs.bucket(lo); b <= rs.bucket(hi); b++ {
		for _, id := range rs.byBucket[b] {
			pf := rs.frames[id]
			if pf == nil {
				continue
			}
			ts := pf.record.TimestampMicros
			if ts < lo || ts > hi {
				continue
			}
			if sourceID != "" && pf.record.SourceID != sourceID {
				continue
			}
			diff := ts - tsMicros
			if diff < 0 {
				diff = -diff
			}
			if best == nil || diff < bestDiff {
				best = pf
				bestDiff = diff
			}
		}
	}
	if best == nil {
		return nil, false
	}

	merged := DetectionSet{
		Persons:    []PersonDetection{},
		Attributes: []AttributeDetection{},
		Poses:      []PoseDetection{},
		Behaviors:  []BehaviorDetection{},
	}
	for kind, set := range best.results {
		switch kind {
		case KindPerson:
			if set.Persons != nil {
				merged.Persons = set.Persons
			}
		case KindHairnet:
			if set.Attributes != nil {
				merged.Attributes = set.Attributes
			}
		case KindPose:
			if set.Poses != nil {
				merged.Poses = set.Poses
			}
		case KindBehavior:
			if set.Behaviors != nil {
				merged.Behaviors = set.Behaviors
			}
		}
	}

	return best.record.WithResults(merged), true
}

// Evict drops all cached frames for a source, or everything when sourceID
// is empty.
func (rs *ResultSynchronizer) Evict(sourceID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if sourceID == "" {
		rs.frames = make(map[string]*pendingFrame)
		rs.byBucket = make(map[int64][]string)
		rs.order = nil
		return
	}

	var keep []string
	for _, id := range rs.order {
		pf := rs.frames[id]
		if pf != nil && pf.record.SourceID == sourceID {
			rs.dropLocked(id)
			continue
		}
		keep = append(keep, id)
	}
	rs.order = keep
}

// Len returns the number of frames currently cached.
func (rs *ResultSynchronizer) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.frames)
}
