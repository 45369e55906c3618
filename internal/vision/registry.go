package vision

import (
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegistryConfig holds configuration for the frame registry.
type RegistryConfig struct {
	MaxRecords       int   // Bounded retention; oldest records evicted past this
	TimeBucketMicros int64 // Rounding granularity of the timestamp index
}

// DefaultRegistryConfig returns default registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxRecords:       1000,
		TimeBucketMicros: 100_000, // 100ms buckets
	}
}

// Validate fails fast on misconfiguration.
func (c RegistryConfig) Validate() error {
	if c.MaxRecords <= 0 {
		return fmt.Errorf("registry config: MaxRecords must be positive, got %d", c.MaxRecords)
	}
	if c.TimeBucketMicros <= 0 {
		return fmt.Errorf("registry config: TimeBucketMicros must be positive, got %d", c.TimeBucketMicros)
	}
	return nil
}

// FrameRegistry is the concurrent store of FrameRecords, indexed by id, by
// rounded timestamp bucket, and by source. Multiple detector goroutines
// publish into the same registry; every operation takes one coarse mutex
// covering the primary map and both secondary indices together, so a
// reader never observes an index that disagrees with the primary map. The
// coarse lock trades contention for simplicity and correctness.
type FrameRegistry struct {
	cfg   RegistryConfig
	runID string

	mu       sync.Mutex
	records  map[string]*FrameRecord
	byBucket map[int64][]string
	bySource map[string][]string
	order    []string         // Insertion order, for bounded eviction
	counters map[string]int64 // Per-source monotonic frame counters

	now func() time.Time // Injectable clock for tests
}

// NewFrameRegistry creates a registry with the given configuration.
func NewFrameRegistry(cfg RegistryConfig) (*FrameRegistry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FrameRegistry{
		cfg:      cfg,
		runID:    uuid.NewString(),
		records:  make(map[string]*FrameRecord),
		byBucket: make(map[int64][]string),
		bySource: make(map[string][]string),
		counters: make(map[string]int64),
		now:      time.Now,
	}, nil
}

// RunID returns the unique id of this registry's processing run.
func (fr *FrameRegistry) RunID() string { return fr.runID }

func (fr *FrameRegistry) bucket(tsMicros int64) int64 {
	return tsMicros / fr.cfg.TimeBucketMicros
}

// Create allocates a new frame record for a source and inserts it into all
// three indices. The frame id embeds the source id, a per-source monotonic
// counter and the microsecond timestamp, so it is unique within a run. A
// zero timestamp means "now".
func (fr *FrameRegistry) Create(raw image.Image, sourceID string, kind SourceKind, ts time.Time) *FrameRecord {
	if ts.IsZero() {
		ts = fr.now()
	}
	tsMicros := ts.UnixMicro()

	fr.mu.Lock()
	defer fr.mu.Unlock()

	fr.counters[sourceID]++
	n := fr.counters[sourceID]

	rec := &FrameRecord{
		ID:              fmt.Sprintf("%s:%d:%d", sourceID, n, tsMicros),
		TimestampMicros: tsMicros,
		SourceID:        sourceID,
		Source:          kind,
		Raw:             raw,
		Fingerprint:     Fingerprint(raw),
		Stage:           StagePending,
	}

	fr.records[rec.ID] = rec
	b := fr.bucket(tsMicros)
	fr.byBucket[b] = append(fr.byBucket[b], rec.ID)
	fr.bySource[sourceID] = append(fr.bySource[sourceID], rec.ID)
	fr.order = append(fr.order, rec.ID)

	fr.evictOverflowLocked()

	return rec
}

// evictOverflowLocked drops the oldest records beyond the retention bound.
// Callers must hold fr.mu.
func (fr *FrameRegistry) evictOverflowLocked() {
	for len(fr.order) > fr.cfg.MaxRecords {
		oldest := fr.order[0]
		fr.order = fr.order[1:]
		rec, ok := fr.records[oldest]
		if !ok {
			continue
		}
		delete(fr.records, oldest)
		b := fr.bucket(rec.TimestampMicros)
		fr.byBucket[b] = removeID(fr.byBucket[b], oldest)
		if len(fr.byBucket[b]) == 0 {
			delete(fr.byBucket, b)
		}
		fr.bySource[rec.SourceID] = removeID(fr.bySource[rec.SourceID], oldest)
	}
}

// swapLocked replaces the stored record for id with the derived instance.
// The secondary indices reference records by id, so the pointer swap in
// the primary map is the whole mutation; holding fr.mu makes it atomic
// with respect to every reader. Callers must hold fr.mu.
func (fr *FrameRegistry) swapLocked(rec *FrameRecord) {
	fr.records[rec.ID] = rec
}

// UpdateResults derives a new record with the given detector results
// merged in and swaps it into the registry. The second return is false if
// the frame id is unknown (evicted or never seen); that is a miss, not an
// error, and callers treat it as a no-op.
func (fr *FrameRegistry) UpdateResults(frameID string, set DetectionSet) (*FrameRecord, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	rec, ok := fr.records[frameID]
	if !ok {
		return nil, false
	}
	updated := rec.WithResults(set)
	fr.swapLocked(updated)
	return updated, true
}

// UpdateState derives a new record with the stabilised state replaced and
// swaps it in. Miss semantics as UpdateResults.
func (fr *FrameRegistry) UpdateState(frameID string, state StateKind, confidence float64) (*FrameRecord, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	rec, ok := fr.records[frameID]
	if !ok {
		return nil, false
	}
	updated := rec.WithState(state, confidence)
	fr.swapLocked(updated)
	return updated, true
}

// UpdateStage derives a new record with the processing stage replaced and
// swaps it in. Miss semantics as UpdateResults.
func (fr *FrameRegistry) UpdateStage(frameID string, stage Stage) (*FrameRecord, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	rec, ok := fr.records[frameID]
	if !ok {
		return nil, false
	}
	updated := rec.WithStage(stage)
	fr.swapLocked(updated)
	return updated, true
}

// Get returns the current record for a frame id.
func (fr *FrameRegistry) Get(frameID string) (*FrameRecord, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	rec, ok := fr.records[frameID]
	return rec, ok
}

// QueryByTimeRange returns records whose timestamp falls in
// [startMicros, endMicros], optionally filtered by source, in timestamp
// order. Only buckets overlapping the range are scanned.
func (fr *FrameRegistry) QueryByTimeRange(startMicros, endMicros int64, sourceID string) []*FrameRecord {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	var out []*FrameRecord
	collect := func(ids []string) {
		for _, id := range ids {
			rec := fr.records[id]
			if rec == nil || rec.TimestampMicros < startMicros || rec.TimestampMicros > endMicros {
				continue
			}
			if sourceID != "" && rec.SourceID != sourceID {
				continue
			}
			out = append(out, rec)
		}
	}
	lo, hi := fr.bucket(startMicros), fr.bucket(endMicros)
	// A range wider than the populated bucket set walks the map instead of
	// stepping through every bucket index in between.
	if span := hi - lo; span < 0 || span+1 > int64(len(fr.byBucket)) {
		for b, ids := range fr.byBucket {
			if b >= lo && b <= hi {
				collect(ids)
			}
		}
	} else {
		for b := lo; b <= hi; b++ {
			collect(fr.byBucket[b])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimestampMicros < out[j].TimestampMicros
	})
	return out
}

// QueryBySource returns up to limit records for a source, most recent
// first. A non-positive limit means no bound.
func (fr *FrameRegistry) QueryBySource(sourceID string, limit int) []*FrameRecord {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	ids := fr.bySource[sourceID]
	var out []*FrameRecord
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if rec := fr.records[ids[i]]; rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Evict drops all entries for a source, or everything when sourceID is
// empty, from all three indices.
func (fr *FrameRegistry) Evict(sourceID string) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if sourceID == "" {
		fr.records = make(map[string]*FrameRecord)
		fr.byBucket = make(map[int64][]string)
		fr.bySource = make(map[string][]string)
		fr.order = nil
		return
	}

	for _, id := range fr.bySource[sourceID] {
		rec, ok := fr.records[id]
		if !ok {
			continue
		}
		delete(fr.records, id)
		b := fr.bucket(rec.TimestampMicros)
		fr.byBucket[b] = removeID(fr.byBucket[b], id)
		if len(fr.byBucket[b]) == 0 {
			delete(fr.byBucket, b)
		}
		fr.order = removeID(fr.order, id)
	}
	delete(fr.bySource, sourceID)
}

// Len returns the number of records currently retained.
func (fr *FrameRegistry) Len() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return len(fr.records)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
