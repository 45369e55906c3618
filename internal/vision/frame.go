package vision

import (
	"hash/fnv"
	"image"
)

// SourceKind describes where a frame came from.
type SourceKind string

const (
	SourceLive  SourceKind = "live"  // Live camera stream
	SourceFile  SourceKind = "file"  // Recorded video file
	SourceImage SourceKind = "image" // Still image
	SourceAPI   SourceKind = "api"   // Externally submitted request
)

// Stage is the processing stage of a frame.
type Stage string

const (
	StagePending    Stage = "pending"
	StageProcessing Stage = "processing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// FrameRecord is an immutable snapshot of one frame's known state. Any
// "mutation" derives a new record via a With* method; existing instances
// are never written to after publication, so concurrent readers can hold a
// *FrameRecord without synchronisation and never observe a torn record.
//
// The raw pixel reference is carried for gating and ROI extraction only
// and is excluded from the serialised form.
type FrameRecord struct {
	ID              string      `json:"id"`
	TimestampMicros int64       `json:"timestamp_micros"`
	SourceID        string      `json:"source_id"`
	Source          SourceKind  `json:"source_kind"`
	Raw             image.Image `json:"-"`
	Fingerprint     uint64      `json:"fingerprint"`

	Persons   []PersonDetection    `json:"persons,omitempty"`
	Hairnets  []AttributeDetection `json:"hairnets,omitempty"`
	Poses     []PoseDetection      `json:"poses,omitempty"`
	Behaviors []BehaviorDetection  `json:"behaviors,omitempty"`

	StableState      StateKind `json:"stable_state,omitempty"`
	StableConfidence float64   `json:"stable_confidence,omitempty"`

	Stage Stage             `json:"stage"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// clone produces a field-for-field copy with the metadata map duplicated
// so derived records never alias a mutable map.
func (r *FrameRecord) clone() *FrameRecord {
	cp := *r
	if r.Meta != nil {
		cp.Meta = make(map[string]string, len(r.Meta))
		for k, v := range r.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}

// WithResults derives a record with the given detector results replaced.
// Nil slices in the set leave the corresponding field untouched, so a
// partial publish never erases another detector's contribution.
func (r *FrameRecord) WithResults(set DetectionSet) *FrameRecord {
	cp := r.clone()
	if set.Persons != nil {
		cp.Persons = set.Persons
	}
	if set.Attributes != nil {
		cp.Hairnets = set.Attributes
	}
	if set.Poses != nil {
		cp.Poses = set.Poses
	}
	if set.Behaviors != nil {
		cp.Behaviors = set.Behaviors
	}
	return cp
}

// WithState derives a record with the stabilised state replaced.
func (r *FrameRecord) WithState(state StateKind, confidence float64) *FrameRecord {
	cp := r.clone()
	cp.StableState = state
	cp.StableConfidence = confidence
	return cp
}

// WithStage derives a record with the processing stage replaced.
func (r *FrameRecord) WithStage(stage Stage) *FrameRecord {
	cp := r.clone()
	cp.Stage = stage
	return cp
}

// WithMeta derives a record with one metadata entry added or replaced.
func (r *FrameRecord) WithMeta(key, value string) *FrameRecord {
	cp := r.clone()
	if cp.Meta == nil {
		cp.Meta = make(map[string]string, 1)
	}
	cp.Meta[key] = value
	return cp
}

// fingerprintGridSize is the sparse sampling grid used for the cheap
// content fingerprint. 16×16 touches 256 pixels regardless of resolution.
const fingerprintGridSize = 16

// Fingerprint computes a cheap content fingerprint by hashing a sparse
// grid of pixel samples rather than the full buffer. Two visually
// identical frames produce the same value; it is not a cryptographic hash.
func Fingerprint(img image.Image) uint64 {
	if img == nil {
		return 0
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return 0
	}

	h := fnv.New64a()
	var buf [3]byte
	for gy := 0; gy < fingerprintGridSize; gy++ {
		for gx := 0; gx < fingerprintGridSize; gx++ {
			x := bounds.Min.X + gx*bounds.Dx()/fingerprintGridSize
			y := bounds.Min.Y + gy*bounds.Dy()/fingerprintGridSize
			r, g, b, _ := img.At(x, y).RGBA()
			buf[0] = byte(r >> 8)
			buf[1] = byte(g >> 8)
			buf[2] = byte(b >> 8)
			h.Write(buf[:])
		}
	}
	return h.Sum64()
}
