// Package vision implements the association and temporal-stabilisation core
// for the compliance monitoring pipeline.
//
// The package turns noisy per-frame detections produced by external
// perception components (person detector, hairnet classifier, pose
// estimator, behaviour classifier) into stable per-object identities,
// debounced per-identity compliance state, and a consistent record of what
// is known about each frame.
//
// Components:
//
//   - Tracker: assigns persistent identities to per-frame person detections
//     using fused IoU/centre-distance costs and bipartite assignment.
//   - StateStabilizer: hysteresis over noisy per-identity confidences.
//   - TemporalSmoother: EMA filtering of keypoint sequences per identity.
//   - FrameRegistry: concurrent, index-consistent store of FrameRecords.
//   - ResultSynchronizer: merges per-detector partial results for the same
//     logical frame, arriving asynchronously.
//   - FrameGate: per-source frame-skip policy (counter, motion, interval).
//   - Pipeline: orchestrates one frame through the detectors with the
//     attribute/pose stages running concurrently.
//
// Tracker, StateStabilizer and TemporalSmoother are single-stream components
// and hold no internal locks: run one instance per video source, invoked
// from that source's processing loop. FrameRegistry and ResultSynchronizer
// are multi-writer shared components guarded by one coarse mutex each.
//
// Persistence (internal/vision/storage/sqlite) and report generation
// (cmd/tools/compliance-report) consume this package's outputs; they are
// collaborators, not part of the hot path.
package vision
