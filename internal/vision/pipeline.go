package vision

import (
	"context"
	"image"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// PersonDetector finds people in a frame. Supplied externally; the core
// has no knowledge of how detections are computed.
type PersonDetector interface {
	DetectPersons(ctx context.Context, img image.Image) ([]PersonDetection, error)
}

// AttributeDetector classifies hairnet wearing for each region of interest.
type AttributeDetector interface {
	DetectAttributes(ctx context.Context, img image.Image, rois []Box) ([]AttributeDetection, error)
}

// PoseEstimator produces keypoint sets for each region of interest.
type PoseEstimator interface {
	EstimatePoses(ctx context.Context, img image.Image, rois []Box) ([]PoseDetection, error)
}

// BehaviorClassifier classifies compliance behaviours from pose output.
type BehaviorClassifier interface {
	ClassifyBehaviors(ctx context.Context, img image.Image, poses []PoseDetection) ([]BehaviorDetection, error)
}

// Detectors bundles the external perception components for one pipeline.
// Any of them may be nil; a missing detector behaves like one that always
// returns an empty result.
type Detectors struct {
	Person    PersonDetector
	Attribute AttributeDetector
	Pose      PoseEstimator
	Behavior  BehaviorClassifier
}

// Archiver receives completed tracks and frame summaries for persistence.
// Implemented by storage/sqlite; the pipeline treats archival errors as
// log-only, never as frame failures.
type Archiver interface {
	ArchiveTrack(runID, sourceID string, tr *Track, finalState StateKind) error
	ArchiveFrame(runID string, rec *FrameRecord) error
}

// PipelineConfig aggregates the component configurations.
type PipelineConfig struct {
	Tracker      TrackerConfig
	Stabilizer   StabilizerConfig
	Smoother     SmootherConfig
	Registry     RegistryConfig
	Synchronizer SynchronizerConfig
	Gate         GateConfig
	Debug        bool
}

// DefaultPipelineConfig returns defaults for every component.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Tracker:      DefaultTrackerConfig(),
		Stabilizer:   DefaultStabilizerConfig(),
		Smoother:     DefaultSmootherConfig(),
		Registry:     DefaultRegistryConfig(),
		Synchronizer: DefaultSynchronizerConfig(),
		Gate:         DefaultGateConfig(),
	}
}

// sourceState holds the single-stream components for one video source.
// They are only ever touched from that source's processing loop.
type sourceState struct {
	tracker    *Tracker
	stabilizer *StateStabilizer
	smoother   *TemporalSmoother
}

// PipelineStats are cumulative processing counters, safe for concurrent use.
type PipelineStats struct {
	mu              sync.Mutex
	FramesSeen      int64
	FramesGated     int64
	FramesProcessed int64
	DetectorErrors  int64
	detectTotal     time.Duration
	detectSamples   int64
}

func (s *PipelineStats) add(seen, gated, processed, errs int64) {
	s.mu.Lock()
	s.FramesSeen += seen
	s.FramesGated += gated
	s.FramesProcessed += processed
	s.DetectorErrors += errs
	s.mu.Unlock()
}

func (s *PipelineStats) observeDetect(d time.Duration) {
	s.mu.Lock()
	s.detectTotal += d
	s.detectSamples++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *PipelineStats) Snapshot() (seen, gated, processed, detectorErrors int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FramesSeen, s.FramesGated, s.FramesProcessed, s.DetectorErrors
}

// AvgDetectLatency reports the mean wall time of the detection stages per
// processed frame, or zero when nothing has been processed.
func (s *PipelineStats) AvgDetectLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detectSamples == 0 {
		return 0
	}
	return s.detectTotal / time.Duration(s.detectSamples)
}

// Pipeline orchestrates one frame through gate, detectors, tracker,
// synchroniser and stabiliser. Person detection is a hard sequential
// dependency; hairnet-attribute and pose estimation run as two concurrent
// tasks joined before behaviour classification. A failed detector task is
// logged and substituted with an empty result rather than aborting the
// frame.
//
// ProcessFrame must be called serially per source; distinct sources may
// call concurrently.
type Pipeline struct {
	cfg       PipelineConfig
	detectors Detectors

	registry *FrameRegistry
	syncer   *ResultSynchronizer
	gate     *FrameGate

	mu      sync.Mutex
	sources map[string]*sourceState

	archiver Archiver
	stats    PipelineStats
}

// NewPipeline validates all component configs and assembles a pipeline.
func NewPipeline(cfg PipelineConfig, detectors Detectors) (*Pipeline, error) {
	registry, err := NewFrameRegistry(cfg.Registry)
	if err != nil {
		return nil, err
	}
	syncer, err := NewResultSynchronizer(cfg.Synchronizer)
	if err != nil {
		return nil, err
	}
	gate, err := NewFrameGate(cfg.Gate)
	if err != nil {
		return nil, err
	}
	// Validate the per-source configs up front so a bad threshold fails at
	// construction, not at first frame.
	if err := cfg.Tracker.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Stabilizer.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Smoother.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:       cfg,
		detectors: detectors,
		registry:  registry,
		syncer:    syncer,
		gate:      gate,
		sources:   make(map[string]*sourceState),
	}, nil
}

// SetArchiver attaches a write-behind persistence sink.
func (p *Pipeline) SetArchiver(a Archiver) { p.archiver = a }

// Registry exposes the shared frame registry for downstream consumers.
func (p *Pipeline) Registry() *FrameRegistry { return p.registry }

// Synchronizer exposes the shared result synchroniser.
func (p *Pipeline) Synchronizer() *ResultSynchronizer { return p.syncer }

// Gate exposes the frame-skip gate.
func (p *Pipeline) Gate() *FrameGate { return p.gate }

// Stats exposes the cumulative counters.
func (p *Pipeline) Stats() *PipelineStats { return &p.stats }

// source returns (creating on first use) the per-source component set.
func (p *Pipeline) source(sourceID string) (*sourceState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.sources[sourceID]
	if ok {
		return st, nil
	}

	tracker, err := NewTracker(p.cfg.Tracker)
	if err != nil {
		return nil, err
	}
	stabilizer, err := NewStateStabilizer(p.cfg.Stabilizer)
	if err != nil {
		return nil, err
	}
	stabilizer.AttachRegistry(p.registry)
	smoother, err := NewTemporalSmoother(p.cfg.Smoother)
	if err != nil {
		return nil, err
	}

	st = &sourceState{tracker: tracker, stabilizer: stabilizer, smoother: smoother}
	p.sources[sourceID] = st
	return st, nil
}

// ProcessFrame runs one frame through the pipeline. A nil record return
// with nil error means the gate skipped the frame.
func (p *Pipeline) ProcessFrame(ctx context.Context, img image.Image, sourceID string, kind SourceKind, ts time.Time) (*FrameRecord, []TrackOutput, error) {
	p.stats.add(1, 0, 0, 0)

	if !p.gate.Allow(img, sourceID, ts) {
		p.stats.add(0, 1, 0, 0)
		return nil, nil, nil
	}

	st, err := p.source(sourceID)
	if err != nil {
		return nil, nil, err
	}

	rec := p.registry.Create(img, sourceID, kind, ts)
	p.registry.UpdateStage(rec.ID, StageProcessing)

	frameW, frameH := frameDims(img)

	detectStart := time.Now()

	// Stage 1: person detection gates everything else.
	persons := p.runPersons(ctx, img)
	tracks := st.tracker.Update(persons)
	p.publish(rec, KindPerson, DetectionSet{Persons: persons})

	// Stage 2: hairnet attribute and pose estimation are independent; run
	// them concurrently and join both before behaviour classification.
	headROIs := make([]Box, len(tracks))
	bodyROIs := make([]Box, len(tracks))
	for i, tr := range tracks {
		headROIs[i] = HeadROI(tr.Box, frameW, frameH)
		bodyROIs[i] = tr.Box
	}

	var attrs []AttributeDetection
	var poses []PoseDetection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		attrs = p.runAttributes(gctx, img, headROIs)
		return nil
	})
	g.Go(func() error {
		poses = p.runPoses(gctx, img, bodyROIs)
		return nil
	})
	// The tasks swallow their own failures; Wait only propagates context
	// cancellation.
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	p.publish(rec, KindHairnet, DetectionSet{Attributes: attrs})
	p.publish(rec, KindPose, DetectionSet{Poses: poses})

	// Stage 3: behaviour classification depends on pose output.
	behaviors := p.runBehaviors(ctx, img, poses)
	p.publish(rec, KindBehavior, DetectionSet{Behaviors: behaviors})
	p.stats.observeDetect(time.Since(detectStart))

	// Stage 4: per-identity temporal stabilisation. Attribute results are
	// parallel to the track list (one head ROI each). A track with no
	// attribute result this frame contributes no stabiliser sample: the
	// stable verdict only moves on observed evidence, so a failed or
	// short-handed detector leaves the previous state standing.
	for i, tr := range tracks {
		key := strconv.Itoa(tr.ID)
		if i < len(poses) {
			st.smoother.Smooth(key, poses[i].Keypoints, poses[i].Confidences)
		}
		if i < len(attrs) {
			st.stabilizer.Update(key, violationConfidence(attrs[i]), rec.ID)
		}
	}

	// Write-behind archival of tracks deleted this frame.
	if removed := st.tracker.DrainRemoved(); len(removed) > 0 && p.archiver != nil {
		for _, tr := range removed {
			final := StateTransition
			if hs := st.stabilizer.State(strconv.Itoa(tr.ID)); hs != nil {
				final = hs.Kind
			}
			if err := p.archiver.ArchiveTrack(p.registry.RunID(), sourceID, tr, final); err != nil {
				log.Printf("[Pipeline] archive track %d: %v", tr.ID, err)
			}
			st.stabilizer.Forget(strconv.Itoa(tr.ID))
			st.smoother.Forget(strconv.Itoa(tr.ID))
		}
	}

	final, _ := p.registry.UpdateStage(rec.ID, StageCompleted)
	if final == nil {
		final = rec
	}
	if p.archiver != nil {
		if err := p.archiver.ArchiveFrame(p.registry.RunID(), final); err != nil {
			log.Printf("[Pipeline] archive frame %s: %v", final.ID, err)
		}
	}

	p.stats.add(0, 0, 1, 0)
	return final, tracks, nil
}

// runPersons invokes the person detector, absorbing failures into an
// empty result.
func (p *Pipeline) runPersons(ctx context.Context, img image.Image) []PersonDetection {
	if p.detectors.Person == nil {
		return nil
	}
	dets, err := p.detectors.Person.DetectPersons(ctx, img)
	if err != nil {
		log.Printf("[Pipeline] person detector failed, substituting empty result: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	if err := (DetectionSet{Persons: dets}).Validate(); err != nil {
		log.Printf("[Pipeline] person detector returned malformed data, dropping: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	return dets
}

func (p *Pipeline) runAttributes(ctx context.Context, img image.Image, rois []Box) []AttributeDetection {
	if p.detectors.Attribute == nil || len(rois) == 0 {
		return nil
	}
	dets, err := p.detectors.Attribute.DetectAttributes(ctx, img, rois)
	if err != nil {
		log.Printf("[Pipeline] attribute detector failed, substituting empty result: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	if err := (DetectionSet{Attributes: dets}).Validate(); err != nil {
		log.Printf("[Pipeline] attribute detector returned malformed data, dropping: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	return dets
}

func (p *Pipeline) runPoses(ctx context.Context, img image.Image, rois []Box) []PoseDetection {
	if p.detectors.Pose == nil || len(rois) == 0 {
		return nil
	}
	dets, err := p.detectors.Pose.EstimatePoses(ctx, img, rois)
	if err != nil {
		log.Printf("[Pipeline] pose estimator failed, substituting empty result: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	if err := (DetectionSet{Poses: dets}).Validate(); err != nil {
		log.Printf("[Pipeline] pose estimator returned malformed data, dropping: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	return dets
}

func (p *Pipeline) runBehaviors(ctx context.Context, img image.Image, poses []PoseDetection) []BehaviorDetection {
	if p.detectors.Behavior == nil || len(poses) == 0 {
		return nil
	}
	dets, err := p.detectors.Behavior.ClassifyBehaviors(ctx, img, poses)
	if err != nil {
		log.Printf("[Pipeline] behavior classifier failed, substituting empty result: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	if err := (DetectionSet{Behaviors: dets}).Validate(); err != nil {
		log.Printf("[Pipeline] behavior classifier returned malformed data, dropping: %v", err)
		p.stats.add(0, 0, 0, 1)
		return nil
	}
	return dets
}

// publish stores a detector result in both the synchroniser and the
// registry.
func (p *Pipeline) publish(rec *FrameRecord, kind DetectorKind, set DetectionSet) {
	p.syncer.Publish(rec, kind, set)
	p.registry.UpdateResults(rec.ID, set)
}

// violationConfidence converts a hairnet attribute result into a raw
// violation confidence for the stabiliser: high when the classifier is
// confident the person is not wearing a hairnet.
func violationConfidence(det AttributeDetection) float64 {
	if det.Wearing {
		return 1 - det.Confidence
	}
	return det.Confidence
}

func frameDims(img image.Image) (w, h float64) {
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return float64(b.Dx()), float64(b.Dy())
}
