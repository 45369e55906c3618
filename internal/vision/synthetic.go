package vision

import (
	"context"
	"image"
	"math"
)

// SyntheticDetectors is a deterministic stand-in for the external
// perception models: a configurable number of people drifting across the
// frame, hairnet confidence oscillating slowly per person, and a fixed
// keypoint skeleton following each box. Used by the demo binary and the
// pipeline tests; real deployments supply their own Detectors.
type SyntheticDetectors struct {
	People int
	frame  int
}

// NewSyntheticDetectors creates a synthetic detector set for n people.
func NewSyntheticDetectors(n int) *SyntheticDetectors {
	if n < 1 {
		n = 1
	}
	return &SyntheticDetectors{People: n}
}

// Detectors returns the bundle wiring this instance into a pipeline.
func (s *SyntheticDetectors) Detectors() Detectors {
	return Detectors{
		Person:    s,
		Attribute: s,
		Pose:      s,
		Behavior:  s,
	}
}

// DetectPersons implements PersonDetector: each person drifts rightwards
// two pixels per frame on its own lane.
func (s *SyntheticDetectors) DetectPersons(ctx context.Context, img image.Image) ([]PersonDetection, error) {
	s.frame++
	dets := make([]PersonDetection, s.People)
	for i := range dets {
		x := float64(20 + 2*s.frame + 150*i)
		y := float64(40 + 100*i)
		dets[i] = PersonDetection{
			Box:        Box{X1: x, Y1: y, X2: x + 60, Y2: y + 140},
			Confidence: 0.9,
		}
	}
	return dets, nil
}

// DetectAttributes implements AttributeDetector: hairnet confidence
// oscillates with a long period so the stabiliser sees sustained phases.
func (s *SyntheticDetectors) DetectAttributes(ctx context.Context, img image.Image, rois []Box) ([]AttributeDetection, error) {
	out := make([]AttributeDetection, len(rois))
	for i, roi := range rois {
		phase := math.Sin(float64(s.frame)/60 + float64(i))
		wearing := phase >= 0
		label := "hairnet"
		if !wearing {
			label = "no_hairnet"
		}
		out[i] = AttributeDetection{
			Box:        roi,
			Label:      label,
			Wearing:    wearing,
			Confidence: 0.6 + 0.3*math.Abs(phase),
		}
	}
	return out, nil
}

// EstimatePoses implements PoseEstimator with a five-point stick figure
// anchored to each ROI.
func (s *SyntheticDetectors) EstimatePoses(ctx context.Context, img image.Image, rois []Box) ([]PoseDetection, error) {
	out := make([]PoseDetection, len(rois))
	for i, roi := range rois {
		c := roi.Center()
		out[i] = PoseDetection{
			Box: roi,
			Keypoints: []Point{
				{X: c.X, Y: roi.Y1},      // head
				{X: roi.X1, Y: c.Y},      // left hand
				{X: roi.X2, Y: c.Y},      // right hand
				{X: c.X - 10, Y: roi.Y2}, // left foot
				{X: c.X + 10, Y: roi.Y2}, // right foot
			},
			Confidences: []float64{0.9, 0.8, 0.8, 0.7, 0.7},
		}
	}
	return out, nil
}

// ClassifyBehaviors implements BehaviorClassifier: hands close together
// read as handwashing.
func (s *SyntheticDetectors) ClassifyBehaviors(ctx context.Context, img image.Image, poses []PoseDetection) ([]BehaviorDetection, error) {
	var out []BehaviorDetection
	for _, pose := range poses {
		if len(pose.Keypoints) < 3 {
			continue
		}
		handGap := pose.Keypoints[1].Dist(pose.Keypoints[2])
		if handGap < 40 {
			out = append(out, BehaviorDetection{
				Box:        pose.Box,
				Label:      "handwash",
				Confidence: 0.75,
			})
		}
	}
	return out, nil
}
