package vision

import (
	"fmt"
	"math"
)

// DetectorKind identifies which external perception component produced a
// result. The kinds mirror the pipeline stages: person detection gates
// everything else; hairnet and pose run concurrently; behaviour runs last.
type DetectorKind string

const (
	KindPerson   DetectorKind = "person"
	KindHairnet  DetectorKind = "hairnet"
	KindPose     DetectorKind = "pose"
	KindBehavior DetectorKind = "behavior"
)

// Box is an axis-aligned bounding box in pixel coordinates, (X1, Y1) top
// left and (X2, Y2) bottom right.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Width returns the box width (may be negative for degenerate boxes).
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height (may be negative for degenerate boxes).
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate boxes.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the box centre point.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Valid reports whether the box has positive area.
func (b Box) Valid() bool { return b.Area() > 0 }

// Point is a 2D point in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance to q.
func (p Point) Dist(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PersonDetection is one person found by the external person detector.
type PersonDetection struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the detection at the ingestion boundary. Degenerate boxes
// are not an error for the tracker (they simply never match); out-of-range
// confidences indicate a broken upstream component and are rejected here.
func (d PersonDetection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("person detection: confidence %v out of [0,1]", d.Confidence)
	}
	return nil
}

// AttributeDetection is a secondary-attribute classification (hairnet worn
// or not) for one region of interest.
type AttributeDetection struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label"` // "hairnet" or "no_hairnet"
	Wearing    bool    `json:"wearing"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the attribute detection at the ingestion boundary.
func (d AttributeDetection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("attribute detection: confidence %v out of [0,1]", d.Confidence)
	}
	if d.Label == "" {
		return fmt.Errorf("attribute detection: empty label")
	}
	return nil
}

// PoseDetection is a keypoint set for one person produced by the external
// pose estimator. Keypoints and Confidences are parallel slices; a missing
// Confidences slice means every keypoint is fully trusted.
type PoseDetection struct {
	Box         Box       `json:"box"`
	Keypoints   []Point   `json:"keypoints"`
	Confidences []float64 `json:"confidences,omitempty"`
}

// Validate checks the pose detection at the ingestion boundary.
func (d PoseDetection) Validate() error {
	if len(d.Confidences) > 0 && len(d.Confidences) != len(d.Keypoints) {
		return fmt.Errorf("pose detection: %d confidences for %d keypoints",
			len(d.Confidences), len(d.Keypoints))
	}
	for _, c := range d.Confidences {
		if c < 0 || c > 1 {
			return fmt.Errorf("pose detection: keypoint confidence %v out of [0,1]", c)
		}
	}
	return nil
}

// BehaviorDetection is a compliance-behaviour classification (handwashing,
// sanitising) for one person region.
type BehaviorDetection struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label"` // e.g. "handwash", "sanitize"
	Confidence float64 `json:"confidence"`
}

// Validate checks the behaviour detection at the ingestion boundary.
func (d BehaviorDetection) Validate() error {
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("behavior detection: confidence %v out of [0,1]", d.Confidence)
	}
	if d.Label == "" {
		return fmt.Errorf("behavior detection: empty label")
	}
	return nil
}

// DetectionSet carries the results of one detector run for one frame. Only
// the slice matching the publishing detector kind is populated; the others
// stay nil. An all-nil set is a valid empty publish (a failed detector task
// is substituted with one rather than aborting the frame).
type DetectionSet struct {
	Persons    []PersonDetection    `json:"persons,omitempty"`
	Attributes []AttributeDetection `json:"attributes,omitempty"`
	Poses      []PoseDetection      `json:"poses,omitempty"`
	Behaviors  []BehaviorDetection  `json:"behaviors,omitempty"`
}

// Validate checks every detection in the set.
func (s DetectionSet) Validate() error {
	for i, d := range s.Persons {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("persons[%d]: %w", i, err)
		}
	}
	for i, d := range s.Attributes {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("attributes[%d]: %w", i, err)
		}
	}
	for i, d := range s.Poses {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("poses[%d]: %w", i, err)
		}
	}
	for i, d := range s.Behaviors {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("behaviors[%d]: %w", i, err)
		}
	}
	return nil
}

// HeadROI derives the head region of interest from a person box: the top
// ExpandTop fraction of the box, widened by ExpandSide on each flank and
// clamped to the frame. Used to focus the hairnet classifier.
func HeadROI(person Box, frameW, frameH float64) Box {
	const (
		headFraction = 0.35
		sideExpand   = 0.10
	)
	w := person.Width()
	roi := Box{
		X1: person.X1 - w*sideExpand,
		Y1: person.Y1,
		X2: person.X2 + w*sideExpand,
		Y2: person.Y1 + person.Height()*headFraction,
	}
	return roi.clamp(frameW, frameH)
}

// clamp restricts the box to the frame dimensions.
func (b Box) clamp(frameW, frameH float64) Box {
	if b.X1 < 0 {
		b.X1 = 0
	}
	if b.Y1 < 0 {
		b.Y1 = 0
	}
	if frameW > 0 && b.X2 > frameW {
		b.X2 = frameW
	}
	if frameH > 0 && b.Y2 > frameH {
		b.Y2 = frameH
	}
	return b
}
