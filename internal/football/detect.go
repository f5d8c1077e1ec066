package football

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Class IDs produced by the detector model. The table mirrors the training
// labels of the custom YOLO weights; unknown IDs map to ClassNameUnknown.
const (
	ClassPlayer = iota
	ClassQuarterback
	ClassReceiver
	ClassDefender
	ClassBall
)

// Class names keyed by class ID.
var classNames = map[int]string{
	ClassPlayer:      "player",
	ClassQuarterback: "quarterback",
	ClassReceiver:    "receiver",
	ClassDefender:    "defender",
	ClassBall:        "ball",
}

// ClassNameUnknown is reported for class IDs outside the model's table.
const ClassNameUnknown = "unknown"

// ClassName returns the label for a detector class ID.
func ClassName(classID int) string {
	if name, ok := classNames[classID]; ok {
		return name
	}
	return ClassNameUnknown
}

// UnassignedTrackID marks a detection that could not be associated with any
// identity this frame.
const UnassignedTrackID = -1

// UnassignedTeam marks an identity whose team has not been determined yet.
const UnassignedTeam = -1

// Role is the side an identity plays on.
type Role string

const (
	RoleOffense Role = "offense"
	RoleDefense Role = "defense"
	RoleUnknown Role = "unknown"
)

// BBox is an axis-aligned bounding box in pixel space: x1, y1, x2, y2.
type BBox [4]float64

// Width returns the box width in pixels.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns the box height in pixels.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Center returns the box midpoint.
func (b BBox) Center() Point {
	return Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}
}

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is a single detector output for one frame. Ephemeral: it exists
// only within one frame's processing.
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
}

// TrackedDetection is a Detection bound to a persistent identity, augmented
// by the classifier with a team label and visualisation color.
type TrackedDetection struct {
	Detection

	TrackID    int        `json:"track_id"` // UnassignedTrackID when not associated
	Center     Point      `json:"center"`
	FrameIndex int        `json:"frame_index"`
	TeamID     int        `json:"team_id"` // UnassignedTeam until classified
	Role       Role       `json:"role"`
	TeamColor  color.RGBA `json:"-"`
}

// Detector produces per-frame detections. The pipeline treats detection as a
// black box behind this contract; see YOLODetector for the gocv-backed
// implementation and the test files for scripted fakes.
type Detector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
}
