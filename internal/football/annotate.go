package football

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

const trailWindow = 30

var (
	white = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	black = color.RGBA{R: 0, G: 0, B: 0, A: 0}

	scoreOpen    = color.RGBA{R: 0, G: 200, B: 80, A: 0}
	scoreContest = color.RGBA{R: 230, G: 200, B: 0, A: 0}
	scoreCovered = color.RGBA{R: 220, G: 40, B: 40, A: 0}
)

// AnnotateFrame draws the full overlay for one frame: team-colored boxes
// with id labels, tracking trails, per-receiver score chips, the frame
// counter and the best-option banner. The frame is modified in place.
func AnnotateFrame(frame *gocv.Mat, detections []TrackedDetection, scores map[int]float64, tracker *Tracker, frameIndex int) {
	for _, det := range detections {
		if det.TrackID < 0 {
			continue
		}
		drawPlayerBox(frame, det)
		drawTrail(frame, det, tracker)
		if score, ok := scores[det.TrackID]; ok {
			drawScoreChip(frame, det, score)
		}
	}

	gocv.PutText(frame, fmt.Sprintf("Frame: %d", frameIndex),
		image.Pt(10, 30), gocv.FontHersheySimplex, 1.0, white, 2)

	if bestID, bestScore := BestOption(scores, DefaultBestOptionThreshold); bestID >= 0 {
		gocv.PutText(frame, fmt.Sprintf("Best Option: ID %d (Score: %.1f)", bestID, bestScore),
			image.Pt(10, 70), gocv.FontHersheySimplex, 0.8, scoreOpen, 2)
	}
}

func drawPlayerBox(frame *gocv.Mat, det TrackedDetection) {
	rect := bboxRect(det.BBox)
	gocv.Rectangle(frame, rect, det.TeamColor, 3)

	label := fmt.Sprintf("ID: %d", det.TrackID)
	if det.Role != RoleUnknown {
		label = fmt.Sprintf("%s | ID: %d", det.Role, det.TrackID)
	}
	size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.6, 2)
	textY := rect.Min.Y - 5
	if textY < 20 {
		textY = 20
	}
	bg := image.Rect(rect.Min.X-2, textY-size.Y-2, rect.Min.X+size.X+2, textY+2)
	gocv.Rectangle(frame, bg, det.TeamColor, -1)
	gocv.PutText(frame, label, image.Pt(rect.Min.X, textY), gocv.FontHersheySimplex, 0.6, white, 2)
}

func drawTrail(frame *gocv.Mat, det TrackedDetection, tracker *Tracker) {
	history := tracker.TrackHistory(det.TrackID, trailWindow)
	for i := 1; i < len(history); i++ {
		p0 := image.Pt(int(history[i-1].Center.X), int(history[i-1].Center.Y))
		p1 := image.Pt(int(history[i].Center.X), int(history[i].Center.Y))
		gocv.Line(frame, p0, p1, det.TeamColor, 2)
	}
}

// drawScoreChip puts the score in the box's top-right corner, colored by
// band: open from 70, contested from 50, covered below.
func drawScoreChip(frame *gocv.Mat, det TrackedDetection, score float64) {
	band := scoreCovered
	switch {
	case score >= 70:
		band = scoreOpen
	case score >= 50:
		band = scoreContest
	}

	label := fmt.Sprintf("Open: %.1f", score)
	size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.6, 2)
	rect := bboxRect(det.BBox)

	bg := image.Rect(rect.Max.X-size.X-10, rect.Min.Y, rect.Max.X, rect.Min.Y+size.Y+10)
	gocv.Rectangle(frame, bg, band, -1)
	gocv.PutText(frame, label, image.Pt(rect.Max.X-size.X-5, rect.Min.Y+size.Y+5),
		gocv.FontHersheySimplex, 0.6, black, 2)
}

func bboxRect(b BBox) image.Rectangle {
	return image.Rect(int(b[0]), int(b[1]), int(b[2]), int(b[3]))
}
