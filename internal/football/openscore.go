package football

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Component weights of the raw OpenScore. They sum to 1.0; the weighted sum
// is clipped to [0,100] anyway as a guard against floating-point drift.
const (
	weightDistance   = 0.40
	weightVelocity   = 0.25
	weightSeparation = 0.25
	weightCoverage   = 0.10
)

const (
	// separationWindow and separationMinSamples bound the route-shape
	// lookback used by the separation component.
	separationWindow     = 15
	separationMinSamples = 5

	// closingSpeedRange maps closing speeds of ±500 px/s onto [0,100].
	closingSpeedRange = 500.0

	// defaultVelocityWindow is the trailing-sample window behind kinematic
	// queries when the engine is not given a tuned one.
	defaultVelocityWindow = 5

	// coverageRadiusFraction of min(frame width, height) defines "nearby".
	coverageRadiusFraction = 0.15

	// Adaptive normalization: trailing raw-score window per identity.
	adaptiveWindow      = 20
	adaptiveMinSamples  = 5
	adaptiveSpreadFloor = 5.0
	adaptiveRawWeight   = 0.65
	adaptiveTrendWeight = 0.35

	// neutralScore is returned by components that lack the data to judge.
	neutralScore = 50.0

	// DefaultBestOptionThreshold is the minimum OpenScore for BestOption to
	// report a receiver as a viable target.
	DefaultBestOptionThreshold = 60.0
)

// ScoreContext is the explanation payload computed alongside each score,
// consumed by the external text-generation collaborator. When no defender
// is available NearestDefenderDistance is -1 and ClosingSpeed is 0.
type ScoreContext struct {
	NearestDefenderDistance float64 `json:"nearest_defender_distance"`
	NumNearbyDefenders      int     `json:"num_nearby_defenders"`
	ClosingSpeed            float64 `json:"closing_speed"`
	SeparationEfficiency    float64 `json:"separation_efficiency"`
	CoverageRadius          float64 `json:"coverage_radius"`
	FrameDiagonal           float64 `json:"frame_diagonal"`
}

// PlayerSummary aggregates a player's scores over the whole video.
type PlayerSummary struct {
	AvgOpenScore float64 `json:"avg_openscore"`
	MaxOpenScore float64 `json:"max_openscore"`
	MinOpenScore float64 `json:"min_openscore"`
	StdOpenScore float64 `json:"std_openscore"`
	Frames       int     `json:"frames"`
	TeamID       int     `json:"team_id"`
}

// Engine computes per-receiver openness scores against the defense. It
// carries a bounded trailing window of raw scores per identity for adaptive
// normalization; like the tracker it is advanced by a single writer in
// strict frame order.
type Engine struct {
	frameWidth  float64
	frameHeight float64

	velocityWindow int // trailing samples behind kinematic queries

	history map[int][]float64 // trailing raw scores, capped at adaptiveWindow
}

// NewEngine creates an engine for frames of the given pixel dimensions.
func NewEngine(frameWidth, frameHeight int) *Engine {
	return &Engine{
		frameWidth:     float64(frameWidth),
		frameHeight:    float64(frameHeight),
		velocityWindow: defaultVelocityWindow,
		history:        make(map[int][]float64),
	}
}

// SetVelocityWindow overrides the trailing-sample window used for velocity
// and closing-speed queries. Values below 2 are ignored; fewer than two
// samples cannot yield a velocity.
func (e *Engine) SetVelocityWindow(window int) {
	if window >= 2 {
		e.velocityWindow = window
	}
}

// FrameDiagonal returns the frame diagonal in pixels, the normalizer for
// the distance component.
func (e *Engine) FrameDiagonal() float64 {
	return math.Hypot(e.frameWidth, e.frameHeight)
}

// CoverageRadius returns the pixel radius within which defenders count as
// "nearby" for the coverage component.
func (e *Engine) CoverageRadius() float64 {
	return math.Min(e.frameWidth, e.frameHeight) * coverageRadiusFraction
}

// CalculateOpenScore computes the raw (pre-normalization) score for one
// receiver against the given defenders. With no defenders at all it does
// not claim perfect openness; it derives a bounded fallback from the
// receiver's own route shape instead.
func (e *Engine) CalculateOpenScore(receiver TrackedDetection, defenders []TrackedDetection, tracker *Tracker, fps float64) float64 {
	separation := e.separationScore(receiver, tracker)
	if len(defenders) == 0 {
		return clip(35+0.5*separation, 0, 85)
	}

	score := weightDistance*e.distanceScore(receiver, defenders) +
		weightVelocity*e.velocityScore(receiver, defenders, tracker, fps) +
		weightSeparation*separation +
		weightCoverage*e.coverageScore(receiver, defenders)

	return clip(score, 0, 100)
}

// distanceScore rewards distance to the nearest defender, normalized by the
// frame diagonal and mapped through a saturating exponential: near 0 at
// contact, ~63% of max at 0.2 of the diagonal.
func (e *Engine) distanceScore(receiver TrackedDetection, defenders []TrackedDetection) float64 {
	minDist := math.Inf(1)
	for _, d := range defenders {
		if dist := pointDistance(receiver.Center, d.Center); dist < minDist {
			minDist = dist
		}
	}
	normalized := minDist / e.FrameDiagonal()
	return 100 * (1 - math.Exp(-5*normalized))
}

// velocityScore judges the worst-case defender closing speed: the component
// of (defender velocity − receiver velocity) projected onto the line toward
// the receiver. A retreating defender is favorable. Neutral when no
// defender has a usable identity.
func (e *Engine) velocityScore(receiver TrackedDetection, defenders []TrackedDetection, tracker *Tracker, fps float64) float64 {
	if receiver.TrackID < 0 {
		return neutralScore
	}
	rvx, rvy := tracker.Velocity(receiver.TrackID, fps, e.velocityWindow)

	worst := math.Inf(1)
	found := false
	for _, d := range defenders {
		closing, ok := closingSpeed(receiver, d, rvx, rvy, tracker, fps, e.velocityWindow)
		if !ok {
			continue
		}
		found = true
		if threat := -closing; threat < worst {
			worst = threat
		}
	}
	if !found {
		return neutralScore
	}

	normalized := (worst + closingSpeedRange) / (2 * closingSpeedRange)
	return clip(normalized*100, 0, 100)
}

// closingSpeed returns the speed at which defender d closes on the
// receiver, positive toward the receiver. Reports false when the defender
// has no identity or occupies the receiver's exact position.
func closingSpeed(receiver, d TrackedDetection, rvx, rvy float64, tracker *Tracker, fps float64, window int) (float64, bool) {
	if d.TrackID < 0 {
		return 0, false
	}
	toX := receiver.Center.X - d.Center.X
	toY := receiver.Center.Y - d.Center.Y
	dist := math.Hypot(toX, toY)
	if dist <= 0 {
		return 0, false
	}
	dvx, dvy := tracker.Velocity(d.TrackID, fps, window)
	return ((dvx-rvx)*toX + (dvy-rvy)*toY) / dist, true
}

// separationScore measures route-path efficiency over the receiver's recent
// history: straight-line displacement over cumulative path length. Straight
// recent movement reads as deliberate separation. Neutral with sparse
// history or a zero-length path.
func (e *Engine) separationScore(receiver TrackedDetection, tracker *Tracker) float64 {
	if receiver.TrackID < 0 {
		return neutralScore
	}
	return separationEfficiency(receiver.TrackID, tracker) * 100
}

// separationEfficiency is the [0,1] path-efficiency ratio behind the
// separation component; 0.5 is the neutral fallback.
func separationEfficiency(trackID int, tracker *Tracker) float64 {
	history := tracker.TrackHistory(trackID, separationWindow)
	if len(history) < separationMinSamples {
		return 0.5
	}

	total := 0.0
	for i := 1; i < len(history); i++ {
		total += pointDistance(history[i].Center, history[i-1].Center)
	}
	straight := pointDistance(history[len(history)-1].Center, history[0].Center)
	if straight == 0 {
		return 0.5
	}
	if total == 0 {
		return 1.0
	}
	return straight / total
}

// coverageScore maps the number of defenders inside the coverage radius to
// a fixed step function: 0→100, 1→70, 2→40, 3+→20.
func (e *Engine) coverageScore(receiver TrackedDetection, defenders []TrackedDetection) float64 {
	radius := e.CoverageRadius()
	nearby := 0
	for _, d := range defenders {
		if pointDistance(receiver.Center, d.Center) < radius {
			nearby++
		}
	}
	switch nearby {
	case 0:
		return 100
	case 1:
		return 70
	case 2:
		return 40
	default:
		return 20
	}
}

// FrameOpenScores computes adaptive scores for every offense-side receiver
// in the frame. The result is empty when no offense-side identity exists
// yet; callers treat that as "scoring not yet available", not an error.
func (e *Engine) FrameOpenScores(detections []TrackedDetection, tracker *Tracker, fps float64) map[int]float64 {
	scores, _ := e.frameScores(detections, tracker, fps, false)
	return scores
}

// FrameOpenScoresWithContext additionally returns the per-receiver
// explanation payload for the external text-generation collaborator.
func (e *Engine) FrameOpenScoresWithContext(detections []TrackedDetection, tracker *Tracker, fps float64) (map[int]float64, map[int]ScoreContext) {
	return e.frameScores(detections, tracker, fps, true)
}

func (e *Engine) frameScores(detections []TrackedDetection, tracker *Tracker, fps float64, withContext bool) (map[int]float64, map[int]ScoreContext) {
	receivers := make([]TrackedDetection, 0, len(detections))
	defenders := make([]TrackedDetection, 0, len(detections))
	for _, det := range detections {
		if det.TrackID < 0 || det.ClassID == ClassBall {
			continue
		}
		switch det.Role {
		case RoleOffense:
			if det.ClassName == classNames[ClassReceiver] || det.ClassName == classNames[ClassPlayer] {
				receivers = append(receivers, det)
			}
		case RoleDefense:
			defenders = append(defenders, det)
		}
	}

	// Until a defense-side label exists, score provisionally against every
	// non-offense identity so early frames are not silently unscored.
	if len(defenders) == 0 {
		for _, det := range detections {
			if det.TrackID >= 0 && det.ClassID != ClassBall && det.Role != RoleOffense {
				defenders = append(defenders, det)
			}
		}
	}
	sort.Slice(defenders, func(i, j int) bool { return defenders[i].TrackID < defenders[j].TrackID })

	scores := make(map[int]float64, len(receivers))
	var contexts map[int]ScoreContext
	if withContext {
		contexts = make(map[int]ScoreContext, len(receivers))
	}

	for _, receiver := range receivers {
		raw := e.CalculateOpenScore(receiver, defenders, tracker, fps)
		scores[receiver.TrackID] = e.adaptiveScore(receiver.TrackID, raw)
		if withContext {
			contexts[receiver.TrackID] = e.buildContext(receiver, defenders, tracker, fps)
		}
	}
	return scores, contexts
}

// adaptiveScore blends the raw score with a trend-relative score against
// the identity's own recent window, damping frame-to-frame jitter while
// preserving genuine dynamics. The raw score joins the window only after
// the blend so the current sample cannot bias its own baseline.
func (e *Engine) adaptiveScore(trackID int, raw float64) float64 {
	window := e.history[trackID]

	adaptive := raw
	if len(window) >= adaptiveMinSamples {
		baseline := stat.Mean(window, nil)
		spread := stat.PopStdDev(window, nil)
		if spread < adaptiveSpreadFloor {
			spread = adaptiveSpreadFloor
		}
		trend := clip(50+15*(raw-baseline)/spread, 0, 100)
		adaptive = adaptiveRawWeight*raw + adaptiveTrendWeight*trend
	}

	window = append(window, raw)
	if len(window) > adaptiveWindow {
		window = window[len(window)-adaptiveWindow:]
	}
	e.history[trackID] = window

	return adaptive
}

// buildContext assembles the explanation payload for one receiver. The
// nearest defender is identified by matching its distance within 1 px of
// the minimum; defenders are visited in ascending id order so the match is
// deterministic.
func (e *Engine) buildContext(receiver TrackedDetection, defenders []TrackedDetection, tracker *Tracker, fps float64) ScoreContext {
	ctx := ScoreContext{
		NearestDefenderDistance: -1,
		SeparationEfficiency:    separationEfficiency(receiver.TrackID, tracker),
		CoverageRadius:          e.CoverageRadius(),
		FrameDiagonal:           e.FrameDiagonal(),
	}

	minDist := math.Inf(1)
	for _, d := range defenders {
		dist := pointDistance(receiver.Center, d.Center)
		if dist < minDist {
			minDist = dist
		}
		if dist < ctx.CoverageRadius {
			ctx.NumNearbyDefenders++
		}
	}
	if math.IsInf(minDist, 1) {
		return ctx
	}
	ctx.NearestDefenderDistance = minDist

	rvx, rvy := 0.0, 0.0
	if receiver.TrackID >= 0 {
		rvx, rvy = tracker.Velocity(receiver.TrackID, fps, e.velocityWindow)
	}
	for _, d := range defenders {
		if math.Abs(pointDistance(receiver.Center, d.Center)-minDist) > 1.0 {
			continue
		}
		if closing, ok := closingSpeed(receiver, d, rvx, rvy, tracker, fps, e.velocityWindow); ok {
			ctx.ClosingSpeed = closing
		}
		break
	}
	return ctx
}

// BestOption returns the highest-scoring identity if its score meets the
// threshold, else (-1, 0). Ties break toward the lowest track id so the
// result is deterministic.
func BestOption(scores map[int]float64, minThreshold float64) (int, float64) {
	if len(scores) == 0 {
		return -1, 0
	}

	ids := make([]int, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	bestID := ids[0]
	bestScore := scores[bestID]
	for _, id := range ids[1:] {
		if scores[id] > bestScore {
			bestID = id
			bestScore = scores[id]
		}
	}
	if bestScore >= minThreshold {
		return bestID, bestScore
	}
	return -1, 0
}

// SummarizeOpenScores computes end-of-run statistics per identity from the
// full per-frame score sequences. teamOf resolves an identity's team and
// may be nil. Std is the population standard deviation.
func SummarizeOpenScores(allScores map[int][]float64, teamOf func(trackID int) (int, bool)) map[string]PlayerSummary {
	summary := make(map[string]PlayerSummary, len(allScores))
	for trackID, scores := range allScores {
		if len(scores) == 0 {
			continue
		}
		teamID := UnassignedTeam
		if teamOf != nil {
			if id, ok := teamOf(trackID); ok {
				teamID = id
			}
		}
		summary[fmt.Sprintf("player_%d", trackID)] = PlayerSummary{
			AvgOpenScore: stat.Mean(scores, nil),
			MaxOpenScore: floats.Max(scores),
			MinOpenScore: floats.Min(scores),
			StdOpenScore: stat.PopStdDev(scores, nil),
			Frames:       len(scores),
			TeamID:       teamID,
		}
	}
	return summary
}

func pointDistance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
