package football

import (
	"math"
	"sort"
	"sync"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackActive  TrackState = "active"  // Associated this frame or recently
	TrackLost    TrackState = "lost"    // Unmatched, inside the grace buffer
	TrackRemoved TrackState = "removed" // Past the grace buffer, id retired
)

// TrackerConfig holds association thresholds for the tracker. These are
// tunable configuration, not semantics: any values that preserve identity
// persistence under brief occlusion are acceptable.
type TrackerConfig struct {
	HighConfThreshold float64 // Detections at/above this drive first-stage association
	LowConfThreshold  float64 // Floor below which detections are discarded entirely
	IoUGate           float64 // Minimum IoU for an association to be accepted
	TrackBuffer       int     // Frames a lost track is kept before removal
	VelocityWindow    int     // Trailing samples used for motion prediction
}

// DefaultTrackerConfig returns the documented default thresholds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		HighConfThreshold: 0.5,
		LowConfThreshold:  0.1,
		IoUGate:           0.3,
		TrackBuffer:       30,
		VelocityWindow:    5,
	}
}

// HistorySample is a single point in a track's position history.
type HistorySample struct {
	FrameIndex int   `json:"frame_index"`
	Center     Point `json:"center"`
	BBox       BBox  `json:"bbox"`
}

// PlayerInfo carries first/last-seen bookkeeping for an identity.
type PlayerInfo struct {
	ClassName string `json:"class_name"`
	FirstSeen int    `json:"first_seen"`
	LastSeen  int    `json:"last_seen"`
}

// TrackingSummary aggregates end-of-run tracking statistics.
type TrackingSummary struct {
	TotalTracks    int            `json:"total_tracks"`
	ActiveTracks   int            `json:"active_tracks"`
	PlayersByClass map[string]int `json:"players_by_class"`
	AvgTrackLength float64        `json:"avg_track_length"`
}

// track is the tracker's internal state for one identity. bbox always holds
// the last measured box; predicted is the extrapolation to the current frame
// and is recomputed from bbox every Update, so a lost track's prediction
// stays linear in the occlusion length instead of compounding.
type track struct {
	id         int
	bbox       BBox    // last measured box
	predicted  BBox    // bbox extrapolated to the current frame
	vx, vy     float64 // per-frame displacement between the last two measurements
	state      TrackState
	lostFrames int
	classID    int
	className  string
	lastFrame  int // frame of the last measurement
}

// Tracker assigns persistent identities to per-frame detections using a
// ByteTrack-style two-stage association: high-confidence detections are
// matched first against motion-predicted track boxes by IoU, then
// low-confidence detections attempt to rescue still-unmatched tracks.
// Identities are never reused once retired.
type Tracker struct {
	config TrackerConfig

	tracks  map[int]*track
	nextID  int
	history map[int][]HistorySample
	info    map[int]PlayerInfo

	mu sync.RWMutex
}

// NewTracker creates a tracker with the given configuration.
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		config:  config,
		tracks:  make(map[int]*track),
		nextID:  1,
		history: make(map[int][]HistorySample),
		info:    make(map[int]PlayerInfo),
	}
}

// Update associates the frame's detections with prior identities and returns
// one TrackedDetection per input detection, in input order. Detections that
// could not be associated carry UnassignedTrackID. This is the only method
// that mutates tracker state; it must be called in strict frame order.
func (t *Tracker) Update(detections []Detection, frameIndex int) []TrackedDetection {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Predict every live track forward to this frame, always from the last
	// measured box.
	for _, tr := range t.tracks {
		gap := frameIndex - tr.lastFrame
		if gap < 1 {
			gap = 1
		}
		tr.predicted = shiftBBox(tr.bbox, tr.vx*float64(gap), tr.vy*float64(gap))
	}

	high := make([]int, 0, len(detections))
	low := make([]int, 0)
	for i, det := range detections {
		switch {
		case det.Confidence >= t.config.HighConfThreshold:
			high = append(high, i)
		case det.Confidence >= t.config.LowConfThreshold:
			low = append(low, i)
		}
	}

	assigned := make(map[int]int) // detection index -> track id
	matched := make(map[int]bool) // track id -> matched this frame

	// Stage 1: high-confidence detections against all live tracks.
	t.associate(detections, high, assigned, matched, frameIndex)

	// Stage 2: low-confidence detections rescue still-unmatched tracks.
	t.associate(detections, low, assigned, matched, frameIndex)

	// Unmatched tracks age toward removal.
	for id, tr := range t.tracks {
		if matched[id] {
			continue
		}
		tr.state = TrackLost
		tr.lostFrames++
		if tr.lostFrames > t.config.TrackBuffer {
			tr.state = TrackRemoved
			delete(t.tracks, id)
		}
	}

	// Unmatched high-confidence detections spawn new identities.
	for _, di := range high {
		if _, ok := assigned[di]; ok {
			continue
		}
		det := detections[di]
		id := t.nextID
		t.nextID++
		t.tracks[id] = &track{
			id:        id,
			bbox:      det.BBox,
			predicted: det.BBox,
			state:     TrackActive,
			classID:   det.ClassID,
			className: det.ClassName,
			lastFrame: frameIndex,
		}
		assigned[di] = id
	}

	out := make([]TrackedDetection, len(detections))
	for i, det := range detections {
		id, ok := assigned[i]
		if !ok {
			id = UnassignedTrackID
		}
		out[i] = TrackedDetection{
			Detection:  det,
			TrackID:    id,
			Center:     det.BBox.Center(),
			FrameIndex: frameIndex,
			TeamID:     UnassignedTeam,
			Role:       RoleUnknown,
		}
		if id == UnassignedTrackID {
			continue
		}

		t.history[id] = append(t.history[id], HistorySample{
			FrameIndex: frameIndex,
			Center:     det.BBox.Center(),
			BBox:       det.BBox,
		})
		if info, seen := t.info[id]; seen {
			info.LastSeen = frameIndex
			t.info[id] = info
		} else {
			t.info[id] = PlayerInfo{ClassName: det.ClassName, FirstSeen: frameIndex, LastSeen: frameIndex}
		}
	}

	return out
}

// associate greedily matches the listed detections to unmatched live tracks.
// For each detection, in input order, the best remaining track by IoU above
// the gate wins; tracks are visited in ascending id order so the result is
// deterministic. Matched tracks are updated in place.
func (t *Tracker) associate(detections []Detection, candidates []int, assigned map[int]int, matched map[int]bool, frameIndex int) {
	ids := make([]int, 0, len(t.tracks))
	for id := range t.tracks {
		if !matched[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	for _, di := range candidates {
		det := detections[di]
		bestID := UnassignedTrackID
		bestIoU := t.config.IoUGate
		for _, id := range ids {
			if matched[id] {
				continue
			}
			if overlap := iou(det.BBox, t.tracks[id].predicted); overlap > bestIoU {
				bestIoU = overlap
				bestID = id
			}
		}
		if bestID == UnassignedTrackID {
			continue
		}

		tr := t.tracks[bestID]
		gap := frameIndex - tr.lastFrame
		if gap < 1 {
			gap = 1
		}
		// Velocity from the last measured position, not the predicted box.
		oldCenter := tr.bbox.Center()
		newCenter := det.BBox.Center()
		tr.vx = (newCenter.X - oldCenter.X) / float64(gap)
		tr.vy = (newCenter.Y - oldCenter.Y) / float64(gap)
		tr.bbox = det.BBox
		tr.predicted = det.BBox
		tr.state = TrackActive
		tr.lostFrames = 0
		tr.lastFrame = frameIndex
		tr.classID = det.ClassID
		tr.className = det.ClassName

		assigned[di] = bestID
		matched[bestID] = true
	}
}

// TrackHistory returns the trailing window samples for an identity,
// oldest-first. Unknown identities yield an empty slice.
func (t *Tracker) TrackHistory(trackID, window int) []HistorySample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trackHistoryLocked(trackID, window)
}

func (t *Tracker) trackHistoryLocked(trackID, window int) []HistorySample {
	history := t.history[trackID]
	if len(history) == 0 {
		return nil
	}
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	out := make([]HistorySample, len(history))
	copy(out, history)
	return out
}

// Velocity returns (vx, vy) in pixels per second: the displacement between
// the oldest and newest sample of the trailing window over elapsed wall
// time. Returns the zero vector when fewer than two samples exist or no
// time elapsed; it never divides by zero.
func (t *Tracker) Velocity(trackID int, fps float64, window int) (float64, float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := t.trackHistoryLocked(trackID, window)
	if len(history) < 2 || fps <= 0 {
		return 0, 0
	}
	oldest := history[0]
	newest := history[len(history)-1]
	dt := float64(newest.FrameIndex-oldest.FrameIndex) / fps
	if dt == 0 {
		return 0, 0
	}
	return (newest.Center.X - oldest.Center.X) / dt, (newest.Center.Y - oldest.Center.Y) / dt
}

// Speed returns the magnitude of Velocity in pixels per second.
func (t *Tracker) Speed(trackID int, fps float64, window int) float64 {
	vx, vy := t.Velocity(trackID, fps, window)
	return math.Hypot(vx, vy)
}

// DistanceBetween returns the Euclidean distance between two identities'
// centers at the given frame, or at their latest samples when frameIndex is
// negative. Returns +Inf when either identity is unknown or has no sample at
// the requested frame; callers must treat +Inf as "unavailable", not as a
// real distance.
func (t *Tracker) DistanceBetween(trackID1, trackID2, frameIndex int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h1 := t.history[trackID1]
	h2 := t.history[trackID2]
	if len(h1) == 0 || len(h2) == 0 {
		return math.Inf(1)
	}

	p1, ok1 := centerAt(h1, frameIndex)
	p2, ok2 := centerAt(h2, frameIndex)
	if !ok1 || !ok2 {
		return math.Inf(1)
	}
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

func centerAt(history []HistorySample, frameIndex int) (Point, bool) {
	if frameIndex < 0 {
		return history[len(history)-1].Center, true
	}
	for _, h := range history {
		if h.FrameIndex == frameIndex {
			return h.Center, true
		}
	}
	return Point{}, false
}

// Info returns the first/last-seen bookkeeping for an identity.
func (t *Tracker) Info(trackID int) (PlayerInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.info[trackID]
	return info, ok
}

// TrackIDs returns all identities ever assigned, ascending.
func (t *Tracker) TrackIDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]int, 0, len(t.info))
	for id := range t.info {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Summary returns end-of-run tracking statistics.
func (t *Tracker) Summary() TrackingSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := TrackingSummary{
		TotalTracks:    len(t.info),
		ActiveTracks:   len(t.tracks),
		PlayersByClass: make(map[string]int),
	}
	totalLen := 0
	for id, info := range t.info {
		summary.PlayersByClass[info.ClassName]++
		totalLen += len(t.history[id])
	}
	if len(t.info) > 0 {
		summary.AvgTrackLength = float64(totalLen) / float64(len(t.info))
	}
	return summary
}

// iou computes intersection-over-union of two boxes.
func iou(a, b BBox) float64 {
	ix1 := math.Max(a[0], b[0])
	iy1 := math.Max(a[1], b[1])
	ix2 := math.Min(a[2], b[2])
	iy2 := math.Min(a[3], b[3])

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func shiftBBox(b BBox, dx, dy float64) BBox {
	return BBox{b[0] + dx, b[1] + dy, b[2] + dx, b[3] + dy}
}
