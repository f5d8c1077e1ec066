package football

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/gridiron-data/openscore.report/internal/monitoring"
)

// ClassifierConfig holds warm-up and sampling parameters for team
// classification.
type ClassifierConfig struct {
	NumTeams            int // Fixed at 2 for offense/defense footage
	WarmupFrames        int // Frames to accumulate samples before clustering
	MinClusterSamples   int // Per-identity samples required to join clustering
	MinVoteSamples      int // Samples required for a post-warm-up majority vote
	StrictMaskMinPixels int // Qualifying pixels required by the strict mask
	LooseMaskMinPixels  int // Qualifying pixels required by the fallback mask
}

// DefaultClassifierConfig returns the default classification parameters.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		NumTeams:            2,
		WarmupFrames:        30,
		MinClusterSamples:   3,
		MinVoteSamples:      5,
		StrictMaskMinPixels: 20,
		LooseMaskMinPixels:  10,
	}
}

// labColor is a jersey color in CIE Lab (OpenCV 8-bit scaling).
type labColor [3]float64

// kmeansSeed fixes the clustering RNG so team centers are reproducible
// across runs of the same video.
const kmeansSeed = 42

// Fixed visualisation colors, one per team, plus a neutral placeholder for
// identities that have not been classified yet.
var teamColors = [2]color.RGBA{
	{R: 230, G: 57, B: 70, A: 0},  // team 0
	{R: 69, G: 123, B: 157, A: 0}, // team 1
}

var neutralColor = color.RGBA{R: 128, G: 128, B: 128, A: 0}

// TeamColor returns the visualisation color for a team label.
func TeamColor(teamID int) color.RGBA {
	if teamID >= 0 && teamID < len(teamColors) {
		return teamColors[teamID]
	}
	return neutralColor
}

// TeamClassifier assigns persistent identities to one of two teams from
// jersey colors. Colors accumulate per identity until a one-shot k-means
// over per-identity median colors fixes the two team centers; identities
// appearing later are assigned by majority vote of their samples against
// those centers. Once assigned, a team label never changes except through
// ReassignTeam.
type TeamClassifier struct {
	config ClassifierConfig

	assignments map[int]int        // track id -> team label, immutable once set
	samples     map[int][]labColor // retained only until assignment
	classHints  map[int]string     // most specific class name seen per id
	centers     []labColor
	teamsReady  bool
	framesSeen  int
	offenseTeam int // UnassignedTeam until sides are determined

	mu sync.Mutex
}

// NewTeamClassifier creates a classifier with the given configuration.
func NewTeamClassifier(config ClassifierConfig) *TeamClassifier {
	return &TeamClassifier{
		config:      config,
		assignments: make(map[int]int),
		samples:     make(map[int][]labColor),
		classHints:  make(map[int]string),
		offenseTeam: UnassignedTeam,
	}
}

// Classify annotates the frame's tracked detections with team labels, roles
// and visualisation colors, accumulating color samples along the way.
// Extraction failures for one identity never abort the frame.
func (c *TeamClassifier) Classify(frame gocv.Mat, detections []TrackedDetection) []TrackedDetection {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.framesSeen++

	for _, det := range detections {
		if det.TrackID < 0 || det.ClassID == ClassBall {
			continue
		}
		c.hintClass(det.TrackID, det.ClassName)
		if _, assigned := c.assignments[det.TrackID]; assigned {
			continue
		}
		if sample, ok := extractJerseyColor(frame, det.BBox, c.config); ok {
			c.samples[det.TrackID] = append(c.samples[det.TrackID], sample)
		}
	}

	if !c.teamsReady && c.framesSeen >= c.config.WarmupFrames {
		c.tryCluster()
	}
	if c.teamsReady {
		c.voteLateArrivals()
	}

	for i := range detections {
		det := &detections[i]
		if det.TrackID < 0 {
			det.TeamID = UnassignedTeam
			det.TeamColor = neutralColor
			det.Role = RoleUnknown
			continue
		}
		if teamID, ok := c.assignments[det.TrackID]; ok {
			det.TeamID = teamID
			det.TeamColor = TeamColor(teamID)
		} else {
			det.TeamID = UnassignedTeam
			det.TeamColor = neutralColor
		}
		det.Role = c.roleLocked(det.TrackID, det.ClassName)
	}

	return detections
}

// hintClass keeps the most specific class name seen for an identity; a
// generic "player" never overwrites a quarterback/receiver/defender label.
func (c *TeamClassifier) hintClass(trackID int, className string) {
	current, ok := c.classHints[trackID]
	if !ok || current == classNames[ClassPlayer] || current == ClassNameUnknown {
		c.classHints[trackID] = className
	}
}

// tryCluster runs the one-shot 2-means over per-identity median colors.
// Runs at most once: centers are immutable afterwards. On insufficient data
// it simply returns and will be retried on a later frame.
func (c *TeamClassifier) tryCluster() {
	ids := make([]int, 0, len(c.samples))
	for id, samples := range c.samples {
		if len(samples) >= c.config.MinClusterSamples {
			ids = append(ids, id)
		}
	}
	if len(ids) < c.config.NumTeams {
		return
	}
	sort.Ints(ids)

	points := make([]labColor, len(ids))
	for i, id := range ids {
		points[i] = medianColor(c.samples[id])
	}

	centers, labels := kmeans(points, c.config.NumTeams, kmeansSeed)
	if centers == nil {
		monitoring.Logf("teams: clustering over %d identities failed, will retry", len(ids))
		return
	}

	for i, id := range ids {
		c.assignments[id] = labels[i]
		delete(c.samples, id)
	}
	c.centers = centers
	c.teamsReady = true
	c.determineOffense()
	monitoring.Logf("teams: centers fixed after %d frames from %d identities", c.framesSeen, len(ids))
}

// voteLateArrivals assigns identities that missed the clustering pass once
// they have enough samples: each historical sample votes for its nearest
// team center, the most frequent label wins. Ties break toward the first
// label in enumeration order.
func (c *TeamClassifier) voteLateArrivals() {
	ids := make([]int, 0, len(c.samples))
	for id, samples := range c.samples {
		if len(samples) >= c.config.MinVoteSamples {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, assigned := c.assignments[id]; assigned {
			delete(c.samples, id)
			continue
		}
		votes := make([]int, c.config.NumTeams)
		for _, sample := range c.samples[id] {
			votes[c.nearestCenter(sample)]++
		}
		best := 0
		for label := 1; label < len(votes); label++ {
			if votes[label] > votes[best] {
				best = label
			}
		}
		c.assignments[id] = best
		delete(c.samples, id)
	}
}

func (c *TeamClassifier) nearestCenter(sample labColor) int {
	best := 0
	bestDist := math.Inf(1)
	for i, center := range c.centers {
		if d := colorDistance(sample, center); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// determineOffense maps team labels to sides: the team holding more
// quarterback/receiver-class identities is offense. Ties fall to team 0.
func (c *TeamClassifier) determineOffense() {
	counts := make([]int, c.config.NumTeams)
	for id, teamID := range c.assignments {
		switch c.classHints[id] {
		case classNames[ClassQuarterback], classNames[ClassReceiver]:
			counts[teamID]++
		}
	}
	c.offenseTeam = 0
	for teamID := 1; teamID < len(counts); teamID++ {
		if counts[teamID] > counts[c.offenseTeam] {
			c.offenseTeam = teamID
		}
	}
}

// roleLocked resolves the side for an identity. Receiver and quarterback
// classes are offense on sight, defender class is defense; generic players
// take the side of their team once sides are known.
func (c *TeamClassifier) roleLocked(trackID int, className string) Role {
	switch className {
	case classNames[ClassQuarterback], classNames[ClassReceiver]:
		return RoleOffense
	case classNames[ClassDefender]:
		return RoleDefense
	}
	teamID, assigned := c.assignments[trackID]
	if !assigned || c.offenseTeam == UnassignedTeam {
		return RoleUnknown
	}
	if teamID == c.offenseTeam {
		return RoleOffense
	}
	return RoleDefense
}

// ReassignTeam forcibly overwrites an identity's team label. This is the
// operator-correction path; it is the only way an existing assignment may
// change.
func (c *TeamClassifier) ReassignTeam(trackID, teamID int) error {
	if teamID < 0 || teamID >= c.config.NumTeams {
		return fmt.Errorf("team id %d out of range [0,%d)", teamID, c.config.NumTeams)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignments[trackID] = teamID
	delete(c.samples, trackID)
	return nil
}

// Assignment returns the team label for an identity.
func (c *TeamClassifier) Assignment(trackID int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	teamID, ok := c.assignments[trackID]
	return teamID, ok
}

// Assignments returns a copy of all team assignments.
func (c *TeamClassifier) Assignments() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int, len(c.assignments))
	for id, teamID := range c.assignments {
		out[id] = teamID
	}
	return out
}

// TeamStats returns the number of identities per team.
func (c *TeamClassifier) TeamStats() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := make(map[int]int, c.config.NumTeams)
	for teamID := 0; teamID < c.config.NumTeams; teamID++ {
		stats[teamID] = 0
	}
	for _, teamID := range c.assignments {
		stats[teamID]++
	}
	return stats
}

// TeamsReady reports whether the team centers have been fixed.
func (c *TeamClassifier) TeamsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teamsReady
}

// OffenseTeam returns the team label mapped to offense, or UnassignedTeam
// before sides are determined.
func (c *TeamClassifier) OffenseTeam() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offenseTeam
}

// extractJerseyColor crops a torso-focused sub-region of the bounding box
// (skip the head ~20%, the legs ~40%, inset the sides) and returns the
// per-channel median Lab color of the qualifying pixels. The strict HSV
// mask rejects pixels that are too dark, too bright, low-saturation, grass
// green or skin toned; when it leaves too few pixels a brightness-only
// fallback is tried. Returns false when extraction fails for this frame.
func extractJerseyColor(frame gocv.Mat, bbox BBox, config ClassifierConfig) (labColor, bool) {
	if frame.Empty() {
		return labColor{}, false
	}

	w := bbox.Width()
	h := bbox.Height()
	x1 := int(bbox[0] + 0.15*w)
	x2 := int(bbox[2] - 0.15*w)
	y1 := int(bbox[1] + 0.20*h)
	y2 := int(bbox[3] - 0.40*h)

	x1 = clampInt(x1, 0, frame.Cols())
	x2 = clampInt(x2, 0, frame.Cols())
	y1 = clampInt(y1, 0, frame.Rows())
	y2 = clampInt(y2, 0, frame.Rows())
	if x2-x1 < 2 || y2-y1 < 2 {
		return labColor{}, false
	}

	region := frame.Region(image.Rect(x1, y1, x2, y2))
	defer region.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(region, &lab, gocv.ColorBGRToLab)

	strict := make([]labColor, 0, hsv.Rows()*hsv.Cols())
	loose := make([]labColor, 0, hsv.Rows()*hsv.Cols())
	for row := 0; row < hsv.Rows(); row++ {
		for col := 0; col < hsv.Cols(); col++ {
			pix := hsv.GetVecbAt(row, col)
			hue, sat, val := float64(pix[0]), float64(pix[1]), float64(pix[2])

			labPix := lab.GetVecbAt(row, col)
			sample := labColor{float64(labPix[0]), float64(labPix[1]), float64(labPix[2])}

			if val > 30 {
				loose = append(loose, sample)
			}
			if val <= 40 || val >= 220 { // too dark / too bright
				continue
			}
			if sat <= 40 { // background, white field lines
				continue
			}
			if hue >= 35 && hue <= 85 { // grass
				continue
			}
			if hue <= 25 && sat >= 30 && sat <= 150 && val >= 80 { // skin
				continue
			}
			strict = append(strict, sample)
		}
	}

	if len(strict) >= config.StrictMaskMinPixels {
		return medianColor(strict), true
	}
	if len(loose) >= config.LooseMaskMinPixels {
		return medianColor(loose), true
	}
	return labColor{}, false
}

// medianColor returns the per-channel median, which is robust to the
// outlier pixels a mean would absorb.
func medianColor(samples []labColor) labColor {
	var out labColor
	channel := make([]float64, len(samples))
	for ch := 0; ch < 3; ch++ {
		for i, s := range samples {
			channel[i] = s[ch]
		}
		sort.Float64s(channel)
		mid := len(channel) / 2
		if len(channel)%2 == 1 {
			out[ch] = channel[mid]
		} else {
			out[ch] = (channel[mid-1] + channel[mid]) / 2
		}
	}
	return out
}

// kmeans runs seeded Lloyd iterations over the points and returns the
// cluster centers and a label per point. Returns nil centers when there are
// fewer points than clusters.
func kmeans(points []labColor, k int, seed int64) ([]labColor, []int) {
	if len(points) < k {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(seed))
	centers := make([]labColor, k)
	centers[0] = points[rng.Intn(len(points))]
	for ci := 1; ci < k; ci++ {
		// Farthest-point seeding: spreads initial centers without a
		// stochastic kmeans++ pass, keeping runs reproducible.
		farthest := 0
		farthestDist := -1.0
		for i, p := range points {
			nearest := math.Inf(1)
			for _, existing := range centers[:ci] {
				if d := colorDistance(p, existing); d < nearest {
					nearest = d
				}
			}
			if nearest > farthestDist {
				farthestDist = nearest
				farthest = i
			}
		}
		centers[ci] = points[farthest]
	}

	labels := make([]int, len(points))
	for iter := 0; iter < 50; iter++ {
		changed := false
		for i, p := range points {
			best := 0
			bestDist := math.Inf(1)
			for ci, center := range centers {
				if d := colorDistance(p, center); d < bestDist {
					bestDist = d
					best = ci
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}

		sums := make([][3]float64, k)
		counts := make([]int, k)
		for i, p := range points {
			for ch := 0; ch < 3; ch++ {
				sums[labels[i]][ch] += p[ch]
			}
			counts[labels[i]]++
		}
		for ci := 0; ci < k; ci++ {
			if counts[ci] == 0 {
				continue
			}
			for ch := 0; ch < 3; ch++ {
				centers[ci][ch] = sums[ci][ch] / float64(counts[ci])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}
	return centers, labels
}

func colorDistance(a, b labColor) float64 {
	dl := a[0] - b[0]
	da := a[1] - b[1]
	db := a[2] - b[2]
	return math.Sqrt(dl*dl + da*da + db*db)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
