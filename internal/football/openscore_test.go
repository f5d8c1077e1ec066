package football

import (
	"fmt"
	"math"
	"testing"
)

func trackedAt(id int, x, y float64, className string, role Role) TrackedDetection {
	size := 80.0
	return TrackedDetection{
		Detection: Detection{
			BBox:       BBox{x - size/2, y - size/2, x + size/2, y + size/2},
			Confidence: 0.9,
			ClassName:  className,
		},
		TrackID: id,
		Center:  Point{X: x, Y: y},
		Role:    role,
	}
}

func TestEngine_Geometry(t *testing.T) {
	e := NewEngine(1920, 1080)
	if got := e.FrameDiagonal(); math.Abs(got-math.Hypot(1920, 1080)) > 1e-9 {
		t.Errorf("unexpected diagonal %v", got)
	}
	if got := e.CoverageRadius(); math.Abs(got-1080*0.15) > 1e-9 {
		t.Errorf("unexpected coverage radius %v", got)
	}
}

func TestEngine_ScoreBounded(t *testing.T) {
	e := NewEngine(1920, 1080)
	tracker := NewTracker(DefaultTrackerConfig())
	receiver := trackedAt(1, 500, 500, "receiver", RoleOffense)

	cases := []struct {
		name      string
		defenders []TrackedDetection
	}{
		{"no defenders", nil},
		{"defender on top", []TrackedDetection{trackedAt(2, 500, 500, "defender", RoleDefense)}},
		{"defender adjacent", []TrackedDetection{trackedAt(2, 520, 500, "defender", RoleDefense)}},
		{"defender far", []TrackedDetection{trackedAt(2, 1900, 1000, "defender", RoleDefense)}},
		{"crowd", []TrackedDetection{
			trackedAt(2, 520, 500, "defender", RoleDefense),
			trackedAt(3, 480, 520, "defender", RoleDefense),
			trackedAt(4, 500, 540, "defender", RoleDefense),
		}},
	}
	for _, tc := range cases {
		score := e.CalculateOpenScore(receiver, tc.defenders, tracker, 30)
		if score < 0 || score > 100 {
			t.Errorf("%s: score %v out of [0,100]", tc.name, score)
		}
	}
}

func TestEngine_NoDefenderFallback(t *testing.T) {
	e := NewEngine(1920, 1080)
	tracker := NewTracker(DefaultTrackerConfig())

	// With no history the separation component is neutral (50), so the
	// fallback is exactly 35 + 0.5*50.
	receiver := trackedAt(1, 500, 500, "receiver", RoleOffense)
	if score := e.CalculateOpenScore(receiver, nil, tracker, 30); math.Abs(score-60) > 1e-9 {
		t.Errorf("expected fallback 60 with neutral separation, got %v", score)
	}

	// A perfectly straight route pushes separation to 100; the fallback
	// still never claims perfect openness.
	for frame := 0; frame < 10; frame++ {
		tracker.Update([]Detection{playerDet(100+float64(frame)*10, 500, 80, 0.9)}, frame)
	}
	id := tracker.TrackIDs()[0]
	straight := trackedAt(id, 230, 540, "receiver", RoleOffense)
	score := e.CalculateOpenScore(straight, nil, tracker, 30)
	if math.Abs(score-85) > 1e-9 {
		t.Errorf("expected capped fallback 85 for a straight route, got %v", score)
	}
}

func TestEngine_DistanceMonotonic(t *testing.T) {
	e := NewEngine(1920, 1080)
	receiver := trackedAt(1, 100, 100, "receiver", RoleOffense)

	near := e.distanceScore(receiver, []TrackedDetection{trackedAt(2, 150, 100, "defender", RoleDefense)})
	far := e.distanceScore(receiver, []TrackedDetection{trackedAt(2, 900, 100, "defender", RoleDefense)})
	if near >= far {
		t.Errorf("distance score must grow with separation: near=%v far=%v", near, far)
	}
	if contact := e.distanceScore(receiver, []TrackedDetection{trackedAt(2, 100, 100, "defender", RoleDefense)}); contact != 0 {
		t.Errorf("contact must score 0, got %v", contact)
	}
}

func TestEngine_CoverageSteps(t *testing.T) {
	e := NewEngine(1000, 1000) // radius 150
	receiver := trackedAt(1, 500, 500, "receiver", RoleOffense)

	inside := func(id int, dx float64) TrackedDetection {
		return trackedAt(id, 500+dx, 500, "defender", RoleDefense)
	}

	cases := []struct {
		defenders []TrackedDetection
		want      float64
	}{
		{nil, 100},
		{[]TrackedDetection{inside(2, 500)}, 100}, // outside the radius
		{[]TrackedDetection{inside(2, 100)}, 70},
		{[]TrackedDetection{inside(2, 100), inside(3, -100)}, 40},
		{[]TrackedDetection{inside(2, 100), inside(3, -100), inside(4, 50)}, 20},
		{[]TrackedDetection{inside(2, 100), inside(3, -100), inside(4, 50), inside(5, -50)}, 20},
	}
	for i, tc := range cases {
		if got := e.coverageScore(receiver, tc.defenders); got != tc.want {
			t.Errorf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestEngine_VelocityScoreDirection(t *testing.T) {
	e := NewEngine(1920, 1080)

	// Closing defender: moving right toward a static receiver on its right.
	closing := NewTracker(DefaultTrackerConfig())
	for frame := 0; frame < 6; frame++ {
		closing.Update([]Detection{
			playerDet(460, 460, 80, 0.9),                  // receiver, static, center (500,500)
			playerDet(100+float64(frame)*10, 460, 80, 0.9), // defender
		}, frame)
	}
	ids := closing.TrackIDs()
	receiver := trackedAt(ids[0], 500, 500, "receiver", RoleOffense)
	defender := trackedAt(ids[1], 190, 500, "defender", RoleDefense)
	closingScore := e.velocityScore(receiver, []TrackedDetection{defender}, closing, 30)

	// Retreating defender: moving left, away from the same receiver.
	retreating := NewTracker(DefaultTrackerConfig())
	for frame := 0; frame < 6; frame++ {
		retreating.Update([]Detection{
			playerDet(460, 460, 80, 0.9),
			playerDet(150-float64(frame)*10, 460, 80, 0.9),
		}, frame)
	}
	ids = retreating.TrackIDs()
	receiver = trackedAt(ids[0], 500, 500, "receiver", RoleOffense)
	defender = trackedAt(ids[1], 140, 500, "defender", RoleDefense)
	retreatScore := e.velocityScore(receiver, []TrackedDetection{defender}, retreating, 30)

	if closingScore >= retreatScore {
		t.Errorf("closing defender must score worse: closing=%v retreating=%v", closingScore, retreatScore)
	}

	// No identified defender is neutral.
	anon := trackedAt(UnassignedTrackID, 190, 500, "defender", RoleDefense)
	if got := e.velocityScore(receiver, []TrackedDetection{anon}, retreating, 30); got != neutralScore {
		t.Errorf("expected neutral score without defender identity, got %v", got)
	}
}

func TestEngine_AdaptiveScore(t *testing.T) {
	e := NewEngine(1920, 1080)

	// Raw passthrough until the window has enough samples.
	for i := 0; i < adaptiveMinSamples; i++ {
		if got := e.adaptiveScore(1, 80); got != 80 {
			t.Fatalf("sample %d: expected raw passthrough 80, got %v", i, got)
		}
	}

	// A constant signal settles at the fixed blend of raw and neutral trend.
	want := adaptiveRawWeight*80 + adaptiveTrendWeight*50
	for i := 0; i < 30; i++ {
		if got := e.adaptiveScore(1, 80); math.Abs(got-want) > 1e-9 {
			t.Fatalf("iteration %d: expected %v, got %v", i, want, got)
		}
	}

	// The trailing window stays bounded.
	if n := len(e.history[1]); n != adaptiveWindow {
		t.Errorf("expected window capped at %d, got %d", adaptiveWindow, n)
	}

	// A sudden spike scores above the settled value but stays bounded.
	spike := e.adaptiveScore(1, 100)
	if spike <= want || spike > 100 {
		t.Errorf("spike should land in (%v,100], got %v", want, spike)
	}
}

func TestEngine_FrameScoresRoleSelection(t *testing.T) {
	e := NewEngine(1920, 1080)
	tracker := NewTracker(DefaultTrackerConfig())

	dets := []TrackedDetection{
		trackedAt(1, 300, 300, "receiver", RoleOffense),
		trackedAt(2, 400, 300, "quarterback", RoleOffense), // not a scored class
		trackedAt(3, 600, 300, "defender", RoleDefense),
		trackedAt(4, 700, 300, "player", RoleOffense),
		{Detection: Detection{ClassID: ClassBall, ClassName: "ball"}, TrackID: 5, Role: RoleUnknown},
		trackedAt(UnassignedTrackID, 100, 100, "receiver", RoleOffense),
	}

	scores := e.FrameOpenScores(dets, tracker, 30)
	if _, ok := scores[1]; !ok {
		t.Error("offense receiver must be scored")
	}
	if _, ok := scores[4]; !ok {
		t.Error("offense generic player must be scored")
	}
	if _, ok := scores[2]; ok {
		t.Error("quarterback must not be scored")
	}
	if _, ok := scores[3]; ok {
		t.Error("defender must not be scored")
	}
	if _, ok := scores[5]; ok {
		t.Error("ball must not be scored")
	}
	if len(scores) != 2 {
		t.Errorf("expected 2 scored identities, got %v", scores)
	}
}

func TestEngine_FrameScoresProvisionalDefenders(t *testing.T) {
	e := NewEngine(1920, 1080)
	tracker := NewTracker(DefaultTrackerConfig())

	// No defense-side labels yet: unknown-role identities stand in, so the
	// nearby unknown drags the receiver's score below a clean field would.
	crowded := []TrackedDetection{
		trackedAt(1, 300, 300, "receiver", RoleOffense),
		trackedAt(2, 320, 300, "player", RoleUnknown),
	}
	clean := []TrackedDetection{
		trackedAt(1, 300, 300, "receiver", RoleOffense),
	}

	crowdedScore := e.FrameOpenScores(crowded, tracker, 30)[1]
	e2 := NewEngine(1920, 1080)
	cleanScore := e2.FrameOpenScores(clean, tracker, 30)[1]
	if crowdedScore >= cleanScore {
		t.Errorf("nearby unknown should depress the score: crowded=%v clean=%v", crowdedScore, cleanScore)
	}
}

func TestEngine_ScoreContext(t *testing.T) {
	e := NewEngine(1000, 1000)
	tracker := NewTracker(DefaultTrackerConfig())

	dets := []TrackedDetection{
		trackedAt(1, 500, 500, "receiver", RoleOffense),
		trackedAt(2, 600, 500, "defender", RoleDefense), // nearest, inside radius
		trackedAt(3, 900, 500, "defender", RoleDefense),
	}
	_, contexts := e.FrameOpenScoresWithContext(dets, tracker, 30)

	ctx, ok := contexts[1]
	if !ok {
		t.Fatal("expected context for receiver 1")
	}
	if math.Abs(ctx.NearestDefenderDistance-100) > 1e-9 {
		t.Errorf("expected nearest distance 100, got %v", ctx.NearestDefenderDistance)
	}
	if ctx.NumNearbyDefenders != 1 {
		t.Errorf("expected 1 nearby defender, got %d", ctx.NumNearbyDefenders)
	}
	if ctx.CoverageRadius != 150 {
		t.Errorf("expected coverage radius 150, got %v", ctx.CoverageRadius)
	}

	// No defenders at all: the sentinel distance is -1, not infinity.
	e2 := NewEngine(1000, 1000)
	_, contexts = e2.FrameOpenScoresWithContext(dets[:1], tracker, 30)
	if ctx := contexts[1]; ctx.NearestDefenderDistance != -1 {
		t.Errorf("expected sentinel -1, got %v", ctx.NearestDefenderDistance)
	}
}

func TestBestOption(t *testing.T) {
	if id, score := BestOption(nil, 60); id != -1 || score != 0 {
		t.Errorf("empty scores: expected (-1,0), got (%d,%v)", id, score)
	}
	if id, _ := BestOption(map[int]float64{1: 50, 2: 59.9}, 60); id != -1 {
		t.Errorf("below threshold: expected -1, got %d", id)
	}
	if id, score := BestOption(map[int]float64{1: 50, 2: 75, 3: 62}, 60); id != 2 || score != 75 {
		t.Errorf("expected (2,75), got (%d,%v)", id, score)
	}
	// Exact tie breaks toward the lowest id.
	if id, _ := BestOption(map[int]float64{7: 80, 3: 80, 9: 80}, 60); id != 3 {
		t.Errorf("tie: expected 3, got %d", id)
	}
	// Threshold is inclusive.
	if id, _ := BestOption(map[int]float64{4: 60}, 60); id != 4 {
		t.Errorf("inclusive threshold: expected 4, got %d", id)
	}
}

func TestSummarizeOpenScores(t *testing.T) {
	all := map[int][]float64{
		1: {40, 60, 80},
		2: {70},
		3: {},
	}
	teams := map[int]int{1: 0}
	summary := SummarizeOpenScores(all, func(id int) (int, bool) {
		team, ok := teams[id]
		return team, ok
	})

	s1, ok := summary["player_1"]
	if !ok {
		t.Fatalf("missing player_1 in %v", summary)
	}
	if math.Abs(s1.AvgOpenScore-60) > 1e-9 || s1.MaxOpenScore != 80 || s1.MinOpenScore != 40 {
		t.Errorf("unexpected stats: %+v", s1)
	}
	// Population std of {40,60,80}.
	if math.Abs(s1.StdOpenScore-math.Sqrt(800.0/3.0)) > 1e-9 {
		t.Errorf("unexpected std %v", s1.StdOpenScore)
	}
	if s1.Frames != 3 || s1.TeamID != 0 {
		t.Errorf("unexpected bookkeeping: %+v", s1)
	}

	if s2 := summary["player_2"]; s2.StdOpenScore != 0 || s2.TeamID != UnassignedTeam {
		t.Errorf("unexpected single-sample summary: %+v", s2)
	}
	if _, ok := summary["player_3"]; ok {
		t.Error("empty score sequence must be omitted")
	}
}

func TestEngine_EndToEndSeparation(t *testing.T) {
	e := NewEngine(1920, 1080)
	tracker := NewTracker(DefaultTrackerConfig())

	// A receiver sprinting right at constant velocity away from a static
	// defender. The tracker sees five frames before scoring starts so
	// velocity and route history are populated from the first score on.
	detectionsAt := func(frame int) []Detection {
		return []Detection{
			playerDet(150+float64(frame)*44, 450, 100, 0.9), // receiver
			playerDet(150, 750, 100, 0.9),                   // defender
		}
	}

	for frame := 0; frame < 5; frame++ {
		tracker.Update(detectionsAt(frame), frame)
	}

	var (
		receiverID int
		scores     []float64
		lastScores map[int]float64
	)
	for frame := 5; frame < 20; frame++ {
		tracked := tracker.Update(detectionsAt(frame), frame)
		tracked[0].Role = RoleOffense
		tracked[0].ClassName = "receiver"
		tracked[1].Role = RoleDefense
		tracked[1].ClassName = "defender"
		receiverID = tracked[0].TrackID

		lastScores = e.FrameOpenScores(tracked, tracker, 30)
		score, ok := lastScores[receiverID]
		if !ok {
			t.Fatalf("frame %d: receiver not scored", frame)
		}
		if score < 0 || score > 100 {
			t.Fatalf("frame %d: score %v out of range", frame, score)
		}
		scores = append(scores, score)
	}

	// Once the adaptive window is primed the score is non-decreasing for
	// the whole remainder of the pull-away.
	steady := scores[5:]
	for i := 1; i < len(steady); i++ {
		if steady[i] < steady[i-1] {
			t.Errorf("score dipped while pulling away: frame %d %v -> frame %d %v",
				9+i, steady[i-1], 10+i, steady[i])
		}
	}

	summary := SummarizeOpenScores(map[int][]float64{receiverID: scores}, nil)
	s, ok := summary[fmt.Sprintf("player_%d", receiverID)]
	if !ok {
		t.Fatalf("missing receiver summary in %v", summary)
	}
	if s.MaxOpenScore < s.AvgOpenScore || s.AvgOpenScore < s.MinOpenScore {
		t.Errorf("summary ordering broken: max=%v avg=%v min=%v",
			s.MaxOpenScore, s.AvgOpenScore, s.MinOpenScore)
	}
	if s.AvgOpenScore <= DefaultBestOptionThreshold {
		t.Fatalf("expected average above %v, got %v", DefaultBestOptionThreshold, s.AvgOpenScore)
	}

	id, best := BestOption(lastScores, DefaultBestOptionThreshold)
	if id != receiverID {
		t.Errorf("expected best option %d, got %d", receiverID, id)
	}
	if best < DefaultBestOptionThreshold {
		t.Errorf("best option score %v below threshold", best)
	}
}

func TestEngine_VelocityWindowConfigurable(t *testing.T) {
	tracker := NewTracker(DefaultTrackerConfig())

	// Receiver parked; the defender idles for four frames, then breaks
	// toward him at 20 px/frame. A short window sees only the burst, a
	// longer one averages the idle frames in.
	var tracked []TrackedDetection
	for frame := 0; frame < 6; frame++ {
		dx := 0.0
		if frame >= 4 {
			dx = float64(frame-3) * 20
		}
		tracked = tracker.Update([]Detection{
			playerDet(160, 160, 80, 0.9),
			playerDet(800-dx, 160, 80, 0.9),
		}, frame)
	}
	receiver, defender := tracked[0], tracked[1]
	defenders := []TrackedDetection{defender}

	wide := NewEngine(1920, 1080)
	narrow := NewEngine(1920, 1080)
	narrow.SetVelocityWindow(2)

	// Window 5: 40 px over 4 frames at 30 fps closes at 300 px/s -> 20.
	if got := wide.velocityScore(receiver, defenders, tracker, 30); math.Abs(got-20) > 1e-9 {
		t.Errorf("default window: expected velocity score 20, got %v", got)
	}
	// Window 2: 20 px in 1 frame closes at 600 px/s, past the map range.
	if got := narrow.velocityScore(receiver, defenders, tracker, 30); got != 0 {
		t.Errorf("window 2: expected velocity score 0, got %v", got)
	}

	// Windows that cannot yield a velocity are rejected.
	narrow.SetVelocityWindow(1)
	if narrow.velocityWindow != 2 {
		t.Errorf("window 1 must be ignored, got %d", narrow.velocityWindow)
	}
}
