package football

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func summaryOf(avg, max, min, std float64) PlayerSummary {
	return PlayerSummary{
		AvgOpenScore: avg,
		MaxOpenScore: max,
		MinOpenScore: min,
		StdOpenScore: std,
		Frames:       10,
		TeamID:       0,
	}
}

func TestGenerateFeedback_Empty(t *testing.T) {
	fb := GenerateFeedback(&Result{})

	if fb.OverallGrade != "N/A" {
		t.Errorf("expected grade N/A, got %s", fb.OverallGrade)
	}
	if fb.OverallScore != 0 {
		t.Errorf("expected score 0, got %v", fb.OverallScore)
	}
	if len(fb.AreasForImprovement) != 1 {
		t.Errorf("expected the insufficient-data weakness, got %v", fb.AreasForImprovement)
	}
	if len(fb.BestOptions) != 0 || len(fb.MissedOpportunities) != 0 || len(fb.KeyMoments) != 0 {
		t.Error("expected empty decision analysis")
	}
	// The general film-study tip is always present.
	if len(fb.Recommendations) == 0 {
		t.Error("expected at least one recommendation")
	}
}

func TestGenerateFeedback_Grades(t *testing.T) {
	cases := []struct {
		avg   float64
		grade string
	}{
		{85, "A"},
		{80, "A"},
		{65, "B"},
		{45, "C"},
		{25, "D"},
		{10, "F"},
	}
	for _, tc := range cases {
		result := &Result{
			OpenScoreSummary: map[string]PlayerSummary{
				"player_1": summaryOf(tc.avg, tc.avg, tc.avg, 5),
			},
		}
		fb := GenerateFeedback(result)
		if fb.OverallGrade != tc.grade {
			t.Errorf("avg %v: expected grade %s, got %s", tc.avg, tc.grade, fb.OverallGrade)
		}
		if fb.OverallScore != tc.avg {
			t.Errorf("avg %v: expected score %v, got %v", tc.avg, tc.avg, fb.OverallScore)
		}
	}
}

func TestGenerateFeedback_BestOptions(t *testing.T) {
	result := &Result{
		OpenScoreSummary: map[string]PlayerSummary{
			"player_1": summaryOf(82, 95, 60, 10), // high consistency
			"player_2": summaryOf(71, 90, 50, 20), // moderate
			"player_3": summaryOf(55, 80, 30, 30), // low
			"player_4": summaryOf(40, 60, 20, 10), // fourth, cut from top 3
		},
		TrackingSummary: TrackingSummary{TotalTracks: 8},
	}
	fb := GenerateFeedback(result)

	want := []BestOptionEntry{
		{Receiver: "Receiver 1", AvgOpenScore: 82, MaxOpenScore: 95, Consistency: "High"},
		{Receiver: "Receiver 2", AvgOpenScore: 71, MaxOpenScore: 90, Consistency: "Moderate"},
		{Receiver: "Receiver 3", AvgOpenScore: 55, MaxOpenScore: 80, Consistency: "Low"},
	}
	if diff := cmp.Diff(want, fb.BestOptions); diff != "" {
		t.Errorf("best options mismatch (-want +got):\n%s", diff)
	}
	if fb.Statistics.TotalReceiversTracked != 4 || fb.Statistics.TotalPlayersDetected != 8 {
		t.Errorf("unexpected statistics: %+v", fb.Statistics)
	}
}

func TestGenerateFeedback_MissedOpportunities(t *testing.T) {
	result := &Result{
		OpenScoreSummary: map[string]PlayerSummary{
			"player_1": summaryOf(50, 90, 20, 25), // peak 90, avg 50: missed
			"player_2": summaryOf(60, 90, 40, 15), // avg too high
			"player_3": summaryOf(40, 70, 20, 15), // peak too low
		},
	}
	fb := GenerateFeedback(result)

	if len(fb.MissedOpportunities) != 1 {
		t.Fatalf("expected 1 missed opportunity, got %+v", fb.MissedOpportunities)
	}
	if fb.MissedOpportunities[0].Receiver != "Receiver 1" {
		t.Errorf("unexpected receiver: %+v", fb.MissedOpportunities[0])
	}
}

func TestGenerateFeedback_KeyMoments(t *testing.T) {
	frames := []FrameRecord{
		{FrameIndex: 0, OpenScores: map[int]float64{1: 50}},
		{FrameIndex: 1, OpenScores: map[int]float64{1: 92, 2: 85}},
		{FrameIndex: 2, OpenScores: map[int]float64{2: 81}},
		{FrameIndex: 3, OpenScores: map[int]float64{1: 79.9}},
		{FrameIndex: 4, OpenScores: map[int]float64{1: 88}},
		{FrameIndex: 5, OpenScores: map[int]float64{1: 83}},
		{FrameIndex: 6, OpenScores: map[int]float64{1: 86}},
		{FrameIndex: 7, OpenScores: map[int]float64{1: 90}},
		{FrameIndex: 8, OpenScores: map[int]float64{1: 82}},
	}
	fb := GenerateFeedback(&Result{Frames: frames})

	if len(fb.KeyMoments) != 5 {
		t.Fatalf("expected top 5 moments, got %d", len(fb.KeyMoments))
	}
	if fb.KeyMoments[0].Frame != 1 || fb.KeyMoments[0].OpenScore != 92 {
		t.Errorf("unexpected top moment: %+v", fb.KeyMoments[0])
	}
	for i := 1; i < len(fb.KeyMoments); i++ {
		if fb.KeyMoments[i].OpenScore > fb.KeyMoments[i-1].OpenScore {
			t.Errorf("moments not sorted at %d: %+v", i, fb.KeyMoments)
		}
	}
	for _, m := range fb.KeyMoments {
		if m.OpenScore < 80 {
			t.Errorf("sub-threshold moment included: %+v", m)
		}
		if m.Type != "excellent_opportunity" {
			t.Errorf("unexpected moment type: %+v", m)
		}
	}
}

func TestGenerateFeedback_Recommendations(t *testing.T) {
	// Low average pulls in the coverage-reading advice.
	low := GenerateFeedback(&Result{
		OpenScoreSummary: map[string]PlayerSummary{
			"player_1": summaryOf(30, 50, 10, 10),
		},
	})
	if !containsSubstring(low.Recommendations, "pre-snap") {
		t.Errorf("expected pre-snap advice for a low average: %v", low.Recommendations)
	}

	// A wildly inconsistent receiver is called out by number, once.
	inconsistent := GenerateFeedback(&Result{
		OpenScoreSummary: map[string]PlayerSummary{
			"player_7": summaryOf(65, 95, 20, 30),
			"player_8": summaryOf(64, 94, 21, 30),
		},
	})
	calls := 0
	for _, r := range inconsistent.Recommendations {
		if strings.Contains(r, "inconsistent separation") {
			calls++
		}
	}
	if calls != 1 {
		t.Errorf("expected exactly one inconsistency callout, got %d: %v", calls, inconsistent.Recommendations)
	}

	// Every report ends with the general film-study tip.
	last := low.Recommendations[len(low.Recommendations)-1]
	if !strings.Contains(last, "game film") {
		t.Errorf("expected the film-study tip last, got %q", last)
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
