package football

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Grade thresholds on the average OpenScore across all receivers.
const (
	gradeExcellent = 80
	gradeGood      = 60
	gradeAverage   = 40
	gradePoor      = 20
)

// BestOptionEntry describes one of the top receivers by average openness.
type BestOptionEntry struct {
	Receiver     string  `json:"receiver"`
	AvgOpenScore float64 `json:"avg_openscore"`
	MaxOpenScore float64 `json:"max_openscore"`
	Consistency  string  `json:"consistency"`
}

// MissedOpportunity flags a receiver with high peaks but a low average.
type MissedOpportunity struct {
	Receiver      string  `json:"receiver"`
	PeakOpenScore float64 `json:"peak_openscore"`
	AvgOpenScore  float64 `json:"avg_openscore"`
	Note          string  `json:"note"`
}

// KeyMoment marks a frame where a receiver was exceptionally open.
type KeyMoment struct {
	Frame       int     `json:"frame"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	OpenScore   float64 `json:"openscore"`
}

// FeedbackStatistics is the numeric footer of a feedback report.
type FeedbackStatistics struct {
	TotalReceiversTracked    int     `json:"total_receivers_tracked"`
	AvgOpenScoreAllReceivers float64 `json:"avg_openscore_all_receivers"`
	TotalPlayersDetected     int     `json:"total_players_detected"`
}

// Feedback is the quarterback decision-making report derived from a run.
type Feedback struct {
	OverallGrade        string              `json:"overall_grade"`
	OverallScore        float64             `json:"overall_score"`
	Summary             string              `json:"summary"`
	Strengths           []string            `json:"strengths"`
	AreasForImprovement []string            `json:"areas_for_improvement"`
	Recommendations     []string            `json:"recommendations"`
	BestOptions         []BestOptionEntry   `json:"best_options"`
	MissedOpportunities []MissedOpportunity `json:"missed_opportunities"`
	KeyMoments          []KeyMoment         `json:"key_moments"`
	Statistics          FeedbackStatistics  `json:"statistics"`
}

// GenerateFeedback builds the full report from a completed analysis run.
func GenerateFeedback(result *Result) *Feedback {
	grade, score, summary, strengths, weaknesses := analyzeOverall(result.OpenScoreSummary)
	best, missed := analyzeDecisions(result.OpenScoreSummary)

	return &Feedback{
		OverallGrade:        grade,
		OverallScore:        score,
		Summary:             summary,
		Strengths:           strengths,
		AreasForImprovement: weaknesses,
		Recommendations:     recommendations(result.OpenScoreSummary, score),
		BestOptions:         best,
		MissedOpportunities: missed,
		KeyMoments:          keyMoments(result.Frames),
		Statistics: FeedbackStatistics{
			TotalReceiversTracked:    len(result.OpenScoreSummary),
			AvgOpenScoreAllReceivers: score,
			TotalPlayersDetected:     result.TrackingSummary.TotalTracks,
		},
	}
}

// sortedSummaryKeys orders the "player_N" keys by descending average score,
// with the key string as the deterministic tie-break.
func sortedSummaryKeys(summary map[string]PlayerSummary) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := summary[keys[i]].AvgOpenScore, summary[keys[j]].AvgOpenScore
		if a != b {
			return a > b
		}
		return keys[i] < keys[j]
	})
	return keys
}

func receiverName(summaryKey string) string {
	var id int
	if _, err := fmt.Sscanf(summaryKey, "player_%d", &id); err == nil {
		return fmt.Sprintf("Receiver %d", id)
	}
	return fmt.Sprintf("Receiver %s", summaryKey)
}

func analyzeOverall(summary map[string]PlayerSummary) (grade string, score float64, text string, strengths, weaknesses []string) {
	if len(summary) == 0 {
		return "N/A", 0, "No receiver data available for analysis",
			[]string{}, []string{"Insufficient data for analysis"}
	}

	avgScores := make([]float64, 0, len(summary))
	for _, s := range summary {
		avgScores = append(avgScores, s.AvgOpenScore)
	}
	overall := stat.Mean(avgScores, nil)

	switch {
	case overall >= gradeExcellent:
		grade, text = "A", "Excellent decision-making with consistently open receivers"
	case overall >= gradeGood:
		grade, text = "B", "Good decision-making with several quality passing options"
	case overall >= gradeAverage:
		grade, text = "C", "Average decision-making with moderate passing opportunities"
	case overall >= gradePoor:
		grade, text = "D", "Below average decision-making, receivers often covered"
	default:
		grade, text = "F", "Poor decision-making, limited open passing options"
	}

	strengths = []string{}
	weaknesses = []string{}

	veryOpen, covered := 0, 0
	maxScore := math.Inf(-1)
	for _, s := range avgScores {
		if s >= 70 {
			veryOpen++
		}
		if s < 40 {
			covered++
		}
		if s > maxScore {
			maxScore = s
		}
	}
	if float64(veryOpen) > float64(len(avgScores))*0.5 {
		strengths = append(strengths, "Multiple receivers getting separation from defenders")
	}
	if float64(covered) > float64(len(avgScores))*0.5 {
		weaknesses = append(weaknesses, "Majority of receivers struggling to get open")
	}

	spread := stat.PopStdDev(avgScores, nil)
	if spread < 15 {
		strengths = append(strengths, "Consistent receiver performance across all options")
	} else if spread > 30 {
		weaknesses = append(weaknesses, "High variance in receiver openness, need better read progression")
	}

	if maxScore >= 85 {
		strengths = append(strengths, fmt.Sprintf("At least one receiver consistently wide open (OpenScore: %.1f)", maxScore))
	}

	return grade, round1(overall), text, strengths, weaknesses
}

func recommendations(summary map[string]PlayerSummary, avgScore float64) []string {
	var recs []string

	if avgScore < 50 {
		recs = append(recs,
			"Focus on reading defensive coverage pre-snap to identify potential openings",
			"Work with receivers on creating separation earlier in routes")
	}

	if len(summary) > 0 {
		keys := sortedSummaryKeys(summary)
		maxScore := summary[keys[0]].AvgOpenScore
		minScore := summary[keys[len(keys)-1]].AvgOpenScore
		if maxScore-minScore > 40 {
			recs = append(recs, "Large variance in receiver openness detected, prioritize reads to most open receivers")
		}
		for _, k := range keys {
			if summary[k].StdOpenScore > 25 {
				recs = append(recs, fmt.Sprintf(
					"%s shows inconsistent separation, timing and route adjustments may help", receiverName(k)))
				break
			}
		}
	}

	if avgScore >= 60 && avgScore < 80 {
		recs = append(recs, "Good foundation, focus on exploiting highest OpenScore options earlier in progressions")
	}
	if avgScore >= 80 {
		recs = append(recs, "Excellent receiver separation, maintain timing and trust your reads")
	}

	recs = append(recs, "Continue analyzing game film to recognize coverage schemes faster")
	return recs
}

func analyzeDecisions(summary map[string]PlayerSummary) ([]BestOptionEntry, []MissedOpportunity) {
	best := []BestOptionEntry{}
	missed := []MissedOpportunity{}
	if len(summary) == 0 {
		return best, missed
	}

	keys := sortedSummaryKeys(summary)
	for i, k := range keys {
		if i >= 3 {
			break
		}
		s := summary[k]
		consistency := "Low"
		switch {
		case s.StdOpenScore < 15:
			consistency = "High"
		case s.StdOpenScore < 25:
			consistency = "Moderate"
		}
		best = append(best, BestOptionEntry{
			Receiver:     receiverName(k),
			AvgOpenScore: round1(s.AvgOpenScore),
			MaxOpenScore: round1(s.MaxOpenScore),
			Consistency:  consistency,
		})
	}

	for _, k := range keys {
		s := summary[k]
		if s.MaxOpenScore >= 75 && s.AvgOpenScore < 55 {
			missed = append(missed, MissedOpportunity{
				Receiver:      receiverName(k),
				PeakOpenScore: round1(s.MaxOpenScore),
				AvgOpenScore:  round1(s.AvgOpenScore),
				Note:          "Had moments of excellent separation but was covered most of the time",
			})
		}
	}
	return best, missed
}

// keyMoments picks the five highest-scoring moments where some receiver
// crossed an OpenScore of 80.
func keyMoments(frames []FrameRecord) []KeyMoment {
	moments := []KeyMoment{}
	for _, frame := range frames {
		if len(frame.OpenScores) == 0 {
			continue
		}
		bestID, bestScore := -1, math.Inf(-1)
		ids := make([]int, 0, len(frame.OpenScores))
		for id := range frame.OpenScores {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			if frame.OpenScores[id] > bestScore {
				bestID, bestScore = id, frame.OpenScores[id]
			}
		}
		if bestScore >= 80 {
			moments = append(moments, KeyMoment{
				Frame:       frame.FrameIndex,
				Type:        "excellent_opportunity",
				Description: fmt.Sprintf("Receiver %d wide open (OpenScore: %.1f)", bestID, bestScore),
				OpenScore:   round1(bestScore),
			})
		}
	}
	sort.SliceStable(moments, func(i, j int) bool { return moments[i].OpenScore > moments[j].OpenScore })
	if len(moments) > 5 {
		moments = moments[:5]
	}
	return moments
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
