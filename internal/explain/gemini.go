// Package explain turns scoring output into natural-language analysis. A
// Gemini-backed explainer produces the rich text; a deterministic rule-based
// fallback covers missing API keys and upstream failures, so callers always
// get an explanation.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/gridiron-data/openscore.report/internal/football"
	"github.com/gridiron-data/openscore.report/internal/monitoring"
)

const geminiModel = "gemini-2.5-flash"

// pxPerYard converts pixel distances to rough yard estimates, assuming the
// frame spans roughly one field width (~53.3 yards at 1920 px).
const pxPerYard = 1920.0 / 53.3

// Explainer generates natural-language analysis of a run.
type Explainer interface {
	// ExplainScores returns one explanation per "player_N" summary key.
	ExplainScores(ctx context.Context, summary map[string]football.PlayerSummary, contexts map[int]football.ScoreContext) (map[string]string, error)
	// ExplainRun returns a prose breakdown of the quarterback's performance.
	ExplainRun(ctx context.Context, feedback *football.Feedback) (string, error)
}

// GeminiExplainer backs the Explainer with the Gemini API, degrading to the
// rule-based text on any failure.
type GeminiExplainer struct {
	client *genai.Client
}

// NewGeminiExplainer creates an explainer from the GEMINI_API_KEY
// environment variable.
func NewGeminiExplainer(ctx context.Context) (*GeminiExplainer, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiExplainer{client: client}, nil
}

// ExplainScores asks Gemini for one explanation per receiver in a single
// batch call. On any failure every receiver gets the rule-based text.
func (g *GeminiExplainer) ExplainScores(ctx context.Context, summary map[string]football.PlayerSummary, contexts map[int]football.ScoreContext) (map[string]string, error) {
	fallback := FallbackExplanations(summary, contexts)
	if len(summary) == 0 {
		return fallback, nil
	}

	payload := batchPayload(summary, contexts)
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fallback, nil
	}

	prompt := fmt.Sprintf(`You are an NFL analyst describing receiver separation.

For EACH player below, write a UNIQUE 1-2 sentence explanation of how the
player did or did not get open. Convert pixel distances to yards by dividing
by %.0f.

Rules:
- No markdown
- Natural football language
- Do not call the player by their ID
- Every player must sound different
- Return JSON only, mapping each player key to its explanation

Data:
%s`, pxPerYard, data)

	text, err := g.generate(ctx, prompt)
	if err != nil {
		monitoring.Logf("explain: batch call failed, using fallback: %v", err)
		return fallback, nil
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &parsed); err != nil {
		monitoring.Logf("explain: unparseable batch response, using fallback")
		return fallback, nil
	}
	// Every receiver gets text even if the model skipped one.
	for key, fb := range fallback {
		if explanation, ok := parsed[key]; ok && explanation != "" {
			fallback[key] = explanation
		} else {
			fallback[key] = fb
		}
	}
	return fallback, nil
}

// ExplainRun asks Gemini for a performance paragraph; the rule-based text is
// the failure path.
func (g *GeminiExplainer) ExplainRun(ctx context.Context, feedback *football.Feedback) (string, error) {
	strengths, _ := json.Marshal(feedback.Strengths)
	weaknesses, _ := json.Marshal(feedback.AreasForImprovement)

	prompt := fmt.Sprintf(`You are an expert NFL quarterback coach reviewing film analysis data.

Overall Grade: %s (%.1f/100)
Receivers analyzed: %d
Identified strengths: %s
Identified weaknesses: %s

Write a detailed 3-5 sentence paragraph explaining the quarterback's overall
performance: what the grade means in football terms, whether targets were
getting open or being locked down, and what to focus on next. Use generic
references like "targets" or "pass catchers", never specific receiver
numbers. No markdown.`,
		feedback.OverallGrade, feedback.OverallScore,
		feedback.Statistics.TotalReceiversTracked, strengths, weaknesses)

	text, err := g.generate(ctx, prompt)
	if err != nil {
		monitoring.Logf("explain: run summary call failed, using fallback: %v", err)
		return FallbackRunExplanation(feedback), nil
	}
	return text, nil
}

func (g *GeminiExplainer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, geminiModel,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(0.7)),
			TopP:        genai.Ptr(float32(0.8)),
		})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty model response")
	}
	return text, nil
}

func batchPayload(summary map[string]football.PlayerSummary, contexts map[int]football.ScoreContext) map[string]map[string]float64 {
	payload := make(map[string]map[string]float64, len(summary))
	for key, s := range summary {
		entry := map[string]float64{
			"avg_openscore": s.AvgOpenScore,
			"max_openscore": s.MaxOpenScore,
			"min_openscore": s.MinOpenScore,
			"std_openscore": s.StdOpenScore,
		}
		var trackID int
		if _, err := fmt.Sscanf(key, "player_%d", &trackID); err == nil {
			if ctx, ok := contexts[trackID]; ok {
				entry["nearest_defender_distance"] = ctx.NearestDefenderDistance
				entry["num_nearby_defenders"] = float64(ctx.NumNearbyDefenders)
				entry["closing_speed"] = ctx.ClosingSpeed
				entry["separation_efficiency"] = ctx.SeparationEfficiency
			}
		}
		payload[key] = entry
	}
	return payload
}

func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	var kept []string
	for _, line := range strings.Split(cleaned, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// FallbackExplanations generates the deterministic rule-based explanation
// for every receiver. Safe with nil contexts.
func FallbackExplanations(summary map[string]football.PlayerSummary, contexts map[int]football.ScoreContext) map[string]string {
	out := make(map[string]string, len(summary))
	keys := make([]string, 0, len(summary))
	for key := range summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		s := summary[key]
		var ctx football.ScoreContext
		var trackID int
		if _, err := fmt.Sscanf(key, "player_%d", &trackID); err == nil {
			ctx = contexts[trackID]
		}
		out[key] = fallbackScoreText(s.AvgOpenScore, ctx)
	}
	return out
}

// fallbackScoreText mirrors the score bands used elsewhere: open from 80,
// workable from 60, contested from 40, covered below.
func fallbackScoreText(score float64, ctx football.ScoreContext) string {
	switch {
	case score >= 80:
		if ctx.NumNearbyDefenders == 0 {
			return "Wide open space downfield with clear separation from defenders."
		}
		return "Breaking free with only light coverage nearby."
	case score >= 60:
		if ctx.ClosingSpeed < 0 {
			return "Defender falling back, creating expanding space for the catch."
		}
		return "Moderate separation from coverage with time to make the play."
	case score >= 40:
		if ctx.NumNearbyDefenders >= 2 {
			return "Multiple defenders in the area creating a congested coverage zone."
		}
		return "Tight window with a defender in close proximity."
	default:
		if ctx.ClosingSpeed > 100 {
			return "Defender rapidly approaching in tight man coverage."
		}
		return "Locked down in heavy coverage with very limited throwing window."
	}
}

// FallbackRunExplanation builds the deterministic performance paragraph.
func FallbackRunExplanation(feedback *football.Feedback) string {
	if feedback == nil || feedback.Statistics.TotalReceiversTracked == 0 {
		return "Insufficient data to provide a detailed analysis."
	}

	parts := []string{fmt.Sprintf(
		"The quarterback earned a grade of %s with an overall score of %.1f/100.",
		feedback.OverallGrade, feedback.OverallScore)}

	switch {
	case feedback.OverallScore >= 70:
		parts = append(parts, "Targets were consistently getting open across the field. "+
			"The defense struggled to maintain coverage, creating multiple quality passing windows and scoring opportunities.")
	case feedback.OverallScore >= 50:
		parts = append(parts, "Targets showed moderate separation from defenders. "+
			"The defense provided reasonable resistance, requiring the QB to be selective with reads and identify the most favorable matchups.")
	default:
		parts = append(parts, "The defense dominated coverage across the board, with tight man-to-man and zone coverage limiting options. "+
			"Quick reads and check-downs would have been the safest approach.")
	}
	return strings.Join(parts, " ")
}
