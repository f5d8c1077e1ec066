// Package store persists completed analysis runs and their per-player
// summaries to SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gridiron-data/openscore.report/internal/football"
)

// RunStore is the persistence surface the pipeline depends on.
type RunStore interface {
	SaveRun(id, videoPath string, result *football.Result, feedback *football.Feedback) error
	Run(id string) (*AnalysisRun, error)
	ListRuns(limit int) ([]AnalysisRun, error)
	PlayerSummaries(runID string) ([]PlayerRow, error)
	DeleteRun(id string) error
}

type Store struct {
	*sql.DB
}

var _ RunStore = (*Store)(nil)

// AnalysisRun is one persisted video analysis.
type AnalysisRun struct {
	ID              string    `json:"id"`
	VideoPath       string    `json:"video_path"`
	OutputPath      string    `json:"output_path"`
	CreatedAt       time.Time `json:"created_at"`
	TotalFrames     int       `json:"total_frames"`
	FPS             float64   `json:"fps"`
	Duration        float64   `json:"duration_seconds"`
	PlayersDetected int       `json:"players_detected"`
	OverallGrade    string    `json:"overall_grade"`
	OverallScore    float64   `json:"overall_score"`
	FeedbackJSON    string    `json:"feedback_json,omitempty"`
}

// PlayerRow is one receiver's persisted summary within a run.
type PlayerRow struct {
	RunID        string  `json:"run_id"`
	TrackID      int     `json:"track_id"`
	TeamID       int     `json:"team_id"`
	AvgOpenScore float64 `json:"avg_openscore"`
	MaxOpenScore float64 `json:"max_openscore"`
	MinOpenScore float64 `json:"min_openscore"`
	StdOpenScore float64 `json:"std_openscore"`
	Frames       int     `json:"frames"`
}

// NewStore opens (creating if needed) the run database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id TEXT PRIMARY KEY,
			video_path TEXT NOT NULL,
			output_path TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			total_frames INTEGER,
			fps DOUBLE,
			duration_seconds DOUBLE,
			players_detected INTEGER,
			overall_grade TEXT,
			overall_score DOUBLE,
			feedback_json TEXT
		);
		CREATE TABLE IF NOT EXISTS player_summaries (
			run_id TEXT NOT NULL,
			track_id INTEGER NOT NULL,
			team_id INTEGER,
			avg_openscore DOUBLE,
			max_openscore DOUBLE,
			min_openscore DOUBLE,
			std_openscore DOUBLE,
			frames INTEGER,
			PRIMARY KEY (run_id, track_id),
			FOREIGN KEY (run_id) REFERENCES analysis_runs(id) ON DELETE CASCADE
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db}, nil
}

// SaveRun persists a completed run, its feedback, and every per-player
// summary in one transaction.
func (s *Store) SaveRun(id, videoPath string, result *football.Result, feedback *football.Feedback) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	grade, score := "", 0.0
	feedbackJSON := ""
	if feedback != nil {
		grade = feedback.OverallGrade
		score = feedback.OverallScore
		if data, err := json.Marshal(feedback); err == nil {
			feedbackJSON = string(data)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO analysis_runs
			(id, video_path, output_path, total_frames, fps, duration_seconds,
			 players_detected, overall_grade, overall_score, feedback_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, videoPath, result.OutputPath, result.TotalFrames, result.FPS,
		result.Duration, result.PlayersDetected, grade, score, feedbackJSON)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	keys := make([]string, 0, len(result.OpenScoreSummary))
	for k := range result.OpenScoreSummary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		summary := result.OpenScoreSummary[key]
		var trackID int
		if _, err := fmt.Sscanf(key, "player_%d", &trackID); err != nil {
			continue
		}
		_, err = tx.Exec(`
			INSERT INTO player_summaries
				(run_id, track_id, team_id, avg_openscore, max_openscore,
				 min_openscore, std_openscore, frames)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, trackID, summary.TeamID, summary.AvgOpenScore, summary.MaxOpenScore,
			summary.MinOpenScore, summary.StdOpenScore, summary.Frames)
		if err != nil {
			return fmt.Errorf("failed to insert player summary: %w", err)
		}
	}

	return tx.Commit()
}

// Run returns one persisted run, or sql.ErrNoRows when the id is unknown.
func (s *Store) Run(id string) (*AnalysisRun, error) {
	row := s.QueryRow(`
		SELECT id, video_path, output_path, created_at, total_frames, fps,
		       duration_seconds, players_detected, overall_grade, overall_score, feedback_json
		FROM analysis_runs WHERE id = ?`, id)

	var run AnalysisRun
	err := row.Scan(&run.ID, &run.VideoPath, &run.OutputPath, &run.CreatedAt,
		&run.TotalFrames, &run.FPS, &run.Duration, &run.PlayersDetected,
		&run.OverallGrade, &run.OverallScore, &run.FeedbackJSON)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(`
		SELECT id, video_path, output_path, created_at, total_frames, fps,
		       duration_seconds, players_detected, overall_grade, overall_score, feedback_json
		FROM analysis_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var run AnalysisRun
		if err := rows.Scan(&run.ID, &run.VideoPath, &run.OutputPath, &run.CreatedAt,
			&run.TotalFrames, &run.FPS, &run.Duration, &run.PlayersDetected,
			&run.OverallGrade, &run.OverallScore, &run.FeedbackJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PlayerSummaries returns the per-player rows for a run, ordered by track id.
func (s *Store) PlayerSummaries(runID string) ([]PlayerRow, error) {
	rows, err := s.Query(`
		SELECT run_id, track_id, team_id, avg_openscore, max_openscore,
		       min_openscore, std_openscore, frames
		FROM player_summaries WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query player summaries: %w", err)
	}
	defer rows.Close()

	var players []PlayerRow
	for rows.Next() {
		var p PlayerRow
		if err := rows.Scan(&p.RunID, &p.TrackID, &p.TeamID, &p.AvgOpenScore,
			&p.MaxOpenScore, &p.MinOpenScore, &p.StdOpenScore, &p.Frames); err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// DeleteRun removes a run and its player rows.
func (s *Store) DeleteRun(id string) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM player_summaries WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete player summaries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM analysis_runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}
