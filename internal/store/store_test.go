package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridiron-data/openscore.report/internal/football"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err, "failed to open store")
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult() *football.Result {
	return &football.Result{
		TotalFrames:     120,
		FPS:             30,
		Duration:        4,
		PlayersDetected: 6,
		OutputPath:      "/tmp/out.mp4",
		OpenScoreSummary: map[string]football.PlayerSummary{
			"player_1": {AvgOpenScore: 72.5, MaxOpenScore: 91, MinOpenScore: 40, StdOpenScore: 12, Frames: 110, TeamID: 0},
			"player_4": {AvgOpenScore: 55, MaxOpenScore: 80, MinOpenScore: 30, StdOpenScore: 18, Frames: 95, TeamID: 0},
		},
	}
}

func TestStore_SaveAndLoadRun(t *testing.T) {
	s := testStore(t)
	result := sampleResult()
	feedback := football.GenerateFeedback(result)

	require.NoError(t, s.SaveRun("run-1", "video.mp4", result, feedback))

	run, err := s.Run("run-1")
	require.NoError(t, err)
	assert.Equal(t, "video.mp4", run.VideoPath)
	assert.Equal(t, "/tmp/out.mp4", run.OutputPath)
	assert.Equal(t, 120, run.TotalFrames)
	assert.Equal(t, 6, run.PlayersDetected)
	assert.Equal(t, feedback.OverallGrade, run.OverallGrade)
	assert.NotEmpty(t, run.FeedbackJSON, "expected serialized feedback")

	players, err := s.PlayerSummaries("run-1")
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, 1, players[0].TrackID, "rows ordered by track id")
	assert.Equal(t, 4, players[1].TrackID)
	assert.Equal(t, 72.5, players[0].AvgOpenScore)
}

func TestStore_SaveRunWithoutFeedback(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.SaveRun("run-2", "video.mp4", sampleResult(), nil))

	run, err := s.Run("run-2")
	require.NoError(t, err)
	assert.Empty(t, run.OverallGrade)
	assert.Empty(t, run.FeedbackJSON)
}

func TestStore_UnknownRun(t *testing.T) {
	s := testStore(t)
	_, err := s.Run("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStore_ListRuns(t *testing.T) {
	s := testStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(id, "video-"+id+".mp4", sampleResult(), nil))
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "limit applies")

	all, err := s.ListRuns(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_DeleteRun(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.SaveRun("run-del", "video.mp4", sampleResult(), nil))
	require.NoError(t, s.DeleteRun("run-del"))

	_, err := s.Run("run-del")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	players, err := s.PlayerSummaries("run-del")
	require.NoError(t, err)
	assert.Empty(t, players, "player rows cascade")
}
