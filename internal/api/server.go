// Package api exposes the video analysis pipeline over HTTP: upload a clip,
// poll its status, then fetch results, feedback, charts and the annotated
// video.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gridiron-data/openscore.report/internal/explain"
	"github.com/gridiron-data/openscore.report/internal/football"
	"github.com/gridiron-data/openscore.report/internal/monitoring"
	"github.com/gridiron-data/openscore.report/internal/store"
	"github.com/gridiron-data/openscore.report/internal/version"
)

// Task statuses reported by the status endpoint.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task is the lifecycle record of one uploaded video.
type Task struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Filename    string     `json:"filename"`
	UploadedAt  time.Time  `json:"uploaded_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`

	Result       *football.Result   `json:"-"`
	Feedback     *football.Feedback `json:"-"`
	Explanations map[string]string  `json:"-"`

	processor *football.Processor
	cancel    context.CancelFunc
}

// ServerConfig wires the server's collaborators. Store and Explainer are
// optional; a nil Store skips persistence and a nil Explainer falls back to
// the deterministic explanation text.
type ServerConfig struct {
	UploadDir   string
	OutputDir   string
	NewDetector func() (football.Detector, error)
	Processor   football.ProcessorConfig
	Store       *store.Store
	Explainer   explain.Explainer
}

// Server owns the task registry and the HTTP surface around the pipeline.
type Server struct {
	config ServerConfig

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewServer creates a server and its working directories.
func NewServer(config ServerConfig) (*Server, error) {
	for _, dir := range []string{config.UploadDir, config.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if config.NewDetector == nil {
		return nil, fmt.Errorf("detector factory is required")
	}
	return &Server{
		config: config,
		tasks:  make(map[string]*Task),
	}, nil
}

// Router builds the gin engine with every API route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.GET("/", s.handleHealth)

	apiRoutes := r.Group("/api")
	apiRoutes.POST("/upload", s.handleUpload)
	apiRoutes.GET("/status/:id", s.handleStatus)
	apiRoutes.GET("/results/:id", s.handleResults)
	apiRoutes.GET("/download/:id", s.handleDownload)
	apiRoutes.GET("/chart/:id", s.handleChart)
	apiRoutes.POST("/reassign/:id", s.handleReassign)
	apiRoutes.DELETE("/task/:id", s.handleDelete)
	apiRoutes.GET("/runs", s.handleRuns)

	return r
}

func (s *Server) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "football video analysis",
		"version": version.Version,
	})
}

func (s *Server) handleUpload(ctx *gin.Context) {
	file, header, err := ctx.Request.FormFile("video")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "missing video form file"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".mp4") {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "only MP4 files are allowed"})
		return
	}

	taskID := uuid.NewString()
	videoPath := filepath.Join(s.config.UploadDir, taskID+".mp4")

	dst, err := os.Create(videoPath)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(videoPath)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}
	dst.Close()

	monitoring.Logf("api: upload %s (%d bytes) as task %s", header.Filename, header.Size, taskID)

	runCtx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:         taskID,
		Status:     StatusQueued,
		Filename:   header.Filename,
		UploadedAt: time.Now(),
		Message:    "Video uploaded successfully, processing will begin shortly",
		cancel:     cancel,
	}
	s.mu.Lock()
	s.tasks[taskID] = task
	s.mu.Unlock()

	go s.processTask(runCtx, task, videoPath)

	ctx.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"status":  StatusQueued,
		"message": "Video uploaded successfully and queued for processing",
	})
}

// processTask runs the pipeline for one upload in the background and folds
// the outcome back into the task record.
func (s *Server) processTask(ctx context.Context, task *Task, videoPath string) {
	s.updateTask(task, func(t *Task) {
		t.Status = StatusProcessing
		t.Message = "Processing video..."
	})

	detector, err := s.config.NewDetector()
	if err != nil {
		s.failTask(task, fmt.Errorf("create detector: %w", err))
		return
	}
	if closer, ok := detector.(io.Closer); ok {
		defer closer.Close()
	}

	processor := football.NewProcessor(detector, s.config.Processor)
	processor.SetProgress(func(frameIndex, totalFrames int) {
		if totalFrames <= 0 {
			return
		}
		progress := frameIndex * 100 / totalFrames
		s.updateTask(task, func(t *Task) { t.Progress = progress })
	})

	outputPath := filepath.Join(s.config.OutputDir, task.ID+"_annotated.mp4")
	result, err := processor.Process(ctx, videoPath, outputPath)
	if err != nil {
		s.failTask(task, err)
		return
	}

	s.updateTask(task, func(t *Task) { t.Message = "Generating feedback..." })
	feedback := football.GenerateFeedback(result)

	explanations := explain.FallbackExplanations(result.OpenScoreSummary, result.Contexts)
	if s.config.Explainer != nil {
		if out, err := s.config.Explainer.ExplainScores(ctx, result.OpenScoreSummary, result.Contexts); err == nil {
			explanations = out
		}
	}

	if s.config.Store != nil {
		if err := s.config.Store.SaveRun(task.ID, task.Filename, result, feedback); err != nil {
			monitoring.Logf("api: persist run %s failed: %v", task.ID, err)
		}
	}

	now := time.Now()
	s.updateTask(task, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.Message = "Processing completed successfully"
		t.CompletedAt = &now
		t.Result = result
		t.Feedback = feedback
		t.Explanations = explanations
		t.processor = processor
	})
	monitoring.Logf("api: task %s completed, %d frames", task.ID, result.TotalFrames)
}

func (s *Server) updateTask(task *Task, f func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(task)
}

func (s *Server) failTask(task *Task, err error) {
	monitoring.Logf("api: task %s failed: %v", task.ID, err)
	s.updateTask(task, func(t *Task) {
		t.Status = StatusFailed
		t.Message = fmt.Sprintf("Processing failed: %v", err)
		t.Error = err.Error()
	})
}

func (s *Server) task(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	return task, ok
}

func (s *Server) handleStatus(ctx *gin.Context) {
	task, ok := s.task(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx.JSON(http.StatusOK, gin.H{
		"task_id":      task.ID,
		"status":       task.Status,
		"progress":     task.Progress,
		"message":      task.Message,
		"uploaded_at":  task.UploadedAt,
		"completed_at": task.CompletedAt,
	})
}

func (s *Server) handleResults(ctx *gin.Context) {
	task, ok := s.task(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Status != StatusCompleted {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("task is not completed yet, current status: %s", task.Status),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"task_id": task.ID,
		"results": gin.H{
			"total_frames":     task.Result.TotalFrames,
			"fps":              task.Result.FPS,
			"duration":         task.Result.Duration,
			"players_detected": task.Result.PlayersDetected,
			"tracking_data":    task.Result.TrackingSummary,
			"openscore_data":   task.Result.OpenScoreSummary,
			"score_contexts":   task.Result.Contexts,
			"explanations":     task.Explanations,
			"feedback":         task.Feedback,
			"output_video":     task.Result.OutputPath,
		},
	})
}

func (s *Server) handleDownload(ctx *gin.Context) {
	task, ok := s.task(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	s.mu.Lock()
	completed := task.Status == StatusCompleted
	var outputPath, filename string
	if completed {
		outputPath = task.Result.OutputPath
		filename = "analyzed_" + task.Filename
	}
	s.mu.Unlock()

	if !completed {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "video processing not completed yet"})
		return
	}
	if _, err := os.Stat(outputPath); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "output video not found"})
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	ctx.Header("Content-Type", "video/mp4")
	ctx.File(outputPath)
}

func (s *Server) handleChart(ctx *gin.Context) {
	task, ok := s.task(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	s.mu.Lock()
	result := task.Result
	completed := task.Status == StatusCompleted
	s.mu.Unlock()

	if !completed {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "video processing not completed yet"})
		return
	}
	ctx.Header("Content-Type", "text/html; charset=utf-8")
	if err := football.RenderScoreChart(result, ctx.Writer); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to render chart: %v", err)})
	}
}

type reassignRequest struct {
	TrackID int `json:"track_id"`
	TeamID  int `json:"team_id"`
}

// handleReassign is the operator-correction path: it overrides a player's
// team label on a completed task and patches the summary to match.
func (s *Server) handleReassign(ctx *gin.Context) {
	task, ok := s.task(ctx.Param("id"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	var req reassignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if req.TrackID < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "track_id must be non-negative"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Status != StatusCompleted {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "video processing not completed yet"})
		return
	}
	if err := task.processor.Classifier().ReassignTeam(req.TrackID, req.TeamID); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := fmt.Sprintf("player_%d", req.TrackID)
	if summary, ok := task.Result.OpenScoreSummary[key]; ok {
		summary.TeamID = req.TeamID
		task.Result.OpenScoreSummary[key] = summary
	}
	monitoring.Logf("api: task %s player %d reassigned to team %d", task.ID, req.TrackID, req.TeamID)
	ctx.JSON(http.StatusOK, gin.H{"message": "team reassigned", "track_id": req.TrackID, "team_id": req.TeamID})
}

func (s *Server) handleDelete(ctx *gin.Context) {
	id := ctx.Param("id")
	s.mu.Lock()
	task, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	if task.cancel != nil {
		task.cancel()
	}
	os.Remove(filepath.Join(s.config.UploadDir, id+".mp4"))
	os.Remove(filepath.Join(s.config.OutputDir, id+"_annotated.mp4"))

	ctx.JSON(http.StatusOK, gin.H{"message": "task deleted successfully"})
}

// handleRuns lists persisted runs; it requires a configured store.
func (s *Server) handleRuns(ctx *gin.Context) {
	if s.config.Store == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "run store not configured"})
		return
	}
	runs, err := s.config.Store.ListRuns(50)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to list runs: %v", err)})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"runs": runs})
}
