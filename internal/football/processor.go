package football

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/gridiron-data/openscore.report/internal/monitoring"
)

// progressInterval is how often (in frames) the progress sink is invoked.
const progressInterval = 10

// FrameRecord is the per-frame analysis output retained in the result.
type FrameRecord struct {
	FrameIndex int                `json:"frame_index"`
	Detections []TrackedDetection `json:"detections"`
	OpenScores map[int]float64    `json:"openscores"`
}

// Result is the complete output of one video analysis run.
type Result struct {
	TotalFrames      int                      `json:"total_frames"`
	FPS              float64                  `json:"fps"`
	Duration         float64                  `json:"duration_seconds"`
	PlayersDetected  int                      `json:"players_detected"`
	Frames           []FrameRecord            `json:"frames,omitempty"`
	OpenScoreSummary map[string]PlayerSummary `json:"openscore_summary"`
	TrackingSummary  TrackingSummary          `json:"tracking_summary"`
	Contexts         map[int]ScoreContext     `json:"score_contexts,omitempty"`
	OutputPath       string                   `json:"output_path,omitempty"`
	Elapsed          time.Duration            `json:"-"`
}

// ProgressFunc receives periodic progress updates during processing.
// Implementations must not block; panics are recovered and logged.
type ProgressFunc func(frameIndex, totalFrames int)

// ProcessorConfig bundles the tunables of the full pipeline.
type ProcessorConfig struct {
	Tracker    TrackerConfig
	Classifier ClassifierConfig
	// KeepFrames controls whether per-frame records are retained in the
	// result. Large videos produce large results; the HTTP layer keeps
	// them, batch summaries may not need them.
	KeepFrames bool
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Tracker:    DefaultTrackerConfig(),
		Classifier: DefaultClassifierConfig(),
		KeepFrames: true,
	}
}

// Processor owns the per-video pipeline state: detector, tracker, team
// classifier and scoring engine. A Processor analyzes one video per call
// and is not safe for concurrent use; create one per video.
type Processor struct {
	config     ProcessorConfig
	detector   Detector
	tracker    *Tracker
	classifier *TeamClassifier
	engine     *Engine
	progress   ProgressFunc
}

// NewProcessor creates a processor around the given detector.
func NewProcessor(detector Detector, config ProcessorConfig) *Processor {
	return &Processor{
		config:     config,
		detector:   detector,
		tracker:    NewTracker(config.Tracker),
		classifier: NewTeamClassifier(config.Classifier),
	}
}

// SetProgress installs a progress sink invoked every few frames.
func (p *Processor) SetProgress(f ProgressFunc) {
	p.progress = f
}

// Tracker exposes the tracker for post-run queries.
func (p *Processor) Tracker() *Tracker { return p.tracker }

// Classifier exposes the team classifier for post-run queries and
// manual team reassignment.
func (p *Processor) Classifier() *TeamClassifier { return p.classifier }

// Process analyzes the video at videoPath frame by frame. When outputPath
// is non-empty an annotated copy is written there. The context is checked
// between frames; cancellation aborts the run with ctx.Err().
func (p *Processor) Process(ctx context.Context, videoPath, outputPath string) (*Result, error) {
	started := time.Now()

	capture, err := gocv.VideoCaptureFile(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", videoPath, err)
	}
	defer capture.Close()

	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = 30
	}
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	totalFrames := int(capture.Get(gocv.VideoCaptureFrameCount))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("open video %s: invalid dimensions %dx%d", videoPath, width, height)
	}
	p.engine = NewEngine(width, height)
	p.engine.SetVelocityWindow(p.config.Tracker.VelocityWindow)

	var writer *gocv.VideoWriter
	if outputPath != "" {
		writer, err = gocv.VideoWriterFile(outputPath, "mp4v", fps, width, height, true)
		if err != nil {
			return nil, fmt.Errorf("open output %s: %w", outputPath, err)
		}
		defer writer.Close()
	}

	monitoring.Logf("processor: %s %dx%d @ %.1f fps, %d frames", videoPath, width, height, fps, totalFrames)

	frame := gocv.NewMat()
	defer frame.Close()

	allScores := make(map[int][]float64)
	playersSeen := make(map[int]struct{})
	latestContexts := make(map[int]ScoreContext)
	var frames []FrameRecord

	frameIndex := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}

		detections, err := p.detector.Detect(frame)
		if err != nil {
			return nil, fmt.Errorf("detect frame %d: %w", frameIndex, err)
		}

		tracked := p.tracker.Update(detections, frameIndex)
		tracked = p.classifier.Classify(frame, tracked)
		scores, contexts := p.engine.FrameOpenScoresWithContext(tracked, p.tracker, fps)

		for _, det := range tracked {
			if det.TrackID >= 0 && det.ClassID != ClassBall {
				playersSeen[det.TrackID] = struct{}{}
			}
		}
		for id, score := range scores {
			allScores[id] = append(allScores[id], score)
		}
		for id, c := range contexts {
			latestContexts[id] = c
		}
		if p.config.KeepFrames {
			frames = append(frames, FrameRecord{
				FrameIndex: frameIndex,
				Detections: tracked,
				OpenScores: scores,
			})
		}

		if writer != nil {
			AnnotateFrame(&frame, tracked, scores, p.tracker, frameIndex)
			if err := writer.Write(frame); err != nil {
				return nil, fmt.Errorf("write frame %d: %w", frameIndex, err)
			}
		}

		frameIndex++
		if p.progress != nil && frameIndex%progressInterval == 0 {
			p.reportProgress(frameIndex, totalFrames)
		}
	}

	result := &Result{
		TotalFrames:      frameIndex,
		FPS:              fps,
		Duration:         float64(frameIndex) / fps,
		PlayersDetected:  len(playersSeen),
		Frames:           frames,
		OpenScoreSummary: SummarizeOpenScores(allScores, p.classifier.Assignment),
		TrackingSummary:  p.tracker.Summary(),
		Contexts:         latestContexts,
		OutputPath:       outputPath,
		Elapsed:          time.Since(started),
	}
	monitoring.Logf("processor: done, %d frames in %s, %d players", frameIndex, result.Elapsed.Round(time.Millisecond), result.PlayersDetected)
	return result, nil
}

// reportProgress shields the pipeline from a misbehaving sink.
func (p *Processor) reportProgress(frameIndex, totalFrames int) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("processor: progress sink panicked: %v", r)
		}
	}()
	p.progress(frameIndex, totalFrames)
}
