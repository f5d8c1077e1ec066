package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/gridiron-data/openscore.report/internal/api"
	"github.com/gridiron-data/openscore.report/internal/config"
	"github.com/gridiron-data/openscore.report/internal/explain"
	"github.com/gridiron-data/openscore.report/internal/football"
	"github.com/gridiron-data/openscore.report/internal/store"
	"github.com/gridiron-data/openscore.report/internal/version"
)

var (
	videoPath  = flag.String("video", "", "Analyze a single MP4 clip and exit")
	outputPath = flag.String("output", "", "Annotated video output path (batch mode; empty disables annotation)")
	chartPath  = flag.String("chart", "", "Write the score timeline chart HTML to this path (batch mode)")
	jsonOut    = flag.Bool("json", false, "Print the full analysis result as JSON (batch mode)")
	serve      = flag.Bool("serve", false, "Run the HTTP API server")
	tuningFile = flag.String("config", "", "Optional pipeline tuning overrides (JSON)")
	noExplain  = flag.Bool("no-explain", false, "Skip the Gemini explainer even when an API key is present")
)

func main() {
	// A local .env is optional; environment variables win either way.
	_ = godotenv.Load()
	flag.Parse()

	v := viper.New()
	v.SetEnvPrefix("OPENSCORE")
	v.AutomaticEnv()
	v.SetDefault("listen", ":8000")
	v.SetDefault("model", "models/football.onnx")
	v.SetDefault("db", "openscore_runs.db")
	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("output_dir", "outputs")

	tuning := config.EmptyTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		runServer(ctx, v, tuning)
	case *videoPath != "":
		runBatch(ctx, v, tuning)
	default:
		flag.Usage()
		log.Fatal("either -serve or -video is required")
	}
}

func newDetector(v *viper.Viper, tuning *config.TuningConfig) (football.Detector, error) {
	return football.NewYOLODetector(tuning.YOLOConfig(v.GetString("model")))
}

func openStore(v *viper.Viper) *store.Store {
	dbPath := v.GetString("db")
	if dbPath == "" {
		return nil
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		log.Printf("run store disabled: %v", err)
		return nil
	}
	return s
}

func newExplainer(ctx context.Context) explain.Explainer {
	if *noExplain || os.Getenv("GEMINI_API_KEY") == "" {
		log.Print("Gemini explainer disabled, using rule-based explanations")
		return nil
	}
	explainer, err := explain.NewGeminiExplainer(ctx)
	if err != nil {
		log.Printf("Gemini explainer unavailable, using rule-based explanations: %v", err)
		return nil
	}
	return explainer
}

func runServer(ctx context.Context, v *viper.Viper, tuning *config.TuningConfig) {
	runStore := openStore(v)
	if runStore != nil {
		defer runStore.Close()
	}

	srv, err := api.NewServer(api.ServerConfig{
		UploadDir:   v.GetString("upload_dir"),
		OutputDir:   v.GetString("output_dir"),
		NewDetector: func() (football.Detector, error) { return newDetector(v, tuning) },
		Processor: football.ProcessorConfig{
			Tracker:    tuning.TrackerConfig(),
			Classifier: tuning.ClassifierConfig(),
			KeepFrames: true,
		},
		Store:     runStore,
		Explainer: newExplainer(ctx),
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:    v.GetString("listen"),
		Handler: srv.Router(),
	}
	go func() {
		log.Printf("openscore %s listening on %s", version.Version, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Print("graceful shutdown complete")
}

func runBatch(ctx context.Context, v *viper.Viper, tuning *config.TuningConfig) {
	detector, err := newDetector(v, tuning)
	if err != nil {
		log.Fatalf("failed to load detector: %v", err)
	}
	if closer, ok := detector.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	processor := football.NewProcessor(detector, football.ProcessorConfig{
		Tracker:    tuning.TrackerConfig(),
		Classifier: tuning.ClassifierConfig(),
		KeepFrames: *chartPath != "" || *jsonOut,
	})
	processor.SetProgress(func(frameIndex, totalFrames int) {
		if totalFrames > 0 {
			log.Printf("frame %d/%d (%d%%)", frameIndex, totalFrames, frameIndex*100/totalFrames)
		}
	})

	result, err := processor.Process(ctx, *videoPath, *outputPath)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	feedback := football.GenerateFeedback(result)

	explanations := explain.FallbackExplanations(result.OpenScoreSummary, result.Contexts)
	if explainer := newExplainer(ctx); explainer != nil {
		if out, err := explainer.ExplainScores(ctx, result.OpenScoreSummary, result.Contexts); err == nil {
			explanations = out
		}
	}

	if runStore := openStore(v); runStore != nil {
		runID := fmt.Sprintf("cli-%d", time.Now().Unix())
		if err := runStore.SaveRun(runID, *videoPath, result, feedback); err != nil {
			log.Printf("failed to persist run: %v", err)
		} else {
			log.Printf("saved run %s", runID)
		}
		runStore.Close()
	}

	if *chartPath != "" {
		if err := football.SaveScoreChart(result, *chartPath); err != nil {
			log.Printf("failed to write chart: %v", err)
		} else {
			log.Printf("wrote score chart to %s", *chartPath)
		}
	}

	if *jsonOut {
		payload := map[string]interface{}{
			"result":       result,
			"feedback":     feedback,
			"explanations": explanations,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(payload); err != nil {
			log.Fatalf("failed to encode result: %v", err)
		}
		return
	}

	printSummary(result, feedback, explanations)
}

func printSummary(result *football.Result, feedback *football.Feedback, explanations map[string]string) {
	fmt.Printf("Analyzed %d frames at %.1f fps (%.1fs), %d players detected, took %s\n",
		result.TotalFrames, result.FPS, result.Duration, result.PlayersDetected,
		result.Elapsed.Round(time.Millisecond))
	fmt.Printf("Overall grade: %s (%.1f/100)\n", feedback.OverallGrade, feedback.OverallScore)

	keys := make([]string, 0, len(result.OpenScoreSummary))
	for key := range result.OpenScoreSummary {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		s := result.OpenScoreSummary[key]
		fmt.Printf("  %s (team %d): avg %.1f, max %.1f, min %.1f over %d frames\n",
			key, s.TeamID, s.AvgOpenScore, s.MaxOpenScore, s.MinOpenScore, s.Frames)
		if text := explanations[key]; text != "" {
			fmt.Printf("    %s\n", text)
		}
	}

	for _, rec := range feedback.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
	if result.OutputPath != "" {
		fmt.Printf("Annotated video: %s\n", result.OutputPath)
	}
}
