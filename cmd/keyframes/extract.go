package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/config"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/ffmpeg"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/usecase"
	"github.com/aadithva/flowsense-gpt4o-sub000/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type extractOptions struct {
	outDir        string
	tempDir       string
	coarseFPS     float64
	fineFPS       float64
	workers       int
	minDistanceMs int64
	allFrames     bool
	archive       bool
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract <recording>",
		Short: "Run the two-pass extraction on a local recording",
		Long: "Samples the recording coarsely, re-samples the windows around detected interactions, " +
			"and writes the selected keyframes plus a summary.json into the output directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExtract(ctx, cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out", "o", "keyframes_out", "output directory")
	f.StringVar(&opts.tempDir, "temp-dir", "", "scratch directory for sampled frames (default TEMP_DIR)")
	f.Float64Var(&opts.coarseFPS, "coarse-fps", 0, "coarse sampling rate (default COARSE_FPS)")
	f.Float64Var(&opts.fineFPS, "fine-fps", 0, "fine sampling rate inside candidate windows (default FINE_FPS)")
	f.IntVar(&opts.workers, "workers", 0, "frames analysed in parallel (default ANALYSIS_WORKERS)")
	f.Int64Var(&opts.minDistanceMs, "min-distance", 0, "minimum spacing between keyframes in ms (default MIN_KEYFRAME_DISTANCE_MS)")
	f.BoolVar(&opts.allFrames, "all-frames", false, "also write frames that were not selected")
	f.BoolVar(&opts.archive, "zip", false, "also write keyframes.zip with a manifest")
	return cmd
}

func runExtract(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *extractOptions, path string) error {
	cfg, err := config.Load(root.envFile)
	if err != nil {
		return err
	}
	applyOverrides(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(root.logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	video, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}

	extractor := usecase.NewKeyframeExtractor(
		ffmpeg.NewProber(cfg.Prober(), log),
		ffmpeg.NewSampler(cfg.FFmpegPath, log),
		log,
		cfg.Extraction(),
	)

	runID := uuid.NewString()
	log.Info("extracting keyframes", zap.String("run_id", runID), zap.String("recording", path))

	res, err := extractor.Extract(ctx, runID, video)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	sum, err := writeOutputs(opts.outDir, filepath.Base(path), runID, res, opts.allFrames)
	if err != nil {
		return err
	}
	if opts.archive {
		if err := ffmpeg.NewZipArchiver().CreateArchive(ctx, res.Frames, filepath.Join(opts.outDir, archiveName)); err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
	}

	cmd.Printf("%d keyframes from %d frames (%d events, %d windows) written to %s\n",
		sum.KeyframeCount, sum.FrameCount, len(sum.Events), len(sum.Windows), opts.outDir)
	return nil
}

// applyOverrides lets explicitly set flags win over environment and .env values.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, opts *extractOptions) {
	f := cmd.Flags()
	if f.Changed("temp-dir") {
		cfg.TempDir = opts.tempDir
	}
	if f.Changed("coarse-fps") {
		cfg.CoarseFPS = opts.coarseFPS
	}
	if f.Changed("fine-fps") {
		cfg.FineFPS = opts.fineFPS
	}
	if f.Changed("workers") {
		cfg.AnalysisWorkers = opts.workers
	}
	if f.Changed("min-distance") {
		cfg.MinKeyframeDistanceMs = opts.minDistanceMs
	}
}
