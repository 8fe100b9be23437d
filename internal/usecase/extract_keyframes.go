package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/analysis"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/detection"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/metrics"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/selection"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// frameRecord is one analysed frame. index is its position within its own pass.
type frameRecord struct {
	index       int
	timestampMs int64
	path        string
	buffer      []byte
	cursor      entity.CursorPosition
	metrics     *entity.FrameMetrics
}

// KeyframeExtractor runs the two-pass extraction: a coarse scan of the whole recording, a fine
// re-scan of the windows around detected events, then keyframe selection over the union.
type KeyframeExtractor struct {
	prober   port.VideoProber
	sampler  port.FrameSampler
	cursor   *analysis.CursorDetector
	engine   *analysis.MetricsEngine
	detector *detection.Detector
	selector selection.Selector
	cfg      ExtractionConfig
	logger   *zap.Logger
}

func NewKeyframeExtractor(
	prober port.VideoProber,
	sampler port.FrameSampler,
	logger *zap.Logger,
	cfg ExtractionConfig,
) *KeyframeExtractor {
	return &KeyframeExtractor{
		prober:   prober,
		sampler:  sampler,
		cursor:   analysis.NewCursorDetector(cfg.Cursor, logger),
		engine:   analysis.NewMetricsEngine(cfg.Metrics),
		detector: detection.NewDetector(cfg.Thresholds),
		selector: cfg.Selector,
		cfg:      cfg,
		logger:   logger,
	}
}

// run is the state of one Extract call.
type run struct {
	id      string
	dir     string
	video   string
	log     *zap.Logger
	meta    *entity.VideoMetadata
	coarse  []frameRecord
	events  []entity.DetectedEvent
	windows []entity.CandidateWindow
	fine    [][]port.SampledFrame
	passes  [][]frameRecord
	merged  []frameRecord
	picked  []int
}

func (x *KeyframeExtractor) Extract(ctx context.Context, runID string, video []byte) (*port.ExtractionResult, error) {
	if runID == "" || filepath.Base(runID) != runID || runID == "." || runID == ".." {
		return nil, fmt.Errorf("extract keyframes: invalid run id %q", runID)
	}

	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "KeyframeExtractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID), attribute.Int("video.bytes", len(video)))

	r := &run{
		id:  runID,
		dir: filepath.Join(x.cfg.TempDir, runID),
		log: x.logger.With(zap.String("run_id", runID)),
	}
	defer os.RemoveAll(r.dir)

	steps := []struct {
		stage Stage
		fn    func(ctx context.Context, r *run, video []byte) error
	}{
		{StageValidating, x.validate},
		{StageCoarseScan, x.coarseScan},
		{StageCoarseAnalyze, x.coarseAnalyze},
		{StageWindowPlan, x.planWindows},
		{StageFineScan, x.fineScan},
		{StageFineAnalyze, x.fineAnalyze},
		{StageMerge, x.merge},
		{StageSelect, x.selectKeyframes},
	}

	start := time.Now()
	for _, s := range steps {
		if err := x.step(ctx, r, s.stage, func(ctx context.Context) error { return s.fn(ctx, r, video) }); err != nil {
			x.transition(r, StageFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Error("extraction failed", zap.String("stage", string(s.stage)), zap.Error(err))
			return nil, err
		}
	}

	frames := x.buildFrames(r)
	x.transition(r, StageDone)

	keyframes := len(r.picked)
	metrics.KeyframesSelectedTotal.Add(float64(keyframes))
	for _, ev := range r.events {
		metrics.EventsDetectedTotal.WithLabelValues(string(ev.Event)).Inc()
	}
	span.SetAttributes(attribute.Int("frames", len(frames)), attribute.Int("keyframes", keyframes))
	r.log.Info("extraction completed",
		zap.Int("frames", len(frames)),
		zap.Int("keyframes", keyframes),
		zap.Int("events", len(r.events)),
		zap.Int("windows", len(r.windows)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &port.ExtractionResult{
		Metadata: *r.meta,
		Frames:   frames,
		Events:   r.events,
		Windows:  r.windows,
	}, nil
}

// step runs one stage under its own span and records its duration.
func (x *KeyframeExtractor) step(ctx context.Context, r *run, stage Stage, fn func(ctx context.Context) error) error {
	x.transition(r, stage)
	ctx, span := otel.Tracer("usecase").Start(ctx, "extract."+string(stage),
		trace.WithAttributes(attribute.String("run.id", r.id), attribute.String("stage", string(stage))),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (x *KeyframeExtractor) transition(r *run, stage Stage) {
	r.log.Debug("stage", zap.String("stage", string(stage)))
	if x.cfg.OnStage != nil {
		x.cfg.OnStage(r.id, stage)
	}
}

func (x *KeyframeExtractor) validate(ctx context.Context, r *run, video []byte) error {
	meta, err := x.prober.Probe(ctx, r.id, video)
	if err != nil {
		return fmt.Errorf("probe video: %w", err)
	}
	r.meta = meta

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	r.video = filepath.Join(r.dir, "input")
	if err := os.WriteFile(r.video, video, 0644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	r.log.Info("recording accepted",
		zap.String("format", meta.FormatName),
		zap.Float64("duration_secs", meta.DurationSeconds),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)
	return nil
}

func (x *KeyframeExtractor) coarseScan(ctx context.Context, r *run, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frames, err := x.sampler.Sample(ctx, port.SampleRequest{
		VideoPath: r.video,
		OutputDir: filepath.Join(r.dir, "coarse"),
		FPS:       x.cfg.CoarseFPS,
	})
	if err != nil {
		return fmt.Errorf("coarse scan: %w", err)
	}
	r.coarse = newRecords(frames)
	return nil
}

func (x *KeyframeExtractor) coarseAnalyze(ctx context.Context, r *run, _ []byte) error {
	if err := x.analyze(ctx, r, r.coarse, "coarse"); err != nil {
		return err
	}
	r.events = x.detector.Detect(observations(r.coarse))
	r.log.Debug("coarse events", zap.Int("count", len(r.events)))
	return nil
}

func (x *KeyframeExtractor) planWindows(_ context.Context, r *run, _ []byte) error {
	r.windows = detection.PlanWindows(r.events, x.cfg.FineWindowMs, r.meta.DurationMs())
	return nil
}

func (x *KeyframeExtractor) fineScan(ctx context.Context, r *run, _ []byte) error {
	r.fine = make([][]port.SampledFrame, 0, len(r.windows))
	for i, w := range r.windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		frames, err := x.sampler.Sample(ctx, port.SampleRequest{
			VideoPath: r.video,
			OutputDir: filepath.Join(r.dir, fmt.Sprintf("fine_%03d", i)),
			FPS:       x.cfg.FineFPS,
			Window:    &port.TimeWindow{StartMs: w.StartMs, DurationMs: w.DurationMs()},
		})
		var xerr *entity.ExtractionError
		if errors.As(err, &xerr) && xerr.Reason == entity.ExtractionNoFrames {
			r.log.Warn("fine window produced no frames",
				zap.Int64("start_ms", w.StartMs),
				zap.Int64("end_ms", w.EndMs),
			)
			frames, err = nil, nil
		}
		if err != nil {
			return fmt.Errorf("fine scan window %d: %w", i, err)
		}
		r.fine = append(r.fine, frames)
	}
	return nil
}

func (x *KeyframeExtractor) fineAnalyze(ctx context.Context, r *run, _ []byte) error {
	r.passes = make([][]frameRecord, len(r.fine))
	for i, frames := range r.fine {
		records := newRecords(frames)
		if err := x.analyze(ctx, r, records, "fine"); err != nil {
			return err
		}
		r.passes[i] = records
		r.events = append(r.events, x.detector.Detect(observations(records))...)
	}
	return nil
}

func (x *KeyframeExtractor) merge(_ context.Context, r *run, _ []byte) error {
	r.merged = mergePasses(r.coarse, r.passes, x.cfg.MergeWindowMs)
	if len(r.merged) == 0 {
		return &entity.ExtractionError{Reason: entity.ExtractionNoFrames}
	}
	r.events = detection.Cluster(r.events, x.cfg.Thresholds.ClusterWindowMs)
	for i := range r.events {
		j := nearestRecord(r.merged, r.events[i].TimestampMs)
		r.events[i].FrameIndex = j
		r.events[i].FramePath = r.merged[j].path
	}
	return nil
}

func (x *KeyframeExtractor) selectKeyframes(_ context.Context, r *run, _ []byte) error {
	refs := make([]selection.FrameRef, len(r.merged))
	for i, rec := range r.merged {
		refs[i] = selection.FrameRef{TimestampMs: rec.timestampMs}
		if rec.metrics != nil {
			refs[i].FinalScore = rec.metrics.FinalScore
		}
	}
	r.picked = x.selector.Select(r.events, refs, x.cfg.CoarseFPS)
	return nil
}

func (x *KeyframeExtractor) buildFrames(r *run) []entity.ExtractedFrame {
	byFrame := make(map[int]*entity.DetectedEvent, len(r.events))
	for i := range r.events {
		ev := &r.events[i]
		if cur, ok := byFrame[ev.FrameIndex]; !ok || ev.Confidence > cur.Confidence {
			byFrame[ev.FrameIndex] = ev
		}
	}

	frames := make([]entity.ExtractedFrame, len(r.merged))
	for i, rec := range r.merged {
		f := entity.ExtractedFrame{
			ID:          uuid.New(),
			TimestampMs: rec.timestampMs,
			Buffer:      rec.buffer,
			IsKeyframe:  isPicked(r.picked, i),
			Metrics:     rec.metrics,
			Event:       byFrame[i],
		}
		if rec.metrics != nil {
			f.DiffScore = rec.metrics.FinalScore
		}
		if rec.cursor.Visible {
			c := rec.cursor
			f.Cursor = &c
		}
		f.ChangeContext = detection.Describe(f.Metrics, f.Event)
		frames[i] = f
	}
	return frames
}

// analyze decodes each frame, finds its cursor and measures it against its predecessor. Work
// proceeds in chunks so at most one chunk of decoded rasters is alive at a time.
func (x *KeyframeExtractor) analyze(ctx context.Context, r *run, records []frameRecord, pass string) error {
	workers := max(1, x.cfg.AnalysisWorkers)
	chunk := workers * 4
	tracker := &cursorTracker{}
	var prev *analysis.Raster

	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		rasters := make([]*analysis.Raster, end-start)
		found := make([]entity.CursorPosition, end-start)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				raster, err := analysis.DecodeFrame(records[i].buffer, x.cfg.MaxFrameWidth)
				if err != nil {
					r.log.Warn("frame decode failed, treating as unchanged",
						zap.Int64("timestamp_ms", records[i].timestampMs),
						zap.Error(err),
					)
					metrics.FrameFallbacksTotal.WithLabelValues("decode").Inc()
					found[i-start] = entity.CursorPosition{Shape: entity.CursorUnknown}
					return nil
				}
				rasters[i-start] = raster
				found[i-start] = x.cursor.Detect(raster)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("analyze %s frames: %w", pass, err)
		}

		for i := start; i < end; i++ {
			records[i].cursor = tracker.next(found[i-start])
		}

		g, gctx = errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := max(start, 1); i < end; i++ {
			i := i
			a := prev
			if i > start {
				a = rasters[i-start-1]
			}
			b := rasters[i-start]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				m := x.pairMetrics(r, a, b, &records[i])
				records[i].metrics = &m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("analyze %s frames: %w", pass, err)
		}
		prev = rasters[end-start-1]
	}

	metrics.FramesAnalyzedTotal.WithLabelValues(pass).Add(float64(len(records)))
	return nil
}

// pairMetrics never fails: a pair that cannot be measured counts as unchanged.
func (x *KeyframeExtractor) pairMetrics(r *run, prev, curr *analysis.Raster, rec *frameRecord) entity.FrameMetrics {
	if prev == nil || curr == nil {
		return entity.ZeroChangeMetrics()
	}
	m, err := x.engine.Compute(prev, curr, &rec.cursor, r.meta.Width, r.meta.Height)
	if err != nil {
		r.log.Warn("metric computation failed, treating as unchanged",
			zap.Int64("timestamp_ms", rec.timestampMs),
			zap.Error(err),
		)
		metrics.FrameFallbacksTotal.WithLabelValues("metrics").Inc()
		return entity.ZeroChangeMetrics()
	}
	return m
}

func isPicked(picked []int, i int) bool {
	_, ok := slices.BinarySearch(picked, i)
	return ok
}

func newRecords(frames []port.SampledFrame) []frameRecord {
	records := make([]frameRecord, len(frames))
	for i, f := range frames {
		records[i] = frameRecord{
			index:       i,
			timestampMs: f.TimestampMs,
			path:        f.Path,
			buffer:      f.Data,
		}
	}
	return records
}

func observations(records []frameRecord) []detection.Observation {
	obs := make([]detection.Observation, len(records))
	for i, rec := range records {
		obs[i] = detection.Observation{
			Index:       rec.index,
			TimestampMs: rec.timestampMs,
			Path:        rec.path,
			Cursor:      rec.cursor,
			Metrics:     rec.metrics,
		}
	}
	return obs
}

// mergePasses unions the coarse frames with every fine window, in timestamp order. A fine frame
// closer than toleranceMs to a frame already taken from another pass is dropped.
func mergePasses(coarse []frameRecord, fine [][]frameRecord, toleranceMs int64) []frameRecord {
	merged := slices.Clone(coarse)
	taken := make([]int64, 0, len(coarse))
	for _, rec := range coarse {
		taken = append(taken, rec.timestampMs)
	}
	slices.Sort(taken)

	for _, window := range fine {
		var kept []frameRecord
		for _, rec := range window {
			if !nearAny(taken, rec.timestampMs, toleranceMs) {
				kept = append(kept, rec)
			}
		}
		for _, rec := range kept {
			i, _ := slices.BinarySearch(taken, rec.timestampMs)
			taken = slices.Insert(taken, i, rec.timestampMs)
		}
		merged = append(merged, kept...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].timestampMs < merged[j].timestampMs
	})
	return merged
}

func nearAny(sorted []int64, ts, toleranceMs int64) bool {
	i, _ := slices.BinarySearch(sorted, ts)
	if i < len(sorted) && sorted[i]-ts < toleranceMs {
		return true
	}
	return i > 0 && ts-sorted[i-1] < toleranceMs
}

func nearestRecord(records []frameRecord, ts int64) int {
	i := sort.Search(len(records), func(i int) bool { return records[i].timestampMs >= ts })
	switch {
	case i == 0:
		return 0
	case i == len(records):
		return len(records) - 1
	case ts-records[i-1].timestampMs <= records[i].timestampMs-ts:
		return i - 1
	default:
		return i
	}
}
