package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const uploadConcurrency = 4

type ProcessRecordingUseCase struct {
	repo      port.RunRepository
	storage   port.VideoStorage
	extractor port.KeyframeExtractor
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type ProcessRecordingConfig struct {
	TempDir    string
	MaxRetries int
}

func NewProcessRecordingUseCase(
	repo port.RunRepository,
	storage port.VideoStorage,
	extractor port.KeyframeExtractor,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessRecordingConfig,
) *ProcessRecordingUseCase {
	return &ProcessRecordingUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

func (uc *ProcessRecordingUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessRecordingUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.RecordingMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewExtractionJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if job.Status == entity.JobStatusCompleted {
		log.Info("job already completed, acknowledging duplicate delivery")
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}
	if job.Status != entity.JobStatusCompleted {
		return nil
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ProcessRecordingUseCase) runPipeline(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.RecordingMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, "jobs", job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download recording from MinIO
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_recording")
	videoPath := filepath.Join(workDir, "recording")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download recording", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_recording: "+err.Error(), log)
	}
	spanDl.End()
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	video, err := os.ReadFile(videoPath)
	if err != nil {
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "read_recording: "+err.Error(), log)
	}

	// Two-pass keyframe extraction
	runID := fmt.Sprintf("%s-%d", job.ID, job.Attempt)
	result, err := uc.extractor.Extract(ctx, runID, video)
	if err != nil {
		var verr *entity.ValidationError
		if errors.As(err, &verr) {
			log.Warn("recording rejected", zap.String("reason", string(verr.Reason)), zap.Error(err))
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, err.Error())
		}
		log.Error("keyframe extraction failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "extract_keyframes: "+err.Error(), log)
	}

	// Upload every frame
	upStart := time.Now()
	ctx3, spanUp := tracer.Start(ctx, "upload_frames")
	stored, err := uc.uploadFrames(ctx3, job, result.Frames)
	spanUp.End()
	if err != nil {
		log.Error("frame upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_frames: "+err.Error(), log)
	}
	metrics.StageDuration.WithLabelValues("upload_frames").Observe(time.Since(upStart).Seconds())

	// Archive keyframes with their manifest
	arStart := time.Now()
	ctx4, spanAr := tracer.Start(ctx, "create_archive")
	archivePath := filepath.Join(workDir, "keyframes.zip")
	if err := uc.archiver.CreateArchive(ctx4, result.Frames, archivePath); err != nil {
		spanAr.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_archive: "+err.Error(), log)
	}
	spanAr.End()
	metrics.StageDuration.WithLabelValues("archive").Observe(time.Since(arStart).Seconds())

	ctx5, spanUpAr := tracer.Start(ctx, "upload_archive")
	archiveKey := fmt.Sprintf("%s/keyframes_%s.zip", msg.UserID, job.ID.String())
	if err := uc.uploadArchive(ctx5, archiveKey, archivePath); err != nil {
		spanUpAr.End()
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}
	spanUpAr.End()

	if err := uc.repo.SaveFrames(ctx, job.ID, stored); err != nil {
		log.Error("failed to persist frames", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "save_frames: "+err.Error(), log)
	}

	// Mark completed
	job.MarkCompleted(archiveKey, result.Frames, result.Metadata.DurationSeconds)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("frame_count", job.FrameCount),
		zap.Int("keyframe_count", job.KeyframeCount),
		zap.Int("event_count", job.EventCount),
		zap.Float64("duration_secs", job.VideoDuration),
		zap.String("archive_key", archiveKey),
	)

	return nil
}

func (uc *ProcessRecordingUseCase) uploadFrames(ctx context.Context, job *entity.ExtractionJob, frames []entity.ExtractedFrame) ([]port.StoredFrame, error) {
	stored := make([]port.StoredFrame, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, f := range frames {
		f := f
		key := FrameObjectKey(job.ID.String(), f.TimestampMs)
		stored[i] = port.StoredFrame{Frame: f, ObjectKey: key}
		g.Go(func() error {
			if err := uc.storage.UploadFrame(gctx, key, f.Buffer); err != nil {
				return fmt.Errorf("upload frame %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stored, nil
}

// FrameObjectKey is where a frame's JPEG lives in the frame bucket.
func FrameObjectKey(runID string, timestampMs int64) string {
	return fmt.Sprintf("%s/frames/%08d.jpg", runID, timestampMs)
}

func (uc *ProcessRecordingUseCase) uploadArchive(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	if err := uc.storage.UploadArchive(ctx, key, f, info.Size()); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}

func (uc *ProcessRecordingUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.RecordingMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessRecordingUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.ExtractionJob,
	msg entity.RecordingMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ProcessRecordingUseCase) publishStatus(ctx context.Context, job *entity.ExtractionJob, log *zap.Logger) {
	statusMsg := entity.RecordingStatusMessage{
		JobID:         job.ID,
		UserID:        job.UserID,
		Status:        job.Status,
		VideoKey:      job.VideoKey,
		ArchiveKey:    job.ArchiveKey,
		FrameCount:    job.FrameCount,
		KeyframeCount: job.KeyframeCount,
		EventCount:    job.EventCount,
		Duration:      job.VideoDuration,
		ErrorMessage:  job.ErrorMessage,
		Attempt:       job.Attempt,
		MaxAttempts:   job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
