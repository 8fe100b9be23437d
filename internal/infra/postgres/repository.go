package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, job *entity.ExtractionJob) error {
	query := `
		INSERT INTO extraction_runs (
			id, user_id, video_key, archive_key, status, frame_count,
			keyframe_count, event_count, file_size, video_duration,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ArchiveKey, string(job.Status),
		job.FrameCount, job.KeyframeCount, job.EventCount, job.FileSize, job.VideoDuration,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Update(ctx context.Context, job *entity.ExtractionJob) error {
	query := `
		UPDATE extraction_runs SET
			status=$2, archive_key=$3, frame_count=$4, keyframe_count=$5, event_count=$6,
			video_duration=$7, attempt=$8, error_message=$9, updated_at=$10, completed_at=$11
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ArchiveKey, job.FrameCount, job.KeyframeCount,
		job.EventCount, job.VideoDuration, job.Attempt, job.ErrorMessage,
		job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (r *RunRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	query := `
		SELECT id, user_id, video_key, archive_key, status, frame_count,
			keyframe_count, event_count, file_size, video_duration,
			attempt, max_attempts, error_message, created_at, updated_at, completed_at
		FROM extraction_runs WHERE id=$1`

	job := &entity.ExtractionJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ArchiveKey, &status,
		&job.FrameCount, &job.KeyframeCount, &job.EventCount, &job.FileSize, &job.VideoDuration,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find run by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}

// SaveFrames replaces the stored frames of a run in one transaction.
func (r *RunRepository) SaveFrames(ctx context.Context, jobID uuid.UUID, frames []port.StoredFrame) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save frames: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM extracted_frames WHERE run_id=$1`, jobID); err != nil {
		return fmt.Errorf("clear frames: %w", err)
	}

	batch := &pgx.Batch{}
	for _, sf := range frames {
		row, err := frameRow(sf)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO extracted_frames (
				id, run_id, timestamp_ms, object_key, is_keyframe, diff_score,
				event_type, event_confidence, event_reason, cursor, metrics, change_context
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			sf.Frame.ID, jobID, sf.Frame.TimestampMs, sf.ObjectKey, sf.Frame.IsKeyframe, sf.Frame.DiffScore,
			row.eventType, row.eventConfidence, row.eventReason, row.cursor, row.metrics, row.changeContext,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range frames {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert frame: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close frame batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit frames: %w", err)
	}
	return nil
}

// CountFrames returns how many frames of a run are stored and how many of them are keyframes.
func (r *RunRepository) CountFrames(ctx context.Context, jobID uuid.UUID) (total, keyframes int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE is_keyframe) FROM extracted_frames WHERE run_id=$1`,
		jobID,
	).Scan(&total, &keyframes)
	if err != nil {
		return 0, 0, fmt.Errorf("count frames: %w", err)
	}
	return total, keyframes, nil
}

type frameColumns struct {
	eventType       *string
	eventConfidence *float64
	eventReason     *string
	cursor          []byte
	metrics         []byte
	changeContext   []byte
}

func frameRow(sf port.StoredFrame) (frameColumns, error) {
	var row frameColumns
	var err error
	f := sf.Frame

	if f.Event != nil {
		kind := string(f.Event.Event)
		row.eventType = &kind
		row.eventConfidence = &f.Event.Confidence
		row.eventReason = &f.Event.Reason
	}
	if f.Cursor != nil {
		if row.cursor, err = json.Marshal(f.Cursor); err != nil {
			return row, fmt.Errorf("marshal cursor: %w", err)
		}
	}
	if f.Metrics != nil {
		if row.metrics, err = json.Marshal(f.Metrics); err != nil {
			return row, fmt.Errorf("marshal metrics: %w", err)
		}
	}
	if row.changeContext, err = json.Marshal(f.ChangeContext); err != nil {
		return row, fmt.Errorf("marshal change context: %w", err)
	}
	return row, nil
}
