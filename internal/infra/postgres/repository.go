package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-video-extender/internal/domain/entity"
	"github.com/fiapx/fiapx-video-extender/internal/domain/port"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ port.JobRepository = (*JobRepository)(nil)

const jobColumns = `
	id, user_id, user_email, video_key, prompt,
	number_of_videos, resolution, aspect_ratio, seed_timestamp,
	status, operation_name, result_locator, result_key, frame_key,
	progress_message, poll_count, error_kind, error_message,
	attempt, max_attempts, created_at, updated_at, completed_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `INSERT INTO extension_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.UserEmail, job.VideoKey, job.Prompt,
		job.Config.NumberOfVideos, job.Config.Resolution, job.Config.AspectRatio, job.SeedTimestamp,
		string(job.Status), job.OperationName, job.ResultLocator, job.ResultKey, job.FrameKey,
		job.ProgressMessage, job.PollCount, string(job.ErrorKind), job.ErrorMessage,
		job.Attempt, job.MaxAttempts, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE extension_jobs SET
			status=$2, operation_name=$3, result_locator=$4, result_key=$5, frame_key=$6,
			progress_message=$7, poll_count=$8, error_kind=$9, error_message=$10,
			attempt=$11, updated_at=$12, completed_at=$13
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.OperationName, job.ResultLocator, job.ResultKey, job.FrameKey,
		job.ProgressMessage, job.PollCount, string(job.ErrorKind), job.ErrorMessage,
		job.Attempt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return port.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM extension_jobs WHERE id=$1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, port.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	return job, nil
}

// ListByUser returns the user's jobs, newest first.
func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM extension_jobs
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*entity.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	job := &entity.Job{}
	var status, errorKind string
	err := row.Scan(
		&job.ID, &job.UserID, &job.UserEmail, &job.VideoKey, &job.Prompt,
		&job.Config.NumberOfVideos, &job.Config.Resolution, &job.Config.AspectRatio, &job.SeedTimestamp,
		&status, &job.OperationName, &job.ResultLocator, &job.ResultKey, &job.FrameKey,
		&job.ProgressMessage, &job.PollCount, &errorKind, &job.ErrorMessage,
		&job.Attempt, &job.MaxAttempts, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = entity.JobStatus(status)
	job.ErrorKind = entity.ErrorKind(errorKind)
	return job, nil
}
