package storage

import (
	"context"
	"fmt"

	"github.com/token-analytics/internal/models"
)

// JobRepository persists scheduler job state so counters survive restarts
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// SaveJob upserts the job's definition and counters, keyed by name
func (r *JobRepository) SaveJob(ctx context.Context, job *models.AutomationJob) error {
	query := `
		INSERT INTO automation_jobs (
			id, name, job_type, interval_ticks, description, is_active,
			last_executed, execution_count, failure_count, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (name) DO UPDATE SET
			job_type = EXCLUDED.job_type,
			interval_ticks = EXCLUDED.interval_ticks,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			last_executed = EXCLUDED.last_executed,
			execution_count = EXCLUDED.execution_count,
			failure_count = EXCLUDED.failure_count,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		job.ID, job.Name, string(job.Type), job.Interval, job.Description, job.IsActive,
		job.LastExecuted, job.ExecutionCount, job.FailureCount, job.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.Name, err)
	}
	return nil
}

// ListJobs returns persisted jobs ordered by name
func (r *JobRepository) ListJobs(ctx context.Context) ([]models.AutomationJob, error) {
	query := `
		SELECT id, name, job_type, interval_ticks, description, is_active,
		       last_executed, execution_count, failure_count, last_error
		FROM automation_jobs
		ORDER BY name
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.AutomationJob
	for rows.Next() {
		var j models.AutomationJob
		var jobType string
		if err := rows.Scan(
			&j.ID, &j.Name, &jobType, &j.Interval, &j.Description, &j.IsActive,
			&j.LastExecuted, &j.ExecutionCount, &j.FailureCount, &j.LastError,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j.Type = models.JobType(jobType)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}
