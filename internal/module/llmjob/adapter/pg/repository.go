package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// DBTX は pgxpool.Pool と pgx.Tx の共通部分です
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository は domain.JobRepository / domain.ModelRepository の PostgreSQL 実装です
type Repository struct {
	db DBTX
}

// NewRepository は新しい Repository を作成します
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// コンパイル時の型チェック
var (
	_ domain.JobRepository   = (*Repository)(nil)
	_ domain.ModelRepository = (*Repository)(nil)
)

const jobColumns = `job_id, job_type, model_id, question_id, input_data, status,
	result_data, error_message, created_at, updated_at, started_at, completed_at`

// === Job ===

func (r *Repository) CreateJob(ctx context.Context, job *domain.Job) error {
	input, err := json.Marshal(job.InputData)
	if err != nil {
		return fmt.Errorf("failed to encode input data: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO llm_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuidToPgtype(job.ID),
		string(job.Type),
		job.ModelID,
		job.QuestionID,
		input,
		string(job.Status),
		nullableJSON(job.ResultData),
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM llm_jobs WHERE job_id = $1`, uuidToPgtype(id))
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *Repository) UpdateJob(ctx context.Context, job *domain.Job) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE llm_jobs
		SET status = $2, result_data = $3, error_message = $4,
			updated_at = $5, started_at = $6, completed_at = $7
		WHERE job_id = $1`,
		uuidToPgtype(job.ID),
		string(job.Status),
		nullableJSON(job.ResultData),
		job.ErrorMessage,
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, job.ID)
	}
	return nil
}

func (r *Repository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.JobType != "" {
		args = append(args, string(filter.JobType))
		conds = append(conds, fmt.Sprintf("job_type = $%d", len(args)))
	}
	if filter.QuestionID != "" {
		args = append(args, filter.QuestionID)
		conds = append(conds, fmt.Sprintf("question_id = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM llm_jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM llm_jobs` + where + ` ORDER BY created_at DESC, job_id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

func (r *Repository) ListStaleJobs(ctx context.Context, status domain.Status, before time.Time) ([]*domain.Job, error) {
	column := "created_at"
	if status == domain.StatusProcessing {
		column = "COALESCE(started_at, created_at)"
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+jobColumns+` FROM llm_jobs WHERE status = $1 AND `+column+` < $2 ORDER BY created_at`,
		string(status), before)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	return jobs, nil
}

// === Model ===

func (r *Repository) UpsertModel(ctx context.Context, model *domain.Model) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO llm_models (id, name, provider, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, provider = EXCLUDED.provider,
			description = EXCLUDED.description, is_active = EXCLUDED.is_active,
			updated_at = now()`,
		model.ID, model.Name, model.Provider, model.Description, model.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert model: %w", err)
	}
	return nil
}

func (r *Repository) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	var m domain.Model
	err := r.db.QueryRow(ctx,
		`SELECT id, name, provider, description, is_active FROM llm_models WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Provider, &m.Description, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, id)
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return &m, nil
}

func (r *Repository) ListActiveModels(ctx context.Context) ([]*domain.Model, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, provider, description, is_active FROM llm_models WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []*domain.Model
	for rows.Next() {
		var m domain.Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Provider, &m.Description, &m.Active); err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// === 変換 ===

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		id          pgtype.UUID
		jobType     string
		status      string
		input       []byte
		result      []byte
		job         domain.Job
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id,
		&jobType,
		&job.ModelID,
		&job.QuestionID,
		&input,
		&status,
		&result,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ID = id.Bytes
	job.Type = domain.JobType(jobType)
	job.Status = domain.Status(status)
	job.StartedAt = pgtypeToTimePtr(startedAt)
	job.CompletedAt = pgtypeToTimePtr(completedAt)
	if len(result) > 0 {
		job.ResultData = json.RawMessage(result)
	}
	job.InputData = map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &job.InputData); err != nil {
			return nil, fmt.Errorf("failed to decode input data: %w", err)
		}
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func uuidToPgtype(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgtypeToTimePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// nullableJSON は空の結果を NULL として書き込みます
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
