package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobFilter はジョブ一覧の絞り込み条件です
type JobFilter struct {
	Status     Status
	JobType    JobType
	QuestionID string
	Limit      int
	Offset     int
}

// JobRepository はジョブの永続化を担います
type JobRepository interface {
	CreateJob(ctx context.Context, job *Job) error
	// GetJob は存在しない場合 ErrJobNotFound を返します
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	// ListJobs は作成日時の降順で返し、絞り込み後の総件数も返します
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, int, error)
	// ListStaleJobs は status のジョブのうち基準時刻 before より古いものを返します
	// queued は created_at、processing は started_at で比較します
	ListStaleJobs(ctx context.Context, status Status, before time.Time) ([]*Job, error)
}

// ModelRepository はLLMモデルの永続化を担います
type ModelRepository interface {
	UpsertModel(ctx context.Context, model *Model) error
	// GetModel は存在しない場合 ErrModelNotFound を返します
	GetModel(ctx context.Context, id string) (*Model, error)
	ListActiveModels(ctx context.Context) ([]*Model, error)
}
