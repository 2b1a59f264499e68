package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// Repository はプロセス内メモリにジョブとモデルを保持するリポジトリです
// 呼び出し側とのデータ共有を避けるため、読み書きとも複製を扱います
type Repository struct {
	mu     sync.RWMutex
	jobs   map[uuid.UUID]*domain.Job
	models map[string]*domain.Model
}

// NewRepository は新しいRepositoryを作成します
func NewRepository() *Repository {
	return &Repository{
		jobs:   make(map[uuid.UUID]*domain.Job),
		models: make(map[string]*domain.Model),
	}
}

var (
	_ domain.JobRepository   = (*Repository)(nil)
	_ domain.ModelRepository = (*Repository)(nil)
)

// === Job ===

func (r *Repository) CreateJob(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return cloneJob(job), nil
}

func (r *Repository) UpdateJob(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *Repository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.JobType != "" && job.Type != filter.JobType {
			continue
		}
		if filter.QuestionID != "" && (job.QuestionID == nil || *job.QuestionID != filter.QuestionID) {
			continue
		}
		matched = append(matched, job)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	page := make([]*domain.Job, 0, end-start)
	for _, job := range matched[start:end] {
		page = append(page, cloneJob(job))
	}
	return page, total, nil
}

func (r *Repository) ListStaleJobs(ctx context.Context, status domain.Status, before time.Time) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*domain.Job
	for _, job := range r.jobs {
		if job.Status != status {
			continue
		}
		ref := job.CreatedAt
		if status == domain.StatusProcessing && job.StartedAt != nil {
			ref = *job.StartedAt
		}
		if ref.Before(before) {
			stale = append(stale, cloneJob(job))
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	return stale, nil
}

// === Model ===

func (r *Repository) UpsertModel(ctx context.Context, model *domain.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := *model
	r.models[model.ID] = &m
	return nil
}

func (r *Repository) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (r *Repository) ListActiveModels(ctx context.Context) ([]*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]*domain.Model, 0, len(r.models))
	for _, m := range r.models {
		if !m.Active {
			continue
		}
		cp := *m
		models = append(models, &cp)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

func cloneJob(job *domain.Job) *domain.Job {
	cp := *job
	if job.InputData != nil {
		// JSON 互換の値のみを保持するため、往復で深い複製を作る
		if raw, err := json.Marshal(job.InputData); err == nil {
			var input map[string]any
			if json.Unmarshal(raw, &input) == nil {
				cp.InputData = input
			}
		}
	}
	if job.ResultData != nil {
		cp.ResultData = append(json.RawMessage(nil), job.ResultData...)
	}
	if job.QuestionID != nil {
		q := *job.QuestionID
		cp.QuestionID = &q
	}
	if job.ErrorMessage != nil {
		m := *job.ErrorMessage
		cp.ErrorMessage = &m
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		cp.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
