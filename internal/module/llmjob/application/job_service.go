package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

const (
	// DefaultListLimit は一覧取得件数の既定値
	DefaultListLimit = 20
	// MaxListLimit は一覧取得件数の上限
	MaxListLimit = 100

	recoveryLockKey = "llm-job-recovery"
)

// SubmitInput はジョブ投入の入力です
type SubmitInput struct {
	JobType    string
	ModelID    string
	QuestionID string
	InputData  map[string]any
}

// Page は一覧取得結果のページ情報です
type Page struct {
	TotalCount int
	Limit      int
	Offset     int
	HasNext    bool
}

// RecoverOptions は滞留ジョブ回復の条件です
type RecoverOptions struct {
	// QueuedOlderThan より前に作成された queued ジョブを再配送します
	QueuedOlderThan time.Duration
	// ProcessingTimeout より前に開始された processing ジョブを失敗にします
	ProcessingTimeout time.Duration
}

// RecoverReport は回復処理の結果です
type RecoverReport struct {
	Republished int
	Failed      int
}

// JobService はLLMジョブのユースケースを提供します
type JobService struct {
	jobs       domain.JobRepository
	models     domain.ModelRepository
	dispatcher domain.Dispatcher
	locker     domain.Locker
	now        func() time.Time
	log        *slog.Logger
}

// JobServiceOption は JobService の設定を変更します
type JobServiceOption func(*JobService)

// WithClock は現在時刻の取得方法を差し替えます
func WithClock(now func() time.Time) JobServiceOption {
	return func(s *JobService) {
		s.now = now
	}
}

// WithLocker は回復処理の排他に使う Locker を設定します
func WithLocker(locker domain.Locker) JobServiceOption {
	return func(s *JobService) {
		s.locker = locker
	}
}

// NewJobService は新しいJobServiceを作成します
func NewJobService(jobs domain.JobRepository, models domain.ModelRepository, dispatcher domain.Dispatcher, log *slog.Logger, opts ...JobServiceOption) *JobService {
	s := &JobService{
		jobs:       jobs,
		models:     models,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now はサービスが使う現在時刻を返します
func (s *JobService) Now() time.Time {
	return s.now()
}

// Submit はジョブを作成してワーカーへ配送します
//
// 配送に失敗した場合、ジョブは failed として保存され ErrDispatchFailed を返します。
func (s *JobService) Submit(ctx context.Context, in SubmitInput) (*domain.Job, error) {
	jobType, err := domain.ParseJobType(in.JobType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ModelID) == "" {
		return nil, fmt.Errorf("%w: model_id is required", domain.ErrModelNotFound)
	}

	model, err := s.models.GetModel(ctx, in.ModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model %q: %w", in.ModelID, err)
	}
	if !model.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, in.ModelID)
	}

	var questionID *string
	if in.QuestionID != "" {
		qid := in.QuestionID
		questionID = &qid
	}

	job := domain.NewJob(jobType, model.ID, in.InputData, questionID, s.now())
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.dispatcher.Publish(ctx, domain.NewJobMessage(job)); err != nil {
		s.log.Error("Failed to dispatch job",
			"jobID", job.ID,
			"error", err,
		)
		if markErr := job.MarkFailed(fmt.Sprintf("Failed to queue job: %v", err), s.now()); markErr == nil {
			if updErr := s.jobs.UpdateJob(context.WithoutCancel(ctx), job); updErr != nil {
				s.log.Error("Failed to mark undispatched job as failed",
					"jobID", job.ID,
					"error", updErr,
				)
			}
		}
		return job, fmt.Errorf("%w: %v", domain.ErrDispatchFailed, err)
	}

	s.log.Info("Job submitted",
		"jobID", job.ID,
		"jobType", job.Type,
		"modelID", job.ModelID,
	)

	return job, nil
}

// Get はジョブを取得します
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Result は完了したジョブを返します
// 完了していない場合はジョブと ErrJobNotComplete を返します
func (s *JobService) Result(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusCompleted {
		return job, fmt.Errorf("%w: status is %s", domain.ErrJobNotComplete, job.Status)
	}
	return job, nil
}

// List はジョブ一覧を返します
// Limit は 1〜MaxListLimit に丸め、0 以下なら DefaultListLimit を使います
func (s *JobService) List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, Page, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	jobs, total, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, Page{}, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, Page{
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		HasNext:    filter.Offset+filter.Limit < total,
	}, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// ListModels は有効なモデル一覧を返します
func (s *JobService) ListModels(ctx context.Context) ([]*domain.Model, error) {
	models, err := s.models.ListActiveModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return models, nil
}

// GetModel はモデルを取得します（無効なモデルも返します）
func (s *JobService) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	model, err := s.models.GetModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return model, nil
}

// RecoverStuck は滞留したジョブを回復します
//
// queued のまま残ったジョブは再配送し、processing のまま制限時間を過ぎたジョブは失敗にします。
// Locker が設定されている場合、同時に実行できる回復処理は1つだけです。
func (s *JobService) RecoverStuck(ctx context.Context, opts RecoverOptions) (RecoverReport, error) {
	if s.locker == nil {
		return s.recoverStuck(ctx, opts)
	}

	var report RecoverReport
	acquired, err := s.locker.TryWithLock(ctx, recoveryLockKey, func(ctx context.Context) error {
		var err error
		report, err = s.recoverStuck(ctx, opts)
		return err
	})
	if err != nil {
		return report, err
	}
	if !acquired {
		return report, domain.ErrRecoveryRunning
	}
	return report, nil
}

func (s *JobService) recoverStuck(ctx context.Context, opts RecoverOptions) (RecoverReport, error) {
	var report RecoverReport
	now := s.now()

	if opts.QueuedOlderThan > 0 {
		queued, err := s.jobs.ListStaleJobs(ctx, domain.StatusQueued, now.Add(-opts.QueuedOlderThan))
		if err != nil {
			return report, fmt.Errorf("failed to list stale queued jobs: %w", err)
		}
		for _, job := range queued {
			if err := s.dispatcher.Publish(ctx, domain.NewJobMessage(job)); err != nil {
				return report, fmt.Errorf("failed to republish job %s: %w", job.ID, err)
			}
			report.Republished++
			s.log.Info("Republished stale job",
				"jobID", job.ID,
				"createdAt", job.CreatedAt,
			)
		}
	}

	if opts.ProcessingTimeout > 0 {
		processing, err := s.jobs.ListStaleJobs(ctx, domain.StatusProcessing, now.Add(-opts.ProcessingTimeout))
		if err != nil {
			return report, fmt.Errorf("failed to list stuck processing jobs: %w", err)
		}
		for _, job := range processing {
			msg := fmt.Sprintf("Job automatically cancelled after %s of processing", formatMinutes(opts.ProcessingTimeout))
			if err := job.MarkFailed(msg, now); err != nil {
				if errors.Is(err, domain.ErrInvalidTransition) {
					continue
				}
				return report, err
			}
			if err := s.jobs.UpdateJob(ctx, job); err != nil {
				return report, fmt.Errorf("failed to cancel job %s: %w", job.ID, err)
			}
			report.Failed++
			s.log.Warn("Cancelled stuck job",
				"jobID", job.ID,
				"startedAt", job.StartedAt,
			)
		}
	}

	return report, nil
}

func formatMinutes(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
