package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/llmjob/adapter/memory"
	"github.com/jinford/review-runner/internal/module/llmjob/adapter/queue"
	"github.com/jinford/review-runner/internal/module/llmjob/application"
	"github.com/jinford/review-runner/internal/module/llmjob/domain"
	llmjobtesting "github.com/jinford/review-runner/internal/module/llmjob/testing"
)

type workerFixture struct {
	repo     *memory.Repository
	executor *llmjobtesting.MockExecutor
	worker   *application.Worker
}

func newWorkerFixture(t *testing.T, opts ...application.WorkerOption) *workerFixture {
	t.Helper()

	f := &workerFixture{
		repo:     memory.NewRepository(),
		executor: &llmjobtesting.MockExecutor{},
	}
	require.NoError(t, f.repo.UpsertModel(context.Background(), llmjobtesting.TestModel("gpt-4o")))

	executors := map[domain.JobType]domain.Executor{
		domain.JobTypeReviewColab:       f.executor,
		domain.JobTypeGeneralLLMRequest: f.executor,
	}
	f.worker = application.NewWorker(f.repo, f.repo, executors, testLogger(), opts...)
	return f
}

func (f *workerFixture) createJob(t *testing.T, jobType domain.JobType) *domain.Job {
	t.Helper()
	job := llmjobtesting.TestJob(jobType, "gpt-4o", map[string]any{"full_input": "hello"})
	require.NoError(t, f.repo.CreateJob(context.Background(), job))
	return job
}

func (f *workerFixture) reload(t *testing.T, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := f.repo.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestWorker_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("実行結果を保存して完了にする", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.createJob(t, domain.JobTypeGeneralLLMRequest)

		var seenStatus domain.Status
		var seenModel string
		f.executor.ExecuteFunc = func(ctx context.Context, j *domain.Job, m *domain.Model) (json.RawMessage, error) {
			seenStatus = f.reload(t, j.ID).Status
			seenModel = m.ID
			return json.RawMessage(`{"success":true,"result":"hi"}`), nil
		}

		require.NoError(t, f.worker.Process(ctx, domain.NewJobMessage(job)))

		got := f.reload(t, job.ID)
		assert.Equal(t, domain.StatusProcessing, seenStatus)
		assert.Equal(t, "gpt-4o", seenModel)
		assert.Equal(t, domain.StatusCompleted, got.Status)
		assert.JSONEq(t, `{"success":true,"result":"hi"}`, string(got.ResultData))
		assert.NotNil(t, got.StartedAt)
		assert.NotNil(t, got.CompletedAt)
		assert.Nil(t, got.ErrorMessage)
	})

	t.Run("実行器のエラーはジョブの失敗になる", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.createJob(t, domain.JobTypeReviewColab)
		f.executor.ExecuteFunc = func(context.Context, *domain.Job, *domain.Model) (json.RawMessage, error) {
			return nil, errors.New("OpenAI API call failed: bad request")
		}

		require.NoError(t, f.worker.Process(ctx, domain.NewJobMessage(job)))

		got := f.reload(t, job.ID)
		assert.Equal(t, domain.StatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "OpenAI API call failed: bad request", *got.ErrorMessage)
	})

	t.Run("実行器のないジョブ種別", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.createJob(t, domain.JobTypeTrainerQuestionAnalysis)

		require.NoError(t, f.worker.Process(ctx, domain.NewJobMessage(job)))

		got := f.reload(t, job.ID)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Contains(t, *got.ErrorMessage, domain.ErrNoExecutor.Error())
	})

	t.Run("無効になったモデル", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.createJob(t, domain.JobTypeGeneralLLMRequest)
		require.NoError(t, f.repo.UpsertModel(ctx, &domain.Model{ID: "gpt-4o", Name: "gpt-4o", Active: false}))

		require.NoError(t, f.worker.Process(ctx, domain.NewJobMessage(job)))

		got := f.reload(t, job.ID)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Contains(t, *got.ErrorMessage, domain.ErrModelNotFound.Error())
	})

	t.Run("存在しないジョブと不正なIDは無視する", func(t *testing.T) {
		f := newWorkerFixture(t)
		var calls atomic.Int32
		f.executor.ExecuteFunc = func(context.Context, *domain.Job, *domain.Model) (json.RawMessage, error) {
			calls.Add(1)
			return nil, nil
		}

		assert.NoError(t, f.worker.Process(ctx, domain.JobMessage{JobID: uuid.NewString()}))
		assert.NoError(t, f.worker.Process(ctx, domain.JobMessage{JobID: "not-a-uuid"}))
		assert.Zero(t, calls.Load())
	})

	t.Run("処理済みのジョブは再実行しない", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.createJob(t, domain.JobTypeGeneralLLMRequest)
		var calls atomic.Int32
		f.executor.ExecuteFunc = func(context.Context, *domain.Job, *domain.Model) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{}`), nil
		}

		require.NoError(t, f.worker.Process(ctx, domain.NewJobMessage(job)))
		require.NoError(t, f.worker.Process(ctx, domain.NewJobMessage(job)))

		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("停止要求で中断したジョブ", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := f.createJob(t, domain.JobTypeGeneralLLMRequest)
		runCtx, cancel := context.WithCancel(ctx)
		f.executor.ExecuteFunc = func(ctx context.Context, _ *domain.Job, _ *domain.Model) (json.RawMessage, error) {
			cancel()
			return nil, ctx.Err()
		}

		require.NoError(t, f.worker.Process(runCtx, domain.NewJobMessage(job)))

		got := f.reload(t, job.ID)
		assert.Equal(t, domain.StatusFailed, got.Status)
		assert.Equal(t, "Job interrupted: worker shutting down", *got.ErrorMessage)
	})

	t.Run("保存に失敗した場合はエラーを返す", func(t *testing.T) {
		jobs := &llmjobtesting.MockJobRepository{}
		job := llmjobtesting.TestJob(domain.JobTypeGeneralLLMRequest, "gpt-4o", nil)
		jobs.GetJobFunc = func(context.Context, uuid.UUID) (*domain.Job, error) { return job, nil }
		jobs.UpdateJobFunc = func(context.Context, *domain.Job) error { return errors.New("db down") }
		w := application.NewWorker(jobs, &llmjobtesting.MockModelRepository{}, nil, testLogger())

		err := w.Process(ctx, domain.NewJobMessage(job))

		assert.ErrorContains(t, err, "db down")
	})
}

func TestWorker_Run(t *testing.T) {
	t.Run("受信したジョブをすべて処理してAckする", func(t *testing.T) {
		f := newWorkerFixture(t, application.WithConcurrency(2))

		var running, maxRunning atomic.Int32
		f.executor.ExecuteFunc = func(context.Context, *domain.Job, *domain.Model) (json.RawMessage, error) {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return json.RawMessage(`{}`), nil
		}

		var deliveries []*llmjobtesting.MessageDelivery
		consumer := &llmjobtesting.StaticConsumer{}
		var jobs []*domain.Job
		for i := 0; i < 5; i++ {
			job := f.createJob(t, domain.JobTypeGeneralLLMRequest)
			jobs = append(jobs, job)
			d := llmjobtesting.NewDelivery(domain.NewJobMessage(job))
			deliveries = append(deliveries, d)
			consumer.Deliveries = append(consumer.Deliveries, d.Delivery)
		}

		require.NoError(t, f.worker.Run(context.Background(), consumer))

		for i, d := range deliveries {
			assert.True(t, d.Acked(), "delivery %d", i)
			assert.Equal(t, domain.StatusCompleted, f.reload(t, jobs[i].ID).Status)
		}
		assert.LessOrEqual(t, maxRunning.Load(), int32(2))
	})

	t.Run("処理エラーはNackする", func(t *testing.T) {
		jobs := &llmjobtesting.MockJobRepository{
			GetJobFunc: func(context.Context, uuid.UUID) (*domain.Job, error) { return nil, errors.New("db down") },
		}
		w := application.NewWorker(jobs, &llmjobtesting.MockModelRepository{}, nil, testLogger())
		d := llmjobtesting.NewDelivery(domain.JobMessage{JobID: uuid.NewString()})

		require.NoError(t, w.Run(context.Background(), &llmjobtesting.StaticConsumer{Deliveries: []domain.Delivery{d.Delivery}}))

		nacked, requeue := d.Nacked()
		assert.True(t, nacked)
		assert.False(t, requeue)
		assert.False(t, d.Acked())
	})

	t.Run("受信開始の失敗", func(t *testing.T) {
		f := newWorkerFixture(t)
		err := f.worker.Run(context.Background(), &llmjobtesting.StaticConsumer{Err: errors.New("no channel")})
		assert.ErrorContains(t, err, "no channel")
	})

	t.Run("チャネルキュー経由で処理する", func(t *testing.T) {
		f := newWorkerFixture(t)
		q := queue.NewChannel(8)
		job := f.createJob(t, domain.JobTypeGeneralLLMRequest)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.worker.Run(ctx, q) }()

		require.NoError(t, q.Publish(context.Background(), domain.NewJobMessage(job)))
		require.Eventually(t, func() bool {
			return f.reload(t, job.ID).Status == domain.StatusCompleted
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop")
		}
	})
}
