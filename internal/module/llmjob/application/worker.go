package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// DefaultConcurrency はワーカーの同時実行数の既定値
const DefaultConcurrency = 4

// interruptedMessage は実行中にワーカーが停止した場合のエラーメッセージ
const interruptedMessage = "Job interrupted: worker shutting down"

// Worker は配送されたジョブを実行します
type Worker struct {
	jobs        domain.JobRepository
	models      domain.ModelRepository
	executors   map[domain.JobType]domain.Executor
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

// WorkerOption は Worker の設定を変更します
type WorkerOption func(*Worker)

// WithConcurrency は同時に実行するジョブ数を設定します
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithWorkerClock は現在時刻の取得方法を差し替えます
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.now = now
	}
}

// NewWorker は新しいWorkerを作成します
func NewWorker(jobs domain.JobRepository, models domain.ModelRepository, executors map[domain.JobType]domain.Executor, log *slog.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		jobs:        jobs,
		models:      models,
		executors:   executors,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run は consumer から受信したジョブを同時実行数の範囲で処理します
// 受信チャネルが閉じ、実行中のジョブがすべて終わると戻ります
func (w *Worker) Run(ctx context.Context, consumer domain.Consumer) error {
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.log.Info("Worker started", "concurrency", w.concurrency)

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for d := range deliveries {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			if err := d.Nack(true); err != nil {
				w.log.Warn("Failed to requeue delivery", "jobID", d.Message.JobID, "error", err)
			}
			continue
		}

		wg.Add(1)
		go func(d domain.Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			w.handle(ctx, d)
		}(d)
	}

	wg.Wait()
	w.log.Info("Worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, d domain.Delivery) {
	if err := w.Process(ctx, d.Message); err != nil {
		w.log.Error("Failed to process job",
			"jobID", d.Message.JobID,
			"error", err,
		)
		// 停止中の失敗は再配送、それ以外は同じ失敗を繰り返さないよう破棄する
		if nackErr := d.Nack(ctx.Err() != nil); nackErr != nil {
			w.log.Warn("Failed to nack delivery", "jobID", d.Message.JobID, "error", nackErr)
		}
		return
	}
	if err := d.Ack(); err != nil {
		w.log.Warn("Failed to ack delivery", "jobID", d.Message.JobID, "error", err)
	}
}

// Process はジョブ1件を実行して結果を保存します
//
// 存在しないジョブや queued 以外のジョブは何もせず nil を返します。
// 実行器のエラーはジョブの失敗として保存され、戻り値は保存処理のエラーのみです。
func (w *Worker) Process(ctx context.Context, msg domain.JobMessage) error {
	id, err := uuid.Parse(msg.JobID)
	if err != nil {
		w.log.Warn("Discarding message with invalid job id", "jobID", msg.JobID)
		return nil
	}

	job, err := w.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			w.log.Warn("Job not found, skipping", "jobID", msg.JobID)
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	if job.Status != domain.StatusQueued {
		w.log.Info("Job already picked up, skipping",
			"jobID", job.ID,
			"status", job.Status,
		)
		return nil
	}

	if err := job.MarkProcessing(w.now()); err != nil {
		return err
	}
	if err := w.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	w.log.Info("Processing job",
		"jobID", job.ID,
		"jobType", job.Type,
		"modelID", job.ModelID,
	)

	result, execErr := w.execute(ctx, job)

	// 停止要求後も結果は保存する
	saveCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		message := execErr.Error()
		if ctx.Err() != nil {
			message = interruptedMessage
		}
		if err := job.MarkFailed(message, w.now()); err != nil {
			return err
		}
		w.log.Warn("Job failed",
			"jobID", job.ID,
			"error", execErr,
		)
	} else {
		if err := job.MarkCompleted(result, w.now()); err != nil {
			return err
		}
		w.log.Info("Job completed",
			"jobID", job.ID,
			"processingTime", *job.ProcessingTime(w.now()),
		)
	}

	if err := w.jobs.UpdateJob(saveCtx, job); err != nil {
		return fmt.Errorf("failed to save job result: %w", err)
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	executor, ok := w.executors[job.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoExecutor, job.Type)
	}

	model, err := w.models.GetModel(ctx, job.ModelID)
	if err != nil {
		return nil, err
	}
	if !model.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, job.ModelID)
	}

	return executor.Execute(ctx, job, model)
}
