package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

// DefaultIdleLabel はバッチが終了したときのトリガーラベルです
const DefaultIdleLabel = "Run Review"

// BatchRequest は1回のファンアウト投入の内容です
type BatchRequest struct {
	JobType    domain.JobType
	Workers    []domain.Worker
	InputData  map[string]any
	QuestionID string
}

// Coordinator は複数モデルへのジョブ投入とポーリングを束ねます
// 同時に保持するバッチは1つだけで、新しい Start は前のバッチを破棄してから始まります
type Coordinator struct {
	api         domain.JobAPI
	board       domain.Board
	trigger     domain.Trigger
	registry    *ProcessRegistry
	processType ProcessType
	interval    time.Duration
	idleLabel   string
	log         *slog.Logger

	mu      sync.Mutex
	current *Batch
}

// CoordinatorOption は Coordinator 構築時のオプション
type CoordinatorOption func(*Coordinator)

// WithPollInterval はポーリング間隔を変更する
func WithPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.interval = d
	}
}

// WithIdleLabel は終了時のトリガーラベルを変更する
func WithIdleLabel(label string) CoordinatorOption {
	return func(c *Coordinator) {
		c.idleLabel = label
	}
}

// WithProcessRegistry は実行中プロセスの共有レジストリを設定する
func WithProcessRegistry(registry *ProcessRegistry, pt ProcessType) CoordinatorOption {
	return func(c *Coordinator) {
		c.registry = registry
		c.processType = pt
	}
}

// WithLogger はロガーを差し替える
func WithLogger(log *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

// NewCoordinator は新しいCoordinatorを作成します
func NewCoordinator(api domain.JobAPI, board domain.Board, trigger domain.Trigger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		api:         api,
		board:       board,
		trigger:     trigger,
		processType: ProcessReviewAnalysis,
		interval:    DefaultPollInterval,
		idleLabel:   DefaultIdleLabel,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start は前のバッチを破棄し、req.Workers へジョブを並列投入します
// 投入が全て返った時点で戻り、ポーリングはバックグラウンドで続きます
func (c *Coordinator) Start(ctx context.Context, req BatchRequest) (*Batch, error) {
	workers := dedupeWorkers(req.Workers)
	if len(workers) == 0 {
		return nil, domain.ErrNoWorkers
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.log.Info("Tearing down previous batch", "batchID", c.current.ID)
		c.current.teardown()
		c.current = nil
	}

	if c.registry != nil {
		if others := c.registry.OtherRunning(c.processType); len(others) > 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrAnalysisRunning, strings.Join(others, ", "))
		}
	}

	c.board.Clear()

	renderer := NewRenderer(req.JobType)
	poller := NewPoller(c.api, renderer, c.interval, c.log)

	batch := newBatch(ctx, uuid.NewString(), c.processType, c.idleLabel, c.trigger, c.registry, c.log)
	c.current = batch
	if c.registry != nil {
		c.registry.Add(c.processType, batch.ID)
	}

	c.log.Info("Submitting batch", "batchID", batch.ID, "jobType", req.JobType, "workers", len(workers))
	c.trigger.Busy("Submitting jobs...")

	placeholders := make([]domain.Placeholder, len(workers))
	for i, w := range workers {
		placeholders[i] = c.board.NewPlaceholder(w.ID, w.Name)
		render(placeholders[i], renderer.Submitting(w.Name))
		batch.addPlaceholder(w.ID)
	}

	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			c.submitOne(batch, poller, renderer, req, w, placeholders[i])
			return nil
		})
	}
	_ = g.Wait()

	batch.afterFanOut()
	batch.watchParent()
	return batch, nil
}

func (c *Coordinator) submitOne(batch *Batch, poller *Poller, renderer *Renderer, req BatchRequest, w domain.Worker, target domain.Placeholder) {
	res := c.api.Submit(batch.ctx, domain.SubmitRequest{
		JobType:    req.JobType,
		ModelID:    w.ID,
		InputData:  req.InputData,
		QuestionID: req.QuestionID,
	})

	if !res.Success {
		c.log.Warn("Job submission failed", "batchID", batch.ID, "modelID", w.ID, "error", res.Error)
		card := renderer.SubmissionFailed(w.Name, res.Error)
		render(target, card)
		batch.markTerminal(w.ID, Outcome{
			Worker:   w,
			State:    card.State,
			Headline: card.Headline,
			Message:  card.Message,
		})
		return
	}

	c.log.Info("Job submitted", "batchID", batch.ID, "modelID", w.ID, "jobID", res.JobID)
	render(target, renderer.Submitted(w.Name, res.JobID))
	batch.startSession(res.JobID, w, target, poller)
}

// Current は現在のバッチを返します（なければ nil）
func (c *Coordinator) Current() *Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop は現在のバッチを破棄します
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.teardown()
		c.current = nil
	}
}

func dedupeWorkers(workers []domain.Worker) []domain.Worker {
	seen := make(map[string]struct{}, len(workers))
	result := make([]domain.Worker, 0, len(workers))
	for _, w := range workers {
		if w.ID == "" {
			continue
		}
		if _, ok := seen[w.ID]; ok {
			continue
		}
		seen[w.ID] = struct{}{}
		if w.Name == "" {
			w.Name = w.ID
		}
		result = append(result, w)
	}
	return result
}
