package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/review-runner/internal/module/llmjob/adapter/amqp"
	"github.com/jinford/review-runner/internal/module/llmjob/adapter/llm"
	"github.com/jinford/review-runner/internal/module/llmjob/adapter/memory"
	"github.com/jinford/review-runner/internal/module/llmjob/adapter/pg"
	"github.com/jinford/review-runner/internal/module/llmjob/adapter/queue"
	"github.com/jinford/review-runner/internal/module/llmjob/application"
	"github.com/jinford/review-runner/internal/module/llmjob/domain"
	"github.com/jinford/review-runner/internal/platform/config"
	"github.com/jinford/review-runner/internal/platform/database"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueChannel = "channel"
	QueueAMQP    = "amqp"
)

// JobContainer はジョブAPIサーバとワーカーの依存関係を保持する
type JobContainer struct {
	JobService *application.JobService
	Worker     *application.Worker
	Consumer   domain.Consumer

	logger  *slog.Logger
	closers []func()
}

type containerOptions struct {
	logger          *slog.Logger
	completer       llm.Completer
	tokenCounter    *llm.TokenCounter
	tokenCounterSet bool
}

// ContainerOption は JobContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerCompleter は LLM クライアントを差し替える
func WithContainerCompleter(completer llm.Completer) ContainerOption {
	return func(opts *containerOptions) {
		opts.completer = completer
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
// nil を渡すと文字数による近似で切り詰める
func WithContainerTokenCounter(tc *llm.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = tc
		opts.tokenCounterSet = true
	}
}

// NewJobContainer は設定からジョブAPIの依存関係を組み立てる
//
// ジョブストアは JOB_STORE（memory / postgres）、配送は JOB_QUEUE（channel / amqp）で選択する。
func NewJobContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (_ *JobContainer, err error) {
	if err := ValidateProviders(cfg); err != nil {
		return nil, err
	}

	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	c := &JobContainer{logger: options.logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Store
	var (
		jobs   domain.JobRepository
		models domain.ModelRepository
		locker domain.Locker
	)
	switch cfg.Server.JobStore {
	case StoreMemory, "":
		repo := memory.NewRepository()
		if err := application.SeedModels(ctx, repo, modelSeeds(cfg)); err != nil {
			return nil, fmt.Errorf("モデルの登録に失敗しました: %w", err)
		}
		jobs, models, locker = repo, repo, memory.NewLocker()
	case StorePostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.closers = append(c.closers, db.Close)

		if err := pg.EnsureSchema(ctx, db.Pool); err != nil {
			return nil, fmt.Errorf("スキーマの作成に失敗しました: %w", err)
		}
		provider := database.NewTransactionProvider(db.Pool)
		if _, err := database.Transact(ctx, provider, func(a *database.Adapter) (struct{}, error) {
			return struct{}{}, application.SeedModels(ctx, a.Jobs, modelSeeds(cfg))
		}); err != nil {
			return nil, fmt.Errorf("モデルの登録に失敗しました: %w", err)
		}

		repo := pg.NewRepository(db.Pool)
		jobs, models, locker = repo, repo, database.NewAdvisoryLocker(provider)
	default:
		return nil, fmt.Errorf("unknown JOB_STORE: %q", cfg.Server.JobStore)
	}

	// Queue
	var dispatcher domain.Dispatcher
	switch cfg.Server.Queue {
	case QueueChannel, "":
		ch := queue.NewChannel(0)
		c.closers = append(c.closers, ch.Close)
		dispatcher, c.Consumer = ch, ch
	case QueueAMQP:
		broker, err := amqp.Dial(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.Prefetch, options.logger)
		if err != nil {
			return nil, fmt.Errorf("AMQP 接続に失敗しました: %w", err)
		}
		c.closers = append(c.closers, func() {
			if err := broker.Close(); err != nil {
				options.logger.Warn("Failed to close AMQP connection", "error", err)
			}
		})
		dispatcher, c.Consumer = broker, broker
	default:
		return nil, fmt.Errorf("unknown JOB_QUEUE: %q", cfg.Server.Queue)
	}

	// Executors (OpenAI)
	completer := options.completer
	if completer == nil {
		client, err := llm.NewClient(cfg.OpenAI.APIKey)
		if err != nil {
			return nil, fmt.Errorf("OpenAI LLMクライアント初期化に失敗しました: %w", err)
		}
		completer = client
	}
	tokenCounter := options.tokenCounter
	if !options.tokenCounterSet {
		tc, tcErr := llm.NewTokenCounter()
		if tcErr != nil {
			// エンコーディングを取得できない環境では文字数で近似する
			options.logger.Warn("Falling back to approximate token counting", "error", tcErr)
		}
		tokenCounter = tc
	}
	promptExecutor := llm.NewPromptExecutor(completer)
	executors := map[domain.JobType]domain.Executor{
		domain.JobTypeReviewColab:             llm.NewReviewExecutor(completer, tokenCounter, cfg.OpenAI.MaxContentTokens, options.logger),
		domain.JobTypeTrainerQuestionAnalysis: promptExecutor,
		domain.JobTypeGeneralLLMRequest:       promptExecutor,
	}

	c.JobService = application.NewJobService(jobs, models, dispatcher, options.logger, application.WithLocker(locker))
	c.Worker = application.NewWorker(jobs, models, executors, options.logger, application.WithConcurrency(cfg.Worker.Concurrency))

	return c, nil
}

func modelSeeds(cfg *config.Config) []domain.Model {
	seeds := make([]domain.Model, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		seeds = append(seeds, domain.Model{ID: m.ID, Name: m.Name, Provider: m.Provider})
	}
	return seeds
}

// Close は内部リソースを解放する。後から開いたものから閉じる
func (c *JobContainer) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Logger はロガーを返す。
func (c *JobContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// ErrUnsupportedProvider は OpenAI 以外のプロバイダが設定された場合のエラー
var ErrUnsupportedProvider = errors.New("unsupported model provider")

// ValidateProviders は設定されたモデルがすべて実行可能なプロバイダかを検証する
func ValidateProviders(cfg *config.Config) error {
	for _, m := range cfg.Models {
		if m.Provider != "" && m.Provider != "openai" {
			return fmt.Errorf("%w: %s (%s)", ErrUnsupportedProvider, m.Provider, m.ID)
		}
	}
	return nil
}
