package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/review-runner/internal/module/review/adapter/preset"
	"github.com/jinford/review-runner/internal/module/review/adapter/terminal"
	"github.com/jinford/review-runner/internal/module/review/application"
	"github.com/jinford/review-runner/internal/module/review/domain"
)

// AnalysisIdleLabel は分析バッチ終了時のトリガーラベル
const AnalysisIdleLabel = "Run Analysis"

// ErrAllJobsFailed はバッチ内のすべてのジョブが失敗した場合のエラー
var ErrAllJobsFailed = errors.New("all jobs failed")

// batchPlan はレビュー・分析コマンド共通のバッチ実行内容
type batchPlan struct {
	request      application.BatchRequest
	processType  application.ProcessType
	idleLabel    string
	pollInterval time.Duration
}

// ReviewRunAction はノートブックを複数モデルでレビューするコマンドのアクション
func ReviewRunAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	p, err := preset.Load(cmd.String("preset"))
	if err != nil {
		return err
	}

	content, err := os.ReadFile(cmd.String("colab-file"))
	if err != nil {
		return fmt.Errorf("ノートブックの読み込みに失敗: %w", err)
	}

	workers := selectWorkers(cmd.StringSlice("model"), p)
	if len(workers) == 0 {
		return domain.ErrNoWorkers
	}

	temperature := p.Temperature
	if cmd.IsSet("temperature") {
		temperature = cmd.Float("temperature")
	}
	additional := p.AdditionalContext
	if cmd.IsSet("context") {
		additional = cmd.String("context")
	}
	questionID := p.QuestionID
	if cmd.IsSet("question-id") {
		questionID = cmd.String("question-id")
	}

	plan := batchPlan{
		request: application.BatchRequest{
			JobType: domain.JobTypeReviewColab,
			Workers: workers,
			InputData: map[string]any{
				"colab_content":      string(content),
				"additional_context": additional,
				"temperature":        temperature,
			},
			QuestionID: questionID,
		},
		processType:  application.ProcessReviewAnalysis,
		idleLabel:    application.DefaultIdleLabel,
		pollInterval: pollInterval(cmd, appCtx, p),
	}

	return runBatch(ctx, appCtx, os.Stdout, plan)
}

// AnalysisRunAction は任意のプロンプトを複数モデルで分析するコマンドのアクション
func AnalysisRunAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	p, err := preset.Load(cmd.String("preset"))
	if err != nil {
		return err
	}

	input, err := os.ReadFile(cmd.String("input-file"))
	if err != nil {
		return fmt.Errorf("入力ファイルの読み込みに失敗: %w", err)
	}
	if strings.TrimSpace(string(input)) == "" {
		return fmt.Errorf("入力ファイルが空です: %s", cmd.String("input-file"))
	}

	workers := selectWorkers(cmd.StringSlice("model"), p)
	if len(workers) == 0 {
		return domain.ErrNoWorkers
	}

	jobType := domain.JobTypeTrainerQuestionAnalysis
	if cmd.Bool("general") {
		jobType = domain.JobTypeGeneralLLMRequest
	}

	questionID := p.QuestionID
	if cmd.IsSet("question-id") {
		questionID = cmd.String("question-id")
	}

	plan := batchPlan{
		request: application.BatchRequest{
			JobType: jobType,
			Workers: workers,
			InputData: map[string]any{
				"system_message": cmd.String("system"),
				"full_input":     string(input),
				"temperature":    p.Temperature,
			},
			QuestionID: questionID,
		},
		processType:  application.ProcessTrainerAnalysis,
		idleLabel:    AnalysisIdleLabel,
		pollInterval: pollInterval(cmd, appCtx, p),
	}

	return runBatch(ctx, appCtx, os.Stdout, plan)
}

// selectWorkers は --model 指定を優先し、なければプリセットのモデルを使う
func selectWorkers(flagModels []string, p *preset.Preset) []domain.Worker {
	var specs []string
	for _, m := range flagModels {
		specs = append(specs, strings.Split(m, ",")...)
	}
	if workers := preset.ParseWorkers(specs); len(workers) > 0 {
		return workers
	}
	return p.Workers()
}

func pollInterval(cmd *cli.Command, appCtx *AppContext, p *preset.Preset) time.Duration {
	if cmd.IsSet("poll-interval") {
		return cmd.Duration("poll-interval")
	}
	if cmd.String("preset") != "" && p.PollInterval > 0 {
		return p.PollInterval
	}
	return appCtx.Config.JobAPI.PollInterval
}

// runBatch はバッチを投入し、すべて終端するまで待って結果の表を出力する
func runBatch(ctx context.Context, appCtx *AppContext, out io.Writer, plan batchPlan) error {
	log := appCtx.Logger()

	board := terminal.NewBoard(out)
	trigger := terminal.NewTrigger(out, log)
	if appCtx.Processes == nil {
		appCtx.Processes = application.NewProcessRegistry(log)
	}
	registry := appCtx.Processes
	unwatch := trigger.Watch(registry, plan.idleLabel)
	defer unwatch()

	coord := application.NewCoordinator(appCtx.JobAPIClient(), board, trigger,
		application.WithPollInterval(plan.pollInterval),
		application.WithIdleLabel(plan.idleLabel),
		application.WithProcessRegistry(registry, plan.processType),
		application.WithLogger(log),
	)

	batch, err := coord.Start(ctx, plan.request)
	if err != nil {
		return err
	}

	outcomes, err := batch.Wait(ctx)
	if err != nil {
		coord.Stop()
		return fmt.Errorf("バッチの待機を中断: %w", err)
	}

	fmt.Fprintln(out)
	if err := terminal.WriteSummary(out, outcomes); err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.State == domain.CardStateError {
			failed++
		}
	}
	if failed == len(outcomes) {
		return fmt.Errorf("%w (%d jobs)", ErrAllJobsFailed, failed)
	}
	return nil
}
