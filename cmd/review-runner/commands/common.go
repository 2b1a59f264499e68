package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jinford/review-runner/internal/module/review/adapter/jobapi"
	reviewapp "github.com/jinford/review-runner/internal/module/review/application"
	"github.com/jinford/review-runner/internal/platform/config"
	"github.com/jinford/review-runner/internal/platform/container"
	"github.com/jinford/review-runner/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.JobContainer
	// Processes は実行中の分析バッチを追跡する。同じプロセスのバッチで共有する
	Processes *reviewapp.ProcessRegistry

	logger *slog.Logger
}

// NewAppContext は設定ファイルを読み込み AppContext を作成する
// ログは標準エラーに出力し、標準出力はレビュー結果の表示に使う
func NewAppContext(envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	logCfg := logger.FromStrings(cfg.Log.Level, cfg.Log.Format)
	logCfg.Output = os.Stderr
	appLogger := logger.New(logCfg)

	return &AppContext{
		Config:    cfg,
		Processes: reviewapp.NewProcessRegistry(appLogger),
		logger:    appLogger,
	}, nil
}

// JobAPIClient はジョブAPIクライアントを作成する
func (ac *AppContext) JobAPIClient() *jobapi.Client {
	return jobapi.NewClient(
		ac.Config.JobAPI.BaseURL,
		ac.Config.JobAPI.RequestTimeout,
		jobapi.WithToken(ac.Config.JobAPI.Token),
		jobapi.WithLogger(ac.logger),
	)
}

// OpenJobContainer はジョブストア・キュー・ワーカーを初期化する
func (ac *AppContext) OpenJobContainer(ctx context.Context) (*container.JobContainer, error) {
	if ac.Container != nil {
		return ac.Container, nil
	}
	cont, err := container.NewJobContainer(ctx, ac.Config, container.WithContainerLogger(ac.logger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}
	ac.Container = cont
	return cont, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.logger != nil {
		return ac.logger
	}
	return slog.Default()
}
