package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/review-runner/internal/module/llmjob/adapter/httpapi"
	"github.com/jinford/review-runner/internal/module/llmjob/application"
	"github.com/jinford/review-runner/internal/module/llmjob/domain"
	"github.com/jinford/review-runner/internal/platform/container"
)

const (
	shutdownTimeout = 10 * time.Second
	// recoveryInterval は滞留ジョブ回復の実行間隔
	recoveryInterval = time.Minute
)

// ServerStartAction はジョブAPIサーバを起動するコマンドのアクション
// --no-worker を指定しない限り、同じプロセスでワーカーと滞留ジョブ回復も動かす
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}
	withWorker := !cmd.Bool("no-worker")
	if !withWorker && appCtx.Config.Server.Queue != container.QueueAMQP {
		return fmt.Errorf("--no-worker は JOB_QUEUE=%s の場合のみ指定できます", container.QueueAMQP)
	}

	cont, err := appCtx.OpenJobContainer(ctx)
	if err != nil {
		return err
	}
	log := appCtx.Logger()

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(cont.JobService, httpapi.RouterConfig{
		APIToken: appCtx.Config.Server.APIToken,
		Logger:   log,
	})
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Job API server listening", "addr", srv.Addr, "store", appCtx.Config.Server.JobStore, "queue", appCtx.Config.Server.Queue)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTPサーバの起動に失敗: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down job API server")
		return srv.Shutdown(shutdownCtx)
	})

	if withWorker {
		g.Go(func() error {
			return cont.Worker.Run(gctx, cont.Consumer)
		})
		g.Go(func() error {
			return runRecoveryLoop(gctx, cont.JobService, recoverOptions(appCtx), recoveryInterval, log)
		})
	}

	return g.Wait()
}

// WorkerStartAction はジョブワーカーのみを起動するコマンドのアクション
// API サーバと同じストアとキューを共有するため postgres と amqp が必要
func WorkerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	if cfg.Server.JobStore != container.StorePostgres || cfg.Server.Queue != container.QueueAMQP {
		return fmt.Errorf("worker start には JOB_STORE=%s と JOB_QUEUE=%s が必要です", container.StorePostgres, container.QueueAMQP)
	}

	cont, err := appCtx.OpenJobContainer(ctx)
	if err != nil {
		return err
	}
	log := appCtx.Logger()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Job worker started", "concurrency", cfg.Worker.Concurrency)
		return cont.Worker.Run(gctx, cont.Consumer)
	})
	g.Go(func() error {
		return runRecoveryLoop(gctx, cont.JobService, recoverOptions(appCtx), recoveryInterval, log)
	})
	return g.Wait()
}

func recoverOptions(appCtx *AppContext) application.RecoverOptions {
	return application.RecoverOptions{
		QueuedOlderThan:   appCtx.Config.Worker.StuckThreshold,
		ProcessingTimeout: appCtx.Config.Worker.ProcessingTimeout,
	}
}

// runRecoveryLoop は ctx が終わるまで interval ごとに滞留ジョブを回復する
// 前回の回復が終わっていない回と、他のプロセスが回復中の回はスキップする
func runRecoveryLoop(ctx context.Context, svc *application.JobService, opts application.RecoverOptions, interval time.Duration, log *slog.Logger) error {
	cronLog := cronLogger{log: log}
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.SkipIfStillRunning(cronLog)),
	)

	schedule := "@every " + interval.String()
	if _, err := scheduler.AddFunc(schedule, func() {
		recoverOnce(ctx, svc, opts, log)
	}); err != nil {
		return fmt.Errorf("回復ジョブの登録に失敗: %w", err)
	}

	scheduler.Start()
	log.Info("Stuck job recovery scheduled", "schedule", schedule)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}

func recoverOnce(ctx context.Context, svc *application.JobService, opts application.RecoverOptions, log *slog.Logger) {
	report, err := svc.RecoverStuck(ctx, opts)
	switch {
	case errors.Is(err, domain.ErrRecoveryRunning):
		log.Debug("Recovery already running elsewhere")
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		log.Error("Failed to recover stuck jobs", "error", err)
	case report.Republished > 0 || report.Failed > 0:
		log.Info("Recovered stuck jobs", "republished", report.Republished, "failed", report.Failed)
	}
}

// cronLogger は cron のログを slog に流す
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
