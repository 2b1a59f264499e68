package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

// DefaultPollInterval はステータス確認の既定間隔です
const DefaultPollInterval = 2 * time.Second

// Outcome はジョブ1件の最終結果です
type Outcome struct {
	Worker         domain.Worker
	JobID          string
	State          domain.CardState
	Status         domain.JobStatus
	Headline       string
	Message        string
	ProcessingTime *float64
	Ticks          int
	Cancelled      bool
}

// Poller はジョブ1件のステータスを終端状態になるまで確認し続けます
//
// 間隔は前回のリクエストが返ってから計測するため、遅いAPIに対しては自然に間引かれます。
// リトライやタイムアウトは持ちません。1回の確認失敗はそのジョブの終端失敗として扱います。
type Poller struct {
	api      domain.JobAPI
	renderer *Renderer
	interval time.Duration
	log      *slog.Logger
}

// NewPoller は新しいPollerを作成します
func NewPoller(api domain.JobAPI, renderer *Renderer, interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		api:      api,
		renderer: renderer,
		interval: interval,
		log:      log,
	}
}

// Poll は jobID を終端状態まで確認し、結果を target に描画します
// ctx がキャンセルされた場合は描画せずに Cancelled=true を返します
func (p *Poller) Poll(ctx context.Context, jobID string, worker domain.Worker, target domain.Placeholder) Outcome {
	out := Outcome{Worker: worker, JobID: jobID}

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			out.Cancelled = true
			return out
		case <-timer.C:
		}

		out.Ticks++
		resp, err := p.api.Status(ctx, jobID)
		if ctx.Err() != nil {
			out.Cancelled = true
			return out
		}

		if err != nil {
			p.log.Warn("Job status check failed", "jobID", jobID, "modelID", worker.ID, "error", err)
			card := p.renderer.PollingError(worker.Name, err)
			render(target, card)
			return finish(out, card, "")
		}

		if !resp.Success {
			p.log.Warn("Job status unavailable", "jobID", jobID, "modelID", worker.ID, "error", resp.Error)
			card := p.renderer.StatusCheckFailed(worker.Name, resp.Error)
			render(target, card)
			return finish(out, card, "")
		}

		if !resp.IsComplete {
			p.log.Debug("Job still running", "jobID", jobID, "status", resp.Status, "tick", out.Ticks)
			render(target, p.renderer.Progress(worker.Name, jobID, resp))
			timer.Reset(p.interval)
			continue
		}

		card := p.renderer.Terminal(worker.Name, resp)
		render(target, card)
		out.ProcessingTime = resp.ProcessingTime
		p.log.Info("Job finished", "jobID", jobID, "modelID", worker.ID, "status", resp.Status, "ticks", out.Ticks)
		return finish(out, card, resp.Status.Normalize())
	}
}

func finish(out Outcome, card domain.Card, status domain.JobStatus) Outcome {
	out.State = card.State
	out.Status = status
	out.Headline = card.Headline
	out.Message = card.Message
	return out
}

// render は切り離されたプレースホルダーへの描画を無視します
func render(target domain.Placeholder, card domain.Card) {
	if target == nil || !target.Attached() {
		return
	}
	target.Render(card)
}
