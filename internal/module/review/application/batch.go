package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

// PollSession はジョブ1件・タイマー1本・プレースホルダー1つの束縛です
type PollSession struct {
	JobID       string
	Worker      domain.Worker
	Placeholder domain.Placeholder
	cancel      context.CancelFunc
}

// Batch は1回のファンアウト投入で作られたセッションの集合です
// 未終端のプレースホルダー数は mu の下でのみ読み書きします
type Batch struct {
	ID string

	processType ProcessType
	idleLabel   string
	trigger     domain.Trigger
	registry    *ProcessRegistry
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	order     []string
	pending   map[string]struct{}
	sessions  map[string]*PollSession
	outcomes  map[string]Outcome
	history   []int
	submitted int
	closed    bool

	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

func newBatch(ctx context.Context, id string, pt ProcessType, idleLabel string, trigger domain.Trigger, registry *ProcessRegistry, log *slog.Logger) *Batch {
	bctx, cancel := context.WithCancel(ctx)
	return &Batch{
		ID:          id,
		processType: pt,
		idleLabel:   idleLabel,
		trigger:     trigger,
		registry:    registry,
		log:         log,
		ctx:         bctx,
		cancel:      cancel,
		pending:     make(map[string]struct{}),
		sessions:    make(map[string]*PollSession),
		outcomes:    make(map[string]Outcome),
		done:        make(chan struct{}),
	}
}

func processingLabel(n int) string {
	return fmt.Sprintf("Processing %d job(s)...", n)
}

// addPlaceholder は未終端のプレースホルダーを登録します
func (b *Batch) addPlaceholder(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = append(b.order, key)
	b.pending[key] = struct{}{}
}

// startSession は投入に成功したジョブのポーリングを開始します
func (b *Batch) startSession(jobID string, worker domain.Worker, target domain.Placeholder, poller *Poller) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.submitted++
	sctx, scancel := context.WithCancel(b.ctx)
	b.sessions[jobID] = &PollSession{
		JobID:       jobID,
		Worker:      worker,
		Placeholder: target,
		cancel:      scancel,
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer scancel()

		out := poller.Poll(sctx, jobID, worker, target)

		b.mu.Lock()
		delete(b.sessions, jobID)
		b.mu.Unlock()

		if out.Cancelled {
			return
		}
		b.markTerminal(worker.ID, out)
	}()
}

// markTerminal はプレースホルダーを終端済みにし、集計ラベルを更新します
// 同じキーに対する2回目以降の呼び出しは無視されます
func (b *Batch) markTerminal(key string, out Outcome) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, ok := b.pending[key]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	b.outcomes[key] = out
	remaining := len(b.pending)
	b.history = append(b.history, remaining)

	if remaining > 0 {
		b.trigger.Busy(processingLabel(remaining))
		b.mu.Unlock()
		return
	}

	b.closed = true
	b.trigger.Idle(b.idleLabel)
	b.mu.Unlock()

	b.log.Info("Batch finished", "batchID", b.ID, "jobs", len(b.order))
	b.release()
}

// afterFanOut は全投入の完了後に呼ばれます
func (b *Batch) afterFanOut() {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := len(b.order) - b.submitted
	if b.submitted == 0 {
		b.trigger.Notify("All jobs failed to submit. Please try again.")
		return
	}
	if failed > 0 {
		b.log.Warn("Some jobs failed to submit", "batchID", b.ID, "failed", failed)
	}
	if !b.closed && len(b.pending) > 0 {
		b.trigger.Busy(processingLabel(len(b.pending)))
	}
}

// teardown は全タイマーを止め、ポーリング goroutine の終了を待ちます
// サーバ側のジョブは止めません
func (b *Batch) teardown() {
	b.mu.Lock()
	b.closed = true
	for _, s := range b.sessions {
		s.cancel()
	}
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	b.release()
}

// watchParent は投入元の ctx がキャンセルされたときにバッチを閉じるよう登録します
// ファンアウト後に呼ぶため、トリガーへの最後の操作は常に Idle になります
func (b *Batch) watchParent() {
	context.AfterFunc(b.ctx, b.abandon)
}

// abandon は投入元の ctx のキャンセルでバッチを終了させます
// 終了済みまたは teardown 中のバッチには何もしません
func (b *Batch) abandon() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.sessions {
		s.cancel()
	}
	remaining := len(b.pending)
	b.trigger.Idle(b.idleLabel)
	b.mu.Unlock()

	b.log.Info("Batch cancelled", "batchID", b.ID, "remaining", remaining)
	b.wg.Wait()
	b.release()
}

func (b *Batch) release() {
	b.doneOnce.Do(func() {
		if b.registry != nil {
			b.registry.Remove(b.processType, b.ID)
		}
		close(b.done)
	})
	b.cancel()
}

// Done はバッチが終了（全件終端または破棄）したときに閉じられます
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait はバッチの終了を待ち、結果を返します
func (b *Batch) Wait(ctx context.Context) ([]Outcome, error) {
	select {
	case <-b.done:
		return b.Outcomes(), nil
	case <-ctx.Done():
		return b.Outcomes(), ctx.Err()
	}
}

// Outcomes は終端済みジョブの結果を投入順に返します
func (b *Batch) Outcomes() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	outcomes := make([]Outcome, 0, len(b.outcomes))
	for _, key := range b.order {
		if out, ok := b.outcomes[key]; ok {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes
}

// Remaining は未終端のプレースホルダー数を返します
func (b *Batch) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// ActiveSessions はポーリング中のセッション数を返します
func (b *Batch) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// Submitted は投入に成功したジョブ数を返します
func (b *Batch) Submitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitted
}

// RemainingHistory は終端遷移ごとの残数を記録順に返します
func (b *Batch) RemainingHistory() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.history...)
}
