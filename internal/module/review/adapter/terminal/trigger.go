package terminal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jinford/review-runner/internal/module/review/application"
)

// RunningLabel は別の分析が実行中のときに表示するラベルです
const RunningLabel = "Analysis Running..."

// Trigger はバッチの進行状況を1行ずつ出力するトリガーです
type Trigger struct {
	mu    sync.Mutex
	w     io.Writer
	log   *slog.Logger
	label string
	busy  bool
}

// NewTrigger は新しいTriggerを作成します
func NewTrigger(w io.Writer, log *slog.Logger) *Trigger {
	if log == nil {
		log = slog.Default()
	}
	return &Trigger{w: w, log: log}
}

func (t *Trigger) Busy(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = true
	t.setLocked(label)
}

func (t *Trigger) Idle(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
	t.setLocked(label)
}

func (t *Trigger) Notify(message string) {
	t.log.Warn("Batch notification", "message", message)
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "! %s\n", message)
}

// Label は現在のラベルを返します
func (t *Trigger) Label() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label
}

// setLocked は同じラベルを繰り返し出力しない
func (t *Trigger) setLocked(label string) {
	if label == t.label {
		return
	}
	t.label = label
	fmt.Fprintf(t.w, "> %s\n", label)
}

// Watch は実行中プロセスの変化を購読し、自分のバッチが動いていない間だけ
// 実行中ラベルとアイドルラベルを切り替えます。戻り値で購読を解除します
func (t *Trigger) Watch(registry *application.ProcessRegistry, idleLabel string) func() {
	return registry.OnStateChange(func(running bool, processes []string) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.busy {
			return
		}
		if running {
			t.log.Debug("Other analysis running", "processes", strings.Join(processes, ","))
			t.setLocked(RunningLabel)
			return
		}
		t.setLocked(idleLabel)
	})
}
