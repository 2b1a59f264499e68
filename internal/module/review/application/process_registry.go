package application

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ProcessType は実行中として登録する分析処理の種別です
type ProcessType string

const (
	ProcessTrainerAnalysis ProcessType = "trainer_question_analysis"
	ProcessReviewAnalysis  ProcessType = "review_analysis"
)

// StateChangeFunc は実行中プロセス集合が変化したときに呼ばれます
type StateChangeFunc func(running bool, processes []string)

// ProcessRegistry は実行中の分析処理を追跡します
// 複数のコーディネーターで共有し、別種の分析が走っている間は新しいバッチを開始させません
// CLI ではプロセス内の全コマンドが同じレジストリを使います
type ProcessRegistry struct {
	mu          sync.Mutex
	running     map[string]struct{}
	subscribers map[int]StateChangeFunc
	nextID      int
	log         *slog.Logger
}

// NewProcessRegistry は新しいProcessRegistryを作成します
func NewProcessRegistry(log *slog.Logger) *ProcessRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessRegistry{
		running:     make(map[string]struct{}),
		subscribers: make(map[int]StateChangeFunc),
		log:         log,
	}
}

func processKey(pt ProcessType, id string) string {
	return fmt.Sprintf("%s_%s", pt, id)
}

// Add はプロセスを実行中として登録します
func (r *ProcessRegistry) Add(pt ProcessType, id string) {
	key := processKey(pt, id)
	r.mu.Lock()
	r.running[key] = struct{}{}
	total := len(r.running)
	r.mu.Unlock()

	r.log.Debug("Added running process", "process", key, "total", total)
	r.notify()
}

// Remove はプロセスを実行中集合から外します
func (r *ProcessRegistry) Remove(pt ProcessType, id string) {
	key := processKey(pt, id)
	r.mu.Lock()
	_, existed := r.running[key]
	delete(r.running, key)
	total := len(r.running)
	r.mu.Unlock()

	if !existed {
		return
	}
	r.log.Debug("Removed running process", "process", key, "total", total)
	r.notify()
}

// HasRunning は1件以上実行中かを返します
func (r *ProcessRegistry) HasRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running) > 0
}

// Running は実行中プロセスの一覧をソート済みで返します
func (r *ProcessRegistry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningLocked()
}

func (r *ProcessRegistry) runningLocked() []string {
	list := make([]string, 0, len(r.running))
	for key := range r.running {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}

// IsTypeRunning は指定種別のプロセスが実行中かを返します
func (r *ProcessRegistry) IsTypeRunning(pt ProcessType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := string(pt) + "_"
	for key := range r.running {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// OtherRunning は指定種別以外で実行中のプロセスを返します
func (r *ProcessRegistry) OtherRunning(pt ProcessType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := string(pt) + "_"
	var others []string
	for _, key := range r.runningLocked() {
		if !strings.HasPrefix(key, prefix) {
			others = append(others, key)
		}
	}
	return others
}

// OnStateChange は状態変化の購読を登録し、解除関数を返します
func (r *ProcessRegistry) OnStateChange(fn StateChangeFunc) func() {
	if fn == nil {
		return func() {}
	}
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subscribers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

func (r *ProcessRegistry) notify() {
	r.mu.Lock()
	running := r.runningLocked()
	ids := make([]int, 0, len(r.subscribers))
	for id := range r.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]StateChangeFunc, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, r.subscribers[id])
	}
	r.mu.Unlock()

	for _, fn := range subs {
		r.invoke(fn, len(running) > 0, running)
	}
}

// invoke は購読者のpanicを他の購読者に波及させません
func (r *ProcessRegistry) invoke(fn StateChangeFunc, running bool, processes []string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("State change callback panicked", "panic", rec)
		}
	}()
	fn(running, processes)
}
