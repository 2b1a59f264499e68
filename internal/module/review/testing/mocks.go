package testing

import (
	"context"
	"sync"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

// MockJobAPI はテスト用のモック JobAPI です
type MockJobAPI struct {
	SubmitFunc func(ctx context.Context, req domain.SubmitRequest) domain.SubmitResult
	StatusFunc func(ctx context.Context, jobID string) (*domain.StatusResponse, error)

	mu          sync.Mutex
	submits     []domain.SubmitRequest
	statusCalls map[string]int
}

func (m *MockJobAPI) Submit(ctx context.Context, req domain.SubmitRequest) domain.SubmitResult {
	m.mu.Lock()
	m.submits = append(m.submits, req)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return domain.SubmitResult{Success: true, JobID: "job-" + req.ModelID}
}

func (m *MockJobAPI) Status(ctx context.Context, jobID string) (*domain.StatusResponse, error) {
	m.mu.Lock()
	if m.statusCalls == nil {
		m.statusCalls = make(map[string]int)
	}
	m.statusCalls[jobID]++
	m.mu.Unlock()

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, jobID)
	}
	return Completed(`{}`), nil
}

// SubmitRequests は受け付けた投入リクエストを返します
func (m *MockJobAPI) SubmitRequests() []domain.SubmitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SubmitRequest(nil), m.submits...)
}

// StatusCalls は jobID に対するステータス確認回数を返します
func (m *MockJobAPI) StatusCalls(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls[jobID]
}

// StatusStep はステータス確認1回分の応答です
type StatusStep struct {
	Resp *domain.StatusResponse
	Err  error
}

// ScriptedStatus はジョブごとに応答を順番に返す StatusFunc を作成します
// 台本を使い切った後は最後の応答を返し続けます
func ScriptedStatus(scripts map[string][]StatusStep) func(ctx context.Context, jobID string) (*domain.StatusResponse, error) {
	var mu sync.Mutex
	calls := make(map[string]int)

	return func(ctx context.Context, jobID string) (*domain.StatusResponse, error) {
		mu.Lock()
		steps := scripts[jobID]
		i := calls[jobID]
		calls[jobID]++
		mu.Unlock()

		if len(steps) == 0 {
			return Processing(nil), nil
		}
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i].Resp, steps[i].Err
	}
}

// Completed は completed 状態の応答を作成します
func Completed(resultJSON string) *domain.StatusResponse {
	return &domain.StatusResponse{
		Success:    true,
		IsComplete: true,
		Status:     domain.JobStatusCompleted,
		ResultData: []byte(resultJSON),
	}
}

// Failed は failed 状態の応答を作成します
func Failed(message string) *domain.StatusResponse {
	return &domain.StatusResponse{
		Success:      true,
		IsComplete:   true,
		Status:       domain.JobStatusFailed,
		ErrorMessage: &message,
	}
}

// Processing は processing 状態の応答を作成します
func Processing(elapsed *float64) *domain.StatusResponse {
	return &domain.StatusResponse{
		Success:        true,
		Status:         domain.JobStatusProcessing,
		ProcessingTime: elapsed,
	}
}

// Queued は queued 状態の応答を作成します
func Queued() *domain.StatusResponse {
	return &domain.StatusResponse{
		Success: true,
		Status:  domain.JobStatusQueued,
	}
}

// Unavailable は success=false の応答を作成します
func Unavailable(message string) *domain.StatusResponse {
	return &domain.StatusResponse{
		Success: false,
		Error:   message,
	}
}

// RecordingPlaceholder は描画されたカードを記録するプレースホルダーです
type RecordingPlaceholder struct {
	Key   string
	Title string

	mu       sync.Mutex
	cards    []domain.Card
	detached bool
}

func (p *RecordingPlaceholder) Render(card domain.Card) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards = append(p.cards, card)
}

func (p *RecordingPlaceholder) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.detached
}

// Detach は描画先が取り除かれた状態にします
func (p *RecordingPlaceholder) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detached = true
}

// Cards は描画されたカードを順に返します
func (p *RecordingPlaceholder) Cards() []domain.Card {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Card(nil), p.cards...)
}

// TerminalCards は終端状態のカードだけを返します
func (p *RecordingPlaceholder) TerminalCards() []domain.Card {
	var terminal []domain.Card
	for _, c := range p.Cards() {
		if c.State.IsTerminal() {
			terminal = append(terminal, c)
		}
	}
	return terminal
}

// Last は最後に描画されたカードを返します
func (p *RecordingPlaceholder) Last() domain.Card {
	cards := p.Cards()
	if len(cards) == 0 {
		return domain.Card{}
	}
	return cards[len(cards)-1]
}

// MemoryBoard は RecordingPlaceholder を払い出すテスト用 Board です
type MemoryBoard struct {
	mu           sync.Mutex
	placeholders map[string]*RecordingPlaceholder
	retired      []*RecordingPlaceholder
}

// NewMemoryBoard は新しいMemoryBoardを作成します
func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{placeholders: make(map[string]*RecordingPlaceholder)}
}

func (b *MemoryBoard) NewPlaceholder(key, title string) domain.Placeholder {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := &RecordingPlaceholder{Key: key, Title: title}
	b.placeholders[key] = p
	return p
}

func (b *MemoryBoard) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.placeholders {
		p.Detach()
		b.retired = append(b.retired, p)
	}
	b.placeholders = make(map[string]*RecordingPlaceholder)
}

// Get は key のプレースホルダーを返します
func (b *MemoryBoard) Get(key string) *RecordingPlaceholder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.placeholders[key]
}

// Retired は Clear で切り離されたプレースホルダーを返します
func (b *MemoryBoard) Retired() []*RecordingPlaceholder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*RecordingPlaceholder(nil), b.retired...)
}

// TriggerEvent はトリガーへの操作1回分です
type TriggerEvent struct {
	Kind  string // "busy", "idle", "notify"
	Label string
}

// RecordingTrigger はトリガー操作を記録します
type RecordingTrigger struct {
	mu     sync.Mutex
	events []TriggerEvent
	idle   chan struct{}
}

// NewRecordingTrigger は新しいRecordingTriggerを作成します
func NewRecordingTrigger() *RecordingTrigger {
	return &RecordingTrigger{idle: make(chan struct{}, 16)}
}

func (t *RecordingTrigger) Busy(label string) {
	t.record(TriggerEvent{Kind: "busy", Label: label})
}

func (t *RecordingTrigger) Idle(label string) {
	t.record(TriggerEvent{Kind: "idle", Label: label})
	select {
	case t.idle <- struct{}{}:
	default:
	}
}

func (t *RecordingTrigger) Notify(message string) {
	t.record(TriggerEvent{Kind: "notify", Label: message})
}

func (t *RecordingTrigger) record(e TriggerEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

// Events は記録した操作を順に返します
func (t *RecordingTrigger) Events() []TriggerEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TriggerEvent(nil), t.events...)
}

// IdleSignal は Idle が呼ばれるたびに値を受け取れるチャネルです
func (t *RecordingTrigger) IdleSignal() <-chan struct{} {
	return t.idle
}

// Count は kind の操作回数を返します
func (t *RecordingTrigger) Count(kind string) int {
	n := 0
	for _, e := range t.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last は最後の操作を返します
func (t *RecordingTrigger) Last() TriggerEvent {
	events := t.Events()
	if len(events) == 0 {
		return TriggerEvent{}
	}
	return events[len(events)-1]
}
