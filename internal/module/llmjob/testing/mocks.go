package testing

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// MockJobRepository はテスト用のモックJobRepositoryです
type MockJobRepository struct {
	CreateJobFunc     func(ctx context.Context, job *domain.Job) error
	GetJobFunc        func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateJobFunc     func(ctx context.Context, job *domain.Job) error
	ListJobsFunc      func(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, int, error)
	ListStaleJobsFunc func(ctx context.Context, status domain.Status, before time.Time) ([]*domain.Job, error)
}

func (m *MockJobRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	if m.CreateJobFunc != nil {
		return m.CreateJobFunc(ctx, job)
	}
	return nil
}

func (m *MockJobRepository) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, id)
	}
	return nil, domain.ErrJobNotFound
}

func (m *MockJobRepository) UpdateJob(ctx context.Context, job *domain.Job) error {
	if m.UpdateJobFunc != nil {
		return m.UpdateJobFunc(ctx, job)
	}
	return nil
}

func (m *MockJobRepository) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, int, error) {
	if m.ListJobsFunc != nil {
		return m.ListJobsFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (m *MockJobRepository) ListStaleJobs(ctx context.Context, status domain.Status, before time.Time) ([]*domain.Job, error) {
	if m.ListStaleJobsFunc != nil {
		return m.ListStaleJobsFunc(ctx, status, before)
	}
	return nil, nil
}

// MockModelRepository はテスト用のモックModelRepositoryです
type MockModelRepository struct {
	UpsertModelFunc      func(ctx context.Context, model *domain.Model) error
	GetModelFunc         func(ctx context.Context, id string) (*domain.Model, error)
	ListActiveModelsFunc func(ctx context.Context) ([]*domain.Model, error)
}

func (m *MockModelRepository) UpsertModel(ctx context.Context, model *domain.Model) error {
	if m.UpsertModelFunc != nil {
		return m.UpsertModelFunc(ctx, model)
	}
	return nil
}

func (m *MockModelRepository) GetModel(ctx context.Context, id string) (*domain.Model, error) {
	if m.GetModelFunc != nil {
		return m.GetModelFunc(ctx, id)
	}
	return nil, domain.ErrModelNotFound
}

func (m *MockModelRepository) ListActiveModels(ctx context.Context) ([]*domain.Model, error) {
	if m.ListActiveModelsFunc != nil {
		return m.ListActiveModelsFunc(ctx)
	}
	return nil, nil
}

// MockDispatcher は配送されたメッセージを記録するモックDispatcherです
type MockDispatcher struct {
	PublishFunc func(ctx context.Context, msg domain.JobMessage) error

	mu        sync.Mutex
	published []domain.JobMessage
}

func (m *MockDispatcher) Publish(ctx context.Context, msg domain.JobMessage) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.published = append(m.published, msg)
	m.mu.Unlock()
	return nil
}

// Published は配送に成功したメッセージを返します
func (m *MockDispatcher) Published() []domain.JobMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.JobMessage(nil), m.published...)
}

// MockExecutor はテスト用のモックExecutorです
type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, job *domain.Job, model *domain.Model) (json.RawMessage, error)
}

func (m *MockExecutor) Execute(ctx context.Context, job *domain.Job, model *domain.Model) (json.RawMessage, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, job, model)
	}
	return json.RawMessage(`{"success":true}`), nil
}

// MockLocker は常にロックを取得できるモックLockerです
// Held を true にすると取得に失敗します
type MockLocker struct {
	Held bool
	Keys []string
}

func (m *MockLocker) TryWithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (bool, error) {
	m.Keys = append(m.Keys, key)
	if m.Held {
		return false, nil
	}
	return true, fn(ctx)
}

// MessageDelivery は Ack / Nack の呼び出しを記録する Delivery を作成します
type MessageDelivery struct {
	domain.Delivery

	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

// NewDelivery は msg を包んだ MessageDelivery を作成します
func NewDelivery(msg domain.JobMessage) *MessageDelivery {
	d := &MessageDelivery{}
	d.Delivery = domain.Delivery{
		Message: msg,
		Ack: func() error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.acked = true
			return nil
		},
		Nack: func(requeue bool) error {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.nacked = true
			d.requeue = requeue
			return nil
		},
	}
	return d
}

// Acked は Ack されたかを返します
func (d *MessageDelivery) Acked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acked
}

// Nacked は Nack されたかと requeue 指定を返します
func (d *MessageDelivery) Nacked() (bool, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nacked, d.requeue
}

// StaticConsumer は与えられた Delivery を順に流して閉じる Consumer です
type StaticConsumer struct {
	Deliveries []domain.Delivery
	Err        error
}

func (c *StaticConsumer) Consume(ctx context.Context) (<-chan domain.Delivery, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	ch := make(chan domain.Delivery, len(c.Deliveries))
	for _, d := range c.Deliveries {
		ch <- d
	}
	close(ch)
	return ch, nil
}
