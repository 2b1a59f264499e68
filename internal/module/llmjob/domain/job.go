package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType はサーバが受け付けるジョブ種別です
type JobType string

const (
	JobTypeReviewColab             JobType = "review_colab"
	JobTypeTrainerQuestionAnalysis JobType = "trainer_question_analysis"
	JobTypeGeneralLLMRequest       JobType = "general_llm_request"
)

// ValidJobTypes は受け付け可能なジョブ種別の一覧です
var ValidJobTypes = []JobType{
	JobTypeTrainerQuestionAnalysis,
	JobTypeReviewColab,
	JobTypeGeneralLLMRequest,
}

// ParseJobType は文字列をジョブ種別に変換します
func ParseJobType(s string) (JobType, error) {
	for _, t := range ValidJobTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidJobType, s)
}

// Status はジョブの状態です
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus は一覧の絞り込みに使う状態名を検証します
// 旧名称の pending は queued として扱います
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusQueued, nil
	case string(StatusQueued), string(StatusProcessing), string(StatusCompleted), string(StatusFailed):
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status: %q", s)
}

// Job はLLMジョブ1件です
//
// 状態遷移は queued → processing → completed|failed の順にのみ進み、
// queued から直接 failed になることもあります（投入失敗・モデル不在）。
type Job struct {
	ID           uuid.UUID
	Type         JobType
	ModelID      string
	QuestionID   *string
	InputData    map[string]any
	Status       Status
	ResultData   json.RawMessage
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// NewJob は queued 状態の新しいジョブを作成します
func NewJob(jobType JobType, modelID string, input map[string]any, questionID *string, now time.Time) *Job {
	if input == nil {
		input = map[string]any{}
	}
	return &Job{
		ID:         uuid.New(),
		Type:       jobType,
		ModelID:    modelID,
		QuestionID: questionID,
		InputData:  input,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkProcessing は queued のジョブを processing にします
func (j *Job) MarkProcessing(now time.Time) error {
	if j.Status != StatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusProcessing)
	}
	j.Status = StatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkCompleted は processing のジョブを completed にします
func (j *Job) MarkCompleted(result json.RawMessage, now time.Time) error {
	if j.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.ResultData = result
	j.ErrorMessage = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkFailed は未完了のジョブを failed にします
func (j *Job) MarkFailed(message string, now time.Time) error {
	if j.IsComplete() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	j.Status = StatusFailed
	j.ErrorMessage = &message
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// IsComplete は completed / failed のいずれかかを返します
func (j *Job) IsComplete() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// ProcessingTime は処理時間（秒）を返します
// 処理中の場合は now までの経過時間、開始前は nil です
func (j *Job) ProcessingTime(now time.Time) *float64 {
	if j.StartedAt == nil {
		return nil
	}
	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	seconds := end.Sub(*j.StartedAt).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	return &seconds
}

// InputString は input_data の文字列値を返します
func (j *Job) InputString(key string) string {
	if v, ok := j.InputData[key].(string); ok {
		return v
	}
	return ""
}

// InputFloat は input_data の数値を返します
func (j *Job) InputFloat(key string, fallback float64) float64 {
	switch v := j.InputData[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}
