package domain

import (
	"context"
	"encoding/json"
)

// JobType はジョブ種別を表します
type JobType string

const (
	JobTypeReviewColab             JobType = "review_colab"
	JobTypeTrainerQuestionAnalysis JobType = "trainer_question_analysis"
	JobTypeGeneralLLMRequest       JobType = "general_llm_request"
)

// JobStatus はサーバが報告するジョブの状態です
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// jobStatusPending は旧サーバが queued の代わりに返す値です
	jobStatusPending JobStatus = "pending"
)

// Normalize は旧名称を現行の状態名に揃えます
func (s JobStatus) Normalize() JobStatus {
	if s == jobStatusPending {
		return JobStatusQueued
	}
	return s
}

// IsTerminal は completed / failed のいずれかかを返します
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SubmitRequest はジョブ投入リクエストです
type SubmitRequest struct {
	JobType    JobType
	ModelID    string
	InputData  map[string]any
	QuestionID string // 相関ID（任意）
}

// SubmitResult はジョブ投入の結果です
// Success=false のジョブは開始されていないものとして扱い、ポーリングしてはいけません
type SubmitResult struct {
	Success bool
	JobID   string
	Error   string
}

// StatusResponse はステータス取得APIの応答です
type StatusResponse struct {
	Success        bool
	IsComplete     bool
	Status         JobStatus
	ProcessingTime *float64
	ResultData     json.RawMessage
	ErrorMessage   *string
	Error          string
}

// JobAPI はジョブAPIのクライアントポートです
type JobAPI interface {
	// Submit はジョブを1件投入します。通信・解析エラーも Success=false として返します
	Submit(ctx context.Context, req SubmitRequest) SubmitResult
	// Status はジョブの状態を1回取得します。通信・解析エラーは error として返します
	Status(ctx context.Context, jobID string) (*StatusResponse, error)
}

// Worker はファンアウト先（LLMモデル）です
type Worker struct {
	ID   string
	Name string
}

// ShortID はUI表示用にジョブIDの先頭8文字を返します
func ShortID(jobID string) string {
	if len(jobID) <= 8 {
		return jobID
	}
	return jobID[:8]
}
