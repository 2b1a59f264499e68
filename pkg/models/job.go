package models

import "encoding/json"

// === ジョブAPIのワイヤフォーマット ===
// クライアント（review モジュール）とサーバ（llmjob モジュール）が共有する JSON 形状です。

// SubmitJobRequest は POST /api/llm/jobs/submit/ のリクエストボディです
type SubmitJobRequest struct {
	JobType    string         `json:"job_type"`
	ModelID    string         `json:"model_id"`
	InputData  map[string]any `json:"input_data"`
	QuestionID *string        `json:"question_id"`
}

// SubmitJobResponse は POST /api/llm/jobs/submit/ のレスポンスボディです
type SubmitJobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobModel はジョブに紐づくLLMモデルの要約です
type JobModel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// JobStatusResponse は GET /api/llm/jobs/{id}/status/ のレスポンスボディです
type JobStatusResponse struct {
	Success        bool            `json:"success"`
	JobID          string          `json:"job_id,omitempty"`
	JobType        string          `json:"job_type,omitempty"`
	Status         string          `json:"status,omitempty"`
	IsComplete     bool            `json:"is_complete"`
	CreatedAt      string          `json:"created_at,omitempty"`
	StartedAt      string          `json:"started_at,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
	ProcessingTime *float64        `json:"processing_time,omitempty"`
	Model          *JobModel       `json:"model,omitempty"`
	ResultData     json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	QuestionID     string          `json:"question_id,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// JobSummary はジョブ一覧の1行です
type JobSummary struct {
	JobID          string    `json:"job_id"`
	JobType        string    `json:"job_type"`
	Status         string    `json:"status"`
	IsComplete     bool      `json:"is_complete"`
	CreatedAt      string    `json:"created_at"`
	CompletedAt    string    `json:"completed_at,omitempty"`
	ProcessingTime *float64  `json:"processing_time,omitempty"`
	QuestionID     string    `json:"question_id,omitempty"`
	Model          *JobModel `json:"model,omitempty"`
}

// Pagination はジョブ一覧のページング情報です
type Pagination struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasNext    bool `json:"has_next"`
}

// JobListResponse は GET /api/llm/jobs/ のレスポンスボディです
type JobListResponse struct {
	Success    bool         `json:"success"`
	Jobs       []JobSummary `json:"jobs,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// LLMModel は GET /api/llm-models/ の1エントリです
type LLMModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
}

// LLMModelListResponse は GET /api/llm-models/ のレスポンスボディです
type LLMModelListResponse struct {
	Models []LLMModel `json:"models"`
}

// ErrorResponse はエラー時の共通レスポンスです
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
