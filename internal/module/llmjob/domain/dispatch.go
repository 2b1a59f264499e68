package domain

import (
	"context"
	"encoding/json"
)

// JobMessage はワーカーへ配送されるジョブ通知です
type JobMessage struct {
	JobID      string  `json:"job_id"`
	JobType    JobType `json:"job_type"`
	ModelID    string  `json:"model_id"`
	QuestionID string  `json:"question_id,omitempty"`
}

// NewJobMessage はジョブから配送メッセージを作成します
func NewJobMessage(job *Job) JobMessage {
	msg := JobMessage{
		JobID:   job.ID.String(),
		JobType: job.Type,
		ModelID: job.ModelID,
	}
	if job.QuestionID != nil {
		msg.QuestionID = *job.QuestionID
	}
	return msg
}

// Dispatcher はジョブをワーカーへ配送します
type Dispatcher interface {
	Publish(ctx context.Context, msg JobMessage) error
}

// Delivery は受信したメッセージ1件と、その応答操作です
type Delivery struct {
	Message JobMessage
	Ack     func() error
	Nack    func(requeue bool) error
}

// Consumer はワーカー側の受信口です
// 返されたチャネルは ctx の終了または接続断で閉じられます
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Executor はジョブ種別ごとの実行器です
// 戻り値は result_data としてそのまま保存されます
type Executor interface {
	Execute(ctx context.Context, job *Job, model *Model) (json.RawMessage, error)
}
