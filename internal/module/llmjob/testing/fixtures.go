package testing

import (
	"time"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// TestModel はテスト用の有効なModelを生成します
func TestModel(id string) *domain.Model {
	return &domain.Model{
		ID:       id,
		Name:     id,
		Provider: "openai",
		Active:   true,
	}
}

// TestJob はテスト用のqueuedジョブを生成します
func TestJob(jobType domain.JobType, modelID string, input map[string]any) *domain.Job {
	return domain.NewJob(jobType, modelID, input, nil, time.Now())
}

// TestProcessingJob は startedAt に開始したprocessingジョブを生成します
func TestProcessingJob(modelID string, startedAt time.Time) *domain.Job {
	job := domain.NewJob(domain.JobTypeReviewColab, modelID, map[string]any{"colab_content": "x"}, nil, startedAt)
	_ = job.MarkProcessing(startedAt)
	return job
}
