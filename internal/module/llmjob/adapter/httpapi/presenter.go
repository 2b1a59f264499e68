package httpapi

import (
	"time"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
	"github.com/jinford/review-runner/pkg/models"
)

func toStatusResponse(job *domain.Job, now time.Time) models.JobStatusResponse {
	resp := models.JobStatusResponse{
		Success:        true,
		JobID:          job.ID.String(),
		JobType:        string(job.Type),
		Status:         string(job.Status),
		IsComplete:     job.IsComplete(),
		CreatedAt:      formatTime(&job.CreatedAt),
		StartedAt:      formatTime(job.StartedAt),
		CompletedAt:    formatTime(job.CompletedAt),
		ProcessingTime: job.ProcessingTime(now),
		Model:          &models.JobModel{ID: job.ModelID},
	}
	if job.QuestionID != nil {
		resp.QuestionID = *job.QuestionID
	}

	switch job.Status {
	case domain.StatusCompleted:
		resp.ResultData = job.ResultData
	case domain.StatusFailed:
		resp.ErrorMessage = job.ErrorMessage
	}
	return resp
}

func toJobSummary(job *domain.Job, now time.Time) models.JobSummary {
	s := models.JobSummary{
		JobID:          job.ID.String(),
		JobType:        string(job.Type),
		Status:         string(job.Status),
		IsComplete:     job.IsComplete(),
		CreatedAt:      formatTime(&job.CreatedAt),
		CompletedAt:    formatTime(job.CompletedAt),
		ProcessingTime: job.ProcessingTime(now),
		Model:          &models.JobModel{ID: job.ModelID},
	}
	if job.QuestionID != nil {
		s.QuestionID = *job.QuestionID
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
