package application_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/review/application"
	"github.com/jinford/review-runner/internal/module/review/domain"
	reviewtesting "github.com/jinford/review-runner/internal/module/review/testing"
)

func floatPtr(v float64) *float64 { return &v }

func TestRenderer_ReviewCompleted(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)
	resp := reviewtesting.Completed(`{
		"grammar": "Looks fine",
		"plagiarism_score": 62.4,
		"plagiarism_result": "Strong overlap with a known tutorial",
		"improvements": "Use list comprehensions",
		"code_quality": "Readable"
	}`)
	resp.ProcessingTime = floatPtr(3.26)

	card := r.Terminal("GPT-4o", resp)

	assert.Equal(t, domain.CardStateSuccess, card.State)
	assert.Equal(t, "Analysis Complete", card.Headline)
	assert.Equal(t, "3.3s", card.Badge)
	require.Len(t, card.Sections, 4)

	assert.Equal(t, "Grammar Analysis", card.Sections[0].Heading)
	assert.Equal(t, "Looks fine", card.Sections[0].Body)

	plag := card.Sections[1]
	assert.Equal(t, "Plagiarism Check", plag.Heading)
	require.NotNil(t, plag.Score)
	assert.Equal(t, 62, *plag.Score)
	assert.Equal(t, "high", plag.Severity)

	assert.Equal(t, "Suggested Improvements", card.Sections[2].Heading)
	assert.Equal(t, "Quality Summary", card.Sections[3].Heading)
}

func TestRenderer_ReviewFallbacks(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)

	card := r.Terminal("m", reviewtesting.Completed(`{"improvements": "N/A"}`))

	require.Len(t, card.Sections, 3)
	assert.Equal(t, "No grammar analysis available", card.Sections[0].Body)
	assert.Nil(t, card.Sections[1].Score)
	assert.Equal(t, "N/A", card.Sections[1].Severity)
	assert.Equal(t, "No quality summary available", card.Sections[2].Body)
}

func TestRenderer_PlagiarismSeverity(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)

	tests := []struct {
		name     string
		result   string
		severity string
	}{
		{name: "51は high", result: `{"plagiarism_score": 51}`, severity: "high"},
		{name: "50は medium", result: `{"plagiarism_score": 50}`, severity: "medium"},
		{name: "26は medium", result: `{"plagiarism_score": 26}`, severity: "medium"},
		{name: "25は low", result: `{"plagiarism_score": 25}`, severity: "low"},
		{name: "0は low", result: `{"plagiarism_score": 0}`, severity: "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := r.Terminal("m", reviewtesting.Completed(tt.result))
			require.GreaterOrEqual(t, len(card.Sections), 2)
			assert.Equal(t, tt.severity, card.Sections[1].Severity)
		})
	}
}

func TestRenderer_Failed(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)

	card := r.Terminal("m", reviewtesting.Failed("rate limited"))
	assert.Equal(t, domain.CardStateError, card.State)
	assert.Equal(t, "Job Failed", card.Headline)
	assert.Equal(t, "rate limited", card.Message)

	card = r.Terminal("m", reviewtesting.Failed(""))
	assert.Equal(t, "Unknown error", card.Message)
}

func TestRenderer_MalformedAndUnexpected(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)

	card := r.Terminal("m", reviewtesting.Completed(`not-json`))
	assert.Equal(t, domain.CardStateError, card.State)
	assert.Equal(t, "Malformed Result", card.Headline)

	card = r.Terminal("m", &domain.StatusResponse{Success: true, IsComplete: true, Status: "cancelled"})
	assert.Equal(t, domain.CardStateError, card.State)
	assert.Equal(t, "Unexpected Status", card.Headline)
}

func TestRenderer_Progress(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)

	// 経過時間がなければジョブIDの短縮形を表示する
	card := r.Progress("m", "0123456789abcdef", reviewtesting.Queued())
	assert.Equal(t, domain.CardStateProgress, card.State)
	assert.Equal(t, "In queue... (Job ID: 01234567...)", card.Badge)

	card = r.Progress("m", "0123456789abcdef", reviewtesting.Processing(floatPtr(4.04)))
	assert.Equal(t, "Processing... (4.0s)", card.Badge)

	// 旧名称 pending は queued として扱う
	card = r.Progress("m", "job", &domain.StatusResponse{Success: true, Status: "pending"})
	assert.Equal(t, "In queue... (Job ID: job...)", card.Badge)
}

func TestRenderer_ErrorCards(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeReviewColab)

	card := r.SubmissionFailed("m", "Invalid or inactive model")
	assert.Equal(t, "Submission Failed", card.Headline)
	assert.Equal(t, "Invalid or inactive model", card.Message)

	card = r.StatusCheckFailed("m", "")
	assert.Equal(t, "Status Check Failed", card.Headline)
	assert.Equal(t, "Unknown error checking job status", card.Message)

	card = r.PollingError("m", errors.New("connection refused"))
	assert.Equal(t, "Polling Error", card.Headline)
	assert.Equal(t, "connection refused", card.Message)
}

func TestRenderer_GenericResult(t *testing.T) {
	r := application.NewRenderer(domain.JobTypeTrainerQuestionAnalysis)

	card := r.Terminal("m", reviewtesting.Completed(`{"success": true, "result": "The question is well formed."}`))
	require.Len(t, card.Sections, 1)
	assert.Equal(t, "Result", card.Sections[0].Heading)
	assert.Equal(t, "The question is well formed.", card.Sections[0].Body)

	card = r.Terminal("m", reviewtesting.Completed(`{"success": false, "error": "model unavailable"}`))
	assert.Equal(t, domain.CardStateError, card.State)
	assert.Equal(t, "model unavailable", card.Message)

	card = r.Terminal("m", reviewtesting.Completed(`{"b": 2, "a": "x"}`))
	require.Len(t, card.Sections, 2)
	assert.Equal(t, "a", card.Sections[0].Heading)
	assert.Equal(t, "2", card.Sections[1].Body)
}
