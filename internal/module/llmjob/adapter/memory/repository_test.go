package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

func TestRepository_JobCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	now := time.Now()

	job := domain.NewJob(domain.JobTypeReviewColab, "gpt-4o", map[string]any{"colab_content": "x"}, nil, now)
	require.NoError(t, repo.CreateJob(ctx, job))
	assert.Error(t, repo.CreateJob(ctx, job))

	// 取得結果を書き換えても保存値は変わらない
	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	got.InputData["colab_content"] = "changed"
	require.NoError(t, got.MarkProcessing(now))

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", stored.InputString("colab_content"))
	assert.Equal(t, domain.StatusQueued, stored.Status)

	require.NoError(t, repo.UpdateJob(ctx, got))
	stored, err = repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, stored.Status)

	_, err = repo.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRepository_ListJobs(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := "q1"

	for i := 0; i < 5; i++ {
		jt := domain.JobTypeReviewColab
		var qid *string
		if i%2 == 0 {
			jt = domain.JobTypeGeneralLLMRequest
			qid = &q
		}
		require.NoError(t, repo.CreateJob(ctx, domain.NewJob(jt, "m", nil, qid, base.Add(time.Duration(i)*time.Minute))))
	}

	jobs, total, err := repo.ListJobs(ctx, domain.JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, jobs, 2)
	assert.True(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))

	jobs, total, err = repo.ListJobs(ctx, domain.JobFilter{JobType: domain.JobTypeGeneralLLMRequest, QuestionID: "q1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, jobs, 3)

	jobs, _, err = repo.ListJobs(ctx, domain.JobFilter{Offset: 10, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRepository_ListStaleJobs(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	now := time.Now()

	old := domain.NewJob(domain.JobTypeReviewColab, "m", nil, nil, now.Add(-time.Hour))
	fresh := domain.NewJob(domain.JobTypeReviewColab, "m", nil, nil, now)
	running := domain.NewJob(domain.JobTypeReviewColab, "m", nil, nil, now.Add(-2*time.Hour))
	require.NoError(t, running.MarkProcessing(now.Add(-time.Hour)))

	for _, j := range []*domain.Job{old, fresh, running} {
		require.NoError(t, repo.CreateJob(ctx, j))
	}

	stale, err := repo.ListStaleJobs(ctx, domain.StatusQueued, now.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	stale, err = repo.ListStaleJobs(ctx, domain.StatusProcessing, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, running.ID, stale[0].ID)
}

func TestRepository_Models(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	require.NoError(t, repo.UpsertModel(ctx, &domain.Model{ID: "b", Name: "B", Active: true}))
	require.NoError(t, repo.UpsertModel(ctx, &domain.Model{ID: "a", Name: "A", Active: true}))
	require.NoError(t, repo.UpsertModel(ctx, &domain.Model{ID: "c", Name: "C", Active: false}))

	models, err := repo.ListActiveModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "A", models[0].Name)

	_, err = repo.GetModel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrModelNotFound)
}
