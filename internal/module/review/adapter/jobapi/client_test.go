package jobapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/review/domain"
	"github.com/jinford/review-runner/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(srv.URL, time.Second, WithToken("secret"), WithLogger(log))
}

func TestClient_Submit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, submitPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body models.SubmitJobRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "review_colab", body.JobType)
		assert.Equal(t, "gpt-4o", body.ModelID)
		require.NotNil(t, body.QuestionID)
		assert.Equal(t, "q1", *body.QuestionID)
		assert.Equal(t, "code", body.InputData["colab_content"])

		_ = json.NewEncoder(w).Encode(models.SubmitJobResponse{Success: true, JobID: "abc", Status: "queued"})
	})

	res := client.Submit(context.Background(), domain.SubmitRequest{
		JobType:    domain.JobTypeReviewColab,
		ModelID:    "gpt-4o",
		InputData:  map[string]any{"colab_content": "code"},
		QuestionID: "q1",
	})

	assert.True(t, res.Success)
	assert.Equal(t, "abc", res.JobID)
}

func TestClient_SubmitRejected(t *testing.T) {
	// 4xxでもボディの error をそのまま使う
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success": false, "error": "Invalid or inactive model"}`))
	})

	res := client.Submit(context.Background(), domain.SubmitRequest{JobType: domain.JobTypeReviewColab, ModelID: "x"})

	assert.False(t, res.Success)
	assert.Equal(t, "Invalid or inactive model", res.Error)
}

func TestClient_SubmitMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})

	res := client.Submit(context.Background(), domain.SubmitRequest{JobType: domain.JobTypeReviewColab, ModelID: "x"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Network error")
}

func TestClient_Status(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/llm/jobs/abc/status/", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"success": true,
			"job_id": "abc",
			"status": "completed",
			"is_complete": true,
			"processing_time": 2.5,
			"result_data": {"grammar": "ok"}
		}`))
	})

	resp, err := client.Status(context.Background(), "abc")
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.IsComplete)
	assert.Equal(t, domain.JobStatusCompleted, resp.Status)
	require.NotNil(t, resp.ProcessingTime)
	assert.InDelta(t, 2.5, *resp.ProcessingTime, 0.001)
	assert.JSONEq(t, `{"grammar": "ok"}`, string(resp.ResultData))
}

func TestClient_StatusNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success": false, "error": "Job not found"}`))
	})

	resp, err := client.Status(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Job not found", resp.Error)
}

func TestClient_StatusTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := client.Status(context.Background(), "abc")
	assert.Error(t, err)
}

func TestClient_ListAndModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case jobsPath:
			assert.Equal(t, "failed", r.URL.Query().Get("status"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"success": true, "jobs": [{"job_id": "j1", "status": "failed"}], "pagination": {"total_count": 1, "limit": 5, "offset": 0, "has_next": false}}`))
		case modelsPath:
			_, _ = w.Write([]byte(`{"models": [{"id": "gpt-4o", "name": "GPT-4o", "provider": "openai"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	list, err := client.List(context.Background(), ListParams{Status: "failed", Limit: 5})
	require.NoError(t, err)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, "j1", list.Jobs[0].JobID)
	assert.Equal(t, 1, list.Pagination.TotalCount)

	ms, err := client.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "GPT-4o", ms[0].Name)
}
