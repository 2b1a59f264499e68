package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jinford/review-runner/internal/module/review/domain"
	"github.com/jinford/review-runner/pkg/models"
)

const (
	submitPath = "/api/llm/jobs/submit/"
	jobsPath   = "/api/llm/jobs/"
	modelsPath = "/api/llm-models/"

	// maxBodyBytes はレスポンスボディの読み込み上限
	maxBodyBytes = 8 << 20
)

// Client はジョブAPIのHTTPクライアントです
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

// Option は Client 構築時のオプション
type Option func(*Client)

// WithHTTPClient は内部の http.Client を差し替える
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken は Authorization ヘッダーに付与するトークンを設定する
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger はロガーを差し替える
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient は新しいClientを作成します
// timeout は1リクエストあたりの上限で、0 の場合は上限なしです
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit はジョブを1件投入します
// 通信エラーやJSON解析エラーも含め、失敗は Success=false として返します
func (c *Client) Submit(ctx context.Context, req domain.SubmitRequest) domain.SubmitResult {
	body := models.SubmitJobRequest{
		JobType:   string(req.JobType),
		ModelID:   req.ModelID,
		InputData: req.InputData,
	}
	if req.QuestionID != "" {
		qid := req.QuestionID
		body.QuestionID = &qid
	}

	var resp models.SubmitJobResponse
	status, err := c.do(ctx, http.MethodPost, submitPath, body, &resp)
	if err != nil {
		c.log.Warn("Job submission request failed", "modelID", req.ModelID, "error", err)
		return domain.SubmitResult{Success: false, Error: fmt.Sprintf("Network error: %v", err)}
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("job submission rejected (HTTP %d)", status)
		}
		return domain.SubmitResult{Success: false, Error: msg}
	}
	if resp.JobID == "" {
		return domain.SubmitResult{Success: false, Error: "job submission response did not include a job_id"}
	}

	return domain.SubmitResult{Success: true, JobID: resp.JobID}
}

// Status はジョブの状態を1回取得します
// HTTPステータスに関わらずボディを解析し、解析できない場合のみエラーを返します
func (c *Client) Status(ctx context.Context, jobID string) (*domain.StatusResponse, error) {
	resp, err := c.JobStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &domain.StatusResponse{
		Success:        resp.Success,
		IsComplete:     resp.IsComplete,
		Status:         domain.JobStatus(resp.Status),
		ProcessingTime: resp.ProcessingTime,
		ResultData:     resp.ResultData,
		ErrorMessage:   resp.ErrorMessage,
		Error:          resp.Error,
	}, nil
}

// JobStatus はステータスAPIの応答をそのまま返します
func (c *Client) JobStatus(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	if _, err := c.do(ctx, http.MethodGet, jobsPath+url.PathEscape(jobID)+"/status/", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to check job status: %w", err)
	}
	return &resp, nil
}

// Result は完了済みジョブの結果を取得します
func (c *Client) Result(ctx context.Context, jobID string) (*models.JobStatusResponse, error) {
	var resp models.JobStatusResponse
	if _, err := c.do(ctx, http.MethodGet, jobsPath+url.PathEscape(jobID)+"/result/", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch job result: %w", err)
	}
	return &resp, nil
}

// ListParams はジョブ一覧の絞り込み条件です
type ListParams struct {
	Status     string
	JobType    string
	QuestionID string
	Limit      int
	Offset     int
}

// List はジョブ一覧を取得します
func (c *Client) List(ctx context.Context, params ListParams) (*models.JobListResponse, error) {
	q := url.Values{}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	if params.JobType != "" {
		q.Set("job_type", params.JobType)
	}
	if params.QuestionID != "" {
		q.Set("question_id", params.QuestionID)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	path := jobsPath
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp models.JobListResponse
	if _, err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("failed to list jobs: %s", resp.Error)
	}
	return &resp, nil
}

// Models は有効なLLMモデル一覧を取得します
func (c *Client) Models(ctx context.Context) ([]models.LLMModel, error) {
	var resp models.LLMModelListResponse
	status, err := c.do(ctx, http.MethodGet, modelsPath, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed to list models: HTTP %d", status)
	}
	return resp.Models, nil
}

// do はリクエストを送信し、ボディを out に解析します
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return res.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return res.StatusCode, fmt.Errorf("failed to decode response (HTTP %d): %w", res.StatusCode, err)
	}
	return res.StatusCode, nil
}
