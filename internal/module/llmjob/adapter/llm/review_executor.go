package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// DefaultTemperature は input_data に temperature がない場合の値
const DefaultTemperature = 0.3

// ReviewResult は review_colab ジョブの result_data です
type ReviewResult struct {
	Grammar          string `json:"grammar"`
	PlagiarismScore  int    `json:"plagiarism_score"`
	PlagiarismResult string `json:"plagiarism_result"`
	CodeQuality      string `json:"code_quality"`
	Improvements     string `json:"improvements"`
	Language         string `json:"language,omitempty"`
	Truncated        bool   `json:"truncated,omitempty"`
	Success          bool   `json:"success"`
}

// ReviewExecutor はノートブックの文法・類似度・コード品質をレビューします
type ReviewExecutor struct {
	llm              Completer
	tokens           *TokenCounter
	maxContentTokens int
	log              *slog.Logger
}

var _ domain.Executor = (*ReviewExecutor)(nil)

// NewReviewExecutor は新しいReviewExecutorを作成します
// maxContentTokens が 0 以下の場合は本文を切り詰めません
func NewReviewExecutor(llm Completer, tokens *TokenCounter, maxContentTokens int, log *slog.Logger) *ReviewExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &ReviewExecutor{
		llm:              llm,
		tokens:           tokens,
		maxContentTokens: maxContentTokens,
		log:              log,
	}
}

// Execute は3種類のレビューを並列に実行し、結果をまとめます
func (e *ReviewExecutor) Execute(ctx context.Context, job *domain.Job, model *domain.Model) (json.RawMessage, error) {
	content := job.InputString("colab_content")
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: colab_content is required", domain.ErrInvalidInput)
	}
	additional := job.InputString("additional_context")
	temperature := job.InputFloat("temperature", DefaultTemperature)

	content, truncated := e.tokens.Truncate(content, e.maxContentTokens)
	extraction := ExtractImplementation(content)

	e.log.Debug("Extracted implementation code",
		"jobID", job.ID,
		"source", extraction.Source,
		"language", extraction.Language,
		"chars", len(extraction.Code),
		"truncated", truncated,
	)

	result := ReviewResult{
		Language:  extraction.Language,
		Truncated: truncated,
		Success:   true,
	}

	complete := func(ctx context.Context, prompt string) (string, error) {
		return e.llm.Complete(ctx, CompletionRequest{
			Model:       model.ID,
			Prompt:      prompt,
			Temperature: temperature,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		text, err := complete(gctx, grammarPrompt(content, additional))
		if err != nil {
			return fmt.Errorf("grammar check failed: %w", err)
		}
		result.Grammar = text
		return nil
	})

	g.Go(func() error {
		if extraction.Code == "" {
			result.PlagiarismResult = NoCodePlagiarismText
			result.PlagiarismScore = 0
			return nil
		}
		text, err := complete(gctx, plagiarismPrompt(extraction.Code, extraction.Language, additional))
		if err != nil {
			return fmt.Errorf("plagiarism check failed: %w", err)
		}
		result.PlagiarismResult = text
		result.PlagiarismScore = ExtractPlagiarismScore(text)
		return nil
	})

	g.Go(func() error {
		text, err := complete(gctx, codeQualityPrompt(extraction.Code, extraction.Language, additional))
		if err != nil {
			return fmt.Errorf("code quality review failed: %w", err)
		}
		result.CodeQuality = text
		if strings.Contains(strings.ToLower(text), "improvement") {
			result.Improvements = text
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode review result: %w", err)
	}
	return raw, nil
}
