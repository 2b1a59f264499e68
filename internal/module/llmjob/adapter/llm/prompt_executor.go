package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

// PromptResult は汎用プロンプトジョブの result_data です
type PromptResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// PromptExecutor は system_message と full_input をそのままモデルに渡します
// trainer_question_analysis と general_llm_request で共用します
type PromptExecutor struct {
	llm Completer
}

var _ domain.Executor = (*PromptExecutor)(nil)

// NewPromptExecutor は新しいPromptExecutorを作成します
func NewPromptExecutor(llm Completer) *PromptExecutor {
	return &PromptExecutor{llm: llm}
}

func (e *PromptExecutor) Execute(ctx context.Context, job *domain.Job, model *domain.Model) (json.RawMessage, error) {
	input := job.InputString("full_input")
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: full_input is required", domain.ErrInvalidInput)
	}

	text, err := e.llm.Complete(ctx, CompletionRequest{
		Model:       model.ID,
		System:      job.InputString("system_message"),
		Prompt:      input,
		Temperature: job.InputFloat("temperature", DefaultTemperature),
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(PromptResult{Success: true, Result: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return raw, nil
}
