package application

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jinford/review-runner/internal/module/review/domain"
)

const (
	fallbackGrammar     = "No grammar analysis available"
	fallbackCodeQuality = "No quality summary available"
	fallbackScore       = "N/A"
	fallbackJobError    = "Unknown error"
	fallbackStatusError = "Unknown error checking job status"
	fallbackPollError   = "Unknown polling error"
)

// Renderer はジョブの状態を Card に写像します。副作用を持ちません
type Renderer struct {
	jobType domain.JobType
}

// NewRenderer は jobType の結果形式に合わせた Renderer を作成します
func NewRenderer(jobType domain.JobType) *Renderer {
	return &Renderer{jobType: jobType}
}

// Submitting は投入前のプレースホルダー表示です
func (r *Renderer) Submitting(title string) domain.Card {
	return domain.Card{
		Title:    title,
		State:    domain.CardStatePending,
		Headline: "AI Analysis in Progress",
		Badge:    "Submitting...",
	}
}

// Submitted は投入直後の表示です
func (r *Renderer) Submitted(title, jobID string) domain.Card {
	return domain.Card{
		Title:    title,
		State:    domain.CardStateProgress,
		Headline: "AI Analysis in Progress",
		Badge:    fmt.Sprintf("Processing... (%s...)", domain.ShortID(jobID)),
	}
}

// SubmissionFailed は投入失敗時の表示です
func (r *Renderer) SubmissionFailed(title, message string) domain.Card {
	if message == "" {
		message = fallbackJobError
	}
	return errorCard(title, "Submission Failed", message)
}

// StatusCheckFailed はステータス取得APIが success=false を返した場合の表示です
func (r *Renderer) StatusCheckFailed(title, message string) domain.Card {
	if message == "" {
		message = fallbackStatusError
	}
	return errorCard(title, "Status Check Failed", message)
}

// PollingError はステータス取得の通信・解析エラー時の表示です
func (r *Renderer) PollingError(title string, err error) domain.Card {
	message := fallbackPollError
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return errorCard(title, "Polling Error", message)
}

// Progress は未完了ジョブの表示です
func (r *Renderer) Progress(title, jobID string, resp *domain.StatusResponse) domain.Card {
	label := "In queue..."
	if resp.Status.Normalize() == domain.JobStatusProcessing {
		label = "Processing..."
	}

	hint := fmt.Sprintf("Job ID: %s...", domain.ShortID(jobID))
	if resp.ProcessingTime != nil {
		hint = formatSeconds(*resp.ProcessingTime)
	}

	return domain.Card{
		Title:    title,
		State:    domain.CardStateProgress,
		Headline: "AI Analysis in Progress",
		Badge:    fmt.Sprintf("%s (%s)", label, hint),
	}
}

// Terminal は完了済みジョブの表示です。未知の status はエラー表示になります
func (r *Renderer) Terminal(title string, resp *domain.StatusResponse) domain.Card {
	switch resp.Status.Normalize() {
	case domain.JobStatusCompleted:
		card, err := r.completed(title, resp)
		if err != nil {
			return errorCard(title, "Malformed Result", err.Error())
		}
		return card
	case domain.JobStatusFailed:
		message := fallbackJobError
		if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
			message = *resp.ErrorMessage
		}
		return errorCard(title, "Job Failed", message)
	default:
		return errorCard(title, "Unexpected Status", fmt.Sprintf("unexpected job status %q", resp.Status))
	}
}

func (r *Renderer) completed(title string, resp *domain.StatusResponse) (domain.Card, error) {
	card := domain.Card{
		Title:    title,
		State:    domain.CardStateSuccess,
		Headline: "Analysis Complete",
		Badge:    "Completed",
	}
	if resp.ProcessingTime != nil {
		card.Badge = formatSeconds(*resp.ProcessingTime)
	}

	var (
		sections []domain.Section
		err      error
	)
	if r.jobType == domain.JobTypeReviewColab {
		sections, err = reviewSections(resp.ResultData)
	} else {
		sections, err = genericSections(resp.ResultData)
	}
	if err != nil {
		return domain.Card{}, err
	}
	card.Sections = sections
	return card, nil
}

// reviewResult は review_colab ジョブの result_data です
type reviewResult struct {
	Grammar          *string  `json:"grammar"`
	PlagiarismScore  *float64 `json:"plagiarism_score"`
	PlagiarismResult *string  `json:"plagiarism_result"`
	Improvements     *string  `json:"improvements"`
	CodeQuality      *string  `json:"code_quality"`
}

func reviewSections(raw json.RawMessage) ([]domain.Section, error) {
	var result reviewResult
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode review result: %w", err)
		}
	}

	sections := []domain.Section{
		{Heading: "Grammar Analysis", Body: valueOr(result.Grammar, fallbackGrammar)},
	}

	plagiarism := domain.Section{Heading: "Plagiarism Check", Body: valueOr(result.PlagiarismResult, "")}
	if result.PlagiarismScore != nil {
		score := int(math.Round(*result.PlagiarismScore))
		plagiarism.Score = &score
		plagiarism.Severity = plagiarismSeverity(score)
	} else {
		plagiarism.Severity = fallbackScore
	}
	sections = append(sections, plagiarism)

	if improvements := valueOr(result.Improvements, ""); hasContent(improvements) {
		sections = append(sections, domain.Section{Heading: "Suggested Improvements", Body: improvements})
	}

	sections = append(sections, domain.Section{Heading: "Quality Summary", Body: valueOr(result.CodeQuality, fallbackCodeQuality)})
	return sections, nil
}

// plagiarismSeverity は類似度スコアを3段階に分類します
func plagiarismSeverity(score int) string {
	switch {
	case score > 50:
		return "high"
	case score > 25:
		return "medium"
	default:
		return "low"
	}
}

func genericSections(raw json.RawMessage) ([]domain.Section, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []domain.Section{{Heading: "Result", Body: "No result available"}}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}

	if ok, exists := fields["success"].(bool); exists && !ok {
		msg, _ := fields["error"].(string)
		if msg == "" {
			msg = fallbackJobError
		}
		return nil, fmt.Errorf("%s", msg)
	}

	if text, ok := fields["result"].(string); ok {
		return []domain.Section{{Heading: "Result", Body: text}}, nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "success" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sections := make([]domain.Section, 0, len(keys))
	for _, k := range keys {
		sections = append(sections, domain.Section{Heading: k, Body: stringify(fields[k])})
	}
	if len(sections) == 0 {
		sections = append(sections, domain.Section{Heading: "Result", Body: "No result available"})
	}
	return sections, nil
}

func errorCard(title, headline, message string) domain.Card {
	return domain.Card{
		Title:    title,
		State:    domain.CardStateError,
		Headline: headline,
		Message:  message,
	}
}

func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

// hasContent は空文字と "n/a" を内容なしとみなします
func hasContent(s string) bool {
	trimmed := strings.TrimSpace(s)
	return trimmed != "" && !strings.EqualFold(trimmed, "n/a")
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
