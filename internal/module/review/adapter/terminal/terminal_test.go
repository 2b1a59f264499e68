package terminal

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/review/application"
	"github.com/jinford/review-runner/internal/module/review/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBoard_RenderAndClear(t *testing.T) {
	var buf bytes.Buffer
	board := NewBoard(&buf)

	p := board.NewPlaceholder("gpt", "GPT-4o")
	require.True(t, p.Attached())

	p.Render(domain.Card{State: domain.CardStateProgress, Headline: "AI Analysis in Progress", Badge: "In queue..."})
	// 同じ内容は二重に出力しない
	p.Render(domain.Card{State: domain.CardStateProgress, Headline: "AI Analysis in Progress", Badge: "In queue..."})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "In queue..."))
	assert.Contains(t, out, "[GPT-4o] ...")

	board.Clear()
	assert.False(t, p.Attached())

	buf.Reset()
	p.Render(domain.Card{State: domain.CardStateSuccess, Headline: "Analysis Complete"})
	assert.Empty(t, buf.String())
}

func TestFormatCard_Sections(t *testing.T) {
	score := 30
	text := FormatCard(domain.Card{
		Title:    "GPT-4o",
		State:    domain.CardStateSuccess,
		Headline: "Analysis Complete",
		Badge:    "2.0s",
		Sections: []domain.Section{
			{Heading: "Grammar Analysis", Body: "line1\nline2"},
			{Heading: "Plagiarism Check", Body: "some overlap", Score: &score, Severity: "medium"},
		},
	})

	assert.Contains(t, text, "[GPT-4o] OK Analysis Complete (2.0s)")
	assert.Contains(t, text, "    line1\n    line2\n")
	assert.Contains(t, text, "Plagiarism Check [30% medium]:")
}

func TestTrigger_Labels(t *testing.T) {
	var buf bytes.Buffer
	trigger := NewTrigger(&buf, discardLogger())

	trigger.Busy("Submitting jobs...")
	trigger.Busy("Processing 2 job(s)...")
	trigger.Busy("Processing 2 job(s)...")
	trigger.Idle("Run Review")
	trigger.Notify("All jobs failed to submit. Please try again.")

	assert.Equal(t,
		"> Submitting jobs...\n> Processing 2 job(s)...\n> Run Review\n! All jobs failed to submit. Please try again.\n",
		buf.String())
	assert.Equal(t, "Run Review", trigger.Label())
}

func TestTrigger_WatchRegistry(t *testing.T) {
	var buf bytes.Buffer
	trigger := NewTrigger(&buf, discardLogger())
	registry := application.NewProcessRegistry(discardLogger())

	unsubscribe := trigger.Watch(registry, "Run Review")
	defer unsubscribe()

	registry.Add(application.ProcessTrainerAnalysis, "q1")
	assert.Equal(t, RunningLabel, trigger.Label())

	registry.Remove(application.ProcessTrainerAnalysis, "q1")
	assert.Equal(t, "Run Review", trigger.Label())

	// 自分のバッチ実行中はラベルを奪わない
	trigger.Busy("Processing 1 job(s)...")
	registry.Add(application.ProcessTrainerAnalysis, "q2")
	assert.Equal(t, "Processing 1 job(s)...", trigger.Label())
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	elapsed := 1.26

	err := WriteSummary(&buf, []application.Outcome{
		{Worker: domain.Worker{ID: "a", Name: "Model A"}, JobID: "0123456789", Headline: "Analysis Complete", Status: domain.JobStatusCompleted, ProcessingTime: &elapsed},
		{Worker: domain.Worker{ID: "b", Name: "Model B"}, Headline: "Submission Failed", Message: "Invalid or inactive model"},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.Contains(t, out, "1.3s")
	assert.Contains(t, out, "Invalid")
}
