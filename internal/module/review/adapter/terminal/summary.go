package terminal

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/jinford/review-runner/internal/module/review/application"
	"github.com/jinford/review-runner/internal/module/review/domain"
)

// WriteSummary はバッチの結果を表形式で出力します
func WriteSummary(w io.Writer, outcomes []application.Outcome) error {
	table := tablewriter.NewWriter(w)
	table.Header("Model", "Job ID", "Result", "Detail", "Time")

	for _, out := range outcomes {
		jobID := "-"
		if out.JobID != "" {
			jobID = domain.ShortID(out.JobID)
		}

		elapsed := "-"
		if out.ProcessingTime != nil {
			elapsed = fmt.Sprintf("%.1fs", *out.ProcessingTime)
		}

		detail := out.Message
		if detail == "" {
			detail = string(out.Status)
		}

		if err := table.Append(out.Worker.Name, jobID, out.Headline, truncate(detail, 60), elapsed); err != nil {
			return fmt.Errorf("failed to append summary row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
