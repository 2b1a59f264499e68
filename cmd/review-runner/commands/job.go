package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/review-runner/internal/module/llmjob/application"
	"github.com/jinford/review-runner/internal/module/review/adapter/jobapi"
	"github.com/jinford/review-runner/internal/module/review/domain"
	"github.com/jinford/review-runner/internal/platform/container"
	"github.com/jinford/review-runner/pkg/models"
)

// JobSubmitAction はジョブを1件投入するコマンドのアクション
func JobSubmitAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	inputData, err := readInputData(cmd.String("input-file"))
	if err != nil {
		return err
	}

	result := appCtx.JobAPIClient().Submit(ctx, domain.SubmitRequest{
		JobType:    domain.JobType(cmd.String("type")),
		ModelID:    cmd.String("model"),
		InputData:  inputData,
		QuestionID: cmd.String("question-id"),
	})
	if !result.Success {
		return fmt.Errorf("ジョブの投入に失敗: %s", result.Error)
	}

	fmt.Println(result.JobID)
	return nil
}

// readInputData は input_data を JSON ファイル（"-" は標準入力）から読み込む
func readInputData(path string) (map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("入力ファイルのオープンに失敗: %w", err)
		}
		defer f.Close()
		r = f
	}

	var data map[string]any
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("input_data の JSON 解析に失敗: %w", err)
	}
	return data, nil
}

// JobStatusAction はジョブの状態を表示するコマンドのアクション
func JobStatusAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	resp, err := appCtx.JobAPIClient().JobStatus(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ステータスの取得に失敗: %s", resp.Error)
	}

	return printJobDetail(os.Stdout, resp)
}

// JobResultAction は完了済みジョブの結果を表示するコマンドのアクション
func JobResultAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	resp, err := appCtx.JobAPIClient().Result(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("結果の取得に失敗: %s", resp.Error)
	}

	if cmd.Bool("raw") {
		_, err := fmt.Fprintln(os.Stdout, string(resp.ResultData))
		return err
	}
	return printJobDetail(os.Stdout, resp)
}

// printJobDetail はジョブ詳細を表示する
func printJobDetail(w io.Writer, resp *models.JobStatusResponse) error {
	fmt.Fprintf(w, "Job ID: %s\n", resp.JobID)
	fmt.Fprintf(w, "Type: %s\n", resp.JobType)
	fmt.Fprintf(w, "Status: %s\n", resp.Status)
	if resp.Model != nil {
		fmt.Fprintf(w, "Model: %s (%s)\n", resp.Model.Name, resp.Model.ID)
	}
	if resp.QuestionID != "" {
		fmt.Fprintf(w, "Question ID: %s\n", resp.QuestionID)
	}
	fmt.Fprintf(w, "Created At: %s\n", resp.CreatedAt)
	if resp.StartedAt != "" {
		fmt.Fprintf(w, "Started At: %s\n", resp.StartedAt)
	}
	if resp.CompletedAt != "" {
		fmt.Fprintf(w, "Completed At: %s\n", resp.CompletedAt)
	}
	fmt.Fprintf(w, "Processing Time: %s\n", formatProcessingTime(resp.ProcessingTime))
	if resp.ErrorMessage != nil {
		fmt.Fprintf(w, "Error: %s\n", *resp.ErrorMessage)
	}

	if len(resp.ResultData) == 0 {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(resp.ResultData, &fields); err != nil {
		fmt.Fprintf(w, "\nResult:\n%s\n", string(resp.ResultData))
		return nil
	}
	fmt.Fprintln(w, "\nResult:")
	for _, key := range sortedKeys(fields) {
		fmt.Fprintf(w, "\n[%s]\n%v\n", key, fields[key])
	}
	return nil
}

// JobListAction はジョブ一覧を表示するコマンドのアクション
func JobListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	resp, err := appCtx.JobAPIClient().List(ctx, jobapi.ListParams{
		Status:     cmd.String("status"),
		JobType:    cmd.String("type"),
		QuestionID: cmd.String("question-id"),
		Limit:      int(cmd.Int("limit")),
		Offset:     int(cmd.Int("offset")),
	})
	if err != nil {
		return err
	}

	return renderJobTable(os.Stdout, resp)
}

func renderJobTable(w io.Writer, resp *models.JobListResponse) error {
	if len(resp.Jobs) == 0 {
		fmt.Fprintln(w, "ジョブが見つかりませんでした")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Job ID", "Type", "Status", "Model", "Created At", "Time")

	for _, job := range resp.Jobs {
		model := ""
		if job.Model != nil {
			model = job.Model.ID
		}
		if err := table.Append(
			job.JobID,
			job.JobType,
			job.Status,
			model,
			job.CreatedAt,
			formatProcessingTime(job.ProcessingTime),
		); err != nil {
			return fmt.Errorf("テーブル行の追加に失敗: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("テーブルの描画に失敗: %w", err)
	}

	if p := resp.Pagination; p != nil {
		fmt.Fprintf(w, "\n%d-%d / %d", p.Offset+1, p.Offset+len(resp.Jobs), p.TotalCount)
		if p.HasNext {
			fmt.Fprintf(w, " (次ページ: --offset %d)", p.Offset+p.Limit)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// JobRecoverAction は滞留ジョブを回復するコマンドのアクション
// 別プロセスのワーカーと同じストアを見る必要があるため postgres のみ対応する
func JobRecoverAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	if appCtx.Config.Server.JobStore != container.StorePostgres {
		return fmt.Errorf("job recover は JOB_STORE=%s でのみ実行できます（現在: %q）", container.StorePostgres, appCtx.Config.Server.JobStore)
	}

	cont, err := appCtx.OpenJobContainer(ctx)
	if err != nil {
		return err
	}

	opts := application.RecoverOptions{
		QueuedOlderThan:   appCtx.Config.Worker.StuckThreshold,
		ProcessingTimeout: appCtx.Config.Worker.ProcessingTimeout,
	}
	if cmd.IsSet("queued-older-than") {
		opts.QueuedOlderThan = cmd.Duration("queued-older-than")
	}
	if cmd.IsSet("processing-timeout") {
		opts.ProcessingTimeout = cmd.Duration("processing-timeout")
	}

	report, err := cont.JobService.RecoverStuck(ctx, opts)
	if err != nil {
		return fmt.Errorf("滞留ジョブの回復に失敗: %w", err)
	}

	fmt.Printf("再配送: %d件, 失敗扱い: %d件\n", report.Republished, report.Failed)
	return nil
}

func formatProcessingTime(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return strconv.FormatFloat(*seconds, 'f', 1, 64) + "s"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
