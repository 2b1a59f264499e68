package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/review-runner/pkg/models"
)

// ModelsListAction は利用可能なLLMモデル一覧を表示するコマンドのアクション
func ModelsListAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("AppContextの初期化に失敗: %w", err)
	}
	defer appCtx.Close()

	list, err := appCtx.JobAPIClient().Models(ctx)
	if err != nil {
		return err
	}

	return renderModelTable(os.Stdout, list)
}

func renderModelTable(w io.Writer, list []models.LLMModel) error {
	if len(list) == 0 {
		fmt.Fprintln(w, "有効なモデルがありません")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Provider", "Description")
	for _, m := range list {
		if err := table.Append(m.ID, m.Name, m.Provider, m.Description); err != nil {
			return fmt.Errorf("テーブル行の追加に失敗: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("テーブルの描画に失敗: %w", err)
	}
	return nil
}
