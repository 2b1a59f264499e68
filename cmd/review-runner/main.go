package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/review-runner/cmd/review-runner/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "review-runner",
		Usage: "複数のLLMモデルへレビュー・分析ジョブを並列投入し、結果を集約するツール",
		Commands: []*cli.Command{
			{
				Name:  "review",
				Usage: "ノートブックレビューコマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "ノートブックを選択したモデルすべてでレビューする",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "colab-file",
								Usage:    "レビュー対象のノートブック（テキスト化したもの）",
								Required: true,
							},
							&cli.StringSliceFlag{
								Name:  "model",
								Usage: "モデル（id または id:表示名、複数指定・カンマ区切り可）",
							},
							presetFlag(),
							&cli.FloatFlag{
								Name:  "temperature",
								Usage: "サンプリング温度（0〜2）",
							},
							&cli.StringFlag{
								Name:  "context",
								Usage: "レビュアーからの追加コンテキスト",
							},
							questionIDFlag(),
							pollIntervalFlag(),
						},
						Action: commands.ReviewRunAction,
					},
				},
			},
			{
				Name:  "analysis",
				Usage: "プロンプト分析コマンド",
				Commands: []*cli.Command{
					{
						Name:  "run",
						Usage: "任意のプロンプトを選択したモデルすべてで実行する",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "input-file",
								Usage:    "モデルに渡す入力（full_input）",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "system",
								Usage: "システムメッセージ",
							},
							&cli.BoolFlag{
								Name:  "general",
								Usage: "general_llm_request として投入する",
							},
							&cli.StringSliceFlag{
								Name:  "model",
								Usage: "モデル（id または id:表示名、複数指定・カンマ区切り可）",
							},
							presetFlag(),
							questionIDFlag(),
							pollIntervalFlag(),
						},
						Action: commands.AnalysisRunAction,
					},
				},
			},
			{
				Name:  "job",
				Usage: "ジョブ管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "submit",
						Usage: "ジョブを1件投入してジョブIDを表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "type",
								Usage:    "ジョブ種別（review_colab / trainer_question_analysis / general_llm_request）",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "model",
								Usage:    "モデルID",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "input-file",
								Usage:    "input_data の JSON ファイル（- で標準入力）",
								Required: true,
							},
							questionIDFlag(),
						},
						Action: commands.JobSubmitAction,
					},
					{
						Name:  "status",
						Usage: "ジョブの状態を表示",
						Flags: []cli.Flag{
							envFlag(),
							jobIDFlag(),
						},
						Action: commands.JobStatusAction,
					},
					{
						Name:  "result",
						Usage: "完了済みジョブの結果を表示",
						Flags: []cli.Flag{
							envFlag(),
							jobIDFlag(),
							&cli.BoolFlag{
								Name:  "raw",
								Usage: "result_data を JSON のまま出力する",
							},
						},
						Action: commands.JobResultAction,
					},
					{
						Name:  "list",
						Usage: "ジョブ一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "status",
								Usage: "ステータス（絞り込み）",
							},
							&cli.StringFlag{
								Name:  "type",
								Usage: "ジョブ種別（絞り込み）",
							},
							questionIDFlag(),
							&cli.IntFlag{
								Name:  "limit",
								Usage: "表示件数（最大100）",
								Value: 20,
							},
							&cli.IntFlag{
								Name:  "offset",
								Usage: "開始位置",
							},
						},
						Action: commands.JobListAction,
					},
					{
						Name:  "recover",
						Usage: "滞留しているジョブを再配送・失敗扱いにする（JOB_STORE=postgres のみ）",
						Flags: []cli.Flag{
							envFlag(),
							&cli.DurationFlag{
								Name:  "queued-older-than",
								Usage: "この時間より前に作成された queued ジョブを再配送（既定: STUCK_JOB_THRESHOLD）",
							},
							&cli.DurationFlag{
								Name:  "processing-timeout",
								Usage: "この時間より前に開始された processing ジョブを失敗扱い（既定: PROCESSING_TIMEOUT）",
							},
						},
						Action: commands.JobRecoverAction,
					},
				},
			},
			{
				Name:  "models",
				Usage: "LLMモデル管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "有効なモデル一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
						},
						Action: commands.ModelsListAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "ジョブAPIサーバコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "ジョブAPIサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "待ち受けポート（既定: SERVER_PORT）",
							},
							&cli.BoolFlag{
								Name:  "no-worker",
								Usage: "ワーカーを同じプロセスで動かさない（JOB_QUEUE=amqp のみ）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:  "worker",
				Usage: "ジョブワーカーコマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "ジョブワーカーを起動（JOB_STORE=postgres, JOB_QUEUE=amqp）",
						Flags: []cli.Flag{
							envFlag(),
						},
						Action: commands.WorkerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func presetFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "preset",
		Usage: "プリセットファイル（YAML/JSON）",
	}
}

func questionIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "question-id",
		Usage: "相関用の質問ID",
	}
}

func pollIntervalFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "poll-interval",
		Usage: "ステータス確認の間隔（既定: POLL_INTERVAL）",
	}
}

func jobIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "id",
		Usage:    "ジョブID",
		Required: true,
	}
}
