package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/mailcraft/internal/app/cli"
	"github.com/jinford/mailcraft/internal/core/email"
	"github.com/jinford/mailcraft/internal/platform/config"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "mailcraft",
		Usage: "文例テンプレートを参照してビジネスメールを作成・推敲する",
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "用件からメールを作成",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "purpose",
						Usage:    "メールの用件",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "tone",
						Usage: "文体 (Professional, Friendly, Formal, Apologetic, Persuasive)",
						Value: string(email.ToneProfessional),
					},
					&cli.StringFlag{
						Name:  "length",
						Usage: "長さ (Short, Medium, Detailed)",
						Value: string(email.LengthMedium),
					},
					&cli.BoolFlag{
						Name:  "subject",
						Usage: "件名をAIで提案する",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "generated_email.txt の出力ディレクトリ",
					},
					&cli.StringFlag{
						Name:  "eml-from",
						Usage: ".eml の差出人（--out 指定時のみ）",
					},
					&cli.StringFlag{
						Name:  "eml-to",
						Usage: ".eml の宛先（--out 指定時のみ）",
					},
					&cli.BoolFlag{
						Name:  "show-context",
						Usage: "参照したテンプレートを表示",
					},
				},
				Action: appcli.GenerateAction,
			},
			{
				Name:  "improve",
				Usage: "既存のメールを推敲",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "email",
						Usage: "改善するメール本文",
					},
					&cli.StringFlag{
						Name:  "email-file",
						Usage: "改善するメール本文のファイル",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "generated_email.txt の出力ディレクトリ",
					},
				},
				Action: appcli.ImproveAction,
			},
			{
				Name:  "template",
				Usage: "テンプレートストア管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "seed",
						Usage: "コーパス（1行1テンプレート）からコレクションを再構築",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "corpus",
								Usage: "コーパスファイル（省略時は TEMPLATE_CORPUS）",
							},
							&cli.BoolFlag{
								Name:  "watch",
								Usage: "コーパスの変更を監視して再登録する",
							},
						},
						Action: appcli.TemplateSeedAction,
					},
					{
						Name:  "search",
						Usage: "テンプレートを類似検索",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "query",
								Usage:    "検索クエリ",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "k",
								Usage: "取得件数",
								Value: 2,
							},
						},
						Action: appcli.TemplateSearchAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
								Value: 8080,
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// 入力不備は警告として表示する
		var vErr *email.ValidationError
		if errors.As(err, &vErr) && !errors.Is(err, config.ErrMissingAPIKey) {
			fmt.Fprintf(os.Stderr, "warning: %s\n", vErr.Reason)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
