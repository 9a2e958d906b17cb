package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/mailcraft/internal/core/email"
	"github.com/jinford/mailcraft/internal/infra/export"
)

// GenerateParams は generate / improve コマンドの入力
type GenerateParams struct {
	Request     email.GenerationRequest
	OutDir      string
	EMLFrom     string
	EMLTo       string
	ShowContext bool
}

// GenerateAction は用件からメールを作成するコマンドのアクション
func GenerateAction(ctx context.Context, cmd *cli.Command) error {
	// API キーが無ければ入力を見る前に止める
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	tone, err := email.ParseTone(cmd.String("tone"))
	if err != nil {
		return err
	}
	length, err := email.ParseLength(cmd.String("length"))
	if err != nil {
		return err
	}

	params := GenerateParams{
		Request: email.GenerationRequest{
			Mode:            email.ModeCompose,
			Purpose:         cmd.String("purpose"),
			Tone:            tone,
			Length:          length,
			GenerateSubject: cmd.Bool("subject"),
		},
		OutDir:      cmd.String("out"),
		EMLFrom:     cmd.String("eml-from"),
		EMLTo:       cmd.String("eml-to"),
		ShowContext: cmd.Bool("show-context"),
	}

	return RunGenerate(ctx, appCtx, params, cmd.Root().Writer)
}

// ImproveAction は既存メールを推敲するコマンドのアクション
func ImproveAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	body := cmd.String("email")
	if path := cmd.String("email-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("メールファイルの読み込みに失敗: %w", err)
		}
		body = string(raw)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("--email または --email-file で改善するメールを指定してください")
	}

	params := GenerateParams{
		Request: email.GenerationRequest{
			Mode:          email.ModeImprove,
			ExistingEmail: body,
		},
		OutDir: cmd.String("out"),
	}

	return RunGenerate(ctx, appCtx, params, cmd.Root().Writer)
}

// RunGenerate は生成を実行し、結果を w に書き出す。OutDir 指定時はファイルにも保存する。
func RunGenerate(ctx context.Context, appCtx *AppContext, params GenerateParams, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	logger := appCtx.Logger()

	result, err := appCtx.Container.EmailService.Generate(ctx, params.Request)
	if err != nil {
		return err
	}

	if params.ShowContext && result.Context != "" {
		fmt.Fprintln(w, "--- 参照テンプレート ---")
		fmt.Fprintln(w, result.Context)
		fmt.Fprintln(w, "------------------------")
	}

	subject, hasSubject := result.Subject.Get()
	if hasSubject {
		fmt.Fprintf(w, "Subject: %s\n\n", subject)
	}
	fmt.Fprintln(w, result.Text)

	if params.OutDir != "" {
		path, err := export.WriteText(params.OutDir, result.Text)
		if err != nil {
			return err
		}
		logger.Info("メールを保存しました", "path", path, "requestID", result.RequestID.String())

		if params.EMLFrom != "" || params.EMLTo != "" {
			emlPath, err := export.WriteEML(params.OutDir, export.EMLParams{
				From:    params.EMLFrom,
				To:      params.EMLTo,
				Subject: subject,
				Body:    result.Text,
			})
			if err != nil {
				return err
			}
			logger.Info("EMLを保存しました", "path", emlPath)
		}
	}

	return nil
}
