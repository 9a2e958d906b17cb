package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/mailcraft/internal/infra/watcher"
)

// TemplateSeedAction はコーパスからテンプレートストアを構築するコマンドのアクション
func TemplateSeedAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	corpus := cmd.String("corpus")
	if corpus == "" {
		corpus = appCtx.Config.Template.CorpusPath
	}

	if err := RunTemplateSeed(ctx, appCtx, corpus, cmd.Root().Writer); err != nil {
		return err
	}

	if !cmd.Bool("watch") {
		return nil
	}

	w := watcher.New(corpus, watcher.WithLogger(appCtx.Logger()))
	return w.Run(ctx, func(ctx context.Context) error {
		return RunTemplateSeed(ctx, appCtx, corpus, cmd.Root().Writer)
	})
}

// RunTemplateSeed はコーパスを読み込みコレクションを置き換える
func RunTemplateSeed(ctx context.Context, appCtx *AppContext, corpus string, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}

	seeder, err := appCtx.Container.Seeder()
	if err != nil {
		return err
	}

	n, err := seeder.SeedFile(ctx, corpus)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%d 件のテンプレートを %s に登録しました\n", n, appCtx.Config.Template.Collection)
	return nil
}

// TemplateSearchAction はテンプレートを類似検索するコマンドのアクション
func TemplateSearchAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return RunTemplateSearch(ctx, appCtx, cmd.String("query"), int(cmd.Int("k")), cmd.Root().Writer)
}

// RunTemplateSearch は query に近いテンプレートをスコア付きで出力する
func RunTemplateSearch(ctx context.Context, appCtx *AppContext, query string, k int, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	if !appCtx.Container.HasEmbedder() {
		return fmt.Errorf("テンプレート検索には Embedding の設定が必要です")
	}

	results, err := appCtx.Container.Retriever.Search(ctx, query, k)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "該当するテンプレートはありません")
		return nil
	}

	for i, res := range results {
		fmt.Fprintf(w, "[%d] id=%s スコア: %.4f\n%s\n", i+1, res.Document.ID, res.Score, res.Document.Content)
	}
	return nil
}
