package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/mailcraft/internal/platform/config"
	"github.com/jinford/mailcraft/internal/platform/container"
	"github.com/jinford/mailcraft/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定ファイルを読み込み、依存関係を組み立てて AppContext を作成する。
// 生成用APIキーが無い場合は外部呼び出しの前に config.ErrMissingAPIKey を返す。
func NewAppContext(ctx context.Context, envFile string, opts ...container.ContainerOption) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appLogger := logger.New(logger.FromStrings(cfg.Log.Level, cfg.Log.Format))
	opts = append([]container.ContainerOption{container.WithContainerLogger(appLogger)}, opts...)

	return NewAppContextWithConfig(ctx, cfg, opts...)
}

// NewAppContextWithConfig は読み込み済みの設定から AppContext を作成する
func NewAppContextWithConfig(ctx context.Context, cfg *config.Config, opts ...container.ContainerOption) (*AppContext, error) {
	cont, err := container.NewContainer(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}
