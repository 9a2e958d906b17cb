package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/mailcraft/internal/core/email"
	"github.com/jinford/mailcraft/internal/core/template"
	"github.com/jinford/mailcraft/internal/infra/anthropic"
	"github.com/jinford/mailcraft/internal/infra/gemini"
	"github.com/jinford/mailcraft/internal/infra/openai"
	"github.com/jinford/mailcraft/internal/infra/postgres"
	"github.com/jinford/mailcraft/internal/infra/sqlite"
	"github.com/jinford/mailcraft/internal/infra/tokenizer"
	"github.com/jinford/mailcraft/internal/platform/config"
	"github.com/jinford/mailcraft/internal/platform/database"
)

// ErrEmbedderNotConfigured はテンプレート登録に必要な Embedder が無い場合のエラー
var ErrEmbedderNotConfigured = errors.New("embedding provider is not configured: set EMBEDDING_PROVIDER and its API key")

// ServiceContainer はプロセス内で共有する依存関係を保持する。
// LLM クライアント・Embedder・テンプレートストアは起動時に一度だけ作成する。
type ServiceContainer struct {
	EmailService *email.EmailService
	Retriever    *template.Retriever
	Repository   template.Repository

	embedder template.Embedder
	cfg      *config.Config
	logger   *slog.Logger
	database *database.Database
	closers  []func() error
}

type containerOptions struct {
	logger       *slog.Logger
	llmClient    email.LLMClient
	embedder     template.Embedder
	embedderSet  bool
	repository   template.Repository
	tokenCounter email.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerLLMClient は LLM クライアントを差し替える
func WithContainerLLMClient(client email.LLMClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する。nil を渡すとテンプレート検索を無効にする。
func WithContainerEmbedder(embedder template.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
		opts.embedderSet = true
	}
}

// WithContainerRepository はテンプレートストアを差し替える
func WithContainerRepository(repo template.Repository) ContainerOption {
	return func(opts *containerOptions) {
		opts.repository = repo
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter email.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定からコンテナを生成する。
// cfg は Validate 済みであることを前提とする。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	c := &ServiceContainer{cfg: cfg, logger: options.logger}

	// LLMClient
	llmClient := options.llmClient
	if llmClient == nil {
		var err error
		llmClient, err = newLLMClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
	}

	// Embedder（未設定ならテンプレート検索なしで動作する）
	embedder := options.embedder
	if !options.embedderSet {
		var err error
		embedder, err = newEmbedder(ctx, cfg)
		if err != nil {
			options.logger.Warn("embedder unavailable, generating without templates", "error", err)
			embedder = nil
		}
	}
	c.embedder = embedder

	// テンプレートストア
	repo := options.repository
	if repo == nil {
		var err error
		repo, err = c.newRepository(ctx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("テンプレートストア初期化に失敗しました: %w", err)
		}
	}
	c.Repository = repo

	// TokenCounter
	tokenCounter := options.tokenCounter
	if tokenCounter == nil {
		var err error
		tokenCounter, err = tokenizer.New()
		if err != nil {
			options.logger.Debug("tiktoken unavailable, using estimated token counts", "error", err)
		}
	}

	c.Retriever = template.NewRetriever(
		repo,
		embedder,
		cfg.Template.Collection,
		template.WithTopK(cfg.Template.TopK),
		template.WithRetrieverLogger(options.logger),
	)

	c.EmailService = email.NewEmailService(
		c.Retriever,
		llmClient,
		email.WithEmailLogger(options.logger),
		email.WithTokenCounter(tokenCounter),
		email.WithMaxPromptTokens(cfg.LLM.MaxPromptTokens),
	)

	return c, nil
}

// Seeder はテンプレート登録用の Seeder を返す
func (c *ServiceContainer) Seeder() (*template.Seeder, error) {
	if c.embedder == nil {
		return nil, ErrEmbedderNotConfigured
	}
	return template.NewSeeder(c.Repository, c.embedder, c.cfg.Template.Collection, template.WithSeederLogger(c.logger)), nil
}

// HasEmbedder はテンプレート検索が有効かどうかを返す
func (c *ServiceContainer) HasEmbedder() bool {
	return c != nil && c.embedder != nil
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			c.Logger().Warn("failed to close resource", "error", err)
		}
	}
	c.closers = nil
	if c.database != nil {
		c.database.Close()
		c.database = nil
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

func newLLMClient(ctx context.Context, cfg *config.Config) (email.LLMClient, error) {
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second

	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		return gemini.NewClient(ctx, cfg.LLM.GoogleAPIKey,
			gemini.WithModel(cfg.LLM.GeminiModel),
			gemini.WithTimeout(timeout),
			gemini.WithTemperature(cfg.LLM.Temperature),
			gemini.WithMaxTokens(cfg.LLM.MaxTokens),
		)
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.LLM.OpenAIAPIKey,
			openai.WithModel(cfg.LLM.OpenAIModel),
			openai.WithTimeout(timeout),
			openai.WithTemperature(cfg.LLM.Temperature),
			openai.WithMaxTokens(cfg.LLM.MaxTokens),
			openai.WithMaxRetries(cfg.LLM.MaxRetries),
		)
	case config.ProviderAnthropic:
		return anthropic.NewClient(cfg.LLM.AnthropicAPIKey,
			anthropic.WithModel(cfg.LLM.AnthropicModel),
			anthropic.WithTimeout(timeout),
			anthropic.WithTemperature(cfg.LLM.Temperature),
			anthropic.WithMaxTokens(cfg.LLM.MaxTokens),
		)
	default:
		return nil, fmt.Errorf("%w: LLM_PROVIDER=%s", config.ErrUnknownProvider, cfg.LLM.Provider)
	}
}

// newEmbedder は設定に応じた Embedder を返す。
// 戻り値は必ずインターフェースとして nil を返し、型付き nil を混ぜない。
func newEmbedder(ctx context.Context, cfg *config.Config) (template.Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		e, err := openai.NewEmbedder(cfg.EmbeddingAPIKey(),
			openai.WithEmbeddingModel(cfg.Embedding.OpenAIModel),
			openai.WithEmbeddingDimension(cfg.Embedding.Dimension),
		)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderGemini:
		e, err := gemini.NewEmbedder(ctx, cfg.EmbeddingAPIKey(),
			gemini.WithEmbeddingModel(cfg.Embedding.GeminiModel),
			gemini.WithEmbeddingDimension(cfg.Embedding.Dimension),
		)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderNone:
		return nil, errors.New("EMBEDDING_PROVIDER=none")
	default:
		return nil, fmt.Errorf("%w: EMBEDDING_PROVIDER=%s", config.ErrUnknownProvider, cfg.Embedding.Provider)
	}
}

func (c *ServiceContainer) newRepository(ctx context.Context) (template.Repository, error) {
	switch c.cfg.Template.Store {
	case config.StorePostgres:
		db, err := database.New(ctx, database.ConnectionParams{
			Host:     c.cfg.Database.Host,
			Port:     c.cfg.Database.Port,
			User:     c.cfg.Database.User,
			Password: c.cfg.Database.Password,
			DBName:   c.cfg.Database.DBName,
			SSLMode:  c.cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.database = db

		repo := postgres.NewTemplateRepository(db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreSQLite, "":
		repo, err := sqlite.NewTemplateRepository(c.cfg.Template.DBPath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, repo.Close)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown template store: %s", c.cfg.Template.Store)
	}
}
