package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LLMプロバイダ名
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// テンプレートストア種別
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

var (
	// ErrMissingAPIKey は生成用APIキーが設定されていない場合のエラー
	ErrMissingAPIKey = errors.New("API key missing")

	// ErrUnknownProvider は未知のプロバイダが指定された場合のエラー
	ErrUnknownProvider = errors.New("unknown provider")
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// 生成用LLM設定
	LLM LLMConfig

	// Embedding設定
	Embedding EmbeddingConfig

	// テンプレートストア設定
	Template TemplateConfig

	// Database設定（TEMPLATE_STORE=postgres の場合のみ使用）
	Database DatabaseConfig

	// ログ設定
	Log LogConfig

	// HTTPサーバのポート
	HTTPPort int
}

// LLMConfig は生成用LLMの設定
type LLMConfig struct {
	Provider        string // "gemini", "openai" or "anthropic"
	GoogleAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	Temperature     float64
	MaxTokens       int
	TimeoutSeconds  int
	MaxRetries      int // 0 の場合は自動リトライしない
	MaxPromptTokens int
}

// EmbeddingConfig はEmbedding生成の設定
type EmbeddingConfig struct {
	Provider    string // "openai", "gemini" or "none"
	OpenAIModel string
	GeminiModel string
	Dimension   int
}

// TemplateConfig はテンプレートストアの設定
type TemplateConfig struct {
	Store      string // "sqlite" or "postgres"
	DBPath     string
	Collection string
	CorpusPath string
	TopK       int
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	llmProvider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini))

	cfg := &Config{
		LLM: LLMConfig{
			Provider:        llmProvider,
			GoogleAPIKey:    getEnv("GOOGLE_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:       getEnvAsInt("LLM_MAX_TOKENS", 1024),
			TimeoutSeconds:  getEnvAsInt("LLM_TIMEOUT_SECONDS", 60),
			MaxRetries:      getEnvAsInt("LLM_MAX_RETRIES", 0),
			MaxPromptTokens: getEnvAsInt("MAX_PROMPT_TOKENS", 8000),
		},
		Embedding: EmbeddingConfig{
			Provider:    strings.ToLower(getEnv("EMBEDDING_PROVIDER", defaultEmbeddingProvider(llmProvider))),
			OpenAIModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			GeminiModel: getEnv("GEMINI_EMBEDDING_MODEL", "gemini-embedding-001"),
			Dimension:   getEnvAsInt("EMBEDDING_DIMENSION", 768),
		},
		Template: TemplateConfig{
			Store:      strings.ToLower(getEnv("TEMPLATE_STORE", StoreSQLite)),
			DBPath:     getEnv("TEMPLATE_DB_PATH", "./template_db"),
			Collection: getEnv("TEMPLATE_COLLECTION", "email_templates"),
			CorpusPath: getEnv("TEMPLATE_CORPUS", "data/email_templates.txt"),
			TopK:       getEnvAsInt("RETRIEVAL_TOP_K", 2),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "mailcraft"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mailcraft"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		HTTPPort: getEnvAsInt("HTTP_PORT", 8080),
	}

	return cfg, nil
}

// Validate は起動に必須の設定が揃っているかを検証します。
// 生成用プロバイダのAPIキーが無い場合は ErrMissingAPIKey を返します。
func (c *Config) Validate() error {
	key, envName, err := c.LLM.apiKey()
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: set %s in the environment or .env file", ErrMissingAPIKey, envName)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER=%s", ErrUnknownProvider, c.Embedding.Provider)
	}

	switch c.Template.Store {
	case StoreSQLite, StorePostgres:
	default:
		return fmt.Errorf("unknown template store: %s", c.Template.Store)
	}

	return nil
}

// EmbeddingAPIKey はEmbeddingプロバイダに対応するAPIキーを返す
func (c *Config) EmbeddingAPIKey() string {
	switch c.Embedding.Provider {
	case ProviderOpenAI:
		return c.LLM.OpenAIAPIKey
	case ProviderGemini:
		return c.LLM.GoogleAPIKey
	default:
		return ""
	}
}

// EmbeddingModel はEmbeddingプロバイダに対応するモデル名を返す
func (c *Config) EmbeddingModel() string {
	switch c.Embedding.Provider {
	case ProviderOpenAI:
		return c.Embedding.OpenAIModel
	case ProviderGemini:
		return c.Embedding.GeminiModel
	default:
		return ""
	}
}

// defaultEmbeddingProvider は生成用プロバイダが Embedding も提供できればそれを使い、
// 同じ API キーだけでテンプレート検索が動くようにする
func defaultEmbeddingProvider(llmProvider string) string {
	switch llmProvider {
	case ProviderGemini, ProviderOpenAI:
		return llmProvider
	default:
		return ProviderOpenAI
	}
}

func (c LLMConfig) apiKey() (key string, envName string, err error) {
	switch c.Provider {
	case ProviderGemini:
		return c.GoogleAPIKey, "GOOGLE_API_KEY", nil
	case ProviderOpenAI:
		return c.OpenAIAPIKey, "OPENAI_API_KEY", nil
	case ProviderAnthropic:
		return c.AnthropicAPIKey, "ANTHROPIC_API_KEY", nil
	default:
		return "", "", fmt.Errorf("%w: LLM_PROVIDER=%s", ErrUnknownProvider, c.Provider)
	}
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
