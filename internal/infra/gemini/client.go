package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/jinford/mailcraft/internal/core/email"
)

const (
	// DefaultModel は元アプリと同じ Gemini モデル
	DefaultModel = "gemini-2.5-flash"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("Gemini API key not set: please set GOOGLE_API_KEY environment variable")

	// ErrEmptyResponse は生成結果が空だった場合のエラー
	ErrEmptyResponse = errors.New("no text returned from Gemini API")
)

// Client は Gemini API を使用した LLM クライアント実装
type Client struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float32
	maxTokens   int32
}

type clientOptions struct {
	model       string
	timeout     time.Duration
	temperature float32
	maxTokens   int32
	baseURL     string
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTimeout はAPIコールのタイムアウトを設定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithTemperature は生成温度を設定する
func WithTemperature(temperature float64) ClientOption {
	return func(o *clientOptions) {
		o.temperature = float32(temperature)
	}
}

// WithMaxTokens は出力の最大トークン数を設定する
func WithMaxTokens(maxTokens int) ClientOption {
	return func(o *clientOptions) {
		o.maxTokens = int32(maxTokens)
	}
}

// WithBaseURL は API のエンドポイントを差し替える
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// NewClient はAPIキーを指定して Client を作成する
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultModel,
		timeout:     DefaultTimeout,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(&options)
	}

	client, err := newGenaiClient(ctx, apiKey, options.baseURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		client:      client,
		model:       options.model,
		timeout:     options.timeout,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
	}, nil
}

func newGenaiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateCompletion は Gemini API を使用してテキストを生成する
func (c *Client) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if c.maxTokens > 0 {
		config.MaxOutputTokens = c.maxTokens
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

// インターフェース実装の確認
var _ email.LLMClient = (*Client)(nil)
