package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jinford/mailcraft/internal/core/email"
)

const (
	// DefaultModel はデフォルトで使用する Claude モデル
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens は Messages API の必須パラメータ max_tokens の既定値
	DefaultMaxTokens = 1024

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("Anthropic API key not set: please set ANTHROPIC_API_KEY environment variable")

	// ErrEmptyResponse は生成結果が空だった場合のエラー
	ErrEmptyResponse = errors.New("no text returned from Claude API")
)

// Client は Anthropic Messages API を使用した LLM クライアント実装
type Client struct {
	client      anthropic.Client
	model       string
	timeout     time.Duration
	temperature float64
	maxTokens   int64
}

type clientOptions struct {
	model       string
	timeout     time.Duration
	temperature float64
	maxTokens   int64
	requestOpts []option.RequestOption
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
		o.temperature = temperature
	}
}

// WithMaxTokens は max_tokens を設定する（0 以下は既定値）
func WithMaxTokens(maxTokens int) ClientOption {
	return func(o *clientOptions) {
		if maxTokens > 0 {
			o.maxTokens = int64(maxTokens)
		}
	}
}

// WithRequestOptions は SDK のリクエストオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) ClientOption {
	return func(o *clientOptions) {
		o.requestOpts = append(o.requestOpts, opts...)
	}
}

// NewClient はAPIキーを指定して Client を作成する
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := clientOptions{
		model:       DefaultModel,
		timeout:     DefaultTimeout,
		temperature: 0.7,
		maxTokens:   DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// 生成は失敗してもリトライしない
	requestOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, options.requestOpts...)

	return &Client{
		client:      anthropic.NewClient(requestOpts...),
		model:       options.model,
		timeout:     options.timeout,
		temperature: options.temperature,
		maxTokens:   options.maxTokens,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateCompletion は Claude でテキストを生成する
func (c *Client) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = anthropic.Float(c.temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(response.String()) == "" {
		return "", ErrEmptyResponse
	}

	return response.String(), nil
}

// インターフェース実装の確認
var _ email.LLMClient = (*Client)(nil)
