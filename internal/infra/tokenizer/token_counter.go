package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/mailcraft/internal/core/email"
)

// DefaultEncoding はプロンプトのトークン数見積もりに使うエンコーディング
const DefaultEncoding = "cl100k_base"

// TokenCounter は tiktoken でトークン数をカウントする
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter は cl100k_base の TokenCounter を作成する
func NewTokenCounter() (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}

	return &TokenCounter{encoding: encoding}, nil
}

// CountTokens はテキストのトークン数をカウントする
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.encoding == nil {
		return EstimateTokens(text)
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// EstimateCounter はエンコーディングを取得できない環境向けの概算カウンタ
type EstimateCounter struct{}

// CountTokens は EstimateTokens の結果を返す
func (EstimateCounter) CountTokens(text string) int {
	return EstimateTokens(text)
}

// EstimateTokens はテキストの推定トークン数を返す。
// 英語は約4文字、日本語は約1文字で1トークンなので、間を取って3文字で1トークンとする。
func EstimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 2) / 3
}

// New は tiktoken を優先し、使えなければ概算カウンタを返す
func New() (email.TokenCounter, error) {
	counter, err := NewTokenCounter()
	if err != nil {
		return EstimateCounter{}, err
	}
	return counter, nil
}

var (
	_ email.TokenCounter = (*TokenCounter)(nil)
	_ email.TokenCounter = EstimateCounter{}
)
