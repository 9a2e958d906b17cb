package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcd"))
	assert.Equal(t, 1, EstimateTokens("日本語"))
}

func TestEstimateCounter(t *testing.T) {
	assert.Equal(t, EstimateTokens("hello world"), EstimateCounter{}.CountTokens("hello world"))
}

func TestTokenCounter_ZeroValueFallsBackToEstimate(t *testing.T) {
	var tc TokenCounter
	assert.Equal(t, EstimateTokens("Dear team,"), tc.CountTokens("Dear team,"))
}

func TestNew_CountsTokens(t *testing.T) {
	counter, err := New()
	if err != nil {
		// エンコーディングのダウンロードができない環境では概算カウンタになる
		assert.IsType(t, EstimateCounter{}, counter)
		return
	}

	assert.Equal(t, 0, counter.CountTokens(""))
	assert.Greater(t, counter.CountTokens("Please find the attached invoice."), 3)
}
