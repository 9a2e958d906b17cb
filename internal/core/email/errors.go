package email

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation は入力が不正でリクエストを中断した場合のエラー
	ErrValidation = errors.New("validation error")

	// ErrGeneration は生成APIの呼び出しに失敗した場合のエラー
	ErrGeneration = errors.New("generation failed")
)

// ValidationError は入力項目ごとの検証エラー
type ValidationError struct {
	Field  string
	Reason string
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap により errors.Is(err, ErrValidation) が成立する
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// GenerationError は生成APIの失敗を段階付きで表す
type GenerationError struct {
	Stage string // "subject" or "body"
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGeneration, e.Err}
}
