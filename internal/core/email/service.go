package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// LLMClient はLLM通信インターフェース
type LLMClient interface {
	GenerateCompletion(ctx context.Context, prompt string) (string, error)
}

// ContextRetriever は用件文から参考テンプレートを取得する。失敗時は空文字列を返す。
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) string
}

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// EmailService はメール生成のビジネスロジックを提供する
type EmailService struct {
	retriever       ContextRetriever
	llm             LLMClient
	tokenCounter    TokenCounter
	maxPromptTokens int
	logger          *slog.Logger
}

type EmailServiceOption func(*EmailService)

// WithEmailLogger は EmailService にロガーを設定する
func WithEmailLogger(logger *slog.Logger) EmailServiceOption {
	return func(s *EmailService) {
		s.logger = logger
	}
}

// WithTokenCounter はプロンプトのトークン数計測を有効にする
func WithTokenCounter(counter TokenCounter) EmailServiceOption {
	return func(s *EmailService) {
		s.tokenCounter = counter
	}
}

// WithMaxPromptTokens はプロンプトの上限トークン数を設定する（0 以下は無制限）
func WithMaxPromptTokens(limit int) EmailServiceOption {
	return func(s *EmailService) {
		s.maxPromptTokens = limit
	}
}

// NewEmailService は新しいEmailServiceを作成する。retriever は nil でもよい。
func NewEmailService(retriever ContextRetriever, llm LLMClient, opts ...EmailServiceOption) *EmailService {
	svc := &EmailService{
		retriever: retriever,
		llm:       llm,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Validate はリクエストを検証し、実際に使うモードを返す
func Validate(req GenerationRequest) (Mode, error) {
	_, err := normalize(&req)
	if err != nil {
		return "", err
	}
	return req.Mode, nil
}

// normalize は列挙値を大文字小文字を区別せず正規化し、実際に使うモードを確定する
func normalize(req *GenerationRequest) (Mode, error) {
	mode := ModeCompose
	if strings.TrimSpace(string(req.Mode)) != "" {
		m, err := ParseMode(string(req.Mode))
		if err != nil {
			return "", err
		}
		mode = m
	}

	req.Mode = EffectiveMode(mode, req.ExistingEmail)
	if req.Mode == ModeImprove {
		return req.Mode, nil
	}

	if strings.TrimSpace(req.Purpose) == "" {
		return "", newValidationError("purpose", "enter the email purpose first")
	}
	tone, err := ParseTone(string(req.Tone))
	if err != nil {
		return "", err
	}
	length, err := ParseLength(string(req.Length))
	if err != nil {
		return "", err
	}
	req.Tone = tone
	req.Length = length

	return req.Mode, nil
}

// Generate は検証・テンプレート検索・件名提案・プロンプト構築・生成を順に行う
func (s *EmailService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	// 1. バリデーション
	mode, err := normalize(&req)
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{
		RequestID: uuid.New(),
		Mode:      mode,
		Subject:   mo.None[string](),
	}
	logger := s.logger.With("requestID", result.RequestID.String(), "mode", string(mode))

	input := PromptInput{
		Mode:          mode,
		Purpose:       req.Purpose,
		ExistingEmail: req.ExistingEmail,
		Tone:          req.Tone,
		Length:        req.Length,
		Subject:       mo.None[string](),
	}

	// Improve ではテンプレートも件名も使わないので外部呼び出しを省く
	if mode == ModeCompose {
		// 2. テンプレート検索
		if s.retriever != nil {
			input.Context = s.retriever.Retrieve(ctx, req.Purpose)
			result.Context = input.Context
		}
		logger.Info("context retrieved", "contextLength", len(input.Context))

		// 3. 件名提案（失敗しても本文生成は続ける）
		if req.GenerateSubject {
			subject, err := s.GenerateSubject(ctx, req.Purpose)
			if err != nil {
				logger.Warn("subject generation failed, continuing without subject", "error", err)
			} else if subject != "" {
				input.Subject = mo.Some(subject)
				result.Subject = input.Subject
			}
		}
	}

	// 4. プロンプト構築
	prompt := BuildPrompt(input)
	if s.tokenCounter != nil {
		result.PromptTokens = s.tokenCounter.CountTokens(prompt)
		if s.maxPromptTokens > 0 && result.PromptTokens > s.maxPromptTokens {
			return nil, newValidationError("input",
				fmt.Sprintf("prompt is %d tokens, limit is %d", result.PromptTokens, s.maxPromptTokens))
		}
	}

	logger.Info("generating email",
		"tone", string(req.Tone),
		"length", string(req.Length),
		"promptTokens", result.PromptTokens,
	)

	// 5. 本文生成（リトライしない）
	text, err := s.llm.GenerateCompletion(ctx, prompt)
	if err != nil {
		logger.Error("email generation failed", "error", err)
		return nil, &GenerationError{Stage: "body", Err: err}
	}

	result.Text = strings.TrimSpace(text)

	logger.Info("email generated", "textLength", len(result.Text))

	return result, nil
}

// GenerateSubject は用件から件名を1行提案する
func (s *EmailService) GenerateSubject(ctx context.Context, purpose string) (string, error) {
	if strings.TrimSpace(purpose) == "" {
		return "", newValidationError("purpose", "purpose is required for subject generation")
	}

	raw, err := s.llm.GenerateCompletion(ctx, BuildSubjectPrompt(purpose))
	if err != nil {
		return "", &GenerationError{Stage: "subject", Err: err}
	}

	return CleanSubject(raw), nil
}

// CleanSubject はLLM応答から最初の空でない行を取り出し、ラベルや引用符を除く
func CleanSubject(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "#* ")
		if len(line) >= len("subject:") && strings.EqualFold(line[:len("subject:")], "subject:") {
			line = strings.TrimSpace(line[len("subject:"):])
		}
		return strings.Trim(line, "\"'*` ")
	}
	return ""
}
