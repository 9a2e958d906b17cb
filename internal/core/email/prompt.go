package email

import (
	"fmt"
	"strings"

	"github.com/samber/mo"
)

// PromptInput はプロンプト構築に必要な入力をまとめたもの
type PromptInput struct {
	Mode          Mode
	Purpose       string
	ExistingEmail string
	Tone          Tone
	Length        Length
	Context       string            // 検索で得たテンプレート本文
	Subject       mo.Option[string] // AI提案の件名
}

type promptBuilder func(in PromptInput) string

var promptBuilders = map[Mode]promptBuilder{
	ModeCompose: buildComposePrompt,
	ModeImprove: buildImprovePrompt,
}

// lengthGuidance は長さごとの分量の目安
var lengthGuidance = map[Length]string{
	LengthShort:    "short (under 100 words)",
	LengthMedium:   "medium-length (about 150-200 words)",
	LengthDetailed: "detailed (around 300 words)",
}

// EffectiveMode は実際に使うモードを返す。改善対象の本文が無い Improve は Compose として扱う。
func EffectiveMode(mode Mode, existingEmail string) Mode {
	if mode == ModeImprove && strings.TrimSpace(existingEmail) != "" {
		return ModeImprove
	}
	return ModeCompose
}

// BuildPrompt は入力からLLMに渡すプロンプトを構築する。同じ入力には常に同じ出力を返す。
func BuildPrompt(in PromptInput) string {
	in.Mode = EffectiveMode(in.Mode, in.ExistingEmail)
	return promptBuilders[in.Mode](in)
}

// buildImprovePrompt は既存メールの推敲を指示する。文体・長さ・用件・件名は使わない。
func buildImprovePrompt(in PromptInput) string {
	var sb strings.Builder

	sb.WriteString("Improve the following email.\n")
	sb.WriteString("Fix grammar, tone, clarity, and formatting while keeping the original meaning.\n")
	sb.WriteString("Return only the improved email.\n\n")
	sb.WriteString("Email:\n")
	sb.WriteString(in.ExistingEmail)
	sb.WriteString("\n")

	return sb.String()
}

// buildComposePrompt は用件から新規メールの作成を指示する
func buildComposePrompt(in PromptInput) string {
	var sb strings.Builder

	if in.Context != "" {
		sb.WriteString("Use the following example emails as reference for structure and style:\n\n")
		sb.WriteString(in.Context)
		sb.WriteString("\n\n")
	}

	subject, hasSubject := in.Subject.Get()
	if hasSubject && strings.TrimSpace(subject) != "" {
		sb.WriteString(fmt.Sprintf("Use this subject line: %s\n\n", subject))
	} else {
		hasSubject = false
	}

	tone := strings.ToLower(string(in.Tone))
	length, ok := lengthGuidance[in.Length]
	if !ok {
		length = strings.ToLower(string(in.Length))
	}

	sb.WriteString(fmt.Sprintf("Write a %s, %s professional email about:\n\n", tone, length))
	sb.WriteString(in.Purpose)
	sb.WriteString("\n\n")

	sb.WriteString("Include:\n")
	if !hasSubject {
		sb.WriteString("- Subject line\n")
	}
	sb.WriteString("- Greeting\n")
	sb.WriteString("- Clear professional body\n")
	sb.WriteString("- Closing signature\n")

	return sb.String()
}

// BuildSubjectPrompt は件名提案用のプロンプトを構築する
func BuildSubjectPrompt(purpose string) string {
	var sb strings.Builder

	sb.WriteString("Generate a short, professional email subject line for the following purpose.\n")
	sb.WriteString("Return only the subject line text, without quotes or a \"Subject:\" label.\n\n")
	sb.WriteString("Purpose: ")
	sb.WriteString(purpose)
	sb.WriteString("\n")

	return sb.String()
}
