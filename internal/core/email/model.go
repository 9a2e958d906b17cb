package email

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Tone はメールの文体を表す
type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneFriendly     Tone = "Friendly"
	ToneFormal       Tone = "Formal"
	ToneApologetic   Tone = "Apologetic"
	TonePersuasive   Tone = "Persuasive"
)

// Length はメールの長さを表す
type Length string

const (
	LengthShort    Length = "Short"
	LengthMedium   Length = "Medium"
	LengthDetailed Length = "Detailed"
)

// Mode は新規作成か既存メールの改善かを表す
type Mode string

const (
	ModeCompose Mode = "Compose"
	ModeImprove Mode = "Improve"
)

var (
	allTones   = []Tone{ToneProfessional, ToneFriendly, ToneFormal, ToneApologetic, TonePersuasive}
	allLengths = []Length{LengthShort, LengthMedium, LengthDetailed}
	allModes   = []Mode{ModeCompose, ModeImprove}
)

// AllTones は選択可能な文体を表示順に返す
func AllTones() []Tone {
	return append([]Tone(nil), allTones...)
}

// AllLengths は選択可能な長さを表示順に返す
func AllLengths() []Length {
	return append([]Length(nil), allLengths...)
}

// ParseTone は大文字小文字を区別せずに Tone を解析する
func ParseTone(s string) (Tone, error) {
	for _, t := range allTones {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", newValidationError("tone", fmt.Sprintf("unknown tone %q", s))
}

// ParseLength は大文字小文字を区別せずに Length を解析する
func ParseLength(s string) (Length, error) {
	for _, l := range allLengths {
		if strings.EqualFold(string(l), strings.TrimSpace(s)) {
			return l, nil
		}
	}
	return "", newValidationError("length", fmt.Sprintf("unknown length %q", s))
}

// ParseMode は大文字小文字を区別せずに Mode を解析する
func ParseMode(s string) (Mode, error) {
	for _, m := range allModes {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return "", newValidationError("mode", fmt.Sprintf("unknown mode %q", s))
}

// GenerationRequest はユーザー操作1回分の生成リクエスト
type GenerationRequest struct {
	Mode            Mode
	Purpose         string // 用件（Compose で必須）
	ExistingEmail   string // 改善対象のメール本文（Improve で使用）
	Tone            Tone
	Length          Length
	GenerateSubject bool // 件名をAIで提案するか
}

// GenerationResult は生成結果
type GenerationResult struct {
	RequestID    uuid.UUID
	Mode         Mode              // 実際に使われたモード
	Subject      mo.Option[string] // AI提案の件名（Compose かつ要求時のみ）
	Text         string            // 生成されたメール本文
	Context      string            // 参照したテンプレート
	PromptTokens int
}
