package export

import (
	"bytes"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

const (
	// TextFileName はダウンロード用テキストのファイル名
	TextFileName = "generated_email.txt"
	// EMLFileName はメールクライアントで開ける .eml のファイル名
	EMLFileName = "generated_email.eml"

	defaultSubject = "(no subject)"
)

var ErrMissingAddress = errors.New("eml export requires both from and to addresses")

// WriteText は生成結果を dir/generated_email.txt に書き出し、そのパスを返す
func WriteText(dir, text string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, TextFileName)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", TextFileName, err)
	}
	return path, nil
}

// EMLParams は .eml 生成に必要な情報
type EMLParams struct {
	From    string // "Name <addr>" または "addr"
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// BuildEML は生成結果を RFC 5322 形式のメッセージにエンコードする
func BuildEML(p EMLParams) ([]byte, error) {
	if strings.TrimSpace(p.From) == "" || strings.TrimSpace(p.To) == "" {
		return nil, ErrMissingAddress
	}

	from, err := mail.ParseAddress(p.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	to, err := mail.ParseAddress(p.To)
	if err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}

	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		subject = defaultSubject
	}
	date := p.Date
	if date.IsZero() {
		date = time.Now()
	}

	part, err := enmime.Builder().
		From(from.Name, from.Address).
		To(to.Name, to.Address).
		Subject(subject).
		Date(date).
		Text([]byte(p.Body)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteEML は BuildEML の結果を dir/generated_email.eml に書き出す
func WriteEML(dir string, p EMLParams) (string, error) {
	raw, err := BuildEML(p)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, EMLFileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", EMLFileName, err)
	}
	return path, nil
}
