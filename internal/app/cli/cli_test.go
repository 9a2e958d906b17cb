package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/jinford/mailcraft/internal/core/email"
	"github.com/jinford/mailcraft/internal/platform/config"
	"github.com/jinford/mailcraft/internal/platform/container"
)

type stubLLM struct {
	reply   string
	prompts []string
}

func (l *stubLLM) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	return l.reply, nil
}

// keywordEmbedder は "deadline" と "invoice" の出現で2次元ベクトルを作る
type keywordEmbedder struct{}

func (e keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vector(text), nil
}

func (e keywordEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (keywordEmbedder) vector(text string) []float32 {
	v := []float32{0.01, 0.01}
	if bytes.Contains([]byte(text), []byte("deadline")) {
		v[0] = 1
	}
	if bytes.Contains([]byte(text), []byte("invoice")) {
		v[1] = 1
	}
	return v
}

func (keywordEmbedder) ModelName() string { return "kw" }
func (keywordEmbedder) Dimension() int    { return 2 }
func (keywordEmbedder) MaxBatchSize() int { return 8 }

func newTestAppContext(t *testing.T, llm email.LLMClient, opts ...container.ContainerOption) *AppContext {
	t.Helper()
	cfg := &config.Config{
		LLM:       config.LLMConfig{Provider: config.ProviderGemini, GoogleAPIKey: "dummy-key"},
		Embedding: config.EmbeddingConfig{Provider: config.ProviderNone},
		Template: config.TemplateConfig{
			Store:      config.StoreSQLite,
			DBPath:     t.TempDir(),
			Collection: "email_templates",
			TopK:       1,
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]container.ContainerOption{
		container.WithContainerLogger(logger),
		container.WithContainerLLMClient(llm),
	}, opts...)

	appCtx, err := NewAppContextWithConfig(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(appCtx.Close)
	return appCtx
}

func TestNewAppContext_MissingAPIKey(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := NewAppContext(context.Background(), filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingAPIKey))
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}

func TestGenerateCommands_MissingAPIKeyStopsBeforeInputChecks(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GOOGLE_API_KEY", "")
	envFile := filepath.Join(t.TempDir(), "missing.env")

	generate := &cli.Command{
		Name: "generate",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env"},
			&cli.StringFlag{Name: "purpose"},
			&cli.StringFlag{Name: "tone", Value: "Professional"},
			&cli.StringFlag{Name: "length", Value: "Medium"},
		},
		Action: GenerateAction,
		Writer: io.Discard,
	}
	// 用件が空かつ文体も不正だが、設定エラーが優先される
	err := generate.Run(context.Background(), []string{"generate", "--env", envFile, "--purpose", " ", "--tone", "Sarcastic"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingAPIKey))

	var vErr *email.ValidationError
	assert.False(t, errors.As(err, &vErr))

	improve := &cli.Command{
		Name: "improve",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env"},
			&cli.StringFlag{Name: "email"},
		},
		Action: ImproveAction,
		Writer: io.Discard,
	}
	err = improve.Run(context.Background(), []string{"improve", "--env", envFile})
	assert.True(t, errors.Is(err, config.ErrMissingAPIKey))
}

func TestRunGenerate_WritesOutputs(t *testing.T) {
	llm := &stubLLM{reply: "Dear Ms. Lee,\n\nCould I have two more days?\n\nBest,\nSam"}
	appCtx := newTestAppContext(t, llm)
	outDir := t.TempDir()

	var out bytes.Buffer
	err := RunGenerate(context.Background(), appCtx, GenerateParams{
		Request: email.GenerationRequest{
			Mode:    email.ModeCompose,
			Purpose: "ask for a deadline extension",
			Tone:    email.ToneApologetic,
			Length:  email.LengthShort,
		},
		OutDir:  outDir,
		EMLFrom: "sam@example.com",
		EMLTo:   "lee@example.com",
	}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Could I have two more days?")

	raw, err := os.ReadFile(filepath.Join(outDir, "generated_email.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Dear Ms. Lee,\n\nCould I have two more days?\n\nBest,\nSam", string(raw))

	_, err = os.Stat(filepath.Join(outDir, "generated_email.eml"))
	assert.NoError(t, err)
}

func TestRunGenerate_ValidationErrorSkipsLLM(t *testing.T) {
	llm := &stubLLM{reply: "unused"}
	appCtx := newTestAppContext(t, llm)

	err := RunGenerate(context.Background(), appCtx, GenerateParams{
		Request: email.GenerationRequest{Mode: email.ModeCompose, Tone: email.ToneFormal, Length: email.LengthShort},
	}, io.Discard)
	assert.True(t, errors.Is(err, email.ErrValidation))
	assert.Empty(t, llm.prompts)
}

func TestSeedSearchAndGenerateWithContext(t *testing.T) {
	llm := &stubLLM{reply: "Dear manager,"}
	appCtx := newTestAppContext(t, llm, container.WithContainerEmbedder(keywordEmbedder{}))

	corpus := filepath.Join(t.TempDir(), "email_templates.txt")
	require.NoError(t, os.WriteFile(corpus, []byte(
		"Dear manager, I need a deadline extension for the report.\n\nPlease find the attached invoice.\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, RunTemplateSeed(context.Background(), appCtx, corpus, &out))
	assert.Contains(t, out.String(), "2 件")

	out.Reset()
	require.NoError(t, RunTemplateSearch(context.Background(), appCtx, "overdue invoice", 1, &out))
	assert.Contains(t, out.String(), "id=2")
	assert.Contains(t, out.String(), "Please find the attached invoice.")

	out.Reset()
	err := RunGenerate(context.Background(), appCtx, GenerateParams{
		Request: email.GenerationRequest{
			Mode:    email.ModeCompose,
			Purpose: "ask for a deadline extension",
			Tone:    email.ToneApologetic,
			Length:  email.LengthShort,
		},
		ShowContext: true,
	}, &out)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "I need a deadline extension for the report.")
	assert.NotContains(t, llm.prompts[0], "attached invoice")
	assert.Contains(t, out.String(), "参照テンプレート")
}

func TestRunTemplateSeed_WithoutEmbedder(t *testing.T) {
	appCtx := newTestAppContext(t, &stubLLM{})

	err := RunTemplateSeed(context.Background(), appCtx, "unused.txt", io.Discard)
	assert.True(t, errors.Is(err, container.ErrEmbedderNotConfigured))
}
