package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	context string
	queries []string
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string) string {
	r.queries = append(r.queries, query)
	return r.context
}

// stubLLM はプロンプトの種類ごとに応答を返す
type stubLLM struct {
	subject    string
	subjectErr error
	body       string
	bodyErr    error
	prompts    []string
}

func (l *stubLLM) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	if strings.HasPrefix(prompt, "Generate a short, professional email subject line") {
		return l.subject, l.subjectErr
	}
	return l.body, l.bodyErr
}

type stubCounter struct{ n int }

func (c stubCounter) CountTokens(text string) int { return c.n }

func newTestService(retriever ContextRetriever, llm LLMClient, opts ...EmailServiceOption) *EmailService {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{AddSource: false}))
	opts = append(opts, WithEmailLogger(logger))
	return NewEmailService(retriever, llm, opts...)
}

func composeRequest() GenerationRequest {
	return GenerationRequest{
		Mode:    ModeCompose,
		Purpose: "ask for a deadline extension",
		Tone:    ToneApologetic,
		Length:  LengthShort,
	}
}

func TestEmailService_ComposeUsesRetrievedContext(t *testing.T) {
	retriever := &stubRetriever{context: "Dear manager, could I have two more days..."}
	llm := &stubLLM{body: "  Subject: Extension\n\nDear Ms. Lee,...  "}
	svc := newTestService(retriever, llm)

	result, err := svc.Generate(context.Background(), composeRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{"ask for a deadline extension"}, retriever.queries)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Dear manager, could I have two more days...")
	assert.Contains(t, llm.prompts[0], "ask for a deadline extension")
	assert.Equal(t, "Subject: Extension\n\nDear Ms. Lee,...", result.Text)
	assert.Equal(t, ModeCompose, result.Mode)
	assert.True(t, result.Subject.IsAbsent())
	assert.NotEqual(t, uuid.Nil, result.RequestID)
}

func TestEmailService_EmptyPurposeIsRejected(t *testing.T) {
	llm := &stubLLM{body: "never"}
	retriever := &stubRetriever{}
	svc := newTestService(retriever, llm)

	req := composeRequest()
	req.Purpose = "   "

	_, err := svc.Generate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "purpose", vErr.Field)
	assert.Empty(t, llm.prompts)
	assert.Empty(t, retriever.queries)
}

func TestEmailService_UnknownToneIsRejected(t *testing.T) {
	svc := newTestService(nil, &stubLLM{})

	req := composeRequest()
	req.Tone = "Sarcastic"

	_, err := svc.Generate(context.Background(), req)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestEmailService_EnumsAreCaseInsensitive(t *testing.T) {
	llm := &stubLLM{body: "Dear..."}
	svc := newTestService(&stubRetriever{}, llm)

	req := GenerationRequest{
		Mode:    Mode("compose"),
		Purpose: "ask for a deadline extension",
		Tone:    Tone("apologetic"),
		Length:  Length("short"),
	}

	mode, err := Validate(req)
	require.NoError(t, err)
	assert.Equal(t, ModeCompose, mode)

	result, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ModeCompose, result.Mode)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "short (under 100 words)")
	assert.Contains(t, llm.prompts[0], "apologetic")
}

func TestEmailService_SubjectIsGeneratedFirst(t *testing.T) {
	llm := &stubLLM{subject: "Subject: \"Request for Deadline Extension\"\n", body: "Dear..."}
	svc := newTestService(&stubRetriever{}, llm)

	req := composeRequest()
	req.GenerateSubject = true

	result, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "Use this subject line: Request for Deadline Extension")
	subject, ok := result.Subject.Get()
	require.True(t, ok)
	assert.Equal(t, "Request for Deadline Extension", subject)
}

func TestEmailService_SubjectFailureDoesNotBlockBody(t *testing.T) {
	llm := &stubLLM{subjectErr: errors.New("503 unavailable"), body: "Dear..."}
	svc := newTestService(&stubRetriever{}, llm)

	req := composeRequest()
	req.GenerateSubject = true

	result, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Dear...", result.Text)
	assert.True(t, result.Subject.IsAbsent())
	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "- Subject line")
}

func TestEmailService_GenerationFailureIsWrapped(t *testing.T) {
	cause := errors.New("invalid api key")
	llm := &stubLLM{bodyErr: cause}
	svc := newTestService(&stubRetriever{}, llm)

	_, err := svc.Generate(context.Background(), composeRequest())
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrGeneration))
	assert.True(t, errors.Is(err, cause))
	assert.Len(t, llm.prompts, 1, "generation must not be retried")
}

func TestEmailService_ImproveSkipsRetrievalAndSubject(t *testing.T) {
	retriever := &stubRetriever{context: "unused"}
	llm := &stubLLM{body: "Hi,\n\nCould you please send the file?\n\nThanks"}
	svc := newTestService(retriever, llm)

	result, err := svc.Generate(context.Background(), GenerationRequest{
		Mode:            ModeImprove,
		ExistingEmail:   "hi pls send file thx",
		Tone:            ToneApologetic,
		Length:          LengthDetailed,
		GenerateSubject: true,
	})
	require.NoError(t, err)

	assert.Empty(t, retriever.queries)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "hi pls send file thx")
	assert.Equal(t, ModeImprove, result.Mode)
	assert.True(t, result.Subject.IsAbsent())
}

func TestEmailService_ImproveWithoutBodyNeedsPurpose(t *testing.T) {
	svc := newTestService(&stubRetriever{}, &stubLLM{})

	_, err := svc.Generate(context.Background(), GenerationRequest{Mode: ModeImprove, Tone: ToneFormal, Length: LengthShort})
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestEmailService_PromptTokenLimit(t *testing.T) {
	llm := &stubLLM{body: "x"}
	svc := newTestService(&stubRetriever{}, llm, WithTokenCounter(stubCounter{n: 500}), WithMaxPromptTokens(100))

	_, err := svc.Generate(context.Background(), composeRequest())
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Empty(t, llm.prompts)

	svc = newTestService(&stubRetriever{}, llm, WithTokenCounter(stubCounter{n: 50}), WithMaxPromptTokens(100))
	result, err := svc.Generate(context.Background(), composeRequest())
	require.NoError(t, err)
	assert.Equal(t, 50, result.PromptTokens)
}

func TestEmailService_NilRetriever(t *testing.T) {
	llm := &stubLLM{body: "Dear..."}
	svc := newTestService(nil, llm)

	result, err := svc.Generate(context.Background(), composeRequest())
	require.NoError(t, err)
	assert.Empty(t, result.Context)
}

func TestCleanSubject(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Request for Extension", "Request for Extension"},
		{"\n\nSubject: Quick question\nmore text", "Quick question"},
		{"**Subject:** \"Quarterly Review\"", "Quarterly Review"},
		{"'Thanks!'", "Thanks!"},
		{"   \n  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSubject(tt.raw))
		})
	}
}

func TestParseEnums(t *testing.T) {
	tone, err := ParseTone("apologetic")
	require.NoError(t, err)
	assert.Equal(t, ToneApologetic, tone)

	length, err := ParseLength(" DETAILED ")
	require.NoError(t, err)
	assert.Equal(t, LengthDetailed, length)

	mode, err := ParseMode("improve")
	require.NoError(t, err)
	assert.Equal(t, ModeImprove, mode)

	_, err = ParseLength("epic")
	assert.True(t, errors.Is(err, ErrValidation))
}
