// Package http はメール生成の JSON API を提供する。
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jinford/mailcraft/internal/core/email"
	"github.com/jinford/mailcraft/internal/infra/export"
)

const maxRequestBytes = 1 << 20

// EmailGenerator はメール生成ユースケースの入口
type EmailGenerator interface {
	Generate(ctx context.Context, req email.GenerationRequest) (*email.GenerationResult, error)
}

// Server はメール生成 API の HTTP サーバ
type Server struct {
	generator EmailGenerator
	addr      string
	logger    *slog.Logger
}

type ServerOption func(*Server)

// WithServerLogger はロガーを設定する
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer は新しい Server を作成する
func NewServer(generator EmailGenerator, addr string, opts ...ServerOption) *Server {
	s := &Server{
		generator: generator,
		addr:      addr,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/emails", s.handleGenerate)
	mux.HandleFunc("POST /api/emails/download", s.handleDownload)
	mux.HandleFunc("GET /api/options", s.handleOptions)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return s.loggingMiddleware(mux)
}

// Start は ctx がキャンセルされるまでサーバを動かす
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown failed", "error", err)
		}
	}()

	s.logger.Info("HTTPサーバを起動します", "addr", s.addr)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバが異常終了しました: %w", err)
	}
	return nil
}

// GenerateRequest は POST /api/emails のリクエストボディ
type GenerateRequest struct {
	Mode            string `json:"mode"`
	Purpose         string `json:"purpose"`
	ExistingEmail   string `json:"existingEmail"`
	Tone            string `json:"tone"`
	Length          string `json:"length"`
	GenerateSubject bool   `json:"generateSubject"`
}

// GenerateResponse は生成結果のレスポンス
type GenerateResponse struct {
	RequestID string `json:"requestId"`
	Mode      string `json:"mode"`
	Subject   string `json:"subject,omitempty"`
	Text      string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	result, ok := s.generate(w, r)
	if !ok {
		return
	}

	subject, _ := result.Subject.Get()
	writeJSON(w, http.StatusOK, GenerateResponse{
		RequestID: result.RequestID.String(),
		Mode:      string(result.Mode),
		Subject:   subject,
		Text:      result.Text,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	result, ok := s.generate(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.TextFileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(result.Text))
}

// generate はリクエストを解釈して生成を実行する。失敗時はレスポンスを書き込んで false を返す。
func (s *Server) generate(w http.ResponseWriter, r *http.Request) (*email.GenerationResult, bool) {
	var body GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return nil, false
	}

	req, err := toGenerationRequest(body)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}

	result, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return result, true
}

func toGenerationRequest(body GenerateRequest) (email.GenerationRequest, error) {
	req := email.GenerationRequest{
		Mode:            email.ModeCompose,
		Purpose:         body.Purpose,
		ExistingEmail:   body.ExistingEmail,
		Tone:            email.ToneProfessional,
		Length:          email.LengthMedium,
		GenerateSubject: body.GenerateSubject,
	}

	if body.Mode != "" {
		mode, err := email.ParseMode(body.Mode)
		if err != nil {
			return req, err
		}
		req.Mode = mode
	}
	if body.Tone != "" {
		tone, err := email.ParseTone(body.Tone)
		if err != nil {
			return req, err
		}
		req.Tone = tone
	}
	if body.Length != "" {
		length, err := email.ParseLength(body.Length)
		if err != nil {
			return req, err
		}
		req.Length = length
	}
	return req, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var vErr *email.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: vErr.Reason, Field: vErr.Field})
	case errors.Is(err, email.ErrGeneration):
		s.logger.Error("email generation failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// OptionsResponse はフォーム描画用の選択肢
type OptionsResponse struct {
	Modes   []string `json:"modes"`
	Tones   []string `json:"tones"`
	Lengths []string `json:"lengths"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	resp := OptionsResponse{
		Modes: []string{string(email.ModeCompose), string(email.ModeImprove)},
	}
	for _, tone := range email.AllTones() {
		resp.Tones = append(resp.Tones, string(tone))
	}
	for _, length := range email.AllLengths() {
		resp.Lengths = append(resp.Lengths, string(length))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
