package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultTopK は参照するテンプレートのデフォルト件数
const DefaultTopK = 2

// Retriever は用件文に近いテンプレートを検索し、プロンプト用コンテキストを組み立てる
type Retriever struct {
	repo       Repository
	embedder   Embedder
	collection string
	topK       int
	logger     *slog.Logger
}

type RetrieverOption func(*Retriever)

// WithRetrieverLogger は Retriever にロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// WithTopK は取得件数を設定する
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		r.topK = k
	}
}

// NewRetriever は新しいRetrieverを作成する。
// embedder が nil の場合、Retrieve は常に空文字列を返す。
func NewRetriever(repo Repository, embedder Embedder, collection string, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		repo:       repo,
		embedder:   embedder,
		collection: collection,
		topK:       DefaultTopK,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}

	return r
}

// Retrieve は query に近いテンプレート本文を類似度順に改行で連結して返す。
// テンプレートは生成品質を上げるための補助なので、失敗時はエラーにせず空文字列を返す。
func (r *Retriever) Retrieve(ctx context.Context, query string) string {
	// 空の用件文は埋め込まない
	if strings.TrimSpace(query) == "" {
		return ""
	}
	if r.embedder == nil || r.repo == nil {
		r.logger.Debug("retrieval skipped: no embedder configured")
		return ""
	}

	results, err := r.Search(ctx, query, r.topK)
	if err != nil {
		r.logger.Warn("template retrieval failed, continuing without context", "error", err)
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, res := range results {
		parts = append(parts, strings.TrimRight(res.Document.Content, "\r\n"))
	}

	r.logger.Debug("templates retrieved", "count", len(parts))

	return strings.Join(parts, "\n")
}

// Search は query に近いテンプレートを最大 limit 件返す。
// コレクションが存在しない、または空の場合は結果なしとして扱う。
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if r.embedder == nil || r.repo == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if limit <= 0 {
		limit = r.topK
	}

	info, err := r.repo.Collection(ctx, r.collection)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if info.Count == 0 {
		return nil, nil
	}

	// 登録時と異なるモデルのベクトル同士は比較できない
	if info.EmbeddingModel != r.embedder.ModelName() {
		return nil, fmt.Errorf("embedding model mismatch: collection %q was seeded with %q, embedder is %q",
			info.Name, info.EmbeddingModel, r.embedder.ModelName())
	}
	if info.Dimension != r.embedder.Dimension() {
		return nil, fmt.Errorf("%w: collection %q has dimension %d, embedder produces %d",
			ErrDimensionMismatch, info.Name, info.Dimension, r.embedder.Dimension())
	}

	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(queryVector) != info.Dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection %q expects %d",
			ErrDimensionMismatch, len(queryVector), info.Name, info.Dimension)
	}

	results, err := r.repo.SearchNearest(ctx, r.collection, queryVector, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return results, nil
}
