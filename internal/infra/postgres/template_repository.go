package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/mailcraft/internal/core/template"
	"github.com/jinford/mailcraft/internal/platform/database"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS template_collections (
	name            TEXT PRIMARY KEY,
	embedding_model TEXT NOT NULL,
	dimension       INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS email_templates (
	collection TEXT NOT NULL REFERENCES template_collections(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	content    TEXT NOT NULL,
	embedding  vector NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// TemplateRepository は template.Repository を実装する PostgreSQL (pgvector) リポジトリ。
type TemplateRepository struct {
	pool *pgxpool.Pool
	tx   *database.TransactionProvider
}

// NewTemplateRepository は新しい TemplateRepository を返す。
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{
		pool: pool,
		tx:   database.NewTransactionProvider(pool),
	}
}

var _ template.Repository = (*TemplateRepository)(nil)

// EnsureSchema は pgvector 拡張とテーブルを作成する
func (r *TemplateRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create template schema: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Replace(ctx context.Context, info template.CollectionInfo, docs []template.TemplateDocument) error {
	for _, doc := range docs {
		if info.Dimension > 0 && len(doc.Embedding) != info.Dimension {
			return fmt.Errorf("template %s has dimension %d, collection expects %d", doc.ID, len(doc.Embedding), info.Dimension)
		}
	}

	_, err := database.Transact(ctx, r.tx, func(tx pgx.Tx) (struct{}, error) {
		if _, err := tx.Exec(ctx, "DELETE FROM email_templates WHERE collection = $1", info.Name); err != nil {
			return struct{}{}, fmt.Errorf("failed to clear templates: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO template_collections (name, embedding_model, dimension) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET embedding_model = EXCLUDED.embedding_model, dimension = EXCLUDED.dimension`,
			info.Name, info.EmbeddingModel, info.Dimension)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to upsert collection: %w", err)
		}

		batch := &pgx.Batch{}
		for _, doc := range docs {
			batch.Queue("INSERT INTO email_templates (collection, id, content, embedding) VALUES ($1, $2, $3, $4)",
				info.Name, doc.ID, doc.Content, pgvector.NewVector(doc.Embedding))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return struct{}{}, fmt.Errorf("failed to insert templates: %w", err)
		}

		return struct{}{}, nil
	})
	return err
}

func (r *TemplateRepository) SearchNearest(ctx context.Context, collection string, queryVector []float32, limit int) ([]template.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, content, embedding, 1 - (embedding <=> $2) AS score
		FROM email_templates
		WHERE collection = $1
		ORDER BY embedding <=> $2, length(id), id
		LIMIT $3`,
		collection, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search templates: %w", err)
	}
	defer rows.Close()

	var results []template.SearchResult
	for rows.Next() {
		var (
			doc       template.TemplateDocument
			embedding pgvector.Vector
			score     float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &embedding, &score); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		doc.Embedding = embedding.Slice()
		results = append(results, template.SearchResult{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}

	return results, nil
}

func (r *TemplateRepository) Collection(ctx context.Context, name string) (template.CollectionInfo, error) {
	info := template.CollectionInfo{Name: name}
	err := r.pool.QueryRow(ctx, `
		SELECT c.embedding_model, c.dimension, COUNT(t.id)
		FROM template_collections c
		LEFT JOIN email_templates t ON t.collection = c.name
		WHERE c.name = $1
		GROUP BY c.embedding_model, c.dimension`, name,
	).Scan(&info.EmbeddingModel, &info.Dimension, &info.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return template.CollectionInfo{}, template.ErrCollectionNotFound
	}
	if err != nil {
		return template.CollectionInfo{}, fmt.Errorf("failed to load collection: %w", err)
	}
	return info, nil
}
