package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/jinford/mailcraft/internal/core/template"
)

// DBFileName はデータディレクトリ内の SQLite ファイル名
const DBFileName = "templates.db"

// TemplateRepository は SQLite にテンプレートとベクトルを永続化する。
// 検索は全件読み込みのコサイン類似度計算で行う（テンプレート数は小さい前提）。
type TemplateRepository struct {
	mu      sync.RWMutex
	db      *sql.DB
	dataDir string
}

// NewTemplateRepository はデータディレクトリに SQLite ストアを開く
func NewTemplateRepository(dataDir string) (*TemplateRepository, error) {
	if dataDir == "" {
		dataDir = "./template_db"
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open template db: %w", err)
	}

	repo := &TemplateRepository{db: db, dataDir: dataDir}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

func (r *TemplateRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		embedding_model TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS templates (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Replace はコレクションを丸ごと作り直す
func (r *TemplateRepository) Replace(ctx context.Context, info template.CollectionInfo, docs []template.TemplateDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM templates WHERE collection = ?", info.Name); err != nil {
		return fmt.Errorf("failed to clear templates: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collections (name, embedding_model, dimension) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET embedding_model = excluded.embedding_model, dimension = excluded.dimension
	`, info.Name, info.EmbeddingModel, info.Dimension)
	if err != nil {
		return fmt.Errorf("failed to upsert collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO templates (collection, id, content, embedding) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		if info.Dimension > 0 && len(doc.Embedding) != info.Dimension {
			return fmt.Errorf("template %s has dimension %d, collection expects %d", doc.ID, len(doc.Embedding), info.Dimension)
		}
		if _, err := stmt.ExecContext(ctx, info.Name, doc.ID, doc.Content, encodeVector(doc.Embedding)); err != nil {
			return fmt.Errorf("failed to insert template %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// SearchNearest はコサイン類似度の高い順に最大 limit 件返す
func (r *TemplateRepository) SearchNearest(ctx context.Context, collection string, queryVector []float32, limit int) ([]template.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}

	// 同点時に行番号順となるよう、数値文字列の ID を桁数→文字列の順で並べる
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, content, embedding FROM templates WHERE collection = ? ORDER BY length(id), id", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer rows.Close()

	var results []template.SearchResult
	for rows.Next() {
		var doc template.TemplateDocument
		var blob []byte
		if err := rows.Scan(&doc.ID, &doc.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		doc.Embedding, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", doc.ID, err)
		}
		if len(doc.Embedding) != len(queryVector) {
			return nil, fmt.Errorf("%w: template %s has dimension %d, query has %d",
				template.ErrDimensionMismatch, doc.ID, len(doc.Embedding), len(queryVector))
		}

		results = append(results, template.SearchResult{
			Document: doc,
			Score:    cosineSimilarity(queryVector, doc.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}

	// 安定ソートなので同点は行番号順のまま
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Collection はコレクションのメタデータと件数を返す
func (r *TemplateRepository) Collection(ctx context.Context, name string) (template.CollectionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := template.CollectionInfo{Name: name}
	err := r.db.QueryRowContext(ctx,
		"SELECT embedding_model, dimension FROM collections WHERE name = ?", name,
	).Scan(&info.EmbeddingModel, &info.Dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return template.CollectionInfo{}, template.ErrCollectionNotFound
	}
	if err != nil {
		return template.CollectionInfo{}, fmt.Errorf("failed to load collection: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM templates WHERE collection = ?", name,
	).Scan(&info.Count); err != nil {
		return template.CollectionInfo{}, fmt.Errorf("failed to count templates: %w", err)
	}

	return info, nil
}

// Close はDB接続を閉じる
func (r *TemplateRepository) Close() error {
	return r.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupted embedding: %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ template.Repository = (*TemplateRepository)(nil)
