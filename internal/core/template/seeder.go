package template

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// CorpusLine はコーパスファイルの1行（空行を除く）を表す
type CorpusLine struct {
	Index int // 0始まりの行番号。ドキュメントIDに使う
	Text  string
}

// LoadCorpus は1行1テンプレートのコーパスを読み込む。空行はスキップするが行番号は保持する。
func LoadCorpus(r io.Reader) ([]CorpusLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []CorpusLine
	index := 0
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text != "" {
			lines = append(lines, CorpusLine{Index: index, Text: text})
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	return lines, nil
}

// Seeder はコーパスファイルからテンプレートストアを構築する
type Seeder struct {
	repo       Repository
	embedder   Embedder
	collection string
	logger     *slog.Logger
}

type SeederOption func(*Seeder)

// WithSeederLogger は Seeder にロガーを設定する
func WithSeederLogger(logger *slog.Logger) SeederOption {
	return func(s *Seeder) {
		s.logger = logger
	}
}

// NewSeeder は新しいSeederを作成する
func NewSeeder(repo Repository, embedder Embedder, collection string, opts ...SeederOption) *Seeder {
	s := &Seeder{
		repo:       repo,
		embedder:   embedder,
		collection: collection,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// SeedFile はコーパスファイルを読み込みコレクションを再構築する
func (s *Seeder) SeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	return s.Seed(ctx, f)
}

// Seed はコーパスを埋め込み、コレクションの内容を置き換える。登録件数を返す。
func (s *Seeder) Seed(ctx context.Context, r io.Reader) (int, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("embedder is required for seeding")
	}

	lines, err := LoadCorpus(r)
	if err != nil {
		return 0, err
	}

	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	docs := make([]TemplateDocument, 0, len(lines))
	for start := 0; start < len(lines); start += batchSize {
		end := min(start+batchSize, len(lines))
		batch := lines[start:end]

		texts := make([]string, len(batch))
		for i, line := range batch {
			texts[i] = line.Text
		}

		vectors, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed templates %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d templates", len(vectors), len(batch))
		}

		for i, line := range batch {
			docs = append(docs, TemplateDocument{
				ID:        strconv.Itoa(line.Index),
				Content:   line.Text,
				Embedding: vectors[i],
			})
		}

		s.logger.Debug("embedded template batch", "from", start, "to", end-1)
	}

	info := CollectionInfo{
		Name:           s.collection,
		EmbeddingModel: s.embedder.ModelName(),
		Dimension:      s.embedder.Dimension(),
		Count:          len(docs),
	}
	if err := s.repo.Replace(ctx, info, docs); err != nil {
		return 0, fmt.Errorf("failed to store templates: %w", err)
	}

	s.logger.Info("template collection seeded",
		"collection", s.collection,
		"templates", len(docs),
		"model", info.EmbeddingModel,
	)

	return len(docs), nil
}
