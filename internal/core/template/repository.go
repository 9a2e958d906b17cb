package template

import (
	"context"
	"errors"
)

// ErrCollectionNotFound はコレクションが存在しない場合のエラー
var ErrCollectionNotFound = errors.New("template collection not found")

// ErrDimensionMismatch はクエリベクトルと登録済みベクトルの次元が異なる場合のエラー
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Repository はテンプレートストアへのアクセスを抽象化する
type Repository interface {
	// Replace はコレクションの内容を docs で丸ごと置き換える
	Replace(ctx context.Context, info CollectionInfo, docs []TemplateDocument) error

	// SearchNearest は queryVector に近い順に最大 limit 件のドキュメントを返す
	SearchNearest(ctx context.Context, collection string, queryVector []float32, limit int) ([]SearchResult, error)

	// Collection はコレクションのメタデータを返す。存在しない場合は ErrCollectionNotFound
	Collection(ctx context.Context, name string) (CollectionInfo, error)
}

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed は複数テキストのEmbeddingを入力順に生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName はモデル名を返す
	ModelName() string

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int

	// MaxBatchSize は1回のバッチで処理できる最大件数を返す
	MaxBatchSize() int
}
