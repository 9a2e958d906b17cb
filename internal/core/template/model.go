package template

// TemplateDocument はテンプレートストアに格納されるメール文例を表す。
// 一度登録した後は更新されない。
type TemplateDocument struct {
	ID        string    // コーパス内の行番号を文字列化したもの
	Content   string    // メール本文
	Embedding []float32 // Embedder が生成したベクトル
}

// CollectionInfo はテンプレートコレクションのメタデータを表す
type CollectionInfo struct {
	Name           string // コレクション名（例: email_templates）
	EmbeddingModel string // 登録時に使用したEmbeddingモデル
	Dimension      int    // ベクトル次元数
	Count          int    // 登録済みドキュメント数
}

// SearchResult は類似検索の結果を表す
type SearchResult struct {
	Document TemplateDocument
	Score    float64 // コサイン類似度（大きいほど近い）
}
