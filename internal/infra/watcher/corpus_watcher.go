package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce は連続した書き込みイベントをまとめる待ち時間
const DefaultDebounce = 500 * time.Millisecond

// CorpusWatcher はコーパスファイルの変更を監視し、落ち着いたら onChange を呼ぶ。
// エディタはファイルを置き換えて保存することがあるので、親ディレクトリを監視してファイル名で絞り込む。
type CorpusWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

type Option func(*CorpusWatcher)

// WithDebounce はデバウンス間隔を設定する
func WithDebounce(d time.Duration) Option {
	return func(w *CorpusWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(w *CorpusWatcher) {
		w.logger = logger
	}
}

// New は path を監視する CorpusWatcher を作成する
func New(path string, opts ...Option) *CorpusWatcher {
	w := &CorpusWatcher{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run は ctx がキャンセルされるまで監視を続ける。
// onChange のエラーはログに残して監視を継続する。
func (w *CorpusWatcher) Run(ctx context.Context, onChange func(context.Context) error) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info("watching corpus", "path", w.path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("corpus changed", "op", event.Op.String())
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			if err := onChange(ctx); err != nil {
				w.logger.Error("reseed after corpus change failed", "error", err)
			}
		}
	}
}
