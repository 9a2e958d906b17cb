package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/mailcraft/internal/core/template"
	"github.com/jinford/mailcraft/internal/platform/database"
)

// startPostgres は pgvector 入りの PostgreSQL コンテナを起動する
func startPostgres(t *testing.T) *database.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=mailcraft",
			"POSTGRES_PASSWORD=mailcraft",
			"POSTGRES_DB=mailcraft",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(120)

	dsn := fmt.Sprintf("postgres://mailcraft:mailcraft@%s/mailcraft?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var db *database.Database
	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var connErr error
		db, connErr = database.NewFromDSN(ctx, dsn)
		return connErr
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

func TestTemplateRepository_Integration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	repo := NewTemplateRepository(db.Pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	_, err := repo.Collection(ctx, "email_templates")
	assert.True(t, errors.Is(err, template.ErrCollectionNotFound))

	info := template.CollectionInfo{Name: "email_templates", EmbeddingModel: "kw-1", Dimension: 3}
	docs := []template.TemplateDocument{
		{ID: "0", Content: "Could I have two more days for the report?", Embedding: []float32{1, 0, 0}},
		{ID: "1", Content: "Please find the attached invoice.", Embedding: []float32{0, 1, 0}},
		{ID: "2", Content: "Can we meet on Tuesday?", Embedding: []float32{0, 0, 1}},
	}
	require.NoError(t, repo.Replace(ctx, info, docs))

	got, err := repo.Collection(ctx, "email_templates")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, "kw-1", got.EmbeddingModel)

	results, err := repo.SearchNearest(ctx, "email_templates", []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "0", results[0].Document.ID)
	assert.Equal(t, "1", results[1].Document.ID)
	assert.Greater(t, results[0].Score, results[1].Score)

	// 再投入でコレクションは置き換わる
	require.NoError(t, repo.Replace(ctx, info, docs[2:]))
	got, err = repo.Collection(ctx, "email_templates")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)

	// 次元が合わないドキュメントは拒否し、既存の内容は残る
	err = repo.Replace(ctx, info, []template.TemplateDocument{{ID: "9", Content: "x", Embedding: []float32{1}}})
	assert.Error(t, err)
	got, err = repo.Collection(ctx, "email_templates")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)

	// 同点は行番号順（"10" は "2" の後）
	var ties []template.TemplateDocument
	for _, id := range []string{"10", "2", "1"} {
		ties = append(ties, template.TemplateDocument{ID: id, Content: "line " + id, Embedding: []float32{1, 0, 0}})
	}
	require.NoError(t, repo.Replace(ctx, info, ties))
	results, err = repo.SearchNearest(ctx, "email_templates", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "1", results[0].Document.ID)
	assert.Equal(t, "2", results[1].Document.ID)
	assert.Equal(t, "10", results[2].Document.ID)
}
