package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteText(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := WriteText(dir, "Dear Ms. Lee,\n\nThank you.")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "generated_email.txt"), path)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Dear Ms. Lee,\n\nThank you.", string(raw))
}

func TestBuildEML_RoundTrip(t *testing.T) {
	raw, err := BuildEML(EMLParams{
		From:    "Alice <alice@example.com>",
		To:      "bob@example.com",
		Subject: "Request for Deadline Extension",
		Body:    "Dear Bob,\n\nCould I have two more days?\n\nAlice",
		Date:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "Request for Deadline Extension", env.GetHeader("Subject"))
	assert.Contains(t, env.GetHeader("From"), "alice@example.com")
	assert.Contains(t, env.GetHeader("To"), "bob@example.com")
	assert.Equal(t, "Dear Bob,\n\nCould I have two more days?\n\nAlice", strings.ReplaceAll(strings.TrimRight(env.Text, "\r\n"), "\r\n", "\n"))
}

func TestBuildEML_DefaultSubject(t *testing.T) {
	raw, err := BuildEML(EMLParams{From: "a@example.com", To: "b@example.com", Body: "hi"})
	require.NoError(t, err)

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "(no subject)", env.GetHeader("Subject"))
}

func TestBuildEML_RequiresAddresses(t *testing.T) {
	_, err := BuildEML(EMLParams{To: "b@example.com", Body: "hi"})
	assert.ErrorIs(t, err, ErrMissingAddress)

	_, err = BuildEML(EMLParams{From: "not an address", To: "b@example.com", Body: "hi"})
	assert.Error(t, err)
}

func TestWriteEML(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteEML(dir, EMLParams{From: "a@example.com", To: "b@example.com", Subject: "Hi", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "generated_email.eml"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
