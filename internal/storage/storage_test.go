package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidatePath(t *testing.T) {
	valid := []string{
		"receipts/42/comprobante.jpg",
		"anonymous/7/abc123.png",
		"deep/nested/dir/file.pdf",
	}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), "path %q", p)
	}

	invalid := []string{
		"",
		"../etc/passwd",
		"receipts/../../secret.jpg",
		"receipts/..",
		"/absolute/path.jpg",
		"\\windows\\path.jpg",
	}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidatePath(p), ErrInvalidPath, "path %q", p)
	}
}

func TestLocalStorageRoundTrip(t *testing.T) {
	store := NewLocalStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	content := []byte("fake image bytes")
	require.NoError(t, store.Save(ctx, "receipts/1/a.jpg", content))

	assert.True(t, store.Exists(ctx, "receipts/1/a.jpg"))
	assert.False(t, store.Exists(ctx, "receipts/1/b.jpg"))

	got, err := store.Read(ctx, "receipts/1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, store.Delete(ctx, "receipts/1/a.jpg"))
	assert.False(t, store.Exists(ctx, "receipts/1/a.jpg"))
	assert.Error(t, store.Delete(ctx, "receipts/1/a.jpg"))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store := NewLocalStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	_, err := store.Read(ctx, "../outside.txt")
	assert.ErrorIs(t, err, ErrInvalidPath)

	err = store.Save(ctx, "a/../../outside.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	assert.ErrorIs(t, store.Delete(ctx, "../outside.txt"), ErrInvalidPath)
}

func TestLocalStorageReadMissingFile(t *testing.T) {
	store := NewLocalStorage(t.TempDir(), zap.NewNop())

	_, err := store.Read(context.Background(), "receipts/nope.jpg")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPath)
}
