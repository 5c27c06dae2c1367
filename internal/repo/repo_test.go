package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/abdusco/shortlink/internal/db"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, schema db.Schema) *db.DB {
	t.Helper()

	d, err := db.Open(context.Background(), db.Options{URL: filepath.Join(t.TempDir(), "test.db")}, schema)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func ptr[T any](v T) *T {
	return &v
}
