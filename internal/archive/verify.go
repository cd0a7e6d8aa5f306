package archive

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/sqlchat/sqlchat/internal/storage"
)

// DuckDBVerifier downloads an archived object and counts its rows with an
// in-memory DuckDB.
type DuckDBVerifier struct {
	TempDir string
}

func (v DuckDBVerifier) CountRows(ctx context.Context, store storage.ObjectStore, key string) (int64, error) {
	workDir, err := os.MkdirTemp(v.TempDir, "sqlchat-archive-")
	if err != nil {
		return 0, fmt.Errorf("create verify temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	reader, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("get object %q: %w", key, err)
	}
	localPath := filepath.Join(workDir, "batch.parquet")
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return 0, fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return 0, fmt.Errorf("close object %q: %w", key, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return 0, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	var count int64
	query := `SELECT COUNT(*) FROM read_parquet(` + quoteString(localPath) + `)`
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count archived rows: %w", err)
	}
	return count, nil
}

func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
