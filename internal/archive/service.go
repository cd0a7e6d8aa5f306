package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sqlchat/sqlchat/internal/history"
	"github.com/sqlchat/sqlchat/internal/storage"
)

// Source is the history store being drained.
type Source interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]history.Entry, error)
	DeleteThrough(ctx context.Context, last history.Entry) (int64, error)
}

type Verifier interface {
	CountRows(ctx context.Context, store storage.ObjectStore, key string) (int64, error)
}

type Config struct {
	Interval         time.Duration
	MaxAge           time.Duration
	BatchSize        int
	MaxBatchesPerRun int
}

// Service moves history entries older than MaxAge into parquet objects.
// Rows are only deleted after the uploaded object has been read back and
// its size, manifest metadata and row count match the batch.
type Service struct {
	History     Source
	ObjectStore storage.ObjectStore
	Verifier    Verifier
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type Summary struct {
	Cutoff       time.Time `json:"cutoff"`
	Batches      int       `json:"batches"`
	RowsArchived int64     `json:"rows_archived"`
	RowsDeleted  int64     `json:"rows_deleted"`
	BytesWritten int64     `json:"bytes_written"`
	Objects      []string  `json:"objects,omitempty"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		s.runAndLog(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) runAndLog(ctx context.Context) {
	summary, err := s.RunOnce(ctx)
	if s.Logger == nil {
		return
	}
	if err != nil {
		s.Logger.ErrorContext(ctx, "history archive cycle failed", slog.Any("error", err), slog.Any("summary", summary))
		return
	}
	s.Logger.InfoContext(ctx, "history archive cycle completed",
		slog.Int("batches", summary.Batches),
		slog.Int64("rows_archived", summary.RowsArchived),
		slog.String("bytes_written", humanize.Bytes(uint64(summary.BytesWritten))),
		slog.Time("cutoff", summary.Cutoff),
	)
}

func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	s.ensureDefaults()
	if s.History == nil {
		return Summary{}, fmt.Errorf("history source is required")
	}
	if s.ObjectStore == nil {
		return Summary{}, fmt.Errorf("object store is required")
	}

	now := s.Clock().UTC()
	summary := Summary{Cutoff: now.Add(-s.Config.MaxAge)}
	batchID := now.Format("20060102T150405Z")

	for sequence := 0; sequence < s.Config.MaxBatchesPerRun; sequence++ {
		entries, err := s.History.ListBefore(ctx, summary.Cutoff, s.Config.BatchSize)
		if err != nil {
			archiveRunsTotal.WithLabelValues("error").Inc()
			return summary, fmt.Errorf("list history before cutoff: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		key, written, deleted, err := s.archiveBatch(ctx, entries, batchID, sequence)
		if err != nil {
			archiveRunsTotal.WithLabelValues("error").Inc()
			return summary, fmt.Errorf("archive batch %d: %w", sequence, err)
		}
		summary.Batches++
		summary.RowsArchived += int64(len(entries))
		summary.RowsDeleted += deleted
		summary.BytesWritten += written
		summary.Objects = append(summary.Objects, key)
		archiveRowsTotal.Add(float64(len(entries)))
		archiveBytesTotal.Add(float64(written))

		if len(entries) < s.Config.BatchSize {
			break
		}
	}

	archiveRunsTotal.WithLabelValues("success").Inc()
	return summary, nil
}

func (s *Service) archiveBatch(ctx context.Context, entries []history.Entry, batchID string, sequence int) (string, int64, int64, error) {
	encoded, err := EncodeEntries(entries)
	if err != nil {
		return "", 0, 0, err
	}
	key, err := storage.BuildArchivePath(encoded.Oldest, batchID, sequence)
	if err != nil {
		return "", 0, 0, err
	}

	size := int64(len(encoded.Data))
	manifest := storage.ArchiveManifest{
		BatchID:     batchID,
		RecordCount: encoded.RecordCount,
		Oldest:      encoded.Oldest,
		Newest:      encoded.Newest,
	}
	opts := storage.PutOptions{ContentType: storage.ContentTypeParquet, Metadata: manifest.Metadata()}
	if _, err := s.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), size, opts); err != nil {
		return key, 0, 0, err
	}

	info, err := s.ObjectStore.Stat(ctx, key)
	if err != nil {
		return key, size, 0, fmt.Errorf("stat archived object: %w", err)
	}
	if info.Size != size {
		return key, size, 0, fmt.Errorf("archived object %q size = %d, want %d", key, info.Size, size)
	}
	stored, err := storage.ParseArchiveManifest(info.Metadata)
	if err != nil {
		return key, size, 0, fmt.Errorf("archived object %q: %w", key, err)
	}
	if stored.RecordCount != encoded.RecordCount || stored.BatchID != batchID {
		return key, size, 0, fmt.Errorf("archived object %q manifest = %d rows batch %q, want %d rows batch %q",
			key, stored.RecordCount, stored.BatchID, encoded.RecordCount, batchID)
	}
	count, err := s.Verifier.CountRows(ctx, s.ObjectStore, key)
	if err != nil {
		return key, size, 0, fmt.Errorf("verify archived object: %w", err)
	}
	if count != encoded.RecordCount {
		return key, size, 0, fmt.Errorf("archived object %q rows = %d, want %d", key, count, encoded.RecordCount)
	}

	deleted, err := s.History.DeleteThrough(ctx, entries[len(entries)-1])
	if err != nil {
		return key, size, 0, err
	}
	return key, size, deleted, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Verifier == nil {
		s.Verifier = DuckDBVerifier{}
	}
	if s.Config.Interval <= 0 {
		s.Config.Interval = time.Hour
	}
	if s.Config.MaxAge <= 0 {
		s.Config.MaxAge = 30 * 24 * time.Hour
	}
	if s.Config.BatchSize <= 0 {
		s.Config.BatchSize = 5000
	}
	if s.Config.MaxBatchesPerRun <= 0 {
		s.Config.MaxBatchesPerRun = 100
	}
}
