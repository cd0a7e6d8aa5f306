package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

const ContentTypeParquet = "application/vnd.apache.parquet"

// Metadata keys written on every archived history object.
const (
	MetaRecordCount = "record-count"
	MetaOldest      = "oldest"
	MetaNewest      = "newest"
	MetaBatchID     = "batch-id"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	// Metadata keys are lower-cased.
	Metadata map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore holds archived history files.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ArchiveManifest describes the history batch held by one archive object.
type ArchiveManifest struct {
	BatchID     string
	RecordCount int64
	Oldest      time.Time
	Newest      time.Time
}

func (m ArchiveManifest) Metadata() map[string]string {
	return map[string]string{
		MetaBatchID:     m.BatchID,
		MetaRecordCount: strconv.FormatInt(m.RecordCount, 10),
		MetaOldest:      m.Oldest.UTC().Format(time.RFC3339Nano),
		MetaNewest:      m.Newest.UTC().Format(time.RFC3339Nano),
	}
}

// ParseArchiveManifest reads a manifest back from object metadata.
// Key lookup ignores case since S3 gateways canonicalize header names.
func ParseArchiveManifest(meta map[string]string) (ArchiveManifest, error) {
	lookup := make(map[string]string, len(meta))
	for k, v := range meta {
		lookup[strings.ToLower(k)] = v
	}

	raw, ok := lookup[MetaRecordCount]
	if !ok {
		return ArchiveManifest{}, fmt.Errorf("archive metadata %q is missing", MetaRecordCount)
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || count < 0 {
		return ArchiveManifest{}, fmt.Errorf("archive metadata %q = %q is not a row count", MetaRecordCount, raw)
	}
	manifest := ArchiveManifest{BatchID: lookup[MetaBatchID], RecordCount: count}
	if manifest.Oldest, err = parseMetaTime(lookup, MetaOldest); err != nil {
		return ArchiveManifest{}, err
	}
	if manifest.Newest, err = parseMetaTime(lookup, MetaNewest); err != nil {
		return ArchiveManifest{}, err
	}
	if manifest.Newest.Before(manifest.Oldest) {
		return ArchiveManifest{}, fmt.Errorf("archive metadata newest %s precedes oldest %s", manifest.Newest, manifest.Oldest)
	}
	return manifest, nil
}

func parseMetaTime(lookup map[string]string, key string) (time.Time, error) {
	raw, ok := lookup[key]
	if !ok {
		return time.Time{}, fmt.Errorf("archive metadata %q is missing", key)
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("archive metadata %q: %w", key, err)
	}
	return ts, nil
}
