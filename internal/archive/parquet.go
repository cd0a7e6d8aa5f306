package archive

import (
	"bytes"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlchat/sqlchat/internal/history"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
	Oldest      time.Time
	Newest      time.Time
}

type parquetEntry struct {
	HistoryID       string `parquet:"history_id"`
	TraceID         string `parquet:"trace_id"`
	TenantID        string `parquet:"tenant_id"`
	Mode            string `parquet:"mode"`
	InputText       string `parquet:"input_text"`
	SQLText         string `parquet:"sql_text"`
	Success         bool   `parquet:"success"`
	RowCount        int64  `parquet:"row_count"`
	DurationMs      int64  `parquet:"duration_ms"`
	ErrorDetail     string `parquet:"error_detail"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// EncodeEntries writes entries as one parquet file in the given order.
func EncodeEntries(entries []history.Entry) (EncodeResult, error) {
	if len(entries) == 0 {
		return EncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	var oldest, newest time.Time
	for _, entry := range entries {
		if entry.CreatedAt.IsZero() {
			return EncodeResult{}, fmt.Errorf("entry %s has no created_at", entry.ID)
		}
		rows = append(rows, parquetEntry{
			HistoryID:       entry.ID.String(),
			TraceID:         entry.TraceID,
			TenantID:        entry.TenantID,
			Mode:            string(entry.Mode),
			InputText:       entry.Input,
			SQLText:         entry.SQL,
			Success:         entry.Success,
			RowCount:        int64(entry.RowCount),
			DurationMs:      entry.Duration.Milliseconds(),
			ErrorDetail:     entry.ErrorDetail,
			CreatedAtUnixMs: entry.CreatedAt.UTC().UnixMilli(),
		})

		createdAt := entry.CreatedAt.UTC()
		if oldest.IsZero() || createdAt.Before(oldest) {
			oldest = createdAt
		}
		if newest.IsZero() || createdAt.After(newest) {
			newest = createdAt
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
		Oldest:      oldest,
		Newest:      newest,
	}, nil
}
