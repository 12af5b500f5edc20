package audit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

type parquetEntry struct {
	RequestID  string `parquet:"request_id"`
	Question   string `parquet:"question"`
	Intent     string `parquet:"intent"`
	SQL        string `parquet:"sql"`
	Outcome    string `parquet:"outcome"`
	Rows       int64  `parquet:"rows"`
	Truncated  bool   `parquet:"truncated"`
	DurationMs int64  `parquet:"duration_ms"`
	AtUnixMs   int64  `parquet:"at_unix_ms"`
}

// EncodeEntries writes one batch as a single Parquet file.
func EncodeEntries(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("entries are required")
	}
	rows := make([]parquetEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, parquetEntry{
			RequestID:  entry.RequestID,
			Question:   entry.Question,
			Intent:     entry.Intent,
			SQL:        entry.SQL,
			Outcome:    entry.Outcome,
			Rows:       int64(entry.Rows),
			Truncated:  entry.Truncated,
			DurationMs: entry.DurationMs,
			AtUnixMs:   entry.At.UTC().UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeEntries reads back a batch written by EncodeEntries.
func DecodeEntries(data []byte) ([]Entry, error) {
	reader := parquet.NewGenericReader[parquetEntry](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	rows := make([]parquetEntry, reader.NumRows())
	if len(rows) == 0 {
		return nil, nil
	}
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}
	entries := make([]Entry, 0, n)
	for _, row := range rows[:n] {
		entries = append(entries, Entry{
			RequestID:  row.RequestID,
			Question:   row.Question,
			Intent:     row.Intent,
			SQL:        row.SQL,
			Outcome:    row.Outcome,
			Rows:       int(row.Rows),
			Truncated:  row.Truncated,
			DurationMs: row.DurationMs,
			At:         time.UnixMilli(row.AtUnixMs).UTC(),
		})
	}
	return entries, nil
}
