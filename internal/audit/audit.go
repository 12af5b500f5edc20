// Package audit archives the query history to object storage as Parquet
// batches. Archiving is best effort: failures are logged and counted, never
// returned to whoever asked the question.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/storage"
)

const defaultBatchSize = 100

// Entry is one handled question.
type Entry struct {
	RequestID  string
	Question   string
	Intent     string
	SQL        string
	Outcome    string
	Rows       int
	Truncated  bool
	DurationMs int64
	At         time.Time
}

// Sink receives entries from the pipeline.
type Sink interface {
	Record(ctx context.Context, entry Entry)
}

// Nop discards every entry. It is used when the archive is disabled.
type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

type RecorderConfig struct {
	BatchSize int
}

type Recorder struct {
	store     storage.ObjectStore
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	pending []Entry
	flushMu sync.Mutex
}

func NewRecorder(store storage.ObjectStore, cfg RecorderConfig, logger *slog.Logger) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Recorder{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// Record buffers entry and writes the batch once it reaches the batch size.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.At.IsZero() {
		entry.At = r.now()
	}
	r.mu.Lock()
	r.pending = append(r.pending, entry)
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if !full {
		return
	}
	// The request may already be finished; the upload must not inherit its cancellation.
	if err := r.Flush(context.WithoutCancel(ctx)); err != nil {
		r.logger.WarnContext(ctx, "audit flush failed", slog.Any("error", err))
	}
}

// Pending reports how many entries are buffered.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes all buffered entries as one object. A failed batch is dropped.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	key, err := r.write(ctx, batch)
	if err != nil {
		observability.IncrementAuditFlushFailures()
		return fmt.Errorf("archive %d audit entries: %w", len(batch), err)
	}
	r.logger.DebugContext(ctx, "audit batch archived", slog.String("key", key), slog.Int("entries", len(batch)))
	return nil
}

func (r *Recorder) write(ctx context.Context, batch []Entry) (string, error) {
	data, err := EncodeEntries(batch)
	if err != nil {
		return "", err
	}
	key, err := storage.BuildAuditPath(r.now(), r.newID())
	if err != nil {
		return "", err
	}
	if _, err := r.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return "", err
	}
	return key, nil
}

// ListBatches returns the archived batch objects, optionally limited to one UTC day.
func ListBatches(ctx context.Context, store storage.ObjectStore, day time.Time) ([]storage.ObjectInfo, error) {
	prefix := storage.AuditRoot()
	if !day.IsZero() {
		prefix = storage.AuditDatePrefix(day)
	}
	return store.List(ctx, prefix)
}

// ReadBatch downloads and decodes one archived batch.
func ReadBatch(ctx context.Context, store storage.ObjectStore, key string) ([]Entry, error) {
	info, err := store.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	if info.Size == 0 {
		return nil, nil
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read audit batch %q: %w", key, err)
	}
	return DecodeEntries(data)
}

// Prune deletes batches whose date partition is strictly before cutoff and
// returns the number of objects removed.
func Prune(ctx context.Context, store storage.ObjectStore, cutoff time.Time) (int, error) {
	objects, err := ListBatches(ctx, store, time.Time{})
	if err != nil {
		return 0, err
	}
	cutoffDay := time.Date(cutoff.UTC().Year(), cutoff.UTC().Month(), cutoff.UTC().Day(), 0, 0, 0, 0, time.UTC)
	removed := 0
	for _, obj := range objects {
		day, ok := storage.AuditPartitionDate(obj.Key)
		if !ok || !day.Before(cutoffDay) {
			continue
		}
		if err := store.Delete(ctx, obj.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
