//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/askdb/askdb/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("ASKDB_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("ASKDB_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("ASKDB_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("ASKDB_TEST_S3_BUCKET", "askdb-it"),
		AccessKeyID:      envOr("ASKDB_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("ASKDB_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key, err := storage.BuildAuditPath(time.Now(), "roundtrip")
	if err != nil {
		t.Fatalf("BuildAuditPath() error = %v", err)
	}
	payload := []byte("askdb-integration")

	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stat, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d, want %d", stat.Size, len(payload))
	}

	listed, err := store.List(ctx, storage.AuditRoot())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, obj := range listed {
		if obj.Key == key {
			found = true
		}
	}
	if !found {
		t.Fatalf("List() = %+v, missing %q", listed, key)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q, want %q", got, payload)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
