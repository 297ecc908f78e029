package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

// Sink stores the encoded snapshot blob. Read returns nil data when nothing was stored yet.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context) ([]byte, error)
}

// FileSink keeps the snapshot in a local file, replaced atomically on every write.
type FileSink struct {
	path string
}

// NewFileSink builds a sink for path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (f *FileSink) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, f.path)
}

func (f *FileSink) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// RedisSink keeps the snapshot under a single key.
type RedisSink struct {
	client redis.UniversalClient
	key    string
}

// NewRedisSink builds a sink writing to key.
func NewRedisSink(client redis.UniversalClient, key string) *RedisSink {
	return &RedisSink{client: client, key: key}
}

func (r *RedisSink) Write(ctx context.Context, data []byte) error {
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisSink) Read(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return data, err
}

// NopSink discards snapshots; used when snapshotting is disabled.
type NopSink struct{}

func (NopSink) Write(context.Context, []byte) error  { return nil }
func (NopSink) Read(context.Context) ([]byte, error) { return nil, nil }
