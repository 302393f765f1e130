package settings

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const kvLogPrefix = "settings:kv"

// DefaultBucket is the JetStream KV bucket holding console preferences.
const DefaultBucket = "console_settings"

// KVStore keeps preferences in a JetStream key-value bucket.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens bucket, creating it when missing.
func NewKVStore(ctx context.Context, nc *comms.Conn, bucket string) (*KVStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create JetStream context: %w", kvLogPrefix, err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "standards console preferences",
			History:     1,
		})
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = js.KeyValue(ctx, bucket)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to open bucket %s: %w", kvLogPrefix, bucket, err)
	}

	slog.Info(fmt.Sprintf("%s - Using preferences bucket %s", kvLogPrefix, bucket))
	return &KVStore{kv: kv}, nil
}

// kvKey encodes route into the restricted KV key alphabet.
func kvKey(route string) string {
	if route == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(route))
}

func (s *KVStore) Get(ctx context.Context, route string) (Columns, bool, error) {
	entry, err := s.kv.Get(ctx, kvKey(route))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	cols, err := decodeColumns(entry.Value())
	if err != nil {
		return nil, false, fmt.Errorf("%s - corrupt entry for %s: %w", kvLogPrefix, route, err)
	}
	return cols, true, nil
}

func (s *KVStore) Put(ctx context.Context, route string, cols Columns) error {
	data, err := encodeColumns(cols)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, kvKey(route), data)
	return err
}

func (s *KVStore) Delete(ctx context.Context, route string) error {
	err := s.kv.Delete(ctx, kvKey(route))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
