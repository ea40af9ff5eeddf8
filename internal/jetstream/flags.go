package jetstream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	nats "github.com/nats-io/nats.go"
)

// FlagStore keeps typing interrupt flags in a JetStream key-value bucket so
// they survive a restart of the process.
type FlagStore struct {
	kv nats.KeyValue
}

// NewFlagStore binds to bucket, creating it on first use.
func NewFlagStore(js nats.JetStreamContext, bucket string) (*FlagStore, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "typing interrupt flags",
			History:     1,
			Storage:     nats.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open flag bucket %s: %w", bucket, err)
	}
	return &FlagStore{kv: kv}, nil
}

// Interrupt keys contain ':' which is not a valid KV key character.
func kvKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (s *FlagStore) Get(_ context.Context, key string) (bool, error) {
	_, err := s.kv.Get(kvKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FlagStore) Set(_ context.Context, key string) error {
	_, err := s.kv.Put(kvKey(key), []byte("1"))
	return err
}

func (s *FlagStore) Delete(_ context.Context, key string) error {
	return s.kv.Delete(kvKey(key))
}
