package nats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/essay-pipeline/internal/service"
)

const (
	// CatalogBucketName is the key/value bucket holding subjects and questions.
	CatalogBucketName = "ESSAY_CATALOG"

	counterPrefix = "seq."

	maxCounterAttempts = 8
)

// keyValue is the part of jetstream.KeyValue the catalogue uses.
type keyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// CatalogBucket stores catalogue records in a JetStream key/value bucket.
type CatalogBucket struct {
	kv keyValue
}

var _ service.Bucket = (*CatalogBucket)(nil)

// OpenCatalog opens the catalogue bucket, creating it on first use.
func OpenCatalog(ctx context.Context, client *Client) (*CatalogBucket, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, CatalogBucketName)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      CatalogBucketName,
			Description: "Essay subjects and questions",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open catalog bucket: %w", err)
	}
	return &CatalogBucket{kv: kv}, nil
}

// Get implements service.Bucket.
func (b *CatalogBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

// Put implements service.Bucket.
func (b *CatalogBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

// Delete implements service.Bucket. JetStream deletes are markers that
// succeed for any key, so existence is checked first.
func (b *CatalogBucket) Delete(ctx context.Context, key string) error {
	if _, err := b.Get(ctx, key); err != nil {
		return err
	}
	return b.kv.Delete(ctx, key)
}

// Keys implements service.Bucket.
func (b *CatalogBucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	all, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Next implements service.Bucket with compare-and-set on the counter key, so
// ids stay unique across replicas sharing the bucket.
func (b *CatalogBucket) Next(ctx context.Context, counter string) (int64, error) {
	key := counterPrefix + counter
	for range maxCounterAttempts {
		entry, err := b.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			_, err = b.kv.Create(ctx, key, []byte("1"))
			if err == nil {
				return 1, nil
			}
			if isConflict(err) {
				continue
			}
			return 0, fmt.Errorf("counter %s: %w", counter, err)
		}
		if err != nil {
			return 0, fmt.Errorf("counter %s: %w", counter, err)
		}

		n, err := strconv.ParseInt(string(entry.Value()), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("counter %s: %w", counter, err)
		}
		n++
		_, err = b.kv.Update(ctx, key, []byte(strconv.FormatInt(n, 10)), entry.Revision())
		if err == nil {
			return n, nil
		}
		if !isConflict(err) {
			return 0, fmt.Errorf("counter %s: %w", counter, err)
		}
	}
	return 0, fmt.Errorf("counter %s: gave up after %d concurrent updates", counter, maxCounterAttempts)
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
