package nats

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
	"github.com/capitalize-ai/essay-pipeline/internal/service"
	"github.com/capitalize-ai/essay-pipeline/pkg/logger"
)

type kvEntry struct {
	jetstream.KeyValueEntry
	value    []byte
	revision uint64
}

func (e kvEntry) Value() []byte { return e.value }
func (e kvEntry) Revision() uint64 { return e.revision }

// memoryKV mimics a JetStream bucket: revisions per key, CAS on Create and Update.
type memoryKV struct {
	mu       sync.Mutex
	entries  map[string]kvEntry
	revision uint64

	// conflicts forces that many Update calls to lose the race.
	conflicts int
}

func newMemoryKV() *memoryKV {
	return &memoryKV{entries: make(map[string]kvEntry)}
}

func (m *memoryKV) set(key string, value []byte) uint64 {
	m.revision++
	m.entries[key] = kvEntry{value: append([]byte(nil), value...), revision: m.revision}
	return m.revision
}

func (m *memoryKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (m *memoryKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set(key, value), nil
}

func (m *memoryKV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return 0, jetstream.ErrKeyExists
	}
	return m.set(key, value), nil
}

func (m *memoryKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		m.set(key, m.entries[key].value)
		return 0, &jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence}
	}
	if m.entries[key].revision != revision {
		return 0, &jetstream.APIError{ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence}
	}
	return m.set(key, value), nil
}

func (m *memoryKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func TestCatalogBucketGetPutDelete(t *testing.T) {
	ctx := context.Background()
	b := &CatalogBucket{kv: newMemoryKV()}

	_, err := b.Get(ctx, "subjects.1")
	require.ErrorIs(t, err, service.ErrNotFound)
	require.ErrorIs(t, b.Delete(ctx, "subjects.1"), service.ErrNotFound)

	keys, err := b.Keys(ctx, "subjects.")
	require.NoError(t, err)
	assert.Empty(t, keys, "an empty bucket lists no keys")

	require.NoError(t, b.Put(ctx, "subjects.1", []byte(`{"id":1}`)))
	require.NoError(t, b.Put(ctx, "questions.1", []byte(`{"id":1}`)))

	got, err := b.Get(ctx, "subjects.1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(got))

	keys, err = b.Keys(ctx, "subjects.")
	require.NoError(t, err)
	assert.Equal(t, []string{"subjects.1"}, keys)

	require.NoError(t, b.Delete(ctx, "subjects.1"))
	_, err = b.Get(ctx, "subjects.1")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestCatalogBucketCounter(t *testing.T) {
	ctx := context.Background()
	kv := newMemoryKV()
	b := &CatalogBucket{kv: kv}

	for want := int64(1); want <= 3; want++ {
		n, err := b.Next(ctx, "subject")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := b.Next(ctx, "question")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counters are independent")

	t.Run("retries lost races", func(t *testing.T) {
		kv.conflicts = 2
		n, err := b.Next(ctx, "subject")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("gives up under constant contention", func(t *testing.T) {
		kv.conflicts = maxCounterAttempts
		_, err := b.Next(ctx, "subject")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gave up")
	})

	e, err := kv.Get(ctx, counterPrefix+"subject")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(4), string(e.Value()))
}

func TestCatalogServiceOverKeyValue(t *testing.T) {
	ctx := context.Background()
	catalog := service.NewCatalogService(&CatalogBucket{kv: newMemoryKV()}, logger.NewNop())

	subject, err := catalog.CreateSubject(ctx, &model.SubjectRequest{Name: "Gaokao"})
	require.NoError(t, err)
	_, err = catalog.CreateQuestion(ctx, &model.QuestionRequest{
		Title: "Time", Question: "Write about time.", SubjectID: &subject.ID,
	})
	require.NoError(t, err)

	list, err := catalog.Questions(ctx, &subject.ID)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Write about time.", list.Questions[0].Question)
}
