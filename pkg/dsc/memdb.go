package dsc

import (
	"context"
	"sync"

	"github.com/luxfi/database"
)

// memDB is an in-memory database.Database for tests and standalone runs.
// Production deployments hand the store a persistent backend instead.
type memDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB creates an empty in-memory database.
func NewMemDB() database.Database {
	return &memDB{data: make(map[string][]byte)}
}

func (m *memDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.data[string(key)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return append([]byte(nil), val...), nil
}

func (m *memDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *memDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *memDB) Close() error { return nil }

func (m *memDB) Compact(start, limit []byte) error { return nil }

func (m *memDB) NewBatch() database.Batch {
	return &memBatch{db: m}
}

func (m *memDB) NewIterator() database.Iterator { return nil }

func (m *memDB) NewIteratorWithStart(start []byte) database.Iterator { return nil }

func (m *memDB) NewIteratorWithPrefix(prefix []byte) database.Iterator { return nil }

func (m *memDB) NewIteratorWithStartAndPrefix(start, prefix []byte) database.Iterator { return nil }

func (m *memDB) HealthCheck(ctx context.Context) (interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"type": "memDB",
		"size": len(m.data),
	}, nil
}

type memBatch struct {
	db  *memDB
	ops []memBatchOp
}

type memBatchOp struct {
	delete bool
	key    []byte
	value  []byte
}

func (b *memBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memBatchOp{key: key, value: value})
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memBatchOp{delete: true, key: key})
	return nil
}

func (b *memBatch) ValueSize() int {
	size := 0
	for _, op := range b.ops {
		size += len(op.value)
	}
	return size
}

func (b *memBatch) Size() int {
	size := 0
	for _, op := range b.ops {
		size += len(op.key) + len(op.value)
	}
	return size
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, string(op.key))
		} else {
			b.db.data[string(op.key)] = op.value
		}
	}
	return nil
}

func (b *memBatch) Reset() {
	b.ops = b.ops[:0]
}

func (b *memBatch) Replay(w database.KeyValueWriterDeleter) error {
	for _, op := range b.ops {
		if op.delete {
			if err := w.Delete(op.key); err != nil {
				return err
			}
		} else {
			if err := w.Put(op.key, op.value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *memBatch) Inner() database.Batch { return b }
