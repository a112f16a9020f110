package memtable

import (
	"bytes"
	"sync"

	"github.com/zhangyunhao116/skipmap"
)

type orderedMap = skipmap.FuncMap[[]byte, Item]

// Memtable is the in-memory ordered key space. Readers share an RW lock;
// Insert and Remove take it exclusively.
//
// Mutations must be applied in WAL order. The table keeps no history: a
// removed key leaves nothing behind.
type Memtable struct {
	mu   sync.RWMutex
	data *orderedMap
}

func New() *Memtable {
	return &Memtable{
		data: skipmap.NewFunc[[]byte, Item](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

// Get returns the value stored for k.
func (mt *Memtable) Get(k []byte) ([]byte, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	it, ok := mt.data.Load(k)
	if !ok {
		return nil, false
	}
	return it.Value, true
}

// Insert stores value under k, replacing any older value.
func (mt *Memtable) Insert(k, value []byte, seqN uint64) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.data.Store(k, Item{Key: k, Value: value, SeqN: seqN})
}

// Remove deletes k and reports whether it was present. Removing an absent
// key is a no-op.
func (mt *Memtable) Remove(k []byte) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	_, existed := mt.data.LoadAndDelete(k)
	return existed
}

// Len is the number of stored keys.
func (mt *Memtable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.data.Len()
}

// Ascend calls fn for every key in ascending byte order until fn returns
// false.
func (mt *Memtable) Ascend(fn func(key, value []byte) bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	mt.data.Range(func(key []byte, it Item) bool {
		return fn(key, it.Value)
	})
}
