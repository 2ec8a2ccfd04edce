package kernel

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

var (
	ErrInvalidHandle = errors.New("invalid handle")
	ErrTypeMismatch  = errors.New("kernel object type mismatch")
)

// memCacheSize bounds the address -> handle memoization used by
// MemoryObject. Lookups repeat heavily during fault diagnostics, so a small
// cache covers almost all of them.
const memCacheSize = 64

// HandleTable maps handles to kind-tagged kernel objects. Handle values are
// assigned monotonically from BaseHandleIndex and never reused for the
// lifetime of the table. Ownership of stored objects is shared: deleting an
// entry drops only the table's reference.
type HandleTable struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]Object

	memCache *lru.Cache
}

func NewHandleTable() *HandleTable {
	cache, _ := lru.New(memCacheSize)

	return &HandleTable{
		next:     BaseHandleIndex,
		entries:  make(map[Handle]Object),
		memCache: cache,
	}
}

// Insert registers an already-constructed object and returns its handle.
func (t *HandleTable) Insert(obj Object) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle := t.next
	t.next++

	t.entries[handle] = obj

	return handle
}

// Delete removes the entry for handle. Later lookups fail with
// ErrInvalidHandle. The object itself lives on while other holders keep a
// reference.
func (t *HandleTable) Delete(handle Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.entries, handle)
}

func (t *HandleTable) Get(handle Handle) (Object, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.entries[handle]
	return obj, ok
}

func (t *HandleTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// GetHandle looks up handle and checks it against the requested kind. A
// present entry of another kind fails with ErrTypeMismatch rather than
// being reinterpreted.
func GetHandle[T Object](t *HandleTable, handle Handle) (T, error) {
	var zero T

	t.mu.Lock()
	obj, ok := t.entries[handle]
	t.mu.Unlock()

	if !ok {
		return zero, errors.Wrapf(ErrInvalidHandle, "handle=%#x", handle)
	}

	typed, ok := obj.(T)
	if !ok {
		return zero, errors.Wrapf(ErrTypeMismatch, "handle=%#x holds a %s", handle, obj.ObjectType())
	}

	return typed, nil
}

// MemoryObject finds the registered memory-kind object whose range contains
// address. Cache hits are revalidated against the live table, so deletions
// need no invalidation hook.
func (t *HandleTable) MemoryObject(address uint64) (MemoryObject, Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v, ok := t.memCache.Get(address); ok {
		handle := v.(Handle)

		if m, ok := t.memoryAt(handle, address); ok {
			return m, handle, true
		}

		t.memCache.Remove(address)
	}

	for handle := range t.entries {
		if m, ok := t.memoryAt(handle, address); ok {
			t.memCache.Add(address, handle)
			return m, handle, true
		}
	}

	return nil, 0, false
}

func (t *HandleTable) memoryAt(handle Handle, address uint64) (MemoryObject, bool) {
	obj, ok := t.entries[handle]
	if !ok {
		return nil, false
	}

	m, ok := obj.(MemoryObject)
	if !ok {
		return nil, false
	}

	if address < m.Address() || address >= m.Address()+m.Size() {
		return nil, false
	}

	return m, true
}
