package engine

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"meowstore/pkg/logger"
)

// key prefixes inside a heap database
const (
	heapEntry  = 'e'
	heapFree   = 'f'
	heapHeader = 'h'
)

// Heap stores variable-length records under numeric ids. Removed ids are
// reused, smallest first.
type Heap struct {
	db     *pebble.DB
	name   string
	noSync bool

	mu    sync.Mutex
	next  uint64
	count uint64
	free  uint64
}

// OpenHeap loads the heap header from db, initializing it when absent.
func OpenHeap(db *pebble.DB, name string, noSync bool) (*Heap, error) {
	h := &Heap{db: db, name: name, noSync: noSync}
	raw, err := get(db, []byte{heapHeader})
	switch {
	case IsNotFound(err):
		if err := db.Set([]byte{heapHeader}, heapHeaderValue(0, 0, 0), writeOpt(noSync)); err != nil {
			return nil, fmt.Errorf("heap %s: init header: %w", name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("heap %s: read header: %w", name, err)
	default:
		if len(raw) != 24 {
			return nil, fmt.Errorf("heap %s: header has %d bytes", name, len(raw))
		}
		h.next = binary.BigEndian.Uint64(raw[0:8])
		h.count = binary.BigEndian.Uint64(raw[8:16])
		h.free = binary.BigEndian.Uint64(raw[16:24])
	}
	return h, nil
}

func heapHeaderValue(next, count, free uint64) []byte {
	b := make([]byte, 24)
	binary.BigEndian.PutUint64(b[0:8], next)
	binary.BigEndian.PutUint64(b[8:16], count)
	binary.BigEndian.PutUint64(b[16:24], free)
	return b
}

// Insert stores rec and returns its id.
func (h *Heap) Insert(rec []byte) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, reused, err := h.takeFree()
	if err != nil {
		return 0, fmt.Errorf("heap %s: scan free ids: %w", h.name, err)
	}
	next, count, free := h.next, h.count+1, h.free
	b := h.db.NewBatch()
	defer b.Close()
	if reused {
		free--
		if err := b.Delete(prefixed(heapFree, be64(id)), nil); err != nil {
			return 0, err
		}
	} else {
		id = next
		next++
	}
	if err := b.Set(prefixed(heapEntry, be64(id)), rec, nil); err != nil {
		return 0, err
	}
	if err := b.Set([]byte{heapHeader}, heapHeaderValue(next, count, free), nil); err != nil {
		return 0, err
	}
	if err := b.Commit(writeOpt(h.noSync)); err != nil {
		logger.Error("heap_insert_failed", "heap", h.name, "error", err)
		return 0, fmt.Errorf("heap %s: commit insert: %w", h.name, err)
	}
	h.next, h.count, h.free = next, count, free
	logger.Debug("heap_insert_ok", "heap", h.name, "id", id, "len", len(rec), "reused", reused)
	return id, nil
}

func (h *Heap) takeFree() (uint64, bool, error) {
	if h.free == 0 {
		return 0, false, nil
	}
	it, err := h.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{heapFree},
		UpperBound: []byte{heapFree + 1},
	})
	if err != nil {
		return 0, false, err
	}
	defer it.Close()
	if !it.First() {
		return 0, false, it.Error()
	}
	k := it.Key()
	if len(k) != 9 {
		return 0, false, fmt.Errorf("malformed free key %x", k)
	}
	return binary.BigEndian.Uint64(k[1:]), true, nil
}

// Get returns a copy of the record stored under id.
func (h *Heap) Get(id uint64) ([]byte, error) {
	return get(h.db, prefixed(heapEntry, be64(id)))
}

// Remove deletes the record under id and frees the id for reuse.
func (h *Heap) Remove(id uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.Get(id); err != nil {
		return err
	}
	count, free := h.count-1, h.free+1
	b := h.db.NewBatch()
	defer b.Close()
	if err := b.Delete(prefixed(heapEntry, be64(id)), nil); err != nil {
		return err
	}
	if err := b.Set(prefixed(heapFree, be64(id)), nil, nil); err != nil {
		return err
	}
	if err := b.Set([]byte{heapHeader}, heapHeaderValue(h.next, count, free), nil); err != nil {
		return err
	}
	if err := b.Commit(writeOpt(h.noSync)); err != nil {
		logger.Error("heap_remove_failed", "heap", h.name, "id", id, "error", err)
		return fmt.Errorf("heap %s: commit remove: %w", h.name, err)
	}
	h.count, h.free = count, free
	logger.Debug("heap_remove_ok", "heap", h.name, "id", id)
	return nil
}

// Len returns the number of live records.
func (h *Heap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(h.count)
}

// FreeLen returns the number of ids waiting for reuse.
func (h *Heap) FreeLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(h.free)
}

// Name returns the heap's name.
func (h *Heap) Name() string { return h.name }

// DB exposes the underlying database for maintenance and metrics.
func (h *Heap) DB() *pebble.DB { return h.db }
