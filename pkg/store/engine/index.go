package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"meowstore/pkg/logger"
)

// key prefixes inside an index database
const (
	indexEntry  = 'k'
	indexHeader = 'n'
)

// Index maps keys to uint64 values in byte order.
type Index struct {
	db     *pebble.DB
	name   string
	noSync bool

	mu    sync.Mutex
	gen   uint64
	count uint64
}

// Cursor is the position produced by Search. On a miss it marks where the
// key would be inserted; on a hit it marks the entry itself.
type Cursor struct {
	index *Index
	key   []byte
	// successor is the first key after the insertion point, nil at the end.
	successor []byte
	found     bool
	gen       uint64
}

// Key returns the searched key.
func (c Cursor) Key() []byte { return c.key }

// Successor returns the key that follows the cursor position, if any.
func (c Cursor) Successor() []byte { return c.successor }

// Lookup is the result of Search.
type Lookup struct {
	Found  bool
	Value  uint64
	Cursor Cursor
}

// OpenIndex loads the index header from db, initializing it when absent.
func OpenIndex(db *pebble.DB, name string, noSync bool) (*Index, error) {
	x := &Index{db: db, name: name, noSync: noSync}
	raw, err := get(db, []byte{indexHeader})
	switch {
	case IsNotFound(err):
		if err := db.Set([]byte{indexHeader}, be64(0), writeOpt(noSync)); err != nil {
			return nil, fmt.Errorf("index %s: init header: %w", name, err)
		}
	case err != nil:
		return nil, fmt.Errorf("index %s: read header: %w", name, err)
	default:
		if len(raw) != 8 {
			return nil, fmt.Errorf("index %s: header has %d bytes", name, len(raw))
		}
		x.count = binary.BigEndian.Uint64(raw)
	}
	return x, nil
}

func (x *Index) entryBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte{indexEntry},
		UpperBound: []byte{indexEntry + 1},
	}
}

// Search positions at key. A hit returns the stored value; a miss returns a
// cursor that InsertAt can consume without searching again.
func (x *Index) Search(key []byte) (Lookup, error) {
	x.mu.Lock()
	gen := x.gen
	x.mu.Unlock()

	it, err := x.db.NewIter(x.entryBounds())
	if err != nil {
		return Lookup{}, fmt.Errorf("index %s: new iter: %w", x.name, err)
	}
	defer it.Close()

	k := append([]byte(nil), key...)
	cur := Cursor{index: x, key: k, gen: gen}
	if it.SeekGE(prefixed(indexEntry, key)) {
		found := it.Key()[1:]
		if bytes.Equal(found, key) {
			v := it.Value()
			if len(v) != 8 {
				return Lookup{}, fmt.Errorf("index %s: malformed value for %x", x.name, key)
			}
			cur.found = true
			return Lookup{Found: true, Value: binary.BigEndian.Uint64(v), Cursor: cur}, nil
		}
		cur.successor = append([]byte(nil), found...)
	}
	if err := it.Error(); err != nil {
		return Lookup{}, fmt.Errorf("index %s: seek: %w", x.name, err)
	}
	return Lookup{Cursor: cur}, nil
}

// InsertAt writes value at the position of a miss cursor.
func (x *Index) InsertAt(c Cursor, value uint64) error {
	if err := x.checkCursor(c, false); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if c.gen != x.gen {
		return ErrStaleCursor
	}
	b := x.db.NewBatch()
	defer b.Close()
	if err := b.Set(prefixed(indexEntry, c.key), be64(value), nil); err != nil {
		return err
	}
	if err := b.Set([]byte{indexHeader}, be64(x.count+1), nil); err != nil {
		return err
	}
	if err := b.Commit(writeOpt(x.noSync)); err != nil {
		logger.Error("index_insert_failed", "index", x.name, "error", err)
		return fmt.Errorf("index %s: commit insert: %w", x.name, err)
	}
	x.count++
	x.gen++
	logger.Debug("index_insert_ok", "index", x.name, "value", value)
	return nil
}

// RemoveAt deletes the entry a hit cursor points at.
func (x *Index) RemoveAt(c Cursor) error {
	if err := x.checkCursor(c, true); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if c.gen != x.gen {
		return ErrStaleCursor
	}
	b := x.db.NewBatch()
	defer b.Close()
	if err := b.Delete(prefixed(indexEntry, c.key), nil); err != nil {
		return err
	}
	if err := b.Set([]byte{indexHeader}, be64(x.count-1), nil); err != nil {
		return err
	}
	if err := b.Commit(writeOpt(x.noSync)); err != nil {
		logger.Error("index_remove_failed", "index", x.name, "error", err)
		return fmt.Errorf("index %s: commit remove: %w", x.name, err)
	}
	x.count--
	x.gen++
	logger.Debug("index_remove_ok", "index", x.name)
	return nil
}

func (x *Index) checkCursor(c Cursor, wantFound bool) error {
	if c.index != x {
		return errors.New("engine: cursor belongs to another index")
	}
	if c.found != wantFound {
		if wantFound {
			return fmt.Errorf("index %s: cursor is not on an entry", x.name)
		}
		return fmt.Errorf("index %s: cursor is on an existing entry", x.name)
	}
	return nil
}

// Get returns the value stored under key.
func (x *Index) Get(key []byte) (uint64, error) {
	v, err := get(x.db, prefixed(indexEntry, key))
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("index %s: malformed value for %x", x.name, key)
	}
	return binary.BigEndian.Uint64(v), nil
}

// Scan visits entries with key >= from in byte order until fn returns false.
func (x *Index) Scan(from []byte, fn func(key []byte, value uint64) bool) error {
	it, err := x.db.NewIter(x.entryBounds())
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.SeekGE(prefixed(indexEntry, from)); ok; ok = it.Next() {
		v := it.Value()
		if len(v) != 8 {
			return fmt.Errorf("index %s: malformed value", x.name)
		}
		if !fn(it.Key()[1:], binary.BigEndian.Uint64(v)) {
			break
		}
	}
	return it.Error()
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return int(x.count)
}

// Name returns the index's name.
func (x *Index) Name() string { return x.name }

// DB exposes the underlying database for maintenance and metrics.
func (x *Index) DB() *pebble.DB { return x.db }
