// Package engine adapts pebble into the two storage primitives the record
// store composes: a heap of variable-length records addressed by numeric id,
// and an ordered index from fixed-width keys to numeric values.
package engine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"meowstore/pkg/logger"
)

// OpenMode selects whether a database must be freshly created or must
// already exist.
type OpenMode uint8

const (
	ModeNew OpenMode = iota
	ModeExisting
)

func (m OpenMode) String() string {
	if m == ModeNew {
		return "new"
	}
	return "existing"
}

var (
	// ErrNotFound is returned for missing heap ids and index keys.
	ErrNotFound = pebble.ErrNotFound
	// ErrStaleCursor is returned when an index changed between Search and
	// the write that consumes its cursor.
	ErrStaleCursor = errors.New("engine: stale index cursor")
)

// Options configures Open.
type Options struct {
	Mode OpenMode
	// FS overrides the filesystem; nil means the OS filesystem.
	FS vfs.FS
	// NoSync disables fsync on commit.
	NoSync bool
}

// Open opens the pebble database at path. ModeNew fails if a database is
// already there and ModeExisting fails if none is.
func Open(path string, opts Options) (*pebble.DB, error) {
	po := &pebble.Options{
		ErrorIfExists:    opts.Mode == ModeNew,
		ErrorIfNotExists: opts.Mode == ModeExisting,
	}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(path, po)
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "mode", opts.Mode.String(), "error", err)
		return nil, fmt.Errorf("open %s (%s): %w", path, opts.Mode, err)
	}
	logger.Debug("pebble_opened", "path", path, "mode", opts.Mode.String())
	return db, nil
}

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// Compact compacts the whole keyspace of db.
func Compact(db *pebble.DB) error {
	return db.Compact([]byte{0x00}, []byte{0xff, 0xff}, true)
}

func writeOpt(noSync bool) *pebble.WriteOptions {
	if noSync {
		return pebble.NoSync
	}
	return pebble.Sync
}

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func prefixed(p byte, rest []byte) []byte {
	k := make([]byte, 1+len(rest))
	k[0] = p
	copy(k[1:], rest)
	return k
}

// get copies the value for key out of db.
func get(db *pebble.DB, key []byte) ([]byte, error) {
	v, closer, err := db.Get(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
