// Package db composes the heap store, the ordered indices, the permission
// index and the search mirror into the user and project record store.
//
// All reads take the store lock in shared mode and all mutations take it
// exclusively, including the mirror call on the add path.
package db

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/prometheus/client_golang/prometheus"

	"meowstore/pkg/logger"
	"meowstore/pkg/search"
	"meowstore/pkg/store/engine"
)

// Database names under <dir>/data.
const (
	UsersHeapDB       = "users_heap"
	UsersNameIndexDB  = "users_name_index"
	ProjectsHeapDB    = "projects_heap"
	ProjectsIDIndexDB = "projects_id_index"
	AuthDB            = "auth"
)

var databaseNames = []string{UsersHeapDB, UsersNameIndexDB, ProjectsHeapDB, ProjectsIDIndexDB, AuthDB}

const (
	defaultUsersIndex    = "users"
	defaultProjectsIndex = "projects"
	defaultErrorQueue    = 1024
)

// Options configures Open.
type Options struct {
	// Dir is the deployment directory; databases live under Dir/data.
	Dir  string
	Mode engine.OpenMode
	// FS overrides the filesystem, mainly for tests.
	FS     vfs.FS
	NoSync bool

	RequireAuth RequireAuth
	Mirror      search.Mirror
	// UsersIndex and ProjectsIndex name the mirror indexes.
	UsersIndex    string
	ProjectsIndex string
	// ErrorQueue is the capacity of the internal error channel.
	ErrorQueue int
}

// Store is the single owner of all storage handles for a deployment.
type Store struct {
	mu     sync.RWMutex
	closed bool

	dbs map[string]*pebble.DB

	users    collection
	projects collection
	auth     *engine.Index

	mirror      search.Mirror
	requireAuth RequireAuth

	errs    chan InternalError
	metrics *metrics
}

// recordIndex is the part of *engine.Index a collection uses.
type recordIndex interface {
	Search(key []byte) (engine.Lookup, error)
	InsertAt(c engine.Cursor, value uint64) error
	RemoveAt(c engine.Cursor) error
	Get(key []byte) (uint64, error)
	Len() int
}

// collection pairs an entity heap with its secondary index.
type collection struct {
	heap        *engine.Heap
	index       recordIndex
	searchIndex string
}

// Open opens every database of the deployment in opts.Mode.
func Open(opts Options) (*Store, error) {
	if opts.Mirror == nil {
		return nil, errors.New("db: search mirror is required")
	}
	if opts.UsersIndex == "" {
		opts.UsersIndex = defaultUsersIndex
	}
	if opts.ProjectsIndex == "" {
		opts.ProjectsIndex = defaultProjectsIndex
	}
	if opts.ErrorQueue <= 0 {
		opts.ErrorQueue = defaultErrorQueue
	}

	s := &Store{
		dbs:         make(map[string]*pebble.DB, len(databaseNames)),
		mirror:      opts.Mirror,
		requireAuth: opts.RequireAuth,
		errs:        make(chan InternalError, opts.ErrorQueue),
		metrics:     newMetrics(),
	}
	for _, name := range databaseNames {
		path := filepath.Join(opts.Dir, "data", name)
		d, err := engine.Open(path, engine.Options{Mode: opts.Mode, FS: opts.FS, NoSync: opts.NoSync})
		if err != nil {
			s.closeDBs()
			return nil, err
		}
		s.dbs[name] = d
	}

	var err error
	if s.users.heap, err = engine.OpenHeap(s.dbs[UsersHeapDB], UsersHeapDB, opts.NoSync); err != nil {
		s.closeDBs()
		return nil, err
	}
	if s.users.index, err = engine.OpenIndex(s.dbs[UsersNameIndexDB], UsersNameIndexDB, opts.NoSync); err != nil {
		s.closeDBs()
		return nil, err
	}
	if s.projects.heap, err = engine.OpenHeap(s.dbs[ProjectsHeapDB], ProjectsHeapDB, opts.NoSync); err != nil {
		s.closeDBs()
		return nil, err
	}
	if s.projects.index, err = engine.OpenIndex(s.dbs[ProjectsIDIndexDB], ProjectsIDIndexDB, opts.NoSync); err != nil {
		s.closeDBs()
		return nil, err
	}
	if s.auth, err = engine.OpenIndex(s.dbs[AuthDB], AuthDB, opts.NoSync); err != nil {
		s.closeDBs()
		return nil, err
	}
	s.users.searchIndex = opts.UsersIndex
	s.projects.searchIndex = opts.ProjectsIndex

	logger.Info("store_opened",
		"dir", opts.Dir,
		"mode", opts.Mode.String(),
		"users", s.users.heap.Len(),
		"projects", s.projects.heap.Len(),
		"keys", s.auth.Len(),
	)
	return s, nil
}

func (s *Store) closeDBs() {
	for name, d := range s.dbs {
		if err := d.Close(); err != nil {
			logger.Error("pebble_close_failed", "db", name, "error", err)
		}
	}
	s.dbs = nil
}

// Close flushes and closes every database and closes the error channel.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for _, name := range databaseNames {
		d := s.dbs[name]
		if err := d.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", name, err))
		}
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	close(s.errs)
	logger.Info("store_closed")
	return errors.Join(errs...)
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Errors returns the internal error channel. It is closed by Close.
func (s *Store) Errors() <-chan InternalError { return s.errs }

// report pushes a failure onto the error channel, blocking while it is full.
func (s *Store) report(op Op, sub Subsystem, err error) {
	s.metrics.internalErrors.WithLabelValues(string(sub)).Inc()
	s.errs <- InternalError{Op: op, Subsystem: sub, Err: err}
}

// Compact compacts every database. It runs under the shared lock so reads
// continue while writes wait.
func (s *Store) Compact() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	for _, name := range databaseNames {
		if err := engine.Compact(s.dbs[name]); err != nil {
			return fmt.Errorf("compact %s: %w", name, err)
		}
	}
	return nil
}

// Stats is a point-in-time size summary.
type Stats struct {
	Users     int `json:"users"`
	UsersFree int `json:"users_free"`
	Projects  int `json:"projects"`
	Keys      int `json:"keys"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}
	}
	return Stats{
		Users:     s.users.heap.Len(),
		UsersFree: s.users.heap.FreeLen(),
		Projects:  s.projects.heap.Len(),
		Keys:      s.auth.Len(),
	}
}

// Collectors returns the prometheus collectors for this store.
func (s *Store) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.metrics.ops,
		s.metrics.internalErrors,
		engine.NewCollector(s.dbs),
	}
}
