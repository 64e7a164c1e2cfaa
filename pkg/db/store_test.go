package db

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meowstore/pkg/ident"
	"meowstore/pkg/models"
	"meowstore/pkg/search"
	"meowstore/pkg/store/engine"
)

type harness struct {
	store  *Store
	mirror *search.Memory

	mu   sync.Mutex
	errs []InternalError
	done chan struct{}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{done: make(chan struct{})}
	if opts.Mirror == nil {
		h.mirror = search.NewMemory()
		opts.Mirror = h.mirror
	}
	if opts.FS == nil {
		opts.FS = vfs.NewMem()
	}
	opts.Dir = "deploy"
	opts.NoSync = true
	s, err := Open(opts)
	require.NoError(t, err)
	h.store = s
	go func() {
		defer close(h.done)
		for ie := range s.Errors() {
			h.mu.Lock()
			h.errs = append(h.errs, ie)
			h.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = s.Close()
		<-h.done
	})
	return h
}

func (h *harness) reported() []InternalError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]InternalError(nil), h.errs...)
}

func name(t *testing.T, s string) ident.ID {
	t.Helper()
	id, err := ident.Encode(s)
	require.NoError(t, err)
	return id
}

func user(t *testing.T, n string) *models.User {
	return &models.User{Name: name(t, n), ID: 100, Status: n + " status", Bio: n + " bio", Loves: 3}
}

func TestAddUserIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.store

	first := user(t, "griffpatch")
	out, err := s.AddUser(context.Background(), nil, first)
	require.NoError(t, err)
	assert.Equal(t, Mutated, out)
	assert.False(t, out.Existed())

	second := user(t, "griffpatch")
	second.Bio = "different payload"
	second.Loves = 99
	out, err = s.AddUser(context.Background(), nil, second)
	require.NoError(t, err)
	assert.Equal(t, AlreadyInState, out)
	assert.True(t, out.Existed())

	got, err := s.GetUser(nil, first.Name)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, 1, h.mirror.Len("users"), "no mirror update for an existing user")
	assert.Equal(t, 1, s.Stats().Users)
}

func TestRemoveThenLookup(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.store
	u := user(t, "kaj")

	_, err := s.AddUser(context.Background(), nil, u)
	require.NoError(t, err)

	out, err := s.RemoveUser(nil, u.Name)
	require.NoError(t, err)
	assert.Equal(t, Mutated, out)

	_, err = s.GetUser(nil, u.Name)
	assert.ErrorIs(t, err, ErrNotFound)

	out, err = s.RemoveUser(nil, u.Name)
	require.NoError(t, err)
	assert.Equal(t, AlreadyInState, out)

	assert.Equal(t, 1, h.mirror.Len("users"), "removal is not mirrored")
	assert.Equal(t, 0, s.Stats().Users)
}

func TestGetUnknownUser(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.store.GetUser(nil, name(t, "nobody"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthGating(t *testing.T) {
	h := newHarness(t, Options{RequireAuth: RequireAuth{Write: true, Remove: true}})
	s := h.store
	ctx := context.Background()
	u := user(t, "ceebee")

	_, err := s.AddUser(ctx, nil, u)
	assert.True(t, IsAuth(err, AuthRequired), "%v", err)

	readOnly, err := s.GenerateKey(ctx, PermRead)
	require.NoError(t, err)
	_, err = s.AddUser(ctx, &readOnly, u)
	assert.True(t, IsAuth(err, AuthNotAllowed), "%v", err)

	bogus, err := ParseKey("AAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	_, err = s.AddUser(ctx, &bogus, u)
	assert.True(t, IsAuth(err, AuthInvalid), "%v", err)

	writer, err := s.GenerateKey(ctx, PermWrite|PermRead)
	require.NoError(t, err)
	out, err := s.AddUser(ctx, &writer, u)
	require.NoError(t, err)
	assert.Equal(t, Mutated, out)

	// read is not required, so no key is needed to look it up
	_, err = s.GetUser(nil, u.Name)
	require.NoError(t, err)

	_, err = s.RemoveUser(&writer, u.Name)
	assert.True(t, IsAuth(err, AuthNotAllowed), "%v", err)

	assert.NoError(t, s.EnsureAllowed(PermWrite, &writer))
	assert.NoError(t, s.EnsureAllowed(PermRead, nil))
	assert.Empty(t, h.reported())
}

func TestAuthCheckedBeforeEncoding(t *testing.T) {
	h := newHarness(t, Options{RequireAuth: RequireAuth{Write: true}})
	p := &models.Project{ID: 1, Title: strings.Repeat("x", models.MaxProjectText+1)}
	_, err := h.store.AddProject(context.Background(), nil, p)
	assert.True(t, IsAuth(err, AuthRequired), "%v", err)
}

func TestGenerateKey(t *testing.T) {
	h := newHarness(t, Options{RequireAuth: RequireAuth{Read: true}})
	s := h.store

	k, err := s.GenerateKey(context.Background(), PermRead|PermRemove)
	require.NoError(t, err)
	parsed, err := ParseKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
	assert.NoError(t, s.EnsureAllowed(PermRead, &k))
	assert.Equal(t, 1, s.Stats().Keys)

	_, err = s.GenerateKey(context.Background(), Permission(0x10))
	var bad *BadInputError
	assert.ErrorAs(t, err, &bad)
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("short")
	assert.ErrorIs(t, err, ErrMalformedKey)
	_, err = ParseKey("has space inside!")
	assert.ErrorIs(t, err, ErrMalformedKey)
	_, err = ParseKey("0123456789abcde\x01")
	assert.ErrorIs(t, err, ErrMalformedKey)
	_, err = ParseKey("0123456789abcdef")
	assert.NoError(t, err)
}

func TestOversizedProjectLeavesNoTrace(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.store
	p := &models.Project{ID: 7, Title: strings.Repeat("t", models.MaxProjectText+1)}

	_, err := s.AddProject(context.Background(), nil, p)
	var bad *BadInputError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "title", bad.Field)

	assert.Equal(t, 0, s.projects.heap.Len())
	assert.Equal(t, 0, s.projects.heap.FreeLen())
	assert.Equal(t, 0, s.projects.index.Len())
	assert.Equal(t, 0, h.mirror.Len("projects"))
	_, err = s.GetProject(nil, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.reported())
}

func TestProjectLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.store
	ctx := context.Background()
	p := &models.Project{
		ID:          42,
		Public:      true,
		AuthorID:    9,
		AuthorName:  name(t, "griffpatch"),
		Title:       "Geometry Dash",
		Description: "platformer",
	}

	out, err := s.AddProject(ctx, nil, p)
	require.NoError(t, err)
	assert.Equal(t, Mutated, out)

	got, err := s.GetProject(nil, 42)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	found, err := s.SearchProjects(ctx, nil, "geometry")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, *p, found[0])

	out, err = s.RemoveProject(nil, 42)
	require.NoError(t, err)
	assert.Equal(t, Mutated, out)

	found, err = s.SearchProjects(ctx, nil, "geometry")
	require.NoError(t, err)
	assert.Empty(t, found, "stale mirror hits are skipped")
}

func TestSearchUsers(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.store
	ctx := context.Background()
	for _, n := range []string{"alpha", "beta", "gamma"} {
		_, err := s.AddUser(ctx, nil, user(t, n))
		require.NoError(t, err)
	}
	users, err := s.SearchUsers(ctx, nil, "beta")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "beta", users[0].Name.String())
}

type failingMirror struct{ err error }

func (f failingMirror) AddDocuments(context.Context, string, any) error { return f.err }

func (f failingMirror) Search(context.Context, string, string) ([]uint64, error) {
	return nil, f.err
}

func TestMirrorFailureIsInternal(t *testing.T) {
	cause := errors.New("meilisearch down")
	h := newHarness(t, Options{Mirror: failingMirror{err: cause}})
	s := h.store
	u := user(t, "offline")

	_, err := s.AddUser(context.Background(), nil, u)
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotContains(t, err.Error(), "meilisearch")

	// the record was stored and indexed before the mirror push failed
	got, err := s.GetUser(nil, u.Name)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	_, err = s.SearchUsers(context.Background(), nil, "offline")
	assert.ErrorIs(t, err, ErrInternal)

	require.Eventually(t, func() bool { return len(h.reported()) == 2 }, time.Second, 5*time.Millisecond)
	for _, ie := range h.reported() {
		assert.Equal(t, SubsystemMirror, ie.Subsystem)
		assert.ErrorIs(t, ie, cause)
	}
	assert.Equal(t, OpAddUser, h.reported()[0].Op)
}

// failingIndex fails every InsertAt and delegates the rest.
type failingIndex struct {
	recordIndex
	err error
}

func (f failingIndex) InsertAt(engine.Cursor, uint64) error { return f.err }

func TestIndexFailureOrphansHeapRecord(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.store
	cause := errors.New("index write failed")
	s.users.index = failingIndex{recordIndex: s.users.index, err: cause}
	u := user(t, "orphan")

	_, err := s.AddUser(context.Background(), nil, u)
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotContains(t, err.Error(), "index write failed")

	assert.Equal(t, 1, s.users.heap.Len(), "heap record stays behind")
	assert.Equal(t, 0, s.users.index.Len())
	_, err = s.GetUser(nil, u.Name)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, h.mirror.Len("users"))

	require.Eventually(t, func() bool { return len(h.reported()) == 1 }, time.Second, 5*time.Millisecond)
	ie := h.reported()[0]
	assert.Equal(t, SubsystemIndex, ie.Subsystem)
	assert.Equal(t, OpAddUser, ie.Op)
	assert.ErrorIs(t, ie, cause)
}

// blockingMirror parks AddDocuments until release is closed.
type blockingMirror struct {
	*search.Memory
	entered chan struct{}
	release chan struct{}
}

func (b *blockingMirror) AddDocuments(ctx context.Context, index string, docs any) error {
	close(b.entered)
	<-b.release
	return b.Memory.AddDocuments(ctx, index, docs)
}

func TestReadersNeverSeePartialAdd(t *testing.T) {
	bm := &blockingMirror{Memory: search.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, Options{Mirror: bm})
	s := h.store
	u := user(t, "inflight")

	addDone := make(chan error, 1)
	go func() {
		_, err := s.AddUser(context.Background(), nil, u)
		addDone <- err
	}()
	<-bm.entered

	const readers = 16
	var wg sync.WaitGroup
	results := make(chan error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.GetUser(nil, u.Name)
			if err == nil && *got != *u {
				err = errors.New("partial user observed")
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				results <- err
				return
			}
			results <- nil
		}()
	}

	select {
	case err := <-results:
		t.Fatalf("reader finished while the add held the lock: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(bm.release)
	require.NoError(t, <-addDone)
	wg.Wait()
	close(results)
	for err := range results {
		assert.NoError(t, err)
	}
	got, err := s.GetUser(nil, u.Name)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestReopenExisting(t *testing.T) {
	fs := vfs.NewMem()
	mirror := search.NewMemory()
	s, err := Open(Options{Dir: "deploy", Mode: engine.ModeNew, FS: fs, Mirror: mirror})
	require.NoError(t, err)
	go ConsumeErrors(context.Background(), s.Errors())
	u := user(t, "persisted")
	_, err = s.AddUser(context.Background(), nil, u)
	require.NoError(t, err)
	k, err := s.GenerateKey(context.Background(), PermRead)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(Options{Dir: "deploy", Mode: engine.ModeNew, FS: fs, Mirror: mirror})
	require.Error(t, err, "new mode refuses an initialized deployment")

	s, err = Open(Options{Dir: "deploy", Mode: engine.ModeExisting, FS: fs, Mirror: mirror, RequireAuth: RequireAuth{Read: true}})
	require.NoError(t, err)
	defer s.Close()
	go ConsumeErrors(context.Background(), s.Errors())

	got, err := s.GetUser(&k, u.Name)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestOpenExistingOnEmptyDirFails(t *testing.T) {
	_, err := Open(Options{Dir: "deploy", Mode: engine.ModeExisting, FS: vfs.NewMem(), Mirror: search.NewMemory()})
	assert.Error(t, err)
}

func TestClosedStore(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.store.Close())
	<-h.done
	assert.False(t, h.store.Ready())
	_, err := h.store.GetUser(nil, name(t, "x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.store.Close())
}

func TestCollectorsRegister(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.store.AddUser(context.Background(), nil, user(t, "metrics"))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	for _, c := range h.store.Collectors() {
		require.NoError(t, reg.Register(c))
	}
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "meowstore_operations_total")
	require.NoError(t, h.store.Compact())
}
