package search

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type doc struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
	Bio    string `json:"bio"`
}

func TestNewSelectsBackend(t *testing.T) {
	m, err := New(Options{Endpoint: MemoryEndpoint})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, m)

	m, err = New(Options{Endpoint: "http://127.0.0.1:7700"})
	require.NoError(t, err)
	assert.IsType(t, &Meili{}, m)

	_, err = New(Options{Endpoint: "ftp://nope"})
	assert.Error(t, err)
}

func TestMemoryMirror(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.AddDocuments(ctx, "users", []doc{
		{ID: 1, Status: "Making platformers", Bio: "cats"},
		{ID: 2, Status: "art", Bio: "I draw cats and cats"},
		{ID: 3, Status: "music", Bio: "beats"},
	}))
	assert.Equal(t, 3, m.Len("users"))

	ids, err := m.Search(ctx, "users", "cats")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1}, ids)

	ids, err = m.Search(ctx, "users", "cats platformers")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)

	ids, err = m.Search(ctx, "projects", "cats")
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, m.AddDocuments(ctx, "users", []doc{{ID: 3, Bio: "cats now"}}))
	ids, err = m.Search(ctx, "users", "beats")
	require.NoError(t, err)
	assert.Empty(t, ids, "re-adding a document replaces it")
}

func TestMemoryRejectsDocsWithoutID(t *testing.T) {
	m := NewMemory()
	err := m.AddDocuments(context.Background(), "users", []map[string]string{{"bio": "x"}})
	assert.Error(t, err)
}

func serveMeili(t *testing.T, h fasthttp.RequestHandler) Options {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return Options{
		Endpoint: "http://meili.test",
		APIKey:   "master",
		Dial:     func(string) (net.Conn, error) { return ln.Dial() },
	}
}

func TestMeiliAddAndSearch(t *testing.T) {
	var gotDocs []doc
	var gotSearch searchRequest
	opts := serveMeili(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.Peek("Authorization")) != "Bearer master" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		switch string(ctx.Path()) {
		case "/indexes/users/documents":
			if string(ctx.QueryArgs().Peek("primaryKey")) != "id" {
				ctx.SetStatusCode(fasthttp.StatusBadRequest)
				return
			}
			_ = json.Unmarshal(ctx.PostBody(), &gotDocs)
			ctx.SetStatusCode(fasthttp.StatusAccepted)
			ctx.SetBodyString(`{"taskUid":12,"status":"enqueued"}`)
		case "/indexes/users/search":
			_ = json.Unmarshal(ctx.PostBody(), &gotSearch)
			ctx.SetBodyString(`{"hits":[{"id":9},{"id":4}]}`)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	})
	opts.MaxHits = 5
	m := NewMeili(opts)
	ctx := context.Background()

	require.NoError(t, m.AddDocuments(ctx, "users", []doc{{ID: 9, Bio: "hello"}}))
	assert.Equal(t, []doc{{ID: 9, Bio: "hello"}}, gotDocs)

	ids, err := m.Search(ctx, "users", "hello")
	require.NoError(t, err)
	assert.Equal(t, []uint64{9, 4}, ids)
	assert.Equal(t, "hello", gotSearch.Q)
	assert.Equal(t, 5, gotSearch.Limit)
	assert.Equal(t, []string{"id"}, gotSearch.AttributesToRetrieve)
}

func TestMeiliErrorStatus(t *testing.T) {
	opts := serveMeili(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString(`{"message":"Index missing","code":"index_not_found"}`)
	})
	_, err := NewMeili(opts).Search(context.Background(), "users", "x")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, "index_not_found", apiErr.Code)
}

func TestMeiliHonorsCancelledContext(t *testing.T) {
	m := NewMeili(Options{Endpoint: "http://unused"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Search(ctx, "users", "x")
	assert.ErrorIs(t, err, context.Canceled)
}
