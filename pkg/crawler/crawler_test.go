package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"meowstore/pkg/api"
	"meowstore/pkg/config"
	"meowstore/pkg/db"
	"meowstore/pkg/ident"
	"meowstore/pkg/search"
	"meowstore/pkg/store/engine"
)

// platform is a fake of the public API: users, their projects and followers.
type platform struct {
	users     map[string]apiUser
	projects  map[string][]apiProject
	followers map[string][]string

	followerCalls atomic.Int32
}

func (p *platform) handle(ctx *fasthttp.RequestCtx) {
	parts := strings.Split(strings.Trim(string(ctx.Path()), "/"), "/")
	if len(parts) < 2 || parts[0] != "users" {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	u, ok := p.users[parts[1]]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	limit := ctx.QueryArgs().GetUintOrZero("limit")
	offset := ctx.QueryArgs().GetUintOrZero("offset")

	var out any = u
	if len(parts) == 3 {
		switch parts[2] {
		case "projects":
			out = window(p.projects[u.Username], offset, limit)
		case "followers":
			p.followerCalls.Add(1)
			var fs []apiUser
			for _, name := range p.followers[u.Username] {
				fs = append(fs, apiUser{Username: name})
			}
			out = window(fs, offset, limit)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
	}
	b, _ := json.Marshal(out)
	ctx.SetContentType("application/json")
	ctx.SetBody(b)
}

func window[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func project(id uint64, author string, loves uint64) apiProject {
	var p apiProject
	p.ID = id
	p.Title = fmt.Sprintf("project %d", id)
	p.Public = true
	p.Author.Username = author
	p.History.Created = "2020-01-02T03:04:05.000Z"
	p.Stats.Loves = loves
	p.Stats.Views = 10
	return p
}

func newPlatform() *platform {
	user := func(id uint64, name string) apiUser {
		u := apiUser{ID: id, Username: name}
		u.Profile.Bio = "hi from " + name
		return u
	}
	return &platform{
		users: map[string]apiUser{
			"alice": user(1, "alice"),
			"bob":   user(2, "bob"),
			"carol": user(3, "carol"),
		},
		projects: map[string][]apiProject{
			"carol": {project(30, "carol", 1), project(31, "carol", 2), project(32, "carol", 4)},
			"bob":   {project(20, "bob", 7)},
		},
		followers: map[string][]string{
			"alice": {"bob", "carol", "ghost"},
			"bob":   {"alice"},
		},
	}
}

type fixture struct {
	store    *db.Store
	platform *platform
	cfg      *config.CrawlerConfig
	opts     Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := db.Open(db.Options{
		Dir:         "deploy",
		Mode:        engine.ModeNew,
		FS:          vfs.NewMem(),
		NoSync:      true,
		RequireAuth: db.RequireAuth{Write: true},
		Mirror:      search.NewMemory(),
	})
	require.NoError(t, err)
	go func() {
		for range store.Errors() {
		}
	}()
	key, err := store.GenerateKey(context.Background(), db.PermWrite)
	require.NoError(t, err)

	dbLn := fasthttputil.NewInmemoryListener()
	dbSrv := &fasthttp.Server{Handler: api.NewRouter(context.Background(), store).Handler}
	go func() { _ = dbSrv.Serve(dbLn) }()

	p := newPlatform()
	apiLn := fasthttputil.NewInmemoryListener()
	apiSrv := &fasthttp.Server{Handler: p.handle}
	go func() { _ = apiSrv.Serve(apiLn) }()

	t.Cleanup(func() {
		_ = dbSrv.Shutdown()
		_ = apiSrv.Shutdown()
		_ = store.Close()
	})

	cfg := &config.CrawlerConfig{
		DBURL:           "http://meowstore",
		DBAuthKey:       key.String(),
		InitialUser:     "alice",
		APIBase:         "http://platform",
		RequestInterval: config.Duration(1),
		PageSize:        2,
	}
	require.NoError(t, cfg.Validate())

	return &fixture{
		store:    store,
		platform: p,
		cfg:      cfg,
		opts: Options{
			APIDial: func(string) (net.Conn, error) { return apiLn.Dial() },
			DBDial:  func(string) (net.Conn, error) { return dbLn.Dial() },
		},
	}
}

func name(t *testing.T, s string) ident.ID {
	t.Helper()
	id, err := ident.Encode(s)
	require.NoError(t, err)
	return id
}

func TestCrawlWalksFollowers(t *testing.T) {
	f := newFixture(t)

	stats, err := New(f.cfg, f.opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 4, stats.Projects)
	assert.Equal(t, 1, stats.Skipped) // ghost

	carol, err := f.store.GetUser(nil, name(t, "carol"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), carol.ID)
	assert.Equal(t, uint32(7), carol.Loves)
	assert.Equal(t, uint32(30), carol.Views)
	assert.Equal(t, "hi from carol", carol.Bio)

	p, err := f.store.GetProject(nil, 31)
	require.NoError(t, err)
	assert.Equal(t, "project 31", p.Title)
	assert.Equal(t, name(t, "carol"), p.AuthorName)
	assert.Equal(t, int64(1577934245), p.Created)
}

func TestRecrawlDoesNotExpandKnownUsers(t *testing.T) {
	f := newFixture(t)

	_, err := New(f.cfg, f.opts).Run(context.Background())
	require.NoError(t, err)
	first := f.platform.followerCalls.Load()
	require.Positive(t, first)

	stats, err := New(f.cfg, f.opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, first, f.platform.followerCalls.Load())
}

func TestCrawlStopsAtUserLimit(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxUsers = 2

	stats, err := New(f.cfg, f.opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
}

func TestCrawlAbortsOnRejectedKey(t *testing.T) {
	f := newFixture(t)
	f.cfg.DBAuthKey = ""

	stats, err := New(f.cfg, f.opts).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
	assert.Zero(t, stats.Users)
}

func TestCrawlHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.cfg, f.opts).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
