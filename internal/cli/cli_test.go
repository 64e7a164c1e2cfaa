package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meowstore/internal/app"
	"meowstore/pkg/config"
	"meowstore/pkg/db"
	"meowstore/pkg/search"
	"meowstore/pkg/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("test")
	for _, path := range [][]string{
		{"db", "create"},
		{"db", "run"},
		{"db", "gen-key"},
		{"gen-config"},
		{"crawler", "run"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestDeploymentFlags(t *testing.T) {
	cmd := NewRootCommand("test")
	for _, name := range []string{"create", "run"} {
		sub, _, err := cmd.Find([]string{"db", name})
		require.NoError(t, err)
		cfg := sub.Flags().Lookup("config")
		require.NotNil(t, cfg)
		assert.Equal(t, "c", cfg.Shorthand)
		path := sub.Flags().Lookup("path")
		require.NotNil(t, path)
		assert.Equal(t, "p", path.Shorthand)
	}
}

func TestGenConfigWritesAndRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "gen-config", "-p", dir)
	require.NoError(t, err)
	assert.Contains(t, out, RunConfigFile)

	run, err := config.LoadRunConfig(filepath.Join(dir, RunConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:3030", run.Addr())

	create, _, err := config.LoadCreateConfig(filepath.Join(dir, CreateConfigFile))
	require.NoError(t, err)
	assert.True(t, create.Store.RequireAuth.Write)

	crawl, err := config.LoadCrawlerConfig(filepath.Join(dir, CrawlerConfigFile))
	require.NoError(t, err)
	assert.Equal(t, "griffpatch", crawl.InitialUser)

	_, err = execute(t, "gen-config", "-p", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCreateAndGenKey(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "gen-config", "-p", dir)
	require.NoError(t, err)
	root := filepath.Join(dir, "db")

	_, err = execute(t, "db", "create", "-c", filepath.Join(dir, CreateConfigFile), "-p", root)
	require.NoError(t, err)
	st, err := state.ReadStatus(root)
	require.NoError(t, err)
	assert.Equal(t, state.StatusNew, st)

	_, err = execute(t, "db", "create", "-c", filepath.Join(dir, CreateConfigFile), "-p", root)
	assert.ErrorIs(t, err, state.ErrAlreadyCreated)

	out, err := execute(t, "db", "gen-key", "--write", "-p", root)
	require.NoError(t, err)
	key, err := db.ParseKey(strings.TrimSpace(out))
	require.NoError(t, err)

	cfg := config.DefaultRunConfig()
	cfg.Search.Endpoint = search.MemoryEndpoint
	cfg.Maintenance.Enabled = false
	a, err := app.New(root, cfg, app.Options{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())
	assert.NoError(t, a.Store().EnsureAllowed(db.PermWrite, &key))
	var ae *db.AuthError
	require.True(t, errors.As(a.Store().EnsureAllowed(db.PermRemove, &key), &ae))
	assert.Equal(t, db.AuthNotAllowed, ae.Reason)
}

func TestGenKeyNeedsPermission(t *testing.T) {
	_, err := execute(t, "db", "gen-key", "-p", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunRejectsMissingDeployment(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "gen-config", "-p", dir)
	require.NoError(t, err)

	_, err = execute(t, "db", "run", "-c", filepath.Join(dir, RunConfigFile), "-p", filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCrawlerRejectsInvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "crawler.yaml")
	require.NoError(t, os.WriteFile(p, []byte("initial_user: \"\"\n"), 0o600))

	_, err := execute(t, "crawler", "run", "-c", p)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", nil)))
}
