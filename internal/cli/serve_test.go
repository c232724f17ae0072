package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/deke/internal/config"
	"github.com/relicta-tech/deke/internal/observability"
)

func serveOptions(stdout io.Writer) *Options {
	opts := NewOptions()
	opts.Stdout = stdout
	opts.Logger = log.New(io.Discard)
	opts.Metrics = observability.NewMetrics("test")
	opts.Config = config.DefaultConfig()
	opts.DisableColor()
	return opts
}

func TestNewAPIServer(t *testing.T) {
	dir := inTempDir(t)
	writeTestFile(t, filepath.Join(dir, "policies", "supply.yaml"), testPolicySet)

	var out bytes.Buffer
	srv, store, err := newAPIServer(serveOptions(&out), serveFlags{addr: "127.0.0.1:9999"})
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Equal(t, "127.0.0.1:9999", srv.Address())
	assert.Empty(t, out.String())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/policy-sets/supply-chain", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var set map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.Equal(t, "supply-chain", set["name"])
}

func TestNewAPIServer_NoSets(t *testing.T) {
	inTempDir(t)

	var out bytes.Buffer
	srv, _, err := newAPIServer(serveOptions(&out), serveFlags{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No policy sets found")
	assert.Equal(t, config.DefaultConfig().Server.Address, srv.Address())
}

func TestServeCommand_StopsWithContext(t *testing.T) {
	inTempDir(t)

	var stdout bytes.Buffer
	opts := NewOptions()
	opts.Stdout = &stdout
	opts.Logger = log.New(io.Discard)
	opts.Metrics = observability.NewMetrics("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := NewRootCommand(opts)
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--no-color"})
	cmd.SetOut(&stdout)
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, stdout.String(), "Serving evaluation API on http://127.0.0.1:")
}

func TestNewAPIServer_History(t *testing.T) {
	dir := inTempDir(t)
	writeTestFile(t, filepath.Join(dir, "policies", "supply.yaml"), testPolicySet)

	opts := serveOptions(io.Discard)
	opts.Config.History.Enabled = true
	opts.Config.History.Path = filepath.Join(dir, "history.db")

	srv, store, err := newAPIServer(opts, serveFlags{})
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() { _ = store.Close() }()

	body := `{"results": {"review": {"value": 0.01}, "binary": {"value": [false]}}}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/api/v1/policy-sets/supply-chain/run", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
