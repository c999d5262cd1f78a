package devserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
)

func touch(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Defaults()
	cfg.Build.Src = config.Root(filepath.Join(base, "src"))
	cfg.Build.Temp = config.Root(filepath.Join(base, "temp"))
	cfg.Build.Dist = config.Root(filepath.Join(base, "dist"))
	cfg.Build.Public = config.Root(filepath.Join(base, "public"))
	cfg.Server.Routes = map[string]string{"/node_modules": filepath.Join(base, "node_modules")}
	return cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestHandler_RootPrecedence(t *testing.T) {
	cfg := testConfig(t)
	touch(t, cfg.Build.Temp.String(), "assets/scripts/app.js", "from temp")
	touch(t, cfg.Build.Src.String(), "assets/scripts/app.js", "from src")
	touch(t, cfg.Build.Src.String(), "assets/images/logo.svg", "<svg/>")
	touch(t, cfg.Build.Public.String(), "assets/images/logo.svg", "public logo")
	touch(t, cfg.Build.Public.String(), "robots.txt", "User-agent: *")

	h := New(cfg, nil).Handler()

	require.Equal(t, "from temp", get(t, h, "/assets/scripts/app.js").Body.String())
	require.Equal(t, "<svg/>", get(t, h, "/assets/images/logo.svg").Body.String())
	require.Equal(t, "User-agent: *", get(t, h, "/robots.txt").Body.String())
	require.Equal(t, http.StatusNotFound, get(t, h, "/missing.css").Code)
}

func TestHandler_DirectoryIndexAndInjection(t *testing.T) {
	cfg := testConfig(t)
	touch(t, cfg.Build.Src.String(), "docs/index.html", "<html><body>src docs</body></html>")
	touch(t, cfg.Build.Temp.String(), "index.html", "<html><body>home</body></html>")

	h := New(cfg, nil).Handler()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `<html><body>home<script async src="/__reload.js"></script></body></html>`, rec.Body.String())

	// The temp root has no docs/ directory, so src answers.
	rec = get(t, h, "/docs/")
	require.Contains(t, rec.Body.String(), "src docs")
	require.Contains(t, rec.Body.String(), "/__reload.js")
}

func TestHandler_RoutesAndReloadEndpoints(t *testing.T) {
	cfg := testConfig(t)
	touch(t, cfg.Server.Routes["/node_modules"], "lib/lib.js", "window.lib=1")

	reg := prom.NewRegistry()
	metrics.NewPrometheusRecorder(reg).AddFilesProcessed("pages", 1)
	h := New(cfg, nil, WithMetrics(reg)).Handler()

	require.Equal(t, "window.lib=1", get(t, h, "/node_modules/lib/lib.js").Body.String())
	require.Contains(t, get(t, h, "/__reload.js").Body.String(), "EventSource")
	require.Contains(t, get(t, h, MetricsPath).Body.String(), "pagebuild_files_processed_total")
}

func TestHandler_NoMetricsWithoutRegistry(t *testing.T) {
	cfg := testConfig(t)
	require.Equal(t, http.StatusNotFound, get(t, New(cfg, nil).Handler(), MetricsPath).Code)
}

func TestListen_PortInUseIsServerBindError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := New(testConfig(t), nil, WithAddr(busy.Addr().String()))
	err = srv.Serve(context.Background())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryServer))
}

func TestServe_WatchesAndShutsDown(t *testing.T) {
	cfg := testConfig(t)
	src := cfg.Build.Src.String()
	touch(t, src, "assets/styles/main.scss", "a{}")
	touch(t, src, "index.html", "<html><body>hi</body></html>")

	var (
		mu    sync.Mutex
		calls [][]string
	)
	styles := Binding{
		Name:     "style",
		Root:     src,
		Patterns: []string{cfg.Build.Paths.Styles},
		Action: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, changed)
			return nil
		},
	}

	srv := New(cfg, nil, WithAddr("127.0.0.1:0"), WithBindings(styles), WithDebounce(20*time.Millisecond))
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr().String() + "/index.html")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Contains(t, string(body), "hi")

	// Give the watcher a moment to register directories before writing.
	time.Sleep(100 * time.Millisecond)
	touch(t, src, "assets/styles/main.scss", "b{}")
	touch(t, src, "assets/styles/notes.txt", "ignored")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calls) > 0
	}, 5*time.Second, 20*time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"assets/styles/main.scss"}, calls[0])
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
