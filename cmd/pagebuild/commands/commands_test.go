package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/devserver"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.FromSlash(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("pagebuild"), kong.Vars{"version": "test"})
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func project(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	touch(t, "src/index.html", "<!DOCTYPE html>\n<html><body><p>{{ .pkg.name }}</p></body></html>\n")
	touch(t, "src/assets/scripts/app.js", "window.answer = 40 + 2;\n")
	touch(t, "pages.config.yaml", "data:\n  pkg:\n    name: demo\n")
}

func TestParse_Commands(t *testing.T) {
	t.Chdir(t.TempDir())

	cli, kctx := parse(t, "develop", "--port", "8080")
	require.Equal(t, "develop", kctx.Command())
	require.Equal(t, 8080, cli.Develop.Port)

	cli, kctx = parse(t, "-c", "custom.yaml", "init", "--force")
	require.Equal(t, "init", kctx.Command())
	require.Equal(t, "custom.yaml", cli.Config)
	require.True(t, cli.Init.Force)

	_, kctx = parse(t, "-v", "build")
	require.Equal(t, "build", kctx.Command())
}

func TestParse_CwdChangesDirectory(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()

	parse(t, "--cwd", dir, "clean")

	wd, err := os.Getwd()
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRunBuild_ProducesDistribution(t *testing.T) {
	project(t)
	cfg := loadConfig(&CLI{}, discardLogger())

	require.NoError(t, RunBuild(context.Background(), cfg, discardLogger()))

	page, err := os.ReadFile(filepath.Join("dist", "index.html"))
	require.NoError(t, err)
	require.Contains(t, string(page), "demo")
	require.FileExists(t, filepath.Join("dist", "assets", "scripts", "app.js"))
}

func TestRunBuild_TransformFailureMapsToBuildExitCode(t *testing.T) {
	project(t)
	touch(t, "src/assets/scripts/broken.js", "function ( {\n")
	cfg := loadConfig(&CLI{}, discardLogger())

	err := RunBuild(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryTransform))
	require.Equal(t, 11, errors.NewCLIErrorAdapter(false, discardLogger()).ExitCodeFor(err))
}

func TestLoadConfig_CollidingRootsFallBackToDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	touch(t, "pages.config.yaml", "build:\n  dist: src\n")

	require.Equal(t, config.Defaults(), loadConfig(&CLI{}, discardLogger()))
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	t.Chdir(t.TempDir())
	touch(t, "alt.yaml", "server:\n  port: 3000\n")

	cfg := loadConfig(&CLI{Config: "alt.yaml"}, discardLogger())
	require.Equal(t, 3000, cfg.Server.Port)
}

func TestCleanCmd_RemovesRoots(t *testing.T) {
	t.Chdir(t.TempDir())
	touch(t, "dist/index.html", "x")
	touch(t, "temp/index.html", "x")

	require.NoError(t, (&CleanCmd{}).Run(&Global{Logger: discardLogger()}, &CLI{}))
	require.NoDirExists(t, "dist")
	require.NoDirExists(t, "temp")

	require.NoError(t, (&CleanCmd{}).Run(&Global{Logger: discardLogger()}, &CLI{}))
}

func TestRunInit(t *testing.T) {
	t.Chdir(t.TempDir())
	var out bytes.Buffer

	require.NoError(t, RunInit(&out, "pages.config.yaml", false))
	require.Contains(t, out.String(), "initialized successfully")

	cfg, err := config.Load("pages.config.yaml")
	require.NoError(t, err)
	require.Equal(t, config.Defaults(), cfg)

	out.Reset()
	require.Error(t, RunInit(&out, "pages.config.yaml", false))
	require.Contains(t, out.String(), "Initialization failed")
	require.NoError(t, RunInit(&out, "pages.config.yaml", true))
}

func TestRunDevelop_CompilesThenServesUntilCancelled(t *testing.T) {
	project(t)
	cfg := loadConfig(&CLI{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunDevelop(ctx, cfg, discardLogger(), devserver.WithAddr("127.0.0.1:0"))
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join("temp", "index.html"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	require.NoDirExists(t, "dist")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("develop did not stop after cancellation")
	}
}

func TestRunDevelop_BusyPortFailsBeforeCompiling(t *testing.T) {
	project(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	err = RunDevelop(context.Background(), loadConfig(&CLI{}, discardLogger()), discardLogger(),
		devserver.WithAddr(ln.Addr().String()))
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryServer))
	require.Equal(t, 12, errors.NewCLIErrorAdapter(false, discardLogger()).ExitCodeFor(err))
	require.NoDirExists(t, "temp")
}
