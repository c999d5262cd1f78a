package useref

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

func touch(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func read(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func newRewriter(t *testing.T) (*Rewriter, string, string) {
	t.Helper()
	base := t.TempDir()
	temp, dist := filepath.Join(base, "temp"), filepath.Join(base, "dist")
	return &Rewriter{Temp: temp, Dist: dist, SearchRoots: []string{temp, base}}, temp, dist
}

func TestProcess_BundlesTwoScripts(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	touch(t, temp, "assets/scripts/vendor.js", "function vendorHelper(value) {\n  return value * 2;\n}\nwindow.vendorHelper = vendorHelper\n")
	touch(t, temp, "assets/scripts/app.js", "window.appValue = window.vendorHelper(21);\n")
	touch(t, temp, "index.html", twoScripts)

	res, err := rw.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"index.html"}, res.Pages)
	require.Equal(t, []string{"assets/scripts/bundle.js"}, res.Bundles)
	require.Empty(t, res.Minified)

	page := read(t, dist, "index.html")
	scripts := regexp.MustCompile(`<script[^>]*src=`).FindAllString(page, -1)
	require.Len(t, scripts, 1)
	require.Contains(t, page, "assets/scripts/bundle.js")
	require.NotContains(t, page, "vendor.js")

	bundle := read(t, dist, "assets/scripts/bundle.js")
	require.Contains(t, bundle, "vendorHelper")
	require.Contains(t, bundle, "appValue")
	require.Less(t, strings.Index(bundle, "vendorHelper"), strings.Index(bundle, "appValue"))

	require.NoFileExists(t, filepath.Join(dist, "assets", "scripts", "app.js"))
}

func TestProcess_PageWithoutRegionsOnlyMinified(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	src := "<!DOCTYPE html>\n<html>\n  <body>\n    <p>Hello   world</p>\n  </body>\n</html>\n"
	touch(t, temp, "about/index.html", src)

	_, err := rw.Process(context.Background())
	require.NoError(t, err)

	out := read(t, dist, "about/index.html")
	require.Less(t, len(out), len(src))
	require.Contains(t, out, "<p>Hello world</p>")
	require.NotContains(t, out, "\n  ")
}

func TestProcess_PageWithoutRegionsDiffersOnlyInWhitespace(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	src := `<!DOCTYPE html>
<html lang="en">
  <head>
    <!-- keep me -->
    <meta charset="utf-8">
  </head>
  <body>
    <p id="x" class="lead">Hi   <em>there</em></p>
    <input type="text" disabled="disabled">
  </body>
</html>
`
	touch(t, temp, "index.html", src)

	_, err := rw.Process(context.Background())
	require.NoError(t, err)

	out := read(t, dist, "index.html")
	require.Less(t, len(out), len(src))
	squash := func(s string) string { return strings.Join(strings.Fields(s), "") }
	require.Equal(t, squash(src), squash(out))
}

func TestProcess_CSSRegionRelativeToPageAndRemove(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	touch(t, temp, "docs/css/a.css", ".a { color: red; }\n")
	touch(t, temp, "docs/css/b.css", ".b { color: blue; }\n")
	touch(t, temp, "docs/page.html", `<html><head>
<!-- build:css css/all.css -->
<link rel="stylesheet" href="css/a.css">
<link rel="stylesheet" href="css/b.css">
<!-- endbuild -->
<!-- build:remove x -->
<script src="livereload.js"></script>
<!-- endbuild -->
</head><body></body></html>`)

	res, err := rw.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"docs/css/all.css"}, res.Bundles)

	page := read(t, dist, "docs/page.html")
	require.Contains(t, page, "css/all.css")
	require.NotContains(t, page, "livereload")
	bundle := read(t, dist, "docs/css/all.css")
	require.Contains(t, bundle, ".a{")
	require.Contains(t, bundle, ".b{")
}

func TestProcess_ProjectRootFallbackAndSharedTarget(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	base := filepath.Dir(temp)
	touch(t, base, "node_modules/lib/lib.js", "window.lib = 1;\n")
	region := `<!-- build:js /vendor.js --><script src="/node_modules/lib/lib.js"></script><!-- endbuild -->`
	touch(t, temp, "a.html", "<body>"+region+"</body>")
	touch(t, temp, "nested/b.html", "<body>"+region+"</body>")

	res, err := rw.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"vendor.js"}, res.Bundles)
	require.Contains(t, read(t, dist, "vendor.js"), "window.lib")
	require.Contains(t, read(t, dist, "nested/b.html"), "/vendor.js")
}

func TestProcess_UnconsumedAssetsMinified(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	touch(t, temp, "assets/scripts/solo.js", "// comment\nwindow.solo = function () {\n  return 1;\n};\n")
	touch(t, temp, "assets/styles/main.css", "body {\n  margin: 0;\n}\n")

	res, err := rw.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"assets/scripts/solo.js", "assets/styles/main.css"}, res.Minified)
	require.NotContains(t, read(t, dist, "assets/scripts/solo.js"), "comment")
	require.Equal(t, "body{margin:0}\n", read(t, dist, "assets/styles/main.css"))
}

func TestProcess_MissingReferenceFailsPageOnly(t *testing.T) {
	rw, temp, dist := newRewriter(t)
	touch(t, temp, "bad.html", `<!-- build:js out.js --><script src="missing.js"></script><!-- endbuild -->`)
	touch(t, temp, "good.html", `<p>ok</p>`)

	res, err := rw.Process(context.Background())
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryTransform))
	require.Contains(t, err.Error(), "bad.html")
	require.Equal(t, []string{"good.html"}, res.Pages)
	require.NoFileExists(t, filepath.Join(dist, "bad.html"))
}

func TestResolveRel(t *testing.T) {
	p, err := resolveRel("docs/index.html", "../assets/a.js")
	require.NoError(t, err)
	require.Equal(t, "assets/a.js", p)

	p, err = resolveRel("docs/index.html", "/assets/a.js")
	require.NoError(t, err)
	require.Equal(t, "assets/a.js", p)

	_, err = resolveRel("index.html", "../../etc/passwd")
	require.Error(t, err)
}
