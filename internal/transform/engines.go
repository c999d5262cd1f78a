package transform

import (
	"bytes"
	"context"
	"image/png"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/minify"
)

// Set holds one engine per asset class.
type Set struct {
	Style  Engine
	Script Engine
	Page   Engine
	Image  Engine
	Font   Engine
}

// browserEngines is the compile target for stylesheets. None of these support
// native CSS nesting, so nested rules are flattened.
var browserEngines = []api.Engine{
	{Name: api.EngineChrome, Version: "100"},
	{Name: api.EngineFirefox, Version: "100"},
	{Name: api.EngineSafari, Version: "15"},
	{Name: api.EngineEdge, Version: "100"},
}

var styleExts = map[string]bool{".scss": true, ".sass": true, ".less": true}

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	// preprocessorSyntax matches constructs plain CSS cannot express: Sass and
	// Less variable declarations, Sass directives and interpolation.
	preprocessorSyntax = regexp.MustCompile(
		`(?m)(?:^|[;{}])\s*([$@][A-Za-z_][\w-]*\s*:)` +
			`|(@(?:mixin|include|extend|use|forward|function|return|if|else|each|for|while)\b)` +
			`|(#\{)`)
)

// preprocessorConstruct returns the first Sass or Less construct in src.
func preprocessorConstruct(src []byte) string {
	for _, m := range preprocessorSyntax.FindAllSubmatch(blockComment.ReplaceAll(src, nil), -1) {
		for _, g := range m[1:] {
			c := strings.TrimSpace(string(g))
			// @page :first is a plain CSS page selector.
			if c == "" || strings.HasPrefix(c, "@page") {
				continue
			}
			return c
		}
	}
	return ""
}

// StyleEngine compiles stylesheets with esbuild. Nesting is lowered and the
// output stays readable; minification happens at packaging time.
//
// .scss and .less sources are accepted when they are plain CSS with nesting.
// Variables, mixins and other preprocessor features fail the file instead of
// leaking into the output, and any esbuild warning on such a source is an
// error. Indented .sass syntax is never valid CSS and is rejected.
func StyleEngine() Engine {
	return Func(func(_ context.Context, rec asset.Record) (asset.Record, error) {
		preprocessed := styleExts[rec.Ext()]
		if rec.Ext() == ".sass" {
			return asset.Record{}, errors.TransformError("indented Sass syntax is not supported").
				WithContext("path", rec.Path).
				Build()
		}
		if preprocessed {
			if c := preprocessorConstruct(rec.Content); c != "" {
				return asset.Record{}, errors.TransformError("stylesheet uses unsupported preprocessor syntax").
					WithContext("path", rec.Path).
					WithContext("construct", c).
					Build()
			}
		}
		result := api.Transform(string(rec.Content), api.TransformOptions{
			Loader:     api.LoaderCSS,
			Engines:    browserEngines,
			Sourcefile: rec.Path,
		})
		if len(result.Errors) > 0 {
			return asset.Record{}, compileError("failed to compile stylesheet", rec, result.Errors)
		}
		if preprocessed && len(result.Warnings) > 0 {
			return asset.Record{}, compileError("stylesheet is not plain CSS", rec, result.Warnings)
		}
		out := rec.WithContent(result.Code)
		if preprocessed {
			out = out.WithExt(".css")
		}
		return out, nil
	})
}

var scriptLoaders = map[string]api.Loader{
	".js":  api.LoaderJS,
	".mjs": api.LoaderJS,
	".jsx": api.LoaderJSX,
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
}

// ScriptEngine transpiles scripts to ES2015 with esbuild. TypeScript and JSX
// sources are written with a .js extension.
func ScriptEngine() Engine {
	return Func(func(_ context.Context, rec asset.Record) (asset.Record, error) {
		ext := rec.Ext()
		loader, ok := scriptLoaders[ext]
		if !ok {
			loader = api.LoaderJS
		}
		result := api.Transform(string(rec.Content), api.TransformOptions{
			Loader:     loader,
			Target:     api.ES2015,
			Sourcefile: rec.Path,
		})
		if len(result.Errors) > 0 {
			return asset.Record{}, compileError("failed to transpile script", rec, result.Errors)
		}
		out := rec.WithContent(result.Code)
		if ext != ".js" && ext != ".mjs" {
			out = out.WithExt(".js")
		}
		return out, nil
	})
}

// ImageEngine recompresses PNG images losslessly and minifies SVG. Other
// formats pass through. A recompressed image is kept only when smaller.
func ImageEngine(m *minify.Minifier) Engine {
	return Func(func(_ context.Context, rec asset.Record) (asset.Record, error) {
		switch rec.Ext() {
		case ".png":
			img, err := png.Decode(bytes.NewReader(rec.Content))
			if err != nil {
				return asset.Record{}, errors.TransformError("failed to decode png").
					WithContext("path", rec.Path).
					WithCause(err).
					Build()
			}
			var buf bytes.Buffer
			enc := png.Encoder{CompressionLevel: png.BestCompression}
			if err := enc.Encode(&buf, img); err != nil {
				return asset.Record{}, errors.TransformError("failed to encode png").
					WithContext("path", rec.Path).
					WithCause(err).
					Build()
			}
			if buf.Len() < len(rec.Content) {
				return rec.WithContent(buf.Bytes()), nil
			}
			return rec, nil
		case ".svg":
			return minifySVG(m, rec)
		default:
			return rec, nil
		}
	})
}

// FontEngine minifies SVG fonts; binary font formats pass through.
func FontEngine(m *minify.Minifier) Engine {
	return Func(func(_ context.Context, rec asset.Record) (asset.Record, error) {
		if rec.Ext() == ".svg" {
			return minifySVG(m, rec)
		}
		return rec, nil
	})
}

func minifySVG(m *minify.Minifier, rec asset.Record) (asset.Record, error) {
	out, err := m.SVG(rec.Content)
	if err != nil {
		return asset.Record{}, errors.WrapError(err, errors.CategoryTransform, "failed to optimize svg").
			WithContext("path", rec.Path).
			Build()
	}
	return rec.WithContent(out), nil
}

func compileError(msg string, rec asset.Record, msgs []api.Message) error {
	detail := minify.Messages(msgs)
	return errors.TransformError(msg).
		WithContext("path", rec.Path).
		WithContext("detail", strings.TrimSpace(detail)).
		Build()
}
