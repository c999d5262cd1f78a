package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/minify"
)

func TestStyleEngine_LowersNestingAndRenames(t *testing.T) {
	rec := asset.Record{Path: "assets/styles/main.scss", Content: []byte(".nav { a { color: red; } }")}
	out, err := StyleEngine().Transform(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "assets/styles/main.css", out.Path)
	require.Contains(t, string(out.Content), ".nav a")
	require.Equal(t, "assets/styles/main.scss", rec.Path)
}

func TestStyleEngine_RejectsPreprocessorSyntax(t *testing.T) {
	cases := map[string]string{
		"sass variable": "$primary: #333;\n.a { color: $primary; }\n",
		"mixin":         "@mixin pad { padding: 1px; }\n.a { @include pad; .b { margin: 0; } }\n",
		"interpolation": ".icon-#{$name} { width: 1px; }\n",
		"less variable": "@base: #f938ab;\n.box { color: @base; }\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			rec := asset.Record{Path: "assets/styles/main.scss", Content: []byte(src)}
			_, err := StyleEngine().Transform(context.Background(), rec)
			require.Error(t, err)
			require.True(t, errors.HasCategory(err, errors.CategoryTransform))
		})
	}
}

func TestStyleEngine_IndentedSassRejected(t *testing.T) {
	rec := asset.Record{Path: "assets/styles/main.sass", Content: []byte(".a\n  color: red\n")}
	_, err := StyleEngine().Transform(context.Background(), rec)
	require.Error(t, err)
}

func TestStyleEngine_PlainCSSFeaturesAccepted(t *testing.T) {
	src := "/* $not: a variable; @include nothing */\n" +
		"@media (min-width: 10px) { .a { color: red; } }\n" +
		"@page :first { margin: 1in; }\n" +
		"a[href$=\".pdf\"] { color: blue; }\n" +
		":root { --gap: 4px; }\n"
	rec := asset.Record{Path: "assets/styles/main.scss", Content: []byte(src)}
	out, err := StyleEngine().Transform(context.Background(), rec)
	require.NoError(t, err)
	require.Contains(t, string(out.Content), "--gap")
}

func TestScriptEngine_TranspilesToES2015(t *testing.T) {
	rec := asset.Record{Path: "assets/scripts/app.js", Content: []byte("const name = window.cfg?.name ?? 'anon';\nwindow.greeting = name;\n")}
	out, err := ScriptEngine().Transform(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "assets/scripts/app.js", out.Path)
	require.NotContains(t, string(out.Content), "?.")
	require.NotContains(t, string(out.Content), "??")
}

func TestScriptEngine_TypeScriptRenamed(t *testing.T) {
	rec := asset.Record{Path: "assets/scripts/app.ts", Content: []byte("const n: number = 1;\nexport { n };\n")}
	out, err := ScriptEngine().Transform(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, "assets/scripts/app.js", out.Path)
	require.NotContains(t, string(out.Content), ": number")
}

func TestScriptEngine_SyntaxError(t *testing.T) {
	_, err := ScriptEngine().Transform(context.Background(), asset.Record{Path: "bad.js", Content: []byte("function (")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad.js")
}

func TestImageEngine_PNGNeverGrows(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := range 64 {
		for y := range 64 {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&buf, img))

	rec := asset.Record{Path: "assets/images/red.png", Content: buf.Bytes()}
	out, err := ImageEngine(minify.New()).Transform(context.Background(), rec)
	require.NoError(t, err)
	require.Less(t, len(out.Content), len(rec.Content))

	decoded, err := png.Decode(bytes.NewReader(out.Content))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())
}

func TestImageEngine_CorruptPNG(t *testing.T) {
	_, err := ImageEngine(minify.New()).Transform(context.Background(), asset.Record{Path: "x.png", Content: []byte("nope")})
	require.Error(t, err)
}

func TestImageEngine_PassthroughAndSVG(t *testing.T) {
	eng := ImageEngine(minify.New())
	jpg := asset.Record{Path: "a.jpg", Content: []byte{0xff, 0xd8, 0xff}}
	out, err := eng.Transform(context.Background(), jpg)
	require.NoError(t, err)
	require.Equal(t, jpg, out)

	svg := asset.Record{Path: "a.svg", Content: []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">\n  <!-- c -->\n  <rect width=\"1\" height=\"1\"/>\n</svg>\n")}
	out, err = eng.Transform(context.Background(), svg)
	require.NoError(t, err)
	require.Less(t, len(out.Content), len(svg.Content))
}

func TestFontEngine(t *testing.T) {
	eng := FontEngine(minify.New())
	woff := asset.Record{Path: "assets/fonts/a.woff2", Content: []byte("wOF2binary")}
	out, err := eng.Transform(context.Background(), woff)
	require.NoError(t, err)
	require.Equal(t, woff, out)

	svg := asset.Record{Path: "assets/fonts/a.svg", Content: []byte("<svg xmlns=\"http://www.w3.org/2000/svg\">\n   <defs>  </defs>\n</svg>")}
	out, err = eng.Transform(context.Background(), svg)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(out.Content), "\n"))
}
