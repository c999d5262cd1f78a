// Package minify reduces scripts, stylesheets, markup and SVG documents for the
// distribution root. Scripts and stylesheets go through esbuild; SVG goes
// through tdewolff/minify. Markup only loses whitespace, while inline styles
// and scripts are minified with tdewolff.
package minify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	tdminify "github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

const (
	mediaCSS = "text/css"
	mediaJS  = "application/javascript"
	mediaSVG = "image/svg+xml"
)

// Minifier is safe for concurrent use.
type Minifier struct {
	m *tdminify.M
}

// New returns a Minifier.
func New() *Minifier {
	m := tdminify.New()
	m.AddFunc(mediaCSS, css.Minify)
	m.AddFunc(mediaSVG, svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	return &Minifier{m: m}
}

// Script minifies JavaScript.
func (mf *Minifier) Script(code []byte) ([]byte, error) {
	return esbuildMinify(code, api.LoaderJS)
}

// Style minifies CSS.
func (mf *Minifier) Style(code []byte) ([]byte, error) {
	return esbuildMinify(code, api.LoaderCSS)
}

// SVG minifies an SVG document.
func (mf *Minifier) SVG(doc []byte) ([]byte, error) {
	out, err := mf.m.Bytes(mediaSVG, doc)
	if err != nil {
		return nil, errors.TransformError("failed to minify svg").WithCause(err).Build()
	}
	return out, nil
}

func esbuildMinify(code []byte, loader api.Loader) ([]byte, error) {
	result := api.Transform(string(code), api.TransformOptions{
		Loader:            loader,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Target:            api.ES2015,
		LegalComments:     api.LegalCommentsNone,
	})
	if len(result.Errors) > 0 {
		return nil, errors.TransformError("failed to minify").
			WithContext("detail", Messages(result.Errors)).
			Build()
	}
	return result.Code, nil
}

// Messages flattens esbuild diagnostics into a single line.
func Messages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, m.Location.File+":"+strconv.Itoa(m.Location.Line)+": "+m.Text)
			continue
		}
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, "; ")
}
