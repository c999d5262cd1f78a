package minify

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

// blockTags are elements around which whitespace does not render.
var blockTags = map[atom.Atom]bool{
	atom.Html: true, atom.Head: true, atom.Body: true, atom.Title: true, atom.Meta: true,
	atom.Link: true, atom.Base: true, atom.Script: true, atom.Style: true, atom.Noscript: true,
	atom.Template: true, atom.Div: true, atom.P: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true, atom.Ul: true, atom.Ol: true,
	atom.Li: true, atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Table: true,
	atom.Thead: true, atom.Tbody: true, atom.Tfoot: true, atom.Tr: true, atom.Td: true,
	atom.Th: true, atom.Caption: true, atom.Colgroup: true, atom.Col: true, atom.Section: true,
	atom.Article: true, atom.Header: true, atom.Footer: true, atom.Nav: true, atom.Main: true,
	atom.Aside: true, atom.Form: true, atom.Fieldset: true, atom.Legend: true, atom.Hr: true,
	atom.Br: true, atom.Pre: true, atom.Blockquote: true, atom.Figure: true,
	atom.Figcaption: true, atom.Address: true, atom.Details: true, atom.Summary: true,
	atom.Option: true, atom.Optgroup: true, atom.Iframe: true, atom.Video: true,
	atom.Audio: true, atom.Source: true, atom.Canvas: true,
}

// rawText marks script content that is not JavaScript, such as JSON data or
// client-side templates.
const rawText = "raw"

type htmlToken struct {
	typ  html.TokenType
	raw  []byte
	name atom.Atom
	// js is set on script start tags whose content is JavaScript.
	js bool
}

// HTML collapses insignificant whitespace and minifies inline <style> and
// <script> content. Tags, attributes, comments, entities and the contents of
// <pre> and <textarea> are copied byte for byte.
func (mf *Minifier) HTML(markup []byte) ([]byte, error) {
	toks, err := tokenize(markup)
	if err != nil {
		return nil, errors.TransformError("failed to tokenize markup").WithCause(err).Build()
	}

	var (
		out      bytes.Buffer
		verbatim int
		inline   string
	)
	out.Grow(len(markup))
	for i, t := range toks {
		switch t.typ {
		case html.StartTagToken:
			switch t.name {
			case atom.Pre, atom.Textarea:
				verbatim++
			case atom.Style:
				inline = mediaCSS
			case atom.Script:
				inline = rawText
				if t.js {
					inline = mediaJS
				}
			}
			out.Write(t.raw)
		case html.EndTagToken:
			switch t.name {
			case atom.Pre, atom.Textarea:
				if verbatim > 0 {
					verbatim--
				}
			case atom.Style, atom.Script:
				inline = ""
			}
			out.Write(t.raw)
		case html.TextToken:
			switch {
			case verbatim > 0:
				out.Write(t.raw)
			case inline == rawText:
				out.Write(t.raw)
			case inline != "":
				if len(bytes.TrimSpace(t.raw)) == 0 {
					continue
				}
				small, err := mf.m.Bytes(inline, t.raw)
				if err != nil {
					return nil, errors.TransformError("failed to minify inline content").
						WithContext("type", inline).
						WithCause(err).
						Build()
				}
				out.Write(small)
			default:
				out.Write(collapse(t.raw, edge(toks, i-1), edge(toks, i+1)))
			}
		default:
			out.Write(t.raw)
		}
	}
	return out.Bytes(), nil
}

func tokenize(markup []byte) ([]htmlToken, error) {
	z := html.NewTokenizer(bytes.NewReader(markup))
	var toks []htmlToken
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return toks, nil
		}
		// TagName lower-cases the buffer in place, so copy the raw bytes first.
		t := htmlToken{typ: tt, raw: append([]byte(nil), z.Raw()...)}
		if tt == html.StartTagToken || tt == html.EndTagToken || tt == html.SelfClosingTagToken {
			name, hasAttr := z.TagName()
			t.name = atom.Lookup(name)
			if tt == html.StartTagToken && t.name == atom.Script {
				t.js = isJavaScript(z, hasAttr)
			}
		}
		toks = append(toks, t)
	}
}

func isJavaScript(z *html.Tokenizer, more bool) bool {
	for more {
		var key, val []byte
		key, val, more = z.TagAttr()
		if string(key) != "type" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "", "module", "text/javascript", "application/javascript":
			return true
		default:
			return false
		}
	}
	return true
}

// edge reports whether the token at i bounds a block, so adjacent whitespace
// can be dropped rather than collapsed.
func edge(toks []htmlToken, i int) bool {
	if i < 0 || i >= len(toks) {
		return true
	}
	switch toks[i].typ {
	case html.TextToken:
		return false
	case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
		return blockTags[toks[i].name]
	default:
		return true
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// collapse replaces every whitespace run in text with one space, trimming it
// entirely on a side bounded by a block.
func collapse(text []byte, trimLeft, trimRight bool) []byte {
	out := make([]byte, 0, len(text))
	space := false
	for _, c := range text {
		if isSpace(c) {
			space = true
			continue
		}
		if space && (len(out) > 0 || !trimLeft) {
			out = append(out, ' ')
		}
		space = false
		out = append(out, c)
	}
	if space && !trimRight && (len(out) > 0 || !trimLeft) {
		out = append(out, ' ')
	}
	return out
}
