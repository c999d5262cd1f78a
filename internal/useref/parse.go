// Package useref rewrites build-reference regions in rendered pages.
//
// A region is delimited by a pair of comments:
//
//	<!-- build:js assets/scripts/bundle.js -->
//	<script src="assets/scripts/vendor.js"></script>
//	<script src="assets/scripts/app.js"></script>
//	<!-- endbuild -->
//
// The referenced files are concatenated in order, minified and written as the
// target; the region is replaced by one tag pointing at the target. The type
// is js, css or remove. An optional alternate search root may follow the
// type in parentheses: build:js(vendor,lib) target.
package useref

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// BlockType is the kind of a build-reference region.
type BlockType string

const (
	BlockJS     BlockType = "js"
	BlockCSS    BlockType = "css"
	BlockRemove BlockType = "remove"
)

// Block is one parsed region. Start and End are byte offsets of the region,
// markers included, in the page it was parsed from.
type Block struct {
	Type        BlockType
	Target      string
	SearchRoots []string
	Refs        []string
	Start       int
	End         int
}

var (
	startMarker = regexp.MustCompile(`^\s*build:(\w+)(?:\(([^)]*)\))?\s+(\S+)\s*$`)
	endMarker   = regexp.MustCompile(`^\s*endbuild\s*$`)
)

// Parse tokenizes page and returns its regions in document order.
func Parse(page []byte) ([]Block, error) {
	z := html.NewTokenizer(bytes.NewReader(page))
	var (
		blocks []Block
		cur    *Block
		offset int
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			break
		}
		raw := len(z.Raw())
		tok := z.Token()
		start := offset
		offset += raw

		switch tt {
		case html.CommentToken:
			if m := startMarker.FindStringSubmatch(tok.Data); m != nil {
				if cur != nil {
					return nil, fmt.Errorf("nested build region at offset %d", start)
				}
				typ := BlockType(strings.ToLower(m[1]))
				switch typ {
				case BlockJS, BlockCSS, BlockRemove:
				default:
					return nil, fmt.Errorf("unknown build region type %q", m[1])
				}
				cur = &Block{Type: typ, Target: m[3], SearchRoots: splitRoots(m[2]), Start: start}
				continue
			}
			if endMarker.MatchString(tok.Data) {
				if cur == nil {
					return nil, fmt.Errorf("endbuild without build at offset %d", start)
				}
				cur.End = offset
				blocks = append(blocks, *cur)
				cur = nil
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			if cur == nil {
				continue
			}
			if ref := reference(tok); ref != "" {
				cur.Refs = append(cur.Refs, ref)
			}
		}
	}
	if cur != nil {
		return nil, fmt.Errorf("build region %q is not closed", cur.Target)
	}
	return blocks, nil
}

func reference(tok html.Token) string {
	switch tok.DataAtom {
	case atom.Script:
		return attr(tok, "src")
	case atom.Link:
		if strings.EqualFold(attr(tok, "rel"), "stylesheet") {
			return attr(tok, "href")
		}
	}
	return ""
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func splitRoots(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var roots []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	return roots
}

// Replace returns page with every region substituted by replacement(block).
func Replace(page []byte, blocks []Block, replacement func(Block) string) []byte {
	var buf bytes.Buffer
	last := 0
	for _, b := range blocks {
		buf.Write(page[last:b.Start])
		buf.WriteString(replacement(b))
		last = b.End
	}
	buf.Write(page[last:])
	return buf.Bytes()
}

// Tag returns the single reference emitted in place of a region.
func Tag(b Block) string {
	switch b.Type {
	case BlockJS:
		return `<script src="` + html.EscapeString(b.Target) + `"></script>`
	case BlockCSS:
		return `<link rel="stylesheet" href="` + html.EscapeString(b.Target) + `">`
	default:
		return ""
	}
}
