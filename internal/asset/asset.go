// Package asset models the files flowing through the pipeline: enumeration of a
// glob under a base root and writing records re-based onto an output root.
package asset

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

// Class tags a record with the asset class whose glob produced it.
type Class string

const (
	ClassStyles  Class = "styles"
	ClassScripts Class = "scripts"
	ClassPages   Class = "pages"
	ClassImages  Class = "images"
	ClassFonts   Class = "fonts"
	ClassPublic  Class = "public"
)

// Record is one file: its slash-separated path relative to the root it was read
// from, its content and its class. Records are values; transformers return new ones.
type Record struct {
	Path    string
	Content []byte
	Class   Class
}

// Ext returns the lower-cased extension of the record path.
func (r Record) Ext() string {
	return strings.ToLower(path.Ext(r.Path))
}

// WithContent returns a copy of r carrying content.
func (r Record) WithContent(content []byte) Record {
	r.Content = content
	return r
}

// WithExt returns a copy of r whose path extension is replaced by ext.
func (r Record) WithExt(ext string) Record {
	r.Path = strings.TrimSuffix(r.Path, path.Ext(r.Path)) + ext
	return r
}

// Match lists the slash-separated paths of regular files under root matching
// pattern, sorted. A missing root yields no matches.
func Match(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.ValidationError("invalid glob pattern").WithContext("pattern", pattern).Build()
	}
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.FileSystemError("failed to expand glob").
			WithContext("root", root).
			WithContext("pattern", pattern).
			WithCause(err).
			Build()
	}
	return matches, nil
}

// Enumerate reads every file under root matching pattern into records of class.
func Enumerate(root, pattern string, class Class) ([]Record, error) {
	matches, err := Match(root, pattern)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(matches))
	for _, rel := range matches {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, errors.FileSystemError("failed to read asset").
				WithContext("path", path.Join(filepath.ToSlash(root), rel)).
				WithCause(err).
				Build()
		}
		records = append(records, Record{Path: rel, Content: content, Class: class})
	}
	return records, nil
}

// Write stores rec under root at its relative path, creating parent directories.
// It returns the written filesystem path.
func Write(root string, rec Record) (string, error) {
	dst, err := Dest(root, rec.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.FileSystemError("failed to create output directory").
			WithContext("path", filepath.Dir(dst)).
			WithCause(err).
			Build()
	}
	if err := os.WriteFile(dst, rec.Content, 0o644); err != nil {
		return "", errors.FileSystemError("failed to write asset").
			WithContext("path", dst).
			WithCause(err).
			Build()
	}
	return dst, nil
}

// Dest resolves rel under root, refusing paths that escape it.
func Dest(root, rel string) (string, error) {
	if !fs.ValidPath(rel) {
		return "", errors.ValidationError(fmt.Sprintf("asset path %q escapes its root", rel)).
			WithContext("root", root).
			Build()
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}
