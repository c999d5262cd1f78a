package pipeline

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
)

// Extra copies the public root verbatim into dist/<public_subpath>.
func (p *Pipeline) Extra() Task {
	return Func("extra", func(ctx context.Context) error {
		src := p.cfg.Build.Public.String()
		dst := filepath.Join(p.cfg.Build.Dist.String(), filepath.FromSlash(p.cfg.Build.PublicSubpath))
		n, err := copyTree(ctx, src, dst)
		if err != nil {
			return err
		}
		if n == 0 {
			p.logger.Info("Public root is empty or missing", logfields.Root(src))
			return nil
		}
		p.recorder.AddFilesProcessed(string(asset.ClassPublic), n)
		p.logger.Info("Copied public files", logfields.Root(src), logfields.Dest(dst), logfields.Files(n))
		return nil
	})
}

// copyTree copies every regular file under src into dst, preserving structure
// and permissions. A missing src copies nothing.
func copyTree(ctx context.Context, src, dst string) (int, error) {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return 0, nil
	}
	count := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		return count, errors.FileSystemError("failed to copy public files").
			WithContext("path", src).
			WithCause(err).
			Build()
	}
	return count, nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}
	return os.Chmod(dst, srcInfo.Mode())
}
