// Package extract unpacks mod archives into content directories.
package extract

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"barnacle/errs"
	"barnacle/logger"

	"github.com/mholt/archives"
	"go.uber.org/zap"
)

// Extractor unpacks source into dest, preserving relative structure.
type Extractor interface {
	Extract(ctx context.Context, source, dest string) error
}

// Archives extracts every format github.com/mholt/archives can identify
// (zip, tar and compressed tars, 7z, rar). A directory source is copied.
type Archives struct{}

func New() Archives {
	return Archives{}
}

func (Archives) Extract(ctx context.Context, source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return errs.Wrap(err, errs.CodeArchive, "reading mod source").With("source", source)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errs.Wrap(err, errs.CodeFilesystem, "creating content directory").With("dir", dest)
	}
	if info.IsDir() {
		if err := copyDir(ctx, source, dest); err != nil {
			return errs.Wrap(err, errs.CodeArchive, "copying mod directory").With("source", source)
		}
		return nil
	}

	if err := extractArchive(ctx, source, dest); err != nil {
		return errs.Wrap(err, errs.CodeArchive, "extracting mod archive").With("source", source)
	}
	return nil
}

func extractArchive(ctx context.Context, source, dest string) error {
	f, err := os.Open(source)
	if err != nil {
		return err
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(source), f)
	if err != nil {
		return fmt.Errorf("identifying archive format: %w", err)
	}
	ex, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%s is compressed but not an archive", format.Extension())
	}
	// Zip needs random access, so hand the extractor the rewound file itself.
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	chown := os.Geteuid() == 0
	files := 0
	err = ex.Extract(ctx, f, func(ctx context.Context, fi archives.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dest, fi.NameInArchive)
		if err != nil {
			return err
		}
		if target == dest {
			return nil
		}
		if err := writeEntry(fi, target, dest); err != nil {
			return fmt.Errorf("%s: %w", fi.NameInArchive, err)
		}
		if hdr, ok := fi.Header.(*tar.Header); ok && chown {
			if err := os.Lchown(target, hdr.Uid, hdr.Gid); err != nil {
				logger.Log.Warnw("Failed to preserve ownership", zap.String("path", target), zap.Error(err))
			}
		}
		files++
		return nil
	})
	if err != nil {
		return err
	}
	logger.Log.Debugw("Archive extracted", zap.String("source", source), zap.Int("entries", files))
	return nil
}

func writeEntry(fi archives.FileInfo, target, root string) error {
	switch {
	case fi.IsDir():
		return os.MkdirAll(target, 0o755)
	case fi.Mode()&fs.ModeSymlink != 0:
		return writeSymlink(fi.LinkTarget, target, root)
	case isHardlink(fi):
		return writeHardlink(fi.LinkTarget, target, root)
	case !fi.Mode().IsRegular():
		logger.Log.Warnw("Skipping special archive entry", zap.String("name", fi.NameInArchive))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := fi.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFile(target, rc, fi.Mode().Perm())
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeSymlink only creates links that resolve inside root.
func writeSymlink(linkTarget, target, root string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("absolute symlink target %q", linkTarget)
	}
	resolved := filepath.Join(filepath.Dir(target), linkTarget)
	if _, err := safeJoin(root, mustRel(root, resolved)); err != nil {
		return fmt.Errorf("symlink escapes content directory: %q", linkTarget)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Symlink(linkTarget, target)
}

// isHardlink reports entries that carry no content of their own and name an
// earlier entry instead. Tar reports them as regular files.
func isHardlink(fi archives.FileInfo) bool {
	if hdr, ok := fi.Header.(*tar.Header); ok {
		return hdr.Typeflag == tar.TypeLink
	}
	return fi.LinkTarget != "" && fi.Mode().IsRegular()
}

// writeHardlink links target to the already extracted entry linkTarget, a
// path inside the archive. It copies the content where linking fails.
func writeHardlink(linkTarget, target, root string) error {
	src, err := safeJoin(root, linkTarget)
	if err != nil || src == root {
		return fmt.Errorf("hardlink escapes content directory: %q", linkTarget)
	}
	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("hardlink target %q: %w", linkTarget, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("hardlink target %q is not a regular file", linkTarget)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	linkErr := os.Link(src, target)
	if linkErr == nil {
		return nil
	}
	logger.Log.Debugw("Hardlink failed, copying instead", zap.String("path", target), zap.Error(linkErr))

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(target, in, info.Mode().Perm())
}

func mustRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ".."
	}
	return filepath.ToSlash(rel)
}

// safeJoin joins an archive path onto dest, refusing paths that escape it.
func safeJoin(dest, name string) (string, error) {
	cleaned := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, cleaned)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return cleaned, nil
}

func copyDir(ctx context.Context, src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
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
		target := filepath.Join(dest, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return writeSymlink(link, target, dest)
		case info.Mode().IsRegular():
			in, err := os.Open(path)
			if err != nil {
				return err
			}
			defer in.Close()
			return writeFile(target, in, info.Mode().Perm())
		}
		return nil
	})
}
