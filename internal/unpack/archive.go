package unpack

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"

	"casework/internal/fileutil"
)

// errUnsafePath marks archive entries that would land outside the
// extraction root.
var errUnsafePath = errors.New("archive entry escapes destination")

// testZip reads every entry to completion so the reader verifies its CRC.
func testZip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		_, copyErr := io.Copy(io.Discard, rc)
		closeErr := rc.Close()
		if copyErr != nil {
			return fmt.Errorf("%s: %w", f.Name, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("%s: %w", f.Name, closeErr)
		}
	}
	return nil
}

// extractZip writes every entry of the archive under dest.
func extractZip(ctx context.Context, path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case mode&fs.ModeSymlink != 0:
			continue
		default:
			if err := writeZipEntry(f, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	defer rc.Close()
	return writeFile(target, rc, f.Mode().Perm())
}

// extractTarGz writes a gzip-compressed tar stream under dest.
func extractTarGz(ctx context.Context, path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		default:
			// Links and devices are not part of support bundles.
		}
	}
}

func writeFile(target string, r io.Reader, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func safeJoin(root, name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimLeft(name, "/"))
	target := filepath.Join(root, clean)
	if !fileutil.WithinDir(root, target) {
		return "", fmt.Errorf("%w: %s", errUnsafePath, name)
	}
	return target, nil
}

// findInnerZip returns the only .zip file under dir.
func findInnerZip(dir string) (string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", errors.New("no inner archive produced")
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("expected one inner archive, found %d", len(found))
	}
}

// commit moves a finished tree into place. An empty placeholder at dest is
// replaced; anything else is left alone and reported.
func commit(staged, dest string) error {
	if info, err := os.Stat(dest); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("destination %s exists and is not a directory", dest)
		}
		if err := os.Remove(dest); err != nil {
			return fmt.Errorf("replace empty destination: %w", err)
		}
	}
	return os.Rename(staged, dest)
}
