// Package compose merges the generated documentation tree into the static-site
// source tree at a fixed mount path.
package compose

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Merge copies docsDir into siteDir at mountPath, replacing any previous
// content. The copy goes to a staging sibling first and is swapped in with a
// rename, so a failed copy never leaves a half-merged tree.
func Merge(docsDir, siteDir, mountPath string) (int, error) {
	target := filepath.Join(siteDir, filepath.FromSlash(mountPath))
	staging := target + ".staging"

	if err := os.RemoveAll(staging); err != nil {
		return 0, fmt.Errorf("clean staging dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("create mount parent: %w", err)
	}

	count, err := CopyTree(docsDir, staging)
	if err != nil {
		_ = os.RemoveAll(staging)
		return 0, fmt.Errorf("stage documentation copy: %w", err)
	}

	if err := os.RemoveAll(target); err != nil {
		_ = os.RemoveAll(staging)
		return 0, fmt.Errorf("remove previous mount: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		_ = os.RemoveAll(staging)
		return 0, fmt.Errorf("swap staged documentation: %w", err)
	}

	slog.Info("Merged documentation into site", logfields.Path(target), slog.Int("files", count))
	return count, nil
}

// CopyTree copies src into dst recursively, returning the file count.
// Symlinks are skipped: generated documentation trees should not contain them
// and a link escaping the tree must not end up in the artifact.
func CopyTree(src, dst string) (int, error) {
	count := 0
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(out, 0o750)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			slog.Warn("Skipping symlink in documentation tree", logfields.Path(path))
			return nil
		}
		if err := copyFile(path, out); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
