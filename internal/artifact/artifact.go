// Package artifact packages a built site tree into a pages artifact: a gzipped
// tar with normalized metadata so identical trees produce identical digests.
package artifact

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// ErrTooLarge indicates the packed artifact exceeds the configured size limit.
var ErrTooLarge = errors.New("artifact exceeds size limit")

// Normalized tar metadata. Fixed mtime keeps digests stable across runs on an
// unchanged tree.
var epoch = time.Unix(0, 0)

// Info describes a packed artifact.
type Info struct {
	Path   string
	Size   int64
	Files  int
	Digest string // hex sha256 of the artifact file
}

// Pack writes a gzipped tar of srcDir to destPath. sizeLimit of 0 disables
// the limit check.
func Pack(srcDir, destPath string, sizeLimit int64) (Info, error) {
	files, err := collectFiles(srcDir)
	if err != nil {
		return Info{}, err
	}
	if len(files) == 0 {
		return Info{}, fmt.Errorf("nothing to package in %s", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return Info{}, fmt.Errorf("create artifact dir: %w", err)
	}
	out, err := os.Create(filepath.Clean(destPath))
	if err != nil {
		return Info{}, fmt.Errorf("create artifact: %w", err)
	}
	defer func() { _ = out.Close() }()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)
	for _, rel := range files {
		if err := addFile(tw, srcDir, rel); err != nil {
			return Info{}, fmt.Errorf("pack %s: %w", rel, err)
		}
	}
	if err := tw.Close(); err != nil {
		return Info{}, fmt.Errorf("finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Info{}, fmt.Errorf("finalize gzip: %w", err)
	}
	if err := out.Close(); err != nil {
		return Info{}, fmt.Errorf("close artifact: %w", err)
	}

	info := Info{Path: destPath, Files: len(files)}
	st, err := os.Stat(destPath)
	if err != nil {
		return Info{}, err
	}
	info.Size = st.Size()
	if sizeLimit > 0 && info.Size > sizeLimit {
		return info, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, info.Size, sizeLimit)
	}

	digest, err := fileDigest(destPath)
	if err != nil {
		return Info{}, err
	}
	info.Digest = digest

	slog.Info("Packaged site artifact", logfields.Artifact(filepath.Base(destPath)),
		slog.Int64("bytes", info.Size), slog.Int("files", info.Files),
		slog.String("digest", shortDigest(digest)))
	return info, nil
}

// collectFiles returns sorted slash-separated relative paths of regular files.
func collectFiles(srcDir string) ([]string, error) {
	var files []string
	err := filepath.Walk(srcDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", srcDir, err)
	}
	sort.Strings(files)
	return files, nil
}

func addFile(tw *tar.Writer, srcDir, rel string) error {
	full := filepath.Join(srcDir, filepath.FromSlash(rel))
	st, err := os.Stat(full)
	if err != nil {
		return err
	}
	hdr := &tar.Header{
		Name:    rel,
		Mode:    0o644,
		Size:    st.Size(),
		ModTime: epoch,
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(filepath.Clean(full))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(tw, f)
	return err
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// List returns the file names inside an artifact, for inspection and tests.
func List(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if strings.Contains(hdr.Name, "..") {
			return nil, fmt.Errorf("artifact contains escaping path %q", hdr.Name)
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}
