package verify

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docship/internal/logfields"
)

// Finding describes one broken internal reference.
type Finding struct {
	SourceFile string // file containing the link, relative to the publish root
	Target     string // raw link value
	Resolved   string // resolved path relative to the publish root
}

func (f Finding) String() string {
	return fmt.Sprintf("%s -> %s (resolved %s)", f.SourceFile, f.Target, f.Resolved)
}

// CheckTree walks every .html file under publishDir and resolves internal
// links against the tree. Directory targets resolve through index.html.
func CheckTree(publishDir string) ([]Finding, error) {
	var findings []Finding
	err := filepath.Walk(publishDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		rel, err := filepath.Rel(publishDir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(filepath.Clean(p))
		if err != nil {
			return err
		}
		links, perr := ExtractLinks(f)
		_ = f.Close()
		if perr != nil {
			return fmt.Errorf("parse %s: %w", rel, perr)
		}
		for _, l := range links {
			if !IsInternal(l.URL) {
				continue
			}
			resolved, ok := resolveTarget(publishDir, rel, l.URL)
			if !ok {
				findings = append(findings, Finding{SourceFile: filepath.ToSlash(rel), Target: l.URL, Resolved: resolved})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(findings) > 0 {
		slog.Warn("Broken internal links found", slog.Int("count", len(findings)), logfields.Path(publishDir))
	}
	return findings, nil
}

// resolveTarget resolves a link from sourceRel against the publish root and
// reports whether a file exists for it.
func resolveTarget(publishDir, sourceRel, raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, false
	}
	target := u.Path
	if target == "" { // fragment-only or query-only after IsInternal filtering
		return raw, true
	}

	var rel string
	if path.IsAbs(target) {
		rel = strings.TrimPrefix(target, "/")
	} else {
		rel = path.Join(path.Dir(filepath.ToSlash(sourceRel)), target)
	}
	rel = path.Clean(rel)
	if rel == "." {
		rel = ""
	}
	if strings.HasPrefix(rel, "..") {
		return rel, false // escapes the publish tree
	}

	full := filepath.Join(publishDir, filepath.FromSlash(rel))
	if st, err := os.Stat(full); err == nil {
		if !st.IsDir() {
			return rel, true
		}
		// Directory link: served as its index document.
		if _, err := os.Stat(filepath.Join(full, "index.html")); err == nil {
			return rel, true
		}
		return rel, false
	}
	return rel, false
}
