package compose

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// readmeCandidates are checked in order when deriving the landing title.
var readmeCandidates = []string{"README.md", "Readme.md", "readme.md"}

// LandingTitle derives a human title for the documentation landing page from
// the source repository README's first heading. Falls back to a humanized
// form of the repository name.
func LandingTitle(repoPath, repoName string) string {
	for _, name := range readmeCandidates {
		data, err := os.ReadFile(filepath.Join(repoPath, name))
		if err != nil {
			continue
		}
		if title := firstHeading(data); title != "" {
			return title
		}
	}
	return humanize(repoName)
}

// firstHeading parses markdown and returns the text of the first heading.
func firstHeading(source []byte) string {
	md := goldmark.New()
	root := md.Parser().Parse(gmtext.NewReader(source))
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering || title != "" {
			return gmast.WalkContinue, nil
		}
		if h, ok := n.(*gmast.Heading); ok {
			var sb strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*gmast.Text); ok {
					sb.Write(t.Segment.Value(source))
				}
			}
			title = strings.TrimSpace(sb.String())
			return gmast.WalkStop, nil
		}
		return gmast.WalkContinue, nil
	})
	return title
}

// humanize turns a repo slug like "execution-specs" into "Execution Specs".
func humanize(name string) string {
	if name == "" {
		return "API Documentation"
	}
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '.'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// WriteLandingPage writes an index.html at the mount root when the generated
// documentation does not provide one. It lists the top-level entries (crate
// roots) and links to each one's index.
func WriteLandingPage(mountDir, title string) error {
	indexPath := filepath.Join(mountDir, "index.html")
	if _, err := os.Stat(indexPath); err == nil {
		return nil // generator already produced an entry point
	}

	entries, err := os.ReadDir(mountDir)
	if err != nil {
		return fmt.Errorf("read mount dir: %w", err)
	}
	var sections []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(mountDir, e.Name(), "index.html")); err == nil {
			sections = append(sections, e.Name())
		}
	}
	sort.Strings(sections)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(title))
	if len(sections) == 1 {
		// Single crate: redirect straight to it.
		fmt.Fprintf(&sb, "<meta http-equiv=\"refresh\" content=\"0; url=%s/index.html\">\n", sections[0])
	}
	sb.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n<ul>\n", html.EscapeString(title))
	for _, s := range sections {
		fmt.Fprintf(&sb, "<li><a href=\"%s/index.html\">%s</a></li>\n", s, html.EscapeString(humanize(s)))
	}
	sb.WriteString("</ul>\n</body>\n</html>\n")

	return os.WriteFile(indexPath, []byte(sb.String()), 0o640)
}
