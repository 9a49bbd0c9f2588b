// Package verify walks generated HTML and checks that internal references
// resolve within the publish tree.
package verify

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Link is a reference extracted from HTML content.
type Link struct {
	URL       string // raw href/src value
	Tag       string // element tag (a, img, script, link)
	Attribute string // attribute containing the link
}

// linkAttrs maps element tags to the attribute carrying a reference.
var linkAttrs = map[string]string{
	"a":      "href",
	"img":    "src",
	"script": "src",
	"link":   "href",
}

// ExtractLinks parses HTML from r and returns all link-like references.
func ExtractLinks(r io.Reader) ([]Link, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr, ok := linkAttrs[n.Data]; ok {
				if v := getAttr(n, attr); v != "" {
					links = append(links, Link{URL: v, Tag: n.Data, Attribute: attr})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// IsInternal reports whether a link target stays inside the site.
// External schemes, protocol-relative URLs, and pure fragments are skipped.
func IsInternal(raw string) bool {
	if raw == "" || strings.HasPrefix(raw, "#") {
		return false
	}
	if strings.HasPrefix(raw, "//") {
		return false
	}
	if strings.Contains(raw, "://") {
		return false
	}
	l := strings.ToLower(raw)
	return !strings.HasPrefix(l, "mailto:") && !strings.HasPrefix(l, "javascript:") && !strings.HasPrefix(l, "data:")
}
