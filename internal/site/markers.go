// Package site inspects a built single-page application: which assets an HTML page
// references and whether the fallback page matches the entry page.
package site

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
)

// Reference is an asset reference or inline script found in a page.
type Reference struct {
	Tag       string // script, link, meta
	Attribute string // src, href, content; empty for inline script bodies
	Value     string
}

// References extracts script sources, link hrefs, meta contents and inline script
// bodies from an HTML file.
func References(htmlPath string) ([]Reference, error) {
	file, err := os.Open(filepath.Clean(htmlPath))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to open HTML file").
			WithContext("path", htmlPath).
			Build()
	}
	defer func() {
		_ = file.Close()
	}()
	return ReferencesFromReader(file)
}

// ReferencesFromReader is References over an arbitrary reader.
func ReferencesFromReader(r io.Reader) ([]Reference, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "failed to parse HTML").Build()
	}

	var refs []Reference
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			refs = append(refs, elementReferences(n)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

func elementReferences(n *html.Node) []Reference {
	switch n.Data {
	case "script":
		var refs []Reference
		if src := getAttr(n, "src"); src != "" {
			refs = append(refs, Reference{Tag: "script", Attribute: "src", Value: src})
		}
		if body := strings.TrimSpace(textContent(n)); body != "" {
			refs = append(refs, Reference{Tag: "script", Value: body})
		}
		return refs
	case "link":
		if href := getAttr(n, "href"); href != "" {
			return []Reference{{Tag: "link", Attribute: "href", Value: href}}
		}
	case "meta":
		if content := getAttr(n, "content"); content != "" {
			return []Reference{{Tag: "meta", Attribute: "content", Value: content}}
		}
	}
	return nil
}

// ContainsMarker reports whether any reference of the page at htmlPath mentions marker.
// An empty marker always matches.
func ContainsMarker(htmlPath, marker string) (bool, error) {
	if marker == "" {
		return true, nil
	}
	refs, err := References(htmlPath)
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		if strings.Contains(ref.Value, marker) {
			return true, nil
		}
	}
	return false, nil
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
