package newsletter

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vibeshift/dashboard/internal/model"
)

// ErrNoSections means the issue page had no content to carve.
var ErrNoSections = errors.New("newsletter: no sections found")

// policy is the allowlist every section's markup passes through before it leaves the package.
var policy = bluemonday.UGCPolicy()

// dropped elements are removed with their subtree before carving.
var dropped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Iframe: true, atom.Object: true,
	atom.Embed: true, atom.Form: true, atom.Noscript: true, atom.Template: true,
	atom.Link: true, atom.Meta: true, atom.Button: true, atom.Input: true,
}

// skipped containers are site chrome, not issue content.
var skipped = map[atom.Atom]bool{atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true}

func isHeading(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.H1 || n.DataAtom == atom.H2 || n.DataAtom == atom.H3)
}

// Carve parses an issue page, splits the content on h1-h3 headings and sanitizes each section.
// Content before the first heading becomes a section titled after the page.
func Carve(page []byte) (title string, sections []model.RawSection, err error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", nil, errors.Wrap(err, "parse issue html")
	}
	strip(doc)

	title = pageTitle(doc)
	root := contentRoot(doc)
	if root == nil {
		return title, nil, ErrNoSections
	}

	c := carver{}
	c.open(title)
	c.walk(root)
	c.flush()

	if len(c.out) == 0 {
		return title, nil, ErrNoSections
	}
	return title, c.out, nil
}

type carver struct {
	out     []model.RawSection
	current *model.RawSection
	buf     bytes.Buffer
}

func (c *carver) open(title string) {
	c.flush()
	c.current = &model.RawSection{Title: title}
}

func (c *carver) flush() {
	if c.current == nil {
		return
	}
	body := strings.TrimSpace(policy.Sanitize(c.buf.String()))
	c.buf.Reset()
	if body != "" {
		c.current.HTML = body
		if c.current.Title == "" {
			c.current.Title = "Untitled"
		}
		c.out = append(c.out, *c.current)
	}
	c.current = nil
}

// walk renders whole subtrees that contain no heading, and descends into those that do.
func (c *carver) walk(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch {
		case isHeading(child):
			c.open(textOf(child))
		case child.Type == html.ElementNode && skipped[child.DataAtom]:
		case child.Type == html.ElementNode && containsHeading(child):
			c.walk(child)
		case child.Type == html.TextNode && strings.TrimSpace(child.Data) == "":
		case child.Type == html.ElementNode || child.Type == html.TextNode:
			if c.current == nil {
				c.current = &model.RawSection{}
			}
			_ = html.Render(&c.buf, child)
		}
	}
}

func containsHeading(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isHeading(c) || (c.Type == html.ElementNode && containsHeading(c)) {
			return true
		}
	}
	return false
}

// contentRoot prefers <article>, then <main>, then <body>.
func contentRoot(doc *html.Node) *html.Node {
	for _, a := range []atom.Atom{atom.Article, atom.Main, atom.Body} {
		if n := find(doc, a); n != nil {
			return n
		}
	}
	return nil
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

func pageTitle(doc *html.Node) string {
	if t := find(doc, atom.Title); t != nil {
		if s := textOf(t); s != "" {
			return s
		}
	}
	if h := find(doc, atom.H1); h != nil {
		return textOf(h)
	}
	return ""
}

// strip removes comments and dropped elements in place.
func strip(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode || (c.Type == html.ElementNode && dropped[c.DataAtom]) {
			n.RemoveChild(c)
		} else {
			strip(c)
		}
		c = next
	}
}

// Sanitize returns fragment reduced to the allowlisted elements and attributes. Used for
// markup from any source other than Carve.
func Sanitize(fragment string) string {
	return policy.Sanitize(fragment)
}
