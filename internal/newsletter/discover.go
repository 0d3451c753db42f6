package newsletter

import (
	"bytes"
	"net/url"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoIssue means the archive listing had no recognizable issue link.
var ErrNoIssue = errors.New("newsletter: no issue found in archive")

// Link is a discovered issue.
type Link struct {
	URL   string
	Title string
}

// latestFromFeed returns the newest item of an RSS/Atom document.
func latestFromFeed(body []byte, base *url.URL) (Link, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return Link{}, err
	}
	items := feed.Items
	if len(items) == 0 {
		return Link{}, ErrNoIssue
	}
	// Newest first; items without dates keep feed order after dated ones.
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].PublishedParsed, items[j].PublishedParsed
		if pi == nil || pj == nil {
			return pi != nil && pj == nil
		}
		return pi.After(*pj)
	})
	for _, it := range items {
		if u := resolve(base, it.Link); u != "" {
			return Link{URL: u, Title: strings.TrimSpace(it.Title)}, nil
		}
	}
	return Link{}, ErrNoIssue
}

// archivePage is what an HTML archive listing yields: an advertised feed and candidate issue links.
type archivePage struct {
	feedURL string
	links   []Link
}

// scanArchive walks an HTML listing for a feed <link> and anchors below the archive path.
// Anchors keep document order, which archives render newest first.
func scanArchive(body []byte, base *url.URL) (archivePage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return archivePage{}, errors.Wrap(err, "parse archive html")
	}

	var page archivePage
	seen := map[string]bool{}
	basePath := strings.TrimRight(base.Path, "/")

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Link:
				if page.feedURL == "" && strings.EqualFold(attr(n, "rel"), "alternate") {
					t := strings.ToLower(attr(n, "type"))
					if strings.Contains(t, "rss") || strings.Contains(t, "atom") {
						page.feedURL = resolve(base, attr(n, "href"))
					}
				}
			case atom.A:
				u := resolve(base, attr(n, "href"))
				if u != "" && !seen[u] && isIssueLink(base, basePath, u) {
					seen[u] = true
					page.links = append(page.links, Link{URL: u, Title: strings.TrimSpace(textOf(n))})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return page, nil
}

// isIssueLink accepts same-host links strictly below the archive path.
func isIssueLink(base *url.URL, basePath, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host != base.Host {
		return false
	}
	p := strings.TrimRight(u.Path, "/")
	if p == basePath || !strings.HasPrefix(p, basePath+"/") {
		return false
	}
	rest := strings.TrimPrefix(p, basePath+"/")
	return rest != "" && !strings.HasPrefix(rest, "page/") && !strings.HasPrefix(rest, "tag/")
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	u, err := base.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
