// CLAUDE:SUMMARY DOM walk extracting scripts, styles, assets, inline images and fragment links from page markup.
package scan

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/lading/pagepath"
)

// Result holds the resource references collected from one page.
type Result struct {
	Title        string
	Scripts      []string
	Styles       []string
	Assets       []string
	InlineImages []string
	Fragments    []string
}

// Scan parses markup and collects resource references. References on other
// hosts are dropped; same-host references reduce to their path (query
// preserved). Each list is deduplicated in document order.
func Scan(r io.Reader, base *url.URL) (*Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	res := &Result{}
	var scripts, styles, assets, inlineImages, fragments urlList

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if res.Title == "" {
					res.Title = strings.TrimSpace(collectText(n))
				}
			case atom.Script:
				scripts.add(resolve(base, getAttr(n, "src")))
			case atom.Link:
				if isStylesheet(getAttr(n, "rel")) {
					styles.add(resolve(base, getAttr(n, "href")))
				}
			case atom.Source:
				assets.add(resolve(base, getAttr(n, "src")))
				for _, candidate := range srcsetURLs(getAttr(n, "srcset")) {
					assets.add(resolve(base, candidate))
				}
			case atom.Video:
				assets.add(resolve(base, getAttr(n, "poster")))
			case atom.Img:
				if p := resolve(base, getAttr(n, "src")); p != "" && !pagepath.IsVideoURL(p) {
					inlineImages.add(p)
				}
			case atom.A:
				if p := resolvePathOnly(base, getAttr(n, "href")); strings.Contains(p, "/fragments/") {
					fragments.add(p)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	res.Scripts = scripts.items
	res.Styles = styles.items
	res.Assets = assets.items
	res.InlineImages = inlineImages.items
	res.Fragments = fragments.items
	return res, nil
}

// urlList accumulates paths, dropping empties and duplicates while keeping
// document order.
type urlList struct {
	items []string
	seen  map[string]bool
}

func (l *urlList) add(path string) {
	if path == "" || l.seen[path] {
		return
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	l.seen[path] = true
	l.items = append(l.items, path)
}

// resolve turns a reference into a same-host path with its query, or ""
// when the reference is empty, unparseable, non-HTTP or on another host.
func resolve(base *url.URL, ref string) string {
	abs := resolveURL(base, ref)
	if abs == nil {
		return ""
	}
	p := abs.Path
	if abs.RawQuery != "" {
		p += "?" + abs.RawQuery
	}
	return p
}

// resolvePathOnly is resolve without the query, for page-to-page links.
func resolvePathOnly(base *url.URL, ref string) string {
	abs := resolveURL(base, ref)
	if abs == nil {
		return ""
	}
	return abs.Path
}

func resolveURL(base *url.URL, ref string) *url.URL {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil
	}
	if abs.Host != base.Host {
		return nil
	}
	return abs
}

// srcsetURLs extracts the URL of each srcset candidate ("a.jpg 1x, b.jpg 2x").
func srcsetURLs(srcset string) []string {
	if strings.TrimSpace(srcset) == "" {
		return nil
	}
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

func isStylesheet(rel string) bool {
	for _, v := range strings.Fields(rel) {
		if strings.EqualFold(v, "stylesheet") {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}
