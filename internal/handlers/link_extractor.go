package handlers

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// NewLinkExtractor returns a Handler that parses ctx.Body as HTML and
// returns every <a href> target, resolved against ctx.URL. It is the
// crawler's reference handler for "text/html" content.
func NewLinkExtractor() Handler {
	return func(ctx CrawlContext) ([]string, error) {
		base, err := url.Parse(ctx.URL)
		if err != nil {
			return nil, err
		}
		doc, err := html.Parse(bytes.NewReader(ctx.Body))
		if err != nil {
			return nil, err
		}
		var links []string
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			if n.Type == html.ElementNode && n.Data == "a" {
				if href := attr(n, "href"); href != "" && !strings.HasPrefix(href, "#") {
					if target, err := url.Parse(href); err == nil {
						links = append(links, base.ResolveReference(target).String())
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
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
