package robots

import (
	"fmt"
	"net/url"

	"github.com/temoto/robotstxt"
)

// URLFor returns the canonical robots-URL for target: scheme + host + port
// + "/robots.txt".
func URLFor(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("robots: parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("robots: url %q has no scheme/host", target)
	}
	return fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host), nil
}

// Allowed parses body as robots.txt and reports whether userAgent may
// fetch target. An empty body (permissive fallback for a missing or
// unparseable robots.txt) always allows.
func Allowed(body string, userAgent string, target string) bool {
	if body == "" {
		return true
	}
	data, err := robotstxt.FromString(body)
	if err != nil {
		// An unparseable robots.txt is treated as permissive, matching the
		// pipeline's general robots-fetch-failure policy.
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	group := data.FindGroup(userAgent)
	return group.Test(path)
}
