package crawler

import (
	"context"
	"io"
	"net/http"
)

// fetchResult is the raw outcome of one HTTP fetch, before
// classification into the error taxonomy.
type fetchResult struct {
	StatusCode  int
	Location    string // Location header, only meaningful on a redirect
	ContentType string
	Body        []byte
}

// fetch issues a GET for url with userAgent applied, following
// redirects only when followRedirects is true (robots fetches follow
// redirects, target fetches do not), and enforces maxContentLength when
// positive. extra, if non-nil, merges in per-request transport options
// (Config.Request).
func fetch(ctx context.Context, client *http.Client, url, userAgent string, followRedirects bool, maxContentLength int, extra func(*http.Request)) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, &RequestError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	if extra != nil {
		extra(req)
	}

	c := client
	if !followRedirects {
		shallow := *client
		shallow.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		c = &shallow
	}

	resp, err := c.Do(req)
	if err != nil {
		return fetchResult{}, &RequestError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if maxContentLength > 0 {
		reader = io.LimitReader(resp.Body, int64(maxContentLength)+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return fetchResult{}, &RequestError{URL: url, Err: err}
	}
	if maxContentLength > 0 && len(body) > maxContentLength {
		return fetchResult{}, &RequestError{URL: url, Err: errOversizedBody}
	}

	return fetchResult{
		StatusCode:  resp.StatusCode,
		Location:    resp.Header.Get("Location"),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

var errOversizedBody = oversizedBodyError{}

type oversizedBodyError struct{}

func (oversizedBodyError) Error() string { return "response body exceeds maxContentLength" }
