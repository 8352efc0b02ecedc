package crawler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"crawlkit/internal/events"
	"crawlkit/internal/handlers"
	"crawlkit/internal/queue"
	"crawlkit/internal/robots"
)

// pipelineDeps bundles the collaborators one _processUrl-equivalent
// pass needs. It is deliberately narrow: the engine owns construction,
// the pipeline only consumes interfaces.
type pipelineDeps struct {
	client      *http.Client
	urlList     queue.UrlList
	robotsCache robots.Cache
	registry    *handlers.Registry
	publisher   events.Publisher
	config      Config
}

// processURL runs the per-URL crawl pipeline (robots check, fetch,
// redirect-or-dispatch, outcome) and returns the outcome UrlRecord to
// be upserted by the caller. It never returns an error for a
// classified failure; the error taxonomy tag lives on the returned
// record instead. It does return an error when enqueuing discovered
// links fails — that failure is not classified, it propagates to the
// tick loop and is fatal for that chain.
func (d *pipelineDeps) processURL(ctx context.Context, target string) (queue.UrlRecord, error) {
	d.publisher.Publish(events.Event{Kind: events.KindCrawlURL, URL: target})

	userAgent := d.config.UserAgent.Resolve(target)
	maxLen := d.config.MaxContentLength.Resolve(target)

	if d.config.RobotsEnabled {
		if err := d.checkRobots(ctx, target, userAgent); err != nil {
			return d.outcome(target, err), nil
		}
	}

	result, err := fetch(ctx, d.client, target, userAgent, false, maxLen, d.config.Request)
	if err != nil {
		return d.outcome(target, err), nil
	}
	if result.StatusCode >= 400 {
		httpErr := &HTTPError{URL: target, StatusCode: result.StatusCode}
		d.publisher.Publish(events.Event{Kind: events.KindHTTPError, URL: target, StatusCode: &result.StatusCode, ErrorMsg: httpErr.Error()})
		return d.outcome(target, httpErr), nil
	}

	var links []string
	if result.StatusCode >= 300 && result.StatusCode < 400 {
		dest := resolveLocation(target, result.Location)
		d.publisher.Publish(events.Event{Kind: events.KindRedirect, URL: target, Location: result.Location})
		links = []string{dest}
	} else {
		contentType := stripParams(result.ContentType)
		if contentType == "" {
			contentType = guessContentType(target)
		}
		found, err := d.registry.Dispatch(handlers.CrawlContext{URL: target, ContentType: contentType, Body: result.Body})
		if err != nil {
			d.publisher.Publish(events.Event{Kind: events.KindHandlersError, URL: target, ErrorMsg: err.Error()})
			return d.outcome(target, err), nil
		}
		links = found
	}

	d.publisher.Publish(events.Event{Kind: events.KindLinks, URL: target, Links: links})
	if len(links) > 0 {
		if err := enqueueLinks(ctx, d.urlList, links); err != nil {
			return queue.UrlRecord{}, err
		}
	}

	status := result.StatusCode
	rec := queue.NewSuccess(target, status)
	d.publisher.Publish(events.Event{Kind: events.KindCrawledURL, URL: target, StatusCode: &status})
	return rec, nil
}

// checkRobots fetches (or reuses a cached) robots.txt for target's
// origin and reports whether the configured user-agent may fetch it.
func (d *pipelineDeps) checkRobots(ctx context.Context, target, userAgent string) error {
	robotsURL, err := robots.URLFor(target)
	if err != nil {
		return nil // permissive: can't even form a robots URL, don't block
	}

	body, ok := d.robotsCache.Get(robotsURL)
	if !ok {
		if err := enqueueLinks(ctx, d.urlList, []string{robotsURL}); err != nil {
			return err
		}
		result, fetchErr := fetch(ctx, d.client, robotsURL, userAgent, true, 0, d.config.Request)
		switch {
		case fetchErr != nil:
			body = "" // permissive: any non-500 failure is swallowed
		case result.StatusCode == http.StatusInternalServerError:
			if !d.config.RobotsIgnoreServerError {
				return &RobotsNotAllowedError{URL: target}
			}
			body = ""
		default:
			body = string(result.Body)
		}
		d.robotsCache.Set(robotsURL, body, time.Duration(d.config.RobotsCacheTime)*time.Millisecond)
	}

	if !robots.Allowed(body, userAgent, target) {
		return &RobotsNotAllowedError{URL: target}
	}
	return nil
}

func (d *pipelineDeps) outcome(target string, err error) queue.UrlRecord {
	code := classify(err)
	var statusCode *int
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		sc := httpErr.StatusCode
		statusCode = &sc
	}
	d.publisher.Publish(events.Event{Kind: events.KindCrawledURL, URL: target, StatusCode: statusCode, ErrorCode: &code, ErrorMsg: err.Error()})
	return queue.UrlRecord{
		URL:          target,
		ErrorCode:    &code,
		ErrorMessage: err.Error(),
		StatusCode:   statusCode,
	}
}

func enqueueLinks(ctx context.Context, list queue.UrlList, links []string) error {
	records := make([]queue.UrlRecord, len(links))
	for i, l := range links {
		records[i] = queue.UrlRecord{URL: l}
	}
	return queue.InsertAll(ctx, list, records)
}

func resolveLocation(target, location string) string {
	base, err := url.Parse(target)
	if err != nil {
		return location
	}
	dest, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(dest).String()
}

// stripParams removes everything from the first ";" onward, so a
// Content-Type header's parameters never reach handler matching.
func stripParams(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}

// guessContentType falls back to the URL's extension when the
// response carried no Content-Type header.
func guessContentType(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if ext == "" {
		return ""
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return stripParams(ct)
	}
	return ""
}

