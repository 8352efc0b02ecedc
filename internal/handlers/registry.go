// Package handlers implements the registry of (matcher, handler) pairs
// dispatched, in registration order, against a URL's response content
// type.
package handlers

import (
	"fmt"
	"strings"
)

// CrawlContext carries the information available to a Handler about one
// successfully-fetched URL.
type CrawlContext struct {
	URL         string
	ContentType string
	Body        []byte
}

// Handler inspects a CrawlContext and returns URLs it discovered there.
// A handler may suspend (block) while doing so.
type Handler func(ctx CrawlContext) ([]string, error)

// Matcher decides whether a registered Handler applies to a content type.
// Construct one with MatchAny, MatchType, or MatchTypes.
type Matcher struct {
	any   bool
	list  []string
	exact string
}

// MatchAny is the wildcard matcher "*": it matches every content type.
func MatchAny() Matcher {
	return Matcher{any: true}
}

// MatchType matches contentType values equal to t or beginning with
// t + "/" (t is a type prefix, e.g. "text" matches "text/html").
func MatchType(t string) Matcher {
	return Matcher{exact: t}
}

// MatchTypes matches only when contentType is exactly one of types.
func MatchTypes(types ...string) Matcher {
	return Matcher{list: types}
}

func (m Matcher) match(contentType string) bool {
	switch {
	case m.any:
		return true
	case m.list != nil:
		for _, t := range m.list {
			if t == contentType {
				return true
			}
		}
		return false
	default:
		return contentType == m.exact || strings.HasPrefix(contentType, m.exact+"/")
	}
}

type entry struct {
	matcher Matcher
	handler Handler
}

// Registry holds matcher/handler pairs in registration order and
// dispatches a CrawlContext against all matching handlers.
type Registry struct {
	entries []entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a (matcher, handler) pair. Registration order is
// dispatch order.
func (r *Registry) Register(m Matcher, h Handler) {
	r.entries = append(r.entries, entry{matcher: m, handler: h})
}

// HandlersError wraps the first handler failure encountered during
// Dispatch. Later handlers do not run once one fails.
type HandlersError struct {
	ContentType string
	Err         error
}

func (e *HandlersError) Error() string {
	return fmt.Sprintf("handlers: dispatch for content-type %q: %v", e.ContentType, e.Err)
}

func (e *HandlersError) Unwrap() error {
	return e.Err
}

// Dispatch runs every registered handler whose matcher matches ctx's
// content type, in registration order, concatenating their discovered
// links. If a handler fails, Dispatch stops and returns a HandlersError
// wrapping that failure; handlers registered after it do not run.
func (r *Registry) Dispatch(ctx CrawlContext) ([]string, error) {
	var links []string
	for _, e := range r.entries {
		if !e.matcher.match(ctx.ContentType) {
			continue
		}
		found, err := e.handler(ctx)
		if err != nil {
			return nil, &HandlersError{ContentType: ctx.ContentType, Err: err}
		}
		links = append(links, found...)
	}
	return links, nil
}
