package crawler

import (
	"fmt"

	"crawlkit/internal/handlers"
	"crawlkit/internal/queue"
)

// RobotsNotAllowedError is raised when robots policy disallows a URL,
// or the robots fetch returned 500 with server-error-ignoring off.
type RobotsNotAllowedError struct {
	URL string
}

func (e *RobotsNotAllowedError) Error() string {
	return fmt.Sprintf("crawler: %s disallowed by robots.txt", e.URL)
}

// HTTPError is raised when the target responds with status >= 400.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("crawler: %s returned status %d", e.URL, e.StatusCode)
}

// RequestError is raised on a transport-level failure: DNS, connect,
// TLS, read, or an oversized body.
type RequestError struct {
	URL string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("crawler: request to %s failed: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// classify maps a pipeline error to its queue.ErrorCode tag.
// Unrecognized errors become queue.ErrOther.
func classify(err error) queue.ErrorCode {
	switch err.(type) {
	case *RobotsNotAllowedError:
		return queue.ErrRobotsNotAllowed
	case *HTTPError:
		return queue.ErrHTTP
	case *RequestError:
		return queue.ErrRequest
	case *handlers.HandlersError:
		return queue.ErrHandlers
	default:
		return queue.ErrOther
	}
}
