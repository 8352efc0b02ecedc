package crawler

import "testing"

func TestIntValue_StaticResolve(t *testing.T) {
	v := StaticInt(250)
	if got := v.Resolve("http://a/"); got != 250 {
		t.Fatalf("got %d, want 250", got)
	}
	if got := v.Resolve("http://b/"); got != 250 {
		t.Fatalf("got %d, want 250 regardless of url", got)
	}
}

func TestIntValue_DynamicResolve(t *testing.T) {
	v := DynamicInt(func(url string) int {
		if url == "http://slow/" {
			return 5000
		}
		return 100
	})
	if got := v.Resolve("http://slow/"); got != 5000 {
		t.Fatalf("got %d, want 5000", got)
	}
	if got := v.Resolve("http://fast/"); got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestStringValue_StaticAndDynamic(t *testing.T) {
	s := StaticString("crawlkit/1.0")
	if got := s.Resolve("http://a/"); got != "crawlkit/1.0" {
		t.Fatalf("got %q", got)
	}

	d := DynamicString(func(url string) string { return "agent-for-" + url })
	if got := d.Resolve("x"); got != "agent-for-x" {
		t.Fatalf("got %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.ConcurrentRequestsLimit != 1 {
		t.Fatalf("expected default concurrency 1, got %d", c.ConcurrentRequestsLimit)
	}
	if !c.RobotsEnabled {
		t.Fatalf("expected robots enabled by default")
	}
	if !c.RobotsIgnoreServerError {
		t.Fatalf("expected robots server errors ignored by default")
	}
	if c.Interval.Resolve("") != 1000 {
		t.Fatalf("expected default interval 1000ms, got %d", c.Interval.Resolve(""))
	}
}
