package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>City News</title>
    <item>
      <title>City Council Approves Budget</title>
      <link>https://example.com/articles/budget</link>
      <description>The council approved next year's budget.</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>Road Closure Downtown</title>
      <link>https://example.com/articles/road</link>
      <description>Main street closed for repairs.</description>
    </item>
  </channel>
</rss>`

func testDeps() Deps {
	return Deps{UserAgent: "test-agent", Timeout: 5 * time.Second}
}

func TestRSSAdapterFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("Expected configured user agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	adapter := NewRSSAdapter(testDeps())
	defer adapter.Close()

	candidates, err := adapter.Fetch(context.Background(), Config{
		Name: "city-news", URL: server.URL, Category: "news",
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.Title != "City Council Approves Budget" {
		t.Errorf("Unexpected title: %q", first.Title)
	}
	if first.SourceName != "city-news" {
		t.Errorf("Expected source 'city-news', got %q", first.SourceName)
	}
	if first.PublishedAt == nil {
		t.Error("Expected published date to be parsed")
	}

	// No pubDate must stay nil, never default to now.
	if candidates[1].PublishedAt != nil {
		t.Error("Expected missing published date to stay nil")
	}
}

func TestRSSAdapterHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewRSSAdapter(testDeps())
	defer adapter.Close()

	_, err := adapter.Fetch(context.Background(), Config{Name: "gone", URL: server.URL})
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}

	fetchErr, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("Expected *FetchError, got %T", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", fetchErr.StatusCode)
	}
	if fetchErr.Retryable() {
		t.Error("404 should not be retryable")
	}
}

func TestRSSAdapterParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a feed"))
	}))
	defer server.Close()

	adapter := NewRSSAdapter(testDeps())
	defer adapter.Close()

	_, err := adapter.Fetch(context.Background(), Config{Name: "bad", URL: server.URL})
	if err == nil {
		t.Fatal("Expected parse error")
	}
	if _, ok := err.(*FetchError); !ok {
		t.Errorf("Expected *FetchError, got %T", err)
	}
}

func TestFetchErrorClassification(t *testing.T) {
	tests := []struct {
		status      int
		retryable   bool
		rateLimited bool
	}{
		{0, true, false},
		{404, false, false},
		{403, false, true},
		{429, true, true},
		{500, true, false},
		{503, true, false},
	}

	for _, tt := range tests {
		e := &FetchError{Source: "s", StatusCode: tt.status}
		if e.Retryable() != tt.retryable {
			t.Errorf("Status %d: expected retryable=%v", tt.status, tt.retryable)
		}
		if e.RateLimited() != tt.rateLimited {
			t.Errorf("Status %d: expected rateLimited=%v", tt.status, tt.rateLimited)
		}
	}
}
