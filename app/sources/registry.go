package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nordby/newswire/app/cache"
)

// maxBodySize caps response bodies at 10 MiB.
const maxBodySize = 10 << 20

// Adapter produces candidate articles from one named source. An empty
// result is not an error; network and parse failures come back as a
// typed *FetchError. Close is idempotent and always called.
type Adapter interface {
	Fetch(ctx context.Context, cfg Config) ([]CandidateArticle, error)
	Close() error
}

// Deps carries the shared collaborators an adapter may use.
type Deps struct {
	Cache     *cache.Cache
	UserAgent string
	Timeout   time.Duration
}

type constructor func(deps Deps) Adapter

// registry maps the descriptor's type string to an adapter constructor.
// Resolution happens at configuration-load time, not per fetch.
var registry = map[string]constructor{
	"rss":      func(deps Deps) Adapter { return NewRSSAdapter(deps) },
	"scrape":   func(deps Deps) Adapter { return NewScrapeAdapter(deps) },
	"calendar": func(deps Deps) Adapter { return NewCalendarAdapter(deps) },
}

// NewAdapter resolves the adapter for a source descriptor.
func NewAdapter(cfg Config, deps Deps) (Adapter, error) {
	ctor, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source type %q", cfg.Type)
	}
	return ctor(deps), nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// fetchBody performs a GET with the configured user agent and returns
// the body bytes, consulting the shared cache first to avoid redundant
// remote fetches within a cycle.
func fetchBody(ctx context.Context, client *http.Client, c *cache.Cache, sourceName, userAgent, url string) ([]byte, error) {
	key := cache.Key{Type: "feed_body", ID: url}
	if c != nil {
		if cached, ok := c.Get(key); ok {
			return cached.([]byte), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Source: sourceName, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: sourceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Source:     sourceName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := readAll(resp)
	if err != nil {
		return nil, &FetchError{Source: sourceName, Err: err}
	}

	if c != nil {
		c.Set(key, data, 5*time.Minute)
	}

	return data, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
