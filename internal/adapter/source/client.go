// Package source fetches the raw earthquake and plate-boundary documents.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/observability"
)

// DefaultMaxBytes caps a fetched document.
const DefaultMaxBytes = 256 << 20

// ErrTooLarge is returned when a document exceeds the client's size limit.
var ErrTooLarge = errors.New("source document too large")

// Client reads documents over HTTP(S) or from the local filesystem,
// depending on the location's scheme.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a source client with the given request timeout.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxBytes: DefaultMaxBytes,
		metrics:  metrics,
		logger:   logger,
	}
}

// Fetch returns the document at location. name labels the source in metrics
// and logs ("quakes" or "plates").
func (c *Client) Fetch(ctx context.Context, name, location string) ([]byte, error) {
	start := time.Now()
	body, err := c.fetch(ctx, location)
	c.metrics.SourceFetchDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceFetches.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	c.metrics.SourceFetches.WithLabelValues(name, "success").Inc()
	c.logger.Debug("source fetched", "source", name, "location", location, "bytes", len(body))
	return body, nil
}

func (c *Client) fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return c.fetchHTTP(ctx, location)
	case "file":
		return c.readFile(u.Path)
	case "":
		return c.readFile(location)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c *Client) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source error: status %d: %s", resp.StatusCode, body)
	}
	return c.readLimited(resp.Body)
}

func (c *Client) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return c.readLimited(f)
}

func (c *Client) readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.maxBytes)
	}
	return body, nil
}
