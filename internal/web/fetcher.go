package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 1 * 1024 * 1024 // 1MB

	// TrimmedMarker ends a body that was cut at MaxResponseSize.
	TrimmedMarker = "... [response trimmed due to size]"
)

// TextFetcher retrieves the textual content of a URL.
type TextFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// NetworkError reports a failed page fetch: a transport failure, a timeout or
// a non-success status. Status is 0 when no response was received.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Fetcher is a TextFetcher backed by a colly collector.
type Fetcher struct {
	c *colly.Collector
}

func NewFetcher() *Fetcher {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		// One byte past the cap tells a trimmed body from one that fits.
		colly.MaxBodySize(MaxResponseSize+1),
	)
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 4})
	c.SetRequestTimeout(RequestTimeout)
	return &Fetcher{c: c}
}

func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", &NetworkError{URL: rawURL, Err: errors.New("url must start with http:// or https://")}
	}
	if err := ctx.Err(); err != nil {
		return "", &NetworkError{URL: rawURL, Err: err}
	}

	// A clone shares the transport but gets its own callbacks and context.
	c := f.c.Clone()
	c.Context = ctx
	// Every status reaches OnResponse; the 2xx check below is the only rule.
	c.ParseHTTPErrorResponse = true

	var (
		body   []byte
		status int
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", NextUserAgent())
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(rawURL); err != nil {
		return "", &NetworkError{URL: rawURL, Status: status, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &NetworkError{URL: rawURL, Err: err}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return "", &NetworkError{URL: rawURL, Status: status, Err: errors.New(http.StatusText(status))}
	}
	if len(body) > MaxResponseSize {
		body = append(body[:MaxResponseSize], TrimmedMarker...)
	}
	return string(body), nil
}
