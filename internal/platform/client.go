package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/example/slotscout/internal/telemetry"
	"github.com/go-resty/resty/v2"
)

const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// TracerName enables otel spans per request when set.
	TracerName string
}

// NewClient builds the resty client an adapter uses for every outbound call.
// Each request is bounded by Timeout so one dead site cannot hang a job.
func NewClient(opts ClientOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept-Language", "id-ID,id;q=0.9,en;q=0.8")
	if opts.TracerName != "" {
		telemetry.InstrumentResty(c, opts.TracerName)
	}
	return c
}

// FetchDocument GETs path and parses the body as HTML. Non-2xx responses are
// errors.
func FetchDocument(ctx context.Context, c *resty.Client, path string, query map[string]string) (*goquery.Document, error) {
	res, err := c.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() < http.StatusOK || res.StatusCode() >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("GET %s: unexpected status %s", res.Request.URL, res.Status())
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}
