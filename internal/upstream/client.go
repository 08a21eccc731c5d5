// Package upstream talks to the remote product API the catalog can be synced from.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/noah-isme/presupuesto/internal/catalog"
	"github.com/noah-isme/presupuesto/internal/resilience"
)

var (
	// ErrUnauthorized is returned when the upstream rejects the configured token.
	ErrUnauthorized = errors.New("upstream: unauthorized")
	// ErrUpstream wraps any other failed upstream call.
	ErrUpstream = errors.New("upstream: request failed")
	// ErrPagination is returned when the upstream does not page as asked:
	// oversized pages, a repeated page, or more pages than MaxPages.
	ErrPagination = errors.New("upstream: inconsistent pagination")
)

const (
	maxBodyBytes    = 8 << 20
	defaultMaxPages = 1000
)

// ProductDto is a product as served by the upstream API.
type ProductDto struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// Product converts the dto into a catalog product.
func (d ProductDto) Product() catalog.Product {
	return catalog.Product{
		Code:  strings.TrimSpace(d.ID),
		Name:  strings.TrimSpace(d.Name),
		Price: d.Price,
		Stock: d.Stock,
	}
}

// Envelope is the upstream response wrapper.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// Query filters a product listing.
type Query struct {
	Page     int
	PageSize int
	Search   string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		v.Set("search", s)
	}
	return v
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	Breaker     *resilience.Breaker
	// Transport defaults to an otelhttp-instrumented http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *zerolog.Logger
	// MaxPages bounds FetchAll. Defaults to 1000.
	MaxPages int
}

// Client lists products from the upstream API.
type Client struct {
	http     resilience.HTTPClient
	baseURL  string
	token    string
	maxPages int
	logger   zerolog.Logger
	requests metric.Int64Counter
}

// NewClient builds a client for cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("upstream: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("upstream: invalid base url: %w", err)
	}
	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	requests, err := otel.Meter("presupuesto/upstream").Int64Counter(
		"upstream.requests",
		metric.WithDescription("Upstream product API calls by outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("upstream: meter: %w", err)
	}
	return &Client{
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: transport},
			Breaker:     cfg.Breaker,
			Target:      "upstream_products",
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
			MaxAttempts: attempts,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		baseURL:  base,
		token:    strings.TrimSpace(cfg.Token),
		maxPages: maxPages,
		logger:   logger,
		requests: requests,
	}, nil
}

// ListProducts fetches one page of products.
func (c *Client) ListProducts(ctx context.Context, q Query) ([]ProductDto, error) {
	endpoint := c.baseURL + "/products"
	if enc := q.values().Encode(); enc != "" {
		endpoint += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.record(ctx, "error")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.record(ctx, "unauthorized")
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.record(ctx, "status")
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var env Envelope[[]ProductDto]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		c.record(ctx, "decode")
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if !env.Success {
		c.record(ctx, "rejected")
		msg := env.Message
		if msg == "" {
			msg = "unsuccessful response"
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}
	c.record(ctx, "ok")
	return env.Data, nil
}

// FetchAll walks every page until a short page and returns the converted
// products. Products that are not valid catalog entries are dropped. A page
// larger than pageSize, a page identical to the previous one, or running past
// MaxPages fails with ErrPagination.
func (c *Client) FetchAll(ctx context.Context, pageSize int) ([]catalog.Product, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var (
		out     []catalog.Product
		dropped int
		prev    [2]string
	)
	for page := 1; ; page++ {
		if page > c.maxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrPagination, c.maxPages)
		}
		items, err := c.ListProducts(ctx, Query{Page: page, PageSize: pageSize})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(items) > pageSize {
			return nil, fmt.Errorf("%w: page %d has %d items, asked for %d", ErrPagination, page, len(items), pageSize)
		}
		if len(items) > 0 {
			bounds := [2]string{items[0].ID, items[len(items)-1].ID}
			if page > 1 && bounds == prev {
				return nil, fmt.Errorf("%w: page %d repeats page %d", ErrPagination, page, page-1)
			}
			prev = bounds
		}
		for _, dto := range items {
			p := dto.Product()
			if !p.Valid() {
				dropped++
				continue
			}
			out = append(out, p)
		}
		if len(items) < pageSize {
			break
		}
	}
	if dropped > 0 {
		c.logger.Warn().Int("dropped", dropped).Msg("upstream_products_dropped")
	}
	return out, nil
}

func (c *Client) record(ctx context.Context, outcome string) {
	c.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
