// Package client is the HTTP client other services use to read the catalog.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/mood_store/pkg/circuitbreaker"
	"github.com/fjod/mood_store/pkg/httpx"
	"github.com/fjod/mood_store/pkg/mood"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

var ErrProductNotFound = errors.New("product not found")

// ProductView is the read-only projection of a catalog product.
type ProductView struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Moods       []mood.Tag      `json:"moods"`
	Inventory   int             `json:"inventory"`
	Category    string          `json:"category"`
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
	sfg     singleflight.Group // collapses concurrent lookups of one product
}

func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cb: circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("product-service"), log, ErrProductNotFound),
	}
}

// GetProduct collapses concurrent lookups of one id into a single request.
// The shared request runs detached from the callers' cancellation with its
// own timeout, so one caller giving up does not fail the others.
func (c *Client) GetProduct(ctx context.Context, id string) (*ProductView, error) {
	ch := c.sfg.DoChan(id, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		body, err := c.get(fetchCtx, "/api/v1/products/"+url.PathEscape(id))
		if err != nil {
			return nil, err
		}
		var p ProductView
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		return &p, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		p := *res.Val.(*ProductView)
		return &p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) ListByMood(ctx context.Context, m mood.Tag) ([]ProductView, error) {
	q := url.Values{}
	if !m.IsNone() {
		q.Set("mood", m.String())
	}
	body, err := c.get(ctx, "/api/v1/products?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Products []ProductView `json:"products"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	if resp.Products == nil {
		resp.Products = []ProductView{}
	}
	return resp.Products, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if reqID := httpx.RequestIDFrom(ctx); reqID != "" {
			req.Header.Set(httpx.HeaderRequestID, reqID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("product service request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, httpx.MaxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read product service response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrProductNotFound
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("product service returned %d", resp.StatusCode)
		}
		return body, nil
	})
}
