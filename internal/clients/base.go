package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	maxErrorBody = 4 << 10
)

// NewHTTPClient returns the shared upstream client: bounded by timeout and traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

type Client struct {
	Name    string
	BaseURL *url.URL
	HTTP    *http.Client

	breaker *gobreaker.CircuitBreaker[*http.Response]
	log     logrus.FieldLogger
}

func NewClient(name string, baseURL string, httpClient *http.Client, log logrus.FieldLogger) *Client {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// Fail fast: config error
		panic(fmt.Sprintf("invalid %s base url %q: %v", name, baseURL, err))
	}
	c := &Client{Name: name, BaseURL: u, HTTP: httpClient, log: log.WithField("upstream", name)}
	c.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// the caller gave up; says nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return c
}

func (c *Client) url(path string) string {
	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// Do sends one request through the breaker. Transport failures, an open breaker and
// 5xx replies come back as ErrNetwork; any other response is returned to the caller.
func (c *Client) Do(ctx context.Context, method, path string, body any, headers http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", c.Name, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, err
	}
	for k, vv := range headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := middleware.GetReqID(ctx); rid != "" {
		req.Header.Set(HeaderRequestID, rid)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			msg := readMessage(resp.Body)
			resp.Body.Close()
			return nil, &domain.ServiceError{Kind: domain.ErrNetwork, Service: c.Name, Status: resp.StatusCode, Message: msg}
		}
		return resp, nil
	})
	if err == nil {
		return resp, nil
	}

	var se *domain.ServiceError
	if errors.As(err, &se) {
		return nil, se
	}
	// transport failure, deadline, or gobreaker.ErrOpenState / ErrTooManyRequests
	return nil, &domain.ServiceError{Kind: domain.ErrNetwork, Service: c.Name, Message: err.Error()}
}

// doJSON performs a call and decodes a 2xx reply into out. Non-2xx replies are
// classified: 401/403 -> ErrAuth, 404 -> ErrNotFound unless reject is set, other
// 4xx -> reject (ErrNetwork when nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, headers http.Header, reject error) error {
	resp, err := c.Do(ctx, method, path, in, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.classify(resp, reject); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ServiceError{Kind: domain.ErrNetwork, Service: c.Name, Status: resp.StatusCode, Message: "invalid response body: " + err.Error()}
	}
	return nil
}

func (c *Client) classify(resp *http.Response, reject error) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	kind := reject
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = domain.ErrAuth
	case resp.StatusCode == http.StatusNotFound && reject == nil:
		kind = domain.ErrNotFound
	case kind == nil:
		kind = domain.ErrNetwork
	}
	return &domain.ServiceError{Kind: kind, Service: c.Name, Status: resp.StatusCode, Message: readMessage(resp.Body)}
}

// readMessage pulls a human readable reason out of an error body.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
