// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package remote is a client for the map API, a small JSON-over-HTTP
// service that stores named map documents.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/httpclient"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/tracing"
)

// DefaultBeaconTimeout bounds how long a beacon request may keep running
// after the caller has moved on.
const DefaultBeaconTimeout = 10 * time.Second

// Config describes how to reach the map API.
type Config struct {
	// Address is the base URL that endpoint paths are resolved against.
	Address string

	// Retries is the number of times a failed request is retried. Beacons
	// are never retried.
	Retries int

	// Timeout applies to each individual request. Zero means no timeout.
	Timeout time.Duration

	Headers  map[string]string
	Username string
	Password string
}

// Client talks to the map API.
type Client struct {
	base     *url.URL
	client   *retryablehttp.Client
	beacon   *http.Client
	headers  map[string]string
	username string
	password string
}

// New returns a client for the API at cfg.Address.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("remote address is required")
	}
	base, err := url.Parse(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid remote address: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote address must use http or https, not %q", base.Scheme)
	}

	beacon := httpclient.New(ctx)
	beacon.Timeout = DefaultBeaconTimeout

	return &Client{
		base:     base,
		client:   httpclient.NewRetryable(ctx, cfg.Retries, cfg.Timeout),
		beacon:   beacon,
		headers:  cfg.Headers,
		username: cfg.Username,
		password: cfg.Password,
	}, nil
}

// Address returns the base URL of the API.
func (c *Client) Address() string {
	return c.base.String()
}

// Load fetches the document stored under name. The chunks are normalized to
// the canonical form. If the server has no such document the error wraps
// [durable.ErrNotFound].
func (c *Client) Load(ctx context.Context, name string) (*mapdoc.Document, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Load remote document",
		tracing.SpanAttributes(tracing.DocumentName(name)),
	)
	defer span.End()

	u := c.endpoint(LoadPath)
	u.RawQuery = url.Values{"name": {name}}.Encode()

	resp, err := c.httpRequest(ctx, http.MethodGet, u, nil, "load map")
	if err != nil {
		tracing.SetSpanError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Handled after
	case http.StatusNotFound:
		return nil, durable.NotFoundError(name)
	default:
		err := c.statusError(resp, "load map")
		tracing.SetSpanError(span, err)
		return nil, err
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid load response: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("server failed to load map %q: %s", name, body.Error)
	}
	if len(body.Data) == 0 || bytes.Equal(bytes.TrimSpace(body.Data), []byte("null")) {
		return nil, durable.NotFoundError(name)
	}

	doc, err := mapdoc.Decode(body.Data)
	if err != nil {
		tracing.SetSpanError(span, err)
		return nil, fmt.Errorf("map %q from server: %w", name, err)
	}
	return doc, nil
}

// Save stores doc under name, sending the chunks in wire form.
func (c *Client) Save(ctx context.Context, name string, doc *mapdoc.Document) error {
	ctx, span := tracing.Tracer().Start(ctx, "Save remote document",
		tracing.SpanAttributes(tracing.DocumentName(name)),
	)
	defer span.End()

	body, err := saveBody(name, doc)
	if err != nil {
		return err
	}
	span.SetAttributes(tracing.DocumentSize(len(body)))

	resp, err := c.httpRequest(ctx, http.MethodPost, c.endpoint(SavePath), body, "save map")
	if err != nil {
		tracing.SetSpanError(span, err)
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatusResponse(resp, "save map"); err != nil {
		tracing.SetSpanError(span, err)
		return err
	}
	return nil
}

// List returns the names of all documents the server holds.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.httpRequest(ctx, http.MethodGet, c.endpoint(ListPath), nil, "list maps")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, "list maps")
	}
	var body ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid list response: %w", err)
	}
	return body.Maps, nil
}

// Delete removes the document stored under name.
func (c *Client) Delete(ctx context.Context, name string) error {
	body, err := json.Marshal(DeleteRequest{Name: name})
	if err != nil {
		return err
	}
	resp, err := c.httpRequest(ctx, http.MethodPost, c.endpoint(DeletePath), body, "delete map")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return durable.NotFoundError(name)
	}
	return c.checkStatusResponse(resp, "delete map")
}

// Beacon sends a single save request for doc in the background and returns
// immediately. The request is not retried, and its outcome is only logged,
// so it is suitable for use while the caller is shutting down.
func (c *Client) Beacon(name string, doc *mapdoc.Document) {
	body, err := saveBody(name, doc)
	if err != nil {
		log.Printf("[WARN] remote: not sending beacon for %q: %s", name, err)
		return
	}
	u := c.endpoint(SavePath)

	go func() {
		// The caller's context is probably about to be cancelled, so the
		// beacon gets its own.
		ctx, cancel := context.WithTimeout(context.Background(), DefaultBeaconTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		if err != nil {
			log.Printf("[WARN] remote: failed to build beacon request: %s", err)
			return
		}
		c.decorate(req.Header)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.beacon.Do(req)
		if err != nil {
			log.Printf("[WARN] remote: beacon for %q failed: %s", name, err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		log.Printf("[DEBUG] remote: beacon for %q returned status code: %d", name, resp.StatusCode)
	}()
}

// LoadBundle fetches the read-only fallback document from [BundlePath].
func (c *Client) LoadBundle(ctx context.Context) (*mapdoc.Document, error) {
	resp, err := c.httpRequest(ctx, http.MethodGet, c.endpoint(BundlePath), nil, "load bundle")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, durable.NotFoundError(BundlePath)
	default:
		return nil, c.statusError(resp, "load bundle")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	doc, err := mapdoc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return doc, nil
}

func saveBody(name string, doc *mapdoc.Document) ([]byte, error) {
	wire, err := mapdoc.EncodeWire(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding map %q: %w", name, err)
	}
	return json.Marshal(SaveRequest{Name: name, MapData: wire})
}

func (c *Client) endpoint(path string) *url.URL {
	return c.base.JoinPath(path)
}

func (c *Client) decorate(h http.Header) {
	for k, v := range c.headers {
		h.Set(k, v)
	}
	if c.username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
		h.Set("Authorization", "Basic "+creds)
	}
}

func (c *Client) httpRequest(ctx context.Context, method string, u *url.URL, data []byte, what string) (*http.Response, error) {
	var body any
	if len(data) > 0 {
		body = data
	}

	log.Printf("[DEBUG] Executing map API request for: %q", what)

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to make %s HTTP request: %w", what, err)
	}
	c.decorate(req.Header)
	if len(data) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}

	log.Printf("[DEBUG] Map API request for %q returned status code: %d", what, resp.StatusCode)
	log.Printf("[TRACE] HTTP response headers: %s", c.headersForLog(resp.Header))
	return resp, nil
}

// checkStatusResponse handles the {success, error} envelope returned by the
// save and delete endpoints.
func (c *Client) checkStatusResponse(resp *http.Response, what string) error {
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return c.statusError(resp, what)
	}
	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty 200 response is still a success.
			return nil
		}
		return fmt.Errorf("invalid %s response: %w", what, err)
	}
	if !body.Success {
		if body.Error == "" {
			return fmt.Errorf("server failed to %s", what)
		}
		return fmt.Errorf("server failed to %s: %s", what, body.Error)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, what string) error {
	log.Printf("[DEBUG] %s, %d: %s", what, resp.StatusCode, bodyForLog(resp))
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("map API endpoint requires auth")
	case http.StatusForbidden:
		return fmt.Errorf("map API endpoint invalid auth")
	case http.StatusInternalServerError:
		return fmt.Errorf("map API internal server error")
	default:
		return fmt.Errorf("unexpected HTTP response code %d", resp.StatusCode)
	}
}
