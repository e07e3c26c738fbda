// Package wled is a small client for the HTTP surface of a WLED controller:
// configuration, the stored ledmap file, and the JSON state endpoint.
package wled

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"wled_mapper/core-go/internal/mapping"
)

const (
	pathConfig       = "/cfg.json"
	pathLedMapFetch  = "/edit?edit=ledmap.json"
	pathEdit         = "/edit"
	pathState        = "json/si"
	pathLEDSettings  = "/settings/leds"
	ledMapFileName   = "ledmap.json"
	ledMapFormField  = "data"
	maxResponseBytes = 1 << 20
)

var (
	// ErrNotFound matches a 404 response from the controller.
	ErrNotFound = errors.New("not found on controller")

	// ErrMalformedResponse indicates a response body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed controller response")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: controller responded %s", e.Method, e.Path, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Config describes how to reach the controller.
type Config struct {
	Scheme     string // "http" (default) | "https"
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to one controller.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient builds a client for host, which may carry a port or a scheme.
func NewClient(host string, cfg Config) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("controller host is empty")
	}
	scheme := strings.ToLower(strings.TrimSpace(cfg.Scheme))
	if scheme == "" {
		scheme = "http"
	}
	if !strings.Contains(host, "://") {
		host = scheme + "://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse controller host: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("controller host %q has no address", host)
	}
	base.Path = "/"
	base.RawQuery = ""

	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{base: base, http: hc}, nil
}

// Host returns the host[:port] the client talks to.
func (c *Client) Host() string { return c.base.Host }

// SettingsURL is the LED settings page where a written ledmap is applied.
func (c *Client) SettingsURL() string { return c.url(pathLEDSettings) }

// ControllerConfig is the subset of cfg.json the mapper reads.
type ControllerConfig struct {
	Rev []int    `json:"rev"`
	ID  Identity `json:"id"`
	HW  Hardware `json:"hw"`
}

type Identity struct {
	Name string `json:"name"`
	MDNS string `json:"mdns"`
}

type Hardware struct {
	LED LEDConfig `json:"led"`
}

type LEDConfig struct {
	Total *int     `json:"total"`
	Ins   []Output `json:"ins"`
}

// Output is one physical output segment of the controller.
type Output struct {
	Start int  `json:"start"`
	Len   int  `json:"len"`
	Order int  `json:"order"`
	Rev   bool `json:"rev"`
}

// Segment selects a range of logical positions.
type Segment struct {
	ID    int `json:"id"`
	Start int `json:"start"`
	Stop  int `json:"stop"`
	Grp   int `json:"grp"`
	Spc   int `json:"spc"`
	Of    int `json:"of"`
}

// StateRequest is the body posted to json/si.
type StateRequest struct {
	Seg  Segment `json:"seg"`
	V    bool    `json:"v"`
	Time int64   `json:"time"`
}

// FetchConfig reads cfg.json.
func (c *Client) FetchConfig(ctx context.Context) (ControllerConfig, error) {
	body, err := c.do(ctx, http.MethodGet, pathConfig, nil, "")
	if err != nil {
		return ControllerConfig{}, err
	}
	var cfg ControllerConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return ControllerConfig{}, fmt.Errorf("%w: cfg.json: %v", ErrMalformedResponse, err)
	}
	return cfg, nil
}

// FetchLedMap reads the stored ledmap.json. A controller without one answers 404.
func (c *Client) FetchLedMap(ctx context.Context) (mapping.Persisted, error) {
	body, err := c.do(ctx, http.MethodGet, pathLedMapFetch, nil, "")
	if err != nil {
		return nil, err
	}
	p, err := mapping.ParseLedMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, ledMapFileName, err)
	}
	return p, nil
}

// UploadLedMap stores p as ledmap.json through the file editor endpoint.
func (c *Client) UploadLedMap(ctx context.Context, p mapping.Persisted) error {
	payload, err := json.Marshal(mapping.LedMap{Map: p})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ledMapFormField, ledMapFileName))
	h.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(payload); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	_, err = c.do(ctx, http.MethodPost, pathEdit, &buf, mw.FormDataContentType())
	return err
}

// SetState posts a state change to json/si.
func (c *Client) SetState(ctx context.Context, req StateRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, pathState, bytes.NewReader(payload), "application/json")
	return err
}

func (c *Client) url(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String()
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	return data, nil
}
