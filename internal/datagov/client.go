// Package datagov is a minimal client for the data.gov.in resource API.
package datagov

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mgnregs/internal/core"
	"mgnregs/internal/log"
)

const (
	DefaultBaseURL    = "https://api.data.gov.in"
	DefaultResourceID = "ee03643a-ee4c-48c2-ac30-9f2ff26ab722"
	DefaultUserAgent  = "mgnregs-proxy"

	maxFormatBody = 500
)

// Config holds client configuration.
type Config struct {
	BaseURL    string
	ResourceID string
	State      string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client fetches MGNREGA records for one state.
type Client struct {
	endpoint  string
	state     string
	userAgent string
	http      *http.Client
	logger    *log.Logger
}

// New creates a client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ResourceID == "" {
		cfg.ResourceID = DefaultResourceID
	}
	if cfg.State == "" {
		cfg.State = core.StateName
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(30 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	return &Client{
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + "/resource/" + cfg.ResourceID,
		state:     cfg.State,
		userAgent: cfg.UserAgent,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger.WithComponent(log.ComponentUpstream),
	}
}

// NewHTTPClient returns a client with keep-alive pooling suited to repeated
// calls against a single host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// Fetch issues one GET with the given filters. The district filter is always
// sent, even when empty, unless f.Broad is set. The returned slice is never
// nil on success.
func (c *Client) Fetch(ctx context.Context, apiKey string, f core.Filter, limit int) ([]core.Record, error) {
	u := c.buildURL(apiKey, f, limit)
	c.logger.InfoContext(ctx, "Fetching upstream records",
		log.FieldOperation, log.OpFetch,
		"url", redact(u),
		log.FieldDistrict, f.District,
		log.FieldMonth, f.MonthName,
		log.FieldFinYear, f.FinYear,
		"broad", f.Broad,
		"limit", limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "json") {
		return nil, &FormatError{ContentType: contentType, Body: truncate(string(body), maxFormatBody)}
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("decode upstream body: %w", err)
	}
	return records, nil
}

func (c *Client) buildURL(apiKey string, f core.Filter, limit int) string {
	qs := url.Values{}
	qs.Set("api-key", apiKey)
	qs.Set("format", "json")
	qs.Set("limit", strconv.Itoa(limit))
	qs.Set("filters[state_name]", c.state)
	if !f.Broad {
		qs.Set("filters[district_name]", f.District)
	}
	qs.Set("filters[month]", f.MonthName)
	qs.Set("filters[fin_year]", f.FinYear)
	return c.endpoint + "?" + qs.Encode()
}

// decodeRecords extracts the records array. A missing or non-array records
// field, or a body that is valid JSON but not an object, yields an empty
// list. Numbers keep their upstream text form.
func decodeRecords(body []byte) ([]core.Record, error) {
	if !json.Valid(body) {
		return nil, errors.New("invalid JSON")
	}

	records := []core.Record{}
	var envelope struct {
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return records, nil
	}

	raw := bytes.TrimSpace(envelope.Records)
	if len(raw) == 0 || raw[0] != '[' {
		return records, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	for _, item := range items {
		var rec core.Record
		d := json.NewDecoder(bytes.NewReader(item))
		d.UseNumber()
		// Entries that are not JSON objects are dropped.
		if err := d.Decode(&rec); err != nil || rec == nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	if q.Has("api-key") {
		q.Set("api-key", "REDACTED")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
