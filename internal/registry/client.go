package registry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"landreg/internal/model"
)

const (
	// DefaultEndpoint HM Land Registry public SPARQL endpoint
	DefaultEndpoint  = "https://landregistry.data.gov.uk/landregistry/sparql"
	DefaultUserAgent = "landreg/1.0"
	DefaultTimeout   = 30 * time.Second

	sparqlResultsJSON = "application/sparql-results+json"
)

// ClientOptions configures a registry Client
type ClientOptions struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool
}

// Client issues Price Paid lookups. One Client is created per run and its
// connection pool reused for every property.
type Client struct {
	endpoint  string
	userAgent string
	http      *http.Client
}

// NewClient creates a registry client with its own HTTP transport
func NewClient(opts ClientOptions) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		endpoint:  opts.Endpoint,
		userAgent: opts.UserAgent,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
	}
}

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// Lookup returns every sale recorded for the address, in the order the
// registry sent them (newest first). An empty slice means no sale was found.
func (c *Client) Lookup(ctx context.Context, postcode, doorNumber string) ([]model.LookupResult, error) {
	fail := func(status int, err error) error {
		return &LookupError{Postcode: postcode, DoorNumber: doorNumber, StatusCode: status, Err: err}
	}

	form := url.Values{}
	form.Set("query", BuildQuery(postcode, doorNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fail(0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparqlResultsJSON)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))))
	}

	var payload sparqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}

	results := make([]model.LookupResult, 0, len(payload.Results.Bindings))
	for _, b := range payload.Results.Bindings {
		val := func(key string) string {
			return b[key].Value
		}
		results = append(results, model.LookupResult{
			PAON:     val("paon"),
			SAON:     val("saon"),
			Street:   val("street"),
			Town:     val("town"),
			County:   val("county"),
			Postcode: val("postcode"),
			Amount:   val("amount"),
			Date:     val("date"),
			Category: val("category"),
		})
	}
	return results, nil
}

// CloseIdleConnections closes keep-alive connections left idle by past lookups.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
