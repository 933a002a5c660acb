// Package ipfs resolves token URIs through an HTTP gateway and computes
// content identifiers for metadata documents this service publishes.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// DefaultGateway is the public gateway used when none is configured.
const DefaultGateway = "https://ipfs.io/ipfs/"

// maxMetadataSize bounds a fetched metadata document.
const maxMetadataSize = 1 << 20

// ClientConfig holds the settings needed to construct a Client.
type ClientConfig struct {
	Gateway       string
	Timeout       time.Duration
	RatePerSecond float64
}

// Client fetches JSON documents from IPFS via a gateway, or from plain
// HTTP(S) URLs.
type Client struct {
	gateway    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a gateway client. Zero values fall back to
// DefaultGateway, a 15s timeout, and no pacing.
func NewClient(cfg ClientConfig) *Client {
	gw := cfg.Gateway
	if gw == "" {
		gw = DefaultGateway
	}
	if !strings.HasSuffix(gw, "/") {
		gw += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Client{
		gateway:    gw,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// GatewayURL returns the gateway URL for a CID or CID-rooted path.
func (c *Client) GatewayURL(cidPath string) string {
	return c.gateway + strings.TrimPrefix(cidPath, "/")
}

// ResolveURI turns a token URI into a fetchable URL:
//
//	ipfs://<cid>/path    -> gateway + <cid>/path
//	ipfs://ipfs/<cid>    -> gateway + <cid>
//	http(s)://...        -> unchanged
//	<bare cid>[/path]    -> gateway + <cid>[/path]
//
// Anything else is domain.ErrInvalidInput.
func (c *Client) ResolveURI(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	switch {
	case strings.HasPrefix(uri, "ipfs://"):
		rest := strings.TrimPrefix(strings.TrimPrefix(uri, "ipfs://"), "ipfs/")
		if rest == "" {
			return "", fmt.Errorf("ipfs: %w: empty ipfs uri", domain.ErrInvalidInput)
		}
		return c.GatewayURL(rest), nil
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return uri, nil
	}
	root, _, _ := strings.Cut(uri, "/")
	if ValidCID(root) {
		return c.GatewayURL(uri), nil
	}
	return "", fmt.Errorf("ipfs: %w: unsupported token uri %q", domain.ErrInvalidInput, uri)
}

// FetchJSON resolves uri and decodes the document it points to.
func (c *Client) FetchJSON(ctx context.Context, uri string) (map[string]any, error) {
	target, err := c.ResolveURI(uri)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ipfs: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("ipfs: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs: fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize+1))
	if err != nil {
		return nil, fmt.Errorf("ipfs: read %s: %w", target, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("ipfs: fetch %s: %w", target, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("ipfs: fetch %s: %w", target, domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("ipfs: fetch %s: HTTP %d", target, resp.StatusCode)
	}
	if len(body) > maxMetadataSize {
		return nil, fmt.Errorf("ipfs: fetch %s: %w: document too large", target, domain.ErrUnexpectedResponse)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("ipfs: decode %s: %w", target, err)
	}
	return doc, nil
}

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of data in its default
// base32 form.
func ComputeCID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("ipfs: hash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// ValidCID reports whether s parses as a CID (v0 or v1).
func ValidCID(s string) bool {
	_, err := cid.Decode(s)
	return err == nil
}
