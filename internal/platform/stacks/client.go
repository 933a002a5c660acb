// Package stacks is the client for a Stacks node's RPC endpoints and the
// Hiro extended API: read-only calls, map entries, chain tip, balances,
// nonces, and transaction broadcast.
package stacks

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/propertyx/internal/clarity"
	"github.com/alanyoungcy/propertyx/internal/domain"
)

// ftPageLimit is the largest page the balances endpoint serves.
const ftPageLimit = 100

// ClientConfig holds the settings needed to construct a Client.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Client talks to a Stacks node through the Hiro API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Stacks API client.
//
// BaseURL is the API root, e.g. "https://api.testnet.hiro.so". A zero
// RatePerSecond disables client-side pacing.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
	}
}

// CallReadOnly evaluates a read-only contract function and returns its
// decoded result. A node-side evaluation failure is reported as an error
// carrying the node's cause.
func (c *Client) CallReadOnly(ctx context.Context, contractAddress, contractName, function, sender string, args []clarity.Value) (clarity.Value, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		h, err := clarity.SerializeHex(a)
		if err != nil {
			return nil, fmt.Errorf("stacks: call-read %s.%s::%s: argument %d: %w", contractAddress, contractName, function, i, err)
		}
		encoded[i] = h
	}

	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s",
		url.PathEscape(contractAddress), url.PathEscape(contractName), url.PathEscape(function))

	body, err := c.doJSON(ctx, http.MethodPost, path, readOnlyRequest{Sender: sender, Arguments: encoded})
	if err != nil {
		return nil, fmt.Errorf("stacks: call-read %s.%s::%s: %w", contractAddress, contractName, function, err)
	}

	var resp readOnlyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("stacks: decode call-read response: %w", err)
	}
	if !resp.Okay {
		return nil, fmt.Errorf("stacks: call-read %s.%s::%s: %w: %s", contractAddress, contractName, function, domain.ErrUnexpectedResponse, resp.Cause)
	}

	v, err := clarity.DeserializeHex(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("stacks: call-read %s.%s::%s: %w", contractAddress, contractName, function, err)
	}
	return v, nil
}

// MapEntry reads one entry of a contract data map. The result is an
// optional: none when the key is absent.
func (c *Client) MapEntry(ctx context.Context, contractAddress, contractName, mapName string, key clarity.Value) (clarity.Value, error) {
	keyHex, err := clarity.SerializeHex(key)
	if err != nil {
		return nil, fmt.Errorf("stacks: map_entry %s: key: %w", mapName, err)
	}

	path := fmt.Sprintf("/v2/map_entry/%s/%s/%s?proof=0",
		url.PathEscape(contractAddress), url.PathEscape(contractName), url.PathEscape(mapName))

	body, err := c.doJSON(ctx, http.MethodPost, path, keyHex)
	if err != nil {
		return nil, fmt.Errorf("stacks: map_entry %s.%s/%s: %w", contractAddress, contractName, mapName, err)
	}

	var resp mapEntryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("stacks: decode map_entry response: %w", err)
	}

	v, err := clarity.DeserializeHex(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("stacks: map_entry %s.%s/%s: %w", contractAddress, contractName, mapName, err)
	}
	return v, nil
}

// ChainTip returns the current Stacks block height.
func (c *Client) ChainTip(ctx context.Context) (uint64, error) {
	body, err := c.doGet(ctx, "/extended")
	if err != nil {
		return 0, fmt.Errorf("stacks: get chain tip: %w", err)
	}

	var status extendedStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return 0, fmt.Errorf("stacks: decode chain tip: %w", err)
	}
	if status.ChainTip.BlockHeight == 0 {
		return 0, fmt.Errorf("stacks: chain tip: %w: missing block_height", domain.ErrUnexpectedResponse)
	}
	return status.ChainTip.BlockHeight, nil
}

// FTBalances returns every fungible-token balance held by address,
// following pagination until the reported total is reached.
func (c *Client) FTBalances(ctx context.Context, address string) ([]domain.TokenBalance, error) {
	var out []domain.TokenBalance
	offset := 0
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(ftPageLimit))
		params.Set("offset", strconv.Itoa(offset))
		path := fmt.Sprintf("/extended/v2/addresses/%s/balances/ft?%s", url.PathEscape(address), params.Encode())

		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("stacks: get ft balances: %w", err)
		}

		var page ftBalancesPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("stacks: decode ft balances: %w", err)
		}

		for _, r := range page.Results {
			if b, ok := r.ToDomain(); ok {
				out = append(out, b)
			}
		}

		offset += len(page.Results)
		if len(page.Results) == 0 || offset >= page.Total {
			break
		}
	}
	return out, nil
}

// STXBalance returns the native balance of address in micro-STX.
func (c *Client) STXBalance(ctx context.Context, address string) (uint64, error) {
	path := fmt.Sprintf("/extended/v2/addresses/%s/balances/stx", url.PathEscape(address))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("stacks: get stx balance: %w", err)
	}

	var resp stxBalanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("stacks: decode stx balance: %w", err)
	}
	bal, err := strconv.ParseUint(resp.Balance, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stacks: stx balance %q: %w", resp.Balance, err)
	}
	return bal, nil
}

// AccountNonce returns the next nonce the account should use.
func (c *Client) AccountNonce(ctx context.Context, address string) (uint64, error) {
	path := fmt.Sprintf("/extended/v1/address/%s/nonces", url.PathEscape(address))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("stacks: get nonce: %w", err)
	}

	var resp noncesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("stacks: decode nonce: %w", err)
	}
	return resp.PossibleNextNonce, nil
}

// Broadcast submits a serialized, signed transaction and returns its
// 0x-prefixed id.
func (c *Client) Broadcast(ctx context.Context, raw []byte) (string, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/v2/transactions", "application/octet-stream", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("stacks: broadcast: %w", err)
	}

	if status == http.StatusBadRequest {
		var be broadcastError
		if json.Unmarshal(body, &be) == nil && be.Error != "" {
			return "", fmt.Errorf("stacks: broadcast: %w: %s (%s)", domain.ErrRejected, be.Error, be.Reason)
		}
	}
	if err := checkHTTPStatus(status, body); err != nil {
		return "", fmt.Errorf("stacks: broadcast: %w", err)
	}

	var txid string
	if err := json.Unmarshal(body, &txid); err != nil {
		return "", fmt.Errorf("stacks: decode broadcast response: %w", err)
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(txid, "0x")); err != nil {
		return "", fmt.Errorf("stacks: broadcast: %w: txid %q", domain.ErrUnexpectedResponse, txid)
	}
	return "0x" + strings.TrimPrefix(txid, "0x"), nil
}

// TxStatus returns the current status of a transaction.
func (c *Client) TxStatus(ctx context.Context, txID string) (domain.TxStatus, error) {
	path := "/extended/v1/tx/" + url.PathEscape(txID)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return "", fmt.Errorf("stacks: get tx %s: %w", txID, err)
	}

	var resp txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("stacks: decode tx: %w", err)
	}
	return toDomainStatus(resp.TxStatus), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends a GET request and returns the body of a 2xx response.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	body, status, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if err := checkHTTPStatus(status, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doJSON sends payload as a JSON body and returns the body of a 2xx response.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	body, status, err := c.do(ctx, method, path, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkHTTPStatus(status, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, payload io.Reader) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// checkHTTPStatus maps non-2xx status codes onto domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
