package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"nftlend/observability/metrics"
)

var (
	// ErrNoMorePages is returned by Next on the last page of a listing.
	ErrNoMorePages = errors.New("indexer: no more pages")
	// ErrRequestFailed wraps non-2xx answers from the indexing service.
	ErrRequestFailed = errors.New("indexer: request failed")
)

// Config controls how the Client reaches the NFT indexing service.
type Config struct {
	BaseURL           string
	APIKey            string
	Chain             string
	PageSize          int
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// Client fetches NFT ownership listings from a Moralis-compatible REST API.
type Client struct {
	baseURL  *url.URL
	apiKey   string
	chain    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

// NFT is one entry of an ownership listing.
type NFT struct {
	TokenAddress common.Address
	TokenID      *big.Int
	Name         string
	Symbol       string
	Owner        common.Address
}

// NewClient constructs a Client from the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", cfg.BaseURL)
	}
	chain := strings.TrimSpace(cfg.Chain)
	if chain == "" {
		return nil, fmt.Errorf("chain is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:  parsed,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		chain:    chain,
		pageSize: cfg.PageSize,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
	}, nil
}

type nftResponse struct {
	Cursor   string      `json:"cursor"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Result   []nftRecord `json:"result"`
}

type nftRecord struct {
	TokenAddress string `json:"token_address"`
	TokenID      string `json:"token_id"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	OwnerOf      string `json:"owner_of"`
}

type versionResponse struct {
	Version string `json:"version"`
}

// WalletNFTs returns the first page of NFTs owned by owner on the configured
// chain.
func (c *Client) WalletNFTs(ctx context.Context, owner common.Address) (*Page, error) {
	if c == nil {
		return nil, fmt.Errorf("indexer client is nil")
	}
	return c.fetchPage(ctx, owner, "")
}

// Version queries the service's API version; used as the readiness probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c == nil {
		return "", fmt.Errorf("indexer client is nil")
	}
	var resp versionResponse
	if err := c.get(ctx, "web3/version", nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Version) == "" {
		return "", fmt.Errorf("indexer: empty version in probe response")
	}
	return resp.Version, nil
}

func (c *Client) fetchPage(ctx context.Context, owner common.Address, cursor string) (*Page, error) {
	query := url.Values{}
	query.Set("chain", c.chain)
	query.Set("format", "decimal")
	if c.pageSize > 0 {
		query.Set("limit", strconv.Itoa(c.pageSize))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var resp nftResponse
	err := c.get(ctx, owner.Hex()+"/nft", query, &resp)
	metrics.Indexer().RecordPage(err)
	if err != nil {
		return nil, err
	}

	items := make([]NFT, 0, len(resp.Result))
	for _, record := range resp.Result {
		item, err := record.toNFT()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	var next func(context.Context) (*Page, error)
	if resp.Cursor != "" {
		nextCursor := resp.Cursor
		next = func(ctx context.Context) (*Page, error) {
			return c.fetchPage(ctx, owner, nextCursor)
		}
	}
	return NewPage(items, next), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("indexer rate limit: %w", err)
	}

	endpoint := c.baseURL.JoinPath(path)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call indexer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: GET /%s: status %s: %s", ErrRequestFailed, path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r nftRecord) toNFT() (NFT, error) {
	if !common.IsHexAddress(r.TokenAddress) {
		return NFT{}, fmt.Errorf("indexer: invalid token address %q", r.TokenAddress)
	}
	id, ok := new(big.Int).SetString(strings.TrimSpace(r.TokenID), 10)
	if !ok || id.Sign() < 0 {
		return NFT{}, fmt.Errorf("indexer: invalid token id %q", r.TokenID)
	}
	var owner common.Address
	if r.OwnerOf != "" {
		if !common.IsHexAddress(r.OwnerOf) {
			return NFT{}, fmt.Errorf("indexer: invalid owner %q", r.OwnerOf)
		}
		owner = common.HexToAddress(r.OwnerOf)
	}
	return NFT{
		TokenAddress: common.HexToAddress(r.TokenAddress),
		TokenID:      id,
		Name:         r.Name,
		Symbol:       r.Symbol,
		Owner:        owner,
	}, nil
}
