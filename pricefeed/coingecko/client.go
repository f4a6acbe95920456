package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://api.coingecko.com/api/v3"
	DefaultCacheTTL = time.Minute
	// The public API allows roughly 10 requests a minute.
	DefaultRate = rate.Limit(10.0 / 60.0)
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	BaseURL  string
	APIKey   string
	Platform string
	CacheTTL time.Duration
	Rate     rate.Limit
	Burst    int
	HTTP     *http.Client
	Logger   Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Burst < 0 {
		return errors.New("config: Burst must not be negative")
	}
	return nil
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("coingecko http %d", e.StatusCode)
	}
	return fmt.Sprintf("coingecko http %d: %s", e.StatusCode, b)
}

// Client reads USD token prices from the CoinGecko simple price API. Prices
// are cached per token and requests are rate limited.
type Client struct {
	baseURL  string
	apiKey   string
	platform string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *cache.Cache
	logger   Logger
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	platform := cfg.Platform
	if platform == "" {
		platform = "ethereum"
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	limit := cfg.Rate
	if limit == 0 {
		limit = DefaultRate
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 2
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:  baseURL,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		platform: platform,
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		cache:    cache.New(ttl, 2*ttl),
		logger:   cfg.Logger,
	}, nil
}

// USDPrices returns the USD price of every token CoinGecko knows. Unknown
// tokens are absent from the result.
func (c *Client) USDPrices(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	out := make(map[common.Address]decimal.Decimal, len(tokens))
	var missing []string
	for _, token := range tokens {
		key := strings.ToLower(token.Hex())
		if price, ok := c.cache.Get(key); ok {
			out[token] = price.(decimal.Decimal)
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("contract_addresses", strings.Join(missing, ","))
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/token_price/" + url.PathEscape(c.platform) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: body}
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}

	for _, token := range tokens {
		key := strings.ToLower(token.Hex())
		if _, cached := out[token]; cached {
			continue
		}
		price, ok := prices[key]["usd"]
		if !ok {
			c.logger.Debug("No fiat price for token", "token", token)
			continue
		}
		c.cache.Set(key, price, cache.DefaultExpiration)
		out[token] = price
	}
	return out, nil
}
