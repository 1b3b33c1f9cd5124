package price

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xuzinann/whale-monitor/internal/model"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// cacheTTL is how long a fetched price stays fresh.
const cacheTTL = 5 * time.Minute

var geckoID = map[model.Coin]string{
	model.CoinBTC:  "bitcoin",
	model.CoinDOGE: "dogecoin",
	model.CoinLTC:  "litecoin",
}

type cachedPrice struct {
	value     float64
	fetchedAt time.Time
}

// Client looks up USD prices from CoinGecko. Lookups are best-effort: on a
// refresh failure the stale cached value is served when one exists.
type Client struct {
	base   string
	hc     *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	cache map[model.Coin]cachedPrice
}

func NewClient(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   defaultBaseURL,
		logger: logger,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: make(map[model.Coin]cachedPrice),
	}
}

// CurrentPrice returns the USD price for the coin. ok is false only when no
// price could be fetched and nothing is cached.
func (c *Client) CurrentPrice(ctx context.Context, coin model.Coin) (float64, bool) {
	c.mu.Lock()
	cached, hasCached := c.cache[coin]
	c.mu.Unlock()
	if hasCached && time.Since(cached.fetchedAt) < cacheTTL {
		return cached.value, true
	}

	price, err := c.fetch(ctx, coin)
	if err != nil {
		c.logger.Warn("price fetch failed",
			zap.Error(err),
			zap.String("coin", string(coin)),
			zap.Bool("stale_cache", hasCached))
		if hasCached {
			return cached.value, true
		}
		return 0, false
	}

	c.mu.Lock()
	c.cache[coin] = cachedPrice{value: price, fetchedAt: time.Now()}
	c.mu.Unlock()
	return price, true
}

func (c *Client) fetch(ctx context.Context, coin model.Coin) (float64, error) {
	id, ok := geckoID[coin]
	if !ok {
		return 0, fmt.Errorf("unsupported coin %q", coin)
	}

	params := url.Values{}
	params.Set("ids", id)
	params.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/simple/price?"+params.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("coingecko status=%d", resp.StatusCode)
	}

	var payload map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode price: %w", err)
	}

	entry, ok := payload[id]
	if !ok || entry.USD == 0 {
		return 0, fmt.Errorf("no usd price for %s", id)
	}
	return entry.USD, nil
}
