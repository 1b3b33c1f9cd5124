package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/xuzinann/whale-monitor/internal/model"
)

func TestCurrentPriceCachesAndServesStale(t *testing.T) {
	var calls atomic.Int64
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"bitcoin": {"usd": 104000.5}}`))
	}))
	defer srv.Close()

	c := NewClient(nil)
	c.base = srv.URL
	ctx := context.Background()

	price, ok := c.CurrentPrice(ctx, model.CoinBTC)
	if !ok || price != 104000.5 {
		t.Fatalf("price = %v, %v", price, ok)
	}

	// Second lookup hits the cache, not the API.
	if _, ok := c.CurrentPrice(ctx, model.CoinBTC); !ok {
		t.Fatal("cached lookup failed")
	}
	if calls.Load() != 1 {
		t.Fatalf("api calls = %d, want 1", calls.Load())
	}

	// Expire the cache and break the API: the stale value is served.
	c.mu.Lock()
	entry := c.cache[model.CoinBTC]
	entry.fetchedAt = entry.fetchedAt.Add(-2 * cacheTTL)
	c.cache[model.CoinBTC] = entry
	c.mu.Unlock()
	fail.Store(true)

	price, ok = c.CurrentPrice(ctx, model.CoinBTC)
	if !ok || price != 104000.5 {
		t.Fatalf("stale price = %v, %v", price, ok)
	}
}

func TestCurrentPriceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(nil)
	c.base = srv.URL

	if _, ok := c.CurrentPrice(context.Background(), model.CoinLTC); ok {
		t.Fatal("expected no price with empty cache and failing API")
	}
}
