package exchange

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// Entry is one known exchange address.
type Entry struct {
	Address    string `json:"address"`
	Exchange   string `json:"exchange"`
	WalletType string `json:"wallet_type,omitempty"`
}

// Registry maps addresses to exchanges, keyed by coin. Read-only after
// construction.
type Registry struct {
	byCoin map[model.Coin]map[string]Entry
}

// NewRegistry builds a registry from per-coin entry lists.
func NewRegistry(entries map[model.Coin][]Entry) *Registry {
	byCoin := make(map[model.Coin]map[string]Entry, len(entries))
	for coin, list := range entries {
		lookup := make(map[string]Entry, len(list))
		for _, e := range list {
			lookup[e.Address] = e
		}
		byCoin[coin] = lookup
	}
	return &Registry{byCoin: byCoin}
}

// LoadFile reads a registry from a JSON file shaped as
// {"BTC": [{"address": ..., "exchange": ...}], ...}. A missing file yields an
// empty registry rather than an error.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(nil), nil
		}
		return nil, fmt.Errorf("read exchange file: %w", err)
	}

	raw := make(map[string][]Entry)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse exchange file: %w", err)
	}

	entries := make(map[model.Coin][]Entry, len(raw))
	for key, list := range raw {
		coin, err := model.ParseCoin(key)
		if err != nil {
			return nil, fmt.Errorf("exchange file: %w", err)
		}
		entries[coin] = list
	}
	return NewRegistry(entries), nil
}

// IsExchangeAddress reports whether the address belongs to a known exchange
// on the given coin.
func (r *Registry) IsExchangeAddress(address string, coin model.Coin) bool {
	_, ok := r.byCoin[coin][address]
	return ok
}

// ExchangeName returns the exchange name for an address, if known.
func (r *Registry) ExchangeName(address string, coin model.Coin) (string, bool) {
	e, ok := r.byCoin[coin][address]
	if !ok {
		return "", false
	}
	return e.Exchange, true
}

// Size returns the number of known addresses for a coin.
func (r *Registry) Size(coin model.Coin) int {
	return len(r.byCoin[coin])
}
