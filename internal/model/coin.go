package model

import (
	"fmt"
	"strings"
)

// Coin identifies one of the monitored UTXO chains.
type Coin string

const (
	CoinBTC  Coin = "BTC"
	CoinDOGE Coin = "DOGE"
	CoinLTC  Coin = "LTC"
)

// UnitScale is the number of base units (satoshis) per native coin.
// All three supported chains use the same 1e8 scale.
const UnitScale = 1e8

// Coins lists all supported coins in a fixed order.
func Coins() []Coin {
	return []Coin{CoinBTC, CoinDOGE, CoinLTC}
}

// ParseCoin parses a coin symbol, case-insensitively.
func ParseCoin(s string) (Coin, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(CoinBTC):
		return CoinBTC, nil
	case string(CoinDOGE):
		return CoinDOGE, nil
	case string(CoinLTC):
		return CoinLTC, nil
	default:
		return "", fmt.Errorf("unsupported coin %q", s)
	}
}
