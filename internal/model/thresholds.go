package model

// CoinThresholds are the static significance thresholds for one coin.
// LargeTx is in native units, USD in dollars.
type CoinThresholds struct {
	LargeTx float64
	USD     float64
}

// Thresholds maps each coin to its large-transfer thresholds.
type Thresholds map[Coin]CoinThresholds

// DefaultThresholds returns the stock thresholds for the three monitored
// chains.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CoinBTC:  {LargeTx: 50, USD: 1_000_000},
		CoinDOGE: {LargeTx: 10_000_000, USD: 500_000},
		CoinLTC:  {LargeTx: 5_000, USD: 500_000},
	}
}
