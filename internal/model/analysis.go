package model

// FlowPattern describes a wallet's net directional flow over a trailing
// window.
type FlowPattern string

const (
	PatternNone         FlowPattern = ""
	PatternAccumulating FlowPattern = "accumulating"
	PatternDistributing FlowPattern = "distributing"
)

// Analysis holds the significance factors for a single record. It is derived
// per call and never stored standalone.
type Analysis struct {
	IsLarge    bool        `json:"is_large"`
	IsExchange bool        `json:"is_exchange"`
	IsUnusual  bool        `json:"is_unusual"`
	Pattern    FlowPattern `json:"pattern,omitempty"`
	Score      int         `json:"score"`
	Tags       []string    `json:"tags"`
}

// WalletActivity is one row of a most-active ranking.
type WalletActivity struct {
	WalletAddress string  `json:"wallet_address"`
	WalletRank    int     `json:"wallet_rank"`
	TxCount       int     `json:"tx_count"`
	TotalVolume   float64 `json:"total_volume"`
}

// Summary is a windowed aggregate over persisted records for one coin.
type Summary struct {
	Coin              Coin             `json:"coin"`
	WindowHours       int              `json:"window_hours"`
	TotalVolumeNative float64          `json:"total_volume_native"`
	TotalVolumeUSD    float64          `json:"total_volume_usd"`
	TransactionCount  int              `json:"transaction_count"`
	ExchangeInflow    float64          `json:"exchange_inflow"`
	ExchangeOutflow   float64          `json:"exchange_outflow"`
	ExchangeNetFlow   float64          `json:"exchange_net_flow"`
	SignificantCount  int              `json:"significant_count"`
	MostActive        []WalletActivity `json:"most_active"`
}
