package model

import "time"

// TrackedWallet is one entry from a ranked holder list. Immutable once
// loaded; identity is (Address, Coin).
type TrackedWallet struct {
	Address    string  `json:"address"`
	Coin       Coin    `json:"coin"`
	Rank       int     `json:"rank"`
	Balance    float64 `json:"balance,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
}

// WalletCursor records how far a wallet has been observed. LastBlockHeight
// is 0 until the first confirmed transaction is seen and only ever advances
// (monotonic max).
type WalletCursor struct {
	Address         string    `json:"address"`
	Coin            Coin      `json:"coin"`
	Rank            int       `json:"rank"`
	LastBlockHeight int64     `json:"last_block_height"`
	LastCheckedAt   time.Time `json:"last_checked_at"`
	ObservedTxCount int64     `json:"observed_tx_count"`
}
