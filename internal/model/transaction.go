package model

import "time"

// TxInput is one input of a raw chain transaction. OutputValue is the value
// of the spent output in base units.
type TxInput struct {
	Addresses   []string `json:"addresses"`
	OutputValue int64    `json:"output_value"`
}

// TxOutput is one output of a raw chain transaction, value in base units.
type TxOutput struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value"`
}

// RawTransaction is a chain transaction as returned by the fetch layer.
// BlockHeight is 0 for unconfirmed transactions (Confirmed false).
type RawTransaction struct {
	Hash        string     `json:"hash"`
	BlockHeight int64      `json:"block_height"`
	Confirmed   bool       `json:"confirmed"`
	Received    time.Time  `json:"received"`
	Inputs      []TxInput  `json:"inputs"`
	Outputs     []TxOutput `json:"outputs"`
}

// TransactionRecord is a classified transfer attributed to one tracked
// wallet. Identity is (TxHash, WalletAddress): the same on-chain transaction
// produces one record per tracked wallet it touches. Records are append-only.
type TransactionRecord struct {
	TxHash            string    `json:"tx_hash"`
	Coin              Coin      `json:"coin"`
	WalletAddress     string    `json:"wallet_address"`
	WalletRank        int       `json:"wallet_rank"`
	AmountNative      float64   `json:"amount_native"`
	AmountUSD         *float64  `json:"amount_usd,omitempty"`
	FromAddresses     []string  `json:"from_addresses"`
	ToAddresses       []string  `json:"to_addresses"`
	IsOutgoing        bool      `json:"is_outgoing"`
	IsExchangeRelated bool      `json:"is_exchange_related"`
	ExchangeName      *string   `json:"exchange_name,omitempty"`
	BlockHeight       int64     `json:"block_height"`
	Confirmed         bool      `json:"confirmed"`
	DetectedAt        time.Time `json:"detected_at"`
	ChainTimestamp    time.Time `json:"chain_timestamp"`
}
