package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary for the monitoring core. Cursors are
// advanced monotonically and record inserts are idempotent on
// (tx_hash, wallet_address).
type Store interface {
	// GetCursor returns the cursor for (address, coin). found is false when
	// the wallet has never been checked.
	GetCursor(ctx context.Context, address string, coin model.Coin) (cur model.WalletCursor, found bool, err error)

	// TouchCursor creates the cursor row if missing (height 0) and updates
	// its last-checked time.
	TouchCursor(ctx context.Context, address string, coin model.Coin, rank int) error

	// AdvanceCursor raises the cursor height to max(current, height) and
	// increments the observed transaction count.
	AdvanceCursor(ctx context.Context, address string, coin model.Coin, height int64, rank int) error

	// InsertRecord persists a record. Returns false (and no error) when a
	// record with the same (tx_hash, wallet_address) already exists.
	InsertRecord(ctx context.Context, rec model.TransactionRecord) (inserted bool, err error)

	// QueryRecords returns records detected after since, most recent first.
	// coin == "" means all coins. limit <= 0 means no limit.
	QueryRecords(ctx context.Context, coin model.Coin, since time.Time, limit int) ([]model.TransactionRecord, error)

	// MostActive ranks wallets by record count within the window, ties
	// broken by wallet rank ascending.
	MostActive(ctx context.Context, coin model.Coin, since time.Time, limit int) ([]model.WalletActivity, error)

	// PurgeOlderThan deletes records detected before cutoff and reports how
	// many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
