package poller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xuzinann/whale-monitor/internal/classify"
	"github.com/xuzinann/whale-monitor/internal/model"
	"github.com/xuzinann/whale-monitor/internal/storage"
)

// bootstrapLimit is how many transactions are fetched the first time a
// wallet is ever checked. Deliberately 1: a whale's full history predating
// monitoring would otherwise flood the store on first contact.
const bootstrapLimit = 1

// Fetcher is the external capability for pulling raw transactions.
type Fetcher interface {
	// AddressTransactions returns up to limit recent transactions for the
	// address, most recent first.
	AddressTransactions(ctx context.Context, address string, coin model.Coin, limit int) ([]model.RawTransaction, error)
	// TransactionsSince returns transactions with block height strictly
	// greater than sinceBlock.
	TransactionsSince(ctx context.Context, address string, coin model.Coin, sinceBlock int64) ([]model.RawTransaction, error)
}

// PriceSource is the external capability for USD prices. Lookups are
// best-effort: ok is false when no price is available.
type PriceSource interface {
	CurrentPrice(ctx context.Context, coin model.Coin) (price float64, ok bool)
}

// Config holds runtime settings for the poller.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Poller detects new transfers for tracked wallets and persists them.
type Poller struct {
	cfg        Config
	fetcher    Fetcher
	prices     PriceSource
	store      storage.Store
	classifier *classify.Classifier
	logger     *zap.Logger
}

func NewPoller(cfg Config, fetcher Fetcher, prices PriceSource, store storage.Store, classifier *classify.Classifier, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:        cfg,
		fetcher:    fetcher,
		prices:     prices,
		store:      store,
		classifier: classifier,
		logger:     logger,
	}
}

// Poll checks one wallet for transfers newer than its cursor and returns the
// records that were newly persisted. A fetch failure returns an error with
// no state mutated; the next cycle retries from the unchanged cursor.
//
// The cursor is advanced only after the corresponding record insert has
// succeeded (or turned out to be an already-known duplicate), so a crash
// mid-poll never leaves the cursor past an unpersisted record.
func (p *Poller) Poll(ctx context.Context, wallet model.TrackedWallet) ([]model.TransactionRecord, error) {
	cur, _, err := p.store.GetCursor(ctx, wallet.Address, wallet.Coin)
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	height := cur.LastBlockHeight

	raw, err := p.fetchSince(ctx, wallet, height)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	// Cursor rows are created lazily on the first successful poll; the
	// last-checked time is refreshed even when nothing new arrived.
	if err := p.store.TouchCursor(ctx, wallet.Address, wallet.Coin, wallet.Rank); err != nil {
		return nil, fmt.Errorf("touch cursor: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// Fetchers return most recent first. Process oldest first: the cursor
	// advances as each record lands, and must never sit above a block whose
	// records are still unpersisted when a mid-batch insert fails.
	sort.SliceStable(raw, func(i, j int) bool {
		return raw[i].BlockHeight < raw[j].BlockHeight
	})

	var usdPrice *float64
	if price, ok := p.prices.CurrentPrice(ctx, wallet.Coin); ok {
		usdPrice = &price
	} else {
		p.logger.Warn("price unavailable, amount_usd will be empty",
			zap.String("coin", string(wallet.Coin)))
	}

	var newRecords []model.TransactionRecord
	for _, tx := range raw {
		rec := p.classifier.Classify(tx, wallet, usdPrice)
		if rec == nil {
			// Self-transfer or unattributable value; not an error.
			continue
		}

		inserted, err := p.store.InsertRecord(ctx, *rec)
		if err != nil {
			return newRecords, fmt.Errorf("insert record %s: %w", rec.TxHash, err)
		}
		if inserted {
			newRecords = append(newRecords, *rec)
		}

		// Advance past this block whether the record was fresh or an
		// already-known duplicate; both mean it is durably persisted.
		if tx.BlockHeight > height {
			if err := p.store.AdvanceCursor(ctx, wallet.Address, wallet.Coin, tx.BlockHeight, wallet.Rank); err != nil {
				return newRecords, fmt.Errorf("advance cursor: %w", err)
			}
			height = tx.BlockHeight
		}
	}

	return newRecords, nil
}

func (p *Poller) fetchSince(ctx context.Context, wallet model.TrackedWallet, height int64) ([]model.RawTransaction, error) {
	var raw []model.RawTransaction
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		if height == 0 {
			raw, err = p.fetcher.AddressTransactions(ctx, wallet.Address, wallet.Coin, bootstrapLimit)
		} else {
			raw, err = p.fetcher.TransactionsSince(ctx, wallet.Address, wallet.Coin, height)
		}
		if err != nil {
			p.logger.Warn("fetch failed",
				zap.Error(err),
				zap.String("coin", string(wallet.Coin)),
				zap.String("address", wallet.Address),
				zap.Int64("since", height))
		}
		return err
	})
	return raw, err
}
