package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xuzinann/whale-monitor/internal/classify"
	"github.com/xuzinann/whale-monitor/internal/exchange"
	"github.com/xuzinann/whale-monitor/internal/model"
	"github.com/xuzinann/whale-monitor/internal/storage"
)

type fakeFetcher struct {
	txs []model.RawTransaction
	err error

	bootstrapCalls int
	sinceCalls     int
	lastLimit      int
	lastSince      int64
}

func (f *fakeFetcher) AddressTransactions(_ context.Context, _ string, _ model.Coin, limit int) ([]model.RawTransaction, error) {
	f.bootstrapCalls++
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.txs) > limit {
		return f.txs[:limit], nil
	}
	return f.txs, nil
}

func (f *fakeFetcher) TransactionsSince(_ context.Context, _ string, _ model.Coin, sinceBlock int64) ([]model.RawTransaction, error) {
	f.sinceCalls++
	f.lastSince = sinceBlock
	if f.err != nil {
		return nil, f.err
	}
	var out []model.RawTransaction
	for _, tx := range f.txs {
		if tx.BlockHeight > sinceBlock {
			out = append(out, tx)
		}
	}
	return out, nil
}

type fakePrices struct {
	price float64
	ok    bool
}

func (f fakePrices) CurrentPrice(context.Context, model.Coin) (float64, bool) {
	return f.price, f.ok
}

func rawTx(hash string, height int64, inAddr string, inValue int64, outAddr string, outValue int64) model.RawTransaction {
	return model.RawTransaction{
		Hash:        hash,
		BlockHeight: height,
		Confirmed:   height > 0,
		Received:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Inputs:      []model.TxInput{{Addresses: []string{inAddr}, OutputValue: inValue}},
		Outputs:     []model.TxOutput{{Addresses: []string{outAddr}, Value: outValue}},
	}
}

func newTestPoller(fetcher Fetcher, prices PriceSource, store storage.Store) *Poller {
	classifier := classify.NewClassifier(exchange.NewRegistry(nil))
	return NewPoller(Config{MaxRetries: 0, RetryBackoff: time.Millisecond}, fetcher, prices, store, classifier, nil)
}

func TestPollBootstrapFetchesSingleTransaction(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	wallet := model.TrackedWallet{Address: "bc1qwhale", Coin: model.CoinBTC, Rank: 1}

	fetcher := &fakeFetcher{txs: []model.RawTransaction{
		rawTx("t2", 200, "bc1qwhale", 5_00000000, "bc1qdest", 5_00000000),
		rawTx("t1", 100, "bc1qwhale", 3_00000000, "bc1qdest", 3_00000000),
	}}

	p := newTestPoller(fetcher, fakePrices{price: 100_000, ok: true}, store)
	records, err := p.Poll(ctx, wallet)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	if fetcher.bootstrapCalls != 1 || fetcher.lastLimit != 1 {
		t.Fatalf("bootstrap fetch not limited to 1: calls=%d limit=%d", fetcher.bootstrapCalls, fetcher.lastLimit)
	}
	if len(records) != 1 || records[0].TxHash != "t2" {
		t.Fatalf("records = %+v, want only t2", records)
	}
	if records[0].AmountUSD == nil || *records[0].AmountUSD != 500_000 {
		t.Fatalf("amount_usd = %v, want 500000", records[0].AmountUSD)
	}

	cur, found, err := store.GetCursor(ctx, wallet.Address, wallet.Coin)
	if err != nil || !found {
		t.Fatalf("cursor missing after poll: %v %v", found, err)
	}
	if cur.LastBlockHeight != 200 {
		t.Fatalf("cursor height = %d, want 200", cur.LastBlockHeight)
	}
	if cur.ObservedTxCount != 1 {
		t.Fatalf("observed count = %d, want 1", cur.ObservedTxCount)
	}
}

func TestPollIncrementalAndIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	wallet := model.TrackedWallet{Address: "bc1qwhale", Coin: model.CoinBTC, Rank: 1}

	fetcher := &fakeFetcher{txs: []model.RawTransaction{
		rawTx("t1", 100, "bc1qwhale", 3_00000000, "bc1qdest", 3_00000000),
	}}
	p := newTestPoller(fetcher, fakePrices{}, store)

	if _, err := p.Poll(ctx, wallet); err != nil {
		t.Fatalf("bootstrap poll: %v", err)
	}

	// New data arrives above the cursor.
	fetcher.txs = append([]model.RawTransaction{
		rawTx("t3", 300, "bc1qsender", 4_00000000, "bc1qwhale", 4_00000000),
		rawTx("t2", 200, "bc1qwhale", 2_00000000, "bc1qdest", 2_00000000),
	}, fetcher.txs...)

	records, err := p.Poll(ctx, wallet)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if fetcher.sinceCalls != 1 || fetcher.lastSince != 100 {
		t.Fatalf("incremental fetch mismatch: calls=%d since=%d", fetcher.sinceCalls, fetcher.lastSince)
	}
	if len(records) != 2 {
		t.Fatalf("got %d new records, want 2", len(records))
	}

	cur, _, _ := store.GetCursor(ctx, wallet.Address, wallet.Coin)
	if cur.LastBlockHeight != 300 {
		t.Fatalf("cursor = %d, want 300", cur.LastBlockHeight)
	}

	// Third poll with no new upstream data: zero records, cursor unchanged.
	records, err = p.Poll(ctx, wallet)
	if err != nil {
		t.Fatalf("third poll: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("idempotence violated: %+v", records)
	}
	after, _, _ := store.GetCursor(ctx, wallet.Address, wallet.Coin)
	if after.LastBlockHeight != 300 {
		t.Fatalf("cursor moved without data: %d", after.LastBlockHeight)
	}
	if after.ObservedTxCount != cur.ObservedTxCount {
		t.Fatalf("observed count moved without data: %d != %d", after.ObservedTxCount, cur.ObservedTxCount)
	}
}

func TestPollDuplicatesNotReturned(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	wallet := model.TrackedWallet{Address: "bc1qwhale", Coin: model.CoinBTC, Rank: 1}

	tx := rawTx("t1", 100, "bc1qwhale", 3_00000000, "bc1qdest", 3_00000000)
	rec := classify.NewClassifier(exchange.NewRegistry(nil)).Classify(tx, wallet, nil)
	if rec == nil {
		t.Fatal("setup classify failed")
	}
	if _, err := store.InsertRecord(ctx, *rec); err != nil {
		t.Fatalf("pre-insert: %v", err)
	}

	fetcher := &fakeFetcher{txs: []model.RawTransaction{tx}}
	p := newTestPoller(fetcher, fakePrices{}, store)

	records, err := p.Poll(ctx, wallet)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("duplicate returned as new: %+v", records)
	}

	// The duplicate still advances the cursor: the record is durably known.
	cur, _, _ := store.GetCursor(ctx, wallet.Address, wallet.Coin)
	if cur.LastBlockHeight != 100 {
		t.Fatalf("cursor = %d, want 100", cur.LastBlockHeight)
	}
}

func TestPollFetchErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	wallet := model.TrackedWallet{Address: "bc1qwhale", Coin: model.CoinBTC, Rank: 1}

	fetcher := &fakeFetcher{err: errors.New("rate limited")}
	p := newTestPoller(fetcher, fakePrices{}, store)

	if _, err := p.Poll(ctx, wallet); err == nil {
		t.Fatal("expected fetch error")
	}

	if _, found, _ := store.GetCursor(ctx, wallet.Address, wallet.Coin); found {
		t.Fatal("cursor created despite fetch failure")
	}
	records, _ := store.QueryRecords(ctx, "", time.Time{}, 0)
	if len(records) != 0 {
		t.Fatalf("records persisted despite fetch failure: %+v", records)
	}
}

// insertFailStore fails InsertRecord for one tx hash and delegates the rest.
type insertFailStore struct {
	storage.Store
	failHash string
}

func (s *insertFailStore) InsertRecord(ctx context.Context, rec model.TransactionRecord) (bool, error) {
	if rec.TxHash == s.failHash {
		return false, errors.New("insert failed")
	}
	return s.Store.InsertRecord(ctx, rec)
}

func TestPollMidBatchFailureKeepsCursorBehindLoss(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	wallet := model.TrackedWallet{Address: "bc1qwhale", Coin: model.CoinBTC, Rank: 1}

	if err := mem.AdvanceCursor(ctx, wallet.Address, wallet.Coin, 100, wallet.Rank); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	// Most recent first, as real fetchers deliver. Inserting the newer
	// record fails mid-batch.
	fetcher := &fakeFetcher{txs: []model.RawTransaction{
		rawTx("t-new", 300, "bc1qwhale", 5_00000000, "bc1qdest", 5_00000000),
		rawTx("t-old", 250, "bc1qwhale", 3_00000000, "bc1qdest", 3_00000000),
	}}
	failing := &insertFailStore{Store: mem, failHash: "t-new"}
	p := newTestPoller(fetcher, fakePrices{}, failing)

	records, err := p.Poll(ctx, wallet)
	if err == nil {
		t.Fatal("expected mid-batch insert error")
	}
	if len(records) != 1 || records[0].TxHash != "t-old" {
		t.Fatalf("records = %+v, want only t-old", records)
	}

	// The cursor may cover the persisted record at 250 but never the
	// unpersisted one at 300.
	cur, _, _ := mem.GetCursor(ctx, wallet.Address, wallet.Coin)
	if cur.LastBlockHeight >= 300 {
		t.Fatalf("cursor %d sits above unpersisted record at 300", cur.LastBlockHeight)
	}
	if cur.LastBlockHeight != 250 {
		t.Fatalf("cursor = %d, want 250", cur.LastBlockHeight)
	}

	// A healthy retry recovers the failed record instead of losing it.
	p = newTestPoller(fetcher, fakePrices{}, mem)
	records, err = p.Poll(ctx, wallet)
	if err != nil {
		t.Fatalf("retry poll: %v", err)
	}
	if len(records) != 1 || records[0].TxHash != "t-new" {
		t.Fatalf("retry records = %+v, want t-new recovered", records)
	}
	cur, _, _ = mem.GetCursor(ctx, wallet.Address, wallet.Coin)
	if cur.LastBlockHeight != 300 {
		t.Fatalf("cursor after recovery = %d, want 300", cur.LastBlockHeight)
	}
}

func TestPollCursorMonotonic(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	wallet := model.TrackedWallet{Address: "bc1qwhale", Coin: model.CoinBTC, Rank: 1}

	if err := store.AdvanceCursor(ctx, wallet.Address, wallet.Coin, 500, wallet.Rank); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	// Upstream serves nothing above the cursor height.
	fetcher := &fakeFetcher{txs: []model.RawTransaction{
		rawTx("unconfirmed", 0, "bc1qwhale", 1_00000000, "bc1qdest", 1_00000000),
	}}
	p := newTestPoller(fetcher, fakePrices{}, store)

	if _, err := p.Poll(ctx, wallet); err != nil {
		t.Fatalf("poll: %v", err)
	}

	cur, _, _ := store.GetCursor(ctx, wallet.Address, wallet.Coin)
	if cur.LastBlockHeight != 500 {
		t.Fatalf("cursor regressed: %d, want 500", cur.LastBlockHeight)
	}
}
