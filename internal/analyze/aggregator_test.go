package analyze

import (
	"context"
	"testing"
	"time"

	"github.com/xuzinann/whale-monitor/internal/model"
)

func TestSummarizeEmptyWindow(t *testing.T) {
	a, _ := newTestAnalyzer(t)

	summary, err := a.Summarize(context.Background(), model.CoinBTC, 24)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.TransactionCount != 0 || summary.TotalVolumeNative != 0 || summary.SignificantCount != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
	if len(summary.MostActive) != 0 {
		t.Fatalf("expected empty most_active, got %v", summary.MostActive)
	}
	if summary.Coin != model.CoinBTC || summary.WindowHours != 24 {
		t.Fatalf("window identity not carried: %+v", summary)
	}
}

func TestSummarizeFlowsAndCounts(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()
	exchange := "Binance"

	// Wallet -> exchange: inflow to the exchange.
	toExchange := btcRecord("tx1", "bc1qa", 60, true, 2*time.Hour)
	toExchange.IsExchangeRelated = true
	toExchange.ExchangeName = &exchange
	toExchange.AmountUSD = ptrFloat(6_000_000)
	seedRecord(t, store, toExchange)

	// Exchange -> wallet: outflow from the exchange.
	fromExchange := btcRecord("tx2", "bc1qb", 10, false, 3*time.Hour)
	fromExchange.IsExchangeRelated = true
	fromExchange.ExchangeName = &exchange
	seedRecord(t, store, fromExchange)

	// Plain transfer, below all thresholds.
	seedRecord(t, store, btcRecord("tx3", "bc1qa", 2, false, 4*time.Hour))

	// Outside the window.
	seedRecord(t, store, btcRecord("tx4", "bc1qc", 500, true, 48*time.Hour))

	summary, err := a.Summarize(ctx, model.CoinBTC, 24)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	if summary.TransactionCount != 3 {
		t.Fatalf("count = %d, want 3", summary.TransactionCount)
	}
	if summary.TotalVolumeNative != 72 {
		t.Fatalf("volume = %v, want 72", summary.TotalVolumeNative)
	}
	if summary.TotalVolumeUSD != 6_000_000 {
		t.Fatalf("usd volume = %v, want 6000000", summary.TotalVolumeUSD)
	}
	if summary.ExchangeInflow != 60 || summary.ExchangeOutflow != 10 || summary.ExchangeNetFlow != 50 {
		t.Fatalf("exchange flow mismatch: %+v", summary)
	}
	// tx1 is large and exchange, tx2 is exchange only: both count once.
	if summary.SignificantCount != 2 {
		t.Fatalf("significant = %d, want 2", summary.SignificantCount)
	}

	if len(summary.MostActive) != 2 {
		t.Fatalf("most_active = %v, want 2 wallets", summary.MostActive)
	}
	if summary.MostActive[0].WalletAddress != "bc1qa" || summary.MostActive[0].TxCount != 2 {
		t.Fatalf("most_active[0] = %+v", summary.MostActive[0])
	}
	if summary.MostActive[0].TotalVolume != 62 {
		t.Fatalf("most_active[0] volume = %v, want 62", summary.MostActive[0].TotalVolume)
	}
}

func TestMostActiveTieBreakByRank(t *testing.T) {
	a, store := newTestAnalyzer(t)
	ctx := context.Background()

	high := btcRecord("t1", "bc1qrank2", 5, true, time.Hour)
	high.WalletRank = 2
	seedRecord(t, store, high)

	low := btcRecord("t2", "bc1qrank9", 5, true, time.Hour)
	low.WalletRank = 9
	seedRecord(t, store, low)

	summary, err := a.Summarize(ctx, model.CoinBTC, 24)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(summary.MostActive) != 2 {
		t.Fatalf("want 2 wallets, got %v", summary.MostActive)
	}
	// Equal counts: lower rank first.
	if summary.MostActive[0].WalletAddress != "bc1qrank2" {
		t.Fatalf("tie-break mismatch: %+v", summary.MostActive)
	}
}
