package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// summarizeLimit bounds the record scan for one summary window.
const summarizeLimit = 10000

// mostActiveLimit caps the most-active wallet ranking in summaries.
const mostActiveLimit = 5

// Summarize aggregates the window's records for one coin. An empty window
// yields a zero-valued summary, never an error.
//
// SignificantCount uses the cheap large-or-exchange heuristic rather than
// the full weighted score; digests only need rough volume, and scoring every
// record would hit the store once per record for the baseline factors.
func (a *Analyzer) Summarize(ctx context.Context, coin model.Coin, hours int) (model.Summary, error) {
	summary := model.Summary{
		Coin:        coin,
		WindowHours: hours,
		MostActive:  []model.WalletActivity{},
	}

	since := a.now().Add(-time.Duration(hours) * time.Hour)
	records, err := a.store.QueryRecords(ctx, coin, since, summarizeLimit)
	if err != nil {
		return model.Summary{}, fmt.Errorf("query records: %w", err)
	}
	if len(records) == 0 {
		return summary, nil
	}

	for _, rec := range records {
		summary.TransactionCount++
		summary.TotalVolumeNative += rec.AmountNative
		if rec.AmountUSD != nil {
			summary.TotalVolumeUSD += *rec.AmountUSD
		}

		if rec.IsExchangeRelated {
			// Wallet -> exchange is inflow to the exchange; exchange ->
			// wallet is outflow from it.
			if rec.IsOutgoing {
				summary.ExchangeInflow += rec.AmountNative
			} else {
				summary.ExchangeOutflow += rec.AmountNative
			}
		}

		if a.isLarge(rec) || rec.IsExchangeRelated {
			summary.SignificantCount++
		}
	}
	summary.ExchangeNetFlow = summary.ExchangeInflow - summary.ExchangeOutflow

	active, err := a.store.MostActive(ctx, coin, since, mostActiveLimit)
	if err != nil {
		return model.Summary{}, fmt.Errorf("most active: %w", err)
	}
	if active != nil {
		summary.MostActive = active
	}

	return summary, nil
}
