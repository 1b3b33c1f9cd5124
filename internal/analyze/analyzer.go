package analyze

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xuzinann/whale-monitor/internal/model"
	"github.com/xuzinann/whale-monitor/internal/storage"
)

// Factor weights. The score is the sum of triggered weights, capped at
// maxScore.
const (
	weightLarge    = 4
	weightExchange = 3
	weightUnusual  = 2
	weightPattern  = 1
	maxScore       = 10
)

const (
	tagLarge    = "LARGE"
	tagExchange = "EXCHANGE"
	tagUnusual  = "UNUSUAL"
)

// queryLimit bounds baseline queries against the store.
const queryLimit = 10000

// Config controls the significance factors.
type Config struct {
	Thresholds model.Thresholds

	// UnusualWindow is the recent-activity window compared against the
	// wallet's historical rate.
	UnusualWindow time.Duration
	// HistoryWindow is the lookback used to compute the historical rate.
	HistoryWindow time.Duration
	// PatternWindow is the lookback for accumulation/distribution detection.
	PatternWindow time.Duration
	// UnusualMultiplier is how far above the expected count recent activity
	// must be to count as unusual.
	UnusualMultiplier float64
	// NoiseFloor is the fraction of max(inflow, outflow) that net flow must
	// exceed before a pattern is asserted.
	NoiseFloor float64
}

// DefaultConfig returns the stock factor settings.
func DefaultConfig() Config {
	return Config{
		Thresholds:        model.DefaultThresholds(),
		UnusualWindow:     24 * time.Hour,
		HistoryWindow:     30 * 24 * time.Hour,
		PatternWindow:     7 * 24 * time.Hour,
		UnusualMultiplier: 3.0,
		NoiseFloor:        0.1,
	}
}

// Analyzer scores persisted records for significance.
type Analyzer struct {
	cfg    Config
	store  storage.Store
	logger *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewAnalyzer(cfg Config, store storage.Store, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = model.DefaultThresholds()
	}
	if cfg.UnusualWindow <= 0 {
		cfg.UnusualWindow = 24 * time.Hour
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 30 * 24 * time.Hour
	}
	if cfg.PatternWindow <= 0 {
		cfg.PatternWindow = 7 * 24 * time.Hour
	}
	if cfg.UnusualMultiplier <= 0 {
		cfg.UnusualMultiplier = 3.0
	}
	if cfg.NoiseFloor <= 0 {
		cfg.NoiseFloor = 0.1
	}
	return &Analyzer{
		cfg:    cfg,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Analyze evaluates all significance factors for one record. Factors are
// evaluated, and tags emitted, in a fixed order: large, exchange, unusual,
// pattern.
func (a *Analyzer) Analyze(ctx context.Context, rec model.TransactionRecord) (model.Analysis, error) {
	analysis := model.Analysis{
		IsLarge:    a.isLarge(rec),
		IsExchange: rec.IsExchangeRelated,
	}

	unusual, err := a.isUnusual(ctx, rec)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("unusual activity check: %w", err)
	}
	analysis.IsUnusual = unusual

	pattern, err := a.detectPattern(ctx, rec)
	if err != nil {
		return model.Analysis{}, fmt.Errorf("pattern detection: %w", err)
	}
	analysis.Pattern = pattern

	score := 0
	if analysis.IsLarge {
		score += weightLarge
		analysis.Tags = append(analysis.Tags, tagLarge)
	}
	if analysis.IsExchange {
		score += weightExchange
		analysis.Tags = append(analysis.Tags, tagExchange)
	}
	if analysis.IsUnusual {
		score += weightUnusual
		analysis.Tags = append(analysis.Tags, tagUnusual)
	}
	if analysis.Pattern != model.PatternNone {
		score += weightPattern
		analysis.Tags = append(analysis.Tags, strings.ToUpper(string(analysis.Pattern)))
	}
	if score > maxScore {
		score = maxScore
	}
	analysis.Score = score

	return analysis, nil
}

// isLarge checks the native amount against the coin threshold, or the USD
// value when available.
func (a *Analyzer) isLarge(rec model.TransactionRecord) bool {
	th, ok := a.cfg.Thresholds[rec.Coin]
	if !ok {
		return false
	}
	if th.LargeTx > 0 && rec.AmountNative >= th.LargeTx {
		return true
	}
	if rec.AmountUSD != nil && th.USD > 0 && *rec.AmountUSD >= th.USD {
		return true
	}
	return false
}

// isUnusual compares the wallet's recent record count against its 30-day
// baseline rate. Wallets with less than one day of history resolve to false.
func (a *Analyzer) isUnusual(ctx context.Context, rec model.TransactionRecord) (bool, error) {
	now := a.now()

	recent, err := a.walletRecords(ctx, rec.Coin, rec.WalletAddress, now.Add(-a.cfg.UnusualWindow))
	if err != nil {
		return false, err
	}
	recentCount := len(recent)
	if recentCount == 0 {
		return false, nil
	}

	history, err := a.walletRecords(ctx, rec.Coin, rec.WalletAddress, now.Add(-a.cfg.HistoryWindow))
	if err != nil {
		return false, err
	}
	if len(history) == 0 {
		return false, nil
	}

	// Records come back most recent first, so the oldest is last.
	firstSeen := history[len(history)-1].DetectedAt
	days := now.Sub(firstSeen).Hours() / 24
	if days < 1 {
		// Insufficient history: avoid division instability on fresh wallets.
		return false, nil
	}

	rate := float64(len(history)) / days
	expected := rate * (a.cfg.UnusualWindow.Hours() / 24)
	return float64(recentCount) > expected*a.cfg.UnusualMultiplier, nil
}

// detectPattern computes net flow over the pattern window and asserts
// accumulation or distribution only beyond the noise floor.
func (a *Analyzer) detectPattern(ctx context.Context, rec model.TransactionRecord) (model.FlowPattern, error) {
	records, err := a.walletRecords(ctx, rec.Coin, rec.WalletAddress, a.now().Add(-a.cfg.PatternWindow))
	if err != nil {
		return model.PatternNone, err
	}

	var inflow, outflow float64
	for _, r := range records {
		if r.IsOutgoing {
			outflow += r.AmountNative
		} else {
			inflow += r.AmountNative
		}
	}

	netFlow := inflow - outflow
	floor := max(inflow, outflow) * a.cfg.NoiseFloor

	abs := netFlow
	if abs < 0 {
		abs = -abs
	}
	if abs <= floor {
		return model.PatternNone, nil
	}
	if netFlow > 0 {
		return model.PatternAccumulating, nil
	}
	return model.PatternDistributing, nil
}

func (a *Analyzer) walletRecords(ctx context.Context, coin model.Coin, address string, since time.Time) ([]model.TransactionRecord, error) {
	records, err := a.store.QueryRecords(ctx, coin, since, queryLimit)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, r := range records {
		if r.WalletAddress == address {
			out = append(out, r)
		}
	}
	return out, nil
}

// ScoredRecord pairs a record with its analysis.
type ScoredRecord struct {
	Record   model.TransactionRecord `json:"record"`
	Analysis model.Analysis          `json:"analysis"`
}

// Significant returns records from the window scoring at least minScore,
// sorted by score descending. The sort is stable, preserving the
// most-recent-first order of the underlying query within equal scores.
// coin == "" means all coins.
func (a *Analyzer) Significant(ctx context.Context, coin model.Coin, hours int, minScore int) ([]ScoredRecord, error) {
	since := a.now().Add(-time.Duration(hours) * time.Hour)
	records, err := a.store.QueryRecords(ctx, coin, since, 1000)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	var out []ScoredRecord
	for _, rec := range records {
		analysis, err := a.Analyze(ctx, rec)
		if err != nil {
			return nil, err
		}
		if analysis.Score >= minScore {
			out = append(out, ScoredRecord{Record: rec, Analysis: analysis})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Analysis.Score > out[j].Analysis.Score
	})
	return out, nil
}
