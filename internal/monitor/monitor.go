package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xuzinann/whale-monitor/internal/analyze"
	"github.com/xuzinann/whale-monitor/internal/model"
	"github.com/xuzinann/whale-monitor/internal/poller"
	"github.com/xuzinann/whale-monitor/internal/storage"
)

// Notifier delivers digests and alerts downstream. Delivery is best-effort;
// the monitor never retries a failed send.
type Notifier interface {
	SendDigest(ctx context.Context, date string, summaries map[model.Coin]model.Summary) error
	SendAlert(ctx context.Context, rec model.TransactionRecord, analysis model.Analysis) error
}

// Config holds runtime settings for the monitor loop.
type Config struct {
	// Interval between polling cycles.
	Interval time.Duration
	// DigestTime is the local wall-clock time ("15:04") the daily digest
	// goes out; empty disables it.
	DigestTime string
	// Timezone for DigestTime, e.g. "America/New_York".
	Timezone string
	// RetentionDays is how long records are kept before purging.
	RetentionDays int
	// AlertMinScore triggers an immediate alert for records scoring at or
	// above it; 0 disables alerts.
	AlertMinScore int
}

// Stats counts monitor activity since start.
type Stats struct {
	Cycles          int64
	NewTransactions int64
	FetchErrors     int64
	LastCycleAt     time.Time
}

// Monitor drives polling cycles over all tracked wallets and schedules the
// daily digest.
type Monitor struct {
	cfg       Config
	wallets   map[model.Coin][]model.TrackedWallet
	poller    *poller.Poller
	analyzer  *analyze.Analyzer
	store     storage.Store
	notifier  Notifier
	recordLog *storage.RecordLog
	logger    *zap.Logger

	mu    sync.Mutex
	stats Stats
}

func New(cfg Config, wallets map[model.Coin][]model.TrackedWallet, p *poller.Poller, a *analyze.Analyzer, store storage.Store, notifier Notifier, recordLog *storage.RecordLog, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	return &Monitor{
		cfg:       cfg,
		wallets:   wallets,
		poller:    p,
		analyzer:  a,
		store:     store,
		notifier:  notifier,
		recordLog: recordLog,
		logger:    logger,
	}
}

// RunCycle polls every tracked wallet once and returns the newly persisted
// records. Coins run in parallel; wallets within a coin are polled
// sequentially, so there is never more than one in-flight poll per wallet.
// A wallet whose fetch fails is skipped for the cycle and retried from its
// unchanged cursor next time.
func (m *Monitor) RunCycle(ctx context.Context) ([]model.TransactionRecord, error) {
	start := time.Now()

	var mu sync.Mutex
	var newRecords []model.TransactionRecord
	var fetchErrors int64

	g, ctx := errgroup.WithContext(ctx)
	for coin, wallets := range m.wallets {
		coin, wallets := coin, wallets
		g.Go(func() error {
			for _, wallet := range wallets {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				records, err := m.poller.Poll(ctx, wallet)
				if err != nil {
					m.logger.Warn("wallet check failed, skipping this cycle",
						zap.Error(err),
						zap.String("coin", string(coin)),
						zap.String("address", wallet.Address),
						zap.Int("rank", wallet.Rank))
					mu.Lock()
					fetchErrors++
					mu.Unlock()
					continue
				}

				for _, rec := range records {
					m.logRecord(rec)
				}

				mu.Lock()
				newRecords = append(newRecords, records...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return newRecords, err
	}

	if m.recordLog != nil && len(newRecords) > 0 {
		if err := m.recordLog.Append(newRecords); err != nil {
			m.logger.Warn("record log append failed", zap.Error(err))
		}
	}

	m.alertSignificant(ctx, newRecords)

	m.mu.Lock()
	m.stats.Cycles++
	m.stats.NewTransactions += int64(len(newRecords))
	m.stats.FetchErrors += fetchErrors
	m.stats.LastCycleAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("cycle complete",
		zap.Int("new_records", len(newRecords)),
		zap.Int64("fetch_errors", fetchErrors),
		zap.Duration("elapsed", time.Since(start)))
	return newRecords, nil
}

// Run executes polling cycles on the configured interval until the context
// is cancelled, sending the daily digest and purging expired records along
// the way.
func (m *Monitor) Run(ctx context.Context) error {
	loc := time.Local
	if m.cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(m.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("load timezone: %w", err)
		}
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var lastDigestDate string
	for {
		if _, err := m.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("cycle failed", zap.Error(err))
		}

		if m.shouldSendDigest(loc, lastDigestDate) {
			date := time.Now().In(loc).Format("2006-01-02")
			if err := m.SendDigest(ctx); err != nil {
				m.logger.Error("digest failed", zap.Error(err))
			} else {
				lastDigestDate = date
			}
		}

		cutoff := time.Now().AddDate(0, 0, -m.cfg.RetentionDays)
		if purged, err := m.store.PurgeOlderThan(ctx, cutoff); err != nil {
			m.logger.Warn("purge failed", zap.Error(err))
		} else if purged > 0 {
			m.logger.Info("purged expired records", zap.Int64("count", purged))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Summaries computes the activity summary for each coin over the given
// window.
func (m *Monitor) Summaries(ctx context.Context, hours int) (map[model.Coin]model.Summary, error) {
	out := make(map[model.Coin]model.Summary, len(m.wallets))
	for _, coin := range model.Coins() {
		summary, err := m.analyzer.Summarize(ctx, coin, hours)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", coin, err)
		}
		out[coin] = summary
	}
	return out, nil
}

// SendDigest computes the per-coin 24h summaries and delivers them.
func (m *Monitor) SendDigest(ctx context.Context) error {
	if m.notifier == nil {
		return nil
	}
	summaries, err := m.Summaries(ctx, 24)
	if err != nil {
		return err
	}
	date := time.Now().UTC().Format("2006-01-02")
	return m.notifier.SendDigest(ctx, date, summaries)
}

// Stats returns a copy of the monitor counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Monitor) shouldSendDigest(loc *time.Location, lastDate string) bool {
	if m.notifier == nil || m.cfg.DigestTime == "" {
		return false
	}
	now := time.Now().In(loc)
	if now.Format("2006-01-02") == lastDate {
		return false
	}
	due, err := time.ParseInLocation("15:04", m.cfg.DigestTime, loc)
	if err != nil {
		m.logger.Warn("bad digest time", zap.String("digest_time", m.cfg.DigestTime))
		return false
	}
	dueToday := time.Date(now.Year(), now.Month(), now.Day(), due.Hour(), due.Minute(), 0, 0, loc)
	return now.After(dueToday)
}

func (m *Monitor) alertSignificant(ctx context.Context, records []model.TransactionRecord) {
	if m.notifier == nil || m.cfg.AlertMinScore <= 0 {
		return
	}
	for _, rec := range records {
		analysis, err := m.analyzer.Analyze(ctx, rec)
		if err != nil {
			m.logger.Warn("alert analysis failed", zap.Error(err), zap.String("tx", rec.TxHash))
			continue
		}
		if analysis.Score < m.cfg.AlertMinScore {
			continue
		}
		if err := m.notifier.SendAlert(ctx, rec, analysis); err != nil {
			m.logger.Warn("alert delivery failed", zap.Error(err), zap.String("tx", rec.TxHash))
		}
	}
}

func (m *Monitor) logRecord(rec model.TransactionRecord) {
	direction := "received"
	if rec.IsOutgoing {
		direction = "sent"
	}
	fields := []zap.Field{
		zap.String("coin", string(rec.Coin)),
		zap.Int("rank", rec.WalletRank),
		zap.String("direction", direction),
		zap.Float64("amount", rec.AmountNative),
		zap.String("tx", rec.TxHash),
	}
	if rec.AmountUSD != nil {
		fields = append(fields, zap.Float64("usd", *rec.AmountUSD))
	}
	if rec.ExchangeName != nil {
		fields = append(fields, zap.String("exchange", *rec.ExchangeName))
	}
	m.logger.Info("new whale transaction", fields...)
}
