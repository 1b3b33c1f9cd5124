package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/xuzinann/whale-monitor/internal/analyze"
	"github.com/xuzinann/whale-monitor/internal/blockcypher"
	"github.com/xuzinann/whale-monitor/internal/classify"
	"github.com/xuzinann/whale-monitor/internal/config"
	"github.com/xuzinann/whale-monitor/internal/exchange"
	"github.com/xuzinann/whale-monitor/internal/model"
	"github.com/xuzinann/whale-monitor/internal/monitor"
	"github.com/xuzinann/whale-monitor/internal/notify"
	"github.com/xuzinann/whale-monitor/internal/poller"
	"github.com/xuzinann/whale-monitor/internal/price"
	"github.com/xuzinann/whale-monitor/internal/storage"
	"github.com/xuzinann/whale-monitor/internal/storage/postgres"
	"github.com/xuzinann/whale-monitor/internal/wallets"
)

func main() {
	root := &cobra.Command{
		Use:          "whalemon",
		Short:        "Whale wallet activity monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("database-url", "", "Postgres DSN (empty uses in-memory storage)")
	root.PersistentFlags().String("data-dir", "./data", "directory with wallet lists and exchange registry")
	root.PersistentFlags().String("record-log", "./data/transactions.jsonl", "JSONL audit trail path (empty disables)")
	root.PersistentFlags().String("blockcypher-token", "", "BlockCypher API token")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor loop",
		RunE:  runMonitor,
	}
	runCmd.Flags().String("discord-webhook-url", "", "Discord webhook for digests and alerts")
	runCmd.Flags().Duration("poll-interval", 10*time.Minute, "time between polling cycles (minimum 5m)")
	runCmd.Flags().Duration("request-interval", 20*time.Second, "minimum spacing between API requests")
	runCmd.Flags().Int("max-retries", 5, "maximum fetch retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("digest-time", "09:00", "daily digest time (HH:MM, empty disables)")
	runCmd.Flags().String("timezone", "UTC", "timezone for the digest schedule")
	runCmd.Flags().Int("retention-days", 30, "days to keep transaction records")
	runCmd.Flags().Int("alert-min-score", 0, "send an immediate alert at or above this score (0 disables)")
	root.AddCommand(runCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single polling cycle and print new transactions",
		RunE:  runCheck,
	}
	checkCmd.Flags().Duration("request-interval", 20*time.Second, "minimum spacing between API requests")
	checkCmd.Flags().Int("max-retries", 5, "maximum fetch retry attempts")
	checkCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(checkCmd)

	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Compute 24h summaries and print or send them",
		RunE:  runDigest,
	}
	digestCmd.Flags().String("discord-webhook-url", "", "Discord webhook (empty prints to stdout)")
	root.AddCommand(digestCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// components is the shared wiring used by every subcommand.
type components struct {
	cfg     config.Config
	logger  *zap.Logger
	store   storage.Store
	closer  func()
	monitor *monitor.Monitor
}

func buildComponents(ctx context.Context, cmd *cobra.Command, withNotifier bool) (*components, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	walletSets, err := loadWallets(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry, err := exchange.LoadFile(filepath.Join(cfg.DataDir, "exchanges.json"))
	if err != nil {
		return nil, fmt.Errorf("load exchange registry: %w", err)
	}

	var store storage.Store
	closer := func() {}
	if cfg.DatabaseURL != "" {
		pg, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		store = pg
		closer = pg.Close
	} else {
		logger.Warn("no database-url set, using in-memory storage")
		store = storage.NewMemoryStore()
	}

	limiter := rate.NewLimiter(rate.Every(cfg.RequestInterval), 1)
	fetcher := blockcypher.NewClient(cfg.BlockCypherToken, limiter)
	prices := price.NewClient(logger)
	classifier := classify.NewClassifier(registry)

	p := poller.NewPoller(poller.Config{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, fetcher, prices, store, classifier, logger)

	analyzer := analyze.NewAnalyzer(analyze.Config{Thresholds: cfg.Thresholds}, store, logger)

	var notifier monitor.Notifier
	if withNotifier {
		if cfg.DiscordWebhookURL != "" {
			notifier = notify.NewDiscord(cfg.DiscordWebhookURL, logger)
		} else {
			logger.Warn("no discord-webhook-url set, digests and alerts disabled")
		}
	}

	var recordLog *storage.RecordLog
	if cfg.RecordLog != "" {
		recordLog = storage.NewRecordLog(cfg.RecordLog)
	}

	m := monitor.New(monitor.Config{
		Interval:      cfg.PollInterval,
		DigestTime:    cfg.DigestTime,
		Timezone:      cfg.Timezone,
		RetentionDays: cfg.RetentionDays,
		AlertMinScore: cfg.AlertMinScore,
	}, walletSets, p, analyzer, store, notifier, recordLog, logger)

	return &components{cfg: cfg, logger: logger, store: store, closer: closer, monitor: m}, nil
}

func loadWallets(cfg config.Config, logger *zap.Logger) (map[model.Coin][]model.TrackedWallet, error) {
	parser := wallets.NewParser(cfg.DataDir, logger)
	sets, err := parser.ParseAll()
	if err != nil {
		return nil, fmt.Errorf("parse wallet lists: %w", err)
	}
	total := 0
	for coin, list := range sets {
		logger.Info("loaded wallet list", zap.String("coin", string(coin)), zap.Int("count", len(list)))
		total += len(list)
	}
	if total == 0 {
		return nil, fmt.Errorf("no tracked wallets found under %s", cfg.DataDir)
	}
	return sets, nil
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer c.closer()
	defer c.logger.Sync()

	c.logger.Info("monitor start",
		zap.Duration("poll_interval", c.cfg.PollInterval),
		zap.Duration("request_interval", c.cfg.RequestInterval),
		zap.String("digest_time", c.cfg.DigestTime),
		zap.Int("retention_days", c.cfg.RetentionDays),
		zap.Bool("postgres", c.cfg.DatabaseURL != ""),
	)

	if err := c.monitor.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	c.logger.Info("monitor stopped")
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cmd, false)
	if err != nil {
		return err
	}
	defer c.closer()
	defer c.logger.Sync()

	records, err := c.monitor.RunCycle(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no new whale transactions")
		return nil
	}
	for _, rec := range records {
		direction := "received"
		if rec.IsOutgoing {
			direction = "sent"
		}
		line := fmt.Sprintf("%s whale #%d %s %s %s",
			rec.Coin, rec.WalletRank, direction, notify.FormatAmount(rec.AmountNative), rec.Coin)
		if rec.AmountUSD != nil {
			line += fmt.Sprintf(" (%s)", notify.FormatUSD(*rec.AmountUSD))
		}
		if rec.ExchangeName != nil {
			line += fmt.Sprintf(" via %s", *rec.ExchangeName)
		}
		fmt.Println(line)
	}
	return nil
}

func runDigest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer c.closer()
	defer c.logger.Sync()

	if c.cfg.DiscordWebhookURL != "" {
		return c.monitor.SendDigest(ctx)
	}

	summaries, err := c.monitor.Summaries(ctx, 24)
	if err != nil {
		return err
	}
	for _, coin := range model.Coins() {
		s := summaries[coin]
		fmt.Printf("%s: %d txs, %s %s volume, net exchange flow %s, %d significant\n",
			coin, s.TransactionCount,
			notify.FormatAmount(s.TotalVolumeNative), coin,
			notify.FormatAmount(s.ExchangeNetFlow), s.SignificantCount)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
