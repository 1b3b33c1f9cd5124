package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xuzinann/whale-monitor/internal/model"
	"github.com/xuzinann/whale-monitor/internal/storage"
)

// Store provides Postgres persistence for transaction records and wallet
// cursors.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			tx_hash TEXT NOT NULL,
			coin TEXT NOT NULL,
			wallet_address TEXT NOT NULL,
			wallet_rank INT,
			amount_native DOUBLE PRECISION NOT NULL,
			amount_usd DOUBLE PRECISION,
			from_addresses TEXT[] NOT NULL DEFAULT '{}',
			to_addresses TEXT[] NOT NULL DEFAULT '{}',
			is_outgoing BOOLEAN NOT NULL,
			is_exchange_related BOOLEAN NOT NULL,
			exchange_name TEXT,
			block_height BIGINT NOT NULL DEFAULT 0,
			confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			detected_at TIMESTAMPTZ NOT NULL,
			chain_timestamp TIMESTAMPTZ,
			UNIQUE (tx_hash, wallet_address)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_cursors (
			wallet_address TEXT NOT NULL,
			coin TEXT NOT NULL,
			wallet_rank INT NOT NULL DEFAULT 0,
			last_block_height BIGINT NOT NULL DEFAULT 0,
			last_checked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			observed_tx_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (wallet_address, coin)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_coin_detected ON transactions (coin, detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_wallet ON transactions (wallet_address, coin)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_exchange ON transactions (is_exchange_related, detected_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) GetCursor(ctx context.Context, address string, coin model.Coin) (model.WalletCursor, bool, error) {
	var cur model.WalletCursor
	row := s.pool.QueryRow(ctx, `
		SELECT wallet_address, coin, wallet_rank, last_block_height, last_checked_at, observed_tx_count
		FROM wallet_cursors
		WHERE wallet_address = $1 AND coin = $2
	`, address, string(coin))

	err := row.Scan(&cur.Address, &cur.Coin, &cur.Rank, &cur.LastBlockHeight, &cur.LastCheckedAt, &cur.ObservedTxCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.WalletCursor{}, false, nil
		}
		return model.WalletCursor{}, false, fmt.Errorf("get cursor: %w", err)
	}
	return cur, true, nil
}

func (s *Store) TouchCursor(ctx context.Context, address string, coin model.Coin, rank int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_cursors (wallet_address, coin, wallet_rank, last_checked_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (wallet_address, coin) DO UPDATE
		SET last_checked_at = now(), wallet_rank = EXCLUDED.wallet_rank
	`, address, string(coin), rank)
	if err != nil {
		return fmt.Errorf("touch cursor: %w", err)
	}
	return nil
}

func (s *Store) AdvanceCursor(ctx context.Context, address string, coin model.Coin, height int64, rank int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_cursors (wallet_address, coin, wallet_rank, last_block_height, last_checked_at, observed_tx_count)
		VALUES ($1, $2, $3, $4, now(), 1)
		ON CONFLICT (wallet_address, coin) DO UPDATE
		SET last_block_height = GREATEST(wallet_cursors.last_block_height, EXCLUDED.last_block_height),
			observed_tx_count = wallet_cursors.observed_tx_count + 1,
			wallet_rank = EXCLUDED.wallet_rank,
			last_checked_at = now()
	`, address, string(coin), rank, height)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}

func (s *Store) InsertRecord(ctx context.Context, rec model.TransactionRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (
			tx_hash, coin, wallet_address, wallet_rank, amount_native, amount_usd,
			from_addresses, to_addresses, is_outgoing, is_exchange_related,
			exchange_name, block_height, confirmed, detected_at, chain_timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (tx_hash, wallet_address) DO NOTHING
	`,
		rec.TxHash,
		string(rec.Coin),
		rec.WalletAddress,
		rec.WalletRank,
		rec.AmountNative,
		rec.AmountUSD,
		rec.FromAddresses,
		rec.ToAddresses,
		rec.IsOutgoing,
		rec.IsExchangeRelated,
		rec.ExchangeName,
		rec.BlockHeight,
		rec.Confirmed,
		rec.DetectedAt,
		rec.ChainTimestamp,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) QueryRecords(ctx context.Context, coin model.Coin, since time.Time, limit int) ([]model.TransactionRecord, error) {
	query := `
		SELECT tx_hash, coin, wallet_address, wallet_rank, amount_native, amount_usd,
			from_addresses, to_addresses, is_outgoing, is_exchange_related,
			exchange_name, block_height, confirmed, detected_at, chain_timestamp
		FROM transactions
		WHERE detected_at > $1
	`
	args := []any{since}
	if coin != "" {
		query += ` AND coin = $2`
		args = append(args, string(coin))
	}
	query += ` ORDER BY detected_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []model.TransactionRecord
	for rows.Next() {
		var rec model.TransactionRecord
		var coinStr string
		err := rows.Scan(
			&rec.TxHash, &coinStr, &rec.WalletAddress, &rec.WalletRank,
			&rec.AmountNative, &rec.AmountUSD, &rec.FromAddresses, &rec.ToAddresses,
			&rec.IsOutgoing, &rec.IsExchangeRelated, &rec.ExchangeName,
			&rec.BlockHeight, &rec.Confirmed, &rec.DetectedAt, &rec.ChainTimestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Coin = model.Coin(coinStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) MostActive(ctx context.Context, coin model.Coin, since time.Time, limit int) ([]model.WalletActivity, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, MIN(wallet_rank) AS wallet_rank,
			COUNT(*) AS tx_count, COALESCE(SUM(amount_native), 0) AS total_volume
		FROM transactions
		WHERE coin = $1 AND detected_at > $2
		GROUP BY wallet_address
		ORDER BY tx_count DESC, wallet_rank ASC
		LIMIT $3
	`, string(coin), since, limit)
	if err != nil {
		return nil, fmt.Errorf("most active: %w", err)
	}
	defer rows.Close()

	var out []model.WalletActivity
	for rows.Next() {
		var act model.WalletActivity
		if err := rows.Scan(&act.WalletAddress, &act.WalletRank, &act.TxCount, &act.TotalVolume); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge records: %w", err)
	}
	return tag.RowsAffected(), nil
}
