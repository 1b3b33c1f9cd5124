package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xuzinann/whale-monitor/internal/model"
)

type cursorKey struct {
	address string
	coin    model.Coin
}

type recordKey struct {
	txHash  string
	address string
}

// MemoryStore is an in-process Store used for tests and DSN-less runs.
type MemoryStore struct {
	mu      sync.RWMutex
	cursors map[cursorKey]model.WalletCursor
	records []model.TransactionRecord
	index   map[recordKey]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cursors: make(map[cursorKey]model.WalletCursor),
		index:   make(map[recordKey]struct{}),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetCursor(_ context.Context, address string, coin model.Coin) (model.WalletCursor, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.cursors[cursorKey{address, coin}]
	return cur, ok, nil
}

func (s *MemoryStore) TouchCursor(_ context.Context, address string, coin model.Coin, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cursorKey{address, coin}
	cur, ok := s.cursors[key]
	if !ok {
		cur = model.WalletCursor{Address: address, Coin: coin, Rank: rank}
	}
	cur.LastCheckedAt = time.Now().UTC()
	s.cursors[key] = cur
	return nil
}

func (s *MemoryStore) AdvanceCursor(_ context.Context, address string, coin model.Coin, height int64, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cursorKey{address, coin}
	cur, ok := s.cursors[key]
	if !ok {
		cur = model.WalletCursor{Address: address, Coin: coin}
	}
	if height > cur.LastBlockHeight {
		cur.LastBlockHeight = height
	}
	cur.Rank = rank
	cur.ObservedTxCount++
	cur.LastCheckedAt = time.Now().UTC()
	s.cursors[key] = cur
	return nil
}

func (s *MemoryStore) InsertRecord(_ context.Context, rec model.TransactionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.TxHash, rec.WalletAddress}
	if _, ok := s.index[key]; ok {
		return false, nil
	}
	s.index[key] = struct{}{}
	s.records = append(s.records, rec)
	return true, nil
}

func (s *MemoryStore) QueryRecords(_ context.Context, coin model.Coin, since time.Time, limit int) ([]model.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TransactionRecord, 0)
	for _, rec := range s.records {
		if coin != "" && rec.Coin != coin {
			continue
		}
		if !rec.DetectedAt.After(since) {
			continue
		}
		out = append(out, rec)
	}

	// Most recent first; insertion order breaks ties so repeated queries are
	// stable.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MostActive(_ context.Context, coin model.Coin, since time.Time, limit int) ([]model.WalletActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byWallet := make(map[string]*model.WalletActivity)
	for _, rec := range s.records {
		if coin != "" && rec.Coin != coin {
			continue
		}
		if !rec.DetectedAt.After(since) {
			continue
		}
		act, ok := byWallet[rec.WalletAddress]
		if !ok {
			act = &model.WalletActivity{WalletAddress: rec.WalletAddress, WalletRank: rec.WalletRank}
			byWallet[rec.WalletAddress] = act
		}
		act.TxCount++
		act.TotalVolume += rec.AmountNative
	}

	out := make([]model.WalletActivity, 0, len(byWallet))
	for _, act := range byWallet {
		out = append(out, *act)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TxCount != out[j].TxCount {
			return out[i].TxCount > out[j].TxCount
		}
		return out[i].WalletRank < out[j].WalletRank
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var purged int64
	for _, rec := range s.records {
		if rec.DetectedAt.Before(cutoff) {
			delete(s.index, recordKey{rec.TxHash, rec.WalletAddress})
			purged++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return purged, nil
}
