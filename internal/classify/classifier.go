package classify

import (
	"sort"
	"time"

	"github.com/xuzinann/whale-monitor/internal/exchange"
	"github.com/xuzinann/whale-monitor/internal/model"
)

// Classifier turns raw chain transactions into wallet-attributed records.
type Classifier struct {
	registry *exchange.Registry

	// now is swappable for tests.
	now func() time.Time
}

func NewClassifier(registry *exchange.Registry) *Classifier {
	return &Classifier{
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Classify attributes a raw transaction to the tracked wallet. The wallet is
// a sender when it appears in any input; amounts sum across every input (or
// output, for a receiver) attributed to it. Returns nil when no value is
// attributable, e.g. the wallet appears only as an unrelated co-signer.
func (c *Classifier) Classify(tx model.RawTransaction, wallet model.TrackedWallet, usdPrice *float64) *model.TransactionRecord {
	var amountBase int64
	isOutgoing := false

	for _, inp := range tx.Inputs {
		for _, addr := range inp.Addresses {
			if addr == wallet.Address {
				isOutgoing = true
				amountBase += inp.OutputValue
				break
			}
		}
	}

	if !isOutgoing {
		for _, out := range tx.Outputs {
			for _, addr := range out.Addresses {
				if addr == wallet.Address {
					amountBase += out.Value
					break
				}
			}
		}
	}

	if amountBase == 0 {
		return nil
	}
	amountNative := float64(amountBase) / model.UnitScale

	fromAddresses := collectAddresses(tx.Inputs, nil)
	toAddresses := collectAddresses(nil, tx.Outputs)

	rec := &model.TransactionRecord{
		TxHash:         tx.Hash,
		Coin:           wallet.Coin,
		WalletAddress:  wallet.Address,
		WalletRank:     wallet.Rank,
		AmountNative:   amountNative,
		FromAddresses:  fromAddresses,
		ToAddresses:    toAddresses,
		IsOutgoing:     isOutgoing,
		BlockHeight:    tx.BlockHeight,
		Confirmed:      tx.Confirmed,
		DetectedAt:     c.now(),
		ChainTimestamp: tx.Received,
	}

	if name, ok := c.matchExchange(rec, wallet); ok {
		rec.IsExchangeRelated = true
		rec.ExchangeName = &name
	}

	if usdPrice != nil {
		usd := amountNative * *usdPrice
		rec.AmountUSD = &usd
	}

	return rec
}

// matchExchange tests counterparty addresses against the registry in a fixed
// order: input addresses before output addresses, lexicographic within each
// group. The first match wins, so repeated classification of the same raw
// transaction always names the same exchange.
func (c *Classifier) matchExchange(rec *model.TransactionRecord, wallet model.TrackedWallet) (string, bool) {
	seen := map[string]struct{}{wallet.Address: {}}

	for _, group := range [][]string{rec.FromAddresses, rec.ToAddresses} {
		for _, addr := range group {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			if name, ok := c.registry.ExchangeName(addr, wallet.Coin); ok {
				return name, true
			}
		}
	}
	return "", false
}

// collectAddresses returns the sorted union of addresses across the given
// inputs or outputs.
func collectAddresses(inputs []model.TxInput, outputs []model.TxOutput) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(addrs []string) {
		for _, addr := range addrs {
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}

	for _, inp := range inputs {
		add(inp.Addresses)
	}
	for _, o := range outputs {
		add(o.Addresses)
	}

	sort.Strings(out)
	return out
}
