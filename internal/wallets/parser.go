package wallets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// lineRe matches holder-list lines such as
//
//	1. 34xp4vRoCGJym3xR7yCVPFHoCNxv4Twseo | 248,598 BTC | 1.25%
var lineRe = regexp.MustCompile(`(\d+)\.?\s+([A-Za-z0-9]+)\s+\|\s+([\d,]+(?:\.\d+)?)\s+(?:BTC|DOGE|LTC)\s+\|\s+([\d.]+)%`)

// linePrefixRe strips editor line-number prefixes like "8→" that show up in
// scraped files.
var linePrefixRe = regexp.MustCompile(`^\s*\d+→`)

var walletFile = map[model.Coin]string{
	model.CoinBTC:  "top_100_bitcoin_wallets.txt",
	model.CoinDOGE: "top_100_dogecoin_wallets.txt",
	model.CoinLTC:  "top_100_litecoin_wallets.txt",
}

// Parser reads ranked holder lists from a data directory.
type Parser struct {
	dir    string
	logger *zap.Logger
}

func NewParser(dir string, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{dir: dir, logger: logger}
}

// ParseAll reads the holder list for every coin. A missing file yields an
// empty list for that coin, not an error.
func (p *Parser) ParseAll() (map[model.Coin][]model.TrackedWallet, error) {
	out := make(map[model.Coin][]model.TrackedWallet, len(walletFile))
	for _, coin := range model.Coins() {
		wallets, err := p.ParseCoin(coin)
		if err != nil {
			return nil, err
		}
		out[coin] = wallets
	}
	return out, nil
}

// ParseCoin reads one coin's holder list.
func (p *Parser) ParseCoin(coin model.Coin) ([]model.TrackedWallet, error) {
	name, ok := walletFile[coin]
	if !ok {
		return nil, fmt.Errorf("no wallet file mapped for coin %q", coin)
	}
	path := filepath.Join(p.dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Warn("wallet list missing", zap.String("coin", string(coin)), zap.String("path", path))
			return nil, nil
		}
		return nil, fmt.Errorf("read wallet list: %w", err)
	}

	var wallets []model.TrackedWallet
	for _, line := range strings.Split(string(data), "\n") {
		line = linePrefixRe.ReplaceAllString(line, "")

		match := lineRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		rank, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		address := match[2]

		if err := ValidateAddress(address, coin); err != nil {
			p.logger.Warn("skipping invalid wallet address",
				zap.String("coin", string(coin)),
				zap.Int("rank", rank),
				zap.String("address", address),
				zap.Error(err))
			continue
		}

		balance, _ := strconv.ParseFloat(strings.ReplaceAll(match[3], ",", ""), 64)
		percentage, _ := strconv.ParseFloat(match[4], 64)

		wallets = append(wallets, model.TrackedWallet{
			Address:    address,
			Coin:       coin,
			Rank:       rank,
			Balance:    balance,
			Percentage: percentage,
		})
	}

	p.logger.Info("parsed wallet list",
		zap.String("coin", string(coin)),
		zap.Int("wallets", len(wallets)))
	return wallets, nil
}
