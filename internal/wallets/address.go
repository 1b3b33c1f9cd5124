package wallets

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// bech32 prefixes by coin for segwit addresses, which are not Base58Check
// encoded.
var bech32Prefix = map[model.Coin]string{
	model.CoinBTC: "bc1",
	model.CoinLTC: "ltc1",
}

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// ValidateAddress sanity-checks a wallet address for the given coin: legacy
// addresses must pass the Base58Check checksum, segwit addresses the bech32
// charset. Scraped holder lists occasionally carry truncated or mangled
// addresses; rejecting them here beats burning API requests on them later.
func ValidateAddress(address string, coin model.Coin) error {
	if address == "" {
		return fmt.Errorf("empty address")
	}

	if prefix, ok := bech32Prefix[coin]; ok && strings.HasPrefix(strings.ToLower(address), prefix) {
		return validateBech32(address, prefix)
	}
	return validateBase58Check(address)
}

func validateBase58Check(address string) error {
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("base58 decode: %w", err)
	}
	if len(decoded) < 5 {
		return fmt.Errorf("address payload too short")
	}

	payload := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]

	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(checksum, second[:4]) {
		return fmt.Errorf("base58check checksum mismatch")
	}
	return nil
}

func validateBech32(address, prefix string) error {
	lower := strings.ToLower(address)
	if lower != address && strings.ToUpper(address) != address {
		return fmt.Errorf("bech32 address mixes case")
	}
	body := lower[len(prefix):]
	if len(body) < 6 {
		return fmt.Errorf("bech32 address too short")
	}
	for _, r := range body {
		if !strings.ContainsRune(bech32Charset, r) {
			return fmt.Errorf("bech32 address has invalid character %q", r)
		}
	}
	return nil
}
