package blockcypher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/xuzinann/whale-monitor/internal/model"
)

const defaultBaseURL = "https://api.blockcypher.com/v1"

// maxPageLimit is BlockCypher's per-request transaction cap.
const maxPageLimit = 50

// ErrRateLimited indicates a 429 from the API; the caller skips the wallet
// for this cycle and retries next cycle.
var ErrRateLimited = errors.New("blockcypher: rate limited")

var coinPath = map[model.Coin]string{
	model.CoinBTC:  "btc",
	model.CoinDOGE: "doge",
	model.CoinLTC:  "ltc",
}

// Client fetches address transactions from the BlockCypher REST API. All
// requests wait on the shared rate limiter, so a pool of pollers cannot
// exceed the API's request budget.
type Client struct {
	base    string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client. token may be empty (free tier). limiter is the
// shared request budget; nil disables limiting, which tests use.
func NewClient(token string, limiter *rate.Limiter) *Client {
	return &Client{
		base:    defaultBaseURL,
		token:   token,
		limiter: limiter,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiTx mirrors the subset of BlockCypher's transaction payload the
// classifier needs. The confirmed field is a timestamp; its presence is the
// confirmation flag. block_height is -1 while unconfirmed.
type apiTx struct {
	Hash        string     `json:"hash"`
	BlockHeight int64      `json:"block_height"`
	Confirmed   *time.Time `json:"confirmed"`
	Received    time.Time  `json:"received"`
	Inputs      []struct {
		Addresses   []string `json:"addresses"`
		OutputValue int64    `json:"output_value"`
	} `json:"inputs"`
	Outputs []struct {
		Addresses []string `json:"addresses"`
		Value     int64    `json:"value"`
	} `json:"outputs"`
}

type addrFullResp struct {
	Address string  `json:"address"`
	Balance int64   `json:"balance"`
	TXs     []apiTx `json:"txs"`
}

// AddressTransactions returns up to limit recent transactions for the
// address, most recent first.
func (c *Client) AddressTransactions(ctx context.Context, address string, coin model.Coin, limit int) ([]model.RawTransaction, error) {
	path, ok := coinPath[coin]
	if !ok {
		return nil, fmt.Errorf("unsupported coin %q", coin)
	}
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	var resp addrFullResp
	endpoint := fmt.Sprintf("/%s/main/addrs/%s/full", path, address)
	if err := c.getJSON(ctx, endpoint, params, &resp); err != nil {
		return nil, err
	}

	out := make([]model.RawTransaction, 0, len(resp.TXs))
	for _, tx := range resp.TXs {
		out = append(out, toRawTransaction(tx))
	}
	return out, nil
}

// TransactionsSince returns transactions with block height strictly greater
// than sinceBlock. BlockCypher has no server-side height filter on the
// address endpoint, so the filter is applied client-side over the most
// recent page.
func (c *Client) TransactionsSince(ctx context.Context, address string, coin model.Coin, sinceBlock int64) ([]model.RawTransaction, error) {
	all, err := c.AddressTransactions(ctx, address, coin, maxPageLimit)
	if err != nil {
		return nil, err
	}

	out := make([]model.RawTransaction, 0, len(all))
	for _, tx := range all {
		if tx.BlockHeight > sinceBlock {
			out = append(out, tx)
		}
	}
	return out, nil
}

// AddressBalance returns the address balance in native units.
func (c *Client) AddressBalance(ctx context.Context, address string, coin model.Coin) (float64, error) {
	path, ok := coinPath[coin]
	if !ok {
		return 0, fmt.Errorf("unsupported coin %q", coin)
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	endpoint := fmt.Sprintf("/%s/main/addrs/%s/balance", path, address)
	if err := c.getJSON(ctx, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return float64(resp.Balance) / model.UnitScale, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}

	u := c.base + endpoint
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("blockcypher request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("blockcypher %s status=%d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toRawTransaction(tx apiTx) model.RawTransaction {
	raw := model.RawTransaction{
		Hash:      tx.Hash,
		Confirmed: tx.Confirmed != nil,
		Received:  tx.Received,
	}
	if tx.BlockHeight > 0 {
		raw.BlockHeight = tx.BlockHeight
	}
	raw.Inputs = make([]model.TxInput, 0, len(tx.Inputs))
	for _, inp := range tx.Inputs {
		raw.Inputs = append(raw.Inputs, model.TxInput{Addresses: inp.Addresses, OutputValue: inp.OutputValue})
	}
	raw.Outputs = make([]model.TxOutput, 0, len(tx.Outputs))
	for _, o := range tx.Outputs {
		raw.Outputs = append(raw.Outputs, model.TxOutput{Addresses: o.Addresses, Value: o.Value})
	}
	return raw
}
