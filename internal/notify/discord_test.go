package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuzinann/whale-monitor/internal/model"
)

func TestFormatUSD(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1_500_000, "$1.5M"},
		{1_000_000, "$1.0M"},
		{850_000, "$850K"},
		{1_000, "$1K"},
		{45, "$45"},
		{0, "$0"},
	}
	for _, tc := range cases {
		if got := FormatUSD(tc.in); got != tc.want {
			t.Errorf("FormatUSD(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{248598.5, "248,598.50"},
		{1000, "1,000.00"},
		{20, "20.00"},
		{0.25, "0.25"},
		{-150, "-150.00"},
		{-1234.5, "-1,234.50"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in); got != tc.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSendDigestPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, nil)
	summaries := map[model.Coin]model.Summary{
		model.CoinBTC: {
			Coin:              model.CoinBTC,
			TransactionCount:  4,
			TotalVolumeUSD:    12_000_000,
			SignificantCount:  2,
			ExchangeInflow:    120,
			ExchangeOutflow:   20,
			ExchangeNetFlow:   100,
			TotalVolumeNative: 300,
			MostActive:        []model.WalletActivity{{WalletRank: 3, TxCount: 2}},
		},
	}

	if err := d.SendDigest(context.Background(), "2025-06-15", summaries); err != nil {
		t.Fatalf("send digest: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	desc := got.Embeds[0].Description
	for _, want := range []string{"BTC Whales", "2 significant moves", "$12.0M", "100.00 BTC net inflow", "Whale #3"} {
		if !strings.Contains(desc, want) {
			t.Errorf("digest missing %q:\n%s", want, desc)
		}
	}
	if !strings.Contains(got.Embeds[0].Title, "2025-06-15") {
		t.Errorf("title missing date: %q", got.Embeds[0].Title)
	}
}
