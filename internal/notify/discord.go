package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// embedColor is the accent color of digest embeds.
const embedColor = 0x03b2f8

var coinEmoji = map[model.Coin]string{
	model.CoinBTC:  ":large_blue_circle:",
	model.CoinDOGE: ":yellow_circle:",
	model.CoinLTC:  ":white_circle:",
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// Discord sends whale activity digests and alerts to a Discord webhook.
type Discord struct {
	webhookURL string
	hc         *http.Client
	logger     *zap.Logger
}

func NewDiscord(webhookURL string, logger *zap.Logger) *Discord {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendDigest posts the daily whale activity digest.
func (d *Discord) SendDigest(ctx context.Context, date string, summaries map[model.Coin]model.Summary) error {
	var b strings.Builder

	for _, coin := range model.Coins() {
		summary, ok := summaries[coin]
		if !ok || summary.TransactionCount == 0 {
			continue
		}

		fmt.Fprintf(&b, "%s **%s Whales**\n", coinEmoji[coin], coin)

		if summary.SignificantCount > 0 {
			fmt.Fprintf(&b, ":rotating_light: **%d significant moves** | **%s total volume**\n",
				summary.SignificantCount, FormatUSD(summary.TotalVolumeUSD))
		} else {
			fmt.Fprintf(&b, "%d transfers | **%s total volume**\n",
				summary.TransactionCount, FormatUSD(summary.TotalVolumeUSD))
		}

		if summary.ExchangeInflow > 0 || summary.ExchangeOutflow > 0 {
			direction := "net inflow"
			net := summary.ExchangeNetFlow
			if net < 0 {
				direction = "net outflow"
				net = -net
			}
			fmt.Fprintf(&b, ":bar_chart: **Exchange flow:** %s %s %s\n", FormatAmount(net), coin, direction)
		}

		if len(summary.MostActive) > 0 {
			top := summary.MostActive[0]
			fmt.Fprintf(&b, ":zap: **Most active:** Whale #%d (%d transactions)\n", top.WalletRank, top.TxCount)
		}

		b.WriteString("\n")
	}

	if b.Len() == 0 {
		b.WriteString("No whale activity in the last 24 hours.")
	}

	return d.post(ctx, webhookPayload{Embeds: []embed{{
		Title:       fmt.Sprintf(":whale: DAILY WHALE DIGEST - %s", date),
		Description: b.String(),
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}}})
}

// SendAlert posts an immediate alert for a highly significant transfer.
func (d *Discord) SendAlert(ctx context.Context, rec model.TransactionRecord, analysis model.Analysis) error {
	direction := "received"
	if rec.IsOutgoing {
		direction = "sent"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Whale #%d %s **%s %s**", rec.WalletRank, direction, FormatAmount(rec.AmountNative), rec.Coin)
	if rec.AmountUSD != nil {
		fmt.Fprintf(&b, " (%s)", FormatUSD(*rec.AmountUSD))
	}
	if rec.ExchangeName != nil {
		fmt.Fprintf(&b, " via %s", *rec.ExchangeName)
	}
	fmt.Fprintf(&b, "\nScore: **%d/10** [%s]\n`%s`", analysis.Score, strings.Join(analysis.Tags, ", "), rec.TxHash)

	return d.post(ctx, webhookPayload{Embeds: []embed{{
		Title:       fmt.Sprintf(":rotating_light: SIGNIFICANT %s MOVE", rec.Coin),
		Description: b.String(),
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}}})
}

func (d *Discord) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.hc.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord webhook status=%d", resp.StatusCode)
	}
	return nil
}

// FormatUSD renders a dollar amount compactly: $1.2M, $850K, $45.
func FormatUSD(amount float64) string {
	switch {
	case amount >= 1_000_000:
		return fmt.Sprintf("$%.1fM", amount/1_000_000)
	case amount >= 1_000:
		return fmt.Sprintf("$%.0fK", amount/1_000)
	default:
		return fmt.Sprintf("$%.0f", amount)
	}
}

// FormatAmount renders a native amount with thousands separators.
func FormatAmount(amount float64) string {
	s := fmt.Sprintf("%.2f", amount)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	dot := strings.IndexByte(s, '.')
	whole, frac := s[:dot], s[dot:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}
