package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ContentDigest/internal/config"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// Distributor delivers the full digest to a chat-ops Telegram chat.
type Distributor struct {
	sender *sender
}

var _ ports.Distributor = (*Distributor)(nil)

// NewDistributor wires the chat-ops destination.
func NewDistributor(cfg config.TelegramConfig, client *http.Client, factory BotFactory) (*Distributor, error) {
	s, err := newSender(cfg, client, factory)
	if err != nil {
		return nil, err
	}
	return &Distributor{sender: s}, nil
}

func (d *Distributor) Channel() domain.Channel { return domain.ChannelChatOps }

// Send never returns an error; failures are reported in the result.
func (d *Distributor) Send(ctx context.Context, view domain.DigestView) domain.DistributionResult {
	res := domain.DistributionResult{Channel: domain.ChannelChatOps}
	if err := d.sender.send(ctx, formatDigest(view)); err != nil {
		res.Err = err
		return res
	}
	res.Success = true
	return res
}

func formatDigest(v domain.DigestView) string {
	var b strings.Builder
	b.WriteString(v.Title)
	fmt.Fprintf(&b, "\n%s .. %s, %d items\n",
		v.WindowStart.UTC().Format("2006-01-02 15:04"), v.WindowEnd.UTC().Format("2006-01-02 15:04 MST"), v.ItemCount)
	if v.Summary != "" {
		b.WriteString("\n")
		b.WriteString(v.Summary)
		b.WriteString("\n")
	}
	if v.Content != "" {
		b.WriteString("\n")
		b.WriteString(v.Content)
	}
	return strings.TrimSpace(b.String())
}
