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

// Notifier sends operational notices to a Telegram chat via the bot API.
type Notifier struct {
	sender *sender
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig, client *http.Client, factory BotFactory) (*Notifier, error) {
	s, err := newSender(cfg, client, factory)
	if err != nil {
		return nil, err
	}
	return &Notifier{sender: s}, nil
}

// Notify posts a short status line about a pipeline run.
func (n *Notifier) Notify(ctx context.Context, notice domain.Notice) error {
	return n.sender.send(ctx, formatNotice(notice))
}

func formatNotice(n domain.Notice) string {
	var b strings.Builder
	switch n.Kind {
	case domain.NoticeCompleted:
		fmt.Fprintf(&b, "✅ %s: digest %s ready (%d items)", n.Pipeline, n.DigestID, n.Items)
	case domain.NoticeNoContent:
		fmt.Fprintf(&b, "ℹ️ %s: no content passed the filters", n.Pipeline)
	case domain.NoticeFailed:
		fmt.Fprintf(&b, "❌ %s: run failed", n.Pipeline)
	default:
		fmt.Fprintf(&b, "%s: %s", n.Pipeline, n.Kind)
	}
	if n.Message != "" {
		b.WriteString("\n")
		b.WriteString(n.Message)
	}
	if n.Err != nil {
		b.WriteString("\nerror: ")
		b.WriteString(n.Err.Error())
	}
	return b.String()
}
