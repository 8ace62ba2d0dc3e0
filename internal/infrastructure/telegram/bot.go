package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ContentDigest/internal/config"
)

// Telegram rejects messages above 4096 characters.
const maxMessageLen = 4000

// Bot is the slice of the bot API the package needs; tests substitute it.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates Bot instances.
type BotFactory func(token string, client *http.Client) (Bot, error)

// DefaultBotFactory talks to api.telegram.org.
var DefaultBotFactory BotFactory = func(token string, client *http.Client) (Bot, error) {
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// sender delivers plain text to one chat. The bot is created on first use because
// the constructor performs a getMe round trip.
type sender struct {
	token   string
	chat    string
	client  *http.Client
	factory BotFactory

	mu  sync.Mutex
	bot Bot
}

func newSender(cfg config.TelegramConfig, client *http.Client, factory BotFactory) (*sender, error) {
	if !cfg.Configured() {
		return nil, errors.New("telegram misconfigured: bot token and chat id are required")
	}
	if factory == nil {
		factory = DefaultBotFactory
	}
	return &sender{
		token:   cfg.BotToken,
		chat:    strings.TrimSpace(cfg.ChatID),
		client:  client,
		factory: factory,
	}, nil
}

func (s *sender) getBot() (Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}
	bot, err := s.factory(s.token, s.client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	s.bot = bot
	return bot, nil
}

func (s *sender) send(ctx context.Context, text string) error {
	bot, err := s.getBot()
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := bot.Send(s.message(chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// message addresses numeric chat ids directly and @channel names by username.
func (s *sender) message(text string) tgbotapi.MessageConfig {
	if id, err := strconv.ParseInt(s.chat, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(s.chat, text)
}

// splitMessage cuts text into chunks of at most limit bytes, preferring line breaks.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
