package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the slice of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes booking updates to barbers and clients over
// Telegram. Client ids are chat ids. Delivery is best effort: the caller
// logs failures and moves on, a missed message never blocks a booking.
type TelegramNotifier struct {
	bot    Sender
	logger *zerolog.Logger
}

func NewTelegramNotifier(bot Sender, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, logger: logger}
}

func NewBot(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func (n *TelegramNotifier) NotifyBarber(ctx context.Context, chatID int64, text string) error {
	return n.send(chatID, text)
}

func (n *TelegramNotifier) NotifyClient(ctx context.Context, clientID int64, text string) error {
	return n.send(clientID, text)
}

func (n *TelegramNotifier) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
		return err
	}
	return nil
}
