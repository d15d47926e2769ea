package bot

import (
	"context"
	"time"

	"chauffeur/internal/domain"
	"chauffeur/internal/metrics"
	"chauffeur/internal/pricing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bot answers office staff in the notification chats: quick estimates,
// the tariff grid and undelivered submissions.
type Bot struct {
	tg          domain.TelegramBot
	chats       map[int64]struct{}
	estimator   domain.PriceEstimator
	fleet       *pricing.Fleet
	deadLetters domain.DeadLetterSource
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewBot(
	tg domain.TelegramBot,
	chatIDs []int64,
	estimator domain.PriceEstimator,
	fleet *pricing.Fleet,
	deadLetters domain.DeadLetterSource,
	logger *zerolog.Logger,
) *Bot {
	chats := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = struct{}{}
	}
	return &Bot{
		tg:          tg,
		chats:       chats,
		estimator:   estimator,
		fleet:       fleet,
		deadLetters: deadLetters,
		logger:      logger,
		now:         time.Now,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tg.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		metrics.ObserveBotUpdate(time.Since(start).Seconds())
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().
		Str("request_id", uuid.New().String()).
		Int64("chat_id", update.Message.Chat.ID).
		Logger()
	updateCtx = l.WithContext(updateCtx)

	if !b.isOfficeChat(update.Message.Chat.ID) {
		l.Warn().Str("command", update.Message.Command()).Msg("command from unknown chat ignored")
		metrics.IncBotCommand(update.Message.Command(), "denied")
		return
	}

	b.withRecovery(&l, func() {
		b.handleCommand(updateCtx, update.Message)
	})
}

func (b *Bot) withRecovery(l *zerolog.Logger, handler func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBotCommand("panic", "error")
			l.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) isOfficeChat(chatID int64) bool {
	_, ok := b.chats[chatID]
	return ok
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.tg.Send(msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("send message")
	}
}
