package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imgshare-bot/internal/config"
)

// Bot represents the Telegram bot
type Bot struct {
	api        *tgbotapi.BotAPI
	handler    *Handler
	dispatcher *Dispatcher
	cfg        config.TelegramConfig
	logger     *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(api *tgbotapi.BotAPI, handler *Handler, cfg config.TelegramConfig, logger *slog.Logger) *Bot {
	return &Bot{
		api:        api,
		handler:    handler,
		dispatcher: NewDispatcher(logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// Run starts the bot and blocks until context is cancelled
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollingTimeout
	u.AllowedUpdates = []string{"message", "callback_query", "inline_query"}

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stopping bot, waiting for active requests")

			// Stop receiving updates
			b.api.StopReceivingUpdates()

			done := make(chan struct{})
			go func() {
				b.dispatcher.Wait()
				b.handler.Wait()
				close(done)
			}()

			select {
			case <-done:
				b.logger.Info("all active requests completed")
			case <-time.After(25 * time.Second):
				b.logger.Warn("some requests may not have completed")
			}

			return ctx.Err()

		case update, ok := <-updates:
			if !ok {
				return nil
			}

			// updates from one user run in arrival order
			b.dispatcher.Submit(updateKey(update), func() {
				reqCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
				defer cancel()

				b.handler.HandleUpdate(reqCtx, update)
			})
		}
	}
}

// updateKey is the sender of update, or 0 when it has none.
func updateKey(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	case update.InlineQuery != nil && update.InlineQuery.From != nil:
		return update.InlineQuery.From.ID
	}
	return 0
}
