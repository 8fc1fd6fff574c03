package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gookit/event"

	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/scheduler"
)

// RegisterEventListeners tells users how their scheduled publishes went.
func (h *Handler) RegisterEventListeners(em *event.Manager) {
	em.On(scheduler.EventJobCompleted, event.ListenerFunc(func(e event.Event) error {
		job, ok := e.Get("job").(scheduler.Job)
		if !ok {
			return fmt.Errorf("invalid job payload")
		}
		link, _ := e.Get("link").(string)

		msg := tgbotapi.NewMessage(job.ChatID, "✅ Your scheduled image is published!\n"+link)
		msg.ReplyMarkup = linkKeyboard(link)
		h.send(msg)
		return nil
	}))

	em.On(scheduler.EventJobFailed, event.ListenerFunc(func(e event.Event) error {
		job, ok := e.Get("job").(scheduler.Job)
		if !ok {
			return fmt.Errorf("invalid job payload")
		}
		err, _ := e.Get("error").(error)

		h.sendText(job.ChatID, "Scheduled upload failed. "+apperrors.GetUserMessage(err))
		return nil
	}))

	em.On(scheduler.EventJobExpired, event.ListenerFunc(func(e event.Event) error {
		job, ok := e.Get("job").(scheduler.Job)
		if !ok {
			return fmt.Errorf("invalid job payload")
		}

		h.sendText(job.ChatID, fmt.Sprintf("⌛ Your upload scheduled for %s was dropped because it could not run on time.", h.formatTime(job.FiresAt)))
		return nil
	}))
}
