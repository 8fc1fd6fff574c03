package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback actions. cancel_job carries the job id after the colon.
const (
	ActionUpload        = "upload"
	ActionCancel        = "cancel"
	ActionConfirm       = "confirm"
	ActionPublishNow    = "publish_now"
	ActionScheduleLater = "schedule_later"
	ActionCheckJoin     = "check_join"
	ActionHistory       = "history"
	ActionMySchedule    = "my_schedule"
	ActionCancelJob     = "cancel_job"
)

const (
	textWelcome = "👋 Welcome! Send me an image and I'll publish it and give you a shareable link.\n\n" +
		"You can also type a link here, or use me inline, to check whether it is still reachable."
	textMenu             = "What would you like to do?"
	textSendImage        = "📤 Send me an image (as a photo or as an image file)."
	textPreview          = "Here is your image. Publish it?"
	textChooseTiming     = "When should I publish it?"
	textCancelled        = "❌ Upload cancelled."
	textCancelledLate    = "❌ Cancelled. The upload already in progress will still finish and send you its link."
	textUploading        = "⏳ Uploading your image..."
	textSchedulePrompt   = "🕒 Send the date and time to publish, formatted YYYY-MM-DD HH:MM (%s)."
	textJoinedOK         = "✅ Thanks for joining! You can use the bot now."
	textStillNotJoined   = "You have not joined the channel yet."
	textSessionExpired   = "⌛ Your pending upload expired. Send the image again when you are ready."
	textTooManyInvalid   = "Too many invalid replies. The upload was cancelled."
	textPromptReset      = "Too many invalid replies. Back to the menu."
	textNotAnImage       = "⚠️ That file is not an image."
	textUnknownCommand   = "Unknown command. Use /help for available commands."
	textNothingScheduled = "You have no scheduled uploads."
	textNoHistory        = "You have not published anything yet."
	textHelp             = "Send an image to publish it.\n\n" +
		"Commands:\n" +
		"/menu - Show the menu\n" +
		"/cancel - Cancel the pending upload\n" +
		"/history - Your recent links\n" +
		"/myschedule - Your scheduled uploads\n" +
		"/redeem <token> - Redeem an access token"
)

func menuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📤 Upload image", ActionUpload),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗂 My links", ActionHistory),
			tgbotapi.NewInlineKeyboardButtonData("🕒 My schedule", ActionMySchedule),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonSwitch("🔎 Check a link", ""),
		),
	)
}

func confirmKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", ActionConfirm),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", ActionCancel),
		),
	)
}

func timingKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Publish now", ActionPublishNow),
			tgbotapi.NewInlineKeyboardButtonData("🕒 Schedule", ActionScheduleLater),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", ActionCancel),
		),
	)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", ActionCancel),
		),
	)
}

func joinKeyboard(channel string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📢 Join channel", channelURL(channel)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ I've joined", ActionCheckJoin),
		),
	)
}

func linkKeyboard(link string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🔗 Open", link),
		),
	)
}

func emptyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}

func channelURL(channel string) string {
	return "https://t.me/" + strings.TrimPrefix(channel, "@")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
