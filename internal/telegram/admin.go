package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"imgshare-bot/internal/config"
	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/session"
	"imgshare-bot/internal/state"
)

const (
	maxGrantDays  = 3650
	maxListedBans = 20
)

func (h *Handler) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, adminID := msg.Chat.ID, msg.From.ID
	if !h.gate.IsAdmin(adminID) {
		h.logger.Warn("unauthorized admin command", "user_id", adminID, "command", msg.Command())
		h.sendText(chatID, apperrors.ErrUnauthorized.UserMsg)
		return
	}

	args := strings.Fields(msg.CommandArguments())
	var err error

	switch msg.Command() {
	case "stats":
		h.sendText(chatID, h.statsReport())

	case "ban":
		err = h.setBanned(ctx, chatID, args, true)

	case "unban":
		err = h.setBanned(ctx, chatID, args, false)

	case "setchannel":
		err = h.setChannel(ctx, chatID, args)

	case "createtoken":
		if len(args) == 0 {
			h.prompts.Await(adminID, session.PromptCreateToken)
			h.sendText(chatID, "Send the user id and the number of days, e.g. 123456789 30")
			return
		}
		var ownerID int64
		var days int
		ownerID, days, err = parseTokenArgs(args)
		if err == nil {
			err = h.createToken(ctx, chatID, adminID, ownerID, days)
		}

	case "resetstats":
		err = h.mutate(ctx, func(d *state.Document) error {
			d.ResetStats()
			return nil
		})
		if err == nil {
			h.logger.Info("stats reset", "admin_id", adminID)
			h.sendText(chatID, "✅ Stats reset.")
		}

	case "tokens":
		h.sendText(chatID, h.tokensReport())
	}

	if err != nil {
		h.sendText(chatID, apperrors.GetUserMessage(err))
	}
}

func (h *Handler) statsReport() string {
	doc := h.state.Snapshot()

	type userCount struct {
		id    int64
		count int
	}
	top := make([]userCount, 0, len(doc.Stats.UsersSeen))
	for id, n := range doc.Stats.UsersSeen {
		top = append(top, userCount{id, n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].count != top[j].count {
			return top[i].count > top[j].count
		}
		return top[i].id < top[j].id
	})

	referrals := 0
	for _, n := range doc.Referrals {
		referrals += n
	}

	channel := doc.Channel
	if channel == "" {
		channel = h.gate.Channel()
	}
	if channel == "" {
		channel = "(none)"
	}

	var b strings.Builder
	b.WriteString("📊 Stats\n\n")
	fmt.Fprintf(&b, "Total uploads: %d\n", doc.Stats.TotalRequests)
	fmt.Fprintf(&b, "Uploading users: %d\n", len(doc.Stats.UsersSeen))
	fmt.Fprintf(&b, "Registered users: %d\n", len(doc.Users))
	fmt.Fprintf(&b, "Referrals: %d\n", referrals)
	fmt.Fprintf(&b, "Banned: %d\n", len(doc.Banned))
	fmt.Fprintf(&b, "Open tokens: %d\n", len(doc.Tokens))
	fmt.Fprintf(&b, "Live sessions: %d\n", h.sessions.Len())
	fmt.Fprintf(&b, "Scheduled jobs: %d\n", h.scheduler.Len())
	fmt.Fprintf(&b, "Uploads in progress: %d\n", h.inflight.Len())
	fmt.Fprintf(&b, "Channel: %s\n", channel)
	fmt.Fprintf(&b, "Free mode: %t\n", h.gate.FreeMode())

	if banned := doc.BannedIDs(); len(banned) > 0 {
		b.WriteString("\nBanned users:")
		for i, id := range banned {
			if i == maxListedBans {
				fmt.Fprintf(&b, " (+%d more)", len(banned)-maxListedBans)
				break
			}
			fmt.Fprintf(&b, " %d", id)
		}
		b.WriteString("\n")
	}

	if len(top) > 0 {
		b.WriteString("\nTop uploaders:\n")
		for i, u := range top {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "%d. %d (%d)\n", i+1, u.id, u.count)
		}
	}
	return b.String()
}

func (h *Handler) tokensReport() string {
	doc := h.state.Snapshot()
	if len(doc.Tokens) == 0 {
		return "No open tokens."
	}

	tokens := make([]state.RecoveryToken, 0, len(doc.Tokens))
	for _, t := range doc.Tokens {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.Before(tokens[j].CreatedAt) })

	var b strings.Builder
	b.WriteString("🎟 Open tokens:\n")
	for _, t := range tokens {
		fmt.Fprintf(&b, "\n%s\nuser %d, %d days, created %s\n", t.Token, t.OwnerID, t.GrantedDays, h.formatTime(t.CreatedAt))
	}
	return b.String()
}

func (h *Handler) setBanned(ctx context.Context, chatID int64, args []string, ban bool) error {
	if len(args) != 1 {
		return apperrors.ErrInvalidArgs
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || target <= 0 {
		return apperrors.ErrInvalidArgs
	}
	if ban && h.gate.IsAdmin(target) {
		return apperrors.ErrAdminTarget
	}

	var changed bool
	now := h.now()
	err = h.mutate(ctx, func(d *state.Document) error {
		if ban {
			changed = d.Ban(target, now)
		} else {
			changed = d.Unban(target)
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case ban && changed:
		h.gate.Forget(target)
		h.sessions.End(target)
		h.logger.Info("user banned", "target_id", target)
		h.sendText(chatID, fmt.Sprintf("✅ User %d banned.", target))
	case ban:
		h.sendText(chatID, fmt.Sprintf("User %d is already banned.", target))
	case changed:
		h.logger.Info("user unbanned", "target_id", target)
		h.sendText(chatID, fmt.Sprintf("✅ User %d unbanned.", target))
	default:
		h.sendText(chatID, fmt.Sprintf("User %d is not banned.", target))
	}
	return nil
}

func (h *Handler) setChannel(ctx context.Context, chatID int64, args []string) error {
	if len(args) != 1 {
		return apperrors.ErrInvalidArgs
	}
	channel := config.NormalizeChannel(args[0])
	if len(channel) < 2 {
		return apperrors.ErrInvalidArgs
	}

	if err := h.mutate(ctx, func(d *state.Document) error {
		d.Channel = channel
		return nil
	}); err != nil {
		return err
	}

	h.gate.ChannelChanged()
	h.logger.Info("required channel changed", "channel", channel)
	h.sendText(chatID, fmt.Sprintf("✅ Required channel set to %s.", channel))
	return nil
}

func parseTokenArgs(args []string) (int64, int, error) {
	if len(args) != 2 {
		return 0, 0, apperrors.ErrInvalidArgs
	}
	owner, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || owner <= 0 {
		return 0, 0, apperrors.ErrInvalidArgs
	}
	days, err := strconv.Atoi(args[1])
	if err != nil || days <= 0 || days > maxGrantDays {
		return 0, 0, apperrors.ErrInvalidArgs
	}
	return owner, days, nil
}

func (h *Handler) createToken(ctx context.Context, chatID, adminID, ownerID int64, days int) error {
	tok := state.RecoveryToken{
		Token:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		OwnerID:     ownerID,
		GrantedDays: days,
		CreatedAt:   h.now(),
		CreatedBy:   adminID,
	}
	if err := h.mutate(ctx, func(d *state.Document) error {
		d.IssueToken(tok)
		return nil
	}); err != nil {
		return err
	}

	h.logger.Info("recovery token created", "admin_id", adminID, "owner_id", ownerID, "days", days)

	text := fmt.Sprintf("🎟 Token for user %d (%d days):\n%s\n\nThe user can send /redeem %s", ownerID, days, tok.Token, tok.Token)
	if h.botUsername != "" {
		text += fmt.Sprintf("\nor open https://t.me/%s?start=%s%s", h.botUsername, redeemPayloadPrefix, tok.Token)
	}
	h.sendText(chatID, text)
	return nil
}

func (h *Handler) handleRedeemCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		h.prompts.Await(userID, session.PromptRedeemToken)
		h.sendText(chatID, "Send your access token.")
		return
	}
	if err := h.redeem(ctx, chatID, userID, token); err != nil {
		h.sendText(chatID, apperrors.GetUserMessage(err))
	}
}

// redeem consumes token for userID. The token is deleted in the same
// persisted mutation that grants access.
func (h *Handler) redeem(ctx context.Context, chatID, userID int64, token string) error {
	var banned bool
	h.state.View(func(d *state.Document) { banned = d.IsBanned(userID) })
	if banned {
		return apperrors.ErrBanned
	}

	var tok state.RecoveryToken
	var until time.Time
	now := h.now()
	err := h.mutate(ctx, func(d *state.Document) error {
		var err error
		tok, until, err = d.RedeemToken(token, userID, now)
		return err
	})
	if err != nil {
		return err
	}

	h.logger.Info("recovery token redeemed", "user_id", userID, "days", tok.GrantedDays, "until", until)
	h.sendMenu(chatID, fmt.Sprintf("✅ Token redeemed. You have access until %s.", h.formatTime(until)))
	return nil
}

// handlePromptReply treats text as the answer to a pending prompt. A
// malformed answer re-prompts once and then drops the prompt.
func (h *Handler) handlePromptReply(ctx context.Context, chatID, userID int64, pr session.Prompt, text string) {
	var err error

	switch pr.Kind {
	case session.PromptCreateToken:
		if !h.gate.IsAdmin(userID) {
			h.prompts.Clear(userID)
			h.sendText(chatID, apperrors.ErrUnauthorized.UserMsg)
			return
		}
		var ownerID int64
		var days int
		if ownerID, days, err = parseTokenArgs(strings.Fields(text)); err == nil {
			h.prompts.Clear(userID)
			if err = h.createToken(ctx, chatID, userID, ownerID, days); err != nil {
				h.sendText(chatID, apperrors.GetUserMessage(err))
			}
			return
		}

	case session.PromptRedeemToken:
		if err = h.redeem(ctx, chatID, userID, text); err == nil || !errors.Is(err, apperrors.ErrInvalidToken) {
			h.prompts.Clear(userID)
			if err != nil {
				h.sendText(chatID, apperrors.GetUserMessage(err))
			}
			return
		}

	default:
		h.prompts.Clear(userID)
		return
	}

	if h.prompts.Fail(userID) {
		h.sendText(chatID, apperrors.GetUserMessage(err)+" Please try again.")
		return
	}
	h.sendMenu(chatID, textPromptReset)
}
