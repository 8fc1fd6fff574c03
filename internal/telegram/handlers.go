package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imgshare-bot/internal/access"
	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/image"
	"imgshare-bot/internal/limiter"
	"imgshare-bot/internal/metrics"
	"imgshare-bot/internal/publish"
	"imgshare-bot/internal/scheduler"
	"imgshare-bot/internal/session"
	"imgshare-bot/internal/state"
	"imgshare-bot/internal/telegraph"
)

// redeemPayloadPrefix marks a /start deep link that carries a recovery token.
const redeemPayloadPrefix = "redeem_"

// Publisher runs the publish pipeline.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Result, error)
}

// LinkChecker classifies a hosted link as reachable or not.
type LinkChecker interface {
	Check(ctx context.Context, link string) telegraph.Status
}

// Options wires a Handler.
type Options struct {
	Sender          Sender
	BotUsername     string
	Gate            *access.Gate
	Sessions        *session.Store
	Prompts         *session.Prompts
	Pipeline        Publisher
	Scheduler       *scheduler.Scheduler
	State           *state.Store
	Fetcher         publish.Fetcher
	Processor       *image.Processor
	Checker         LinkChecker
	InFlight        *limiter.InFlight
	Rate            *limiter.RateLimiter
	LocalArtifacts  bool
	FetchTimeout    time.Duration
	ReleaseArtifact func(path string) error
	// BaseContext bounds publishes that outlive the update that started them.
	BaseContext context.Context
	Logger      *slog.Logger
}

// Handler processes Telegram updates
type Handler struct {
	sender         Sender
	botUsername    string
	gate           *access.Gate
	sessions       *session.Store
	prompts        *session.Prompts
	pipeline       Publisher
	scheduler      *scheduler.Scheduler
	state          *state.Store
	fetcher        publish.Fetcher
	processor      *image.Processor
	checker        LinkChecker
	inflight       *limiter.InFlight
	rate           *limiter.RateLimiter
	localArtifacts bool
	fetchTimeout   time.Duration
	release        func(path string) error
	baseCtx        context.Context
	publishes      sync.WaitGroup
	now            func() time.Time
	logger         *slog.Logger
}

// NewHandler creates a new update handler
func NewHandler(opts Options) *Handler {
	h := &Handler{
		sender:         opts.Sender,
		botUsername:    opts.BotUsername,
		gate:           opts.Gate,
		sessions:       opts.Sessions,
		prompts:        opts.Prompts,
		pipeline:       opts.Pipeline,
		scheduler:      opts.Scheduler,
		state:          opts.State,
		fetcher:        opts.Fetcher,
		processor:      opts.Processor,
		checker:        opts.Checker,
		inflight:       opts.InFlight,
		rate:           opts.Rate,
		localArtifacts: opts.LocalArtifacts,
		fetchTimeout:   opts.FetchTimeout,
		release:        opts.ReleaseArtifact,
		baseCtx:        opts.BaseContext,
		now:            time.Now,
		logger:         opts.Logger,
	}
	if h.baseCtx == nil {
		h.baseCtx = context.Background()
	}
	if h.release == nil {
		h.release = image.RemoveArtifact
	}
	if h.inflight == nil {
		h.inflight = limiter.NewInFlight()
	}
	return h
}

// HandleUpdate processes a single update. Panics are logged and swallowed
// so one bad update cannot take the bot down.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling update", "update_id", update.UpdateID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	switch {
	case update.InlineQuery != nil:
		metrics.Updates.WithLabelValues("inline").Inc()
		h.handleInlineQuery(ctx, update.InlineQuery)
	case update.CallbackQuery != nil:
		metrics.Updates.WithLabelValues("callback").Inc()
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		metrics.Updates.WithLabelValues("message").Inc()
		h.handleMessage(ctx, update.Message)
	}
}

// Wait blocks until in-flight publishes have finished.
func (h *Handler) Wait() {
	h.publishes.Wait()
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	userID := msg.From.ID

	if h.rate != nil && !h.rate.Allow(userID) {
		h.logger.Debug("dropping rate limited message", "user_id", userID)
		return
	}

	switch {
	case msg.IsCommand():
		h.handleCommand(ctx, msg)
	case len(msg.Photo) > 0 || msg.Document != nil:
		h.handleImage(ctx, msg)
	case msg.Text != "":
		h.handleText(ctx, msg)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)

	case "menu":
		if h.requireAccess(ctx, chatID, userID) {
			h.sendMenu(chatID, textMenu)
		}

	case "help":
		h.sendText(chatID, textHelp)

	case "cancel":
		h.cancelSession(chatID, userID)

	case "history":
		if h.requireAccess(ctx, chatID, userID) {
			h.showHistory(chatID, userID)
		}

	case "myschedule":
		if h.requireAccess(ctx, chatID, userID) {
			h.showSchedule(chatID, userID)
		}

	case "redeem":
		h.handleRedeemCommand(ctx, msg)

	case "stats", "ban", "unban", "setchannel", "createtoken", "resetstats", "tokens":
		h.handleAdminCommand(ctx, msg)

	default:
		h.sendText(chatID, textUnknownCommand)
	}
}

// handleStart registers the user, credits a referral on first start and
// shows the menu or the join prompt.
func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	payload := strings.TrimSpace(msg.CommandArguments())

	var referrer int64
	token := ""
	if strings.HasPrefix(payload, redeemPayloadPrefix) {
		token = strings.TrimPrefix(payload, redeemPayloadPrefix)
	} else if payload != "" {
		referrer, _ = strconv.ParseInt(payload, 10, 64)
	}

	h.registerStart(ctx, userID, referrer)

	if token != "" {
		if err := h.redeem(ctx, chatID, userID, token); err != nil {
			h.sendText(chatID, apperrors.GetUserMessage(err))
		}
		return
	}

	if h.requireAccess(ctx, chatID, userID) {
		h.sendMenu(chatID, textWelcome)
	}
}

func (h *Handler) registerStart(ctx context.Context, userID, referrer int64) {
	var seen bool
	h.state.View(func(d *state.Document) {
		_, seen = d.Users[userID]
	})
	if seen {
		return
	}

	var credited bool
	now := h.now()
	err := h.mutate(ctx, func(d *state.Document) error {
		credited = d.RegisterStart(userID, referrer, now)
		return nil
	})
	if err != nil {
		h.logger.Error("failed to record start", "error", err, "user_id", userID)
		return
	}
	if credited {
		h.logger.Info("referral credited", "user_id", userID, "referrer", referrer)
	}
}

// requireAccess runs the gate and, on denial, tells the user why.
func (h *Handler) requireAccess(ctx context.Context, chatID, userID int64) bool {
	d, err := h.gate.CheckAccess(ctx, userID)
	if err == nil {
		return true
	}
	h.sendDenial(chatID, d, err)
	return false
}

func (h *Handler) sendDenial(chatID int64, d access.Decision, err error) {
	if errors.Is(err, apperrors.ErrBanned) || d.Channel == "" {
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	msg := tgbotapi.NewMessage(chatID, apperrors.GetUserMessage(err))
	msg.ReplyMarkup = joinKeyboard(d.Channel)
	h.send(msg)
}

func (h *Handler) handleImage(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	if !h.requireAccess(ctx, chatID, userID) {
		return
	}

	var fileID string
	switch {
	case len(msg.Photo) > 0:
		// sizes are ordered smallest first
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		fileID = msg.Document.FileID
	default:
		h.sendText(chatID, textNotAnImage)
		return
	}

	var artifact string
	if h.localArtifacts {
		path, err := h.materialize(ctx, fileID)
		if err != nil {
			h.logger.Error("failed to prepare image", "error", err, "user_id", userID)
			h.sendText(chatID, apperrors.GetUserMessage(err))
			return
		}
		artifact = path
	}

	sess := h.sessions.Begin(userID, chatID, fileID, msg.Caption, artifact)
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	h.logger.Debug("session started", "user_id", userID, "session_id", sess.ID, "local_artifact", artifact != "")

	var photo tgbotapi.PhotoConfig
	if artifact != "" {
		photo = tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(artifact))
	} else {
		photo = tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	}
	photo.Caption = textPreview
	photo.ReplyMarkup = confirmKeyboard()

	sent, err := h.sender.Send(photo)
	if err != nil {
		// documents cannot always be re-sent as photos; fall back to text
		h.logger.Debug("photo preview failed", "error", err, "user_id", userID)
		fallback := tgbotapi.NewMessage(chatID, textPreview)
		fallback.ReplyMarkup = confirmKeyboard()
		sent, err = h.sender.Send(fallback)
		if err != nil {
			h.logger.Error("failed to send preview", "error", err, "chat_id", chatID)
			return
		}
	}
	h.sessions.SetPreviewMessage(userID, sess.ID, sent.MessageID)
}

// materialize fetches and transforms fileID into a local artifact.
func (h *Handler) materialize(ctx context.Context, fileID string) (string, error) {
	if h.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.fetchTimeout)
		defer cancel()
	}

	data, err := h.fetcher.Fetch(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)
	}
	res, err := h.processor.Process(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrTransformFailed, err)
	}
	path, err := h.processor.WriteArtifact(res.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrTransformFailed, err)
	}
	return path, nil
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		h.answer(cb.ID, "")
		return
	}
	userID, chatID, messageID := cb.From.ID, cb.Message.Chat.ID, cb.Message.MessageID

	if h.rate != nil && !h.rate.Allow(userID) {
		h.answer(cb.ID, apperrors.ErrRateLimited.UserMsg)
		return
	}

	action, arg, _ := strings.Cut(cb.Data, ":")

	if action == ActionCheckJoin {
		h.handleCheckJoin(ctx, cb)
		return
	}

	// Cancel needs no access: it only ever removes the caller's own session.
	if action == ActionCancel {
		h.answer(cb.ID, "")
		h.editMarkup(chatID, messageID, emptyKeyboard())
		h.cancelSession(chatID, userID)
		return
	}

	if !h.requireAccess(ctx, chatID, userID) {
		h.answer(cb.ID, "")
		return
	}

	switch action {
	case ActionUpload:
		h.answer(cb.ID, "")
		h.sendText(chatID, textSendImage)

	case ActionConfirm:
		if _, err := h.sessions.Transition(userID, session.EventConfirm); err != nil {
			h.answer(cb.ID, "")
			h.sendText(chatID, apperrors.GetUserMessage(err))
			return
		}
		h.answer(cb.ID, "")
		h.editMarkup(chatID, messageID, emptyKeyboard())
		msg := tgbotapi.NewMessage(chatID, textChooseTiming)
		msg.ReplyMarkup = timingKeyboard()
		h.send(msg)

	case ActionPublishNow:
		h.answer(cb.ID, "")
		h.editMarkup(chatID, messageID, emptyKeyboard())
		h.publishNow(chatID, userID)

	case ActionScheduleLater:
		if _, err := h.sessions.Transition(userID, session.EventScheduleRequested); err != nil {
			h.answer(cb.ID, "")
			h.sendText(chatID, apperrors.GetUserMessage(err))
			return
		}
		h.answer(cb.ID, "")
		h.editMarkup(chatID, messageID, emptyKeyboard())
		msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(textSchedulePrompt, h.scheduler.Location()))
		msg.ReplyMarkup = cancelKeyboard()
		h.send(msg)

	case ActionHistory:
		h.answer(cb.ID, "")
		h.showHistory(chatID, userID)

	case ActionMySchedule:
		h.answer(cb.ID, "")
		h.showSchedule(chatID, userID)

	case ActionCancelJob:
		if err := h.scheduler.Cancel(userID, arg); err != nil {
			h.answer(cb.ID, "That scheduled upload no longer exists.")
			return
		}
		h.answer(cb.ID, "Cancelled")
		h.editMarkup(chatID, messageID, emptyKeyboard())
		h.sendText(chatID, "🗑 Scheduled upload cancelled.")

	default:
		h.answer(cb.ID, "")
		h.logger.Warn("unknown callback action", "user_id", userID, "data", cb.Data)
	}
}

func (h *Handler) handleCheckJoin(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID

	if _, err := h.gate.CheckAccess(ctx, cb.From.ID); err != nil {
		text := textStillNotJoined
		if errors.Is(err, apperrors.ErrBanned) {
			text = apperrors.ErrBanned.UserMsg
		}
		h.request(tgbotapi.NewCallbackWithAlert(cb.ID, text))
		return
	}

	h.answer(cb.ID, "")
	h.request(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, textJoinedOK, menuKeyboard()))
}

func (h *Handler) cancelSession(chatID, userID int64) {
	sess, err := h.sessions.Transition(userID, session.EventCancel)
	if err != nil {
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	if sess.State == session.StatePublishing {
		// the upload is already on its way; it still finishes and is counted
		h.sendMenu(chatID, textCancelledLate)
		return
	}
	h.sendMenu(chatID, textCancelled)
}

// publishNow moves the session to Publishing and runs the pipeline in the
// background so later updates from the user, e.g. Cancel, are not blocked.
func (h *Handler) publishNow(chatID, userID int64) {
	current, ok := h.sessions.Get(userID)
	if !ok {
		h.sendText(chatID, apperrors.GetUserMessage(apperrors.ErrNoPendingUpload))
		return
	}
	if !h.inflight.TryAcquire(userID, current.ID) {
		h.sendText(chatID, apperrors.ErrPublishInProgress.UserMsg)
		return
	}

	sess, err := h.sessions.Transition(userID, session.EventPublishNow)
	if err != nil {
		h.inflight.Release(userID, current.ID)
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	status, err := h.sender.Send(tgbotapi.NewMessage(chatID, textUploading))
	if err != nil {
		h.logger.Error("failed to send status message", "error", err)
	}

	h.publishes.Add(1)
	go h.runPublish(sess, status.MessageID)
}

func (h *Handler) runPublish(sess session.Session, statusMessageID int) {
	defer h.publishes.Done()
	defer h.inflight.Release(sess.OwnerID, sess.ID)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic during publish", "user_id", sess.OwnerID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	res, err := h.pipeline.Publish(h.baseCtx, publish.Request{
		OwnerID:      sess.OwnerID,
		SourceRef:    sess.SourceRef,
		ArtifactPath: sess.ArtifactPath,
		Caption:      sess.Caption,
	})

	ev := session.EventPublishCompleted
	if err != nil {
		ev = session.EventPublishFailed
	}
	if _, cerr := h.sessions.Complete(sess.OwnerID, sess.ID, ev); cerr != nil {
		h.logger.Warn("session changed while publishing", "user_id", sess.OwnerID, "session_id", sess.ID, "error", cerr)
	}
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))

	if statusMessageID != 0 {
		h.request(tgbotapi.NewDeleteMessage(sess.ChatID, statusMessageID))
	}

	if err != nil {
		h.sendText(sess.ChatID, apperrors.GetUserMessage(err))
		return
	}

	msg := tgbotapi.NewMessage(sess.ChatID, "✅ Published!\n"+res.Link)
	msg.ReplyMarkup = linkKeyboard(res.Link)
	h.send(msg)
}

func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	text := strings.TrimSpace(msg.Text)

	if pr, ok := h.prompts.Pending(userID); ok {
		h.handlePromptReply(ctx, chatID, userID, pr, text)
		return
	}

	if sess, ok := h.sessions.Get(userID); ok && sess.State == session.StateAwaitingScheduleTime {
		if h.requireAccess(ctx, chatID, userID) {
			h.handleScheduleTime(chatID, userID, text)
		}
		return
	}

	if isHTTPURL(text) {
		if h.requireAccess(ctx, chatID, userID) {
			h.replyLinkStatus(ctx, chatID, text)
		}
		return
	}

	h.sendMenu(chatID, "Send me an image to publish, or a link to check.")
}

func (h *Handler) handleScheduleTime(chatID, userID int64, text string) {
	firesAt, err := h.scheduler.ParseTime(text)
	if err != nil {
		n, nerr := h.sessions.NoteInvalidInput(userID)
		if nerr != nil {
			h.sendText(chatID, apperrors.GetUserMessage(nerr))
			return
		}
		if n >= session.MaxPromptAttempts {
			h.sessions.End(userID)
			metrics.ActiveSessions.Set(float64(h.sessions.Len()))
			h.sendMenu(chatID, textTooManyInvalid)
			return
		}
		reply := tgbotapi.NewMessage(chatID, apperrors.GetUserMessage(err))
		reply.ReplyMarkup = cancelKeyboard()
		h.send(reply)
		return
	}

	sess, err := h.sessions.Transition(userID, session.EventScheduleCommitted)
	if err != nil {
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))

	job, err := h.scheduler.Schedule(sess.Snapshot(), firesAt)
	if err != nil {
		// the job never took the artifact
		if sess.ArtifactPath != "" {
			if rerr := h.release(sess.ArtifactPath); rerr != nil {
				h.logger.Warn("failed to release artifact", "error", rerr, "path", sess.ArtifactPath)
			}
		}
		h.sendText(chatID, apperrors.GetUserMessage(err))
		return
	}

	h.sendMenu(chatID, fmt.Sprintf("✅ Scheduled for %s.", h.formatTime(job.FiresAt)))
}

func (h *Handler) replyLinkStatus(ctx context.Context, chatID int64, link string) {
	if h.checker.Check(ctx, link) == telegraph.StatusReachable {
		h.sendText(chatID, "✅ Link is reachable.")
		return
	}
	h.sendText(chatID, "❌ Link is unreachable.")
}

func (h *Handler) handleInlineQuery(ctx context.Context, iq *tgbotapi.InlineQuery) {
	cfg := tgbotapi.InlineConfig{
		InlineQueryID: iq.ID,
		IsPersonal:    true,
		CacheTime:     0,
		Results:       []interface{}{},
	}

	link := strings.TrimSpace(iq.Query)
	if iq.From != nil && isHTTPURL(link) {
		if _, err := h.gate.CheckAccess(ctx, iq.From.ID); err == nil {
			status := h.checker.Check(ctx, link)
			title := "✅ Reachable"
			if status != telegraph.StatusReachable {
				title = "❌ Unreachable"
			}
			article := tgbotapi.NewInlineQueryResultArticle("health-"+string(status), title, fmt.Sprintf("%s\n%s", title, link))
			article.Description = truncate(link, 100)
			cfg.Results = []interface{}{article}
		}
	}

	h.request(cfg)
}

func (h *Handler) showHistory(chatID, userID int64) {
	var entries []state.HistoryEntry
	h.state.View(func(d *state.Document) {
		entries = d.UserHistory(userID)
	})
	if len(entries) == 0 {
		h.sendText(chatID, textNoHistory)
		return
	}

	var b strings.Builder
	b.WriteString("🗂 Your recent links:\n")
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		fmt.Fprintf(&b, "\n%s\n%s\n", h.formatTime(e.PublishedAt), e.Link)
	}
	h.sendText(chatID, b.String())
}

func (h *Handler) showSchedule(chatID, userID int64) {
	jobs := h.scheduler.List(userID)
	if len(jobs) == 0 {
		h.sendText(chatID, textNothingScheduled)
		return
	}

	var b strings.Builder
	b.WriteString("🕒 Your scheduled uploads:\n")
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(jobs))
	for i, job := range jobs {
		when := h.formatTime(job.FiresAt)
		fmt.Fprintf(&b, "\n%d. %s", i+1, when)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Cancel "+when, ActionCancelJob+":"+job.ID),
		))
	}

	msg := tgbotapi.NewMessage(chatID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(msg)
}

// ExpireSessions drops sessions past their TTL and tells their owners.
func (h *Handler) ExpireSessions() int {
	expired := h.sessions.Sweep()
	for _, sess := range expired {
		h.logger.Info("session expired", "user_id", sess.OwnerID, "session_id", sess.ID, "state", sess.State)
		h.sendText(sess.ChatID, textSessionExpired)
	}
	metrics.ActiveSessions.Set(float64(h.sessions.Len()))
	return len(expired)
}

// RunJanitor expires sessions every interval until ctx is cancelled.
func (h *Handler) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ExpireSessions()
		}
	}
}

// mutate persists fn. Errors returned by fn pass through untouched; a
// failed flush becomes ErrPersistFailed.
func (h *Handler) mutate(ctx context.Context, fn func(d *state.Document) error) error {
	var fnErr error
	err := h.state.Mutate(ctx, func(d *state.Document) error {
		fnErr = fn(d)
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	h.logger.Error("failed to persist state", "error", err)
	return fmt.Errorf("%w: %v", apperrors.ErrPersistFailed, err)
}

func (h *Handler) formatTime(t time.Time) string {
	return t.In(h.scheduler.Location()).Format(scheduler.TimeLayout + " MST")
}

func (h *Handler) sendMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = menuKeyboard()
	h.send(msg)
}

func (h *Handler) sendText(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handler) send(msg tgbotapi.MessageConfig) {
	if _, err := h.sender.Send(msg); err != nil {
		h.logger.Error("failed to send message", "error", err, "chat_id", msg.ChatID)
	}
}

func (h *Handler) answer(callbackID, text string) {
	h.request(tgbotapi.NewCallback(callbackID, text))
}

func (h *Handler) editMarkup(chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) {
	h.request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup))
}

func (h *Handler) request(c tgbotapi.Chattable) {
	if _, err := h.sender.Request(c); err != nil {
		h.logger.Debug("api request failed", "error", err)
	}
}

func isHTTPURL(s string) bool {
	if strings.ContainsAny(s, " \n\t") {
		return false
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
