package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"imgshare-bot/internal/access"
	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/image"
	"imgshare-bot/internal/limiter"
	"imgshare-bot/internal/membership"
	"imgshare-bot/internal/publish"
	"imgshare-bot/internal/scheduler"
	"imgshare-bot/internal/session"
	"imgshare-bot/internal/state"
	"imgshare-bot/internal/telegraph"
)

const adminID int64 = 1

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
	s.nextID++
	return tgbotapi.Message{MessageID: s.nextID}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// texts returns message texts and photo captions sent to chatID.
func (s *fakeSender) texts(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.PhotoConfig:
			if m.ChatID == chatID {
				out = append(out, m.Caption)
			}
		}
	}
	return out
}

func (s *fakeSender) last(chatID int64) string {
	t := s.texts(chatID)
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

func (s *fakeSender) lastMessage(chatID int64) tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if m, ok := s.sent[i].(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			return m
		}
	}
	return tgbotapi.MessageConfig{}
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
	s.requests = nil
}

type fakeLookup struct {
	mu     sync.Mutex
	status map[int64]string
}

func (f *fakeLookup) MemberStatus(_ context.Context, _ string, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.status[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return s, nil
}

func (f *fakeLookup) set(userID int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[userID] = status
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	return []byte("bytes-of-" + ref), nil
}

type fakeUploader struct {
	mu    sync.Mutex
	link  string
	err   error
	block chan struct{}
	calls int
}

func (u *fakeUploader) Upload(_ context.Context, _ []byte, _, _ string) (string, error) {
	if u.block != nil {
		<-u.block
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return u.link, u.err
}

type fakeChecker struct{ reachable map[string]bool }

func (c fakeChecker) Check(_ context.Context, link string) telegraph.Status {
	if c.reachable[link] {
		return telegraph.StatusReachable
	}
	return telegraph.StatusUnreachable
}

type env struct {
	h         *Handler
	sender    *fakeSender
	state     *state.Store
	sessions  *session.Store
	scheduler *scheduler.Scheduler
	uploader  *fakeUploader
	lookup    *fakeLookup
	dir       string
	stateDir  string
}

func newEnv(t *testing.T, localArtifacts bool) *env {
	t.Helper()
	logger := discardLogger()
	dir := t.TempDir()

	stateDir := filepath.Join(dir, "state")
	backend, err := state.NewFileBackend(filepath.Join(stateDir, "state.json"))
	require.NoError(t, err)
	st, err := state.Open(context.Background(), backend)
	require.NoError(t, err)
	require.NoError(t, st.Mutate(context.Background(), func(d *state.Document) error {
		d.Channel = "@imgchannel"
		return nil
	}))

	lookup := &fakeLookup{status: map[int64]string{}}
	gate := access.NewGate([]int64{adminID}, false, "", st, membership.NewCache(100, time.Minute), lookup, logger)

	artifactDir := filepath.Join(dir, "artifacts")
	processor := image.NewProcessor(false, 0, 85, artifactDir)
	uploader := &fakeUploader{link: "https://telegra.ph/file/abc123"}
	pipeline := publish.NewPipeline(fakeFetcher{}, processor, uploader, st, nil, time.Second, logger)
	sessions := session.NewStore(time.Hour, image.RemoveArtifact, logger)
	sched := scheduler.New(pipeline, nil, image.RemoveArtifact, time.Hour, time.UTC, logger)
	t.Cleanup(sched.Stop)

	sender := &fakeSender{}
	h := NewHandler(Options{
		Sender:         sender,
		BotUsername:    "imgsharebot",
		Gate:           gate,
		Sessions:       sessions,
		Prompts:        session.NewPrompts(time.Minute),
		Pipeline:       pipeline,
		Scheduler:      sched,
		State:          st,
		Fetcher:        fakeFetcher{},
		Processor:      processor,
		Checker:        fakeChecker{reachable: map[string]bool{"https://telegra.ph/file/ok.jpg": true}},
		InFlight:       limiter.NewInFlight(),
		LocalArtifacts: localArtifacts,
		FetchTimeout:   time.Second,
		Logger:         logger,
	})

	return &env{h: h, sender: sender, state: st, sessions: sessions, scheduler: sched, uploader: uploader, lookup: lookup, dir: artifactDir, stateDir: stateDir}
}

func (e *env) do(u tgbotapi.Update) {
	e.h.HandleUpdate(context.Background(), u)
}

func (e *env) member(ids ...int64) {
	for _, id := range ids {
		e.lookup.set(id, "member")
	}
}

func (e *env) total() int64 {
	var n int64
	e.state.View(func(d *state.Document) { n = d.Stats.TotalRequests })
	return n
}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func commandUpdate(user int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: user},
		Chat:      privateChat(user),
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func textUpdate(user int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: user},
		Chat:      privateChat(user),
		Text:      text,
	}}
}

func photoUpdate(user int64, fileID string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: user},
		Chat:      privateChat(user),
		Photo:     []tgbotapi.PhotoSize{{FileID: fileID + "-small"}, {FileID: fileID}},
	}}
}

func callbackUpdate(user int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      fmt.Sprintf("cb-%d", user),
		From:    &tgbotapi.User{ID: user},
		Message: &tgbotapi.Message{MessageID: 10, Chat: privateChat(user)},
		Data:    data,
	}}
}

func artifacts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCancelBeforeConfirm(t *testing.T) {
	e := newEnv(t, true)
	e.member(42)

	e.do(photoUpdate(42, "file-a"))
	sess, ok := e.sessions.Get(42)
	require.True(t, ok)
	require.Equal(t, session.StateAwaitingConfirmation, sess.State)
	require.Equal(t, "file-a", sess.SourceRef)
	require.Len(t, artifacts(t, e.dir), 1)
	require.Equal(t, textPreview, e.sender.last(42))

	e.do(callbackUpdate(42, ActionCancel))
	_, ok = e.sessions.Get(42)
	require.False(t, ok)
	require.Empty(t, artifacts(t, e.dir))
	require.Zero(t, e.total())
	require.Equal(t, textCancelled, e.sender.last(42))
}

func TestSecondImageReplacesFirst(t *testing.T) {
	e := newEnv(t, true)
	e.member(42)

	e.do(photoUpdate(42, "file-a"))
	e.do(photoUpdate(42, "file-b"))

	sess, ok := e.sessions.Get(42)
	require.True(t, ok)
	require.Equal(t, "file-b", sess.SourceRef)
	require.Len(t, artifacts(t, e.dir), 1)
}

func TestPublishNow(t *testing.T) {
	e := newEnv(t, false)
	e.member(7)

	e.do(photoUpdate(7, "file-b"))
	e.do(callbackUpdate(7, ActionConfirm))
	require.Equal(t, textChooseTiming, e.sender.last(7))

	e.do(callbackUpdate(7, ActionPublishNow))
	e.h.Wait()

	require.Contains(t, e.sender.last(7), "https://telegra.ph/file/abc123")
	require.EqualValues(t, 1, e.total())
	e.state.View(func(d *state.Document) {
		require.Equal(t, 1, d.Stats.UsersSeen[7])
		require.Len(t, d.History[7], 1)
	})
	_, ok := e.sessions.Get(7)
	require.False(t, ok)
}

func TestConfirmWithoutSession(t *testing.T) {
	e := newEnv(t, false)
	e.member(7)

	e.do(callbackUpdate(7, ActionConfirm))
	require.Equal(t, apperrors.ErrNoPendingUpload.UserMsg, e.sender.last(7))
}

func TestScheduleLater(t *testing.T) {
	e := newEnv(t, true)
	e.member(9)

	e.do(photoUpdate(9, "file-c"))
	e.do(callbackUpdate(9, ActionConfirm))
	e.do(callbackUpdate(9, ActionScheduleLater))
	require.Contains(t, e.sender.last(9), "YYYY-MM-DD HH:MM")

	e.do(textUpdate(9, "2030-01-01 10:00"))

	_, ok := e.sessions.Get(9)
	require.False(t, ok, "live session cleared on commit")

	jobs := e.scheduler.List(9)
	require.Len(t, jobs, 1)
	require.True(t, jobs[0].FiresAt.Equal(time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)))
	require.Equal(t, "file-c", jobs[0].Snapshot.SourceRef)
	require.Len(t, artifacts(t, e.dir), 1, "artifact now owned by the job")

	// a new upload does not touch the scheduled snapshot
	e.do(photoUpdate(9, "file-new"))
	jobs = e.scheduler.List(9)
	require.Len(t, jobs, 1)
	require.Equal(t, "file-c", jobs[0].Snapshot.SourceRef)
	require.Len(t, artifacts(t, e.dir), 2)

	// the user can list and cancel it
	e.do(commandUpdate(9, "/myschedule"))
	msg := e.sender.lastMessage(9)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	data := *markup.InlineKeyboard[0][0].CallbackData
	require.Equal(t, ActionCancelJob+":"+jobs[0].ID, data)

	e.do(callbackUpdate(9, data))
	require.Empty(t, e.scheduler.List(9))
	require.Len(t, artifacts(t, e.dir), 1)
}

func TestScheduleInvalidTimeRepromptsThenResets(t *testing.T) {
	e := newEnv(t, false)
	e.member(9)

	e.do(photoUpdate(9, "f"))
	e.do(callbackUpdate(9, ActionConfirm))
	e.do(callbackUpdate(9, ActionScheduleLater))

	e.do(textUpdate(9, "next tuesday"))
	require.Equal(t, apperrors.ErrInvalidTime.UserMsg, e.sender.last(9))
	_, ok := e.sessions.Get(9)
	require.True(t, ok)

	e.do(textUpdate(9, "2001-01-01 10:00"))
	require.Equal(t, textTooManyInvalid, e.sender.last(9))
	_, ok = e.sessions.Get(9)
	require.False(t, ok)
	require.Empty(t, e.scheduler.List(9))
}

func TestPublishMalformedResponse(t *testing.T) {
	e := newEnv(t, false)
	e.member(7)
	e.uploader.link = ""
	e.uploader.err = fmt.Errorf("%w: missing src", apperrors.ErrMalformedUploadResponse)

	e.do(photoUpdate(7, "f"))
	e.do(callbackUpdate(7, ActionConfirm))
	e.do(callbackUpdate(7, ActionPublishNow))
	e.h.Wait()

	require.Equal(t, apperrors.ErrMalformedUploadResponse.UserMsg, e.sender.last(7))
	require.Zero(t, e.total())
}

func TestCancelWhilePublishing(t *testing.T) {
	e := newEnv(t, false)
	e.member(7)
	e.uploader.block = make(chan struct{})

	e.do(photoUpdate(7, "f"))
	e.do(callbackUpdate(7, ActionConfirm))
	e.do(callbackUpdate(7, ActionPublishNow))

	// cancel is visible immediately even though the upload is in flight
	e.do(callbackUpdate(7, ActionCancel))
	require.Equal(t, textCancelledLate, e.sender.last(7))
	_, ok := e.sessions.Get(7)
	require.False(t, ok)

	// a fresh upload in the meantime is not disturbed by the old completion
	e.do(photoUpdate(7, "g"))

	close(e.uploader.block)
	e.h.Wait()

	sess, ok := e.sessions.Get(7)
	require.True(t, ok)
	require.Equal(t, "g", sess.SourceRef)
	require.Equal(t, session.StateAwaitingConfirmation, sess.State)

	// the cancelled upload still finishes as announced
	require.EqualValues(t, 1, e.total())
	require.Contains(t, strings.Join(e.sender.texts(7), "\n"), "https://telegra.ph/file/abc123")
}

func TestSecondPublishWhileInFlight(t *testing.T) {
	e := newEnv(t, false)
	e.member(7)
	e.uploader.block = make(chan struct{})

	e.do(photoUpdate(7, "f"))
	e.do(callbackUpdate(7, ActionConfirm))
	e.do(callbackUpdate(7, ActionPublishNow))

	e.do(photoUpdate(7, "g"))
	e.do(callbackUpdate(7, ActionConfirm))
	e.do(callbackUpdate(7, ActionPublishNow))
	require.Equal(t, apperrors.ErrPublishInProgress.UserMsg, e.sender.last(7))

	close(e.uploader.block)
	e.h.Wait()
	require.EqualValues(t, 1, e.total())
}

func TestAdminBanAndStats(t *testing.T) {
	e := newEnv(t, false)

	e.do(commandUpdate(adminID, "/ban 55"))
	require.Equal(t, "✅ User 55 banned.", e.sender.last(adminID))
	e.state.View(func(d *state.Document) { require.True(t, d.IsBanned(55)) })

	e.do(commandUpdate(56, "/stats"))
	require.Equal(t, apperrors.ErrUnauthorized.UserMsg, e.sender.last(56))

	e.do(commandUpdate(adminID, "/stats"))
	report := e.sender.last(adminID)
	require.Contains(t, report, "Total uploads: 0")
	require.Contains(t, report, "Banned: 1")
	require.Contains(t, report, "Banned users: 55")

	// the banned user is turned away before any membership check
	e.member(55)
	e.do(photoUpdate(55, "f"))
	require.Equal(t, apperrors.ErrBanned.UserMsg, e.sender.last(55))
	_, ok := e.sessions.Get(55)
	require.False(t, ok)

	e.do(commandUpdate(adminID, "/unban 55"))
	require.Equal(t, "✅ User 55 unbanned.", e.sender.last(adminID))
}

func TestAdminMutationNotSaved(t *testing.T) {
	e := newEnv(t, false)
	// writes fail once the state directory is gone
	require.NoError(t, os.RemoveAll(e.stateDir))

	e.do(commandUpdate(adminID, "/ban 55"))
	require.Equal(t, apperrors.GetUserMessage(apperrors.ErrPersistFailed), e.sender.last(adminID))
	e.state.View(func(d *state.Document) { require.False(t, d.IsBanned(55)) })

	e.do(commandUpdate(adminID, "/setchannel otherchannel"))
	require.Equal(t, apperrors.GetUserMessage(apperrors.ErrPersistFailed), e.sender.last(adminID))
	e.state.View(func(d *state.Document) { require.Equal(t, "@imgchannel", d.Channel) })

	e.do(commandUpdate(adminID, "/createtoken 300 7"))
	require.Equal(t, apperrors.GetUserMessage(apperrors.ErrPersistFailed), e.sender.last(adminID))
	e.state.View(func(d *state.Document) { require.Empty(t, d.Tokens) })
}

func TestAdminCannotBanAdmin(t *testing.T) {
	e := newEnv(t, false)
	e.do(commandUpdate(adminID, fmt.Sprintf("/ban %d", adminID)))
	require.Equal(t, apperrors.ErrAdminTarget.UserMsg, e.sender.last(adminID))

	e.do(commandUpdate(adminID, "/ban notanumber"))
	require.Equal(t, apperrors.ErrInvalidArgs.UserMsg, e.sender.last(adminID))
}

func TestSetChannel(t *testing.T) {
	e := newEnv(t, false)
	e.do(commandUpdate(adminID, "/setchannel newchannel"))
	require.Equal(t, "✅ Required channel set to @newchannel.", e.sender.last(adminID))
	e.state.View(func(d *state.Document) { require.Equal(t, "@newchannel", d.Channel) })
}

func TestNotSubscribedThenJoin(t *testing.T) {
	e := newEnv(t, false)
	e.lookup.set(70, "left")

	e.do(photoUpdate(70, "f"))
	msg := e.sender.lastMessage(70)
	require.Equal(t, apperrors.ErrNotSubscribed.UserMsg, msg.Text)
	markup := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Equal(t, "https://t.me/imgchannel", *markup.InlineKeyboard[0][0].URL)
	_, ok := e.sessions.Get(70)
	require.False(t, ok)

	e.lookup.set(70, "member")
	e.sender.reset()
	e.do(callbackUpdate(70, ActionCheckJoin))

	var edited bool
	for _, r := range e.sender.requests {
		if m, ok := r.(tgbotapi.EditMessageTextConfig); ok && m.Text == textJoinedOK {
			edited = true
		}
	}
	require.True(t, edited)
}

func TestReferralsOnStart(t *testing.T) {
	e := newEnv(t, false)
	e.member(200, 201)

	e.do(commandUpdate(200, "/start 100"))
	e.do(commandUpdate(200, "/start 100"))
	e.do(commandUpdate(201, "/start 201"))

	e.state.View(func(d *state.Document) {
		require.Equal(t, 1, d.Referrals[100], "first start only")
		require.Zero(t, d.Referrals[201], "self referral rejected")
		require.Len(t, d.Users, 2)
	})
	require.Equal(t, textWelcome, e.sender.last(200))
}

func TestRecoveryTokenFlow(t *testing.T) {
	e := newEnv(t, false)
	e.lookup.set(300, "left")

	e.do(commandUpdate(adminID, "/createtoken 300 7"))
	var token string
	e.state.View(func(d *state.Document) {
		require.Len(t, d.Tokens, 1)
		for k := range d.Tokens {
			token = k
		}
	})
	require.Contains(t, e.sender.last(adminID), "start=redeem_"+token)

	// another user cannot use it
	e.do(commandUpdate(301, "/redeem "+token))
	require.Equal(t, apperrors.ErrInvalidToken.UserMsg, e.sender.last(301))

	e.do(commandUpdate(300, "/redeem "+token))
	require.Contains(t, e.sender.last(300), "Token redeemed")

	e.do(commandUpdate(300, "/redeem "+token))
	require.Equal(t, apperrors.ErrInvalidToken.UserMsg, e.sender.last(300))

	// the grant lets a non-member through
	e.do(photoUpdate(300, "f"))
	_, ok := e.sessions.Get(300)
	require.True(t, ok)
}

func TestRedeemViaDeepLink(t *testing.T) {
	e := newEnv(t, false)
	e.do(commandUpdate(adminID, "/createtoken 400 1"))
	var token string
	e.state.View(func(d *state.Document) {
		for k := range d.Tokens {
			token = k
		}
	})

	e.do(commandUpdate(400, "/start "+redeemPayloadPrefix+token))
	require.Contains(t, e.sender.last(400), "Token redeemed")
	e.state.View(func(d *state.Document) { require.Empty(t, d.Tokens) })
}

func TestCreateTokenPrompt(t *testing.T) {
	e := newEnv(t, false)

	e.do(commandUpdate(adminID, "/createtoken"))
	e.do(textUpdate(adminID, "garbage"))
	require.Contains(t, e.sender.last(adminID), "Please try again")

	e.do(textUpdate(adminID, "still garbage"))
	require.Equal(t, textPromptReset, e.sender.last(adminID))

	e.do(commandUpdate(adminID, "/createtoken"))
	e.do(textUpdate(adminID, "500 3"))
	require.Contains(t, e.sender.last(adminID), "Token for user 500 (3 days)")
}

func TestPromptsDoNotCrossUsers(t *testing.T) {
	e := newEnv(t, false)
	e.member(600)

	e.do(commandUpdate(adminID, "/createtoken"))
	// another user's text is never taken as the admin's reply
	e.do(textUpdate(600, "600 30"))
	e.state.View(func(d *state.Document) { require.Empty(t, d.Tokens) })

	e.do(textUpdate(adminID, "600 30"))
	e.state.View(func(d *state.Document) { require.Len(t, d.Tokens, 1) })
}

func TestLinkHealthCheck(t *testing.T) {
	e := newEnv(t, false)
	e.member(8)

	e.do(textUpdate(8, "https://telegra.ph/file/ok.jpg"))
	require.Equal(t, "✅ Link is reachable.", e.sender.last(8))

	e.do(textUpdate(8, "https://telegra.ph/file/gone.jpg"))
	require.Equal(t, "❌ Link is unreachable.", e.sender.last(8))
}

func TestInlineHealthCheck(t *testing.T) {
	e := newEnv(t, false)
	e.member(8)

	e.do(tgbotapi.Update{InlineQuery: &tgbotapi.InlineQuery{
		ID:    "iq1",
		From:  &tgbotapi.User{ID: 8},
		Query: "https://telegra.ph/file/ok.jpg",
	}})

	require.Len(t, e.sender.requests, 1)
	cfg, ok := e.sender.requests[0].(tgbotapi.InlineConfig)
	require.True(t, ok)
	require.Equal(t, "iq1", cfg.InlineQueryID)
	require.Len(t, cfg.Results, 1)
	article := cfg.Results[0].(tgbotapi.InlineQueryResultArticle)
	require.Equal(t, "✅ Reachable", article.Title)
}

func TestHistory(t *testing.T) {
	e := newEnv(t, false)
	e.member(7)

	e.do(commandUpdate(7, "/history"))
	require.Equal(t, textNoHistory, e.sender.last(7))

	e.do(photoUpdate(7, "f"))
	e.do(callbackUpdate(7, ActionConfirm))
	e.do(callbackUpdate(7, ActionPublishNow))
	e.h.Wait()

	e.do(commandUpdate(7, "/history"))
	require.Contains(t, e.sender.last(7), "https://telegra.ph/file/abc123")
}

func TestExpireSessions(t *testing.T) {
	e := newEnv(t, true)
	e.member(42)

	e.do(photoUpdate(42, "f"))
	require.Len(t, artifacts(t, e.dir), 1)
	require.Zero(t, e.h.ExpireSessions())

	// a store with a zero-length horizon expires everything immediately
	e.h.sessions = session.NewStore(time.Nanosecond, image.RemoveArtifact, discardLogger())
	e.h.sessions.Begin(42, 42, "f", "", "")
	time.Sleep(time.Millisecond)
	require.Equal(t, 1, e.h.ExpireSessions())
	require.Equal(t, textSessionExpired, e.sender.last(42))
}

func TestGroupMessagesIgnored(t *testing.T) {
	e := newEnv(t, false)
	u := photoUpdate(42, "f")
	u.Message.Chat = &tgbotapi.Chat{ID: -100, Type: "supergroup"}
	e.do(u)
	require.Empty(t, e.sender.sent)
}

func TestHandleUpdateRecoversPanic(t *testing.T) {
	e := newEnv(t, false)
	e.h.gate = nil // forces a nil dereference inside the handler
	require.NotPanics(t, func() { e.do(photoUpdate(42, "f")) })
}
