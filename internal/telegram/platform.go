package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxFileSize matches the Bot API download limit.
const maxFileSize = 20 << 20

// Sender is the part of the Bot API the handlers talk to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// FileFetcher downloads files by their platform file id.
type FileFetcher struct {
	api        *tgbotapi.BotAPI
	httpClient *http.Client
}

func NewFileFetcher(api *tgbotapi.BotAPI) *FileFetcher {
	return &FileFetcher{api: api, httpClient: &http.Client{}}
}

// Fetch resolves fileID to its token-scoped URL and downloads it. The
// caller bounds the download through ctx.
func (f *FileFetcher) Fetch(ctx context.Context, fileID string) ([]byte, error) {
	link, err := f.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		// the URL embeds the bot token; keep it out of logs
		return nil, fmt.Errorf("download file %s: %w", fileID, unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file %s: status %d", fileID, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, maxFileSize)
	}
	return data, nil
}

func unwrapURLError(err error) error {
	if ue, ok := err.(interface{ Unwrap() error }); ok {
		if inner := ue.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}

// MemberLookup reads channel membership through getChatMember.
type MemberLookup struct {
	api *tgbotapi.BotAPI
}

func NewMemberLookup(api *tgbotapi.BotAPI) *MemberLookup {
	return &MemberLookup{api: api}
}

// MemberStatus returns the raw member status of userID in channel.
func (m *MemberLookup) MemberStatus(_ context.Context, channel string, userID int64) (string, error) {
	member, err := m.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: channel,
			UserID:             userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("get chat member: %w", err)
	}
	return member.Status, nil
}
