package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "imgshare-bot/internal/errors"
)

var t0 = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

func TestRegisterStart_SelfReferralRejected(t *testing.T) {
	d := NewDocument()

	require.False(t, d.RegisterStart(42, 42, t0))
	require.Empty(t, d.Referrals)
	require.Contains(t, d.Users, int64(42))
}

func TestRegisterStart_OnlyFirstStartCounts(t *testing.T) {
	d := NewDocument()

	require.True(t, d.RegisterStart(5, 9, t0))
	require.False(t, d.RegisterStart(5, 9, t0.Add(time.Minute)))
	require.Equal(t, 1, d.Referrals[9])
	require.Equal(t, int64(9), d.Users[5].ReferredBy)

	require.False(t, d.RegisterStart(6, 0, t0))
	require.Equal(t, 1, d.Referrals[9])
}

func TestRecordPublish(t *testing.T) {
	d := NewDocument()
	d.RecordPublish(7, "https://telegra.ph/file/a", t0)
	d.RecordPublish(7, "https://telegra.ph/file/b", t0)
	d.RecordPublish(8, "https://telegra.ph/file/c", t0)

	require.Equal(t, int64(3), d.Stats.TotalRequests)
	require.Equal(t, 2, d.Stats.UsersSeen[7])
	require.Len(t, d.UserHistory(7), 2)

	d.ResetStats()
	require.Zero(t, d.Stats.TotalRequests)
	require.Empty(t, d.Stats.UsersSeen)
	require.Len(t, d.UserHistory(7), 2, "reset leaves history alone")
}

func TestRecordPublish_HistoryCapped(t *testing.T) {
	d := NewDocument()
	for i := 0; i < HistoryLimit+5; i++ {
		d.RecordPublish(1, "l", t0.Add(time.Duration(i)*time.Second))
	}
	h := d.UserHistory(1)
	require.Len(t, h, HistoryLimit)
	require.Equal(t, t0.Add(time.Duration(HistoryLimit+4)*time.Second), h[len(h)-1].PublishedAt)
}

func TestRedeemToken_SingleUse(t *testing.T) {
	d := NewDocument()
	d.IssueToken(RecoveryToken{Token: "abc", OwnerID: 3, GrantedDays: 7, CreatedAt: t0})

	tok, until, err := d.RedeemToken("abc", 3, t0)
	require.NoError(t, err)
	require.Equal(t, 7, tok.GrantedDays)
	require.Equal(t, t0.AddDate(0, 0, 7), until)
	require.True(t, d.HasGrant(3, t0.Add(time.Hour)))
	require.False(t, d.HasGrant(3, until))

	_, _, err = d.RedeemToken("abc", 3, t0)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestRedeemToken_WrongOwner(t *testing.T) {
	d := NewDocument()
	d.IssueToken(RecoveryToken{Token: "abc", OwnerID: 3, GrantedDays: 1})

	_, _, err := d.RedeemToken("abc", 4, t0)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
	require.Contains(t, d.Tokens, "abc", "failed redemption keeps the token")
}

func TestRedeemToken_ExtendsActiveGrant(t *testing.T) {
	d := NewDocument()
	d.Grants[3] = t0.AddDate(0, 0, 2)
	d.IssueToken(RecoveryToken{Token: "x", OwnerID: 3, GrantedDays: 5})

	_, until, err := d.RedeemToken("x", 3, t0)
	require.NoError(t, err)
	require.Equal(t, t0.AddDate(0, 0, 7), until)
}

func TestBanUnban(t *testing.T) {
	d := NewDocument()
	require.True(t, d.Ban(55, t0))
	require.False(t, d.Ban(55, t0))
	require.True(t, d.Ban(12, t0))
	require.Equal(t, []int64{12, 55}, d.BannedIDs())
	require.True(t, d.Unban(55))
	require.False(t, d.Unban(55))
	require.False(t, d.IsBanned(55))
}

func TestClone_IsDeep(t *testing.T) {
	d := NewDocument()
	d.RecordPublish(1, "a", t0)
	d.Ban(2, t0)

	c := d.Clone()
	c.RecordPublish(1, "b", t0)
	c.Unban(2)

	require.Equal(t, int64(1), d.Stats.TotalRequests)
	require.Len(t, d.UserHistory(1), 1)
	require.True(t, d.IsBanned(2))
}
