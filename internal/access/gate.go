package access

import (
	"context"
	"log/slog"
	"time"

	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/membership"
	"imgshare-bot/internal/metrics"
	"imgshare-bot/internal/state"
)

// Reason explains a gate decision.
type Reason string

const (
	ReasonAdmin        Reason = "admin"
	ReasonFreeMode     Reason = "free_mode"
	ReasonNoChannel    Reason = "no_channel"
	ReasonBanned       Reason = "banned"
	ReasonGrant        Reason = "grant"
	ReasonCached       Reason = "cached"
	ReasonMember       Reason = "member"
	ReasonNotMember    Reason = "not_member"
	ReasonLookupFailed Reason = "lookup_failed"
)

// Decision is the outcome of CheckAccess.
type Decision struct {
	Admitted bool
	Reason   Reason
	Channel  string
}

// MemberLookup asks the platform for a user's status in channel, e.g.
// "creator", "administrator", "member", "left" or "kicked".
type MemberLookup interface {
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// Policy exposes the durable ban list, grants and channel.
type Policy interface {
	View(fn func(d *state.Document))
}

// Gate decides whether a user may proceed.
type Gate struct {
	admins   map[int64]struct{}
	freeMode bool
	fallback string
	policy   Policy
	cache    *membership.Cache
	lookup   MemberLookup
	now      func() time.Time
	logger   *slog.Logger
}

// NewGate creates an access gate. fallbackChannel is used while the durable
// state has no channel set.
func NewGate(adminIDs []int64, freeMode bool, fallbackChannel string, policy Policy,
	cache *membership.Cache, lookup MemberLookup, logger *slog.Logger) *Gate {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Gate{
		admins:   admins,
		freeMode: freeMode,
		fallback: fallbackChannel,
		policy:   policy,
		cache:    cache,
		lookup:   lookup,
		now:      time.Now,
		logger:   logger,
	}
}

// IsAdmin reports whether userID is a configured administrator.
func (g *Gate) IsAdmin(userID int64) bool {
	_, ok := g.admins[userID]
	return ok
}

// FreeMode reports whether everyone is admitted.
func (g *Gate) FreeMode() bool {
	return g.freeMode
}

// Channel is the channel users must join.
func (g *Gate) Channel() string {
	var ch string
	g.policy.View(func(d *state.Document) { ch = d.Channel })
	if ch == "" {
		ch = g.fallback
	}
	return ch
}

// CheckAccess decides for userID. A denial comes back as ErrBanned or
// ErrNotSubscribed alongside the decision.
//
// Order: admin or free mode, ban, recovery grant, cached admission, live
// lookup. Only admissions are cached.
func (g *Gate) CheckAccess(ctx context.Context, userID int64) (Decision, error) {
	d, err := g.decide(ctx, userID)
	result := "admitted"
	if !d.Admitted {
		result = "denied"
	}
	metrics.GateDecisions.WithLabelValues(result, string(d.Reason)).Inc()
	return d, err
}

func (g *Gate) decide(ctx context.Context, userID int64) (Decision, error) {
	if g.IsAdmin(userID) {
		return Decision{Admitted: true, Reason: ReasonAdmin}, nil
	}
	if g.freeMode {
		return Decision{Admitted: true, Reason: ReasonFreeMode}, nil
	}

	var banned, granted bool
	var channel string
	now := g.now()
	g.policy.View(func(d *state.Document) {
		banned = d.IsBanned(userID)
		granted = d.HasGrant(userID, now)
		channel = d.Channel
	})
	if channel == "" {
		channel = g.fallback
	}

	if banned {
		g.logger.Debug("access denied", "user_id", userID, "reason", ReasonBanned)
		return Decision{Reason: ReasonBanned, Channel: channel}, apperrors.ErrBanned
	}
	if granted {
		return Decision{Admitted: true, Reason: ReasonGrant, Channel: channel}, nil
	}
	if channel == "" {
		return Decision{Admitted: true, Reason: ReasonNoChannel}, nil
	}

	if e, ok := g.cache.Get(userID); ok && e.Admitted {
		return Decision{Admitted: true, Reason: ReasonCached, Channel: channel}, nil
	}

	status, err := g.lookup.MemberStatus(ctx, channel, userID)
	if err != nil {
		// usually a bot that cannot read the channel's member list
		g.logger.Warn("membership lookup failed", "user_id", userID, "channel", channel, "reason", ReasonLookupFailed, "error", err)
		return Decision{Reason: ReasonLookupFailed, Channel: channel}, apperrors.ErrNotSubscribed
	}

	if !IsMemberStatus(status) {
		g.logger.Debug("access denied", "user_id", userID, "channel", channel, "reason", ReasonNotMember, "status", status)
		return Decision{Reason: ReasonNotMember, Channel: channel}, apperrors.ErrNotSubscribed
	}

	g.cache.Admit(userID)
	return Decision{Admitted: true, Reason: ReasonMember, Channel: channel}, nil
}

// IsMemberStatus reports whether a chat member status counts as joined.
func IsMemberStatus(status string) bool {
	switch status {
	case "creator", "administrator", "member":
		return true
	default:
		return false
	}
}

// ChannelChanged drops every cached admission.
func (g *Gate) ChannelChanged() {
	g.cache.Purge()
}

// Forget drops the cached admission of userID, e.g. after a ban.
func (g *Gate) Forget(userID int64) {
	g.cache.Invalidate(userID)
}
