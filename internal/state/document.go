package state

import (
	"sort"
	"time"

	apperrors "imgshare-bot/internal/errors"
)

// HistoryLimit caps the per-user upload history.
const HistoryLimit = 20

// Document is the whole durable state of the bot. It is read once at
// startup and rewritten wholesale after every mutation.
type Document struct {
	Channel   string                   `json:"channel"`
	Banned    map[int64]time.Time      `json:"banned"`
	Stats     Stats                    `json:"stats"`
	Referrals map[int64]int            `json:"referrals"`
	Users     map[int64]UserRecord     `json:"users"`
	Tokens    map[string]RecoveryToken `json:"tokens"`
	Grants    map[int64]time.Time      `json:"grants"`
	History   map[int64][]HistoryEntry `json:"history"`
}

// Stats is the analytics ledger.
type Stats struct {
	TotalRequests int64         `json:"total_requests"`
	UsersSeen     map[int64]int `json:"users_seen"`
}

// UserRecord marks that a user has issued /start at least once.
type UserRecord struct {
	FirstSeen  time.Time `json:"first_seen"`
	ReferredBy int64     `json:"referred_by,omitempty"`
}

// RecoveryToken is a single-use credential bound to one user.
type RecoveryToken struct {
	Token       string    `json:"token"`
	OwnerID     int64     `json:"owner_id"`
	GrantedDays int       `json:"granted_days"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   int64     `json:"created_by"`
}

// HistoryEntry is one published link.
type HistoryEntry struct {
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// NewDocument returns an empty document with every map allocated.
func NewDocument() *Document {
	d := &Document{}
	d.normalize()
	return d
}

// normalize allocates nil maps, e.g. after decoding an older document.
func (d *Document) normalize() {
	if d.Banned == nil {
		d.Banned = make(map[int64]time.Time)
	}
	if d.Stats.UsersSeen == nil {
		d.Stats.UsersSeen = make(map[int64]int)
	}
	if d.Referrals == nil {
		d.Referrals = make(map[int64]int)
	}
	if d.Users == nil {
		d.Users = make(map[int64]UserRecord)
	}
	if d.Tokens == nil {
		d.Tokens = make(map[string]RecoveryToken)
	}
	if d.Grants == nil {
		d.Grants = make(map[int64]time.Time)
	}
	if d.History == nil {
		d.History = make(map[int64][]HistoryEntry)
	}
}

// Clone returns a deep copy safe to mutate independently.
func (d *Document) Clone() *Document {
	c := &Document{
		Channel: d.Channel,
		Stats: Stats{
			TotalRequests: d.Stats.TotalRequests,
			UsersSeen:     make(map[int64]int, len(d.Stats.UsersSeen)),
		},
		Banned:    make(map[int64]time.Time, len(d.Banned)),
		Referrals: make(map[int64]int, len(d.Referrals)),
		Users:     make(map[int64]UserRecord, len(d.Users)),
		Tokens:    make(map[string]RecoveryToken, len(d.Tokens)),
		Grants:    make(map[int64]time.Time, len(d.Grants)),
		History:   make(map[int64][]HistoryEntry, len(d.History)),
	}
	for k, v := range d.Stats.UsersSeen {
		c.Stats.UsersSeen[k] = v
	}
	for k, v := range d.Banned {
		c.Banned[k] = v
	}
	for k, v := range d.Referrals {
		c.Referrals[k] = v
	}
	for k, v := range d.Users {
		c.Users[k] = v
	}
	for k, v := range d.Tokens {
		c.Tokens[k] = v
	}
	for k, v := range d.Grants {
		c.Grants[k] = v
	}
	for k, v := range d.History {
		c.History[k] = append([]HistoryEntry(nil), v...)
	}
	return c
}

// IsBanned reports ban-list membership.
func (d *Document) IsBanned(userID int64) bool {
	_, ok := d.Banned[userID]
	return ok
}

// Ban adds userID to the ban list. It reports whether the list changed.
func (d *Document) Ban(userID int64, at time.Time) bool {
	if d.IsBanned(userID) {
		return false
	}
	d.Banned[userID] = at
	return true
}

// Unban removes userID from the ban list. It reports whether the list changed.
func (d *Document) Unban(userID int64) bool {
	if !d.IsBanned(userID) {
		return false
	}
	delete(d.Banned, userID)
	return true
}

// BannedIDs returns the ban list in ascending order.
func (d *Document) BannedIDs() []int64 {
	ids := make([]int64, 0, len(d.Banned))
	for id := range d.Banned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecordPublish attributes one successful publish to userID.
func (d *Document) RecordPublish(userID int64, link string, at time.Time) {
	d.Stats.TotalRequests++
	d.Stats.UsersSeen[userID]++

	h := append(d.History[userID], HistoryEntry{Link: link, PublishedAt: at})
	if len(h) > HistoryLimit {
		h = h[len(h)-HistoryLimit:]
	}
	d.History[userID] = h
}

// ResetStats zeroes the analytics ledger.
func (d *Document) ResetStats() {
	d.Stats = Stats{UsersSeen: make(map[int64]int)}
}

// RegisterStart records a user's /start. The referral counts only on the
// user's first start and never when the code is the user's own identity.
// It reports whether a referral was credited.
func (d *Document) RegisterStart(userID, referrer int64, at time.Time) bool {
	if _, seen := d.Users[userID]; seen {
		return false
	}
	rec := UserRecord{FirstSeen: at}
	credited := referrer != 0 && referrer != userID
	if credited {
		rec.ReferredBy = referrer
		d.Referrals[referrer]++
	}
	d.Users[userID] = rec
	return credited
}

// IssueToken stores a new recovery token.
func (d *Document) IssueToken(tok RecoveryToken) {
	d.Tokens[tok.Token] = tok
}

// RedeemToken consumes token for userID and extends the user's grant.
// The token is removed in the same mutation that returns it.
func (d *Document) RedeemToken(token string, userID int64, now time.Time) (RecoveryToken, time.Time, error) {
	tok, ok := d.Tokens[token]
	if !ok || tok.OwnerID != userID {
		return RecoveryToken{}, time.Time{}, apperrors.ErrInvalidToken
	}
	delete(d.Tokens, token)

	base := now
	if until, ok := d.Grants[userID]; ok && until.After(now) {
		base = until
	}
	until := base.AddDate(0, 0, tok.GrantedDays)
	d.Grants[userID] = until
	return tok, until, nil
}

// HasGrant reports whether userID holds an unexpired access grant.
func (d *Document) HasGrant(userID int64, now time.Time) bool {
	until, ok := d.Grants[userID]
	return ok && until.After(now)
}

// UserHistory returns a copy of userID's history, newest last.
func (d *Document) UserHistory(userID int64) []HistoryEntry {
	return append([]HistoryEntry(nil), d.History[userID]...)
}
