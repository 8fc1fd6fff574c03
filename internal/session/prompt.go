package session

import (
	"sync"
	"time"
)

// PromptKind identifies a question the bot is waiting for a text reply to.
type PromptKind string

const (
	PromptCreateToken PromptKind = "create_token"
	PromptRedeemToken PromptKind = "redeem_token"
)

// MaxPromptAttempts is how many malformed replies a prompt tolerates before
// it is dropped.
const MaxPromptAttempts = 2

// Prompt is an awaited text reply for one user.
type Prompt struct {
	Kind      PromptKind
	Attempts  int
	CreatedAt time.Time
}

// Prompts is the per-user awaited-input store. Each user has at most one
// pending prompt, so one user's reply can never be captured by another's.
type Prompts struct {
	mu      sync.Mutex
	pending map[int64]Prompt
	ttl     time.Duration
	now     func() time.Time
}

func NewPrompts(ttl time.Duration) *Prompts {
	return &Prompts{
		pending: make(map[int64]Prompt),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Await registers kind as the pending prompt for userID, replacing any other.
func (p *Prompts) Await(userID int64, kind PromptKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[userID] = Prompt{Kind: kind, CreatedAt: p.now()}
}

// Pending returns the live prompt for userID.
func (p *Prompts) Pending(userID int64) (Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.pending[userID]
	if !ok {
		return Prompt{}, false
	}
	if p.ttl > 0 && p.now().Sub(pr.CreatedAt) >= p.ttl {
		delete(p.pending, userID)
		return Prompt{}, false
	}
	return pr, true
}

// Fail records a malformed reply. It reports whether the prompt is still
// pending; after MaxPromptAttempts failures it is cleared.
func (p *Prompts) Fail(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.pending[userID]
	if !ok {
		return false
	}
	pr.Attempts++
	if pr.Attempts >= MaxPromptAttempts {
		delete(p.pending, userID)
		return false
	}
	p.pending[userID] = pr
	return true
}

// Clear drops any pending prompt for userID.
func (p *Prompts) Clear(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, userID)
}
