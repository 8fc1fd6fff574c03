package limiter

import (
	"sync"
)

// InFlight allows one running publish per user and remembers which upload
// session started it.
type InFlight struct {
	mu       sync.Mutex
	sessions map[int64]string
}

func NewInFlight() *InFlight {
	return &InFlight{sessions: make(map[int64]string)}
}

// TryAcquire claims the user's publish slot for sessionID. It fails while
// another publish of that user is running.
func (f *InFlight) TryAcquire(userID int64, sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.sessions[userID]; busy {
		return false
	}
	f.sessions[userID] = sessionID
	return true
}

// Release frees the slot if sessionID still holds it.
func (f *InFlight) Release(userID int64, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sessions[userID] == sessionID {
		delete(f.sessions, userID)
	}
}

// Holder returns the session currently publishing for userID.
func (f *InFlight) Holder(userID int64) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessions[userID]
	return id, ok
}

// Len reports the number of publishes in flight.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}
