package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "imgshare-bot/internal/errors"
)

// DefaultTTL bounds how long an unresolved session lives.
const DefaultTTL = 24 * time.Hour

// ErrSessionMismatch is returned when a completion refers to a session that
// was cancelled or replaced in the meantime.
var ErrSessionMismatch = errors.New("session no longer current")

// ArtifactReleaser deletes a local artifact.
type ArtifactReleaser func(path string) error

// Store is a map of live sessions keyed by user. Every path that removes a
// session releases the artifact it still owns exactly once.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	release  ArtifactReleaser
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates a session store. release may be nil when sessions never
// own local artifacts.
func NewStore(ttl time.Duration, release ArtifactReleaser, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[int64]*Session),
		release:  release,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Begin creates a fresh session for ownerID, destroying any previous one
// and releasing its artifact first.
func (s *Store) Begin(ownerID, chatID int64, sourceRef, caption, artifactPath string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sessions[ownerID]; ok {
		s.logger.Debug("replacing session", "user_id", ownerID, "old_session", old.ID, "old_state", old.State)
		s.removeLocked(old)
	}

	now := s.now()
	sess := &Session{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		ChatID:       chatID,
		SourceRef:    sourceRef,
		ArtifactPath: artifactPath,
		Caption:      caption,
		State:        StateAwaitingConfirmation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.sessions[ownerID] = sess
	return *sess
}

// Get returns a copy of the live session for ownerID.
func (s *Store) Get(ownerID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[ownerID]
	if !ok {
		return Session{}, false
	}
	if s.expiredLocked(sess) {
		s.removeLocked(sess)
		return Session{}, false
	}
	return *sess, true
}

// Transition applies ev to the live session of ownerID.
//
// The returned copy reflects the session right after the event. For events
// that remove the session it is the final state before removal.
// PublishNow and ScheduleCommitted hand the artifact to the caller: the
// returned copy carries ArtifactPath and the store no longer owns it.
func (s *Store) Transition(ownerID int64, ev Event) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[ownerID]
	if !ok || s.expiredLocked(sess) {
		if ok {
			s.removeLocked(sess)
		}
		return Session{}, apperrors.ErrNoPendingUpload
	}

	return s.applyLocked(sess, ev)
}

// Complete ends a publish started from session sessionID. If the user has
// since cancelled or started a new upload, the live session is left alone
// and ErrSessionMismatch is returned.
func (s *Store) Complete(ownerID int64, sessionID string, ev Event) (Session, error) {
	if ev != EventPublishCompleted && ev != EventPublishFailed {
		return Session{}, apperrors.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[ownerID]
	if !ok || sess.ID != sessionID {
		return Session{}, ErrSessionMismatch
	}
	return s.applyLocked(sess, ev)
}

func (s *Store) applyLocked(sess *Session, ev Event) (Session, error) {
	if terminal[sess.State][ev] {
		out := *sess
		if ev == EventScheduleCommitted {
			// the scheduled job owns the artifact from here on
			sess.ArtifactPath = ""
		}
		s.removeLocked(sess)
		return out, nil
	}

	next, ok := transitions[sess.State][ev]
	if !ok {
		return *sess, apperrors.ErrInvalidTransition
	}

	out := *sess
	out.State = next
	if ev == EventPublishNow {
		// the in-flight publish owns the artifact; Cancel must not delete it
		sess.ArtifactPath = ""
	}
	sess.State = next
	sess.InvalidInputs = 0
	sess.UpdatedAt = s.now()
	out.UpdatedAt = sess.UpdatedAt
	out.InvalidInputs = 0
	return out, nil
}

// NoteInvalidInput counts a malformed reply to the schedule-time prompt and
// returns the running total.
func (s *Store) NoteInvalidInput(ownerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[ownerID]
	if !ok {
		return 0, apperrors.ErrNoPendingUpload
	}
	sess.InvalidInputs++
	sess.UpdatedAt = s.now()
	return sess.InvalidInputs, nil
}

// SetPreviewMessage remembers the preview message of session sessionID.
func (s *Store) SetPreviewMessage(ownerID int64, sessionID string, messageID int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[ownerID]; ok && sess.ID == sessionID {
		sess.PreviewMessageID = messageID
	}
}

// End removes the session for ownerID, if any. Calling it twice is harmless.
func (s *Store) End(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[ownerID]; ok {
		s.removeLocked(sess)
	}
}

// Sweep removes sessions older than the TTL and returns them. Sessions that
// are publishing are left for their completion to clean up.
func (s *Store) Sweep() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Session
	for _, sess := range s.sessions {
		if sess.State == StatePublishing || !s.expiredLocked(sess) {
			continue
		}
		expired = append(expired, *sess)
		s.removeLocked(sess)
	}
	return expired
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expiredLocked(sess *Session) bool {
	return sess.State != StatePublishing && s.now().Sub(sess.CreatedAt) >= s.ttl
}

// removeLocked deletes sess from the map and releases its artifact.
func (s *Store) removeLocked(sess *Session) {
	delete(s.sessions, sess.OwnerID)

	path := sess.ArtifactPath
	sess.ArtifactPath = ""
	if path == "" || s.release == nil {
		return
	}
	if err := s.release(path); err != nil {
		s.logger.Warn("failed to release artifact", "error", err, "user_id", sess.OwnerID, "path", path)
	}
}
