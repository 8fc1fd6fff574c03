// Package session tracks each user's in-flight upload from receipt until it
// is cancelled, published or handed to the scheduler.
package session

import (
	"time"
)

// State of a live upload session. Absence from the store is the initial and
// terminal state.
type State string

const (
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateChoosingTiming       State = "choosing_timing"
	StateAwaitingScheduleTime State = "awaiting_schedule_time"
	StatePublishing           State = "publishing"
)

// Event drives a session transition.
type Event string

const (
	EventConfirm           Event = "confirm"
	EventCancel            Event = "cancel"
	EventPublishNow        Event = "publish_now"
	EventScheduleRequested Event = "schedule_requested"
	EventScheduleCommitted Event = "schedule_committed"
	EventPublishCompleted  Event = "publish_completed"
	EventPublishFailed     Event = "publish_failed"
)

// Session is one user's upload. Values returned by the Store are copies.
type Session struct {
	ID               string
	OwnerID          int64
	ChatID           int64
	SourceRef        string
	ArtifactPath     string
	Caption          string
	State            State
	PreviewMessageID int
	InvalidInputs    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Snapshot is the immutable part of a session that a publish needs.
type Snapshot struct {
	SessionID    string
	OwnerID      int64
	ChatID       int64
	SourceRef    string
	ArtifactPath string
	Caption      string
}

// Snapshot copies the publish inputs out of s.
func (s Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:    s.ID,
		OwnerID:      s.OwnerID,
		ChatID:       s.ChatID,
		SourceRef:    s.SourceRef,
		ArtifactPath: s.ArtifactPath,
		Caption:      s.Caption,
	}
}

// transitions lists the legal non-terminal moves.
var transitions = map[State]map[Event]State{
	StateAwaitingConfirmation: {
		EventConfirm: StateChoosingTiming,
	},
	StateChoosingTiming: {
		EventPublishNow:        StatePublishing,
		EventScheduleRequested: StateAwaitingScheduleTime,
	},
}

// terminal lists the events that remove the session, per source state.
var terminal = map[State]map[Event]bool{
	StateAwaitingConfirmation: {EventCancel: true},
	StateChoosingTiming:       {EventCancel: true},
	StateAwaitingScheduleTime: {EventCancel: true, EventScheduleCommitted: true},
	StatePublishing:           {EventCancel: true, EventPublishCompleted: true, EventPublishFailed: true},
}
