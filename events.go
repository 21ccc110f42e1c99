package main

// Event types pushed to connected clients. Every message carries a
// "type" field so frontends can switch on it.
const (
	EventWelcome           = "welcome"
	EventPresence          = "presence"
	EventParticipantJoined = "participant_joined"
	EventParticipantKicked = "participant_kicked"
	EventSessionLocked     = "session_locked"
	EventStatusChanged     = "status_changed"
	EventPhaseChanged      = "phase_changed"
	EventScoreProgress     = "score_progress"
	EventSessionRevealed   = "session_revealed"
	EventSessionCompleted  = "session_completed"
)

// WelcomeEvent is sent once to a client right after it connects. The
// embedded view is built for that client's role, so tasters never see
// bottle identities here.
type WelcomeEvent struct {
	Type    string       `json:"type"`
	Session *SessionView `json:"session"`
}

// PresenceEvent fires when a participant's socket connects or drops.
type PresenceEvent struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Online        bool   `json:"online"`
}

type ParticipantJoinedEvent struct {
	Type        string          `json:"type"`
	Participant ParticipantView `json:"participant"`
}

type ParticipantKickedEvent struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
}

type SessionLockedEvent struct {
	Type   string `json:"type"`
	Locked bool   `json:"locked"`
}

type StatusChangedEvent struct {
	Type   string        `json:"type"`
	Status SessionStatus `json:"status"`
}

// PhaseChangedEvent carries the blind label only; positions map to
// labels client-side the same way.
type PhaseChangedEvent struct {
	Type     string       `json:"type"`
	Phase    TastingPhase `json:"phase"`
	Position int          `json:"position"`
	Label    string       `json:"label"`
}

// ScoreProgressEvent reports how many tasters have scored a whiskey.
// Counts only - ballot contents stay private until reveal.
type ScoreProgressEvent struct {
	Type      string `json:"type"`
	WhiskeyID string `json:"whiskey_id"`
	Label     string `json:"label"`
	Scored    int    `json:"scored"`
	Tasters   int    `json:"tasters"`
}

type SessionRevealedEvent struct {
	Type    string          `json:"type"`
	Results *ResultSnapshot `json:"results"`
}

type SessionCompletedEvent struct {
	Type string `json:"type"`
}
