package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// newTestStore opens a throwaway SQLite database under t.TempDir.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := openDatabase("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() { store.Close() })

	return store
}

func newTestServer(t *testing.T) *server {
	t.Helper()

	metrics := newMetrics()

	s := &server{
		cfg: &Config{
			participantTTL: time.Hour,
			secret:         []byte("test-secret"),
		},
		store:   newTestStore(t),
		rooms:   newRoomManager(0, metrics),
		flights: &flightCatalog{byName: make(map[string]*FlightTemplate)},
		metrics: metrics,
		logger:  zerolog.Nop(),
	}

	t.Cleanup(s.rooms.shutdown)

	return s
}

// seedSession inserts a session with a three-whiskey flight and its
// moderator, then force-moves it to the requested status.
func seedSession(t *testing.T, s *server, status SessionStatus) (*Session, *Participant) {
	t.Helper()

	now := time.Now().UTC()

	sess := &Session{
		ID:           uuid.NewString(),
		Code:         newInviteCode(),
		Title:        "Islay Night",
		HostName:     "Alice",
		Status:       StatusDraft,
		CurrentPhase: PhasePour,
		Weights:      defaultWeights(),
		CreatedAt:    now,
	}

	whiskeys := make([]*Whiskey, 0, 3)
	for i, name := range []string{"Ardbeg 10", "Lagavulin 16", "Laphroaig 10"} {
		whiskeys = append(whiskeys, &Whiskey{
			ID:        uuid.NewString(),
			SessionID: sess.ID,
			Position:  i,
			Name:      name,
		})
	}

	moderator := &Participant{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Name:      "Alice",
		Role:      RoleModerator,
		JoinedAt:  now,
		LastSeen:  now,
	}

	if err := s.store.CreateSession(context.Background(), sess, whiskeys, moderator); err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}

	if status != StatusDraft {
		setSessionStatus(t, s.store, sess.ID, status)
		sess.Status = status
	}

	return sess, moderator
}

// setSessionStatus writes the status column directly, bypassing the
// transition checks, so tests can start from any point in the
// lifecycle.
func setSessionStatus(t *testing.T, store *Store, sessionID string, status SessionStatus) {
	t.Helper()

	if _, err := store.db.Exec(`UPDATE session SET status = $1 WHERE id = $2`, status, sessionID); err != nil {
		t.Fatalf("Failed to set session status: %v", err)
	}
}

func setSessionPhase(t *testing.T, store *Store, sessionID string, phase TastingPhase, index int) {
	t.Helper()

	if _, err := store.db.Exec(`UPDATE session SET current_phase = $1, current_index = $2 WHERE id = $3`,
		phase, index, sessionID); err != nil {
		t.Fatalf("Failed to set session phase: %v", err)
	}
}

func seedTaster(t *testing.T, s *server, sess *Session, name string) *Participant {
	t.Helper()

	now := time.Now().UTC()

	p := &Participant{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Name:      name,
		Role:      RoleTaster,
		JoinedAt:  now,
		LastSeen:  now,
	}

	if err := s.store.AddParticipant(context.Background(), p); err != nil {
		t.Fatalf("Failed to seed taster: %v", err)
	}

	return p
}

func testToken(s *server, participantID string) string {
	return mintParticipantToken(participantID, time.Now().Add(time.Hour), s.cfg.secret)
}

// doRequest invokes a handler directly, marshalling body to JSON
// unless it is already a raw string.
func doRequest(handler httprouter.Handle, method, path string, body any, token string, params httprouter.Params) *httptest.ResponseRecorder {
	var reader io.Reader

	switch value := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(value)
	default:
		encoded, _ := json.Marshal(value)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	w := httptest.NewRecorder()
	handler(w, req, params)

	return w
}

func codeParams(code string) httprouter.Params {
	return httprouter.Params{{Key: "code", Value: code}}
}

func codeAndParam(code, key, value string) httprouter.Params {
	return httprouter.Params{{Key: "code", Value: code}, {Key: key, Value: value}}
}
