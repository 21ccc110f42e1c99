package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCreateSessionRoundtrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, moderator := seedSession(t, s, StatusDraft)

	got, err := s.store.SessionByCode(ctx, sess.Code)
	if err != nil {
		t.Fatalf("Failed to load session by code: %v", err)
	}

	if got.ID != sess.ID {
		t.Errorf("Expected session ID %s, got %s", sess.ID, got.ID)
	}
	if got.Title != "Islay Night" {
		t.Errorf("Expected title %q, got %q", "Islay Night", got.Title)
	}
	if got.Status != StatusDraft {
		t.Errorf("Expected status draft, got %s", got.Status)
	}
	if got.Weights != defaultWeights() {
		t.Errorf("Expected default weights, got %+v", got.Weights)
	}
	if got.OpenedAt != nil {
		t.Errorf("Expected nil opened_at on a draft, got %v", got.OpenedAt)
	}

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}
	if len(whiskeys) != 3 {
		t.Fatalf("Expected 3 whiskeys, got %d", len(whiskeys))
	}
	for i, w := range whiskeys {
		if w.Position != i {
			t.Errorf("Expected position %d, got %d for %s", i, w.Position, w.Name)
		}
	}

	participants, err := s.store.Participants(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load participants: %v", err)
	}
	if len(participants) != 1 || participants[0].ID != moderator.ID {
		t.Fatalf("Expected the moderator alone on the roster, got %d participants", len(participants))
	}
	if participants[0].Role != RoleModerator {
		t.Errorf("Expected role moderator, got %s", participants[0].Role)
	}
}

func TestSessionByCodeUnknown(t *testing.T) {
	s := newTestServer(t)

	_, err := s.store.SessionByCode(context.Background(), "ZZZZZZ")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}

func TestUpdateSessionStatusCAS(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess, _ := seedSession(t, s, StatusDraft)

	ok, err := s.store.UpdateSessionStatus(ctx, sess.ID, StatusDraft, StatusWaiting, now)
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	if !ok {
		t.Fatal("Expected the first transition to apply")
	}

	// Stale expected status matches zero rows.
	ok, err = s.store.UpdateSessionStatus(ctx, sess.ID, StatusDraft, StatusWaiting, now)
	if err != nil {
		t.Fatalf("Unexpected error on stale transition: %v", err)
	}
	if ok {
		t.Error("Expected the stale transition to be rejected")
	}

	got, err := s.store.SessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to reload session: %v", err)
	}
	if got.Status != StatusWaiting {
		t.Errorf("Expected status waiting, got %s", got.Status)
	}
	if got.OpenedAt == nil {
		t.Error("Expected opened_at to be stamped")
	}

	ok, err = s.store.UpdateSessionStatus(ctx, sess.ID, StatusWaiting, StatusActive, now)
	if err != nil || !ok {
		t.Fatalf("Failed to start session: ok=%t err=%v", ok, err)
	}

	got, err = s.store.SessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to reload session: %v", err)
	}
	if got.StartedAt == nil {
		t.Error("Expected started_at to be stamped")
	}
	if got.CurrentIndex != 0 || got.CurrentPhase != PhasePour {
		t.Errorf("Expected the flight to start at pour/0, got %s/%d", got.CurrentPhase, got.CurrentIndex)
	}
}

func TestSetSessionPhaseCAS(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, _ := seedSession(t, s, StatusActive)
	setSessionPhase(t, s.store, sess.ID, PhasePour, 0)

	ok, err := s.store.SetSessionPhase(ctx, sess.ID, PhasePour, 0, PhaseNose, 0)
	if err != nil {
		t.Fatalf("Failed to advance phase: %v", err)
	}
	if !ok {
		t.Fatal("Expected the phase change to apply")
	}

	// A second advance from the same stale snapshot must miss.
	ok, err = s.store.SetSessionPhase(ctx, sess.ID, PhasePour, 0, PhaseNose, 0)
	if err != nil {
		t.Fatalf("Unexpected error on stale phase change: %v", err)
	}
	if ok {
		t.Error("Expected the stale phase change to be rejected")
	}

	got, err := s.store.SessionByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to reload session: %v", err)
	}
	if got.CurrentPhase != PhaseNose || got.CurrentIndex != 0 {
		t.Errorf("Expected nose/0, got %s/%d", got.CurrentPhase, got.CurrentIndex)
	}
}

func TestAddParticipantDuplicateName(t *testing.T) {
	s := newTestServer(t)

	sess, _ := seedSession(t, s, StatusWaiting)
	seedTaster(t, s, sess, "Bob")

	dup := &Participant{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Name:      "BOB",
		Role:      RoleTaster,
		JoinedAt:  time.Now().UTC(),
		LastSeen:  time.Now().UTC(),
	}

	err := s.store.AddParticipant(context.Background(), dup)
	if !errors.Is(err, errNameTaken) {
		t.Errorf("Expected errNameTaken for a case-insensitive duplicate, got %v", err)
	}
}

func TestRemoveWhiskeyRenumbers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, _ := seedSession(t, s, StatusDraft)

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	// Drop the middle pour; the third moves up.
	if err := s.store.RemoveWhiskey(ctx, sess.ID, whiskeys[1].ID); err != nil {
		t.Fatalf("Failed to remove whiskey: %v", err)
	}

	remaining, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to reload whiskeys: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("Expected 2 whiskeys, got %d", len(remaining))
	}

	if remaining[0].Name != "Ardbeg 10" || remaining[0].Position != 0 {
		t.Errorf("Expected Ardbeg 10 at position 0, got %s at %d", remaining[0].Name, remaining[0].Position)
	}
	if remaining[1].Name != "Laphroaig 10" || remaining[1].Position != 1 {
		t.Errorf("Expected Laphroaig 10 at position 1, got %s at %d", remaining[1].Name, remaining[1].Position)
	}

	if err := s.store.RemoveWhiskey(ctx, sess.ID, whiskeys[1].ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows removing a missing whiskey, got %v", err)
	}
}

func TestAddWhiskeysAppendsPositions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, _ := seedSession(t, s, StatusDraft)

	added := []*Whiskey{
		{ID: uuid.NewString(), SessionID: sess.ID, Name: "Talisker 10"},
		{ID: uuid.NewString(), SessionID: sess.ID, Name: "Oban 14"},
	}

	if err := s.store.AddWhiskeys(ctx, sess.ID, added); err != nil {
		t.Fatalf("Failed to add whiskeys: %v", err)
	}

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}
	if len(whiskeys) != 5 {
		t.Fatalf("Expected 5 whiskeys, got %d", len(whiskeys))
	}
	if whiskeys[3].Name != "Talisker 10" || whiskeys[3].Position != 3 {
		t.Errorf("Expected Talisker 10 at position 3, got %s at %d", whiskeys[3].Name, whiskeys[3].Position)
	}
	if whiskeys[4].Name != "Oban 14" || whiskeys[4].Position != 4 {
		t.Errorf("Expected Oban 14 at position 4, got %s at %d", whiskeys[4].Name, whiskeys[4].Position)
	}
}

func TestUpsertScore(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, _ := seedSession(t, s, StatusActive)
	taster := seedTaster(t, s, sess, "Bob")

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	score := &Score{
		ParticipantID: taster.ID,
		WhiskeyID:     whiskeys[0].ID,
		SessionID:     sess.ID,
		Nose:          80,
		Palate:        85,
		Finish:        75,
		Balance:       70,
		Total:         sess.Weights.weightedTotal(80, 85, 75, 70),
		Notes:         "Peat and brine",
		UpdatedAt:     time.Now().UTC(),
	}

	created, err := s.store.UpsertScore(ctx, score)
	if err != nil {
		t.Fatalf("Failed to insert score: %v", err)
	}
	if !created {
		t.Error("Expected the first submission to report created")
	}
	if score.SubmittedAt.IsZero() || !score.SubmittedAt.Equal(score.UpdatedAt) {
		t.Errorf("Expected submitted_at == updated_at on first submission, got %v and %v",
			score.SubmittedAt, score.UpdatedAt)
	}

	firstSubmitted := score.SubmittedAt

	revision := &Score{
		ParticipantID: taster.ID,
		WhiskeyID:     whiskeys[0].ID,
		SessionID:     sess.ID,
		Nose:          90,
		Palate:        85,
		Finish:        75,
		Balance:       70,
		Total:         sess.Weights.weightedTotal(90, 85, 75, 70),
		UpdatedAt:     time.Now().UTC(),
	}

	created, err = s.store.UpsertScore(ctx, revision)
	if err != nil {
		t.Fatalf("Failed to revise score: %v", err)
	}
	if created {
		t.Error("Expected the revision to report an update, not a create")
	}
	if !revision.SubmittedAt.Equal(firstSubmitted) {
		t.Errorf("Expected submitted_at to survive revision, got %v instead of %v",
			revision.SubmittedAt, firstSubmitted)
	}

	scores, err := s.store.ScoresByParticipant(ctx, sess.ID, taster.ID)
	if err != nil {
		t.Fatalf("Failed to load scores: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("Expected 1 score after revision, got %d", len(scores))
	}
	if scores[0].Nose != 90 {
		t.Errorf("Expected revised nose 90, got %d", scores[0].Nose)
	}
	if scores[0].Notes != "" {
		t.Errorf("Expected revision to replace notes, got %q", scores[0].Notes)
	}

	count, err := s.store.WhiskeyScoreCount(ctx, whiskeys[0].ID)
	if err != nil {
		t.Fatalf("Failed to count scores: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 ballot for the whiskey, got %d", count)
	}
}

func TestRevealSession(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	now := time.Now().UTC()

	sess, _ := seedSession(t, s, StatusActive)
	bob := seedTaster(t, s, sess, "Bob")
	carol := seedTaster(t, s, sess, "Carol")

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	for _, taster := range []*Participant{bob, carol} {
		for i, w := range whiskeys {
			score := &Score{
				ParticipantID: taster.ID,
				WhiskeyID:     w.ID,
				SessionID:     sess.ID,
				Nose:          60 + 10*i,
				Palate:        60 + 10*i,
				Finish:        60 + 10*i,
				Balance:       60 + 10*i,
				Total:         sess.Weights.weightedTotal(60+10*i, 60+10*i, 60+10*i, 60+10*i),
				UpdatedAt:     now,
			}
			if _, err := s.store.UpsertScore(ctx, score); err != nil {
				t.Fatalf("Failed to seed score: %v", err)
			}
		}
	}

	snapshot, revealed, err := s.store.RevealSession(ctx, sess.ID, uuid.NewString(), now)
	if err != nil {
		t.Fatalf("Failed to reveal session: %v", err)
	}

	if revealed.Status != StatusReveal {
		t.Errorf("Expected status reveal, got %s", revealed.Status)
	}
	if revealed.RevealedAt == nil {
		t.Error("Expected revealed_at to be stamped")
	}
	if snapshot.Tasters != 2 {
		t.Errorf("Expected 2 tasters in the snapshot, got %d", snapshot.Tasters)
	}
	if len(snapshot.Rankings) != 3 {
		t.Fatalf("Expected 3 rankings, got %d", len(snapshot.Rankings))
	}

	// The third pour got the highest scores across the board.
	if snapshot.Rankings[0].Whiskey.Name != "Laphroaig 10" || snapshot.Rankings[0].Rank != 1 {
		t.Errorf("Expected Laphroaig 10 at rank 1, got %s at rank %d",
			snapshot.Rankings[0].Whiskey.Name, snapshot.Rankings[0].Rank)
	}

	// A second reveal finds no active or paused session.
	if _, _, err := s.store.RevealSession(ctx, sess.ID, uuid.NewString(), now); !errors.Is(err, errBadTransition) {
		t.Errorf("Expected errBadTransition on a repeated reveal, got %v", err)
	}

	stored, err := s.store.SnapshotBySession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if stored.ID != snapshot.ID {
		t.Errorf("Expected snapshot %s, got %s", snapshot.ID, stored.ID)
	}
	if stored.Tasters != 2 || len(stored.Rankings) != 3 {
		t.Errorf("Expected the stored snapshot to decode intact, got %d tasters and %d rankings",
			stored.Tasters, len(stored.Rankings))
	}
}

func TestRemoveParticipant(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, moderator := seedSession(t, s, StatusActive)
	taster := seedTaster(t, s, sess, "Bob")

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	score := &Score{
		ParticipantID: taster.ID,
		WhiskeyID:     whiskeys[0].ID,
		SessionID:     sess.ID,
		Nose:          80, Palate: 80, Finish: 80, Balance: 80,
		Total:     80,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.store.UpsertScore(ctx, score); err != nil {
		t.Fatalf("Failed to seed score: %v", err)
	}

	// The moderator is excluded from removal.
	if err := s.store.RemoveParticipant(ctx, sess.ID, moderator.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows removing the moderator, got %v", err)
	}

	if err := s.store.RemoveParticipant(ctx, sess.ID, taster.ID); err != nil {
		t.Fatalf("Failed to remove taster: %v", err)
	}

	// Their ballots go with them.
	scores, err := s.store.SessionScores(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load scores: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("Expected the removed taster's scores to cascade away, got %d", len(scores))
	}

	count, err := s.store.CountTasters(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to count tasters: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 tasters after removal, got %d", count)
	}
}

func TestParticipantScoreCounts(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	sess, _ := seedSession(t, s, StatusActive)
	bob := seedTaster(t, s, sess, "Bob")
	carol := seedTaster(t, s, sess, "Carol")

	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	for i := 0; i < 2; i++ {
		score := &Score{
			ParticipantID: bob.ID,
			WhiskeyID:     whiskeys[i].ID,
			SessionID:     sess.ID,
			Nose:          70, Palate: 70, Finish: 70, Balance: 70,
			Total:     70,
			UpdatedAt: time.Now().UTC(),
		}
		if _, err := s.store.UpsertScore(ctx, score); err != nil {
			t.Fatalf("Failed to seed score: %v", err)
		}
	}

	counts, err := s.store.ParticipantScoreCounts(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load score counts: %v", err)
	}

	if counts[bob.ID] != 2 {
		t.Errorf("Expected 2 scores for Bob, got %d", counts[bob.ID])
	}
	if counts[carol.ID] != 0 {
		t.Errorf("Expected 0 scores for Carol, got %d", counts[carol.ID])
	}
}
