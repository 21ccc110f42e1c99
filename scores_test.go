package main

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestSubmitScoreValidation(t *testing.T) {
	s := newTestServer(t)
	sess, moderator := seedSession(t, s, StatusActive)
	taster := seedTaster(t, s, sess, "Bob")
	setSessionPhase(t, s.store, sess.ID, PhaseScore, 0)

	whiskeys, err := s.store.SessionWhiskeys(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	target := whiskeys[0].ID
	tasterToken := testToken(s, taster.ID)

	tests := []struct {
		name           string
		whiskeyID      string
		token          string
		body           any
		expectedStatus int
		wantMessage    string
	}{
		{
			name:           "no token",
			whiskeyID:      target,
			token:          "",
			body:           SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(80), Finish: intPtr(80), Balance: intPtr(80)},
			expectedStatus: http.StatusUnauthorized,
			wantMessage:    "missing participant token",
		},
		{
			name:           "moderator does not score",
			whiskeyID:      target,
			token:          testToken(s, moderator.ID),
			body:           SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(80), Finish: intPtr(80), Balance: intPtr(80)},
			expectedStatus: http.StatusForbidden,
			wantMessage:    "the moderator does not score",
		},
		{
			name:           "missing criterion",
			whiskeyID:      target,
			token:          tasterToken,
			body:           SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(80), Finish: intPtr(80)},
			expectedStatus: http.StatusBadRequest,
			wantMessage:    "all four criteria",
		},
		{
			name:           "criterion above range",
			whiskeyID:      target,
			token:          tasterToken,
			body:           SubmitScoreRequest{Nose: intPtr(101), Palate: intPtr(80), Finish: intPtr(80), Balance: intPtr(80)},
			expectedStatus: http.StatusBadRequest,
			wantMessage:    "between 0 and 100",
		},
		{
			name:           "criterion below range",
			whiskeyID:      target,
			token:          tasterToken,
			body:           SubmitScoreRequest{Nose: intPtr(-1), Palate: intPtr(80), Finish: intPtr(80), Balance: intPtr(80)},
			expectedStatus: http.StatusBadRequest,
			wantMessage:    "between 0 and 100",
		},
		{
			name:      "notes too long",
			whiskeyID: target,
			token:     tasterToken,
			body: SubmitScoreRequest{
				Nose: intPtr(80), Palate: intPtr(80), Finish: intPtr(80), Balance: intPtr(80),
				Notes: strings.Repeat("a", maxNotesLength+1),
			},
			expectedStatus: http.StatusBadRequest,
			wantMessage:    "notes cannot exceed",
		},
		{
			name:           "unknown whiskey",
			whiskeyID:      "missing",
			token:          tasterToken,
			body:           SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(80), Finish: intPtr(80), Balance: intPtr(80)},
			expectedStatus: http.StatusNotFound,
			wantMessage:    "whiskey not found",
		},
		{
			name:           "invalid JSON",
			whiskeyID:      target,
			token:          tasterToken,
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			wantMessage:    "invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s.serveSubmitScore, "PUT",
				"/api/sessions/"+sess.Code+"/scores/"+tt.whiskeyID, tt.body, tt.token,
				codeAndParam(sess.Code, "whiskey", tt.whiskeyID))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantMessage) {
				t.Errorf("Expected message containing %q, got %s", tt.wantMessage, w.Body.String())
			}
		})
	}
}

func TestSubmitScoreWindow(t *testing.T) {
	tests := []struct {
		name           string
		status         SessionStatus
		phase          TastingPhase
		index          int
		targetPosition int
		expectedStatus int
		wantMessage    string
	}{
		{"score phase open", StatusActive, PhaseScore, 0, 0, http.StatusCreated, ""},
		{"palate-reset still open", StatusActive, PhasePalateReset, 0, 0, http.StatusCreated, ""},
		{"pour too early", StatusActive, PhasePour, 0, 0, http.StatusConflict, "not open for scoring yet"},
		{"earlier whiskey stays open", StatusActive, PhasePour, 2, 0, http.StatusCreated, ""},
		{"future whiskey closed", StatusActive, PhaseScore, 0, 2, http.StatusConflict, "not open for scoring yet"},
		{"waiting session", StatusWaiting, PhaseScore, 0, 0, http.StatusConflict, "only while the session is active"},
		{"paused session", StatusPaused, PhaseScore, 0, 0, http.StatusConflict, "only while the session is active"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			sess, _ := seedSession(t, s, tt.status)
			taster := seedTaster(t, s, sess, "Bob")
			setSessionPhase(t, s.store, sess.ID, tt.phase, tt.index)

			whiskeys, err := s.store.SessionWhiskeys(context.Background(), sess.ID)
			if err != nil {
				t.Fatalf("Failed to load whiskeys: %v", err)
			}

			target := whiskeys[tt.targetPosition].ID
			body := SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(85), Finish: intPtr(75), Balance: intPtr(70)}

			w := doRequest(s.serveSubmitScore, "PUT",
				"/api/sessions/"+sess.Code+"/scores/"+target, body, testToken(s, taster.ID),
				codeAndParam(sess.Code, "whiskey", target))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}

			if tt.wantMessage != "" && !strings.Contains(w.Body.String(), tt.wantMessage) {
				t.Errorf("Expected message containing %q, got %s", tt.wantMessage, w.Body.String())
			}

			if tt.expectedStatus != http.StatusCreated {
				return
			}

			var score Score

			decodeResponse(t, w.Body, &score)

			if score.Total != 79 {
				t.Errorf("Expected weighted total 79, got %v", score.Total)
			}
			if score.WhiskeyID != target {
				t.Errorf("Expected whiskey %s, got %s", target, score.WhiskeyID)
			}
		})
	}
}

func TestSubmitScoreUpsert(t *testing.T) {
	s := newTestServer(t)
	sess, _ := seedSession(t, s, StatusActive)
	taster := seedTaster(t, s, sess, "Bob")
	setSessionPhase(t, s.store, sess.ID, PhaseScore, 0)

	whiskeys, err := s.store.SessionWhiskeys(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	target := whiskeys[0].ID
	token := testToken(s, taster.ID)
	path := "/api/sessions/" + sess.Code + "/scores/" + target
	params := codeAndParam(sess.Code, "whiskey", target)

	first := SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(85), Finish: intPtr(75), Balance: intPtr(70), Notes: "Smoke and iodine"}

	w := doRequest(s.serveSubmitScore, "PUT", path, first, token, params)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d on first submission, got %d. Body: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	revision := SubmitScoreRequest{Nose: intPtr(90), Palate: intPtr(85), Finish: intPtr(75), Balance: intPtr(70)}

	w = doRequest(s.serveSubmitScore, "PUT", path, revision, token, params)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d on revision, got %d. Body: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var score Score

	decodeResponse(t, w.Body, &score)

	if score.Nose != 90 {
		t.Errorf("Expected revised nose 90, got %d", score.Nose)
	}

	scores, err := s.store.ScoresByParticipant(context.Background(), sess.ID, taster.ID)
	if err != nil {
		t.Fatalf("Failed to load scores: %v", err)
	}
	if len(scores) != 1 {
		t.Errorf("Expected a single ballot after revision, got %d", len(scores))
	}
}

func TestMyScores(t *testing.T) {
	s := newTestServer(t)
	sess, _ := seedSession(t, s, StatusActive)
	taster := seedTaster(t, s, sess, "Bob")
	setSessionPhase(t, s.store, sess.ID, PhaseScore, 0)

	token := testToken(s, taster.ID)
	path := "/api/sessions/" + sess.Code + "/scores"

	w := doRequest(s.serveMyScores, "GET", path, nil, token, codeParams(sess.Code))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, w.Code, w.Body.String())
	}

	// No ballots yet decodes as an empty list, not null.
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected an empty list, got %s", w.Body.String())
	}

	whiskeys, err := s.store.SessionWhiskeys(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	body := SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(85), Finish: intPtr(75), Balance: intPtr(70)}

	w = doRequest(s.serveSubmitScore, "PUT", path+"/"+whiskeys[0].ID, body, token,
		codeAndParam(sess.Code, "whiskey", whiskeys[0].ID))
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to submit score: %d - %s", w.Code, w.Body.String())
	}

	w = doRequest(s.serveMyScores, "GET", path, nil, token, codeParams(sess.Code))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d. Body: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var scores []Score

	decodeResponse(t, w.Body, &scores)

	if len(scores) != 1 {
		t.Fatalf("Expected 1 score, got %d", len(scores))
	}
	if scores[0].WhiskeyID != whiskeys[0].ID {
		t.Errorf("Expected a ballot for %s, got %s", whiskeys[0].ID, scores[0].WhiskeyID)
	}

	// Without a token there is nothing to list.
	w = doRequest(s.serveMyScores, "GET", path, nil, "", codeParams(sess.Code))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d without a token, got %d. Body: %s", http.StatusUnauthorized, w.Code, w.Body.String())
	}
}

func TestResults(t *testing.T) {
	s := newTestServer(t)
	sess, moderator := seedSession(t, s, StatusActive)
	taster := seedTaster(t, s, sess, "Bob")
	setSessionPhase(t, s.store, sess.ID, PhaseScore, 0)
	path := "/api/sessions/" + sess.Code + "/results"

	// Before the reveal the endpoint refuses, whoever asks.
	w := doRequest(s.serveResults, "GET", path, nil, testToken(s, moderator.ID), codeParams(sess.Code))
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status %d before reveal, got %d. Body: %s", http.StatusConflict, w.Code, w.Body.String())
	}

	whiskeys, err := s.store.SessionWhiskeys(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Failed to load whiskeys: %v", err)
	}

	body := SubmitScoreRequest{Nose: intPtr(80), Palate: intPtr(85), Finish: intPtr(75), Balance: intPtr(70)}

	w = doRequest(s.serveSubmitScore, "PUT", "/api/sessions/"+sess.Code+"/scores/"+whiskeys[0].ID,
		body, testToken(s, taster.ID), codeAndParam(sess.Code, "whiskey", whiskeys[0].ID))
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to submit score: %d - %s", w.Code, w.Body.String())
	}

	w = doRequest(s.serveRevealSession, "POST", "/api/sessions/"+sess.Code+"/reveal", nil,
		testToken(s, moderator.ID), codeParams(sess.Code))
	if w.Code != http.StatusOK {
		t.Fatalf("Failed to reveal: %d - %s", w.Code, w.Body.String())
	}

	// After the reveal the snapshot is public.
	w = doRequest(s.serveResults, "GET", path, nil, "", codeParams(sess.Code))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d after reveal, got %d. Body: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var snapshot ResultSnapshot

	decodeResponse(t, w.Body, &snapshot)

	if snapshot.Tasters != 1 {
		t.Errorf("Expected 1 taster, got %d", snapshot.Tasters)
	}
	if len(snapshot.Rankings) != 3 {
		t.Fatalf("Expected 3 rankings, got %d", len(snapshot.Rankings))
	}
	if snapshot.Rankings[0].Whiskey.Name == "" {
		t.Error("Expected whiskey identity in the published results")
	}
}
