package main

import (
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
)

const maxNotesLength = 2000

func (s *server) serveSubmitScore(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	participant, ok := s.caller(w, r, sess)
	if !ok {
		return
	}

	if participant.Role == RoleModerator {
		jsonError(w, http.StatusForbidden, "the moderator does not score")

		return
	}

	var req SubmitScoreRequest

	if !parseJSONBody(w, r, &req) {
		return
	}

	if req.Nose == nil || req.Palate == nil || req.Finish == nil || req.Balance == nil {
		jsonError(w, http.StatusBadRequest, "all four criteria (nose, palate, finish, balance) are required")

		return
	}

	for _, value := range []int{*req.Nose, *req.Palate, *req.Finish, *req.Balance} {
		if value < 0 || value > 100 {
			jsonError(w, http.StatusBadRequest, "criteria must be between 0 and 100")

			return
		}
	}

	if utf8.RuneCountInString(req.Notes) > maxNotesLength {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("notes cannot exceed %d characters", maxNotesLength))

		return
	}

	whiskey, err := s.store.WhiskeyByID(r.Context(), sess.ID, ps.ByName("whiskey"))
	if err != nil {
		s.storeError(w, err, "whiskey not found")

		return
	}

	if sess.Status != StatusActive {
		jsonError(w, http.StatusConflict, fmt.Sprintf("scores are accepted only while the session is active, not %q", sess.Status))

		return
	}

	if !scoreWindowOpen(sess.Status, sess.CurrentPhase, sess.CurrentIndex, whiskey.Position) {
		jsonError(w, http.StatusConflict, fmt.Sprintf("%s is not open for scoring yet", whiskey.label()))

		return
	}

	score := &Score{
		ParticipantID: participant.ID,
		WhiskeyID:     whiskey.ID,
		SessionID:     sess.ID,
		Nose:          *req.Nose,
		Palate:        *req.Palate,
		Finish:        *req.Finish,
		Balance:       *req.Balance,
		Total:         sess.Weights.weightedTotal(*req.Nose, *req.Palate, *req.Finish, *req.Balance),
		Notes:         req.Notes,
		UpdatedAt:     time.Now().UTC(),
	}

	created, err := s.store.UpsertScore(r.Context(), score)
	if err != nil {
		s.logger.Error().Err(err).Str("session", sess.Code).Msg("score submission failed")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.metrics.scoresSubmitted.Inc()
	s.logger.Debug().
		Str("session", sess.Code).
		Str("taster", participant.Name).
		Str("whiskey", whiskey.label()).
		Float64("total", score.Total).
		Msg("score submitted")

	s.broadcastScoreProgress(r, sess, whiskey)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	jsonResponse(w, status, score)
}

// broadcastScoreProgress pushes covered-count updates to the room.
// Counts only; ballot values stay private until reveal. Failures here
// never fail the submission.
func (s *server) broadcastScoreProgress(r *http.Request, sess *Session, whiskey *Whiskey) {
	scored, err := s.store.WhiskeyScoreCount(r.Context(), whiskey.ID)
	if err != nil {
		s.logger.Debug().Err(err).Str("session", sess.Code).Msg("score progress count failed")

		return
	}

	tasters, err := s.store.CountTasters(r.Context(), sess.ID)
	if err != nil {
		s.logger.Debug().Err(err).Str("session", sess.Code).Msg("score progress count failed")

		return
	}

	s.broadcastTo(sess.Code, ScoreProgressEvent{
		Type:      EventScoreProgress,
		WhiskeyID: whiskey.ID,
		Label:     whiskey.label(),
		Scored:    scored,
		Tasters:   tasters,
	})
}

// serveMyScores returns only the caller's own ballots. Nobody sees
// anyone else's scores before reveal.
func (s *server) serveMyScores(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	participant, ok := s.caller(w, r, sess)
	if !ok {
		return
	}

	scores, err := s.store.ScoresByParticipant(r.Context(), sess.ID, participant.ID)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if scores == nil {
		scores = []Score{}
	}

	jsonResponse(w, http.StatusOK, scores)
}

func (s *server) serveResults(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if !sess.revealed() {
		jsonError(w, http.StatusConflict, "results are available after the reveal")

		return
	}

	snapshot, err := s.store.SnapshotBySession(r.Context(), sess.ID)
	if err != nil {
		s.storeError(w, err, "results not found")

		return
	}

	jsonResponse(w, http.StatusOK, snapshot)
}
