package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

// rosterFor builds the participant list with live connected flags.
// Scored counts are filled in only for the moderator's pre-reveal view.
func (s *server) rosterFor(ctx context.Context, sess *Session, moderator bool) ([]ParticipantView, error) {
	participants, err := s.store.Participants(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	online := map[string]bool{}
	if hub, ok := s.rooms.lookupRoom(sess.Code); ok {
		online = hub.Online()
	}

	var scored map[string]int

	if moderator && !sess.revealed() {
		scored, err = s.store.ParticipantScoreCounts(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
	}

	roster := make([]ParticipantView, 0, len(participants))

	for i := range participants {
		p := &participants[i]

		entry := ParticipantView{
			ID:        p.ID,
			Name:      p.Name,
			Role:      p.Role,
			Connected: online[p.ID],
		}

		if scored != nil && p.Role == RoleTaster {
			count := scored[p.ID]
			entry.Scored = &count
		}

		roster = append(roster, entry)
	}

	return roster, nil
}

func (s *server) serveJoinSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	// A returning participant with a live token reconnects instead of
	// creating a duplicate row, even when the session is locked.
	if existing := s.viewerFor(r, sess); existing != nil {
		expires := time.Now().UTC().Add(s.cfg.participantTTL)
		token := mintParticipantToken(existing.ID, expires, s.cfg.secret)

		setTokenCookie(w, token, expires)

		jsonResponse(w, http.StatusOK, JoinSessionResponse{
			Participant:  *existing,
			Token:        token,
			TokenExpires: expires,
		})

		return
	}

	var req JoinSessionRequest

	if !parseJSONBody(w, r, &req) {
		return
	}

	name := strings.TrimSpace(req.Name)

	if count := utf8.RuneCountInString(name); count < 2 || count > 32 {
		jsonError(w, http.StatusBadRequest, "name must be between 2 and 32 characters")

		return
	}

	switch {
	case sess.terminal():
		jsonError(w, http.StatusGone, "session has ended")

		return
	case sess.Status == StatusDraft:
		jsonError(w, http.StatusConflict, "session is not open for joining yet")

		return
	case !joinable(sess.Status):
		jsonError(w, http.StatusConflict, "session is no longer accepting tasters")

		return
	case sess.Locked:
		jsonError(w, http.StatusConflict, "session is locked")

		return
	}

	now := time.Now().UTC()

	participant := &Participant{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Name:      name,
		Role:      RoleTaster,
		JoinedAt:  now,
		LastSeen:  now,
	}

	err := s.store.AddParticipant(r.Context(), participant)

	switch {
	case errors.Is(err, errNameTaken):
		jsonError(w, http.StatusConflict, "that name is already taken")

		return
	case err != nil:
		s.logger.Error().Err(err).Str("session", sess.Code).Msg("join failed")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return
	}

	expires := now.Add(s.cfg.participantTTL)
	token := mintParticipantToken(participant.ID, expires, s.cfg.secret)

	setTokenCookie(w, token, expires)

	s.metrics.participantsJoined.Inc()
	s.logger.Info().Str("session", sess.Code).Str("taster", name).Msg("taster joined")

	s.broadcastTo(sess.Code, ParticipantJoinedEvent{
		Type: EventParticipantJoined,
		Participant: ParticipantView{
			ID:   participant.ID,
			Name: participant.Name,
			Role: participant.Role,
		},
	})

	jsonResponse(w, http.StatusCreated, JoinSessionResponse{
		Participant:  *participant,
		Token:        token,
		TokenExpires: expires,
	})
}

func (s *server) serveListParticipants(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	viewer := s.viewerFor(r, sess)
	moderator := viewer != nil && viewer.Role == RoleModerator

	roster, err := s.rosterFor(r.Context(), sess, moderator)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	jsonResponse(w, http.StatusOK, roster)
}

func (s *server) serveKickParticipant(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if sess.terminal() {
		jsonError(w, http.StatusConflict, "session has ended")

		return
	}

	target, err := s.store.ParticipantByID(r.Context(), ps.ByName("participant"))
	if err != nil || target.SessionID != sess.ID {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.storeError(w, err, "participant not found")

			return
		}

		jsonError(w, http.StatusNotFound, "participant not found")

		return
	}

	if target.Role == RoleModerator {
		jsonError(w, http.StatusConflict, "the moderator cannot be removed")

		return
	}

	// Removes the row and, via cascade, every score they submitted.
	if err := s.store.RemoveParticipant(r.Context(), sess.ID, target.ID); err != nil {
		s.storeError(w, err, "participant not found")

		return
	}

	s.logger.Info().Str("session", sess.Code).Str("taster", target.Name).Msg("taster kicked")

	kicked := ParticipantKickedEvent{
		Type:          EventParticipantKicked,
		ParticipantID: target.ID,
		Name:          target.Name,
	}

	if hub, ok := s.rooms.lookupRoom(sess.Code); ok {
		hub.Evict(target.ID, kicked, kicked)
	}

	roster, err := s.rosterFor(r.Context(), sess, true)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	jsonResponse(w, http.StatusOK, roster)
}
