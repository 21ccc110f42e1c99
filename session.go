/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// newSessionCode generates an invite code that isn't already in use.
func (s *server) newSessionCode(r *http.Request) (string, error) {
	for attempts := 0; attempts < 10; attempts++ {
		code := newInviteCode()

		_, err := s.store.SessionByCode(r.Context(), code)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			return code, nil
		case err != nil:
			return "", err
		}
	}

	return "", errors.New("failed to generate a unique invite code")
}

func (s *server) serveCreateSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CreateSessionRequest

	if !parseJSONBody(w, r, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.HostName = strings.TrimSpace(req.HostName)

	switch {
	case req.Title == "":
		jsonError(w, http.StatusBadRequest, "title is required")

		return
	case req.HostName == "":
		jsonError(w, http.StatusBadRequest, "host_name is required")

		return
	}

	weights := defaultWeights()

	if req.Weights != nil {
		weights = *req.Weights

		if err := weights.validate(); err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())

			return
		}
	}

	var inputs []WhiskeyInput

	if req.Template != "" {
		template, ok := s.flights.lookup(req.Template)
		if !ok {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("unknown flight template %q", req.Template))

			return
		}

		inputs = append(inputs, template.Whiskeys...)
	}

	inputs = append(inputs, req.Whiskeys...)

	if len(inputs) > maxFlightSize {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("a flight cannot exceed %d whiskeys", maxFlightSize))

		return
	}

	for i := range inputs {
		if err := inputs[i].validate(); err != nil {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("whiskey %d: %s", i+1, err))

			return
		}
	}

	code, err := s.newSessionCode(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("invite code generation failed")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return
	}

	now := time.Now().UTC()

	sess := &Session{
		ID:           uuid.NewString(),
		Code:         code,
		Title:        req.Title,
		HostName:     req.HostName,
		Description:  strings.TrimSpace(req.Description),
		Status:       StatusDraft,
		CurrentPhase: PhasePour,
		Weights:      weights,
		CreatedAt:    now,
	}

	whiskeys := make([]*Whiskey, 0, len(inputs))

	for i := range inputs {
		whiskeys = append(whiskeys, &Whiskey{
			ID:         uuid.NewString(),
			SessionID:  sess.ID,
			Position:   i,
			Name:       strings.TrimSpace(inputs[i].Name),
			Distillery: strings.TrimSpace(inputs[i].Distillery),
			AgeYears:   inputs[i].AgeYears,
			ABV:        inputs[i].ABV,
			Notes:      inputs[i].Notes,
		})
	}

	moderator := &Participant{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Name:      req.HostName,
		Role:      RoleModerator,
		JoinedAt:  now,
		LastSeen:  now,
	}

	if err := s.store.CreateSession(r.Context(), sess, whiskeys, moderator); err != nil {
		s.logger.Error().Err(err).Msg("session creation failed")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return
	}

	expires := now.Add(s.cfg.participantTTL)
	token := mintParticipantToken(moderator.ID, expires, s.cfg.secret)

	setTokenCookie(w, token, expires)

	s.metrics.sessionsCreated.Inc()
	s.logger.Info().
		Str("session", sess.Code).
		Str("title", sess.Title).
		Int("whiskeys", len(whiskeys)).
		Msg("session created")

	views := make([]WhiskeyView, 0, len(whiskeys))
	for _, whiskey := range whiskeys {
		views = append(views, whiskey.view(true))
	}

	jsonResponse(w, http.StatusCreated, CreateSessionResponse{
		Session:        *sess,
		Whiskeys:       views,
		ModeratorToken: token,
		TokenExpires:   expires,
		JoinPath:       s.cfg.prefix + "/api/sessions/" + sess.Code + "/join",
	})
}

// viewerFor resolves the caller's participant for read-only endpoints.
// A missing, stale, or foreign token just degrades to the blind
// anonymous view instead of failing the request.
func (s *server) viewerFor(r *http.Request, sess *Session) *Participant {
	token := requestToken(r)
	if token == "" {
		return nil
	}

	participantID, err := verifyParticipantToken(token, s.cfg.secret, time.Now())
	if err != nil {
		return nil
	}

	participant, err := s.store.ParticipantByID(r.Context(), participantID)
	if err != nil || participant.SessionID != sess.ID {
		return nil
	}

	return participant
}

// sessionViewFor renders the session for one reader. Whiskey identity
// is included for the moderator and, once revealed, for everyone.
// Per-taster progress counts are a moderator-only field until reveal.
func (s *server) sessionViewFor(ctx context.Context, sess *Session, viewer *Participant) (*SessionView, error) {
	whiskeys, err := s.store.SessionWhiskeys(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	moderator := viewer != nil && viewer.Role == RoleModerator
	identity := moderator || sess.revealed()

	whiskeyViews := make([]WhiskeyView, 0, len(whiskeys))
	for i := range whiskeys {
		whiskeyViews = append(whiskeyViews, whiskeys[i].view(identity))
	}

	roster, err := s.rosterFor(ctx, sess, moderator)
	if err != nil {
		return nil, err
	}

	view := &SessionView{
		Session:      *sess,
		Whiskeys:     whiskeyViews,
		Participants: roster,
	}

	if viewer != nil {
		view.Viewer = &ViewerInfo{
			ParticipantID: viewer.ID,
			Name:          viewer.Name,
			Role:          viewer.Role,
		}
	}

	return view, nil
}

func (s *server) serveGetSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	view, err := s.sessionViewFor(r.Context(), sess, s.viewerFor(r, sess))
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	jsonResponse(w, http.StatusOK, view)
}

// refreshSession re-reads the session after a status change so the
// response and broadcast reflect the committed row.
func (s *server) refreshSession(w http.ResponseWriter, r *http.Request, code string) (*Session, bool) {
	sess, err := s.store.SessionByCode(r.Context(), code)
	if err != nil {
		s.storeError(w, err, "session not found")

		return nil, false
	}

	return sess, true
}

func (s *server) serveOpenSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if _, err := nextStatus(sess.Status, TransitionOpen); err != nil {
		jsonError(w, http.StatusConflict, fmt.Sprintf("cannot open a session in status %q", sess.Status))

		return
	}

	whiskeys, err := s.store.SessionWhiskeys(r.Context(), sess.ID)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if len(whiskeys) < 2 {
		jsonError(w, http.StatusConflict, "a flight needs at least two whiskeys before opening")

		return
	}

	applied, err := s.store.UpdateSessionStatus(r.Context(), sess.ID, StatusDraft, StatusWaiting, time.Now().UTC())
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if !applied {
		jsonError(w, http.StatusConflict, "session status changed, reload and try again")

		return
	}

	updated, ok := s.refreshSession(w, r, sess.Code)
	if !ok {
		return
	}

	s.logger.Info().Str("session", sess.Code).Msg("session opened for joining")
	s.broadcastTo(sess.Code, StatusChangedEvent{Type: EventStatusChanged, Status: updated.Status})

	jsonResponse(w, http.StatusOK, updated)
}

func (s *server) serveStartSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if _, err := nextStatus(sess.Status, TransitionStart); err != nil {
		jsonError(w, http.StatusConflict, fmt.Sprintf("cannot start a session in status %q", sess.Status))

		return
	}

	tasters, err := s.store.CountTasters(r.Context(), sess.ID)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if tasters < 1 {
		jsonError(w, http.StatusConflict, "at least one taster must join before starting")

		return
	}

	applied, err := s.store.UpdateSessionStatus(r.Context(), sess.ID, StatusWaiting, StatusActive, time.Now().UTC())
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if !applied {
		jsonError(w, http.StatusConflict, "session status changed, reload and try again")

		return
	}

	updated, ok := s.refreshSession(w, r, sess.Code)
	if !ok {
		return
	}

	s.logger.Info().Str("session", sess.Code).Int("tasters", tasters).Msg("tasting started")
	s.broadcastTo(sess.Code, StatusChangedEvent{Type: EventStatusChanged, Status: updated.Status})
	s.broadcastTo(sess.Code, PhaseChangedEvent{
		Type:     EventPhaseChanged,
		Phase:    updated.CurrentPhase,
		Position: updated.CurrentIndex,
		Label:    blindLabel(updated.CurrentIndex),
	})

	jsonResponse(w, http.StatusOK, updated)
}

func (s *server) serveAdvancePhase(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if sess.Status != StatusActive {
		jsonError(w, http.StatusConflict, fmt.Sprintf("cannot advance a session in status %q", sess.Status))

		return
	}

	whiskeys, err := s.store.SessionWhiskeys(r.Context(), sess.ID)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	nextPhase, nextIndex, err := advancePhase(sess.CurrentPhase, sess.CurrentIndex, len(whiskeys))
	if errors.Is(err, errFlightDone) {
		jsonError(w, http.StatusConflict, "flight complete")

		return
	} else if err != nil {
		jsonError(w, http.StatusConflict, err.Error())

		return
	}

	applied, err := s.store.SetSessionPhase(r.Context(), sess.ID, sess.CurrentPhase, sess.CurrentIndex, nextPhase, nextIndex)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if !applied {
		jsonError(w, http.StatusConflict, "session moved on, reload and try again")

		return
	}

	updated, ok := s.refreshSession(w, r, sess.Code)
	if !ok {
		return
	}

	s.logger.Debug().
		Str("session", sess.Code).
		Str("phase", string(nextPhase)).
		Str("whiskey", blindLabel(nextIndex)).
		Msg("phase advanced")
	s.broadcastTo(sess.Code, PhaseChangedEvent{
		Type:     EventPhaseChanged,
		Phase:    nextPhase,
		Position: nextIndex,
		Label:    blindLabel(nextIndex),
	})

	jsonResponse(w, http.StatusOK, updated)
}

func (s *server) servePauseSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.serveSimpleTransition(w, r, ps, TransitionPause, StatusActive, StatusPaused, "pause")
}

func (s *server) serveResumeSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.serveSimpleTransition(w, r, ps, TransitionResume, StatusPaused, StatusActive, "resume")
}

func (s *server) serveSimpleTransition(w http.ResponseWriter, r *http.Request, ps httprouter.Params, t Transition, from, to SessionStatus, verb string) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if _, err := nextStatus(sess.Status, t); err != nil {
		jsonError(w, http.StatusConflict, fmt.Sprintf("cannot %s a session in status %q", verb, sess.Status))

		return
	}

	applied, err := s.store.UpdateSessionStatus(r.Context(), sess.ID, from, to, time.Now().UTC())
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if !applied {
		jsonError(w, http.StatusConflict, "session status changed, reload and try again")

		return
	}

	updated, ok := s.refreshSession(w, r, sess.Code)
	if !ok {
		return
	}

	s.logger.Info().Str("session", sess.Code).Str("status", string(updated.Status)).Msg("session status changed")
	s.broadcastTo(sess.Code, StatusChangedEvent{Type: EventStatusChanged, Status: updated.Status})

	jsonResponse(w, http.StatusOK, updated)
}

func (s *server) serveRevealSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if _, err := nextStatus(sess.Status, TransitionReveal); err != nil {
		jsonError(w, http.StatusConflict, fmt.Sprintf("cannot reveal a session in status %q", sess.Status))

		return
	}

	snapshot, _, err := s.store.RevealSession(r.Context(), sess.ID, uuid.NewString(), time.Now().UTC())

	switch {
	case errors.Is(err, errBadTransition):
		jsonError(w, http.StatusConflict, "session status changed, reload and try again")

		return
	case err != nil:
		s.logger.Error().Err(err).Str("session", sess.Code).Msg("reveal failed")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.metrics.sessionsRevealed.Inc()
	s.logger.Info().
		Str("session", sess.Code).
		Int("tasters", snapshot.Tasters).
		Int("whiskeys", len(snapshot.Rankings)).
		Msg("session revealed")

	s.broadcastTo(sess.Code, SessionRevealedEvent{Type: EventSessionRevealed, Results: snapshot})

	jsonResponse(w, http.StatusOK, snapshot)
}

func (s *server) serveCompleteSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if _, err := nextStatus(sess.Status, TransitionComplete); err != nil {
		jsonError(w, http.StatusConflict, fmt.Sprintf("cannot complete a session in status %q", sess.Status))

		return
	}

	applied, err := s.store.UpdateSessionStatus(r.Context(), sess.ID, StatusReveal, StatusCompleted, time.Now().UTC())
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if !applied {
		jsonError(w, http.StatusConflict, "session status changed, reload and try again")

		return
	}

	updated, ok := s.refreshSession(w, r, sess.Code)
	if !ok {
		return
	}

	s.logger.Info().Str("session", sess.Code).Msg("session completed")
	s.broadcastTo(sess.Code, SessionCompletedEvent{Type: EventSessionCompleted})

	jsonResponse(w, http.StatusOK, updated)
}

func (s *server) serveLockSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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

	var req LockSessionRequest

	if !parseJSONBody(w, r, &req) {
		return
	}

	if req.Locked == nil {
		jsonError(w, http.StatusBadRequest, "locked is required")

		return
	}

	if err := s.store.SetSessionLocked(r.Context(), sess.ID, *req.Locked); err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	s.logger.Info().Str("session", sess.Code).Bool("locked", *req.Locked).Msg("session lock changed")
	s.broadcastTo(sess.Code, SessionLockedEvent{Type: EventSessionLocked, Locked: *req.Locked})

	updated, ok := s.refreshSession(w, r, sess.Code)
	if !ok {
		return
	}

	jsonResponse(w, http.StatusOK, updated)
}

// Flight editing is a draft-only operation; once tasters can see the
// session the pours are fixed.

func (s *server) serveAddWhiskeys(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if sess.Status != StatusDraft {
		jsonError(w, http.StatusConflict, "the flight can only be edited while the session is in draft")

		return
	}

	var req AddWhiskeysRequest

	if !parseJSONBody(w, r, &req) {
		return
	}

	if len(req.Whiskeys) == 0 {
		jsonError(w, http.StatusBadRequest, "whiskeys is required")

		return
	}

	for i := range req.Whiskeys {
		if err := req.Whiskeys[i].validate(); err != nil {
			jsonError(w, http.StatusBadRequest, fmt.Sprintf("whiskey %d: %s", i+1, err))

			return
		}
	}

	existing, err := s.store.SessionWhiskeys(r.Context(), sess.ID)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	if len(existing)+len(req.Whiskeys) > maxFlightSize {
		jsonError(w, http.StatusBadRequest, fmt.Sprintf("a flight cannot exceed %d whiskeys", maxFlightSize))

		return
	}

	whiskeys := make([]*Whiskey, 0, len(req.Whiskeys))

	for i := range req.Whiskeys {
		whiskeys = append(whiskeys, &Whiskey{
			ID:         uuid.NewString(),
			SessionID:  sess.ID,
			Name:       strings.TrimSpace(req.Whiskeys[i].Name),
			Distillery: strings.TrimSpace(req.Whiskeys[i].Distillery),
			AgeYears:   req.Whiskeys[i].AgeYears,
			ABV:        req.Whiskeys[i].ABV,
			Notes:      req.Whiskeys[i].Notes,
		})
	}

	if err := s.store.AddWhiskeys(r.Context(), sess.ID, whiskeys); err != nil {
		s.logger.Error().Err(err).Str("session", sess.Code).Msg("flight update failed")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return
	}

	s.respondFlight(w, r, sess, http.StatusCreated)
}

func (s *server) serveUpdateWhiskey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if sess.Status != StatusDraft {
		jsonError(w, http.StatusConflict, "the flight can only be edited while the session is in draft")

		return
	}

	var req WhiskeyInput

	if !parseJSONBody(w, r, &req) {
		return
	}

	if err := req.validate(); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())

		return
	}

	whiskey := &Whiskey{
		ID:         ps.ByName("whiskey"),
		SessionID:  sess.ID,
		Name:       strings.TrimSpace(req.Name),
		Distillery: strings.TrimSpace(req.Distillery),
		AgeYears:   req.AgeYears,
		ABV:        req.ABV,
		Notes:      req.Notes,
	}

	if err := s.store.UpdateWhiskey(r.Context(), whiskey); err != nil {
		s.storeError(w, err, "whiskey not found")

		return
	}

	s.respondFlight(w, r, sess, http.StatusOK)
}

func (s *server) serveRemoveWhiskey(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, ok := s.sessionFromPath(w, r, ps)
	if !ok {
		return
	}

	if _, ok := s.moderatorOnly(w, r, sess); !ok {
		return
	}

	if sess.Status != StatusDraft {
		jsonError(w, http.StatusConflict, "the flight can only be edited while the session is in draft")

		return
	}

	if err := s.store.RemoveWhiskey(r.Context(), sess.ID, ps.ByName("whiskey")); err != nil {
		s.storeError(w, err, "whiskey not found")

		return
	}

	s.respondFlight(w, r, sess, http.StatusOK)
}

// respondFlight returns the updated flight with identity, since only
// the moderator reaches the editing endpoints.
func (s *server) respondFlight(w http.ResponseWriter, r *http.Request, sess *Session, status int) {
	whiskeys, err := s.store.SessionWhiskeys(r.Context(), sess.ID)
	if err != nil {
		s.storeError(w, err, "session not found")

		return
	}

	views := make([]WhiskeyView, 0, len(whiskeys))
	for i := range whiskeys {
		views = append(views, whiskeys[i].view(true))
	}

	jsonResponse(w, status, views)
}

// serveSessionQR renders a QR code for the session URL, for passing a
// join link around the table.
func (s *server) serveSessionQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if _, ok := s.sessionFromPath(w, r, ps); !ok {
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at .../:code/qr; the session URL is everything before it.
	url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

	const qrSize = 320

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "qr generation failed")

		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *server) broadcastTo(code string, msg any) {
	if hub, ok := s.rooms.lookupRoom(code); ok {
		hub.Broadcast(msg)
	}
}
