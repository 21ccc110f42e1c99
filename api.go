/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"
)

const (
	tokenHeader     = "X-Participant-Token"
	tokenCookieName = "canon_token"

	maxBodyBytes = 1 << 20
)

func jsonResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

// parseJSONBody decodes the request body into dst, answering 400
// itself when the payload is malformed.
func parseJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())

		return false
	}

	return true
}

// requestToken pulls the participant token from the header, falling
// back to the cookie set at join time for browser clients.
func requestToken(r *http.Request) string {
	if token := r.Header.Get(tokenHeader); token != "" {
		return token
	}

	if cookie, err := r.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return ""
}

func setTokenCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// storeError maps lookup failures onto API statuses: missing rows
// become 404 with the given message, everything else is a logged 500.
func (s *server) storeError(w http.ResponseWriter, err error, missing string) {
	if errors.Is(err, sql.ErrNoRows) {
		jsonError(w, http.StatusNotFound, missing)

		return
	}

	s.logger.Error().Err(err).Msg("store failure")
	jsonError(w, http.StatusInternalServerError, "internal error")
}

func (s *server) sessionFromPath(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (*Session, bool) {
	code := normalizeInviteCode(ps.ByName("code"))

	sess, err := s.store.SessionByCode(r.Context(), code)
	if err != nil {
		s.storeError(w, err, "session not found")

		return nil, false
	}

	return sess, true
}

// caller resolves the participant behind the request token and checks
// it belongs to this session. Touches last_seen as a side effect.
func (s *server) caller(w http.ResponseWriter, r *http.Request, sess *Session) (*Participant, bool) {
	token := requestToken(r)
	if token == "" {
		jsonError(w, http.StatusUnauthorized, "missing participant token")

		return nil, false
	}

	participantID, err := verifyParticipantToken(token, s.cfg.secret, time.Now())

	switch {
	case errors.Is(err, errTokenExpired):
		jsonError(w, http.StatusUnauthorized, "participant token expired")

		return nil, false
	case err != nil:
		jsonError(w, http.StatusUnauthorized, "invalid participant token")

		return nil, false
	}

	participant, err := s.store.ParticipantByID(r.Context(), participantID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		jsonError(w, http.StatusUnauthorized, "participant is no longer in the session")

		return nil, false
	case err != nil:
		s.logger.Error().Err(err).Msg("store failure")
		jsonError(w, http.StatusInternalServerError, "internal error")

		return nil, false
	}

	if participant.SessionID != sess.ID {
		jsonError(w, http.StatusForbidden, "token does not belong to this session")

		return nil, false
	}

	_ = s.store.TouchParticipant(r.Context(), participant.ID, time.Now().UTC())

	return participant, true
}

func (s *server) moderatorOnly(w http.ResponseWriter, r *http.Request, sess *Session) (*Participant, bool) {
	participant, ok := s.caller(w, r, sess)
	if !ok {
		return nil, false
	}

	if participant.Role != RoleModerator {
		jsonError(w, http.StatusForbidden, "only the moderator can do that")

		return nil, false
	}

	return participant, true
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.written += int64(n)

	return n, err
}

// withLogging wraps REST handlers with security headers, request
// logging, and the latency histogram. The WebSocket route stays
// unwrapped: the recorder would hide http.Hijacker from the upgrader.
func (s *server) withLogging(route string, handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		securityHeaders(s.cfg, w)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		handler(recorder, r, ps)

		elapsed := time.Since(startTime)

		s.metrics.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).
			Observe(elapsed.Seconds())

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Str("client", realIP(r)).
			Str("size", humanize.Bytes(uint64(recorder.written))).
			Dur("elapsed", elapsed.Round(time.Microsecond)).
			Msg("request")
	}
}
