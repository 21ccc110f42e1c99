/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// inviteAlphabet deliberately omits lookalike characters (0/O, 1/I/L)
// so codes survive being read aloud across a tasting table.
const (
	inviteAlphabet   = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	inviteCodeLength = 6
)

var (
	errTokenInvalid = errors.New("invalid participant token")
	errTokenExpired = errors.New("participant token expired")
)

// newInviteCode generates a crypto-random 6-character invite code using
// rejection sampling to keep the distribution uniform.
func newInviteCode() string {
	const max = byte(255 - (256 % len(inviteAlphabet)))

	out := make([]byte, 0, inviteCodeLength)
	buf := make([]byte, inviteCodeLength*2)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for _, b := range buf {
			if b <= max {
				out = append(out, inviteAlphabet[int(b)%len(inviteAlphabet)])
				if len(out) == inviteCodeLength {
					return string(out)
				}
			}
		}
	}
}

// normalizeInviteCode uppercases user input so codes are
// case-insensitive on the way in.
func normalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randomSecret is used when no --secret is configured. Tokens minted
// against it do not survive a restart.
func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	return buf
}

func signPayload(payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// mintParticipantToken issues a short-lived bearer token binding a
// participant id to an expiry: base64url(id:expiry) + "." + HMAC.
func mintParticipantToken(participantID string, expires time.Time, secret []byte) string {
	payload := fmt.Sprintf("%s:%d", participantID, expires.Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + signPayload(payload, secret)
}

// verifyParticipantToken checks the signature and expiry and returns
// the participant id the token was minted for.
func verifyParticipantToken(token string, secret []byte, now time.Time) (string, error) {
	encoded, sig, found := strings.Cut(token, ".")
	if !found {
		return "", errTokenInvalid
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errTokenInvalid
	}
	payload := string(raw)

	expected := signPayload(payload, secret)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", errTokenInvalid
	}

	id, expiry, found := strings.Cut(payload, ":")
	if !found || id == "" {
		return "", errTokenInvalid
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return "", errTokenInvalid
	}
	if now.After(time.Unix(unix, 0)) {
		return "", errTokenExpired
	}

	return id, nil
}
