package main

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ParticipantRole distinguishes the session host from the tasters.
type ParticipantRole string

const (
	RoleModerator ParticipantRole = "moderator"
	RoleTaster    ParticipantRole = "taster"
)

// Weights are the per-criterion multipliers used to fold the four
// criteria into a single weighted total. They must sum to 1.
type Weights struct {
	Nose    float64 `json:"nose"`
	Palate  float64 `json:"palate"`
	Finish  float64 `json:"finish"`
	Balance float64 `json:"balance"`
}

func defaultWeights() Weights {
	return Weights{Nose: 0.25, Palate: 0.35, Finish: 0.25, Balance: 0.15}
}

func (w Weights) validate() error {
	for _, v := range []float64{w.Nose, w.Palate, w.Finish, w.Balance} {
		if v <= 0 {
			return errors.New("all scoring weights must be greater than zero")
		}
	}
	sum := w.Nose + w.Palate + w.Finish + w.Balance
	if math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

// weightedTotal folds one ballot's criteria into a 0-100 total,
// rounded to two decimals.
func (w Weights) weightedTotal(nose, palate, finish, balance int) float64 {
	total := w.Nose*float64(nose) +
		w.Palate*float64(palate) +
		w.Finish*float64(finish) +
		w.Balance*float64(balance)
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Session is one tasting event: a moderator, a flight of whiskeys, and
// the tasters working through it.
type Session struct {
	ID           string        `json:"id"`
	Code         string        `json:"code"`
	Title        string        `json:"title"`
	HostName     string        `json:"host_name"`
	Description  string        `json:"description,omitempty"`
	Status       SessionStatus `json:"status"`
	CurrentIndex int           `json:"current_index"`
	CurrentPhase TastingPhase  `json:"current_phase,omitempty"`
	Locked       bool          `json:"locked"`
	Weights      Weights       `json:"weights"`
	CreatedAt    time.Time     `json:"created_at"`
	OpenedAt     *time.Time    `json:"opened_at,omitempty"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	RevealedAt   *time.Time    `json:"revealed_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// revealed reports whether whiskey identities are public.
func (s *Session) revealed() bool {
	return s.Status == StatusReveal || s.Status == StatusCompleted
}

func (s *Session) terminal() bool {
	return s.Status == StatusCompleted
}

// Whiskey is one pour in a flight. Identity fields stay hidden from
// tasters until the session is revealed.
type Whiskey struct {
	ID         string  `json:"id"`
	SessionID  string  `json:"session_id"`
	Position   int     `json:"position"`
	Name       string  `json:"name"`
	Distillery string  `json:"distillery,omitempty"`
	AgeYears   int     `json:"age_years,omitempty"`
	ABV        float64 `json:"abv,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// maxFlightSize keeps blind labels single-letter.
const maxFlightSize = 26

// blindLabel maps a pour position to its blind name: "Whiskey A",
// "Whiskey B", and so on.
func blindLabel(position int) string {
	if position < 0 || position >= maxFlightSize {
		return fmt.Sprintf("Whiskey #%d", position+1)
	}
	return "Whiskey " + string(rune('A'+position))
}

func (w *Whiskey) label() string {
	return blindLabel(w.Position)
}

// WhiskeyView is the role-aware rendering of a whiskey. Blind views
// carry only the label and position.
type WhiskeyView struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Position   int     `json:"position"`
	Name       string  `json:"name,omitempty"`
	Distillery string  `json:"distillery,omitempty"`
	AgeYears   int     `json:"age_years,omitempty"`
	ABV        float64 `json:"abv,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// view renders the whiskey for a reader. Identity is included for the
// moderator and for everyone once the session is revealed.
func (w *Whiskey) view(identity bool) WhiskeyView {
	v := WhiskeyView{
		ID:       w.ID,
		Label:    w.label(),
		Position: w.Position,
	}
	if identity {
		v.Name = w.Name
		v.Distillery = w.Distillery
		v.AgeYears = w.AgeYears
		v.ABV = w.ABV
		v.Notes = w.Notes
	}
	return v
}

// Participant is a person in a session, moderator included.
type Participant struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Name      string          `json:"name"`
	Role      ParticipantRole `json:"role"`
	JoinedAt  time.Time       `json:"joined_at"`
	LastSeen  time.Time       `json:"last_seen"`
}

// ParticipantView is the roster entry. Scored is populated only for
// the moderator's pre-reveal progress view.
type ParticipantView struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Role      ParticipantRole `json:"role"`
	Connected bool            `json:"connected"`
	Scored    *int            `json:"scored,omitempty"`
}

// Score is one taster's ballot for one whiskey.
type Score struct {
	ParticipantID string    `json:"participant_id"`
	WhiskeyID     string    `json:"whiskey_id"`
	SessionID     string    `json:"-"`
	Nose          int       `json:"nose"`
	Palate        int       `json:"palate"`
	Finish        int       `json:"finish"`
	Balance       int       `json:"balance"`
	Total         float64   `json:"total"`
	Notes         string    `json:"notes,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WhiskeyResult is one row of the final ranking.
type WhiskeyResult struct {
	Whiskey     WhiskeyView `json:"whiskey"`
	Rank        int         `json:"rank"`
	Scores      int         `json:"scores"`
	MeanTotal   float64     `json:"mean_total"`
	HighTotal   float64     `json:"high_total"`
	LowTotal    float64     `json:"low_total"`
	MeanNose    float64     `json:"mean_nose"`
	MeanPalate  float64     `json:"mean_palate"`
	MeanFinish  float64     `json:"mean_finish"`
	MeanBalance float64     `json:"mean_balance"`
}

// ResultSnapshot is the immutable record written at reveal time.
type ResultSnapshot struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	ComputedAt time.Time       `json:"computed_at"`
	Tasters    int             `json:"tasters"`
	Rankings   []WhiskeyResult `json:"rankings"`
}

// Request bodies

type CreateSessionRequest struct {
	Title       string         `json:"title"`
	HostName    string         `json:"host_name"`
	Description string         `json:"description,omitempty"`
	Weights     *Weights       `json:"weights,omitempty"`
	Template    string         `json:"template,omitempty"`
	Whiskeys    []WhiskeyInput `json:"whiskeys,omitempty"`
}

type WhiskeyInput struct {
	Name       string  `json:"name" yaml:"name"`
	Distillery string  `json:"distillery,omitempty" yaml:"distillery,omitempty"`
	AgeYears   int     `json:"age_years,omitempty" yaml:"age_years,omitempty"`
	ABV        float64 `json:"abv,omitempty" yaml:"abv,omitempty"`
	Notes      string  `json:"notes,omitempty" yaml:"notes,omitempty"`
}

func (in *WhiskeyInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return errors.New("whiskey name is required")
	case in.AgeYears < 0:
		return errors.New("age_years cannot be negative")
	case in.ABV < 0 || in.ABV > 100:
		return errors.New("abv must be between 0 and 100")
	}

	return nil
}

type AddWhiskeysRequest struct {
	Whiskeys []WhiskeyInput `json:"whiskeys"`
}

type JoinSessionRequest struct {
	Name string `json:"name"`
}

type LockSessionRequest struct {
	Locked *bool `json:"locked"`
}

type SubmitScoreRequest struct {
	Nose    *int   `json:"nose"`
	Palate  *int   `json:"palate"`
	Finish  *int   `json:"finish"`
	Balance *int   `json:"balance"`
	Notes   string `json:"notes,omitempty"`
}

// Response bodies

type CreateSessionResponse struct {
	Session        Session       `json:"session"`
	Whiskeys       []WhiskeyView `json:"whiskeys"`
	ModeratorToken string        `json:"moderator_token"`
	TokenExpires   time.Time     `json:"token_expires_at"`
	JoinPath       string        `json:"join_path"`
}

type JoinSessionResponse struct {
	Participant  Participant `json:"participant"`
	Token        string      `json:"token"`
	TokenExpires time.Time   `json:"token_expires_at"`
}

// ViewerInfo identifies the authenticated caller inside a SessionView.
type ViewerInfo struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	Role          ParticipantRole `json:"role"`
}

// SessionView is the role-aware GET response for a session.
type SessionView struct {
	Session      Session           `json:"session"`
	Whiskeys     []WhiskeyView     `json:"whiskeys"`
	Participants []ParticipantView `json:"participants"`
	Viewer       *ViewerInfo       `json:"viewer,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
