/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqlitePragmas is appended to SQLite DSNs that don't already carry
// pragma options. WAL plus a busy timeout keeps concurrent readers
// from tripping over the single writer, and _time_format makes
// timestamp columns round-trip as time.Time.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

var errNameTaken = errors.New("name already taken")

// Store wraps the database handle. All SQL lives here; handlers never
// touch *sql.DB directly.
type Store struct {
	db     *sql.DB
	driver string
}

func openDatabase(driver, dsn string) (*Store, error) {
	var db *sql.DB
	var err error

	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = "file:whiskeycanon.db"
		}

		if !strings.Contains(dsn, "_pragma") {
			separator := "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}

			dsn += separator + sqlitePragmas
		}

		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}

		// modernc.org/sqlite serializes writes anyway; a single
		// connection avoids SQLITE_BUSY inside transactions.
		db.SetMaxOpenConns(1)
	case "postgres":
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()

		return nil, err
	}

	return &Store{db: db, driver: driver}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, code, title, host_name, description, status, current_index, current_phase, locked,
	weight_nose, weight_palate, weight_finish, weight_balance,
	created_at, opened_at, started_at, revealed_at, completed_at`

func scanSession(row scanner) (*Session, error) {
	var sess Session

	var openedAt, startedAt, revealedAt, completedAt sql.NullTime

	err := row.Scan(&sess.ID, &sess.Code, &sess.Title, &sess.HostName, &sess.Description,
		&sess.Status, &sess.CurrentIndex, &sess.CurrentPhase, &sess.Locked,
		&sess.Weights.Nose, &sess.Weights.Palate, &sess.Weights.Finish, &sess.Weights.Balance,
		&sess.CreatedAt, &openedAt, &startedAt, &revealedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	sess.OpenedAt = nullableTime(openedAt)
	sess.StartedAt = nullableTime(startedAt)
	sess.RevealedAt = nullableTime(revealedAt)
	sess.CompletedAt = nullableTime(completedAt)

	return &sess, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	utc := t.Time.UTC()

	return &utc
}

// CreateSession inserts the session, its initial flight, and the
// moderator as the first participant in one transaction.
func (s *Store) CreateSession(ctx context.Context, sess *Session, whiskeys []*Whiskey, moderator *Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO session
		(id, code, title, host_name, description, status, current_index, current_phase, locked,
		weight_nose, weight_palate, weight_finish, weight_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sess.ID, sess.Code, sess.Title, sess.HostName, sess.Description,
		sess.Status, sess.CurrentIndex, sess.CurrentPhase, sess.Locked,
		sess.Weights.Nose, sess.Weights.Palate, sess.Weights.Finish, sess.Weights.Balance,
		sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for _, w := range whiskeys {
		if err := insertWhiskey(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := insertParticipant(ctx, tx, moderator); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) SessionByCode(ctx context.Context, code string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM session WHERE code = $1`, code)

	return scanSession(row)
}

func (s *Store) SessionByID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM session WHERE id = $1`, id)

	return scanSession(row)
}

// UpdateSessionStatus moves a session from one status to another,
// stamping the matching timestamp column. Returns false when the
// session was no longer in the expected status, which callers treat
// as a conflict.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, from, to SessionStatus, now time.Time) (bool, error) {
	query := `UPDATE session SET status = $1`

	args := []any{to}

	switch {
	case to == StatusWaiting:
		query += `, opened_at = $2`
		args = append(args, now)
	case to == StatusActive && from == StatusWaiting:
		query += `, started_at = $2, current_index = 0, current_phase = $3`
		args = append(args, now, PhasePour)
	case to == StatusCompleted:
		query += `, completed_at = $2`
		args = append(args, now)
	}

	query += fmt.Sprintf(` WHERE id = $%d AND status = $%d`, len(args)+1, len(args)+2)
	args = append(args, id, from)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update session status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// SetSessionPhase advances the phase pointer. The WHERE clause pins
// the previous phase and index so two racing advance requests can't
// both succeed.
func (s *Store) SetSessionPhase(ctx context.Context, id string, fromPhase TastingPhase, fromIndex int, toPhase TastingPhase, toIndex int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE session SET current_phase = $1, current_index = $2
		WHERE id = $3 AND status = $4 AND current_phase = $5 AND current_index = $6`,
		toPhase, toIndex, id, StatusActive, fromPhase, fromIndex)
	if err != nil {
		return false, fmt.Errorf("failed to update session phase: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func (s *Store) SetSessionLocked(ctx context.Context, id string, locked bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE session SET locked = $1 WHERE id = $2`, locked, id)
	if err != nil {
		return fmt.Errorf("failed to update session lock: %w", err)
	}

	return nil
}

func insertWhiskey(ctx context.Context, tx *sql.Tx, w *Whiskey) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO whiskey
		(id, session_id, position, name, distillery, age_years, abv, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.SessionID, w.Position, w.Name, w.Distillery, w.AgeYears, w.ABV, w.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert whiskey: %w", err)
	}

	return nil
}

// AddWhiskeys appends entries to the end of the flight, assigning
// positions inside the transaction.
func (s *Store) AddWhiskeys(ctx context.Context, sessionID string, whiskeys []*Whiskey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int

	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM whiskey WHERE session_id = $1`, sessionID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to count flight: %w", err)
	}

	for _, w := range whiskeys {
		w.Position = next
		next++

		if err := insertWhiskey(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) SessionWhiskeys(ctx context.Context, sessionID string) ([]Whiskey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, position, name, distillery, age_years, abv, notes
		FROM whiskey WHERE session_id = $1 ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flight: %w", err)
	}
	defer rows.Close()

	var whiskeys []Whiskey

	for rows.Next() {
		var w Whiskey

		err := rows.Scan(&w.ID, &w.SessionID, &w.Position, &w.Name, &w.Distillery, &w.AgeYears, &w.ABV, &w.Notes)
		if err != nil {
			return nil, err
		}

		whiskeys = append(whiskeys, w)
	}

	return whiskeys, rows.Err()
}

func (s *Store) WhiskeyByID(ctx context.Context, sessionID, whiskeyID string) (*Whiskey, error) {
	var w Whiskey

	err := s.db.QueryRowContext(ctx, `SELECT id, session_id, position, name, distillery, age_years, abv, notes
		FROM whiskey WHERE id = $1 AND session_id = $2`, whiskeyID, sessionID).
		Scan(&w.ID, &w.SessionID, &w.Position, &w.Name, &w.Distillery, &w.AgeYears, &w.ABV, &w.Notes)
	if err != nil {
		return nil, err
	}

	return &w, nil
}

func (s *Store) UpdateWhiskey(ctx context.Context, w *Whiskey) error {
	result, err := s.db.ExecContext(ctx, `UPDATE whiskey SET name = $1, distillery = $2, age_years = $3, abv = $4, notes = $5
		WHERE id = $6 AND session_id = $7`,
		w.Name, w.Distillery, w.AgeYears, w.ABV, w.Notes, w.ID, w.SessionID)
	if err != nil {
		return fmt.Errorf("failed to update whiskey: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// RemoveWhiskey deletes a flight entry and closes the gap in the
// remaining positions.
func (s *Store) RemoveWhiskey(ctx context.Context, sessionID, whiskeyID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int

	err = tx.QueryRowContext(ctx, `SELECT position FROM whiskey WHERE id = $1 AND session_id = $2`, whiskeyID, sessionID).Scan(&position)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM whiskey WHERE id = $1`, whiskeyID)
	if err != nil {
		return fmt.Errorf("failed to delete whiskey: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE whiskey SET position = position - 1 WHERE session_id = $1 AND position > $2`, sessionID, position)
	if err != nil {
		return fmt.Errorf("failed to renumber flight: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertParticipant(ctx context.Context, tx *sql.Tx, p *Participant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO participant (id, session_id, name, role, joined_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.SessionID, p.Name, p.Role, p.JoinedAt, p.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}

	return nil
}

// AddParticipant inserts a taster, rejecting names already present in
// the session. The check runs in the same transaction as the insert;
// the unique index backs it up.
func (s *Store) AddParticipant(ctx context.Context, p *Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string

	err = tx.QueryRowContext(ctx, `SELECT id FROM participant WHERE session_id = $1 AND lower(name) = lower($2)`,
		p.SessionID, p.Name).Scan(&existing)

	switch {
	case err == nil:
		return errNameTaken
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check participant name: %w", err)
	}

	if err := insertParticipant(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *Store) ParticipantByID(ctx context.Context, id string) (*Participant, error) {
	var p Participant

	err := s.db.QueryRowContext(ctx, `SELECT id, session_id, name, role, joined_at, last_seen
		FROM participant WHERE id = $1`, id).
		Scan(&p.ID, &p.SessionID, &p.Name, &p.Role, &p.JoinedAt, &p.LastSeen)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *Store) Participants(ctx context.Context, sessionID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, name, role, joined_at, last_seen
		FROM participant WHERE session_id = $1 ORDER BY joined_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	var participants []Participant

	for rows.Next() {
		var p Participant

		err := rows.Scan(&p.ID, &p.SessionID, &p.Name, &p.Role, &p.JoinedAt, &p.LastSeen)
		if err != nil {
			return nil, err
		}

		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// RemoveParticipant deletes a taster; their scores go with them via
// ON DELETE CASCADE.
func (s *Store) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM participant WHERE id = $1 AND session_id = $2 AND role != $3`,
		participantID, sessionID, RoleModerator)
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (s *Store) TouchParticipant(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE participant SET last_seen = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}

	return nil
}

func (s *Store) CountTasters(ctx context.Context, sessionID string) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participant WHERE session_id = $1 AND role = $2`,
		sessionID, RoleTaster).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasters: %w", err)
	}

	return count, nil
}

// ParticipantScoreCounts returns, per participant, how many whiskeys
// they have scored so far.
func (s *Store) ParticipantScoreCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT participant_id, COUNT(*) FROM score
		WHERE session_id = $1 GROUP BY participant_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count scores: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			id    string
			count int
		)

		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}

		counts[id] = count
	}

	return counts, rows.Err()
}

func (s *Store) WhiskeyScoreCount(ctx context.Context, whiskeyID string) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM score WHERE whiskey_id = $1`, whiskeyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scores: %w", err)
	}

	return count, nil
}

// UpsertScore inserts a ballot or, when the taster already scored this
// whiskey, overwrites the criteria while keeping the original
// submission time. Returns true when a new row was created.
func (s *Store) UpsertScore(ctx context.Context, sc *Score) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var submittedAt time.Time

	err = tx.QueryRowContext(ctx, `SELECT submitted_at FROM score WHERE participant_id = $1 AND whiskey_id = $2`,
		sc.ParticipantID, sc.WhiskeyID).Scan(&submittedAt)

	var created bool

	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		sc.SubmittedAt = sc.UpdatedAt

		_, err = tx.ExecContext(ctx, `INSERT INTO score
			(participant_id, whiskey_id, session_id, nose, palate, finish, balance, total, notes, submitted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			sc.ParticipantID, sc.WhiskeyID, sc.SessionID,
			sc.Nose, sc.Palate, sc.Finish, sc.Balance, sc.Total, sc.Notes,
			sc.SubmittedAt, sc.UpdatedAt)
		if err != nil {
			return false, fmt.Errorf("failed to insert score: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("failed to check score: %w", err)
	default:
		sc.SubmittedAt = submittedAt.UTC()

		_, err = tx.ExecContext(ctx, `UPDATE score SET nose = $1, palate = $2, finish = $3, balance = $4, total = $5, notes = $6, updated_at = $7
			WHERE participant_id = $8 AND whiskey_id = $9`,
			sc.Nose, sc.Palate, sc.Finish, sc.Balance, sc.Total, sc.Notes, sc.UpdatedAt,
			sc.ParticipantID, sc.WhiskeyID)
		if err != nil {
			return false, fmt.Errorf("failed to update score: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return created, nil
}

const scoreColumns = `participant_id, whiskey_id, session_id, nose, palate, finish, balance, total, notes, submitted_at, updated_at`

func scanScores(rows *sql.Rows) ([]Score, error) {
	defer rows.Close()

	var scores []Score

	for rows.Next() {
		var sc Score

		err := rows.Scan(&sc.ParticipantID, &sc.WhiskeyID, &sc.SessionID,
			&sc.Nose, &sc.Palate, &sc.Finish, &sc.Balance, &sc.Total, &sc.Notes,
			&sc.SubmittedAt, &sc.UpdatedAt)
		if err != nil {
			return nil, err
		}

		scores = append(scores, sc)
	}

	return scores, rows.Err()
}

func (s *Store) ScoresByParticipant(ctx context.Context, sessionID, participantID string) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scoreColumns+` FROM score
		WHERE session_id = $1 AND participant_id = $2 ORDER BY whiskey_id ASC`, sessionID, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}

	return scanScores(rows)
}

func (s *Store) SessionScores(ctx context.Context, sessionID string) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scoreColumns+` FROM score
		WHERE session_id = $1 ORDER BY whiskey_id ASC, participant_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}

	return scanScores(rows)
}

// RevealSession flips the session into reveal and computes the result
// snapshot in the same transaction, so the rankings reflect exactly
// the ballots present at the moment of the flip.
func (s *Store) RevealSession(ctx context.Context, sessionID, snapshotID string, now time.Time) (*ResultSnapshot, *Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `UPDATE session SET status = $1, revealed_at = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		StatusReveal, now, sessionID, StatusActive, StatusPaused)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update session status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, nil, err
	}

	if affected == 0 {
		return nil, nil, errBadTransition
	}

	sess, err := scanSession(tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM session WHERE id = $1`, sessionID))
	if err != nil {
		return nil, nil, err
	}

	whiskeyRows, err := tx.QueryContext(ctx, `SELECT id, session_id, position, name, distillery, age_years, abv, notes
		FROM whiskey WHERE session_id = $1 ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query flight: %w", err)
	}

	var whiskeys []Whiskey

	for whiskeyRows.Next() {
		var w Whiskey

		err := whiskeyRows.Scan(&w.ID, &w.SessionID, &w.Position, &w.Name, &w.Distillery, &w.AgeYears, &w.ABV, &w.Notes)
		if err != nil {
			whiskeyRows.Close()

			return nil, nil, err
		}

		whiskeys = append(whiskeys, w)
	}

	whiskeyRows.Close()

	if err := whiskeyRows.Err(); err != nil {
		return nil, nil, err
	}

	scoreRows, err := tx.QueryContext(ctx, `SELECT `+scoreColumns+` FROM score WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query scores: %w", err)
	}

	scores, err := scanScores(scoreRows)
	if err != nil {
		return nil, nil, err
	}

	var tasters int

	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM participant WHERE session_id = $1 AND role = $2`,
		sessionID, RoleTaster).Scan(&tasters)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count tasters: %w", err)
	}

	snapshot := &ResultSnapshot{
		ID:         snapshotID,
		SessionID:  sessionID,
		ComputedAt: now,
		Tasters:    tasters,
		Rankings:   computeResults(whiskeys, scores),
	}

	payload, err := json.Marshal(snapshotPayload{Tasters: snapshot.Tasters, Rankings: snapshot.Rankings})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO result_snapshot (id, session_id, computed_at, payload)
		VALUES ($1, $2, $3, $4)`,
		snapshot.ID, snapshot.SessionID, snapshot.ComputedAt, string(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return snapshot, sess, nil
}

type snapshotPayload struct {
	Tasters  int             `json:"tasters"`
	Rankings []WhiskeyResult `json:"rankings"`
}

func (s *Store) SnapshotBySession(ctx context.Context, sessionID string) (*ResultSnapshot, error) {
	var (
		snapshot ResultSnapshot
		payload  string
	)

	err := s.db.QueryRowContext(ctx, `SELECT id, session_id, computed_at, payload FROM result_snapshot
		WHERE session_id = $1 ORDER BY computed_at DESC LIMIT 1`, sessionID).
		Scan(&snapshot.ID, &snapshot.SessionID, &snapshot.ComputedAt, &payload)
	if err != nil {
		return nil, err
	}

	var decoded snapshotPayload

	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snapshot.Tasters = decoded.Tasters
	snapshot.Rankings = decoded.Rankings

	return &snapshot, nil
}
