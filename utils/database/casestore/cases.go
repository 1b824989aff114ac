package casestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
	"warden-bot/model"
)

// MaxReasonLength is the platform message content limit; longer reasons
// are rejected rather than truncated.
const MaxReasonLength = 2000

// MaxTriggerContentLength caps stored trigger content. Trigger content
// is evidence, not a message to re-send, so it is truncated silently.
const MaxTriggerContentLength = 512

// CreateCase appends a new case to the ledger and returns its per-guild
// case ID. The ID sequence is monotonic within a guild.
func (s *Store) CreateCase(c model.CaseRecord) (int64, error) {
	if c.GuildID == "" {
		return 0, &model.ValidationError{Field: "case", Reason: "guild ID is required"}
	}
	if c.SubjectID == "" {
		return 0, &model.ValidationError{Field: "case", Reason: "subject ID is required"}
	}
	if !c.Kind.Valid() {
		return 0, &model.ValidationError{Field: "case", Reason: fmt.Sprintf("unknown action kind %q", c.Kind)}
	}
	if len(c.Reason) > MaxReasonLength {
		return 0, &model.ValidationError{Field: "case", Reason: "reason exceeds content length limit"}
	}
	if c.ActorID == "" {
		c.ActorID = model.SystemActorID
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().UTC().Unix()
	}
	if c.Status == "" {
		c.Status = model.CaseActive
	}
	if len(c.TriggerContent) > MaxTriggerContentLength {
		c.TriggerContent = c.TriggerContent[:MaxTriggerContentLength]
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return 0, &model.StoreUnavailableError{Op: "create case", Err: err}
	}
	defer tx.Rollback()

	var nextID int64
	if err := tx.Get(&nextID, `SELECT COALESCE(MAX(case_id), 0) + 1 FROM cases WHERE guild_id = ?`, c.GuildID); err != nil {
		return 0, &model.StoreUnavailableError{Op: "create case", Err: err}
	}
	c.CaseID = nextID

	query := `INSERT INTO cases (guild_id, case_id, subject_id, actor_id, kind, reason, trigger_content, created_at, expires_at, status)
	          VALUES (:guild_id, :case_id, :subject_id, :actor_id, :kind, :reason, :trigger_content, :created_at, :expires_at, :status)`
	if _, err := tx.NamedExec(query, c); err != nil {
		return 0, &model.StoreUnavailableError{Op: "create case", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &model.StoreUnavailableError{Op: "create case", Err: err}
	}
	return c.CaseID, nil
}

// GetCase retrieves a single case.
func (s *Store) GetCase(guildID string, caseID int64) (*model.CaseRecord, error) {
	var c model.CaseRecord
	err := withRetry("get case", func() error {
		return s.db.Get(&c, `SELECT * FROM cases WHERE guild_id = ? AND case_id = ?`, guildID, caseID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "case", ID: caseID}
	}
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "get case", Err: err}
	}
	return &c, nil
}

// UpdateStatus flips a case status. Only forward transitions are
// permitted (active -> expired or active -> reversed); anything else is
// rejected, never coerced.
func (s *Store) UpdateStatus(guildID string, caseID int64, next model.CaseStatus) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return &model.StoreUnavailableError{Op: "update status", Err: err}
	}
	defer tx.Rollback()

	var current model.CaseStatus
	err = tx.Get(&current, `SELECT status FROM cases WHERE guild_id = ? AND case_id = ?`, guildID, caseID)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Entity: "case", ID: caseID}
	}
	if err != nil {
		return &model.StoreUnavailableError{Op: "update status", Err: err}
	}

	if !current.CanTransitionTo(next) {
		return &model.InvalidTransitionError{CaseID: caseID, From: current, To: next}
	}

	if _, err := tx.Exec(`UPDATE cases SET status = ? WHERE guild_id = ? AND case_id = ?`, next, guildID, caseID); err != nil {
		return &model.StoreUnavailableError{Op: "update status", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &model.StoreUnavailableError{Op: "update status", Err: err}
	}
	return nil
}

// AddNote appends a staff annotation to a case.
func (s *Store) AddNote(guildID string, caseID int64, authorID, text string) error {
	if text == "" {
		return &model.ValidationError{Field: "note", Reason: "text is required"}
	}
	if _, err := s.GetCase(guildID, caseID); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO case_notes (guild_id, case_id, author_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		guildID, caseID, authorID, text, time.Now().UTC().Unix())
	if err != nil {
		return &model.StoreUnavailableError{Op: "add note", Err: err}
	}
	return nil
}

// Notes returns the annotations of a case in creation order.
func (s *Store) Notes(guildID string, caseID int64) ([]model.CaseNote, error) {
	var notes []model.CaseNote
	err := withRetry("get notes", func() error {
		return s.db.Select(&notes, `SELECT * FROM case_notes WHERE guild_id = ? AND case_id = ? ORDER BY note_id`, guildID, caseID)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "get notes", Err: err}
	}
	return notes, nil
}

// LinkCases records a symmetric relation between two cases. Re-linking
// an existing pair is a no-op, not an error.
func (s *Store) LinkCases(guildID string, a, b int64) error {
	if a == b {
		return &model.ValidationError{Field: "case link", Reason: "a case cannot link to itself"}
	}
	// Normalize the unordered pair.
	if a > b {
		a, b = b, a
	}
	for _, id := range []int64{a, b} {
		if _, err := s.GetCase(guildID, id); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO case_links (guild_id, case_a, case_b, created_at) VALUES (?, ?, ?, ?)`,
		guildID, a, b, time.Now().UTC().Unix())
	if err != nil {
		return &model.StoreUnavailableError{Op: "link cases", Err: err}
	}
	return nil
}

// Links returns all links that reference the given case.
func (s *Store) Links(guildID string, caseID int64) ([]model.CaseLink, error) {
	var links []model.CaseLink
	err := withRetry("get links", func() error {
		return s.db.Select(&links, `SELECT * FROM case_links WHERE guild_id = ? AND (case_a = ? OR case_b = ?)`, guildID, caseID, caseID)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "get links", Err: err}
	}
	return links, nil
}

// QueryHistory returns all cases for a subject, most recent first.
func (s *Store) QueryHistory(guildID, subjectID string) ([]model.CaseRecord, error) {
	var records []model.CaseRecord
	err := withRetry("query history", func() error {
		return s.db.Select(&records, `SELECT * FROM cases WHERE guild_id = ? AND subject_id = ? ORDER BY created_at DESC, case_id DESC`, guildID, subjectID)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "query history", Err: err}
	}
	return records, nil
}

// QueryActive returns the active cases of one action kind in a guild.
func (s *Store) QueryActive(guildID string, kind model.ActionKind) ([]model.CaseRecord, error) {
	var records []model.CaseRecord
	err := withRetry("query active", func() error {
		return s.db.Select(&records, `SELECT * FROM cases WHERE guild_id = ? AND status = ? AND kind = ?`, guildID, model.CaseActive, kind)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "query active", Err: err}
	}
	return records, nil
}

// ExpiredCases returns active temporary cases whose expiry has passed,
// across all guilds. The scheduler drives reversals from this.
func (s *Store) ExpiredCases(now time.Time) ([]model.CaseRecord, error) {
	var records []model.CaseRecord
	err := withRetry("expired cases", func() error {
		return s.db.Select(&records, `SELECT * FROM cases WHERE status = ? AND expires_at > 0 AND expires_at <= ? AND kind IN (?, ?)`,
			model.CaseActive, now.UTC().Unix(), model.ActionTempBan, model.ActionTempMute)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "expired cases", Err: err}
	}
	return records, nil
}

// RecentCasesForSubject returns the subject's cases created at or after
// since, oldest first. Used by the mute machine's log correlation.
func (s *Store) RecentCasesForSubject(guildID, subjectID string, since time.Time) ([]model.CaseRecord, error) {
	var records []model.CaseRecord
	err := withRetry("recent cases", func() error {
		return s.db.Select(&records, `SELECT * FROM cases WHERE guild_id = ? AND subject_id = ? AND created_at >= ? ORDER BY created_at`,
			guildID, subjectID, since.UTC().Unix())
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "recent cases", Err: err}
	}
	return records, nil
}

// ActorStats returns the case count per actor in a guild since the
// given time, excluding system-generated cases.
func (s *Store) ActorStats(guildID string, since time.Time) (map[string]int, error) {
	var rows []struct {
		ActorID string `db:"actor_id"`
		Count   int    `db:"count"`
	}
	err := withRetry("actor stats", func() error {
		return s.db.Select(&rows, `SELECT actor_id, COUNT(*) AS count FROM cases WHERE guild_id = ? AND created_at >= ? AND actor_id != ? GROUP BY actor_id`,
			guildID, since.UTC().Unix(), model.SystemActorID)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "actor stats", Err: err}
	}

	stats := make(map[string]int, len(rows))
	for _, row := range rows {
		stats[row.ActorID] = row.Count
	}
	return stats, nil
}

// TotalCaseCount returns how many cases were created in a guild since
// the given time.
func (s *Store) TotalCaseCount(guildID string, since time.Time) (int, error) {
	var count int
	err := withRetry("total case count", func() error {
		return s.db.Get(&count, `SELECT COUNT(*) FROM cases WHERE guild_id = ? AND created_at >= ?`, guildID, since.UTC().Unix())
	})
	if err != nil {
		return 0, &model.StoreUnavailableError{Op: "total case count", Err: err}
	}
	return count, nil
}

// ProblemUsers returns subjects with at least one case created since
// the given time. The alt correlator scores new joins against these.
func (s *Store) ProblemUsers(guildID string, since time.Time) ([]string, error) {
	var users []string
	err := withRetry("problem users", func() error {
		return s.db.Select(&users, `SELECT DISTINCT subject_id FROM cases WHERE guild_id = ? AND created_at >= ?`, guildID, since.UTC().Unix())
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "problem users", Err: err}
	}
	return users, nil
}
