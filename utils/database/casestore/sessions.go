package casestore

import (
	"database/sql"
	"errors"
	"warden-bot/model"
)

// OpenSession inserts a new active mute session and returns its ID.
func (s *Store) OpenSession(sess model.MuteSession) (int64, error) {
	if sess.GuildID == "" || sess.UserID == "" {
		return 0, &model.ValidationError{Field: "mute session", Reason: "guild and user IDs are required"}
	}
	sess.IsActive = true
	if len(sess.TriggerContent) > MaxTriggerContentLength {
		sess.TriggerContent = sess.TriggerContent[:MaxTriggerContentLength]
	}
	query := `INSERT INTO mute_sessions (guild_id, user_id, username, reason, trigger_content, muted_at, unmuted_at, duration_seconds, muted_by, unmuted_by, case_id, is_active)
	          VALUES (:guild_id, :user_id, :username, :reason, :trigger_content, :muted_at, :unmuted_at, :duration_seconds, :muted_by, :unmuted_by, :case_id, :is_active)`
	result, err := s.db.NamedExec(query, sess)
	if err != nil {
		return 0, &model.StoreUnavailableError{Op: "open session", Err: err}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, &model.StoreUnavailableError{Op: "open session", Err: err}
	}
	return id, nil
}

// CloseSession marks a session inactive and records when and by whom it
// ended. Duration is computed by the caller and is never negative.
func (s *Store) CloseSession(sessionID int64, unmutedAt, durationSeconds int64, unmutedBy string) error {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	result, err := s.db.Exec(`UPDATE mute_sessions SET is_active = 0, unmuted_at = ?, duration_seconds = ?, unmuted_by = ? WHERE session_id = ? AND is_active = 1`,
		unmutedAt, durationSeconds, unmutedBy, sessionID)
	if err != nil {
		return &model.StoreUnavailableError{Op: "close session", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &model.StoreUnavailableError{Op: "close session", Err: err}
	}
	if affected == 0 {
		return &model.NotFoundError{Entity: "active mute session", ID: sessionID}
	}
	return nil
}

// AttachSessionCase fills in the metadata found by a late correlation
// lookup: the matching case, its reason, trigger content and actor.
func (s *Store) AttachSessionCase(sessionID, caseID int64, reason, triggerContent, mutedBy string) error {
	if len(triggerContent) > MaxTriggerContentLength {
		triggerContent = triggerContent[:MaxTriggerContentLength]
	}
	_, err := s.db.Exec(`UPDATE mute_sessions SET case_id = ?, reason = ?, trigger_content = ?, muted_by = ? WHERE session_id = ?`,
		caseID, reason, triggerContent, mutedBy, sessionID)
	if err != nil {
		return &model.StoreUnavailableError{Op: "attach session case", Err: err}
	}
	return nil
}

// GetSession retrieves a single mute session.
func (s *Store) GetSession(sessionID int64) (*model.MuteSession, error) {
	var sess model.MuteSession
	err := withRetry("get session", func() error {
		return s.db.Get(&sess, `SELECT * FROM mute_sessions WHERE session_id = ?`, sessionID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Entity: "mute session", ID: sessionID}
	}
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "get session", Err: err}
	}
	return &sess, nil
}

// ActiveSessions returns every open session across all guilds. The mute
// machine rebuilds its in-memory prisoner index from this at startup.
func (s *Store) ActiveSessions() ([]model.MuteSession, error) {
	var sessions []model.MuteSession
	err := withRetry("active sessions", func() error {
		return s.db.Select(&sessions, `SELECT * FROM mute_sessions WHERE is_active = 1`)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "active sessions", Err: err}
	}
	return sessions, nil
}

// ActiveSessionsForGuild returns the open sessions of one guild,
// longest-held prisoner first.
func (s *Store) ActiveSessionsForGuild(guildID string) ([]model.MuteSession, error) {
	var sessions []model.MuteSession
	err := withRetry("active sessions for guild", func() error {
		return s.db.Select(&sessions, `SELECT * FROM mute_sessions WHERE guild_id = ? AND is_active = 1 ORDER BY muted_at`, guildID)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "active sessions for guild", Err: err}
	}
	return sessions, nil
}

// SessionCount returns a user's lifetime mute session count in a guild.
func (s *Store) SessionCount(guildID, userID string) (int, error) {
	var count int
	err := withRetry("session count", func() error {
		return s.db.Get(&count, `SELECT COUNT(*) FROM mute_sessions WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	})
	if err != nil {
		return 0, &model.StoreUnavailableError{Op: "session count", Err: err}
	}
	return count, nil
}

// SessionHistory returns a user's sessions, most recent first.
func (s *Store) SessionHistory(guildID, userID string) ([]model.MuteSession, error) {
	var sessions []model.MuteSession
	err := withRetry("session history", func() error {
		return s.db.Select(&sessions, `SELECT * FROM mute_sessions WHERE guild_id = ? AND user_id = ? ORDER BY muted_at DESC, session_id DESC`, guildID, userID)
	})
	if err != nil {
		return nil, &model.StoreUnavailableError{Op: "session history", Err: err}
	}
	return sessions, nil
}
