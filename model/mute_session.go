package model

// MuteSession represents one continuous interval a user spent muted.
// At most one session per (guild, user) has IsActive set at any time;
// the mute state machine enforces that, not the storage layer.
type MuteSession struct {
	SessionID       int64  `db:"session_id"`
	GuildID         string `db:"guild_id"`
	UserID          string `db:"user_id"`
	Username        string `db:"username"`
	Reason          string `db:"reason"`
	TriggerContent  string `db:"trigger_content"`
	MutedAt         int64  `db:"muted_at"`   // UTC epoch seconds, advisory source timestamp
	UnmutedAt       int64  `db:"unmuted_at"` // 0 while the session is open
	DurationSeconds int64  `db:"duration_seconds"`
	MutedBy         string `db:"muted_by"`
	UnmutedBy       string `db:"unmuted_by"`
	CaseID          int64  `db:"case_id"` // correlated case, 0 if none was found
	IsActive        bool   `db:"is_active"`
}

// UnknownReason is recorded when no moderator log entry could be
// correlated with a mute-onset signal inside the correlation window.
const UnknownReason = "unknown"
