package model

// ActionKind is the kind of moderation action a case records.
type ActionKind string

const (
	ActionBan      ActionKind = "ban"
	ActionUnban    ActionKind = "unban"
	ActionTempBan  ActionKind = "tempban"
	ActionMute     ActionKind = "mute"
	ActionUnmute   ActionKind = "unmute"
	ActionTempMute ActionKind = "tempmute"
	ActionWarn     ActionKind = "warn"
	ActionKick     ActionKind = "kick"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionBan, ActionUnban, ActionTempBan, ActionMute, ActionUnmute, ActionTempMute, ActionWarn, ActionKick:
		return true
	}
	return false
}

// Temporary reports whether the action carries an expiry.
func (k ActionKind) Temporary() bool {
	return k == ActionTempBan || k == ActionTempMute
}

// ReversalKind returns the action that undoes a temporary action.
func (k ActionKind) ReversalKind() ActionKind {
	switch k {
	case ActionTempBan, ActionBan:
		return ActionUnban
	case ActionTempMute, ActionMute:
		return ActionUnmute
	}
	return ""
}

// CaseStatus is the lifecycle state of a case. Transitions only move
// forward: active -> expired or active -> reversed.
type CaseStatus string

const (
	CaseActive   CaseStatus = "active"
	CaseExpired  CaseStatus = "expired"
	CaseReversed CaseStatus = "reversed"
)

// CanTransitionTo reports whether moving from s to next is a forward
// transition. Expired and reversed cases are terminal.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	return s == CaseActive && (next == CaseExpired || next == CaseReversed)
}

// SystemActorID marks cases created by the bot itself rather than a
// moderator (threat detector actions, scheduler reversals).
const SystemActorID = "system"

// CaseRecord is one row in the moderation ledger. Rows are never
// deleted; only Status changes after creation.
type CaseRecord struct {
	CaseID         int64      `db:"case_id"` // per-guild sequence
	GuildID        string     `db:"guild_id"`
	SubjectID      string     `db:"subject_id"`
	ActorID        string     `db:"actor_id"`
	Kind           ActionKind `db:"kind"`
	Reason         string     `db:"reason"`
	TriggerContent string     `db:"trigger_content"`
	CreatedAt      int64      `db:"created_at"` // UTC epoch seconds
	ExpiresAt      int64      `db:"expires_at"` // 0 for permanent actions
	Status         CaseStatus `db:"status"`
}

// CaseNote is an append-only staff annotation on a case.
type CaseNote struct {
	NoteID    int64  `db:"note_id"`
	GuildID   string `db:"guild_id"`
	CaseID    int64  `db:"case_id"`
	AuthorID  string `db:"author_id"`
	Text      string `db:"text"`
	CreatedAt int64  `db:"created_at"`
}

// CaseLink is a symmetric relation between two cases of the same guild.
// The store keeps CaseA < CaseB so each unordered pair exists at most once.
type CaseLink struct {
	GuildID   string `db:"guild_id"`
	CaseA     int64  `db:"case_a"`
	CaseB     int64  `db:"case_b"`
	CreatedAt int64  `db:"created_at"`
}
