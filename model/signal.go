package model

import "time"

// SignalType identifies one class of external event feeding the threat
// detector and the mute state machine. Payloads vary per source, so each
// type gets its own struct, validated at the ingestion boundary.
type SignalType string

const (
	SignalMessage       SignalType = "message"
	SignalMassDeletion  SignalType = "mass_deletion"
	SignalPermEscalate  SignalType = "perm_escalation"
	SignalJoin          SignalType = "join"
	SignalRoleChange    SignalType = "role_change"
	SignalTimeoutChange SignalType = "timeout_change"
)

// MessageSignal is a message-create event.
type MessageSignal struct {
	GuildID    string
	UserID     string
	ChannelID  string
	Content    string
	Timestamp  int64     // source timestamp, advisory only
	ReceivedAt time.Time // monotonic local receipt
}

func (m MessageSignal) Validate() error {
	if m.GuildID == "" || m.UserID == "" || m.ChannelID == "" {
		return &ValidationError{Field: "message signal", Reason: "guild, user and channel IDs are required"}
	}
	return nil
}

// DeletionSignal is a channel or role deletion attributed to an actor.
type DeletionSignal struct {
	GuildID    string
	ActorID    string
	TargetID   string
	TargetName string
	ReceivedAt time.Time
}

func (d DeletionSignal) Validate() error {
	if d.GuildID == "" || d.ActorID == "" {
		return &ValidationError{Field: "deletion signal", Reason: "guild and actor IDs are required"}
	}
	return nil
}

// PermissionSignal is a permission change applied by an actor.
type PermissionSignal struct {
	GuildID    string
	ActorID    string
	TargetID   string
	Diff       string // human-readable summary of the change
	Escalation bool   // grants a dangerous permission
	ReceivedAt time.Time
}

func (p PermissionSignal) Validate() error {
	if p.GuildID == "" || p.ActorID == "" {
		return &ValidationError{Field: "permission signal", Reason: "guild and actor IDs are required"}
	}
	return nil
}

// RoleChangeSignal reports the muted role being added to or removed
// from a member.
type RoleChangeSignal struct {
	GuildID    string
	UserID     string
	Username   string
	RoleID     string
	Added      bool
	Timestamp  int64 // source timestamp, advisory only
	ReceivedAt time.Time
}

func (r RoleChangeSignal) Validate() error {
	if r.GuildID == "" || r.UserID == "" || r.RoleID == "" {
		return &ValidationError{Field: "role change signal", Reason: "guild, user and role IDs are required"}
	}
	return nil
}

// TimeoutChangeSignal reports a platform timeout being set or cleared.
// Until is nil when the timeout was cleared.
type TimeoutChangeSignal struct {
	GuildID    string
	UserID     string
	Username   string
	Until      *time.Time
	ReceivedAt time.Time
}

func (t TimeoutChangeSignal) Validate() error {
	if t.GuildID == "" || t.UserID == "" {
		return &ValidationError{Field: "timeout change signal", Reason: "guild and user IDs are required"}
	}
	return nil
}
