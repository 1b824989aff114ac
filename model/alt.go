package model

// JoinRecord captures what is known about a member at join time.
type JoinRecord struct {
	GuildID   string
	UserID    string
	Username  string
	CreatedAt int64 // account creation, UTC epoch seconds
	JoinedAt  int64
	InviterID string
	AvatarID  string
}

// AltLinkCandidate is a suspected alternate-account pairing. Candidates
// are only ever surfaced for human confirmation, never auto-merged.
type AltLinkCandidate struct {
	GuildID     string
	PrimaryID   string
	CandidateID string
	Confidence  float64 // 0..1
	Signals     []string
	CreatedAt   int64
}
