package alt

import (
	"fmt"
	"log"
	"sync"
	"time"
	"warden-bot/model"
	"warden-bot/utils/database/casestore"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Correlator flags probable alternate accounts at join time. It scores
// a new member against recent joins and against users with a case
// history, combining account-age, creation-time and join-time
// proximity, name similarity and shared fingerprints. Candidates are
// only ever surfaced for human confirmation; the correlator never
// performs an enforcement action.
type Correlator struct {
	store *casestore.Store
	cfg   model.AltConfig

	recent *lru.Cache[string, model.JoinRecord]

	mu       sync.Mutex
	surfaced map[string][]model.AltLinkCandidate // guildID -> latest candidates
	surfCap  int
	now      func() time.Time
}

// Pair signal weights, on a 0..1 confidence scale.
const (
	weightAccountUnder7d   = 0.30
	weightAccountUnder30d  = 0.15
	weightCreatedWithin1h  = 0.45
	weightCreatedWithin24h = 0.30
	weightCreatedWithin7d  = 0.15
	weightJoinedWithin1h   = 0.40
	weightJoinedWithin6h   = 0.25
	weightJoinedWithin24h  = 0.15
	weightNameExact        = 0.50
	weightNameHigh         = 0.35 // > 80% similar
	weightNameMedium       = 0.20 // > 60% similar
	weightSameInviter      = 0.35
	weightSameAvatar       = 0.45
	weightKnownOffender    = 0.25
)

// New creates a correlator with an LRU of recent joins.
func New(store *casestore.Store, cfg model.AltConfig) (*Correlator, error) {
	if cfg.RecentJoinLimit <= 0 {
		cfg.RecentJoinLimit = 256
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.5
	}
	if cfg.JoinHistoryWindow <= 0 {
		cfg.JoinHistoryWindow = 24 * time.Hour
	}
	cache, err := lru.New[string, model.JoinRecord](cfg.RecentJoinLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create join cache: %w", err)
	}
	return &Correlator{
		store:    store,
		cfg:      cfg,
		recent:   cache,
		surfaced: make(map[string][]model.AltLinkCandidate),
		surfCap:  50,
		now:      time.Now,
	}, nil
}

// OnJoin scores a newly joined member and returns the candidates at or
// above the confidence floor, most confident first.
func (c *Correlator) OnJoin(join model.JoinRecord) ([]model.AltLinkCandidate, error) {
	offenders, err := c.knownOffenders(join.GuildID)
	if err != nil {
		// A store hiccup does not block join processing; scoring just
		// loses the case-history signal.
		log.Printf("alt: failed to load offender list for guild %s: %v", join.GuildID, err)
		offenders = nil
	}

	cutoff := c.now().Add(-c.cfg.JoinHistoryWindow).Unix()
	var candidates []model.AltLinkCandidate
	for _, k := range c.recent.Keys() {
		other, ok := c.recent.Get(k)
		if !ok || other.GuildID != join.GuildID || other.UserID == join.UserID {
			continue
		}
		if other.JoinedAt < cutoff {
			continue
		}
		confidence, signals := scorePair(join, other, offenders[other.UserID])
		if confidence < c.cfg.ConfidenceFloor {
			continue
		}
		candidates = append(candidates, model.AltLinkCandidate{
			GuildID:     join.GuildID,
			PrimaryID:   other.UserID,
			CandidateID: join.UserID,
			Confidence:  confidence,
			Signals:     signals,
			CreatedAt:   c.now().UTC().Unix(),
		})
	}

	c.recent.Add(join.GuildID+":"+join.UserID, join)

	sortByConfidence(candidates)
	if len(candidates) > 0 {
		c.remember(join.GuildID, candidates)
	}
	return candidates, nil
}

// Surfaced returns the latest candidates flagged in a guild, for the
// /alts review command.
func (c *Correlator) Surfaced(guildID string) []model.AltLinkCandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.AltLinkCandidate, len(c.surfaced[guildID]))
	copy(out, c.surfaced[guildID])
	return out
}

func (c *Correlator) remember(guildID string, candidates []model.AltLinkCandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := append(candidates, c.surfaced[guildID]...)
	if len(list) > c.surfCap {
		list = list[:c.surfCap]
	}
	c.surfaced[guildID] = list
}

// knownOffenders returns the set of users with any case in the last 90
// days, the correlator's "known problematic" population.
func (c *Correlator) knownOffenders(guildID string) (map[string]bool, error) {
	users, err := c.store.ProblemUsers(guildID, c.now().Add(-90*24*time.Hour))
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(users))
	for _, u := range users {
		set[u] = true
	}
	return set, nil
}

// scorePair combines the pairwise signals into a 0..1 confidence.
func scorePair(join, other model.JoinRecord, otherIsOffender bool) (float64, []string) {
	var score float64
	var signals []string
	add := func(w float64, name string) {
		score += w
		signals = append(signals, name)
	}

	accountAge := time.Duration(join.JoinedAt-join.CreatedAt) * time.Second
	switch {
	case accountAge < 7*24*time.Hour:
		add(weightAccountUnder7d, "account under 7 days old")
	case accountAge < 30*24*time.Hour:
		add(weightAccountUnder30d, "account under 30 days old")
	}

	createdDelta := absSeconds(join.CreatedAt - other.CreatedAt)
	switch {
	case createdDelta < time.Hour:
		add(weightCreatedWithin1h, "accounts created within 1 hour")
	case createdDelta < 24*time.Hour:
		add(weightCreatedWithin24h, "accounts created within 24 hours")
	case createdDelta < 7*24*time.Hour:
		add(weightCreatedWithin7d, "accounts created within 7 days")
	}

	joinDelta := absSeconds(join.JoinedAt - other.JoinedAt)
	switch {
	case joinDelta < time.Hour:
		add(weightJoinedWithin1h, "joined within 1 hour")
	case joinDelta < 6*time.Hour:
		add(weightJoinedWithin6h, "joined within 6 hours")
	case joinDelta < 24*time.Hour:
		add(weightJoinedWithin24h, "joined within 24 hours")
	}

	switch sim := nameSimilarity(join.Username, other.Username); {
	case sim == 1:
		add(weightNameExact, "identical username")
	case sim > 0.8:
		add(weightNameHigh, "very similar username")
	case sim > 0.6:
		add(weightNameMedium, "similar username")
	}

	if join.InviterID != "" && join.InviterID == other.InviterID {
		add(weightSameInviter, "same inviter")
	}
	if join.AvatarID != "" && join.AvatarID == other.AvatarID {
		add(weightSameAvatar, "same avatar")
	}
	if otherIsOffender {
		add(weightKnownOffender, "matched user has case history")
	}

	if score > 1 {
		score = 1
	}
	return score, signals
}

func absSeconds(delta int64) time.Duration {
	if delta < 0 {
		delta = -delta
	}
	return time.Duration(delta) * time.Second
}

func sortByConfidence(candidates []model.AltLinkCandidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Confidence > candidates[j-1].Confidence; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}
