package alt

import (
	"path/filepath"
	"testing"
	"time"
	"warden-bot/model"
	"warden-bot/utils/database/casestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCorrelator(t *testing.T) (*Correlator, *casestore.Store) {
	t.Helper()
	store, err := casestore.Init(filepath.Join(t.TempDir(), "alt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c, err := New(store, model.AltConfig{
		ConfidenceFloor:   0.5,
		RecentJoinLimit:   64,
		JoinHistoryWindow: 24 * time.Hour,
	})
	require.NoError(t, err)
	return c, store
}

func join(userID, username string, createdAt, joinedAt time.Time) model.JoinRecord {
	return model.JoinRecord{
		GuildID:   "g1",
		UserID:    userID,
		Username:  username,
		CreatedAt: createdAt.Unix(),
		JoinedAt:  joinedAt.Unix(),
	}
}

func TestUnrelatedJoinsStayBelowFloor(t *testing.T) {
	c, _ := newTestCorrelator(t)
	assert := assert.New(t)

	now := time.Now()
	first := join("u1", "alice", now.Add(-3*365*24*time.Hour), now.Add(-20*time.Hour))
	second := join("u2", "zxqv", now.Add(-2*365*24*time.Hour), now)

	candidates, err := c.OnJoin(first)
	assert.NoError(err)
	assert.Empty(candidates)

	candidates, err = c.OnJoin(second)
	assert.NoError(err)
	assert.Empty(candidates)
	assert.Empty(c.Surfaced("g1"))
}

func TestMatchingFingerprintsSurfaceCandidate(t *testing.T) {
	c, _ := newTestCorrelator(t)
	assert := assert.New(t)

	now := time.Now()
	// Both accounts freshly created, joined minutes apart, same name.
	first := join("u1", "sneaky_user", now.Add(-30*time.Minute), now.Add(-10*time.Minute))
	second := join("u2", "sneaky_user", now.Add(-25*time.Minute), now)

	_, err := c.OnJoin(first)
	assert.NoError(err)

	candidates, err := c.OnJoin(second)
	assert.NoError(err)
	require.Len(t, candidates, 1)

	cand := candidates[0]
	assert.Equal("u1", cand.PrimaryID)
	assert.Equal("u2", cand.CandidateID)
	assert.GreaterOrEqual(cand.Confidence, 0.5)
	assert.LessOrEqual(cand.Confidence, 1.0)
	assert.Contains(cand.Signals, "identical username")
	assert.Contains(cand.Signals, "account under 7 days old")
	assert.Contains(cand.Signals, "joined within 1 hour")

	surfaced := c.Surfaced("g1")
	require.Len(t, surfaced, 1)
	assert.Equal(cand.CandidateID, surfaced[0].CandidateID)
}

func TestCaseHistoryAddsOffenderSignal(t *testing.T) {
	c, store := newTestCorrelator(t)
	assert := assert.New(t)

	_, err := store.CreateCase(model.CaseRecord{
		GuildID: "g1", SubjectID: "u1", ActorID: "mod-1",
		Kind: model.ActionBan, Reason: "ban evasion",
	})
	assert.NoError(err)

	now := time.Now()
	first := join("u1", "sneaky_user", now.Add(-30*time.Minute), now.Add(-10*time.Minute))
	second := join("u2", "sneaky_user", now.Add(-25*time.Minute), now)

	_, err = c.OnJoin(first)
	assert.NoError(err)
	candidates, err := c.OnJoin(second)
	assert.NoError(err)
	require.Len(t, candidates, 1)
	assert.Contains(candidates[0].Signals, "matched user has case history")
}

func TestJoinsOutsideHistoryWindowIgnored(t *testing.T) {
	c, _ := newTestCorrelator(t)
	assert := assert.New(t)

	now := time.Now()
	c.now = func() time.Time { return now }

	stale := join("u1", "sneaky_user", now.Add(-30*time.Minute), now.Add(-48*time.Hour))
	fresh := join("u2", "sneaky_user", now.Add(-25*time.Minute), now)

	_, err := c.OnJoin(stale)
	assert.NoError(err)
	candidates, err := c.OnJoin(fresh)
	assert.NoError(err)
	assert.Empty(candidates)
}

func TestConfidenceIsCappedAtOne(t *testing.T) {
	now := time.Now()
	a := model.JoinRecord{
		GuildID: "g1", UserID: "u1", Username: "clone",
		CreatedAt: now.Add(-10 * time.Minute).Unix(), JoinedAt: now.Unix(),
		InviterID: "inv-1", AvatarID: "av-1",
	}
	b := a
	b.UserID = "u2"

	confidence, signals := scorePair(b, a, true)
	assert.Equal(t, 1.0, confidence)
	assert.NotEmpty(t, signals)
}

func TestNameSimilarity(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(1.0, nameSimilarity("Sneaky", "sneaky"))
	assert.Equal(0.0, nameSimilarity("", "anything"))
	assert.Greater(nameSimilarity("sneaky_user", "sneaky_user2"), 0.8)
	assert.Less(nameSimilarity("alice", "zxqvbn"), 0.4)
}
