package casestore

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"warden-bot/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Init(filepath.Join(t.TempDir(), "cases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newCase(guildID, subjectID string, kind model.ActionKind) model.CaseRecord {
	return model.CaseRecord{
		GuildID:   guildID,
		SubjectID: subjectID,
		ActorID:   "mod-1",
		Kind:      kind,
		Reason:    "test reason",
	}
}

func TestCreateCaseSequencePerGuild(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	id1, err := store.CreateCase(newCase("g1", "u1", model.ActionWarn))
	assert.NoError(err)
	id2, err := store.CreateCase(newCase("g1", "u2", model.ActionBan))
	assert.NoError(err)
	otherGuild, err := store.CreateCase(newCase("g2", "u1", model.ActionWarn))
	assert.NoError(err)

	assert.Equal(int64(1), id1)
	assert.Equal(int64(2), id2)
	assert.Equal(int64(1), otherGuild)
}

func TestCreateCaseValidation(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	var validation *model.ValidationError

	_, err := store.CreateCase(newCase("", "u1", model.ActionWarn))
	assert.ErrorAs(err, &validation)

	_, err = store.CreateCase(newCase("g1", "", model.ActionWarn))
	assert.ErrorAs(err, &validation)

	_, err = store.CreateCase(newCase("g1", "u1", "frobnicate"))
	assert.ErrorAs(err, &validation)

	long := newCase("g1", "u1", model.ActionWarn)
	long.Reason = strings.Repeat("a", MaxReasonLength+1)
	_, err = store.CreateCase(long)
	assert.ErrorAs(err, &validation)
}

func TestCreateCaseTruncatesTriggerContent(t *testing.T) {
	store := newTestStore(t)

	c := newCase("g1", "u1", model.ActionWarn)
	c.TriggerContent = strings.Repeat("x", MaxTriggerContentLength+100)
	id, err := store.CreateCase(c)
	require.NoError(t, err)

	got, err := store.GetCase("g1", id)
	require.NoError(t, err)
	assert.Len(t, got.TriggerContent, MaxTriggerContentLength)
}

func TestCreateCaseDefaultsSystemActor(t *testing.T) {
	store := newTestStore(t)

	c := newCase("g1", "u1", model.ActionWarn)
	c.ActorID = ""
	id, err := store.CreateCase(c)
	require.NoError(t, err)

	got, err := store.GetCase("g1", id)
	require.NoError(t, err)
	assert.Equal(t, model.SystemActorID, got.ActorID)
	assert.Equal(t, model.CaseActive, got.Status)
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	id, err := store.CreateCase(newCase("g1", "u1", model.ActionTempBan))
	assert.NoError(err)

	assert.NoError(store.UpdateStatus("g1", id, model.CaseExpired))

	var transition *model.InvalidTransitionError
	err = store.UpdateStatus("g1", id, model.CaseReversed)
	assert.ErrorAs(err, &transition)
	assert.Equal(model.CaseExpired, transition.From)

	err = store.UpdateStatus("g1", id, model.CaseActive)
	assert.ErrorAs(err, &transition)

	got, err := store.GetCase("g1", id)
	assert.NoError(err)
	assert.Equal(model.CaseExpired, got.Status)

	var notFound *model.NotFoundError
	err = store.UpdateStatus("g1", 999, model.CaseExpired)
	assert.ErrorAs(err, &notFound)
}

func TestLinkCasesIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	a, _ := store.CreateCase(newCase("g1", "u1", model.ActionMute))
	b, _ := store.CreateCase(newCase("g1", "u1", model.ActionUnmute))

	assert.NoError(store.LinkCases("g1", a, b))
	assert.NoError(store.LinkCases("g1", a, b))
	assert.NoError(store.LinkCases("g1", b, a))

	links, err := store.Links("g1", a)
	assert.NoError(err)
	assert.Len(links, 1)
	assert.Less(links[0].CaseA, links[0].CaseB)

	var validation *model.ValidationError
	assert.ErrorAs(store.LinkCases("g1", a, a), &validation)

	var notFound *model.NotFoundError
	assert.ErrorAs(store.LinkCases("g1", a, 999), &notFound)
}

func TestNotesAppendInOrder(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	id, _ := store.CreateCase(newCase("g1", "u1", model.ActionWarn))
	assert.NoError(store.AddNote("g1", id, "mod-1", "first"))
	assert.NoError(store.AddNote("g1", id, "mod-2", "second"))

	notes, err := store.Notes("g1", id)
	assert.NoError(err)
	assert.Len(notes, 2)
	assert.Equal("first", notes[0].Text)
	assert.Equal("second", notes[1].Text)

	var validation *model.ValidationError
	assert.ErrorAs(store.AddNote("g1", id, "mod-1", ""), &validation)

	var notFound *model.NotFoundError
	assert.ErrorAs(store.AddNote("g1", 999, "mod-1", "text"), &notFound)
}

func TestQueryHistoryNewestFirst(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	base := time.Now().UTC().Unix()
	for offset, kind := range []model.ActionKind{model.ActionWarn, model.ActionMute, model.ActionBan} {
		c := newCase("g1", "u1", kind)
		c.CreatedAt = base + int64(offset)*60
		_, err := store.CreateCase(c)
		assert.NoError(err)
	}
	_, err := store.CreateCase(newCase("g1", "someone-else", model.ActionWarn))
	assert.NoError(err)

	records, err := store.QueryHistory("g1", "u1")
	assert.NoError(err)
	assert.Len(records, 3)
	assert.Equal(model.ActionBan, records[0].Kind)
	assert.Equal(model.ActionWarn, records[2].Kind)
}

func TestExpiredCasesSelection(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)
	now := time.Now()

	overdue := newCase("g1", "u1", model.ActionTempBan)
	overdue.ExpiresAt = now.Add(-time.Hour).Unix()
	overdueID, _ := store.CreateCase(overdue)

	pending := newCase("g1", "u2", model.ActionTempMute)
	pending.ExpiresAt = now.Add(time.Hour).Unix()
	store.CreateCase(pending)

	permanent := newCase("g1", "u3", model.ActionBan)
	store.CreateCase(permanent)

	expired, err := store.ExpiredCases(now)
	assert.NoError(err)
	assert.Len(expired, 1)
	assert.Equal(overdueID, expired[0].CaseID)

	// Claimed cases drop out of the scan.
	assert.NoError(store.UpdateStatus("g1", overdueID, model.CaseExpired))
	expired, err = store.ExpiredCases(now)
	assert.NoError(err)
	assert.Empty(expired)
}

func TestActorStatsExcludesSystem(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	store.CreateCase(newCase("g1", "u1", model.ActionWarn))
	store.CreateCase(newCase("g1", "u2", model.ActionWarn))

	system := newCase("g1", "u3", model.ActionWarn)
	system.ActorID = model.SystemActorID
	store.CreateCase(system)

	since := time.Now().Add(-time.Hour)
	stats, err := store.ActorStats("g1", since)
	assert.NoError(err)
	assert.Equal(map[string]int{"mod-1": 2}, stats)

	total, err := store.TotalCaseCount("g1", since)
	assert.NoError(err)
	assert.Equal(3, total)
}

func TestProblemUsers(t *testing.T) {
	store := newTestStore(t)
	assert := assert.New(t)

	store.CreateCase(newCase("g1", "u1", model.ActionWarn))
	store.CreateCase(newCase("g1", "u1", model.ActionMute))
	store.CreateCase(newCase("g1", "u2", model.ActionBan))

	users, err := store.ProblemUsers("g1", time.Now().Add(-time.Hour))
	assert.NoError(err)
	assert.ElementsMatch([]string{"u1", "u2"}, users)
}

func TestGetCaseNotFound(t *testing.T) {
	store := newTestStore(t)

	var notFound *model.NotFoundError
	_, err := store.GetCase("g1", 42)
	assert.True(t, errors.As(err, &notFound))
	assert.Equal(t, int64(42), notFound.ID)
}
