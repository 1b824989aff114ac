package mod

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"warden-bot/model"
	"warden-bot/mute"
	"warden-bot/utils/database/casestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnforcer struct {
	mu      sync.Mutex
	calls   []string
	failBan bool
}

func (r *recordingEnforcer) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return nil
}

func (r *recordingEnforcer) AssignMutedRole(guildID, userID string) error {
	return r.record("assign-muted-role")
}
func (r *recordingEnforcer) RemoveMutedRole(guildID, userID string) error {
	return r.record("remove-muted-role")
}
func (r *recordingEnforcer) SetTimeout(guildID, userID string, _ *time.Time) error {
	return r.record("set-timeout")
}
func (r *recordingEnforcer) Ban(guildID, userID, reason string) error {
	if r.failBan {
		return errors.New("missing permissions")
	}
	return r.record("ban")
}
func (r *recordingEnforcer) Unban(guildID, userID string) error { return r.record("unban") }
func (r *recordingEnforcer) Kick(guildID, userID, reason string) error {
	return r.record("kick")
}
func (r *recordingEnforcer) RevokeRole(guildID, userID, roleID string) error {
	return r.record("revoke-role")
}
func (r *recordingEnforcer) ClearPermissionOverwrite(channelID, targetID string) error {
	return r.record("clear-overwrite")
}
func (r *recordingEnforcer) Alert(guildID, message string) error    { return nil }
func (r *recordingEnforcer) Announce(guildID, message string) error { return nil }

func newTestService(t *testing.T) (*Service, *recordingEnforcer, *casestore.Store) {
	t.Helper()
	store, err := casestore.Init(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	enforcer := &recordingEnforcer{}
	svc := &Service{
		Store:    store,
		Machine:  mute.New(store, model.MuteConfig{}),
		Enforcer: enforcer,
	}
	return svc, enforcer, store
}

func TestBanRecordsCaseAndEnforces(t *testing.T) {
	svc, enforcer, store := newTestService(t)
	assert := assert.New(t)

	res, err := svc.Ban("g1", "mod-1", "u1", "raiding", "", 0)
	assert.NoError(err)
	assert.Nil(res.EnforcementErr)
	assert.Equal(model.ActionBan, res.Kind)
	assert.Contains(enforcer.calls, "ban")

	c, err := store.GetCase("g1", res.CaseID)
	assert.NoError(err)
	assert.Equal("mod-1", c.ActorID)
	assert.Zero(c.ExpiresAt)
}

func TestTempBanCarriesExpiry(t *testing.T) {
	svc, _, store := newTestService(t)
	assert := assert.New(t)

	res, err := svc.Ban("g1", "mod-1", "u1", "raiding", "", time.Hour)
	assert.NoError(err)
	assert.Equal(model.ActionTempBan, res.Kind)

	c, err := store.GetCase("g1", res.CaseID)
	assert.NoError(err)
	assert.Greater(c.ExpiresAt, time.Now().Unix())
}

func TestEnforcementFailureKeepsCaseWithNote(t *testing.T) {
	svc, enforcer, store := newTestService(t)
	assert := assert.New(t)
	enforcer.failBan = true

	res, err := svc.Ban("g1", "mod-1", "u1", "raiding", "", 0)
	assert.NoError(err)
	require.NotNil(t, res.EnforcementErr)

	var enfErr *model.EnforcementError
	assert.ErrorAs(res.EnforcementErr, &enfErr)

	notes, err := store.Notes("g1", res.CaseID)
	assert.NoError(err)
	require.Len(t, notes, 1)
	assert.Equal(model.SystemActorID, notes[0].AuthorID)
	assert.Contains(notes[0].Text, "enforcement failed")
}

func TestUnbanReversesAndLinks(t *testing.T) {
	svc, enforcer, store := newTestService(t)
	assert := assert.New(t)

	banned, err := svc.Ban("g1", "mod-1", "u1", "raiding", "", 0)
	assert.NoError(err)

	res, err := svc.Unban("g1", "mod-2", "u1", "appealed")
	assert.NoError(err)
	assert.Equal(model.ActionUnban, res.Kind)
	assert.Contains(enforcer.calls, "unban")

	original, err := store.GetCase("g1", banned.CaseID)
	assert.NoError(err)
	assert.Equal(model.CaseReversed, original.Status)

	links, err := store.Links("g1", banned.CaseID)
	assert.NoError(err)
	assert.Len(links, 1)
}

func TestUnbanWithoutActiveBan(t *testing.T) {
	svc, _, _ := newTestService(t)

	var validation *model.ValidationError
	_, err := svc.Unban("g1", "mod-1", "u1", "oops")
	assert.ErrorAs(t, err, &validation)
}

func TestUnmuteWithoutActiveMute(t *testing.T) {
	svc, _, _ := newTestService(t)

	var validation *model.ValidationError
	_, err := svc.Unmute("g1", "mod-1", "u1", "oops")
	assert.ErrorAs(t, err, &validation)
}

func TestUnmuteReversesMuteCase(t *testing.T) {
	svc, enforcer, store := newTestService(t)
	assert := assert.New(t)

	muted, err := svc.Mute("g1", "mod-1", "u1", "spamming", "spam spam", 0)
	assert.NoError(err)

	res, err := svc.Unmute("g1", "mod-2", "u1", "served enough")
	assert.NoError(err)
	assert.Equal(model.ActionUnmute, res.Kind)
	assert.Contains(enforcer.calls, "remove-muted-role")
	assert.Contains(enforcer.calls, "set-timeout")

	original, err := store.GetCase("g1", muted.CaseID)
	assert.NoError(err)
	assert.Equal(model.CaseReversed, original.Status)
}

func TestExpireCaseClaimsExactlyOnce(t *testing.T) {
	svc, enforcer, store := newTestService(t)
	assert := assert.New(t)

	id, err := store.CreateCase(model.CaseRecord{
		GuildID: "g1", SubjectID: "u1", ActorID: "mod-1",
		Kind: model.ActionTempBan, Reason: "raiding",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	})
	assert.NoError(err)
	c, err := store.GetCase("g1", id)
	assert.NoError(err)

	res, err := svc.ExpireCase(*c)
	assert.NoError(err)
	require.NotNil(t, res)
	assert.Equal(model.ActionUnban, res.Kind)

	// A second attempt sees the claim and does nothing.
	res, err = svc.ExpireCase(*c)
	assert.NoError(err)
	assert.Nil(res)
	assert.Equal([]string{"unban"}, enforcer.calls)
}

func TestSystemActionRecordsWarnKind(t *testing.T) {
	svc, enforcer, store := newTestService(t)
	assert := assert.New(t)

	res, err := svc.SystemAction("g1", "rogue", "mass deletion detected; elevated roles revoked", "", func() error {
		return enforcer.record("revoke-role")
	})
	assert.NoError(err)
	assert.Equal(model.ActionWarn, res.Kind)

	c, err := store.GetCase("g1", res.CaseID)
	assert.NoError(err)
	assert.Equal(model.SystemActorID, c.ActorID)
}
