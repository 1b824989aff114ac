package guard

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
	"warden-bot/mod"
	"warden-bot/model"
	"warden-bot/mute"
	"warden-bot/utils/database/casestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnforcer records platform actions instead of applying them.
type fakeEnforcer struct {
	mu                sync.Mutex
	mutedRoleAdds     []string
	revokedRoles      []string
	clearedOverwrites []string
	alerts            []string
	announcements     []string
}

func (f *fakeEnforcer) AssignMutedRole(guildID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutedRoleAdds = append(f.mutedRoleAdds, userID)
	return nil
}
func (f *fakeEnforcer) RemoveMutedRole(guildID, userID string) error            { return nil }
func (f *fakeEnforcer) SetTimeout(guildID, userID string, _ *time.Time) error   { return nil }
func (f *fakeEnforcer) Ban(guildID, userID, reason string) error                { return nil }
func (f *fakeEnforcer) Unban(guildID, userID string) error                      { return nil }
func (f *fakeEnforcer) Kick(guildID, userID, reason string) error               { return nil }
func (f *fakeEnforcer) RevokeRole(guildID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedRoles = append(f.revokedRoles, roleID)
	return nil
}
func (f *fakeEnforcer) ClearPermissionOverwrite(channelID, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedOverwrites = append(f.clearedOverwrites, channelID)
	return nil
}
func (f *fakeEnforcer) Alert(guildID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, message)
	return nil
}
func (f *fakeEnforcer) Announce(guildID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announcements = append(f.announcements, message)
	return nil
}

func (f *fakeEnforcer) muteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mutedRoleAdds)
}

func testGuardConfig() model.GuardConfig {
	return model.GuardConfig{
		MessageBurst:     model.SignalRule{Weight: 1, Window: 10 * time.Second, Threshold: 8},
		MassDeletion:     model.SignalRule{Weight: 10, Window: 60 * time.Second, Threshold: 30},
		PermEscalation:   model.SignalRule{Weight: 25, Window: 300 * time.Second, Threshold: 25},
		AutoMuteDuration: 10 * time.Minute,
	}
}

func newTestDetector(t *testing.T) (*Detector, *fakeEnforcer, *casestore.Store, *time.Time) {
	t.Helper()
	store, err := casestore.Init(filepath.Join(t.TempDir(), "guard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	enforcer := &fakeEnforcer{}
	svc := &mod.Service{
		Store:    store,
		Machine:  mute.New(store, model.MuteConfig{}),
		Enforcer: enforcer,
	}
	servers := map[string]model.ServerConfig{
		"g1": {GuildID: "g1", AlertChannelID: "alerts", ElevatedRoleIDs: []string{"elev-1", "elev-2"}},
	}

	d := New(testGuardConfig(), servers, svc)
	clock := time.Now()
	d.now = func() time.Time { return clock }
	return d, enforcer, store, &clock
}

func messageSignal(userID string) model.MessageSignal {
	return model.MessageSignal{
		GuildID:    "g1",
		UserID:     userID,
		ChannelID:  "c1",
		Content:    "spam",
		ReceivedAt: time.Now(),
	}
}

func TestMessageBurstFiresOnceAtThreshold(t *testing.T) {
	d, enforcer, store, clock := newTestDetector(t)
	assert := assert.New(t)

	for n := 0; n < 7; n++ {
		assert.NoError(d.ObserveMessage(messageSignal("u1")))
		*clock = clock.Add(time.Second)
		assert.Equal(0, enforcer.muteCount())
	}

	// Eighth message reaches the threshold.
	assert.NoError(d.ObserveMessage(messageSignal("u1")))
	assert.Equal(1, enforcer.muteCount())

	// The breach hard-reset the window, so the next message counts from
	// zero instead of re-firing.
	*clock = clock.Add(time.Second)
	assert.NoError(d.ObserveMessage(messageSignal("u1")))
	assert.Equal(1, enforcer.muteCount())

	cases, err := store.QueryActive("g1", model.ActionTempMute)
	assert.NoError(err)
	require.Len(t, cases, 1)
	assert.Equal(model.SystemActorID, cases[0].ActorID)
	assert.Equal("u1", cases[0].SubjectID)
	assert.NotZero(cases[0].ExpiresAt)
}

func TestMessageBurstWindowsAreIndependentPerUser(t *testing.T) {
	d, enforcer, _, clock := newTestDetector(t)
	assert := assert.New(t)

	for n := 0; n < 7; n++ {
		assert.NoError(d.ObserveMessage(messageSignal("u1")))
		assert.NoError(d.ObserveMessage(messageSignal("u2")))
		*clock = clock.Add(time.Second)
	}
	assert.Equal(0, enforcer.muteCount())

	assert.NoError(d.ObserveMessage(messageSignal("u1")))
	assert.Equal(1, enforcer.muteCount())
}

func TestMessageBurstExpiresWithWindow(t *testing.T) {
	d, enforcer, _, clock := newTestDetector(t)
	assert := assert.New(t)

	for n := 0; n < 7; n++ {
		assert.NoError(d.ObserveMessage(messageSignal("u1")))
	}
	// Window elapses; the accumulated count is discarded.
	*clock = clock.Add(11 * time.Second)
	for n := 0; n < 7; n++ {
		assert.NoError(d.ObserveMessage(messageSignal("u1")))
	}
	assert.Equal(0, enforcer.muteCount())
}

func TestMassDeletionFiresOnThirdEvent(t *testing.T) {
	d, enforcer, store, clock := newTestDetector(t)
	assert := assert.New(t)

	sig := model.DeletionSignal{GuildID: "g1", ActorID: "rogue", TargetName: "general", ReceivedAt: time.Now()}

	assert.NoError(d.ObserveDeletion(sig))
	*clock = clock.Add(time.Second)
	assert.NoError(d.ObserveDeletion(sig))
	*clock = clock.Add(time.Second)
	assert.Empty(enforcer.revokedRoles)

	// Third deletion: 3 * weight 10 reaches threshold 30.
	assert.NoError(d.ObserveDeletion(sig))
	assert.Equal([]string{"elev-1", "elev-2"}, enforcer.revokedRoles)
	assert.Len(enforcer.alerts, 1)

	cases, err := store.QueryHistory("g1", "rogue")
	assert.NoError(err)
	require.Len(t, cases, 1)
	assert.Equal(model.ActionWarn, cases[0].Kind)
	assert.Equal(model.SystemActorID, cases[0].ActorID)
}

func TestPermissionEscalationRevertsImmediately(t *testing.T) {
	d, enforcer, _, _ := newTestDetector(t)
	assert := assert.New(t)

	benign := model.PermissionSignal{GuildID: "g1", ActorID: "rogue", TargetID: "chan-1", Escalation: false, ReceivedAt: time.Now()}
	assert.NoError(d.ObservePermission(benign))
	assert.Empty(enforcer.clearedOverwrites)

	hostile := benign
	hostile.Escalation = true
	assert.NoError(d.ObservePermission(hostile))
	assert.Equal([]string{"chan-1"}, enforcer.clearedOverwrites)
}

func TestPruneIdleDropsStaleWindows(t *testing.T) {
	d, _, _, clock := newTestDetector(t)
	assert := assert.New(t)

	assert.NoError(d.ObserveMessage(messageSignal("u1")))
	assert.NoError(d.ObserveMessage(messageSignal("u2")))
	assert.Equal(2, d.WindowCount())

	*clock = clock.Add(2 * time.Hour)
	assert.NoError(d.ObserveMessage(messageSignal("u2")))

	removed := d.PruneIdle(time.Hour)
	assert.Equal(1, removed)
	assert.Equal(1, d.WindowCount())
}

func TestInvalidSignalRejected(t *testing.T) {
	d, _, _, _ := newTestDetector(t)

	var validation *model.ValidationError
	err := d.ObserveMessage(model.MessageSignal{GuildID: "g1"})
	assert.ErrorAs(t, err, &validation)
}
