package bot

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
	"warden-bot/guard"
	"warden-bot/mod"
	"warden-bot/model"
	"warden-bot/mute"
	"warden-bot/utils/database/casestore"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEnforcer struct {
	mu           sync.Mutex
	unbans       []string
	roleRemovals []string
}

func (c *countingEnforcer) AssignMutedRole(guildID, userID string) error { return nil }
func (c *countingEnforcer) RemoveMutedRole(guildID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roleRemovals = append(c.roleRemovals, userID)
	return nil
}
func (c *countingEnforcer) SetTimeout(guildID, userID string, _ *time.Time) error { return nil }
func (c *countingEnforcer) Ban(guildID, userID, reason string) error              { return nil }
func (c *countingEnforcer) Unban(guildID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbans = append(c.unbans, userID)
	return nil
}
func (c *countingEnforcer) Kick(guildID, userID, reason string) error       { return nil }
func (c *countingEnforcer) RevokeRole(guildID, userID, roleID string) error { return nil }
func (c *countingEnforcer) ClearPermissionOverwrite(channelID, targetID string) error {
	return nil
}
func (c *countingEnforcer) Alert(guildID, message string) error    { return nil }
func (c *countingEnforcer) Announce(guildID, message string) error { return nil }

func (c *countingEnforcer) unbanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unbans)
}

type fakeProvider struct {
	cfg      *model.Config
	store    *casestore.Store
	svc      *mod.Service
	detector *guard.Detector
	machine  *mute.Machine
}

func (f *fakeProvider) GetConfig() *model.Config       { return f.cfg }
func (f *fakeProvider) GetStore() *casestore.Store     { return f.store }
func (f *fakeProvider) GetService() *mod.Service       { return f.svc }
func (f *fakeProvider) GetDetector() *guard.Detector   { return f.detector }
func (f *fakeProvider) GetMachine() *mute.Machine      { return f.machine }
func (f *fakeProvider) GetSession() *discordgo.Session { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *countingEnforcer, *casestore.Store, *mute.Machine) {
	t.Helper()
	store, err := casestore.Init(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	enforcer := &countingEnforcer{}
	machine := mute.New(store, model.MuteConfig{})
	svc := &mod.Service{
		Store:    store,
		Machine:  machine,
		Enforcer: enforcer,
	}
	provider := &fakeProvider{
		cfg: &model.Config{
			Scheduler:     model.SchedulerConfig{TickInterval: time.Minute, DailyRunHour: 5, ShutdownGrace: time.Second},
			ServerConfigs: map[string]model.ServerConfig{},
		},
		store:    store,
		svc:      svc,
		detector: guard.New(model.GuardConfig{}, nil, svc),
		machine:  machine,
	}
	return NewScheduler(provider), enforcer, store, machine
}

func seedExpiredTempBans(t *testing.T, store *casestore.Store, count int) []int64 {
	t.Helper()
	var ids []int64
	for n := 0; n < count; n++ {
		id, err := store.CreateCase(model.CaseRecord{
			GuildID:   "g1",
			SubjectID: "banned-" + string(rune('a'+n)),
			ActorID:   "mod-1",
			Kind:      model.ActionTempBan,
			Reason:    "temporary ban",
			ExpiresAt: time.Now().Add(-time.Hour).Unix(),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestExpiryScanReversesEachCaseOnce(t *testing.T) {
	sched, enforcer, store, _ := newTestScheduler(t)
	assert := assert.New(t)

	ids := seedExpiredTempBans(t, store, 3)

	sched.RunExpiryScan()
	assert.Equal(3, enforcer.unbanCount())

	// A second scan finds nothing left to reverse.
	sched.RunExpiryScan()
	assert.Equal(3, enforcer.unbanCount())

	for _, id := range ids {
		c, err := store.GetCase("g1", id)
		assert.NoError(err)
		assert.Equal(model.CaseExpired, c.Status)

		links, err := store.Links("g1", id)
		assert.NoError(err)
		assert.Len(links, 1)
	}

	// One system unban case per original.
	unbans, err := store.QueryActive("g1", model.ActionUnban)
	assert.NoError(err)
	assert.Len(unbans, 3)
	for _, c := range unbans {
		assert.Equal(model.SystemActorID, c.ActorID)
	}
}

func TestConcurrentScansDoNotDoubleReverse(t *testing.T) {
	sched, enforcer, store, _ := newTestScheduler(t)

	seedExpiredTempBans(t, store, 3)

	var wg sync.WaitGroup
	for n := 0; n < 2; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.RunExpiryScan()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, enforcer.unbanCount())
}

func TestExpiredTempMuteReleasesUser(t *testing.T) {
	sched, enforcer, store, _ := newTestScheduler(t)
	assert := assert.New(t)

	_, err := store.CreateCase(model.CaseRecord{
		GuildID:   "g1",
		SubjectID: "muted-user",
		ActorID:   "mod-1",
		Kind:      model.ActionTempMute,
		Reason:    "cool off",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	})
	assert.NoError(err)

	sched.RunExpiryScan()

	assert.Equal([]string{"muted-user"}, enforcer.roleRemovals)
	assert.Equal(0, enforcer.unbanCount())
}

func TestStartRunsCatchUpScan(t *testing.T) {
	sched, enforcer, store, _ := newTestScheduler(t)

	seedExpiredTempBans(t, store, 2)

	sched.Start()
	assert.Eventually(t, func() bool { return enforcer.unbanCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	sched.Stop(time.Second)

	// A later scan against the same ledger replays nothing.
	sched.RunExpiryScan()
	assert.Equal(t, 2, enforcer.unbanCount())
}

func TestExpiryScanSweepsLapsedTimeouts(t *testing.T) {
	sched, _, store, machine := newTestScheduler(t)
	assert := assert.New(t)

	until := time.Now().Add(50 * time.Millisecond)
	assert.NoError(machine.HandleTimeoutChange(model.TimeoutChangeSignal{
		GuildID: "g1", UserID: "u1", Username: "timed-out",
		Until: &until, ReceivedAt: time.Now(),
	}))
	assert.True(machine.IsMuted("g1", "u1"))

	time.Sleep(120 * time.Millisecond)
	sched.RunExpiryScan()

	assert.False(machine.IsMuted("g1", "u1"))
	sessions, err := store.ActiveSessions()
	assert.NoError(err)
	assert.Empty(sessions)
}
