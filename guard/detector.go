package guard

import (
	"fmt"
	"log"
	"sync"
	"time"
	"warden-bot/mod"
	"warden-bot/model"
)

// Detector watches incoming event streams for abusive bursts: message
// spam, mass channel/role deletion, permission escalation. Each
// (guild, signal, subject) gets an independent sliding window; no
// cross-subject synchronization is needed. Every action the detector
// fires is written to the case store, so the audit trail covers
// autonomous responses the same as moderator ones.
type Detector struct {
	cfg     model.GuardConfig
	servers map[string]model.ServerConfig
	svc     *mod.Service

	mu      sync.Mutex
	windows map[subjectKey]*threatWindow

	now func() time.Time
}

// New creates a detector with the given tunables.
func New(cfg model.GuardConfig, servers map[string]model.ServerConfig, svc *mod.Service) *Detector {
	return &Detector{
		cfg:     cfg,
		servers: servers,
		svc:     svc,
		windows: make(map[subjectKey]*threatWindow),
		now:     time.Now,
	}
}

func (d *Detector) window(key subjectKey) *threatWindow {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.windows[key]
	if !ok {
		w = newThreatWindow()
		d.windows[key] = w
	}
	return w
}

// ObserveMessage feeds one message-create event into the per-user burst
// window. A breach temp-mutes the author with a system-actor case.
func (d *Detector) ObserveMessage(sig model.MessageSignal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	key := subjectKey{GuildID: sig.GuildID, Signal: model.SignalMessage, Subject: sig.UserID}
	fired, epoch := d.window(key).observe(d.now(), d.cfg.MessageBurst)
	if !fired {
		return nil
	}

	log.Printf("guard: message burst breach for user %s in guild %s (epoch %d)", sig.UserID, sig.GuildID, epoch)
	reason := fmt.Sprintf("message burst: %d points within %s", d.cfg.MessageBurst.Threshold, d.cfg.MessageBurst.Window)
	res, err := d.svc.Mute(sig.GuildID, model.SystemActorID, sig.UserID, reason, sig.Content, d.cfg.AutoMuteDuration)
	if err != nil {
		return err
	}
	d.alert(sig.GuildID, fmt.Sprintf("⚠️ Auto-muted <@%s> for message flooding (case #%d).", sig.UserID, res.CaseID))
	return nil
}

// ObserveDeletion feeds one channel/role deletion into the per-actor
// window. A breach revokes the actor's elevated roles and alerts staff.
func (d *Detector) ObserveDeletion(sig model.DeletionSignal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	key := subjectKey{GuildID: sig.GuildID, Signal: model.SignalMassDeletion, Subject: sig.ActorID}
	fired, epoch := d.window(key).observe(d.now(), d.cfg.MassDeletion)
	if !fired {
		return nil
	}

	log.Printf("guard: mass deletion breach for actor %s in guild %s (epoch %d)", sig.ActorID, sig.GuildID, epoch)
	reason := "mass deletion detected; elevated roles revoked"
	_, err := d.svc.SystemAction(sig.GuildID, sig.ActorID, reason, sig.TargetName, func() error {
		return d.revokeElevatedRoles(sig.GuildID, sig.ActorID)
	})
	if err != nil {
		return err
	}
	d.alert(sig.GuildID, fmt.Sprintf("🚨 Possible nuke attempt by <@%s>: elevated roles revoked.", sig.ActorID))
	return nil
}

// ObservePermission feeds one permission change into the per-actor
// window. Only escalations count; a breach reverts the change and
// alerts staff.
func (d *Detector) ObservePermission(sig model.PermissionSignal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if !sig.Escalation {
		return nil
	}
	key := subjectKey{GuildID: sig.GuildID, Signal: model.SignalPermEscalate, Subject: sig.ActorID}
	fired, epoch := d.window(key).observe(d.now(), d.cfg.PermEscalation)
	if !fired {
		return nil
	}

	log.Printf("guard: permission escalation breach for actor %s in guild %s (epoch %d)", sig.ActorID, sig.GuildID, epoch)
	reason := "permission escalation reverted"
	_, err := d.svc.SystemAction(sig.GuildID, sig.ActorID, reason, sig.Diff, func() error {
		return d.svc.Enforcer.ClearPermissionOverwrite(sig.TargetID, sig.ActorID)
	})
	if err != nil {
		return err
	}
	d.alert(sig.GuildID, fmt.Sprintf("🚨 Permission escalation by <@%s> reverted.", sig.ActorID))
	return nil
}

// PruneIdle drops windows that saw no traffic since the cutoff. Called
// by the scheduler's periodic maintenance.
func (d *Detector) PruneIdle(maxIdle time.Duration) int {
	cutoff := d.now().Add(-maxIdle)
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for key, w := range d.windows {
		if w.idleSince(cutoff) {
			w.close()
			delete(d.windows, key)
			removed++
		}
	}
	return removed
}

// WindowCount returns the number of live windows, for the status command.
func (d *Detector) WindowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}

func (d *Detector) revokeElevatedRoles(guildID, userID string) error {
	cfg, ok := d.servers[guildID]
	if !ok {
		return fmt.Errorf("no server config for guild %s", guildID)
	}
	var firstErr error
	for _, roleID := range cfg.ElevatedRoleIDs {
		if err := d.svc.Enforcer.RevokeRole(guildID, userID, roleID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Detector) alert(guildID, message string) {
	if err := d.svc.Enforcer.Alert(guildID, message); err != nil {
		log.Printf("guard: alert failed for guild %s: %v", guildID, err)
	}
}
