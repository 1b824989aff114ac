package mod

import (
	"errors"
	"fmt"
	"log"
	"time"
	"warden-bot/model"
	"warden-bot/mute"
	"warden-bot/utils"
	"warden-bot/utils/database/casestore"
)

// Result is the structured outcome of a moderation operation. The
// process is a long-running service, so failures are reported through
// these objects and typed errors rather than exit codes.
type Result struct {
	CaseID  int64
	Kind    model.ActionKind
	Message string
	// EnforcementErr is set when the case was recorded but the platform
	// action could not be applied. The case note carries the detail.
	EnforcementErr error
}

// Service is the single path for moderation actions. Moderator
// commands, the threat detector and the expiry scheduler all create
// cases and apply platform actions through it, so the audit trail never
// depends on who initiated an action.
type Service struct {
	Store      *casestore.Store
	Machine    *mute.Machine
	Enforcer   Enforcer
	WebhookURL string
}

// Ban records a ban case and enforces it. A positive duration makes it
// a tempban with an expiry the scheduler will reverse.
func (s *Service) Ban(guildID, actorID, subjectID, reason, triggerContent string, duration time.Duration) (*Result, error) {
	kind := model.ActionBan
	var expiresAt int64
	if duration > 0 {
		kind = model.ActionTempBan
		expiresAt = time.Now().UTC().Add(duration).Unix()
	}
	return s.punitive(guildID, actorID, subjectID, reason, triggerContent, kind, expiresAt, func() error {
		return s.Enforcer.Ban(guildID, subjectID, reason)
	})
}

// Mute records a mute case and assigns the muted role. The state
// machine observes the resulting role signal and opens the session,
// correlating it back to this case.
func (s *Service) Mute(guildID, actorID, subjectID, reason, triggerContent string, duration time.Duration) (*Result, error) {
	kind := model.ActionMute
	var expiresAt int64
	if duration > 0 {
		kind = model.ActionTempMute
		expiresAt = time.Now().UTC().Add(duration).Unix()
	}
	res, err := s.punitive(guildID, actorID, subjectID, reason, triggerContent, kind, expiresAt, func() error {
		return s.Enforcer.AssignMutedRole(guildID, subjectID)
	})
	if err == nil && res.EnforcementErr == nil {
		s.announce(guildID, fmt.Sprintf("<@%s> has been muted. Reason: %s", subjectID, reason))
	}
	return res, err
}

// Warn records a warn case. Warns have no platform enforcement.
func (s *Service) Warn(guildID, actorID, subjectID, reason, triggerContent string) (*Result, error) {
	return s.punitive(guildID, actorID, subjectID, reason, triggerContent, model.ActionWarn, 0, nil)
}

// Kick records a kick case and removes the member.
func (s *Service) Kick(guildID, actorID, subjectID, reason, triggerContent string) (*Result, error) {
	return s.punitive(guildID, actorID, subjectID, reason, triggerContent, model.ActionKick, 0, func() error {
		return s.Enforcer.Kick(guildID, subjectID, reason)
	})
}

// Unban reverses an active ban: the ban case is marked reversed, an
// unban case is recorded and linked, and the platform ban is lifted.
func (s *Service) Unban(guildID, actorID, subjectID, reason string) (*Result, error) {
	original, err := s.findActive(guildID, subjectID, model.ActionBan, model.ActionTempBan)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, &model.ValidationError{Field: "unban", Reason: "user has no active ban"}
	}
	return s.reverse(original, actorID, reason, model.CaseReversed, func() error {
		return s.Enforcer.Unban(guildID, subjectID)
	})
}

// Unmute reverses an active mute: the mute case is marked reversed, an
// unmute case is recorded and linked, the muted role and timeout are
// cleared, and the state machine closes the session.
func (s *Service) Unmute(guildID, actorID, subjectID, reason string) (*Result, error) {
	original, err := s.findActive(guildID, subjectID, model.ActionMute, model.ActionTempMute)
	if err != nil {
		return nil, err
	}
	if original == nil && !s.Machine.IsMuted(guildID, subjectID) {
		return nil, &model.ValidationError{Field: "unmute", Reason: "user is already unmuted"}
	}

	enforce := func() error {
		if err := s.Enforcer.RemoveMutedRole(guildID, subjectID); err != nil {
			return err
		}
		return s.Enforcer.SetTimeout(guildID, subjectID, nil)
	}

	var res *Result
	if original != nil {
		res, err = s.reverse(original, actorID, reason, model.CaseReversed, enforce)
	} else {
		// Mute observed from a raw role signal with no case on file;
		// still record the unmute so the trail stays complete.
		res, err = s.punitive(guildID, actorID, subjectID, reason, "", model.ActionUnmute, 0, enforce)
	}
	if err != nil {
		return nil, err
	}

	if mErr := s.Machine.ForceRelease(guildID, subjectID, actorID); mErr != nil {
		log.Printf("mod: force release failed for %s in %s: %v", subjectID, guildID, mErr)
	}
	s.announce(guildID, fmt.Sprintf("<@%s> has been released.", subjectID))
	return res, nil
}

// ExpireCase reverses one expired temporary case on behalf of the
// scheduler. The status flip claims the case first, so two concurrent
// scans cannot double-send the reversal action.
func (s *Service) ExpireCase(c model.CaseRecord) (*Result, error) {
	if err := s.Store.UpdateStatus(c.GuildID, c.CaseID, model.CaseExpired); err != nil {
		var transition *model.InvalidTransitionError
		if errors.As(err, &transition) {
			// Already claimed by a concurrent or earlier scan.
			return nil, nil
		}
		return nil, err
	}

	reason := "temporary action expired"
	reversal := model.CaseRecord{
		GuildID:   c.GuildID,
		SubjectID: c.SubjectID,
		ActorID:   model.SystemActorID,
		Kind:      c.Kind.ReversalKind(),
		Reason:    reason,
	}
	reversalID, err := s.Store.CreateCase(reversal)
	if err != nil {
		return nil, err
	}
	if err := s.Store.LinkCases(c.GuildID, c.CaseID, reversalID); err != nil {
		log.Printf("mod: failed to link reversal case %d to %d: %v", reversalID, c.CaseID, err)
	}

	res := &Result{CaseID: reversalID, Kind: reversal.Kind, Message: reason}

	var enfErr error
	switch c.Kind {
	case model.ActionTempBan:
		enfErr = s.Enforcer.Unban(c.GuildID, c.SubjectID)
	case model.ActionTempMute:
		if enfErr = s.Enforcer.RemoveMutedRole(c.GuildID, c.SubjectID); enfErr == nil {
			enfErr = s.Enforcer.SetTimeout(c.GuildID, c.SubjectID, nil)
		}
		if mErr := s.Machine.ForceRelease(c.GuildID, c.SubjectID, model.SystemActorID); mErr != nil {
			log.Printf("mod: force release failed for %s in %s: %v", c.SubjectID, c.GuildID, mErr)
		}
		s.announce(c.GuildID, fmt.Sprintf("<@%s> has served their sentence and has been released.", c.SubjectID))
	}
	if enfErr != nil {
		res.EnforcementErr = s.recordEnforcementFailure(c.GuildID, reversalID, enfErr)
	}
	return res, nil
}

// SystemAction records a case for a protective action taken by the
// threat detector and runs its enforcement. Kinds outside the privative
// set (role revokes, permission reverts) are recorded as warns; the
// reason text carries what was actually done.
func (s *Service) SystemAction(guildID, subjectID, reason, triggerContent string, enforce func() error) (*Result, error) {
	return s.punitive(guildID, model.SystemActorID, subjectID, reason, triggerContent, model.ActionWarn, 0, enforce)
}

// AddNote appends a staff note to a case.
func (s *Service) AddNote(guildID string, caseID int64, authorID, text string) error {
	return s.Store.AddNote(guildID, caseID, authorID, text)
}

// LinkCases links two cases. Idempotent per unordered pair.
func (s *Service) LinkCases(guildID string, a, b int64) error {
	return s.Store.LinkCases(guildID, a, b)
}

// punitive is the shared create-case-then-enforce path. Enforcement
// failures never lose the case: the failure is recorded as a note and
// surfaced on the result.
func (s *Service) punitive(guildID, actorID, subjectID, reason, triggerContent string, kind model.ActionKind, expiresAt int64, enforce func() error) (*Result, error) {
	caseID, err := s.Store.CreateCase(model.CaseRecord{
		GuildID:        guildID,
		SubjectID:      subjectID,
		ActorID:        actorID,
		Kind:           kind,
		Reason:         reason,
		TriggerContent: triggerContent,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{CaseID: caseID, Kind: kind, Message: fmt.Sprintf("case #%d recorded", caseID)}
	if enforce != nil {
		if enfErr := enforce(); enfErr != nil {
			res.EnforcementErr = s.recordEnforcementFailure(guildID, caseID, enfErr)
		}
	}

	utils.LogInfo(s.WebhookURL, "moderation", string(kind),
		fmt.Sprintf("case #%d guild=%s subject=%s actor=%s", caseID, guildID, subjectID, actorID))
	return res, nil
}

// reverse marks the original case with the given terminal status,
// records the reversal case, links the pair, and enforces.
func (s *Service) reverse(original *model.CaseRecord, actorID, reason string, status model.CaseStatus, enforce func() error) (*Result, error) {
	if err := s.Store.UpdateStatus(original.GuildID, original.CaseID, status); err != nil {
		return nil, err
	}
	res, err := s.punitive(original.GuildID, actorID, original.SubjectID, reason, "", original.Kind.ReversalKind(), 0, enforce)
	if err != nil {
		return nil, err
	}
	if err := s.Store.LinkCases(original.GuildID, original.CaseID, res.CaseID); err != nil {
		log.Printf("mod: failed to link case %d to %d: %v", res.CaseID, original.CaseID, err)
	}
	return res, nil
}

// findActive returns the most recent active case of the given kinds.
func (s *Service) findActive(guildID, subjectID string, kinds ...model.ActionKind) (*model.CaseRecord, error) {
	var newest *model.CaseRecord
	for _, kind := range kinds {
		records, err := s.Store.QueryActive(guildID, kind)
		if err != nil {
			return nil, err
		}
		for i := range records {
			c := records[i]
			if c.SubjectID != subjectID {
				continue
			}
			if newest == nil || c.CreatedAt > newest.CreatedAt {
				newest = &c
			}
		}
	}
	return newest, nil
}

// recordEnforcementFailure notes the failure on the case so the audit
// trail is never silently incomplete, and returns the typed error.
func (s *Service) recordEnforcementFailure(guildID string, caseID int64, enfErr error) error {
	wrapped := &model.EnforcementError{Action: "platform action", Err: enfErr}
	if noteErr := s.Store.AddNote(guildID, caseID, model.SystemActorID, "enforcement failed: "+enfErr.Error()); noteErr != nil {
		log.Printf("mod: failed to note enforcement failure on case %d: %v", caseID, noteErr)
	}
	utils.LogError(s.WebhookURL, "moderation", "enforcement",
		fmt.Sprintf("case #%d guild=%s: %v", caseID, guildID, enfErr))
	return wrapped
}

func (s *Service) announce(guildID, message string) {
	if err := s.Enforcer.Announce(guildID, message); err != nil {
		log.Printf("mod: announce failed for guild %s: %v", guildID, err)
	}
}
