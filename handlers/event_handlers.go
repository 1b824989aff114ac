package handlers

import (
	"fmt"
	"log"
	"strings"
	"time"
	"warden-bot/bot"
	"warden-bot/model"

	"github.com/bwmarrin/discordgo"
)

// dangerousPermissions are the bits whose grant counts as an escalation
// signal for the threat detector.
const dangerousPermissions = discordgo.PermissionAdministrator |
	discordgo.PermissionManageServer |
	discordgo.PermissionManageRoles |
	discordgo.PermissionManageChannels |
	discordgo.PermissionManageWebhooks |
	discordgo.PermissionBanMembers |
	discordgo.PermissionKickMembers

func handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate, b *bot.Bot) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	sig := model.MessageSignal{
		GuildID:    m.GuildID,
		UserID:     m.Author.ID,
		ChannelID:  m.ChannelID,
		Content:    m.Content,
		Timestamp:  m.Timestamp.Unix(),
		ReceivedAt: time.Now(),
	}
	if err := b.Detector.ObserveMessage(sig); err != nil {
		log.Printf("Error observing message from %s: %v", m.Author.ID, err)
	}
}

// handleGuildMemberUpdate translates member updates into mute-role and
// timeout signals. Signals reaching the machine redundantly are fine;
// its transitions are idempotent.
func handleGuildMemberUpdate(s *discordgo.Session, e *discordgo.GuildMemberUpdate, b *bot.Bot) {
	serverCfg, ok := b.GetConfig().ServerConfigs[e.GuildID]
	if !ok || e.User == nil {
		return
	}
	now := time.Now()

	if serverCfg.MutedRoleID != "" {
		hasRole := containsID(e.Roles, serverCfg.MutedRoleID)
		hadRole := hasRole
		if e.BeforeUpdate != nil {
			hadRole = containsID(e.BeforeUpdate.Roles, serverCfg.MutedRoleID)
		} else if !hasRole {
			hadRole = b.Machine.IsMuted(e.GuildID, e.User.ID)
		}
		if hasRole != hadRole || hasRole {
			sig := model.RoleChangeSignal{
				GuildID:    e.GuildID,
				UserID:     e.User.ID,
				Username:   e.User.Username,
				RoleID:     serverCfg.MutedRoleID,
				Added:      hasRole,
				Timestamp:  now.Unix(),
				ReceivedAt: now,
			}
			if err := b.Machine.HandleRoleChange(sig); err != nil {
				log.Printf("Error handling role change for %s: %v", e.User.ID, err)
			}
		}
	}

	until := e.CommunicationDisabledUntil
	timedOutNow := until != nil && until.After(now)
	timedOutBefore := e.BeforeUpdate != nil &&
		e.BeforeUpdate.CommunicationDisabledUntil != nil &&
		e.BeforeUpdate.CommunicationDisabledUntil.After(now)
	if timedOutNow || timedOutBefore {
		sig := model.TimeoutChangeSignal{
			GuildID:    e.GuildID,
			UserID:     e.User.ID,
			Username:   e.User.Username,
			Until:      until,
			ReceivedAt: now,
		}
		if err := b.Machine.HandleTimeoutChange(sig); err != nil {
			log.Printf("Error handling timeout change for %s: %v", e.User.ID, err)
		}
	}
}

// handleGuildMemberAdd feeds the join into the alt correlator and
// re-applies the muted role to anyone who left and rejoined while muted.
func handleGuildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd, b *bot.Bot) {
	if e.User == nil || e.User.Bot {
		return
	}

	if b.Machine.IsMuted(e.GuildID, e.User.ID) {
		if err := b.Service.Enforcer.AssignMutedRole(e.GuildID, e.User.ID); err != nil {
			log.Printf("Error re-applying muted role to %s: %v", e.User.ID, err)
		} else {
			log.Printf("Re-applied muted role to rejoining user %s in guild %s.", e.User.ID, e.GuildID)
		}
	}

	createdAt, err := discordgo.SnowflakeTimestamp(e.User.ID)
	if err != nil {
		log.Printf("Error parsing snowflake for %s: %v", e.User.ID, err)
		return
	}
	join := model.JoinRecord{
		GuildID:   e.GuildID,
		UserID:    e.User.ID,
		Username:  e.User.Username,
		CreatedAt: createdAt.UTC().Unix(),
		JoinedAt:  e.JoinedAt.UTC().Unix(),
		AvatarID:  e.User.Avatar,
	}
	candidates, err := b.Correlator.OnJoin(join)
	if err != nil {
		log.Printf("Error scoring join of %s: %v", e.User.ID, err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	top := candidates[0]
	message := fmt.Sprintf("🔍 <@%s> joined and may be an alt of <@%s> (%.0f%% confidence: %s). No action has been taken.",
		top.CandidateID, top.PrimaryID, top.Confidence*100, strings.Join(top.Signals, ", "))
	if err := b.Service.Enforcer.Alert(e.GuildID, message); err != nil {
		log.Printf("Error sending alt alert for guild %s: %v", e.GuildID, err)
	}
}

func handleChannelDelete(s *discordgo.Session, e *discordgo.ChannelDelete, b *bot.Bot) {
	if e.GuildID == "" {
		return
	}
	actorID := auditLogActor(s, e.GuildID, discordgo.AuditLogActionChannelDelete)
	if actorID == "" || actorID == s.State.User.ID {
		return
	}
	sig := model.DeletionSignal{
		GuildID:    e.GuildID,
		ActorID:    actorID,
		TargetID:   e.ID,
		TargetName: e.Name,
		ReceivedAt: time.Now(),
	}
	if err := b.Detector.ObserveDeletion(sig); err != nil {
		log.Printf("Error observing channel deletion by %s: %v", actorID, err)
	}
}

func handleGuildRoleDelete(s *discordgo.Session, e *discordgo.GuildRoleDelete, b *bot.Bot) {
	actorID := auditLogActor(s, e.GuildID, discordgo.AuditLogActionRoleDelete)
	if actorID == "" || actorID == s.State.User.ID {
		return
	}
	sig := model.DeletionSignal{
		GuildID:    e.GuildID,
		ActorID:    actorID,
		TargetID:   e.RoleID,
		ReceivedAt: time.Now(),
	}
	if err := b.Detector.ObserveDeletion(sig); err != nil {
		log.Printf("Error observing role deletion by %s: %v", actorID, err)
	}
}

func handleGuildRoleUpdate(s *discordgo.Session, e *discordgo.GuildRoleUpdate, b *bot.Bot) {
	if e.Role == nil || e.Role.Permissions&dangerousPermissions == 0 {
		return
	}
	actorID := auditLogActor(s, e.GuildID, discordgo.AuditLogActionRoleUpdate)
	if actorID == "" || actorID == s.State.User.ID {
		return
	}
	sig := model.PermissionSignal{
		GuildID:    e.GuildID,
		ActorID:    actorID,
		TargetID:   e.Role.ID,
		Diff:       fmt.Sprintf("role %q granted elevated permissions", e.Role.Name),
		Escalation: true,
		ReceivedAt: time.Now(),
	}
	if err := b.Detector.ObservePermission(sig); err != nil {
		log.Printf("Error observing role update by %s: %v", actorID, err)
	}
}

func handleChannelUpdate(s *discordgo.Session, e *discordgo.ChannelUpdate, b *bot.Bot) {
	if e.GuildID == "" || !overwriteEscalated(e.Channel, e.BeforeUpdate) {
		return
	}
	actorID := auditLogActor(s, e.GuildID, discordgo.AuditLogActionChannelOverwriteUpdate)
	if actorID == "" || actorID == s.State.User.ID {
		return
	}
	sig := model.PermissionSignal{
		GuildID:    e.GuildID,
		ActorID:    actorID,
		TargetID:   e.ID,
		Diff:       fmt.Sprintf("channel %q overwrite granted elevated permissions", e.Name),
		Escalation: true,
		ReceivedAt: time.Now(),
	}
	if err := b.Detector.ObservePermission(sig); err != nil {
		log.Printf("Error observing channel update by %s: %v", actorID, err)
	}
}

// overwriteEscalated reports whether the update granted a dangerous
// permission bit that no overwrite granted before.
func overwriteEscalated(after, before *discordgo.Channel) bool {
	if after == nil {
		return false
	}
	var beforeAllow int64
	if before != nil {
		for _, ow := range before.PermissionOverwrites {
			beforeAllow |= ow.Allow
		}
	}
	for _, ow := range after.PermissionOverwrites {
		if ow.Allow&dangerousPermissions&^beforeAllow != 0 {
			return true
		}
	}
	return false
}

// auditLogActor returns who performed the most recent action of the
// given type, or "" when the audit log is unavailable.
func auditLogActor(s *discordgo.Session, guildID string, action discordgo.AuditLogAction) string {
	entries, err := s.GuildAuditLog(guildID, "", "", int(action), 1)
	if err != nil {
		log.Printf("Error fetching audit log for guild %s: %v", guildID, err)
		return ""
	}
	if len(entries.AuditLogEntries) == 0 {
		return ""
	}
	return entries.AuditLogEntries[0].UserID
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
