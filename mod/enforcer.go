package mod

import (
	"fmt"
	"time"
	"warden-bot/model"

	"github.com/bwmarrin/discordgo"
)

// Enforcer applies moderation decisions to the platform. The moderation
// service, the threat detector and the expiry scheduler all go through
// this interface, so tests can swap in a fake.
type Enforcer interface {
	AssignMutedRole(guildID, userID string) error
	RemoveMutedRole(guildID, userID string) error
	SetTimeout(guildID, userID string, until *time.Time) error
	Ban(guildID, userID, reason string) error
	Unban(guildID, userID string) error
	Kick(guildID, userID, reason string) error
	RevokeRole(guildID, userID, roleID string) error
	ClearPermissionOverwrite(channelID, targetID string) error
	Alert(guildID, message string) error
	Announce(guildID, message string) error
}

// DiscordEnforcer applies moderation decisions through a discordgo
// session using the per-guild server configuration.
type DiscordEnforcer struct {
	Session *discordgo.Session
	Servers map[string]model.ServerConfig
}

func (e *DiscordEnforcer) server(guildID string) (model.ServerConfig, error) {
	cfg, ok := e.Servers[guildID]
	if !ok {
		return model.ServerConfig{}, fmt.Errorf("no server config for guild %s", guildID)
	}
	return cfg, nil
}

func (e *DiscordEnforcer) AssignMutedRole(guildID, userID string) error {
	cfg, err := e.server(guildID)
	if err != nil {
		return err
	}
	return e.Session.GuildMemberRoleAdd(guildID, userID, cfg.MutedRoleID)
}

func (e *DiscordEnforcer) RemoveMutedRole(guildID, userID string) error {
	cfg, err := e.server(guildID)
	if err != nil {
		return err
	}
	return e.Session.GuildMemberRoleRemove(guildID, userID, cfg.MutedRoleID)
}

func (e *DiscordEnforcer) SetTimeout(guildID, userID string, until *time.Time) error {
	return e.Session.GuildMemberTimeout(guildID, userID, until)
}

func (e *DiscordEnforcer) Ban(guildID, userID, reason string) error {
	return e.Session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (e *DiscordEnforcer) Unban(guildID, userID string) error {
	return e.Session.GuildBanDelete(guildID, userID)
}

func (e *DiscordEnforcer) Kick(guildID, userID, reason string) error {
	return e.Session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (e *DiscordEnforcer) RevokeRole(guildID, userID, roleID string) error {
	return e.Session.GuildMemberRoleRemove(guildID, userID, roleID)
}

func (e *DiscordEnforcer) ClearPermissionOverwrite(channelID, targetID string) error {
	return e.Session.ChannelPermissionDelete(channelID, targetID)
}

func (e *DiscordEnforcer) Alert(guildID, message string) error {
	cfg, err := e.server(guildID)
	if err != nil {
		return err
	}
	if cfg.AlertChannelID == "" {
		return nil
	}
	_, err = e.Session.ChannelMessageSend(cfg.AlertChannelID, message)
	return err
}

func (e *DiscordEnforcer) Announce(guildID, message string) error {
	cfg, err := e.server(guildID)
	if err != nil {
		return err
	}
	if cfg.PrisonChannelID == "" {
		return nil
	}
	_, err = e.Session.ChannelMessageSend(cfg.PrisonChannelID, message)
	return err
}
