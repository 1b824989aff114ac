package handlers

import (
	"log"
	"warden-bot/bot"
	"warden-bot/utils"

	"github.com/bwmarrin/discordgo"
)

type commandHandler = func(s *discordgo.Session, i *discordgo.InteractionCreate)

// adminOnly wraps a handler with the guild's moderator role check.
func adminOnly(b *bot.Bot, next func(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot)) commandHandler {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		serverConfig, ok := b.GetConfig().ServerConfigs[i.GuildID]
		if !ok {
			log.Printf("Could not find server config for guild: %s", i.GuildID)
			return
		}
		if i.Member == nil {
			utils.SendErrorResponse(s, i, "This command can only be used inside a server.")
			return
		}
		permissionLevel := utils.CheckPermission(i.Member.Roles, serverConfig.AdminRoleIDs)
		if permissionLevel != utils.AdminPermission {
			utils.SendErrorResponse(s, i, "You do not have permission to use this command.")
			return
		}
		next(s, i, b)
	}
}

func commandHandlers(b *bot.Bot) map[string]commandHandler {
	return map[string]commandHandler{
		"ban":       adminOnly(b, handleBan),
		"tempban":   adminOnly(b, handleTempBan),
		"unban":     adminOnly(b, handleUnban),
		"mute":      adminOnly(b, handleMute),
		"tempmute":  adminOnly(b, handleTempMute),
		"unmute":    adminOnly(b, handleUnmute),
		"warn":      adminOnly(b, handleWarn),
		"kick":      adminOnly(b, handleKick),
		"history":   adminOnly(b, handleHistory),
		"prisoners": adminOnly(b, handlePrisoners),
		"case":      adminOnly(b, handleCase),
		"alts":      adminOnly(b, handleAlts),
		"sysinfo":   adminOnly(b, handleSystemInfo),
	}
}

// optionMap flattens interaction options for lookup by name.
func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func subOptionMap(sub *discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, opt := range sub.Options {
		m[opt.Name] = opt
	}
	return m
}
