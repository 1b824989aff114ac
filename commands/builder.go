package commands

import (
	"warden-bot/model"

	"github.com/bwmarrin/discordgo"
)

func userOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: description,
		Required:    true,
	}
}

func reasonOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason for the action",
		Required:    required,
	}
}

func durationOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "duration",
		Description: "Duration, e.g. 30m, 2h, 7d",
		Required:    true,
	}
}

// GenerateCommands builds the moderation command set for one guild.
func GenerateCommands(serverCfg *model.ServerConfig) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ban",
			Description: "Ban a user and record a case",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to ban"),
				reasonOption(true),
			},
		},
		{
			Name:        "tempban",
			Description: "Ban a user for a limited time",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to ban"),
				durationOption(),
				reasonOption(true),
			},
		},
		{
			Name:        "unban",
			Description: "Lift a user's active ban",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "user_id",
					Description: "ID of the banned user",
					Required:    true,
				},
				reasonOption(false),
			},
		},
		{
			Name:        "mute",
			Description: "Assign the muted role and record a case",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to mute"),
				reasonOption(true),
			},
		},
		{
			Name:        "tempmute",
			Description: "Mute a user for a limited time",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to mute"),
				durationOption(),
				reasonOption(true),
			},
		},
		{
			Name:        "unmute",
			Description: "Release a muted user",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to release"),
				reasonOption(false),
			},
		},
		{
			Name:        "warn",
			Description: "Record a warning case for a user",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to warn"),
				reasonOption(true),
			},
		},
		{
			Name:        "kick",
			Description: "Kick a user and record a case",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to kick"),
				reasonOption(true),
			},
		},
		{
			Name:        "history",
			Description: "Show a user's case history",
			Options: []*discordgo.ApplicationCommandOption{
				userOption("User to look up"),
			},
		},
		{
			Name:        "prisoners",
			Description: "List currently muted users",
		},
		{
			Name:        "case",
			Description: "Inspect and annotate cases",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "show",
					Description: "Show one case with its notes and links",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "id",
							Description: "Case number",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "note",
					Description: "Append a note to a case",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "id",
							Description: "Case number",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "text",
							Description: "Note text",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "link",
					Description: "Link two related cases",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "first",
							Description: "First case number",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "second",
							Description: "Second case number",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "alts",
			Description: "Show recently flagged alt-account candidates",
		},
		{
			Name:        "sysinfo",
			Description: "Show bot and host status",
		},
	}
}
