package handlers

import (
	"errors"
	"fmt"
	"log"
	"time"
	"warden-bot/bot"
	"warden-bot/mod"
	"warden-bot/model"
	"warden-bot/utils"

	"github.com/bwmarrin/discordgo"
)

func handleBan(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := opts["reason"].StringValue()
	runAction(s, i, b, "Banned", target.ID, reason, 0, func() (*mod.Result, error) {
		return b.Service.Ban(i.GuildID, i.Member.User.ID, target.ID, reason, "", 0)
	})
}

func handleTempBan(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := opts["reason"].StringValue()
	duration, err := utils.ParseDuration(opts["duration"].StringValue())
	if err != nil || duration <= 0 {
		utils.SendErrorResponse(s, i, "Invalid duration. Use forms like 30m, 2h or 7d.")
		return
	}
	runAction(s, i, b, "Banned", target.ID, reason, duration, func() (*mod.Result, error) {
		return b.Service.Ban(i.GuildID, i.Member.User.ID, target.ID, reason, "", duration)
	})
}

func handleUnban(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	targetID := opts["user_id"].StringValue()
	reason := "unbanned by moderator"
	if opt, ok := opts["reason"]; ok {
		reason = opt.StringValue()
	}
	runAction(s, i, b, "Unbanned", targetID, reason, 0, func() (*mod.Result, error) {
		return b.Service.Unban(i.GuildID, i.Member.User.ID, targetID, reason)
	})
}

func handleMute(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := opts["reason"].StringValue()
	runAction(s, i, b, "Muted", target.ID, reason, 0, func() (*mod.Result, error) {
		return b.Service.Mute(i.GuildID, i.Member.User.ID, target.ID, reason, "", 0)
	})
}

func handleTempMute(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := opts["reason"].StringValue()
	duration, err := utils.ParseDuration(opts["duration"].StringValue())
	if err != nil || duration <= 0 {
		utils.SendErrorResponse(s, i, "Invalid duration. Use forms like 30m, 2h or 7d.")
		return
	}
	runAction(s, i, b, "Muted", target.ID, reason, duration, func() (*mod.Result, error) {
		return b.Service.Mute(i.GuildID, i.Member.User.ID, target.ID, reason, "", duration)
	})
}

func handleUnmute(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := "released by moderator"
	if opt, ok := opts["reason"]; ok {
		reason = opt.StringValue()
	}
	runAction(s, i, b, "Released", target.ID, reason, 0, func() (*mod.Result, error) {
		return b.Service.Unmute(i.GuildID, i.Member.User.ID, target.ID, reason)
	})
}

func handleWarn(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := opts["reason"].StringValue()
	runAction(s, i, b, "Warned", target.ID, reason, 0, func() (*mod.Result, error) {
		return b.Service.Warn(i.GuildID, i.Member.User.ID, target.ID, reason, "")
	})
}

func handleKick(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	opts := optionMap(i)
	target := opts["user"].UserValue(s)
	reason := opts["reason"].StringValue()
	runAction(s, i, b, "Kicked", target.ID, reason, 0, func() (*mod.Result, error) {
		return b.Service.Kick(i.GuildID, i.Member.User.ID, target.ID, reason, "")
	})
}

// runAction defers the response, runs the moderation operation and
// reports the outcome. A case that was recorded but could not be
// enforced is reported as such rather than hidden behind an error.
func runAction(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, verb, targetID string, reason string, duration time.Duration, op func() (*mod.Result, error)) {
	if err := utils.DeferResponse(s, i, false); err != nil {
		log.Printf("Error deferring response: %v", err)
		return
	}

	res, err := op()
	if err != nil {
		utils.SendFollowUpError(s, i.Interaction, friendlyError(err))
		return
	}

	description := fmt.Sprintf("%s <@%s> (case #%d)", verb, targetID, res.CaseID)
	if duration > 0 {
		description += fmt.Sprintf("\n**Duration:** %s", utils.FormatDuration(duration))
	}
	if reason != "" {
		description += fmt.Sprintf("\n**Reason:** %s", reason)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Moderation Action",
		Description: description,
		Color:       0xED4245,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if res.EnforcementErr != nil {
		embed.Color = 0xFEE75C
		embed.Description += "\n⚠️ Case recorded, but the platform action failed. See the case notes."
	}
	utils.SendFollowUpEmbed(s, i.Interaction, embed)

	// Mirror the action into the guild's mod-log channel.
	if serverCfg, ok := b.GetConfig().ServerConfigs[i.GuildID]; ok && serverCfg.ModLogChannelID != "" {
		logEmbed := *embed
		logEmbed.Description += fmt.Sprintf("\n**By:** <@%s>", i.Member.User.ID)
		if _, err := s.ChannelMessageSendEmbed(serverCfg.ModLogChannelID, &logEmbed); err != nil {
			log.Printf("Error mirroring action to mod log channel: %v", err)
		}
	}
}

// friendlyError maps typed errors to messages a moderator can act on.
func friendlyError(err error) string {
	var validation *model.ValidationError
	if errors.As(err, &validation) {
		return validation.Reason
	}
	var notFound *model.NotFoundError
	if errors.As(err, &notFound) {
		return fmt.Sprintf("%s #%d was not found.", notFound.Entity, notFound.ID)
	}
	var unavailable *model.StoreUnavailableError
	if errors.As(err, &unavailable) {
		return "The case store is unavailable right now. Try again shortly."
	}
	return err.Error()
}
