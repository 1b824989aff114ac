package handlers

import (
	"fmt"
	"strings"
	"time"
	"warden-bot/bot"
	"warden-bot/model"
	"warden-bot/utils"

	"github.com/bwmarrin/discordgo"
)

const maxHistoryEntries = 15

func handleHistory(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	target := optionMap(i)["user"].UserValue(s)

	records, err := b.Store.QueryHistory(i.GuildID, target.ID)
	if err != nil {
		utils.SendErrorResponse(s, i, friendlyError(err))
		return
	}
	if len(records) == 0 {
		utils.SendErrorResponse(s, i, fmt.Sprintf("<@%s> has no cases on file.", target.ID))
		return
	}

	var builder strings.Builder
	shown := records
	if len(shown) > maxHistoryEntries {
		shown = shown[:maxHistoryEntries]
	}
	for _, c := range shown {
		builder.WriteString(fmt.Sprintf("`#%d` **%s** (%s) <t:%d:R>\n%s\n", c.CaseID, c.Kind, c.Status, c.CreatedAt, c.Reason))
	}
	if len(records) > maxHistoryEntries {
		builder.WriteString(fmt.Sprintf("\n…and %d older cases.", len(records)-maxHistoryEntries))
	}

	title := fmt.Sprintf("Case history for %s (%d total)", target.Username, len(records))
	if b.Machine.IsRepeatOffender(i.GuildID, target.ID) {
		title += " ⚠️ repeat offender"
	}
	utils.SendEmbedResponse(s, i, &discordgo.MessageEmbed{
		Title:       title,
		Description: builder.String(),
		Color:       0x5865F2,
	}, true)
}

func handlePrisoners(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sessions, err := b.Store.ActiveSessionsForGuild(i.GuildID)
	if err != nil {
		utils.SendErrorResponse(s, i, friendlyError(err))
		return
	}
	if len(sessions) == 0 {
		utils.SendErrorResponse(s, i, "Nobody is muted right now.")
		return
	}

	var builder strings.Builder
	for _, sess := range sessions {
		builder.WriteString(fmt.Sprintf("<@%s> since <t:%d:R>", sess.UserID, sess.MutedAt))
		if sess.Reason != model.UnknownReason {
			builder.WriteString(" — " + sess.Reason)
		}
		if sess.CaseID != 0 {
			builder.WriteString(fmt.Sprintf(" (case #%d)", sess.CaseID))
		}
		builder.WriteString("\n")
	}
	utils.SendEmbedResponse(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Currently muted (%d)", len(sessions)),
		Description: builder.String(),
		Color:       0x5865F2,
	}, true)
}

func handleCase(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	sub := i.ApplicationCommandData().Options[0]
	opts := subOptionMap(sub)

	switch sub.Name {
	case "show":
		showCase(s, i, b, opts["id"].IntValue())
	case "note":
		caseID := opts["id"].IntValue()
		if err := b.Service.AddNote(i.GuildID, caseID, i.Member.User.ID, opts["text"].StringValue()); err != nil {
			utils.SendErrorResponse(s, i, friendlyError(err))
			return
		}
		utils.SendEmbedResponse(s, i, &discordgo.MessageEmbed{
			Description: fmt.Sprintf("Note added to case #%d.", caseID),
			Color:       0x57F287,
		}, true)
	case "link":
		first, second := opts["first"].IntValue(), opts["second"].IntValue()
		if err := b.Service.LinkCases(i.GuildID, first, second); err != nil {
			utils.SendErrorResponse(s, i, friendlyError(err))
			return
		}
		utils.SendEmbedResponse(s, i, &discordgo.MessageEmbed{
			Description: fmt.Sprintf("Linked case #%d and case #%d.", first, second),
			Color:       0x57F287,
		}, true)
	}
}

func showCase(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot, caseID int64) {
	c, err := b.Store.GetCase(i.GuildID, caseID)
	if err != nil {
		utils.SendErrorResponse(s, i, friendlyError(err))
		return
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("**Subject:** <@%s>\n**Actor:** %s\n**Status:** %s\n**Created:** <t:%d:f>\n", c.SubjectID, actorMention(c.ActorID), c.Status, c.CreatedAt))
	if c.ExpiresAt > 0 {
		builder.WriteString(fmt.Sprintf("**Expires:** <t:%d:f>\n", c.ExpiresAt))
	}
	builder.WriteString("**Reason:** " + c.Reason + "\n")
	if c.TriggerContent != "" {
		builder.WriteString("**Trigger:** " + c.TriggerContent + "\n")
	}

	if notes, err := b.Store.Notes(i.GuildID, caseID); err == nil && len(notes) > 0 {
		builder.WriteString("\n**Notes:**\n")
		for _, n := range notes {
			builder.WriteString(fmt.Sprintf("- %s (%s, <t:%d:R>)\n", n.Text, actorMention(n.AuthorID), n.CreatedAt))
		}
	}
	if links, err := b.Store.Links(i.GuildID, caseID); err == nil && len(links) > 0 {
		builder.WriteString("\n**Linked cases:** ")
		var ids []string
		for _, l := range links {
			other := l.CaseA
			if other == caseID {
				other = l.CaseB
			}
			ids = append(ids, fmt.Sprintf("#%d", other))
		}
		builder.WriteString(strings.Join(ids, ", "))
	}

	utils.SendEmbedResponse(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Case #%d — %s", c.CaseID, c.Kind),
		Description: builder.String(),
		Color:       0x5865F2,
		Timestamp:   time.Unix(c.CreatedAt, 0).UTC().Format(time.RFC3339),
	}, true)
}

func handleAlts(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	candidates := b.Correlator.Surfaced(i.GuildID)
	if len(candidates) == 0 {
		utils.SendErrorResponse(s, i, "No alt candidates have been flagged recently.")
		return
	}

	var builder strings.Builder
	for _, cand := range candidates {
		builder.WriteString(fmt.Sprintf("<@%s> ↔ <@%s> — **%.0f%%**\n%s\n",
			cand.CandidateID, cand.PrimaryID, cand.Confidence*100, strings.Join(cand.Signals, ", ")))
	}
	utils.SendEmbedResponse(s, i, &discordgo.MessageEmbed{
		Title:       "Flagged alt candidates",
		Description: builder.String(),
		Color:       0xFEE75C,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Confidence scores are advisory; confirm before acting."},
	}, true)
}

func actorMention(id string) string {
	if id == model.SystemActorID {
		return "system"
	}
	return "<@" + id + ">"
}
