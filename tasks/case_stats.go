package tasks

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"warden-bot/utils/database/casestore"

	"github.com/bwmarrin/discordgo"
)

// GenerateModerationReportEmbed builds the per-guild moderation summary
// for the given lookback window: total cases plus a per-moderator
// breakdown. System-initiated cases are excluded from the breakdown.
func GenerateModerationReportEmbed(store *casestore.Store, guildID string, window time.Duration) (*discordgo.MessageEmbed, error) {
	since := time.Now().Add(-window)
	stats, err := store.ActorStats(guildID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get actor stats for guild %s: %w", guildID, err)
	}

	total, err := store.TotalCaseCount(guildID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get total case count for guild %s: %w", guildID, err)
	}

	var sortedActors []string
	for actorID := range stats {
		sortedActors = append(sortedActors, actorID)
	}
	sort.Slice(sortedActors, func(i, j int) bool {
		return stats[sortedActors[i]] > stats[sortedActors[j]]
	})

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("### Moderation activity, last %s\n", window.String()))
	builder.WriteString(fmt.Sprintf("**Total cases: %d**\n\n", total))
	builder.WriteString("**By moderator:**\n")
	if len(sortedActors) == 0 {
		builder.WriteString("No moderator actions in this window.\n")
	}
	for i, actorID := range sortedActors {
		builder.WriteString(fmt.Sprintf("%d. <@%s>: %d\n", i+1, actorID, stats[actorID]))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Daily Moderation Report",
		Description: builder.String(),
		Timestamp:   time.Now().Format(time.RFC3339),
		Color:       0x00ff00,
	}
	return embed, nil
}

// PostModerationReport sends the daily summary to a guild's stats channel.
func PostModerationReport(s *discordgo.Session, store *casestore.Store, guildID, channelID string, window time.Duration) error {
	embed, err := GenerateModerationReportEmbed(store, guildID, window)
	if err != nil {
		return err
	}
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		log.Printf("Failed to send moderation report to channel %s: %v", channelID, err)
		return err
	}
	return nil
}
