package scanner

import (
	"log"
	"warden-bot/model"

	"github.com/bwmarrin/discordgo"
)

// CleanPrisonChannels trims every configured prison channel down to its
// message limit so old mute chatter does not pile up. Pinned messages
// (rules, notices) are never deleted.
func CleanPrisonChannels(s *discordgo.Session, cfg *model.Config) {
	if len(cfg.ServerConfigs) == 0 {
		return
	}
	for guildID, serverConfig := range cfg.ServerConfigs {
		if serverConfig.PrisonChannelID == "" || serverConfig.PrisonMessageLimit <= 0 {
			continue
		}
		log.Printf("Cleaning prison channel for guild %s.", guildID)
		go cleanSingleChannel(s, serverConfig.PrisonChannelID, serverConfig.PrisonMessageLimit)
	}
}

func cleanSingleChannel(s *discordgo.Session, channelID string, messageLimit int) {
	messages, err := s.ChannelMessages(channelID, 100, "", "", "")
	if err != nil {
		log.Printf("Error fetching messages for channel %s: %v", channelID, err)
		return
	}

	if len(messages) <= messageLimit {
		return // No need to clean
	}

	messagesToDelete := make([]string, 0)
	// Messages are returned newest first, so we iterate backwards to find the oldest.
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.ID == "" || msg.Pinned {
			continue
		}
		messagesToDelete = append(messagesToDelete, msg.ID)
		if len(messages)-len(messagesToDelete) <= messageLimit {
			break // We have reached the target message count
		}
	}

	if len(messagesToDelete) > 0 {
		err := s.ChannelMessagesBulkDelete(channelID, messagesToDelete)
		if err != nil {
			log.Printf("Error bulk deleting messages in channel %s: %v", channelID, err)
		} else {
			log.Printf("Deleted %d messages from prison channel %s.", len(messagesToDelete), channelID)
		}
	}
}
