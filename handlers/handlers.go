package handlers

import (
	"log"
	"warden-bot/bot"

	"github.com/bwmarrin/discordgo"
)

func Register(b *bot.Bot) {
	b.CommandHandlers = commandHandlers(b)
	addHandlers(b)
}

func addHandlers(b *bot.Bot) {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Logged in as: %v#%v", s.State.User.Username, s.State.User.Discriminator)
	})
	b.Session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		if h, ok := b.CommandHandlers[i.ApplicationCommandData().Name]; ok {
			h(s, i)
		}
	})

	b.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		handleMessageCreate(s, m, b)
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildMemberUpdate) {
		handleGuildMemberUpdate(s, e, b)
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
		handleGuildMemberAdd(s, e, b)
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.ChannelDelete) {
		handleChannelDelete(s, e, b)
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildRoleDelete) {
		handleGuildRoleDelete(s, e, b)
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.GuildRoleUpdate) {
		handleGuildRoleUpdate(s, e, b)
	})
	b.Session.AddHandler(func(s *discordgo.Session, e *discordgo.ChannelUpdate) {
		handleChannelUpdate(s, e, b)
	})
}
