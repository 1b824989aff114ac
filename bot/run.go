package bot

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"warden-bot/utils"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) Run() {
	// Rebuild the prisoner index before any signals can arrive, so
	// expiries and transitions missed during downtime are not lost.
	if err := b.Machine.Rebuild(); err != nil {
		log.Printf("Error rebuilding mute state: %v", err)
	}

	err := b.Session.Open()
	if err != nil {
		log.Fatalf("Error opening connection: %v", err)
	}

	log.Println("Registering commands for enabled guilds...")
	b.RegisteredCommands = make([]*discordgo.ApplicationCommand, 0)
	for _, serverCfg := range b.GetConfig().ServerConfigs {
		if serverCfg.Enable {
			b.RefreshCommands(serverCfg.GuildID)
		}
	}

	b.GetScheduler().Start()

	fmt.Println("Bot is now running. Press CTRL-C to exit.")
	utils.LogInfo(b.GetConfig().LogWebhookURL, "system", "startup", "Warden has started successfully.")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
}
