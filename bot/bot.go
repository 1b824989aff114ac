package bot

import (
	"log"
	"sync/atomic"
	"warden-bot/alt"
	"warden-bot/commands"
	"warden-bot/guard"
	"warden-bot/mod"
	"warden-bot/model"
	"warden-bot/mute"
	"warden-bot/utils/database/casestore"

	"github.com/bwmarrin/discordgo"
)

type Bot struct {
	Session            *discordgo.Session
	Store              *casestore.Store
	Machine            *mute.Machine
	Detector           *guard.Detector
	Correlator         *alt.Correlator
	Service            *mod.Service
	RegisteredCommands []*discordgo.ApplicationCommand
	CommandHandlers    map[string]func(s *discordgo.Session, i *discordgo.InteractionCreate)

	config    atomic.Value // *model.Config
	scheduler *Scheduler
	done      chan struct{}
}

func (b *Bot) GetConfig() *model.Config {
	return b.config.Load().(*model.Config)
}

func (b *Bot) GetStore() *casestore.Store {
	return b.Store
}

func (b *Bot) GetSession() *discordgo.Session {
	return b.Session
}

func (b *Bot) GetService() *mod.Service {
	return b.Service
}

func (b *Bot) GetMachine() *mute.Machine {
	return b.Machine
}

func (b *Bot) GetDetector() *guard.Detector {
	return b.Detector
}

func New(cfg *model.Config, store *casestore.Store) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildMessages |
		discordgo.IntentGuildModeration |
		discordgo.IntentMessageContent
	dg.StateEnabled = true

	machine := mute.New(store, cfg.Mute)
	service := &mod.Service{
		Store:      store,
		Machine:    machine,
		Enforcer:   &mod.DiscordEnforcer{Session: dg, Servers: cfg.ServerConfigs},
		WebhookURL: cfg.LogWebhookURL,
	}
	detector := guard.New(cfg.Guard, cfg.ServerConfigs, service)
	correlator, err := alt.New(store, cfg.Alt)
	if err != nil {
		return nil, err
	}

	b := &Bot{
		Session:    dg,
		Store:      store,
		Machine:    machine,
		Detector:   detector,
		Correlator: correlator,
		Service:    service,
		done:       make(chan struct{}),
	}
	b.config.Store(cfg)
	b.scheduler = NewScheduler(b)
	return b, nil
}

func (b *Bot) GetScheduler() *Scheduler {
	return b.scheduler
}

func (b *Bot) Close() {
	log.Println("Gracefully shutting down.")
	close(b.done)
	// In-flight case writes get the configured grace period before the
	// scheduler is stopped; partially-applied actions are not rolled
	// back, the case records stand for manual follow-up.
	b.scheduler.Stop(b.GetConfig().Scheduler.ShutdownGrace)
	b.Session.Close()
	b.Store.Close()
}

func (b *Bot) RefreshCommands(guildID string) {
	serverCfg, ok := b.GetConfig().ServerConfigs[guildID]
	if !ok {
		log.Printf("Could not find server config for guild: %s", guildID)
		return
	}
	log.Printf("Updating commands for guild %s", serverCfg.GuildID)

	cmds := commands.GenerateCommands(&serverCfg)
	registeredCmds, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, serverCfg.GuildID, cmds)
	if err != nil {
		log.Printf("cannot update commands for guild '%s': %v", serverCfg.GuildID, err)
		return
	}
	b.RegisteredCommands = append(b.RegisteredCommands, registeredCmds...)
}
