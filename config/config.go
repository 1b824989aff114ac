package config

import (
	"fmt"
	"log"
	"os"
	"time"
	"warden-bot/model"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load loads the configuration from environment variables and the
// tunables file (data/warden.yaml).
func Load() (*model.Config, error) {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Info: .env file not found, relying on environment variables")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Fatal("Error: BOT_TOKEN environment variable not set")
	}

	appID := os.Getenv("APP_ID")
	if appID == "" {
		log.Fatal("Error: APP_ID environment variable not set")
	}

	logWebhookURL := os.Getenv("LOG_WEBHOOK_URL")
	if logWebhookURL == "" {
		log.Println("Warning: LOG_WEBHOOK_URL not set, operator logging will be disabled")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "data/warden.db"
	}

	cfg := &model.Config{
		BotToken:      token,
		AppID:         appID,
		LogWebhookURL: logWebhookURL,
		DatabasePath:  dbPath,
		ServerConfigs: make(map[string]model.ServerConfig),
	}

	if err := loadTunables(cfg); err != nil {
		return nil, err
	}

	for guildID, serverCfg := range cfg.ServerConfigs {
		if serverCfg.GuildID == "" {
			serverCfg.GuildID = guildID
			cfg.ServerConfigs[guildID] = serverCfg
		}
	}

	return cfg, nil
}

// loadTunables reads server configs and the detector, scheduler, mute
// and alt settings from data/warden.yaml, falling back to documented
// defaults when the file or a key is absent.
func loadTunables(cfg *model.Config) error {
	v := viper.New()
	v.SetConfigFile("data/warden.yaml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound || os.IsNotExist(err) {
			log.Println("Warning: data/warden.yaml not found, using default tunables")
		} else {
			return fmt.Errorf("failed to read warden.yaml: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal warden.yaml: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("guard.message_burst.weight", 1)
	v.SetDefault("guard.message_burst.window", 10*time.Second)
	v.SetDefault("guard.message_burst.threshold", 8)
	v.SetDefault("guard.mass_deletion.weight", 10)
	v.SetDefault("guard.mass_deletion.window", 60*time.Second)
	v.SetDefault("guard.mass_deletion.threshold", 30)
	v.SetDefault("guard.perm_escalation.weight", 25)
	v.SetDefault("guard.perm_escalation.window", 300*time.Second)
	v.SetDefault("guard.perm_escalation.threshold", 25)
	v.SetDefault("guard.auto_mute_duration", 10*time.Minute)

	v.SetDefault("scheduler.tick_interval", time.Minute)
	v.SetDefault("scheduler.daily_run_hour", 5)
	v.SetDefault("scheduler.shutdown_grace", 10*time.Second)

	v.SetDefault("mute.correlation_window", 60*time.Second)
	v.SetDefault("mute.repeat_offender_threshold", 5)

	v.SetDefault("alt.confidence_floor", 0.5)
	v.SetDefault("alt.recent_join_limit", 256)
	v.SetDefault("alt.join_history_window", 24*time.Hour)
}
