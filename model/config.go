package model

import "time"

// ServerConfig holds the per-guild moderation settings.
type ServerConfig struct {
	Name               string   `mapstructure:"name"`
	GuildID            string   `mapstructure:"guild_id"`
	Enable             bool     `mapstructure:"enable"`
	MutedRoleID        string   `mapstructure:"muted_role_id"`
	PrisonChannelID    string   `mapstructure:"prison_channel_id"`
	AlertChannelID     string   `mapstructure:"alert_channel_id"`
	ModLogChannelID    string   `mapstructure:"mod_log_channel_id"`
	StatsChannelID     string   `mapstructure:"stats_channel_id"`
	AdminRoleIDs       []string `mapstructure:"admin_role_ids"`
	ElevatedRoleIDs    []string `mapstructure:"elevated_role_ids"`
	PrisonMessageLimit int      `mapstructure:"prison_message_limit"`
}

// SignalRule tunes one threat-detector signal: how much each event
// counts, how long the window is, and at what aggregate the detector fires.
type SignalRule struct {
	Weight    int64         `mapstructure:"weight"`
	Window    time.Duration `mapstructure:"window"`
	Threshold int64         `mapstructure:"threshold"`
}

// GuardConfig holds the threat-detector tunables.
type GuardConfig struct {
	MessageBurst     SignalRule    `mapstructure:"message_burst"`
	MassDeletion     SignalRule    `mapstructure:"mass_deletion"`
	PermEscalation   SignalRule    `mapstructure:"perm_escalation"`
	AutoMuteDuration time.Duration `mapstructure:"auto_mute_duration"`
}

// SchedulerConfig holds the expiry scheduler tunables.
type SchedulerConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	DailyRunHour  int           `mapstructure:"daily_run_hour"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// MuteConfig holds the mute state machine tunables.
type MuteConfig struct {
	CorrelationWindow       time.Duration `mapstructure:"correlation_window"`
	RepeatOffenderThreshold int           `mapstructure:"repeat_offender_threshold"`
}

// AltConfig holds the alt correlator tunables.
type AltConfig struct {
	ConfidenceFloor   float64       `mapstructure:"confidence_floor"`
	RecentJoinLimit   int           `mapstructure:"recent_join_limit"`
	JoinHistoryWindow time.Duration `mapstructure:"join_history_window"`
}

// Config stores the application configuration.
type Config struct {
	BotToken      string
	AppID         string
	LogWebhookURL string
	DatabasePath  string

	ServerConfigs map[string]ServerConfig `mapstructure:"servers"`
	Guard         GuardConfig             `mapstructure:"guard"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Mute          MuteConfig              `mapstructure:"mute"`
	Alt           AltConfig               `mapstructure:"alt"`
}
