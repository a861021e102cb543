package config

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Moderation ModerationConfig `json:"moderation"`
	Report     ReportConfig     `json:"report"`
	Web        WebConfig        `json:"web"`
	Metrics    MetricsConfig    `json:"metrics"`

	// Timezone is the IANA zone used for day bucketing and legacy
	// timestamps. Empty uses the process local zone.
	Timezone string `json:"timezone,omitempty"`
}

type TelegramConfig struct {
	// Token is overridden by BOT_TOKEN; TokenFile is read when both are empty.
	Token        string  `json:"token,omitempty"`
	TokenFile    string  `json:"token_file,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id the Telegram log sink posts to.
	GroupLog string `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the punishment log backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "data/punishments.json" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
}

// ModerationConfig tunes the moderation commands. Durations are Go duration
// strings; windows also accept "30d", "2w" and "1m".
type ModerationConfig struct {
	MuteDuration    string `json:"mute_duration,omitempty"`
	DefaultWindow   string `json:"default_window,omitempty"`
	PlatformTimeout string `json:"platform_timeout,omitempty"`

	// Welcome is a pointer so an omitted key defaults to true.
	Welcome *bool `json:"welcome,omitempty"`
	// ChatterReply answers plain text in groups; nil uses the built-in
	// reply and "" disables it.
	ChatterReply *string `json:"chatter_reply,omitempty"`
}

type ReportConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Window   string `json:"window,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	// ScopeChatID limits the digest to one chat; 0 covers all chats.
	ScopeChatID int64  `json:"scope_chat_id,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

// WebConfig controls the admin website. With Embedded set the bot process
// serves it too; otherwise run cmd/web.
type WebConfig struct {
	Embedded        bool     `json:"embedded"`
	Addr            string   `json:"addr,omitempty"`
	StaticDir       string   `json:"static_dir,omitempty"`
	AccountsDB      string   `json:"accounts_db,omitempty"`
	LoginRatePerMin int      `json:"login_rate_per_min,omitempty"`
	TrustedProxies  []string `json:"trusted_proxies,omitempty"`
	ExposeMetrics   bool     `json:"expose_metrics,omitempty"`
	Debug           bool     `json:"debug,omitempty"`
}

// MetricsConfig exposes Prometheus /metrics on its own listener when Addr
// is set.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty"`
}
