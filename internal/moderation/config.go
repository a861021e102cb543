package moderation

import "time"

// Config holds the hot-reloadable moderation knobs.
type Config struct {
	MuteDuration    time.Duration
	DefaultWindow   time.Duration
	Welcome         bool
	ChatterReply    string
	PlatformTimeout time.Duration
}

const (
	DefaultMuteDuration    = 10 * time.Minute
	DefaultWindow          = 30 * 24 * time.Hour
	DefaultPlatformTimeout = 10 * time.Second
	DefaultChatterReply    = "I'm DoggoBot 🐶. Use /warn, /mute or /ban if you're a mod — or just say hi!"
)

// recordTimeout bounds a log append that outlives its command.
const recordTimeout = 5 * time.Second

func (c Config) withDefaults() Config {
	if c.MuteDuration <= 0 {
		c.MuteDuration = DefaultMuteDuration
	}
	if c.DefaultWindow <= 0 {
		c.DefaultWindow = DefaultWindow
	}
	if c.PlatformTimeout <= 0 {
		c.PlatformTimeout = DefaultPlatformTimeout
	}
	return c
}
