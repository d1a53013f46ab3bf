package config

import "time"

type Config struct {
	Recording     RecordingConfig     `toml:"recording"`
	Chunking      ChunkingConfig      `toml:"chunking"`
	Transcription TranscriptionConfig `toml:"transcription"`
	Notifications NotificationsConfig `toml:"notifications"`
	Metrics       MetricsConfig       `toml:"metrics"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

// ChunkingConfig controls how the capture stream is cut into uploads.
type ChunkingConfig struct {
	Interval time.Duration `toml:"interval"`
}

type TranscriptionConfig struct {
	Provider string        `toml:"provider"` // "openai", "openai-sdk", "groq"
	APIKey   string        `toml:"api_key"`
	Endpoint string        `toml:"endpoint"` // only used by "openai"
	Model    string        `toml:"model"`
	Language string        `toml:"language"`
	Timeout  time.Duration `toml:"timeout"` // per chunk; 0 disables
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
