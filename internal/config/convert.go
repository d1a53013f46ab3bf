package config

import (
	"os"

	"github.com/leonardotrapani/livescribe/internal/chunker"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToChunkerConfig() chunker.Config {
	return chunker.Config{
		Interval: c.Chunking.Interval,
		Format:   c.ToRecordingConfig().AudioFormat(),
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider: c.Transcription.Provider,
		APIKey:   c.ResolveAPIKey(),
		Endpoint: c.Transcription.Endpoint,
		Model:    c.Transcription.Model,
		Language: c.Transcription.Language,
		Timeout:  c.Transcription.Timeout,
		Format:   c.ToRecordingConfig().AudioFormat(),
	}
}

// EnvVarForProvider names the environment variable holding the provider's key.
func EnvVarForProvider(provider string) string {
	switch provider {
	case "openai", "openai-sdk":
		return "OPENAI_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// ResolveAPIKey returns transcription.api_key, falling back to the
// provider's environment variable.
func (c *Config) ResolveAPIKey() string {
	if c.Transcription.APIKey != "" {
		return c.Transcription.APIKey
	}
	if envVar := EnvVarForProvider(c.Transcription.Provider); envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}
