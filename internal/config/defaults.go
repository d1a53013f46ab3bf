package config

import (
	"time"

	"github.com/leonardotrapani/livescribe/internal/transcriber"
)

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
		},
		Chunking: ChunkingConfig{
			Interval: 3 * time.Second,
		},
		Transcription: TranscriptionConfig{
			Provider: "openai",
			Endpoint: transcriber.DefaultOpenAIEndpoint,
			Model:    transcriber.DefaultOpenAIModel,
			Language: "",
			Timeout:  30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

const defaultConfigContent = `# Livescribe Configuration
# This file is automatically generated with defaults.
# Edit values as needed - changes are picked up by the next recording session.

# Audio Recording Configuration
[recording]
  sample_rate = 16000          # Audio sample rate in Hz (16000 recommended for speech)
  channels = 1                 # Number of audio channels (1 = mono, 2 = stereo)
  format = "s16"               # Audio format (s16 = 16-bit signed integers)
  buffer_size = 8192           # Internal buffer size in bytes (larger = less CPU, more latency)
  device = ""                  # PipeWire audio device (empty = use default microphone)
  channel_buffer_size = 30     # Audio frame buffer size (frames to buffer)

# Chunking Configuration
[chunking]
  interval = "3s"              # Length of each uploaded chunk (e.g., "3s", "5s")

# Speech Transcription Configuration
[transcription]
  provider = "openai"          # "openai" (multipart HTTP), "openai-sdk" or "groq"
  api_key = ""                 # API key (or set OPENAI_API_KEY / GROQ_API_KEY)
  endpoint = "https://api.openai.com/v1/audio/transcriptions"
  model = "whisper-1"          # "whisper-1" for OpenAI, "whisper-large-v3-turbo" for Groq
  language = ""                # Language code (empty for auto-detect, "en", "it", "es", ...)
  timeout = "30s"              # Per-chunk request timeout ("0s" disables)

# Desktop Notification Configuration
[notifications]
  enabled = true               # Enable notifications
  type = "desktop"             # Notification type ("desktop", "log", "none")

# Prometheus Metrics
[metrics]
  enabled = false              # Serve /metrics
  listen = "127.0.0.1:9464"    # Listen address
`
