package transcriber

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/livescribe/internal/audio"
	"github.com/leonardotrapani/livescribe/internal/chunker"
)

const (
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	DefaultOpenAIModel    = "whisper-1"
	GroqBaseURL           = "https://api.groq.com/openai/v1"
	DefaultGroqModel      = "whisper-large-v3-turbo"
)

// Upload is one encoded chunk as it goes over the wire.
type Upload struct {
	Filename string
	Audio    []byte
}

// Adapter interface for different transcription backends
type Adapter interface {
	Transcribe(ctx context.Context, upload Upload) (string, error)
}

// Result is the outcome of transcribing one chunk. Err is nil on success.
type Result struct {
	Session  uuid.UUID
	Sequence int
	Text     string
	Err      error
	Latency  time.Duration
}

func (r Result) Failed() bool { return r.Err != nil }

// Configuration for the transcriber
type Config struct {
	Provider string
	APIKey   string
	Endpoint string
	Model    string
	Language string
	Timeout  time.Duration
	Format   audio.Format
}

func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Endpoint: DefaultOpenAIEndpoint,
		Model:    DefaultOpenAIModel,
		Timeout:  30 * time.Second,
		Format:   audio.DefaultFormat(),
	}
}

// Client transcribes chunks through an Adapter. It holds no per-call state,
// so any number of Transcribe calls may run concurrently.
type Client struct {
	adapter Adapter
	format  audio.Format
	timeout time.Duration
}

func NewClient(adapter Adapter, format audio.Format, timeout time.Duration) *Client {
	return &Client{
		adapter: adapter,
		format:  format,
		timeout: timeout,
	}
}

// New creates a client for the configured provider.
func New(config Config) (*Client, error) {
	var adapter Adapter

	switch config.Provider {
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		endpoint := config.Endpoint
		if endpoint == "" {
			endpoint = DefaultOpenAIEndpoint
		}
		adapter = NewHTTPAdapter(endpoint, config.APIKey, modelOr(config.Model, DefaultOpenAIModel), config.Language)

	case "openai-sdk":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		adapter = NewSDKAdapter("openai-sdk", "", config.APIKey, modelOr(config.Model, DefaultOpenAIModel), config.Language)

	case "groq":
		if config.APIKey == "" {
			return nil, fmt.Errorf("Groq API key required")
		}
		adapter = NewSDKAdapter("groq", GroqBaseURL, config.APIKey, modelOr(config.Model, DefaultGroqModel), config.Language)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}

	return NewClient(adapter, config.Format, config.Timeout), nil
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}

// Filename derives the upload name from the chunk's capture time.
func Filename(chunk chunker.AudioChunk) string {
	return fmt.Sprintf("chunk%d.wav", chunk.CapturedAt.UnixMilli())
}

// Transcribe never returns a Go error: failures are reported in Result.Err
// as an *Error so the caller can leave a gap and carry on.
func (c *Client) Transcribe(ctx context.Context, chunk chunker.AudioChunk) Result {
	result := Result{Session: chunk.Session, Sequence: chunk.Sequence}

	wavData, err := audio.EncodeWAV(chunk.Payload, c.format)
	if err != nil {
		result.Err = &Error{Kind: ProtocolError, Err: fmt.Errorf("encode chunk: %w", err)}
		return result
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := c.adapter.Transcribe(ctx, Upload{Filename: Filename(chunk), Audio: wavData})
	result.Latency = time.Since(start)

	if err != nil {
		result.Err = classify(err)
		log.Printf("transcriber: chunk %d failed after %v: %v", chunk.Sequence, result.Latency, result.Err)
		return result
	}

	result.Text = text
	log.Printf("transcriber: chunk %d (%d bytes) transcribed in %v: %q",
		chunk.Sequence, len(chunk.Payload), result.Latency, text)
	return result
}
