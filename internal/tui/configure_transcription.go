package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/language"
)

// editTranscription handles provider, credentials, model, language and timeout.
func editTranscription(cfg *config.Config) error {
	selectedProvider := cfg.Transcription.Provider
	if selectedProvider == "" {
		selectedProvider = "openai"
	}

	providerDesc := "Choose which service to use for speech-to-text"
	if cfg.Transcription.Provider != "" {
		providerDesc = fmt.Sprintf("Currently: %s", cfg.Transcription.Provider)
	}

	providerForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transcription Provider").
				Description(providerDesc).
				Options(providerOptions()...).
				Value(&selectedProvider),
		),
	).WithTheme(getTheme())

	if err := providerForm.Run(); err != nil {
		return err
	}

	// Switching provider invalidates the model and the stored key.
	apiKey := cfg.Transcription.APIKey
	selectedModel := cfg.Transcription.Model
	if selectedProvider != cfg.Transcription.Provider {
		apiKey = ""
		selectedModel = ""
	}
	modelOptions := modelOptionsFor(selectedProvider)
	if !hasOption(modelOptions, selectedModel) {
		selectedModel = modelOptions[0].Value
	}

	lang := cfg.Transcription.Language
	timeout := cfg.Transcription.Timeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API Key").
				Description(apiKeyDescription(selectedProvider)).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewSelect[string]().
				Title("Transcription Model").
				Options(modelOptions...).
				Value(&selectedModel),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language").
				Description("Spoken language, or auto-detect per chunk").
				Options(languageOptions()...).
				Height(10).
				Value(&lang),
			huh.NewInput().
				Title("Request Timeout").
				Description("Upper bound for one chunk's transcription request, e.g. 30s. 0 disables it.").
				Placeholder("30s").
				Value(&timeout).
				Validate(validateTimeout),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	applyTranscription(cfg, selectedProvider, apiKey, selectedModel, lang, timeout)
	return nil
}

// applyTranscription copies validated form values into cfg.
func applyTranscription(cfg *config.Config, provider, apiKey, model, lang, timeout string) {
	cfg.Transcription.Provider = provider
	cfg.Transcription.APIKey = strings.TrimSpace(apiKey)
	cfg.Transcription.Model = model
	cfg.Transcription.Language = strings.TrimSpace(lang)
	if d, err := time.ParseDuration(strings.TrimSpace(timeout)); err == nil {
		cfg.Transcription.Timeout = d
	}
	if provider == "openai" && cfg.Transcription.Endpoint == "" {
		cfg.Transcription.Endpoint = config.DefaultConfig().Transcription.Endpoint
	}
}

func providerOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("OpenAI Whisper (HTTP)", "openai"),
		huh.NewOption("OpenAI Whisper (SDK)", "openai-sdk"),
		huh.NewOption("Groq Whisper", "groq"),
	}
}

func modelOptionsFor(provider string) []huh.Option[string] {
	switch provider {
	case "groq":
		return []huh.Option[string]{
			huh.NewOption("whisper-large-v3-turbo (faster)", "whisper-large-v3-turbo"),
			huh.NewOption("whisper-large-v3 (standard)", "whisper-large-v3"),
		}
	default:
		return []huh.Option[string]{
			huh.NewOption("whisper-1", "whisper-1"),
		}
	}
}

func hasOption(options []huh.Option[string], value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func apiKeyDescription(provider string) string {
	env := config.EnvVarForProvider(provider)
	if env == "" {
		return "Leave empty to keep the current key"
	}
	return fmt.Sprintf("Leave empty to read %s from the environment", env)
}

func languageOptions() []huh.Option[string] {
	options := []huh.Option[string]{huh.NewOption(language.Auto.Name, language.Auto.Code)}
	for _, l := range language.List() {
		options = append(options, huh.NewOption(language.Label(l.Code), l.Code))
	}
	return options
}

func validateTimeout(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a duration like 30s")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
