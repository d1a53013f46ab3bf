package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/language"
)

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	writeSummary(os.Stdout, cfg)
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

func writeSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, StyleHeader.Render("Configuration Summary"))

	model := cfg.Transcription.Model
	if model == "" {
		model = "default"
	}
	fmt.Fprintf(w, "  %s %s (%s)\n", StyleLabel.Render("Transcription:"), cfg.Transcription.Provider, model)
	fmt.Fprintf(w, "  %s %s\n", StyleLabel.Render("API key:"), maskKey(cfg))

	fmt.Fprintf(w, "  %s %s\n", StyleLabel.Render("Language:"), language.Label(cfg.Transcription.Language))

	timeout := cfg.Transcription.Timeout.String()
	if cfg.Transcription.Timeout == 0 {
		timeout = "none"
	}
	fmt.Fprintf(w, "  %s %s\n", StyleLabel.Render("Timeout:"), timeout)
	fmt.Fprintf(w, "  %s every %s\n", StyleLabel.Render("Chunking:"), cfg.Chunking.Interval)

	if cfg.Notifications.Enabled {
		fmt.Fprintf(w, "  %s %s\n", StyleLabel.Render("Notifications:"), cfg.Notifications.Type)
	} else {
		fmt.Fprintf(w, "  %s disabled\n", StyleLabel.Render("Notifications:"))
	}

	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "  %s %s\n", StyleLabel.Render("Metrics:"), cfg.Metrics.Listen)
	} else {
		fmt.Fprintf(w, "  %s disabled\n", StyleLabel.Render("Metrics:"))
	}
}

func maskKey(cfg *config.Config) string {
	key := cfg.Transcription.APIKey
	switch {
	case key == "":
		if env := config.EnvVarForProvider(cfg.Transcription.Provider); env != "" {
			return "from $" + env
		}
		return "not set"
	case len(key) <= 8:
		return "********"
	default:
		return key[:4] + "…" + key[len(key)-4:]
	}
}
