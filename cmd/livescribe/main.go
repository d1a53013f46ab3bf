package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/clipboard"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/daemon"
	"github.com/leonardotrapani/livescribe/internal/deps"
	"github.com/leonardotrapani/livescribe/internal/metrics"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
	"github.com/leonardotrapani/livescribe/internal/tui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "livescribe",
	Short:        "Near-real-time speech transcription for Wayland desktops",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		statusCmd(),
		transcriptCmd(),
		versionCmd(),
		stopCmd(),
		configureCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnv(envFile); err != nil {
				return err
			}
			d, err := newDaemon()
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with API keys (ignored if missing)")

	return cmd
}

// loadEnv reads API keys from a dotenv file without overriding variables
// that are already set.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	log.Printf("Loaded environment from %s", path)
	return nil
}

func newDaemon() (*daemon.Daemon, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := mgr.GetConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := transcriber.New(cfg.ToTranscriberConfig())
	if err != nil {
		return nil, err
	}

	opts := []daemon.Option{
		daemon.WithNotifier(notify.New(cfg.Notifications.Enabled, cfg.Notifications.Type)),
		daemon.WithConfigManager(mgr),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, daemon.WithMetrics(metrics.New(prometheus.NewRegistry()), cfg.Metrics.Listen))
	}

	if err := recording.CheckPipeWireAvailable(context.Background()); err != nil {
		log.Printf("Warning: %v", err)
	}

	return daemon.New(recording.NewRecorder(cfg.ToRecordingConfig()), client, cfg.ToChunkerConfig(), opts...), nil
}

// request sends cmd to the daemon and turns ERR replies into errors.
func request(cmd byte, action string) (string, string, error) {
	resp, err := bus.SendCommand(cmd)
	if err != nil {
		return "", "", fmt.Errorf("failed to %s: %w", action, err)
	}
	kind, body, err := bus.ParseReply(resp)
	if err != nil {
		return "", "", fmt.Errorf("failed to %s: %w", action, err)
	}
	return kind, body, nil
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle recording on/off",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, body, err := request(bus.CmdToggle, "toggle recording")
			if err != nil {
				return err
			}
			if bus.ParseFields(body)["recording"] == "true" {
				fmt.Println("Recording started")
			} else {
				fmt.Println("Recording stopped")
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current recording status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, body, err := request(bus.CmdStatus, "get status")
			if err != nil {
				return err
			}
			fmt.Print(formatStatus(bus.ParseFields(body)))
			return nil
		},
	}
}

func formatStatus(f map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status:     %s\n", f["status"])
	if f["session"] != "" && f["session"] != "-" {
		fmt.Fprintf(&b, "Session:    %s\n", f["session"])
		fmt.Fprintf(&b, "Started:    %s\n", f["started"])
	}
	fmt.Fprintf(&b, "Chunks:     %s\n", f["chunks"])
	fmt.Fprintf(&b, "In flight:  %s\n", f["inflight"])
	if f["filled"] != "" {
		fmt.Fprintf(&b, "Transcript: %s filled, %s failed, %s pending\n", f["filled"], f["failed"], f["pending"])
	}
	return b.String()
}

func transcriptCmd() *cobra.Command {
	var all, follow, copyText bool

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print the transcript of the current or last session",
		Long: `Print the transcript assembled so far.

By default only the settled prefix is printed: text stops at the first chunk
whose transcription is still pending. --all prints every chunk that has
arrived, in order, even if earlier ones are still outstanding.

--follow keeps printing the settled prefix as it grows. It cannot be
combined with --all, whose text changes in the middle rather than at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow && all {
				return errors.New("--follow cannot be combined with --all")
			}
			view := tui.NewTranscriptView(os.Stdout, terminalWidth())

			if !follow {
				which := bus.CmdTranscript
				if all {
					which = bus.CmdTranscriptAll
				}
				_, body, err := request(which, "get transcript")
				if err != nil {
					return err
				}
				view.Print(body)
				if copyText {
					if err := clipboard.New().Copy(cmd.Context(), body); err != nil {
						return fmt.Errorf("failed to copy transcript: %w", err)
					}
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return followTranscript(ctx, view)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include chunks that arrived ahead of pending ones")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new text until interrupted")
	cmd.Flags().BoolVar(&copyText, "copy", false, "also copy the transcript to the clipboard (wl-copy)")

	return cmd
}

// waitForChange long-polls the daemon until the transcript revision moves
// past since. An empty since returns the current revision at once.
func waitForChange(ctx context.Context, since string) (string, error) {
	resp, err := bus.SendRequest(ctx, bus.CmdWait, since)
	if err != nil {
		return "", err
	}
	_, body, err := bus.ParseReply(resp)
	if err != nil {
		return "", err
	}
	rev := bus.ParseFields(body)["rev"]
	if rev == "" {
		return "", fmt.Errorf("%w: wait reply without revision", bus.ErrDaemon)
	}
	return rev, nil
}

func followTranscript(ctx context.Context, view *tui.TranscriptView) error {
	if _, body, err := request(bus.CmdStatus, "get status"); err == nil {
		f := bus.ParseFields(body)
		fmt.Println(view.Header(f["status"] == "recording", f["session"]))
	}

	rev, err := waitForChange(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to follow transcript: %w", err)
	}

	var printed string
	for {
		// The revision is read before the text, so a change in between
		// wakes the next wait immediately.
		_, body, err := request(bus.CmdTranscript, "get transcript")
		if err == nil {
			printed = view.Update(printed, body)
			rev, err = waitForChange(ctx, rev)
		}
		switch {
		case ctx.Err() != nil:
			fmt.Println()
			return nil
		case errors.Is(err, bus.ErrDaemon) && !errors.Is(err, bus.ErrShuttingDown):
			fmt.Println()
			return err
		case err != nil:
			fmt.Println()
			view.Error("Daemon stopped, transcript ends here")
			return nil
		}
	}
}

func terminalWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		var n int
		if _, err := fmt.Sscanf(cols, "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return 80
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion)
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit)
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration editor for livescribe.
This will guide you through setting up:
- Transcription provider, API key, model and language
- Chunk interval
- Notification and metrics preferences`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration editor error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()

	showNextSteps()

	return nil
}

func showNextSteps() {
	serviceRunning := false
	if _, err := exec.Command("systemctl", "--user", "is-active", "--quiet", "livescribe.service").CombinedOutput(); err == nil {
		serviceRunning = true
	}

	fmt.Println("Next Steps:")
	if !serviceRunning {
		fmt.Println("1. Start the daemon: livescribe serve (or systemctl --user start livescribe.service)")
	} else {
		fmt.Println("1. A running daemon picks up the new settings from its next recording session")
	}
	fmt.Println("2. Start dictating: livescribe toggle")
	fmt.Println("3. Watch the transcript: livescribe transcript --follow")
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that external tools are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := deps.CheckAll()
			fmt.Print(formatDeps(statuses))
			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func formatDeps(statuses []deps.Status) string {
	var b strings.Builder
	for _, s := range statuses {
		mark := "[ ]"
		if s.Installed {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s (%s)", mark, s.Name, s.Purpose)
		if s.Version != "" {
			line += " - " + s.Version
		}
		if !s.Installed && !s.Required {
			line += " [optional]"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}
