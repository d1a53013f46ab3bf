package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/livescribe/internal/bus"
	"github.com/leonardotrapani/livescribe/internal/chunker"
	"github.com/leonardotrapani/livescribe/internal/config"
	"github.com/leonardotrapani/livescribe/internal/metrics"
	"github.com/leonardotrapani/livescribe/internal/notify"
	"github.com/leonardotrapani/livescribe/internal/recording"
	"github.com/leonardotrapani/livescribe/internal/session"
	"github.com/leonardotrapani/livescribe/internal/transcriber"
	"github.com/leonardotrapani/livescribe/internal/transcript"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDrainTimeout = 30 * time.Second
	defaultWaitTimeout  = 25 * time.Second
	readTimeout         = 5 * time.Second
)

type Option func(*Daemon)

func WithNotifier(n notify.Notifier) Option {
	return func(d *Daemon) { d.notifier = n }
}

// WithMetrics records pipeline metrics into m and, if listen is not empty,
// serves them on listen.
func WithMetrics(m *metrics.Metrics, listen string) Option {
	return func(d *Daemon) {
		d.metrics = m
		d.metricsListen = listen
	}
}

// WithConfigManager reloads the transcription client and chunking interval
// whenever the config file changes. Running sessions are not affected.
func WithConfigManager(m *config.Manager) Option {
	return func(d *Daemon) { d.configManager = m }
}

func WithChunkerOptions(opts ...chunker.Option) Option {
	return func(d *Daemon) { d.chunkerOpts = append(d.chunkerOpts, opts...) }
}

// WithDrainTimeout bounds how long shutdown waits for in-flight transcriptions.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(d *Daemon) { d.drainTimeout = timeout }
}

// WithWaitTimeout bounds how long a wait request is held before the daemon
// answers with an unchanged revision.
func WithWaitTimeout(timeout time.Duration) Option {
	return func(d *Daemon) { d.waitTimeout = timeout }
}

type Daemon struct {
	notifier      notify.Notifier
	metrics       *metrics.Metrics
	metricsListen string
	configManager *config.Manager
	chunkerOpts   []chunker.Option
	drainTimeout  time.Duration
	waitTimeout   time.Duration

	// handlers tracks accepted connections; shutdown waits for them before
	// stopping the session so a late toggle cannot start a new one.
	handlers sync.WaitGroup

	// ctx ends the control loop; sessionCtx outlives it until in-flight
	// transcriptions have drained.
	ctx           context.Context
	cancel        context.CancelFunc
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	session *session.Controller
}

func New(source recording.Source, client session.Transcriber, chunking chunker.Config, opts ...Option) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	sessionCtx, sessionCancel := context.WithCancel(context.Background())

	d := &Daemon{
		notifier:      notify.Desktop{},
		drainTimeout:  defaultDrainTimeout,
		waitTimeout:   defaultWaitTimeout,
		ctx:           ctx,
		cancel:        cancel,
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notify.Nop{}
	}

	d.session = session.New(sessionCtx, source, client, transcript.NewAssembler(), chunking,
		session.WithNotifier(d.notifier),
		session.WithMetrics(d.metrics),
		session.WithChunkerOptions(d.chunkerOpts...),
	)

	if d.configManager != nil {
		d.configManager.OnChange(d.applyConfig)
	}
	return d
}

func (d *Daemon) Session() *session.Controller { return d.session }

func (d *Daemon) applyConfig(cfg *config.Config) {
	client, err := transcriber.New(cfg.ToTranscriberConfig())
	if err != nil {
		log.Printf("Daemon: keeping previous transcription settings: %v", err)
		return
	}
	d.session.Configure(client, cfg.ToChunkerConfig())
	log.Printf("Daemon: transcription settings updated (provider=%s, interval=%v); applied from the next session",
		cfg.Transcription.Provider, cfg.Chunking.Interval)
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(d.ctx)

	// Close the listener when the group is done
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		return nil
	})

	g.Go(func() error {
		return d.serve(gctx, ln)
	})

	if d.configManager != nil {
		g.Go(func() error {
			if err := d.configManager.StartWatching(gctx); err != nil {
				log.Printf("Daemon: config hot-reload disabled: %v", err)
				return nil
			}
			<-gctx.Done()
			d.configManager.Stop()
			return nil
		})
	}

	if d.metrics != nil && d.metricsListen != "" {
		g.Go(func() error {
			if err := d.metrics.Serve(gctx, d.metricsListen); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	log.Printf("Daemon started, listening on socket")
	err = g.Wait()

	d.shutdown()
	return err
}

func (d *Daemon) serve(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		d.handlers.Add(1)
		go func() {
			defer d.handlers.Done()
			d.handle(c)
		}()
	}
}

// shutdown stops any running session and gives in-flight transcriptions a
// chance to land before their context is cancelled.
func (d *Daemon) shutdown() {
	d.cancel()
	d.handlers.Wait()

	if err := d.session.Stop(); err != nil {
		log.Printf("Daemon: error stopping session: %v", err)
	}

	if n := d.session.InFlight(); n > 0 {
		log.Printf("Daemon: waiting for %d in-flight transcriptions", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	if err := d.session.Wait(ctx); err != nil {
		log.Printf("Daemon: abandoning %d in-flight transcriptions: %v", d.session.InFlight(), err)
	}
	d.sessionCancel()
}

// Stop asks Run to return.
func (d *Daemon) Stop() { d.cancel() }

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", oneLine(err.Error()))
		return
	}
	cmd, arg, ok := bus.ParseRequest(line)
	if !ok {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	if d.ctx.Err() != nil {
		fmt.Fprintf(c, "ERR %s\n", bus.ShuttingDown)
		return
	}

	switch cmd {
	case bus.CmdToggle:
		on, err := d.session.Toggle()
		if err != nil {
			if errors.Is(err, recording.ErrDeviceUnavailable) {
				fmt.Fprintf(c, "ERR device_unavailable: %s\n", oneLine(err.Error()))
				return
			}
			fmt.Fprintf(c, "ERR %s\n", oneLine(err.Error()))
			return
		}
		fmt.Fprintf(c, "STATUS recording=%t\n", on)
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS %s\n", formatSnapshot(d.session.Snapshot()))
	case bus.CmdTranscript:
		fmt.Fprintf(c, "TRANSCRIPT %s\n", oneLine(strings.Join(d.session.Transcript(), " ")))
	case bus.CmdTranscriptAll:
		fmt.Fprintf(c, "TRANSCRIPT %s\n", oneLine(strings.Join(d.session.Populated(), " ")))
	case bus.CmdWait:
		since, err := strconv.ParseUint(arg, 10, 64)
		if arg == "" {
			// No revision yet: report the current one immediately.
			since, err = d.session.Snapshot().Revision+1, nil
		}
		if err != nil {
			fmt.Fprintf(c, "ERR bad_revision=%q\n", arg)
			return
		}
		ctx, cancel := context.WithTimeout(d.ctx, d.waitTimeout)
		rev := d.session.WaitForChange(ctx, since)
		cancel()
		fmt.Fprintf(c, "STATUS rev=%d\n", rev)
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("Unknown command: %c", cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}

func formatSnapshot(s session.Snapshot) string {
	id := "-"
	if s.ID != uuid.Nil {
		id = s.ID.String()
	}
	started := "-"
	if !s.StartedAt.IsZero() {
		started = s.StartedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("status=%s session=%s started=%s chunks=%d inflight=%d filled=%d failed=%d pending=%d stale=%d rev=%d",
		s.State, id, started, s.NextSequence, s.InFlight,
		s.Transcript.Filled, s.Transcript.Failed, s.Transcript.Pending, s.Transcript.Stale, s.Revision)
}

// oneLine keeps replies on a single protocol line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
