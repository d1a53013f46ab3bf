package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leonardotrapani/livescribe/internal/audio"
)

// ErrDeviceUnavailable is returned when the microphone cannot be acquired.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

// Source opens exclusive microphone streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture. Frames is closed when capture ends; Close
// releases the device and blocks until the capture goroutine has exited.
type Stream interface {
	Frames() <-chan AudioFrame
	Err() <-chan error
	Close() error
}

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        8192,
		Device:            "",
		ChannelBufferSize: 30,
	}
}

// AudioFormat reports the PCM layout pw-record will produce for this config.
func (c Config) AudioFormat() audio.Format {
	return audio.Format{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		BitDepth:   16,
	}
}

// Recorder captures the default (or configured) PipeWire source through
// pw-record. Only one stream may be open at a time.
type Recorder struct {
	config    Config
	recording atomic.Bool

	command string
	probe   func(ctx context.Context) error
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{
		config:  config,
		command: "pw-record",
		probe:   CheckPipeWireAvailable,
	}
}

func (r *Recorder) Open(ctx context.Context) (Stream, error) {
	if err := r.validateConfig(); err != nil {
		return nil, err
	}

	if !r.recording.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: already recording", ErrDeviceUnavailable)
	}

	s, err := r.start(ctx)
	if err != nil {
		r.recording.Store(false)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return s, nil
}

func (r *Recorder) start(ctx context.Context) (*stream, error) {
	if err := r.probe(ctx); err != nil {
		return nil, fmt.Errorf("PipeWire not available: %w", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(captureCtx, r.command, r.buildPwRecordArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", r.command, err)
	}

	s := &stream{
		cmd:    cmd,
		cancel: cancel,
		frames: make(chan AudioFrame, r.config.ChannelBufferSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	// Log stderr lines to aid diagnostics.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("Recording stderr: %s", scanner.Text())
		}
	}()

	go r.captureLoop(captureCtx, s, stdout)

	return s, nil
}

func (r *Recorder) captureLoop(ctx context.Context, s *stream, stdout io.Reader) {
	defer func() {
		close(s.frames)
		_ = s.cmd.Wait()
		close(s.errs)
		r.recording.Store(false)
		close(s.done)
	}()

	buffer := make([]byte, r.config.BufferSize)
	var sentCount int

	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			frameData := make([]byte, n)
			copy(frameData, buffer[:n])

			select {
			case s.frames <- AudioFrame{Data: frameData, Timestamp: time.Now()}:
				sentCount++
			case <-ctx.Done():
				log.Printf("Recording: capture stopped after %d frames", sentCount)
				return
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				log.Printf("Recording: capture ended after %d frames", sentCount)
				return
			}
			s.emitErr(fmt.Errorf("read audio: %w", readErr))
			return
		}
	}
}

func (r *Recorder) buildPwRecordArgs() []string {
	args := []string{
		"--format", r.config.Format,
		"--rate", strconv.Itoa(r.config.SampleRate),
		"--channels", strconv.Itoa(r.config.Channels),
		"-", // stdout
	}
	if r.config.Device != "" {
		args = append(args, "--target", r.config.Device)
	}
	return args
}

func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	// Use a short timeout to avoid hangs on misconfigured systems.
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", r.config.BufferSize)
	}
	if r.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", r.config.ChannelBufferSize)
	}
	if r.config.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	// For s16, sample frame size is 2 bytes per sample per channel.
	if r.config.Format == "s16" {
		frameBytes := 2 * r.config.Channels
		if r.config.BufferSize%frameBytes != 0 {
			log.Printf("Recording: BufferSize %d not aligned to frame size %d; audio frames may split",
				r.config.BufferSize, frameBytes)
		}
	}
	return nil
}

type stream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc

	frames chan AudioFrame
	errs   chan error
	done   chan struct{}

	closeOnce sync.Once
}

func (s *stream) Frames() <-chan AudioFrame { return s.frames }

func (s *stream) Err() <-chan error { return s.errs }

func (s *stream) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

func (s *stream) emitErr(err error) {
	select {
	case s.errs <- err:
	default:
		// Best-effort; avoid blocking
	}
	log.Printf("Recording error: %v", err)
}
