package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const SockName = "control.sock"
const PidName = "livescribe.pid"
const ProtoVer = "0.3"

// One-byte commands, each sent followed by a newline.
const (
	CmdToggle        byte = 't'
	CmdStatus        byte = 's'
	CmdTranscript    byte = 'p' // settled transcript
	CmdTranscriptAll byte = 'a' // every populated slot
	CmdVersion       byte = 'v'
	CmdQuit          byte = 'q'
	CmdWait          byte = 'w' // "w <revision>": block until the transcript moves past it
)

const dialTimeout = 2 * time.Second

func runtimeDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "livescribe"), nil
}

// ~/.cache/livescribe/control.sock
func getSockPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/livescribe/livescribe.pid
func getPidPath() (string, error) {
	dir, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

type socketManager struct {
	path string
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.DialTimeout("unix", s.path, dialTimeout)
}

func (s *socketManager) send(ctx context.Context, cmd byte, arg string) (string, error) {
	c, err := s.dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	// Unblock the read below if ctx ends first.
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if _, err := io.WriteString(c, formatRequest(cmd, arg)); err != nil {
		return "", err
	}

	reply, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && ctx.Err() != nil {
		return "", ctx.Err()
	}
	return reply, err
}

func formatRequest(cmd byte, arg string) string {
	if arg == "" {
		return string(cmd) + "\n"
	}
	return string(cmd) + " " + arg + "\n"
}

// ParseRequest splits a request line into its command byte and argument.
func ParseRequest(line string) (cmd byte, arg string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return 0, "", false
	}
	return line[0], strings.TrimSpace(line[1:]), true
}

func defaultSocketManager() (*socketManager, error) {
	path, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: path}, nil
}

func Listen() (net.Listener, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.listen()
}

// SendCommand sends cmd to the running daemon and returns its one-line reply.
func SendCommand(cmd byte) (string, error) {
	return SendRequest(context.Background(), cmd, "")
}

// SendRequest is SendCommand with an argument. Cancelling ctx abandons the
// reply, which matters for CmdWait.
func SendRequest(ctx context.Context, cmd byte, arg string) (string, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return "", err
	}
	return sm.send(ctx, cmd, arg)
}

// ErrDaemon is wrapped by ParseReply for ERR replies.
var ErrDaemon = errors.New("daemon error")

// ErrShuttingDown is additionally wrapped when the daemon refused a command
// because it is stopping.
var ErrShuttingDown = errors.New("daemon shutting down")

// ShuttingDown is the ERR body sent while the daemon stops.
const ShuttingDown = "shutting_down"

// ParseReply splits a reply line into its kind (OK, STATUS, TRANSCRIPT) and
// body. ERR replies are returned as errors wrapping ErrDaemon.
func ParseReply(line string) (kind, body string, err error) {
	line = strings.TrimRight(line, "\n")
	kind, body, _ = strings.Cut(line, " ")
	if kind == "ERR" {
		if body == ShuttingDown {
			return kind, body, fmt.Errorf("%w: %w", ErrDaemon, ErrShuttingDown)
		}
		return kind, body, fmt.Errorf("%w: %s", ErrDaemon, body)
	}
	if kind == "" {
		return "", "", fmt.Errorf("%w: empty reply", ErrDaemon)
	}
	return kind, body, nil
}

// ParseFields parses "key=value key=value" reply bodies.
func ParseFields(body string) map[string]string {
	fields := make(map[string]string)
	for _, f := range strings.Fields(body) {
		if k, v, ok := strings.Cut(f, "="); ok {
			fields[k] = v
		}
	}
	return fields
}

type pidManager struct {
	path string
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

// checkExisting fails if the pid file names a live process. Stale or
// unreadable pid files are removed.
func (p *pidManager) checkExisting() error {
	pidData, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || !p.isProcessAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func defaultPidManager() (*pidManager, error) {
	path, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: path}, nil
}

func CheckExistingDaemon() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.remove()
}
