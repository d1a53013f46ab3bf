package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const DefaultTimeout = 3 * time.Second

var ErrEmpty = errors.New("nothing to copy")

// Clipboard copies text to the Wayland clipboard through wl-copy.
type Clipboard struct {
	Command string
	Timeout time.Duration
}

func New() *Clipboard {
	return &Clipboard{Command: "wl-copy", Timeout: DefaultTimeout}
}

func (c *Clipboard) command() string {
	if c.Command == "" {
		return "wl-copy"
	}
	return c.Command
}

// Available reports whether the copy command can be found.
func (c *Clipboard) Available() error {
	if _, err := exec.LookPath(c.command()); err != nil {
		return fmt.Errorf("%s not found: %w (install wl-clipboard)", c.command(), err)
	}
	return nil
}

// Copy replaces the clipboard contents with text.
func (c *Clipboard) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	if err := c.Available(); err != nil {
		return err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command())
	cmd.Stdin = strings.NewReader(text)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", c.command(), err)
	}

	return nil
}
