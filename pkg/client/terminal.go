package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// DefaultHelper is the external tool used for terminals and file transfer.
const DefaultHelper = "mender-cli"

// Launcher runs the external terminal helper. tokenFile is the path of a
// file holding the bearer token; the token itself never appears on the
// command line.
type Launcher interface {
	Launch(ctx context.Context, server, tokenFile string, args ...string) error
}

// ExecLauncher runs mender-cli as a child process attached to the caller's
// terminal and blocks until it exits.
type ExecLauncher struct {
	Path   string // defaults to DefaultHelper, looked up on PATH
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Launch runs `<path> --server <server> --token <tokenFile> <args...>`. The
// child's exit status is returned uninterpreted.
func (l ExecLauncher) Launch(ctx context.Context, server, tokenFile string, args ...string) error {
	path := l.Path
	if path == "" {
		path = DefaultHelper
	}
	argv := append([]string{"--server", server, "--token", tokenFile}, args...)

	cmd := exec.CommandContext(ctx, path, argv...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = l.Stdin, l.Stdout, l.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// OpenTerminal starts an interactive remote shell on deviceID and blocks
// until the helper exits.
func (c *Client) OpenTerminal(ctx context.Context, deviceID string) error {
	return c.withTokenFile(func(tokenFile string) error {
		return c.launcher.Launch(ctx, c.server, tokenFile, "terminal", deviceID)
	})
}

// FetchFile copies remotePath on deviceID to localPath on this machine.
func (c *Client) FetchFile(ctx context.Context, deviceID, remotePath, localPath string) error {
	return c.withTokenFile(func(tokenFile string) error {
		return c.launcher.Launch(ctx, c.server, tokenFile, "cp", deviceID+":"+remotePath, localPath)
	})
}

// withTokenFile writes the token to a freshly created temp file, runs fn with
// its path, and removes the file however fn ends.
func (c *Client) withTokenFile(fn func(tokenFile string) error) (err error) {
	token, _ := c.Token()

	// CreateTemp opens with O_EXCL and mode 0600.
	f, err := os.CreateTemp(c.tokenDir, "mender-jwt-*")
	if err != nil {
		return fmt.Errorf("create token file: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove token file: %w", rmErr))
		}
	}()

	if _, err := f.WriteString(token); err != nil {
		f.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	return fn(f.Name())
}
