package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/jmerrifield20/menderapi/pkg/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// resolveTarget maps a hostname or device ID to one device ID. ok is false
// when no single device matched; that case is logged and is not an error.
func resolveTarget(ctx context.Context, c *client.Client, ref string) (id string, ok bool, err error) {
	id, err = c.ResolveDevice(ctx, ref)
	switch {
	case errors.Is(err, client.ErrNoMatchingDevice), errors.Is(err, client.ErrAmbiguousDevice):
		logger.Warn(err.Error(), zap.String("device", ref))
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return id, true, nil
}

// ── terminal ─────────────────────────────────────────────────────────────────

var terminalCmd = &cobra.Command{
	Use:   "terminal <hostname|device-id>",
	Short: "Open a remote terminal on a device",
	Long: `Open an interactive terminal on a device through mender-cli.

The device is looked up by hostname first and by ID second. The session
token is handed to mender-cli in a private temporary file that is removed
when the terminal closes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		id, ok, err := resolveTarget(cmd.Context(), s.Client, args[0])
		if err != nil || !ok {
			return err
		}
		return s.OpenTerminal(cmd.Context(), id)
	},
}

// ── cat-file ─────────────────────────────────────────────────────────────────

var catFileCmd = &cobra.Command{
	Use:   "cat-file <hostname|device-id> <path>",
	Short: "Print a file from a device",
	Long: `Copy <path> from a device with mender-cli and write it to standard output.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		id, ok, err := resolveTarget(cmd.Context(), s.Client, args[0])
		if err != nil || !ok {
			return err
		}
		return catFile(cmd.Context(), s.Client, id, args[1], cmd.OutOrStdout())
	},
}

// catFile fetches remotePath into a scratch directory and copies it to w.
func catFile(ctx context.Context, c *client.Client, deviceID, remotePath string, w io.Writer) error {
	dir, err := os.MkdirTemp("", "mender-cat-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	name := path.Base(remotePath)
	if name == "/" || name == "." {
		name = "file"
	}
	local := filepath.Join(dir, name)
	if err := c.FetchFile(ctx, deviceID, remotePath, local); err != nil {
		return err
	}

	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open fetched file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	return nil
}
