package client_test

import (
	"context"
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/jmerrifield20/menderapi/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLauncher records its invocation and what the token file held.
type fakeLauncher struct {
	server    string
	tokenFile string
	args      []string
	token     string
	mode      os.FileMode
	err       error
}

func (f *fakeLauncher) Launch(_ context.Context, server, tokenFile string, args ...string) error {
	f.server, f.tokenFile, f.args = server, tokenFile, args
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return err
	}
	f.token = string(data)
	if info, err := os.Stat(tokenFile); err == nil {
		f.mode = info.Mode().Perm()
	}
	return f.err
}

func TestOpenTerminal(t *testing.T) {
	s := newStubServer(t)
	launcher := &fakeLauncher{}
	c := newTokenClient(t, s, client.WithLauncher(launcher), client.WithTokenDir(t.TempDir()))

	require.NoError(t, c.OpenTerminal(context.Background(), "dev-id-1"))

	assert.Equal(t, s.URL, launcher.server)
	assert.Equal(t, []string{"terminal", "dev-id-1"}, launcher.args)
	assert.Equal(t, stubToken, launcher.token)
	assert.NotContains(t, launcher.args, stubToken, "token must be passed by file only")
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), launcher.mode)
	}

	_, err := os.Stat(launcher.tokenFile)
	assert.True(t, errors.Is(err, os.ErrNotExist), "token file must be removed after the helper exits")
}

func TestOpenTerminal_HelperFailureStillRemovesTokenFile(t *testing.T) {
	s := newStubServer(t)
	boom := errors.New("exit status 1")
	launcher := &fakeLauncher{err: boom}
	c := newTokenClient(t, s, client.WithLauncher(launcher), client.WithTokenDir(t.TempDir()))

	err := c.OpenTerminal(context.Background(), "dev-id-1")
	require.ErrorIs(t, err, boom)

	_, statErr := os.Stat(launcher.tokenFile)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestOpenTerminal_UniqueTokenFiles(t *testing.T) {
	s := newStubServer(t)
	launcher := &fakeLauncher{}
	c := newTokenClient(t, s, client.WithLauncher(launcher), client.WithTokenDir(t.TempDir()))

	require.NoError(t, c.OpenTerminal(context.Background(), "a"))
	first := launcher.tokenFile
	require.NoError(t, c.OpenTerminal(context.Background(), "b"))
	assert.NotEqual(t, first, launcher.tokenFile)
}

func TestOpenTerminal_MissingTokenDir(t *testing.T) {
	s := newStubServer(t)
	launcher := &fakeLauncher{}
	c := newTokenClient(t, s, client.WithLauncher(launcher), client.WithTokenDir(t.TempDir()+"/missing"))

	err := c.OpenTerminal(context.Background(), "a")
	require.Error(t, err)
	assert.Empty(t, launcher.tokenFile, "helper must not run without a token file")
}

func TestFetchFile(t *testing.T) {
	s := newStubServer(t)
	launcher := &fakeLauncher{}
	c := newTokenClient(t, s, client.WithLauncher(launcher), client.WithTokenDir(t.TempDir()))

	require.NoError(t, c.FetchFile(context.Background(), "dev-id-1", "/etc/hostname", "/tmp/out"))
	assert.Equal(t, []string{"cp", "dev-id-1:/etc/hostname", "/tmp/out"}, launcher.args)

	_, err := os.Stat(launcher.tokenFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExecLauncher_ReturnsHelperError(t *testing.T) {
	l := client.ExecLauncher{Path: "/nonexistent/mender-cli"}
	err := l.Launch(context.Background(), "https://example.com", "/tmp/token", "terminal", "x")
	assert.Error(t, err)
}
