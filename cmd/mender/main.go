package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmerrifield20/menderapi/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string

	// logger and session are set up by the commands and torn down in main.
	logger  = zap.NewNop()
	session *client.Session
)

func main() {
	err := rootCmd.Execute()

	teardown(os.Stderr, session, viper.GetBool("stats"), err)
	_ = logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// teardown prints the end-of-run report. Without a session only the call
// total survives, and only a failed login carries it.
func teardown(w io.Writer, s *client.Session, stats bool, err error) {
	if s != nil {
		if closeErr := s.Close(w); closeErr != nil {
			logger.Warn("session teardown", zap.Error(closeErr))
		}
		return
	}
	var authErr *client.AuthError
	if stats && errors.As(err, &authErr) {
		client.WriteCallTotal(w, authErr.Calls)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mender",
	Short: "Command-line tools for the Mender device-management API",
	Long: `mender lists devices in a Mender inventory, maps hostnames to device IDs,
and opens terminals or fetches files on devices through mender-cli.

A token saved in the JWT environment variable is reused; otherwise the
password is read from --password or prompted for, and the token obtained
at login is printed at the end so it can be exported.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ~/.mender/config.yaml)")
	pf.String("server", client.DefaultServer, "URL of the Mender server to use")
	pf.String("username", "", "Email address of the user to connect to the Mender server")
	pf.String("password", "", "Password used to log into the Mender server")
	pf.String("jwt", "", "The JWT to use to connect to the Mender server (default $JWT)")
	pf.Bool("stats", false, "Print statistics at the end of invocation")
	pf.String("log-level", "info", "Log level: debug, info, warn, or error")
	pf.String("mender-cli", client.DefaultHelper, "Path of the mender-cli helper")
	pf.Float64("rate-limit", 0, "Maximum API requests per second; 0 disables limiting")

	for key, flag := range map[string]string{
		"server":         "server",
		"username":       "username",
		"password":       "password",
		"jwt":            "jwt",
		"stats":          "stats",
		"log_level":      "log-level",
		"mender_cli":     "mender-cli",
		"rate_limit_rps": "rate-limit",
	} {
		_ = viper.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(hostnameToIDCmd)
	rootCmd.AddCommand(terminalCmd)
	rootCmd.AddCommand(catFileCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and environment and builds the logger.
// Flags win over environment, environment over the config file.
func loadConfig(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.AddConfigPath(home + "/.mender")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("MENDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("jwt", client.TokenEnv)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	l, err := newLogger(viper.GetString("log_level"))
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// newLogger returns a console logger on stderr without timestamps.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.TimeKey = ""
	return cfg.Build()
}

// openSession authenticates against the configured server. The session is
// closed by main once the command has finished.
func openSession(ctx context.Context) (*client.Session, error) {
	username := viper.GetString("username")
	token := viper.GetString("jwt")
	if token == "" && username == "" {
		return nil, fmt.Errorf("--username is required unless a token is supplied with --jwt or $%s", client.TokenEnv)
	}

	opts := []client.Option{
		client.WithCredentials(client.ResolveSource(token, viper.GetString("password"), client.Prompt{})),
		client.WithLogger(logger),
		client.WithLauncher(client.ExecLauncher{Path: viper.GetString("mender_cli")}),
	}
	if rps := viper.GetFloat64("rate_limit_rps"); rps > 0 {
		opts = append(opts, client.WithRateLimit(rps, 1))
	}

	c, err := client.New(ctx, viper.GetString("server"), username, opts...)
	if err != nil {
		return nil, err
	}
	session = client.NewSession(c, viper.GetBool("stats"))
	return session, nil
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mender CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mender %s\n", version)
	},
}
