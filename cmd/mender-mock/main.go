package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/menderapi/internal/mockserver"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("mender-mock exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ─────────────────────────────────────────────────────────
	viper.SetConfigName("mender-mock")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mock.addr", ":8080")
	viper.SetDefault("mock.devices_file", "")
	viper.SetDefault("mock.users", []string{"admin@example.com:admin"})
	viper.SetDefault("mock.signing_key", "")
	viper.SetDefault("mock.token_ttl_hours", 24)
	viper.SetDefault("mock.allow_basic_inventory", false)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	users, err := parseUsers(viper.GetStringSlice("mock.users"))
	if err != nil {
		return err
	}

	devices := mockserver.SampleDevices()
	if path := viper.GetString("mock.devices_file"); path != "" {
		if devices, err = mockserver.LoadDevices(path); err != nil {
			return err
		}
	}

	// ── Mock server ───────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	srv, err := mockserver.New(mockserver.Config{
		Users:               users,
		Devices:             devices,
		SigningKey:          []byte(viper.GetString("mock.signing_key")),
		TokenTTL:            time.Duration(viper.GetInt("mock.token_ttl_hours")) * time.Hour,
		AllowBasicInventory: viper.GetBool("mock.allow_basic_inventory"),
	}, logger)
	if err != nil {
		return fmt.Errorf("build mock server: %w", err)
	}

	addr := viper.GetString("mock.addr")
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("mender-mock listening",
			zap.String("addr", addr),
			zap.Int("users", len(users)),
			zap.Int("devices", len(devices)),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-quit:
	}
	logger.Info("shutting down mender-mock...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown", zap.Error(err))
	}

	logger.Info("mender-mock stopped",
		zap.Int64("logins", srv.Logins()),
		zap.Int64("inventory_requests", srv.InventoryRequests()),
	)
	return nil
}

// parseUsers reads "email:password" entries.
func parseUsers(entries []string) (map[string]string, error) {
	users := make(map[string]string, len(entries))
	for _, e := range entries {
		email, password, ok := strings.Cut(e, ":")
		if !ok || email == "" || password == "" {
			return nil, fmt.Errorf("invalid mock.users entry %q: want email:password", e)
		}
		users[email] = password
	}
	if len(users) == 0 {
		return nil, errors.New("mock.users: at least one user is required")
	}
	return users, nil
}
