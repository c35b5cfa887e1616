package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	tdauth "github.com/gotd/td/telegram/auth"

	"github.com/scipunch/editorhub/config"
)

// ClientRunner is a function that runs with an authenticated client
type ClientRunner func(ctx context.Context, client *telegram.Client) error

// RunWithAuth creates a Telegram client, authenticates it, and runs the provided function
func RunWithAuth(ctx context.Context, configDir string, creds config.TelegramCredentials, runner ClientRunner) error {
	sessionStorage := &session.FileStorage{
		Path: filepath.Join(configDir, "telegram-session.json"),
	}

	waiter := floodwait.NewWaiter().WithCallback(func(ctx context.Context, wait floodwait.FloodWait) {
		slog.Warn("telegram rate limit", "retry_after", wait.Duration)
	})

	// gotd logs through zap
	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	logger, err := zapCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build telegram logger with %w", err)
	}
	defer logger.Sync()

	client := telegram.NewClient(creds.AppID, creds.AppHash, telegram.Options{
		SessionStorage: sessionStorage,
		Logger:         logger,
	})

	flow := tdauth.NewFlow(
		newTerminalAuthenticator(creds.PhoneNumber),
		tdauth.SendCodeOptions{},
	)

	slog.Debug("starting telegram client connection")
	return waiter.Run(ctx, func(ctx context.Context) error {
		err := client.Run(ctx, func(ctx context.Context) error {
			if err := client.Auth().IfNecessary(ctx, flow); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			self, err := client.Self(ctx)
			if err != nil {
				return fmt.Errorf("failed to get self info: %w", err)
			}
			name := self.FirstName
			if self.Username != "" {
				name = fmt.Sprintf("%s (@%s)", name, self.Username)
			}
			slog.Debug("telegram authenticated", "as", name)

			return runner(ctx, client)
		})
		if err != nil {
			slog.Error("telegram client failed", "error", err)
		}
		return err
	})
}
