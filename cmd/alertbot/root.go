package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-token-alert-bot/internal/app"
	"github.com/tbourn/go-token-alert-bot/internal/config"
	"github.com/tbourn/go-token-alert-bot/internal/sysutil"
)

// cli carries what PersistentPreRunE prepared for the subcommands.
type cli struct {
	envFile string
	cfg     config.Config
	log     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "alertbot",
		Short: "Telegram bot that alerts when a token price drops below your threshold",
		Long: `alertbot tracks token prices from DEX Screener and messages Telegram
users when a token they subscribed to trades below their alert price.

Configuration is read from the environment, optionally seeded from a .env file.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		RunE:              c.run,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "load environment from this file (default: .env when present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Serve the bot, the refresh scheduler and the ops API",
			RunE:  c.run,
		},
		&cobra.Command{
			Use:   "refresh",
			Short: "Run one refresh-and-notify cycle and exit",
			RunE:  c.refresh,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema and exit",
			RunE:  c.migrate,
		},
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := loadEnv(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	c.cfg = cfg
	c.log = sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr).
		With().Str("version", version).Logger()
	return nil
}

// loadEnv loads path, or ./.env when path is empty and the file exists.
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (c *cli) build(ctx context.Context) (*app.App, error) {
	if err := c.cfg.RequireBotToken(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	api, err := tgbotapi.NewBotAPI(c.cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	c.log.Info().Str("bot", api.Self.UserName).Msg("telegram authorized")
	return app.New(ctx, c.cfg, api, c.log, version)
}

func (c *cli) run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := c.build(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.Close(context.Background())

	if err := a.Run(ctx); err != nil {
		c.log.Error().Err(err).Msg("alert bot failed")
		return err
	}
	return nil
}

func (c *cli) refresh(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := c.build(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.Close(context.Background())

	rep, err := a.RefreshOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "tokens=%d refreshed=%d failed=%d notified=%d notify_failed=%d duration=%s\n",
		rep.Tokens, rep.Refreshed, rep.Failed, rep.Notified, rep.NotifyFailed, rep.Duration)
	return err
}

func (c *cli) migrate(cmd *cobra.Command, _ []string) error {
	db, err := app.OpenDB(c.cfg)
	if err != nil {
		c.log.Error().Err(err).Msg("migration failed")
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	c.log.Info().Str("driver", c.cfg.DB.Driver).Msg("schema up to date")
	return nil
}
