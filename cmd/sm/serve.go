package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/scanmark/scanmark/internal/config"
	"github.com/scanmark/scanmark/internal/db"
	"github.com/scanmark/scanmark/internal/notify"
	"github.com/scanmark/scanmark/internal/notify/discord"
	"github.com/scanmark/scanmark/internal/notify/slack"
	"github.com/scanmark/scanmark/internal/server"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Scanmark API server",
		Long:  "Starts the HTTP API plus the background stale-claim sweeper and the progress digest poster.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "scanmark.yaml", "path to Scanmark config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}
	defer notifier.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	go server.SweepLoop(ctx, gormDB, cfg)
	go server.DigestLoop(ctx, gormDB, cfg, notifier)

	return server.Start(ctx, server.StartOpts{
		DB:       gormDB,
		Config:   cfg,
		Notifier: notifier,
		Out:      cmd.OutOrStdout(),
	})
}

// buildNotifier wires up every chat platform the config carries
// credentials for. No credentials means a notifier that posts nowhere.
func buildNotifier(cfg *config.Config) (*notify.Notifier, error) {
	var adapters []notify.Adapter

	if cfg.Notify.Slack.BotToken != "" {
		a, err := slack.New(slack.AdapterOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	if cfg.Notify.Discord.BotToken != "" {
		a, err := discord.New(discord.AdapterOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}

	return notify.New(adapters...), nil
}

// connectFromConfig loads the config file and opens the database it
// points at.
func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}
