package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/styler/internal/telegram"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (a *app) newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram front end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBot(cmd.Context())
		},
	}
}

func (a *app) runBot(ctx context.Context) error {
	if a.cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is not set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, engine, err := a.loadPipeline()
	if err != nil {
		return err
	}
	defer engine.Close()

	b, err := bot.New(a.cfg.Telegram.BotToken, bot.WithDefaultHandler(noOpHandler))
	if err != nil {
		return err
	}

	h := telegram.NewHandler(b, p, telegram.Options{
		Command:          telegram.DefaultCommand,
		Timeout:          a.cfg.Telegram.Timeout,
		MaxDownloadBytes: a.cfg.Download.MaxBytes,
		MaxPixels:        a.cfg.Pipeline.MaxPixels,
		AllowedChatIDs:   a.cfg.Telegram.AllowedChatIDs,
		Defaults:         a.cfg.Pipeline.Defaults(),
	})

	b.RegisterHandler(bot.HandlerTypeMessageText, "/", bot.MatchTypePrefix, h.Handle)
	b.RegisterHandler(bot.HandlerTypePhotoCaption, "/", bot.MatchTypePrefix, h.Handle)

	log.Info().Int("allowedChats", len(a.cfg.Telegram.AllowedChatIDs)).Msg("bot listening")
	b.Start(ctx)

	return nil
}

func noOpHandler(_ context.Context, _ *bot.Bot, _ *models.Update) {}
