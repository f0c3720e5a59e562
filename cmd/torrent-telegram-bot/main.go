package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/verdel/torrent-telegram-bot/bot"
	"github.com/verdel/torrent-telegram-bot/config"
	"github.com/verdel/torrent-telegram-bot/engine"
	dlog "github.com/verdel/torrent-telegram-bot/log"
	"github.com/verdel/torrent-telegram-bot/notify"
	"github.com/verdel/torrent-telegram-bot/server"
	"github.com/verdel/torrent-telegram-bot/store"
	"github.com/verdel/torrent-telegram-bot/tracker"
)

const (
	configFlag = "config"
	debugFlag  = "debug"
)

func main() {
	app := &cli.App{
		Name:  "torrent-telegram-bot",
		Usage: "Telegram bot for managing torrents on a remote Transmission or qBittorrent daemon.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Value:   "./torrent-telegram-bot-data/config.yaml",
				EnvVars: []string{"TORRENT_BOT_CONFIG"},
				Usage:   "YAML file containing torrent-telegram-bot configuration.",
			},
			&cli.BoolFlag{
				Name:    debugFlag,
				Value:   false,
				EnvVars: []string{"TORRENT_BOT_DEBUG"},
				Usage:   "Enable debug logging.",
			},
		},

		Action: func(c *cli.Context) error {
			return load(c.String(configFlag), c.Bool(debugFlag))
		},

		HideHelpCommand: true,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("problem starting application")
	}
}

func load(configPath string, debug bool) error {
	ch := config.NewHandler(configPath)

	conf, err := ch.Get()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	if debug {
		conf.Log.Debug = true
	}
	dlog.Load(conf.Log)

	log.Info().Msg("starting torrent telegram bot")

	eng, err := newEngine(conf.Client)
	if err != nil {
		return fmt.Errorf("torrent client connection error: %w", err)
	}

	st, err := store.Open(conf.DB.Path)
	if err != nil {
		return fmt.Errorf("error opening ownership store: %w", err)
	}

	fanout := notify.New(conf.Telegram.AllowChat)
	tr := tracker.New(eng, st, conf.Telegram.AllowChat, conf.Client.Paths, fanout)

	b, err := bot.New(conf.Telegram.Token, tr, conf.Telegram.AllowChat, conf.Client.Paths)
	if err != nil {
		return fmt.Errorf("error starting bot: %w", err)
	}
	fanout.SetSender(b)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	server.Start(ctx, b, tr, eng, st,
		time.Duration(conf.Schedule.CheckPeriod)*time.Second, conf.HTTP)

	log.Info().Msg("closing ownership store...")
	if err := st.Close(); err != nil {
		log.Warn().Err(err).Msg("problem closing ownership store")
	}

	log.Info().Msg("exiting")
	return nil
}

func newEngine(c *config.Client) (engine.Engine, error) {
	timeout := time.Duration(c.Timeout) * time.Second

	// backend is selected once here; nothing downstream branches on it
	switch c.Type {
	case config.ClientTransmission:
		return engine.NewTransmission(c.Address, c.Port, c.User, c.Password, timeout)
	default:
		return engine.NewQBittorrent(c.Address, c.Port, c.User, c.Password, timeout)
	}
}
