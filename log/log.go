package log

import (
	"io"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/verdel/torrent-telegram-bot/config"
)

const FileName = "torrent-telegram-bot.log"

// Load configures the global zerolog logger: colored console output plus,
// when a log path is configured, a rotated file sink.
func Load(config *config.Log) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if config.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	console := zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		TimeFormat: time.RFC3339,
	}

	writers := []io.Writer{console}
	if config.Path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(config.Path, FileName),
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().Timestamp().Logger()
}
