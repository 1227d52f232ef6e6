package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(cfg LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if strings.EqualFold(cfg.Format, "json") {
		return zerolog.New(out).Level(level).With().Timestamp().Logger()
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}
