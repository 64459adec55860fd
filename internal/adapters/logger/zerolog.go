package logger

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"klineforge/internal/ports"
)

// ZerologLogger implements ports.Logger with JSON output.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a JSON logger writing to w. Unknown levels fall
// back to info.
func NewZerologLogger(w io.Writer, level string) *ZerologLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &ZerologLogger{logger: zerolog.New(w).With().Timestamp().Logger().Level(lvl)}
}

func (l *ZerologLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logger.Debug().Fields(mergeFields(fields)).Msg(msg)
}

func (l *ZerologLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logger.Info().Fields(mergeFields(fields)).Msg(msg)
}

func (l *ZerologLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.logger.Warn().Fields(mergeFields(fields)).Msg(msg)
}

func (l *ZerologLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.logger.Error().Err(err).Fields(mergeFields(fields)).Msg(msg)
}

// New returns the logger for a LOG_FORMAT value: "text" or "json".
func New(format, level string, w io.Writer) (ports.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return NewStdLogger(w, ParseLevel(level)), nil
	case "json":
		return NewZerologLogger(w, level), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (use: text, json)", format)
	}
}
