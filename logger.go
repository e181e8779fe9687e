package jwksfetcher

import (
	"fmt"
	"log"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Logger is a leveled, structured logging interface. Messages are
// accompanied by alternating key/value pairs.
//
// *slog.Logger and hclog.Logger satisfy it as-is, and so does anything
// that go-retryablehttp accepts as a LeveledLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DefaultLogger is a simple logger that uses the standard library log package.
type DefaultLogger struct{}

func (l *DefaultLogger) Debug(msg string, kv ...any) { log.Print("DEBUG: " + msg + formatPairs(kv)) }
func (l *DefaultLogger) Info(msg string, kv ...any)  { log.Print("INFO: " + msg + formatPairs(kv)) }
func (l *DefaultLogger) Warn(msg string, kv ...any)  { log.Print("WARN: " + msg + formatPairs(kv)) }
func (l *DefaultLogger) Error(msg string, kv ...any) { log.Print("ERROR: " + msg + formatPairs(kv)) }

// formatPairs renders key/value pairs as " k=v k=v". A trailing key
// without a value is rendered with the value "MISSING".
func formatPairs(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		var v any = "MISSING"
		if i+1 < len(kv) {
			v = kv[i+1]
		}
		fmt.Fprintf(&b, " %v=%v", kv[i], v)
	}
	return b.String()
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}

// NewZapLogger returns a Logger adapter for zap.SugaredLogger.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	return &zapLoggerAdapter{l}
}

type zapLoggerAdapter struct{ l *zap.SugaredLogger }

func (z *zapLoggerAdapter) Debug(msg string, kv ...any) { z.l.Debugw(msg, kv...) }
func (z *zapLoggerAdapter) Info(msg string, kv ...any)  { z.l.Infow(msg, kv...) }
func (z *zapLoggerAdapter) Warn(msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z *zapLoggerAdapter) Error(msg string, kv ...any) { z.l.Errorw(msg, kv...) }

// NewZerologLogger returns a Logger adapter for zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLoggerAdapter{l}
}

type zerologLoggerAdapter struct{ l zerolog.Logger }

func (z *zerologLoggerAdapter) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }
func (z *zerologLoggerAdapter) Info(msg string, kv ...any)  { z.l.Info().Fields(kv).Msg(msg) }
func (z *zerologLoggerAdapter) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z *zerologLoggerAdapter) Error(msg string, kv ...any) { z.l.Error().Fields(kv).Msg(msg) }

// NewLogrusLogger returns a Logger adapter for logrus.FieldLogger.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusLoggerAdapter{l}
}

type logrusLoggerAdapter struct{ l logrus.FieldLogger }

func (l *logrusLoggerAdapter) Debug(msg string, kv ...any) { l.l.WithFields(logrusFields(kv)).Debug(msg) }
func (l *logrusLoggerAdapter) Info(msg string, kv ...any)  { l.l.WithFields(logrusFields(kv)).Info(msg) }
func (l *logrusLoggerAdapter) Warn(msg string, kv ...any)  { l.l.WithFields(logrusFields(kv)).Warn(msg) }
func (l *logrusLoggerAdapter) Error(msg string, kv ...any) { l.l.WithFields(logrusFields(kv)).Error(msg) }

func logrusFields(kv []any) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
