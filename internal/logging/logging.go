// Package logging builds the zap loggers used by the CLI and by callers
// that want the engine's default log format.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for file output.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// Redacted replaces the value of sensitive fields.
const Redacted = "[REDACTED]"

// sensitiveFields are field keys whose values never reach a log sink.
var sensitiveFields = map[string]bool{
	"key":           true,
	"crypto_key":    true,
	"token":         true,
	"auth":          true,
	"authorization": true,
	"api_key":       true,
	"apikey":        true,
	"grant_token":   true,
	"passphrase":    true,
	"condition":     true,
	"pin":           true,
	"secret":        true,
}

// Config selects the log format and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	// File, when set, receives the log instead of stderr and is rotated.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds a logger from cfg. Sensitive fields are redacted.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		l, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}

	var sink io.Writer = os.Stderr
	if cfg.File != "" {
		sink = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
	}

	return NewWithWriter(cfg.Format, level, zapcore.AddSync(sink)), nil
}

// NewWithWriter builds a redacting logger writing to ws.
func NewWithWriter(format string, level zapcore.Level, ws zapcore.WriteSyncer) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level))
	return zap.New(&redactCore{Core: core})
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// redactCore replaces sensitive field values before they are encoded.
type redactCore struct {
	zapcore.Core
}

func (c *redactCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactCore{Core: c.Core.With(redact(fields))}
}

func (c *redactCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redact(fields))
}

func redact(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if !sensitiveFields[strings.ToLower(f.Key)] {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, Redacted)
	}
	if out == nil {
		return fields
	}
	return out
}
