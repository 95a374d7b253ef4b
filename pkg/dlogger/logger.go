// Package dlogger builds the zap loggers used by profilestore components.
package dlogger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"

	// LogLevelNone sets logger to no logging
	LogLevelNone = "none"

	// EncodingJSON produces structured JSON logs (default)
	EncodingJSON = "json"

	// EncodingConsole produces human readable logs
	EncodingConsole = "console"
)

// Option tunes the logger configuration
type Option func(*zap.Config)

// Encoding selects the log encoding (json or console)
func Encoding(enc string) Option {
	return func(c *zap.Config) {
		if enc == "" {
			return
		}
		c.Encoding = enc
		if enc == EncodingConsole {
			c.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		}
	}
}

// Fields adds constant fields to every entry, e.g. the node identity
func Fields(fields map[string]interface{}) Option {
	return func(c *zap.Config) {
		if len(fields) == 0 {
			return
		}
		if c.InitialFields == nil {
			c.InitialFields = make(map[string]interface{}, len(fields))
		}
		for k, v := range fields {
			c.InitialFields[k] = v
		}
	}
}

// GetLogger returns a zap logger with the specified level
func GetLogger(logLevel string, opts ...Option) (*zap.Logger, error) {
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	for _, apply := range opts {
		apply(&zapConfig)
	}
	return zapConfig.Build()
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string, opts ...Option) *zap.Logger {
	l, err := GetLogger(logLevel, opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Named returns a child logger for some component, falling back to the default logger
func Named(l *zap.Logger, component string) *zap.Logger {
	if l == nil {
		l = MustGetLogger(LogLevelInfo)
	}
	return l.Named(component)
}
