package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.Mutex
	root *zap.Logger
)

func defaultLevel() zapcore.Level {
	switch strings.ToLower(os.Getenv("GOLOG_LOG_LEVEL")) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func rootLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(defaultLevel())
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			l = zap.NewNop()
		}
		root = l
	}
	return root
}

// Logger returns a named sugared logger; one per package by convention.
func Logger(name string) *zap.SugaredLogger {
	return rootLogger().Named(name).Sugar()
}

// SetLogger replaces the process-wide root logger; tests use this to silence
// output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
}
