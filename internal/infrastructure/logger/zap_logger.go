package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// Parse level
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)

	return config.Build()
}

// NewRunLogger builds a logger that writes to stderr and to a per-run file
// keyed by trading pair and start time, e.g. logs/BTCUSD_1693512345.log.
// The file is informational only; nothing reads it back.
func NewRunLogger(dir, symbol, level string, start time.Time) (*zap.Logger, string, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	// Symbols can contain separators (tBTC/USD style pairs).
	safe := strings.NewReplacer("/", "-", ":", "-").Replace(symbol)
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.log", safe, start.Unix()))

	config := zap.NewProductionConfig()
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)
	config.OutputPaths = []string{"stderr", path}
	config.ErrorOutputPaths = []string{"stderr"}

	log, err := config.Build()
	if err != nil {
		return nil, "", err
	}
	return log, path, nil
}
