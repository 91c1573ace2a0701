package obs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
)

// LogConfig selects the log level and sink.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"` // stdout or file
	File   string `mapstructure:"file"`
	// Rotation settings, only used with file output.
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// NewLogger builds a JSON zap logger from cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	var sink zapcore.WriteSyncer
	switch cfg.Output {
	case "", "stdout":
		sink = zapcore.AddSync(os.Stdout)
	case "file":
		if strings.TrimSpace(cfg.File) == "" {
			return nil, fmt.Errorf("log file path is required when output is file")
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 10),
			MaxAge:     orDefault(cfg.MaxAgeDays, 7),
			Compress:   true,
		})
	default:
		return nil, fmt.Errorf("unsupported log output %q", cfg.Output)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
	return zap.New(core), nil
}

// Logger returns the shared structured logger. It discards everything until
// SetLogger is called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the shared logger and returns a function restoring the
// previous one.
func SetLogger(l *zap.Logger) (restore func()) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
