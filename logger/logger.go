// Package logger holds the process-wide zap logger and the field names shared
// by the stat core and its providers.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the global logger. It is a no-op until Initialize runs, so
// library code never needs a nil check.
var Logger = zap.NewNop().Sugar()

// Initialize replaces the global logger. verbosity is the CLI flag count
// (-v, -vv, ...), see VerbosityToLevel.
func Initialize(jsonOutput bool, verbosity int) error {
	l, err := New(os.Stderr, jsonOutput, verbosity)
	if err != nil {
		return err
	}
	Logger = l.Sugar()
	return nil
}

// New builds a logger writing to w. JSON output uses the production
// encoder; console output is colored and keeps stdout free for results.
func New(w io.Writer, jsonOutput bool, verbosity int) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(VerbosityToLevel(verbosity))

	var enc zapcore.Encoder
	if jsonOutput {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level)
	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if verbosity >= VerbosityDebug {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...), nil
}

// Cleanup flushes any buffered log entries
func Cleanup() {
	_ = Logger.Sync()
}

// Infow logs on the global logger
func Infow(msg string, keysAndValues ...interface{}) {
	Logger.Infow(msg, keysAndValues...)
}

// Warnw logs on the global logger
func Warnw(msg string, keysAndValues ...interface{}) {
	Logger.Warnw(msg, keysAndValues...)
}
