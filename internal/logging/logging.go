// Package logging constructs the process-wide structured logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger that writes structured JSON to logFile and
// human-readable output to stderr, at the given level. An empty logFile
// disables the file sink.
func New(level, logFile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(consoleSink())), lvl),
	}

	if logFile != "" {
		sink, closeFn, err := fileSink(logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file %q: %w", logFile, err)
		}
		_ = closeFn // file stays open for process lifetime; OS reclaims on exit
		jsonEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEncoder, sink, lvl))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core, zap.AddCaller()), nil
}
