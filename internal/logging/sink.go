package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

func consoleSink() *os.File {
	return os.Stderr
}

func fileSink(path string) (zapcore.WriteSyncer, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return zapcore.AddSync(f), f.Close, nil
}
