package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger logs to stdout and, when logFile is set, to a rotated file.
func newLogger(g *Globals) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if g.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	if g.LogFile == "" {
		return logger
	}
	if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
		logger.Warnf("cannot create log directory, logging to stdout only: %v", err)
		return logger
	}
	logRotator := &lumberjack.Logger{
		Filename:   g.LogFile,
		MaxSize:    200, // megabytes
		MaxBackups: 10,
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, logRotator))

	return logger
}
