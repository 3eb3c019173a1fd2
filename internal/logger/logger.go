// Package logger provides the structured logger shared by the CLI,
// the worker pool, and the indexer: a zap tee of a console core for
// interactive runs and a rotated JSON file core for batch use.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the global logger instance.
var Log *zap.Logger

// SugaredLog is a sugared logger for printf-style call sites.
var SugaredLog *zap.SugaredLogger

// Initialize sets up the structured logger with file rotation.
// logLevel: "debug", "info", "warn", "error" (default: "info").
// logFile: path to log file (default: "soundmark.log").
func Initialize(logLevel string, logFile string) error {
	if logFile == "" {
		logFile = "soundmark.log"
	}
	if logLevel == "" {
		logLevel = "info"
	}

	level := parseLogLevel(logLevel)

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     7, // days
		Compress:   true,
	})

	consoleEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())

	jsonEncoderConfig := zap.NewProductionEncoderConfig()
	jsonEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(jsonEncoderConfig)

	consoleCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level)
	fileCore := zapcore.NewCore(jsonEncoder, fileWriter, level)

	core := zapcore.NewTee(consoleCore, fileCore)

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	SugaredLog = Log.Sugar()

	Log.Info("logger initialized", zap.String("level", logLevel), zap.String("file", logFile))
	return nil
}

// Close flushes the logger before shutdown.
func Close() error {
	if Log != nil {
		return Log.Sync()
	}
	return nil
}

func parseLogLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InfoWithFields logs an info message with structured fields.
func InfoWithFields(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

// Warn logs a warning message with structured fields.
func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

// WarnErr logs a warning with an attached error, if any, plus optional
// structured fields.
func WarnErr(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Log.Warn(msg, fields...)
}

// ErrorErr logs an error message with an attached error, if any, plus
// optional structured fields.
func ErrorErr(msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	Log.Error(msg, fields...)
}

// Error logs an error with structured fields.
func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

// DebugWithFields logs a debug message with structured fields.
func DebugWithFields(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}

// Infof provides printf-style logging for command-line output paths.
func Infof(format string, args ...interface{}) {
	SugaredLog.Infof(format, args...)
}

// Warnf provides printf-style warning logging.
func Warnf(format string, args ...interface{}) {
	SugaredLog.Warnf(format, args...)
}

// Errorf provides printf-style error logging.
func Errorf(format string, args ...interface{}) {
	SugaredLog.Errorf(format, args...)
}

// WithTrackID attaches a track identifier field.
func WithTrackID(id int) zap.Field {
	return zap.Int("track_id", id)
}

// WithPath attaches a file path field.
func WithPath(path string) zap.Field {
	return zap.String("path", path)
}

// WithWorker attaches a worker index field.
func WithWorker(id int) zap.Field {
	return zap.Int("worker", id)
}

// WithDuration attaches an elapsed-time field.
func WithDuration(d interface{}) zap.Field {
	return zap.Any("duration", d)
}

// WithCount attaches a generic count field (landmarks, postings, …).
func WithCount(n int) zap.Field {
	return zap.Int("count", n)
}
