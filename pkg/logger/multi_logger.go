package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategorySession LogCategory = "session" // Session lifecycle events (JSON)
	CategoryError   LogCategory = "error"   // Application errors (JSON)
)

// MultiLogger writes session history and application errors to separate
// daily JSON files. Progress events are not logged here.
type MultiLogger struct {
	loggers map[LogCategory]*zap.Logger
	writers []*dailyWriter
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string           // debug, info, warn, error
	LogsDir string           // Directory for log files
	Now     func() time.Time // picks the daily file; defaults to time.Now
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	ml := &MultiLogger{loggers: make(map[LogCategory]*zap.Logger)}
	levels := map[LogCategory]zapcore.Level{
		CategorySession: level,
		CategoryError:   zapcore.ErrorLevel,
	}
	for category, lvl := range levels {
		w := &dailyWriter{dir: config.LogsDir, category: category, now: config.Now}
		if err := w.rotate(); err != nil {
			ml.Close()
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.writers = append(ml.writers, w)
		ml.loggers[category] = zap.New(zapcore.NewCore(jsonEncoder(), w, lvl))
	}
	return ml, nil
}

func jsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.CallerKey = ""
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns the structured logger for a category, falling back to
// the error logger
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.GetLogger(CategoryError).Error(msg, fields...)
}

// LogSessionEvent logs a session lifecycle event with structured data
func (ml *MultiLogger) LogSessionEvent(event string, fields ...zap.Field) {
	ml.GetLogger(CategorySession).Info(event, fields...)
}

// Close flushes all loggers and closes their files
func (ml *MultiLogger) Close() error {
	var lastErr error
	for _, logger := range ml.loggers {
		logger.Sync()
	}
	for _, w := range ml.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// dailyWriter appends to <category>-YYYYMMDD.log and switches files when
// the date changes, so a long-running server keeps LogReader's layout
type dailyWriter struct {
	dir      string
	category LogCategory
	now      func() time.Time

	mu   sync.Mutex
	date string
	file *os.File
}

func (w *dailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateLocked(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *dailyWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *dailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *dailyWriter) rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *dailyWriter) rotateLocked() error {
	date := w.now().Format("20060102")
	if w.file != nil && date == w.date {
		return nil
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.category, date))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if w.file != nil {
		w.file.Close()
	}
	w.file = f
	w.date = date
	return nil
}
