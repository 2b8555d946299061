package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger records the advisor's decision trail: every request, every stage
// outcome, and the per-node reasoning lines, so an operator can reconstruct
// why a recommendation was made.
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// Request lifecycle
	LogRequestStarted(ctx context.Context, requestID, question string) error
	LogRequestCompleted(ctx context.Context, requestID, intent string, duration time.Duration) error
	LogRequestFailed(ctx context.Context, requestID string, err error) error

	// Pipeline stages
	LogStageCompleted(ctx context.Context, requestID, stage string, duration time.Duration, decisions []string) error
	LogStageFailed(ctx context.Context, requestID, stage string, err error) error

	// Outcomes
	LogAdviceEmitted(ctx context.Context, requestID, strategy, primary string) error
	LogReportEmitted(ctx context.Context, requestID string, nodeCount int) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit trail with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogRequestStarted logs when a new user request enters the pipeline
func (l *auditLogger) LogRequestStarted(ctx context.Context, requestID, question string) error {
	event := NewEvent(EventRequestStarted).
		WithCorrelationID(requestID).
		WithResult(ResultSuccess).
		WithMetadata("question", question).
		WithDescription(fmt.Sprintf("Request %s started", requestID))

	return l.Log(ctx, event)
}

// LogRequestCompleted logs when a request finishes end to end
func (l *auditLogger) LogRequestCompleted(ctx context.Context, requestID, intent string, duration time.Duration) error {
	event := NewEvent(EventRequestCompleted).
		WithCorrelationID(requestID).
		WithIntent(intent).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Request %s completed", requestID))

	return l.Log(ctx, event)
}

// LogRequestFailed logs when a request aborts
func (l *auditLogger) LogRequestFailed(ctx context.Context, requestID string, err error) error {
	event := NewEvent(EventRequestFailed).
		WithCorrelationID(requestID).
		WithError(err).
		WithDescription(fmt.Sprintf("Request %s failed", requestID))

	return l.Log(ctx, event)
}

// LogStageCompleted logs a finished pipeline stage with its decision lines
func (l *auditLogger) LogStageCompleted(ctx context.Context, requestID, stage string, duration time.Duration, decisions []string) error {
	event := NewEvent(EventStageCompleted).
		WithCorrelationID(requestID).
		WithStage(stage).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDecisions(decisions).
		WithDescription(fmt.Sprintf("Stage %s completed", stage))

	return l.Log(ctx, event)
}

// LogStageFailed logs a failed pipeline stage
func (l *auditLogger) LogStageFailed(ctx context.Context, requestID, stage string, err error) error {
	event := NewEvent(EventStageFailed).
		WithCorrelationID(requestID).
		WithStage(stage).
		WithError(err).
		WithDescription(fmt.Sprintf("Stage %s failed", stage))

	return l.Log(ctx, event)
}

// LogAdviceEmitted logs a final allocation recommendation
func (l *auditLogger) LogAdviceEmitted(ctx context.Context, requestID, strategy, primary string) error {
	event := NewEvent(EventAdviceEmitted).
		WithCorrelationID(requestID).
		WithResult(ResultSuccess).
		WithMetadata("strategy", strategy).
		WithMetadata("primary", primary).
		WithDescription(fmt.Sprintf("Advice emitted: %s (%s)", primary, strategy))

	return l.Log(ctx, event)
}

// LogReportEmitted logs a capability report
func (l *auditLogger) LogReportEmitted(ctx context.Context, requestID string, nodeCount int) error {
	event := NewEvent(EventReportEmitted).
		WithCorrelationID(requestID).
		WithResult(ResultSuccess).
		WithMetadata("node_count", nodeCount).
		WithDescription(fmt.Sprintf("Capability report emitted for %d nodes", nodeCount))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

type correlationKey struct{}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return uuid.NewString()
}
