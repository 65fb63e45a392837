package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// logger is the process logger. Handlers log through it directly; the
// extended diagnostics below go to their own files.
var logger = logrus.New()

// AppLogger provides the extended diagnostics of the server: request dumps,
// websocket traffic and database dumps, each in its own file under outputDir.
// Used by both the server and tests
type AppLogger struct {
	outputDir   string
	logRequests bool
	logDB       bool
	logWS       bool
	debug       bool
	files       []*os.File
	requestLog  *logrus.Logger
	dbLog       *logrus.Logger
	wsLog       *logrus.Logger
	mu          sync.Mutex
	requests    int
	wsMessages  int
}

// Global application logger (used by server)
var appLogger *AppLogger

// LogConfig holds logging configuration
type LogConfig struct {
	OutputDir   string
	LogRequests bool
	LogDB       bool
	LogWS       bool
	Debug       bool
}

// NewAppLogger creates a new application logger
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	al := &AppLogger{
		outputDir:   config.OutputDir,
		logRequests: config.LogRequests,
		logDB:       config.LogDB,
		logWS:       config.LogWS,
		debug:       config.Debug,
	}

	if al.outputDir == "" {
		return al, nil // No file logging
	}

	var err error
	if al.logRequests {
		if al.requestLog, err = al.open("requests.log"); err != nil {
			return nil, err
		}
	}
	if al.logDB {
		if al.dbLog, err = al.open("database.log"); err != nil {
			return nil, err
		}
	}
	if al.logWS {
		if al.wsLog, err = al.open("websocket.log"); err != nil {
			return nil, err
		}
	}
	return al, nil
}

func (al *AppLogger) open(name string) (*logrus.Logger, error) {
	path := filepath.Join(al.outputDir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		al.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	al.files = append(al.files, f)

	l := logrus.New()
	l.SetOutput(f)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	return l, nil
}

// InitAppLogger initializes the global application logger and the level of
// the process logger.
func InitAppLogger(config LogConfig) error {
	al, err := NewAppLogger(config)
	if err != nil {
		return err
	}
	if config.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	appLogger = al
	return nil
}

// Close closes all open log files
func (al *AppLogger) Close() {
	for _, f := range al.files {
		f.Close()
	}
	al.files = nil
}

// LogRequest logs an HTTP request and response
func (al *AppLogger) LogRequest(method, url string, reqBody []byte, status int, respBody []byte) {
	if al.requestLog == nil {
		return
	}

	al.mu.Lock()
	al.requests++
	n := al.requests
	al.mu.Unlock()

	if len(respBody) > 5000 {
		respBody = append(respBody[:5000:5000], fmt.Sprintf("... (truncated, %d bytes total)", len(respBody))...)
	}
	al.requestLog.WithFields(logrus.Fields{
		"n":      n,
		"method": method,
		"url":    url,
		"status": status,
	}).Infof("request=%s response=%s", reqBody, respBody)
}

// LogWebSocket logs a WebSocket message
func (al *AppLogger) LogWebSocket(direction, who, message string) {
	if al.wsLog == nil {
		return
	}

	al.mu.Lock()
	al.wsMessages++
	n := al.wsMessages
	al.mu.Unlock()

	al.wsLog.WithFields(logrus.Fields{"n": n, "dir": direction, "client": who}).Info(message)
}

// LogDB dumps the current database state
func (al *AppLogger) LogDB(context string) {
	if al.dbLog == nil || store == nil {
		return
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	var buf bytes.Buffer
	if err := store.Dump(&buf); err != nil {
		fmt.Fprintf(&buf, "Error: %v\n", err)
	}
	al.dbLog.WithField("context", context).Info("\n" + buf.String())
}

// Debug logs a debug message if debug mode is enabled
func (al *AppLogger) Debug(format string, args ...any) {
	if !al.debug {
		return
	}
	logger.Debugf(format, args...)
}

// IsEnabled returns true if any logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logRequests || al.logDB || al.logWS || al.debug
}

// ============================================================================
// HTTP Middleware
// ============================================================================

// LoggingHandler wraps http.Handler to log requests/responses
// Note: WebSocket requests (/ws) are passed through without recording
// because they require http.Hijacker which ResponseRecorder doesn't support
type LoggingHandler struct {
	Handler http.Handler
	Logger  *AppLogger
}

func (l *LoggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// WebSocket upgrades need http.Hijacker, so pass them through directly
	if r.URL.Path == "/ws" {
		l.Logger.LogRequest(r.Method, r.URL.String(), nil, http.StatusSwitchingProtocols, []byte("[WebSocket upgrade]"))
		l.Handler.ServeHTTP(w, r)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewBuffer(reqBody))
	}

	// Use a response recorder
	rec := httptest.NewRecorder()
	l.Handler.ServeHTTP(rec, r)

	// Copy the recorded response to the actual response writer
	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	respBody := rec.Body.Bytes()
	w.Write(respBody)

	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "image/") {
		l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, rec.Code, respBody)
	} else {
		l.Logger.LogRequest(r.Method, r.URL.String(), reqBody, rec.Code, []byte("[binary]"))
	}
}

// ============================================================================
// Global helper functions
// ============================================================================

// LogWSMessage logs a WebSocket message using the global logger
func LogWSMessage(direction, who, message string) {
	if appLogger != nil {
		appLogger.LogWebSocket(direction, who, message)
	}
}

// LogDBState logs the database state using the global logger
func LogDBState(context string) {
	if appLogger != nil {
		appLogger.LogDB(context)
	}
}

// DebugLog logs a debug message using the global logger
func DebugLog(format string, args ...any) {
	if appLogger != nil {
		appLogger.Debug(format, args...)
	}
}

// CloseAppLogger closes the global application logger
func CloseAppLogger() {
	if appLogger != nil {
		appLogger.Close()
	}
}
