package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	cfg     = defaultConfig()
	devMode bool
)

// logError logs an error with context and dumps the database in dev mode
func logError(context string, err error) {
	logger.WithField("context", context).Errorf("%v", err)
	if devMode && store != nil {
		var buf bytes.Buffer
		if dumpErr := store.Dump(&buf); dumpErr == nil {
			logger.Errorf("DB dump:\n%s", buf.String())
		}
	}
}

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// shouldCompress determines if a content type should be gzip compressed
// Compresses text-based formats but not binary formats like images
func shouldCompress(contentType string) bool {
	compressiblePrefixes := []string{
		"text/",
		"application/json",
		"image/svg",
	}
	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to handle conditional gzip compression
type responseWriter struct {
	http.ResponseWriter
	gz         *gzip.Writer
	acceptGzip bool
	headerSent bool
}

// WriteHeader checks content type and sets up compression if appropriate
func (w *responseWriter) WriteHeader(statusCode int) {
	if w.headerSent {
		return
	}
	w.headerSent = true

	contentType := w.Header().Get("Content-Type")
	if contentType != "" && shouldCompress(contentType) && w.acceptGzip && statusCode != http.StatusNoContent {
		w.gz = gzip.NewWriter(w.ResponseWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

// Write writes to gzip writer if it exists, otherwise to original writer
func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}

	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Close closes the gzip writer if it exists
func (w *responseWriter) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// compress adds gzip compression to compressible responses
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{
			ResponseWriter: w,
			acceptGzip:     strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
		}
		defer wrapped.Close()

		next.ServeHTTP(wrapped, r)
	})
}

func handleWSMessage(client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warnf("WebSocket unmarshal error for %s: %v", client.name(), err)
		sendErrorToast(client, "Malformed message")
		return
	}

	LogWSMessage("IN", client.name(), string(message))

	// Route action to the appropriate handler
	switch msg.Action {
	case "start_night":
		handleWSStartNight(client)
	case "night_action":
		handleWSNightAction(client, msg)
	case "skip_turn":
		handleWSSkipTurn(client)
	case "finish_night":
		handleWSFinishNight(client)
	case "open_vote":
		handleWSOpenVote(client)
	case "submit_votes":
		handleWSSubmitVotes(client, msg)
	case "hunter_revenge":
		handleWSHunterRevenge(client, msg)
	case "new_game":
		handleWSNewGame(client)
	case "refresh":
		sendGameView(client)
	default:
		logger.Warnf("Unknown action %q from %s", msg.Action, client.name())
		sendErrorToast(client, "Unknown action")
	}
}

// newRouter wires the HTTP API. The websocket endpoint is left out of the
// compression wrapper since upgrading needs the raw connection.
func newRouter() http.Handler {
	mux := http.NewServeMux()

	wrap := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		h = compress(h)
		h = disableCaching(h)
		mux.Handle(pattern, h)
	}

	wrap("GET /api/roles", handleRoles)
	wrap("POST /api/game", handleCreateGame)
	wrap("GET /api/game", handleGetGame)
	wrap("GET /api/game/history", handleGameHistory)
	wrap("POST /api/game/reset", handleResetGame)
	wrap("GET /api/join", handleJoin)
	wrap("GET /game/qr.png", handleJoinQR)
	mux.HandleFunc("GET /ws", handleWebSocket)

	if appLogger != nil && appLogger.logRequests {
		return &LoggingHandler{Handler: mux, Logger: appLogger}
	}
	return mux
}

func main() {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fv := registerFlags(flags)
	flags.Parse(os.Args[1:])

	loaded, err := loadConfig(*fv.configPath, *fv.dotenvPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	fv.applyTo(&loaded)
	if err := loaded.validate(); err != nil {
		logger.Fatalf("Invalid config: %v", err)
	}
	cfg = loaded
	devMode = cfg.Dev

	if err := InitAppLogger(cfg.toLogConfig()); err != nil {
		logger.Fatalf("Failed to initialize logger: %v", err)
	}
	defer CloseAppLogger()
	if devMode {
		logger.SetLevel(logrus.DebugLevel)
	}
	if appLogger.IsEnabled() {
		logger.Info("Extended logging enabled")
	}

	store, err = openStore(cfg.DBDriver, cfg.DB)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()
	LogDBState("after initDB")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := restoreCurrentGame(ctx); err != nil {
		logError("main: restoreCurrentGame", err)
	}
	cancel()

	initStoryteller(cfg)

	// Start WebSocket hub
	go hub.run()

	logger.WithFields(logrus.Fields{"addr": cfg.Addr, "driver": cfg.DBDriver}).Info("Server starting")
	logger.Fatal(http.ListenAndServe(cfg.Addr, newRouter()))
}
