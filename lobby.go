package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"

	"loupgarou/engine"
)

// newShuffler deals the roles of a new game. Tests replace it to get a
// predictable table.
var newShuffler = func() engine.Shuffler { return engine.NewRandom() }

var errGameInProgress = errors.New("a game is already in progress")

// lifecycleMu serializes creating and closing games, so the in-progress
// check and the switch to the new game happen as one step.
var lifecycleMu sync.Mutex

// NewGameRequest is the body of POST /api/game. Roles may be left out to use
// the default selection for the table size.
type NewGameRequest struct {
	Players []string         `json:"players"`
	Roles   engine.Selection `json:"roles,omitempty"`
}

// RolesResponse describes the catalog for the setup screen.
type RolesResponse struct {
	Roles      []engine.RoleDefinition `json:"roles"`
	NightOrder []engine.RoleID         `json:"night_order"`
	Default    engine.Selection        `json:"default,omitempty"`
}

// newGame deals a new game and makes it the current one.
func newGame(ctx context.Context, req NewGameRequest) (*Game, error) {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	if g := currentGame(); g != nil && g.snapshot().Phase != engine.PhaseEnded {
		return nil, errGameInProgress
	}

	catalog := engine.DefaultCatalog()
	roles := req.Roles
	if len(roles) == 0 {
		sel, err := catalog.DefaultSelection(len(req.Players))
		if err != nil {
			return nil, err
		}
		roles = sel
	}

	session, err := engine.NewSession(req.Players, roles,
		engine.WithRand(newShuffler()),
		engine.WithLogger(logger.WithField("component", "engine")))
	if err != nil {
		return nil, err
	}
	code, err := generateJoinCode()
	if err != nil {
		return nil, fmt.Errorf("generate join code: %w", err)
	}

	game := &Game{id: session.ID(), code: code, session: session}
	err = game.command(ctx, func(s *engine.Session) ([]HistoryEvent, error) {
		return []HistoryEvent{{
			Round:       s.Round(),
			Phase:       string(s.Phase()),
			Kind:        EventGameStarted,
			Description: fmt.Sprintf("A new game begins with %d players", len(req.Players)),
		}}, nil
	})
	if err != nil {
		return nil, err
	}

	if old := currentGame(); old != nil {
		if err := store.CloseSession(ctx, old.id); err != nil {
			logError("newGame: close previous session", err)
		}
	}
	setCurrentGame(game)
	logger.WithFields(logrus.Fields{"session": game.id, "players": len(req.Players)}).Info("New game dealt")
	return game, nil
}

// resetGame abandons the current game.
func resetGame(ctx context.Context) error {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	game := currentGame()
	if game == nil {
		return nil
	}
	if err := store.CloseSession(ctx, game.id); err != nil {
		return err
	}
	setCurrentGame(nil)
	logger.WithField("session", game.id).Info("Game reset")
	return nil
}

func handleRoles(w http.ResponseWriter, r *http.Request) {
	catalog := engine.DefaultCatalog()
	resp := RolesResponse{Roles: catalog.Roles(), NightOrder: catalog.NightOrder()}

	if raw := r.URL.Query().Get("players"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "players must be a number")
			return
		}
		sel, err := catalog.DefaultSelection(n)
		if err != nil {
			status, code := httpStatusFor(err)
			writeJSONErrorCode(w, status, err.Error(), code)
			return
		}
		resp.Default = sel
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req NewGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	game, err := newGame(r.Context(), req)
	if errors.Is(err, errGameInProgress) {
		writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		status, code := httpStatusFor(err)
		if status == http.StatusInternalServerError {
			logError("handleCreateGame: newGame", err)
			writeJSONError(w, status, "Something went wrong")
			return
		}
		writeJSONErrorCode(w, status, err.Error(), code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(game.moderatorView(gameHistory(r.Context(), game)))
	broadcastGameUpdate()
}

func handleGetGame(w http.ResponseWriter, r *http.Request) {
	game := currentGame()
	if game == nil {
		writeJSONError(w, http.StatusNotFound, errNoGame.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(game.moderatorView(gameHistory(r.Context(), game)))
}

func handleGameHistory(w http.ResponseWriter, r *http.Request) {
	game := currentGame()
	if game == nil {
		writeJSONError(w, http.StatusNotFound, errNoGame.Error())
		return
	}
	history, err := store.History(r.Context(), game.id)
	if err != nil {
		logError("handleGameHistory: store.History", err)
		writeJSONError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

func handleResetGame(w http.ResponseWriter, r *http.Request) {
	if err := resetGame(r.Context()); err != nil {
		logError("handleResetGame: resetGame", err)
		writeJSONError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	w.WriteHeader(http.StatusNoContent)
	broadcastGameUpdate()
}

// handleJoinQR renders the join link of the current game as a QR code for the
// moderator to show around the table.
func handleJoinQR(w http.ResponseWriter, r *http.Request) {
	game := currentGame()
	if game == nil {
		http.NotFound(w, r)
		return
	}
	link := fmt.Sprintf("%s/api/join?code=%s", cfg.PublicURL, game.code)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		logError("handleJoinQR: qrcode.Encode", err)
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func handleWSNewGame(client *Client) {
	if _, ok := requireModerator(client); !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := resetGame(ctx); err != nil {
		reportError(client, "handleWSNewGame", err)
		return
	}
	broadcastGameUpdate()
	hub.announce(renderToast("info", "The moderator closed the game", ""))
}
