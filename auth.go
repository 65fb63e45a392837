package main

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"loupgarou/engine"
)

// There are no accounts: the moderator's device is trusted and players join
// with the game's six-digit code and their seat number.

// generateJoinCode returns a random six-digit numeric code.
func generateJoinCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var (
	errNoGame    = errors.New("no game in progress")
	errWrongCode = errors.New("wrong game code")
	errBadSeat   = errors.New("no such seat")
)

// seatFromRequest returns the seat a websocket client asks for. A request
// without a seat is the moderator (seat 0); players must present the join
// code of the current game.
func seatFromRequest(r *http.Request, game *Game) (engine.PlayerID, error) {
	raw := r.URL.Query().Get("seat")
	if raw == "" {
		return 0, nil
	}
	if game == nil {
		return 0, errNoGame
	}
	seat, err := strconv.Atoi(raw)
	if err != nil || seat < 1 || seat > game.seats() {
		return 0, errBadSeat
	}
	if !game.checkCode(r.URL.Query().Get("code")) {
		return 0, errWrongCode
	}
	return engine.PlayerID(seat), nil
}

func (g *Game) checkCode(code string) bool {
	return subtle.ConstantTimeCompare([]byte(code), []byte(g.code)) == 1
}

// JoinSeat is one entry of the seat list shown to a joining player.
type JoinSeat struct {
	Seat engine.PlayerID `json:"seat"`
	Name string          `json:"name"`
}

// handleJoin lists the seats of the current game for a valid join code, so
// that a player can pick their own and connect with /ws?code=...&seat=N.
func handleJoin(w http.ResponseWriter, r *http.Request) {
	game := currentGame()
	if game == nil {
		writeJSONError(w, http.StatusNotFound, errNoGame.Error())
		return
	}
	if !game.checkCode(r.URL.Query().Get("code")) {
		DebugLog("handleJoin: rejected code from %s", r.RemoteAddr)
		writeJSONError(w, http.StatusForbidden, errWrongCode.Error())
		return
	}

	var seats []JoinSeat
	for _, p := range game.roster() {
		seats = append(seats, JoinSeat{Seat: p.ID, Name: p.Name})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(seats)
}
