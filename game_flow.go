package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"loupgarou/engine"
)

// Game is the single game the server runs: the engine session plus the join
// code. The mutex serializes commands coming from several connections.
type Game struct {
	mu      sync.Mutex
	id      string
	code    string
	session *engine.Session
}

var (
	activeMu   sync.RWMutex
	activeGame *Game
)

// currentGame returns the game in progress, or nil.
func currentGame() *Game {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return activeGame
}

func setCurrentGame(g *Game) {
	activeMu.Lock()
	activeGame = g
	activeMu.Unlock()
}

func (g *Game) seats() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.session.Roster())
}

func (g *Game) roster() []engine.Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Roster()
}

func (g *Game) snapshot() engine.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.Snapshot()
}

// command runs fn under the game lock. When fn succeeds the new snapshot and
// the history events fn returned are stored together. If fn or the store
// fails, the session is put back the way it was and nothing is written.
func (g *Game) command(ctx context.Context, fn func(s *engine.Session) ([]HistoryEvent, error)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.session.Snapshot()
	events, err := fn(g.session)
	if err != nil {
		return err
	}
	if err := store.Commit(ctx, g.code, g.session.Snapshot(), events); err != nil {
		g.rollback(prev)
		return err
	}
	LogDBState("after command")
	return nil
}

// rollback replaces the session with the state captured in prev.
func (g *Game) rollback(prev engine.Snapshot) {
	restored, err := engine.Restore(prev, engine.WithLogger(logger.WithField("component", "engine")))
	if err != nil {
		logError("command: rollback", err)
		return
	}
	g.session = restored
	logger.WithFields(logrus.Fields{"session": g.id, "phase": prev.Phase, "round": prev.Round}).Warn("Command rolled back")
}

// restoreCurrentGame picks up the latest unfinished session from the store.
func restoreCurrentGame(ctx context.Context) error {
	rec, snap, ok, err := store.LatestActive(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("No game to restore")
		return nil
	}
	session, err := engine.Restore(snap, engine.WithLogger(logger.WithField("component", "engine")))
	if err != nil {
		return fmt.Errorf("restore session %s: %w", rec.ID, err)
	}
	setCurrentGame(&Game{id: rec.ID, code: rec.Code, session: session})
	logger.WithFields(logrus.Fields{"session": rec.ID, "phase": rec.Phase, "round": rec.Round}).Info("Game restored")
	return nil
}

// DeathView is a death with the player's name and revealed role.
type DeathView struct {
	Player engine.PlayerID `json:"player"`
	Name   string          `json:"name"`
	Role   engine.RoleID   `json:"role"`
	Cause  engine.Cause    `json:"cause"`
}

// ModeratorView is everything the moderator's device shows.
type ModeratorView struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id"`
	Code      string                 `json:"code"`
	Phase     engine.Phase           `json:"phase"`
	Round     int                    `json:"round"`
	Outcome   engine.Outcome         `json:"outcome,omitempty"`
	Acting    *engine.RoleDefinition `json:"acting,omitempty"`
	Players   []engine.Player        `json:"players"`
	Pending   []engine.PlayerID      `json:"pending_revenge,omitempty"`
	Deaths    []DeathView            `json:"deaths,omitempty"`
	Potions   engine.Potions         `json:"potions"`
	History   []HistoryEvent         `json:"history"`
}

// PublicPlayer is a seat as other players see it. Role is only filled in
// once the game is over.
type PublicPlayer struct {
	ID    engine.PlayerID `json:"id"`
	Name  string          `json:"name"`
	Alive bool            `json:"alive"`
	Role  engine.RoleID   `json:"role,omitempty"`
}

// SeatView is what a player's own device shows: their role and the public
// state of the table.
type SeatView struct {
	Type    string                `json:"type"`
	Seat    engine.PlayerID       `json:"seat"`
	Name    string                `json:"name"`
	Alive   bool                  `json:"alive"`
	Role    engine.RoleDefinition `json:"role"`
	Lover   engine.PlayerID       `json:"lover,omitempty"`
	Phase   engine.Phase          `json:"phase"`
	Round   int                   `json:"round"`
	Outcome engine.Outcome        `json:"outcome,omitempty"`
	Players []PublicPlayer        `json:"players"`
	Deaths  []DeathView           `json:"deaths,omitempty"`
	History []HistoryEvent        `json:"history"`
}

func deathViews(roster []engine.Player, deaths []engine.Death) []DeathView {
	var out []DeathView
	for _, d := range deaths {
		p := roster[d.Player-1]
		out = append(out, DeathView{Player: p.ID, Name: p.Name, Role: p.Role, Cause: d.Cause})
	}
	return out
}

func (g *Game) moderatorView(history []HistoryEvent) ModeratorView {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.session.Snapshot()
	view := ModeratorView{
		Type:      "game",
		SessionID: g.id,
		Code:      g.code,
		Phase:     snap.Phase,
		Round:     snap.Round,
		Outcome:   snap.Outcome,
		Players:   snap.Roster,
		Pending:   snap.Pending,
		Deaths:    deathViews(snap.Roster, snap.LastDeaths),
		Potions:   snap.Potions,
		History:   history,
	}
	if d, ok := g.session.CurrentActingRole(); ok {
		view.Acting = &d
	}
	return view
}

func (g *Game) seatView(seat engine.PlayerID, history []HistoryEvent) SeatView {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.session.Snapshot()
	me := snap.Roster[seat-1]
	role, _ := g.session.Catalog().Lookup(me.Role)
	view := SeatView{
		Type:    "game",
		Seat:    me.ID,
		Name:    me.Name,
		Alive:   me.Alive,
		Role:    role,
		Phase:   snap.Phase,
		Round:   snap.Round,
		Outcome: snap.Outcome,
		Deaths:  deathViews(snap.Roster, snap.LastDeaths),
		History: history,
	}
	for _, p := range snap.Roster {
		pub := PublicPlayer{ID: p.ID, Name: p.Name, Alive: p.Alive}
		if snap.Phase == engine.PhaseEnded {
			pub.Role = p.Role
		}
		view.Players = append(view.Players, pub)
		if p.ID != me.ID && me.HasStatus(engine.StatusLover) && p.HasStatus(engine.StatusLover) {
			view.Lover = p.ID
		}
	}
	return view
}

// viewFor encodes the view a client at seat should see.
func viewFor(g *Game, seat engine.PlayerID, history []HistoryEvent) ([]byte, error) {
	if g == nil || int(seat) > g.seats() {
		return json.Marshal(map[string]string{"type": "no_game"})
	}
	if seat == 0 {
		return json.Marshal(g.moderatorView(history))
	}
	return json.Marshal(g.seatView(seat, history))
}

func gameHistory(ctx context.Context, g *Game) []HistoryEvent {
	if g == nil {
		return nil
	}
	history, err := store.History(ctx, g.id)
	if err != nil {
		logError("gameHistory: store.History", err)
	}
	return history
}

// sendGameView sends the current view to one client.
func sendGameView(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	game := currentGame()
	msg, err := viewFor(game, client.seat, gameHistory(ctx, game))
	if err != nil {
		logError("sendGameView: viewFor", err)
		return
	}
	client.send(msg)
}

// broadcastGameUpdate sends the current game state to all connected clients
func broadcastGameUpdate() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	game := currentGame()
	history := gameHistory(ctx, game)
	clients := hub.connected()
	DebugLog("broadcastGameUpdate: %d clients", len(clients))

	for _, c := range clients {
		msg, err := viewFor(game, c.seat, history)
		if err != nil {
			logError("broadcastGameUpdate: viewFor", err)
			continue
		}
		c.send(msg)
	}
}

var causeText = map[engine.Cause]string{
	engine.CauseWerewolves:    "was devoured by the werewolves",
	engine.CauseWhiteWerewolf: "was torn apart by the white werewolf",
	engine.CausePoison:        "was poisoned by the witch",
	engine.CauseHeartbreak:    "died of a broken heart",
	engine.CauseRevenge:       "was shot by the hunter",
	engine.CauseVillageVote:   "was eliminated by the village",
}

var outcomeText = map[engine.Outcome]string{
	engine.OutcomeVillageWins:   "The village wins: every werewolf is dead",
	engine.OutcomeWerewolvesWin: "The werewolves win: the village has fallen",
	engine.OutcomeLoversWin:     "The lovers win: they are the last two alive",
	engine.OutcomeFoolWins:      "The fool wins: the village voted them out",
}

// deathEvents describes deaths as public history lines, revealing each
// dead player's role.
func deathEvents(s *engine.Session, round int, phase, kind string, deaths []engine.Death) []HistoryEvent {
	roster := s.Roster()
	var events []HistoryEvent
	for _, d := range deaths {
		p := roster[d.Player-1]
		role, _ := s.Catalog().Lookup(p.Role)
		events = append(events, HistoryEvent{
			Round:       round,
			Phase:       phase,
			Kind:        kind,
			Description: fmt.Sprintf("%s %d: %s (%s) %s", phaseLabel(phase), round, p.Name, role.Name, causeText[d.Cause]),
		})
	}
	return events
}

func phaseLabel(phase string) string {
	if phase == "night" {
		return "Night"
	}
	return "Day"
}

// endGameEvent returns the closing history line when the game just ended.
func endGameEvent(s *engine.Session, outcome engine.Outcome) []HistoryEvent {
	if !outcome.Terminal() {
		return nil
	}
	logger.WithFields(logrus.Fields{"session": s.ID(), "round": s.Round(), "winner": outcome}).Info("Game finished")
	return []HistoryEvent{{Round: s.Round(), Phase: "day", Kind: EventGameOver, Description: outcomeText[outcome]}}
}

// announceOutcome pops the result up on every device once the game is over.
func announceOutcome(outcome engine.Outcome) {
	if outcome.Terminal() {
		hub.announce(renderToast("info", outcomeText[outcome], string(outcome)))
	}
}
