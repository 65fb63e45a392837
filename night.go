package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"loupgarou/engine"
)

// ActionResultMessage carries what a role learned during the night. It only
// goes to moderator connections.
type ActionResultMessage struct {
	Type   string              `json:"type"`
	Role   engine.RoleID       `json:"role"`
	Target engine.PlayerID     `json:"target,omitempty"`
	Result engine.ActionResult `json:"result"`
}

// requireModerator returns the current game when client may run commands.
func requireModerator(client *Client) (*Game, bool) {
	if client.seat != 0 {
		sendErrorToast(client, "Only the moderator can do that")
		return nil, false
	}
	game := currentGame()
	if game == nil {
		sendErrorToast(client, "No game in progress")
		return nil, false
	}
	return game, true
}

func handleWSStartNight(client *Client) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		if err := s.Start(); err != nil {
			return nil, err
		}
		logger.WithField("session", s.ID()).Info("Roles revealed, first night begins")
		return nil, nil
	})
	if err != nil {
		reportError(client, "handleWSStartNight", err)
		return
	}
	broadcastGameUpdate()
}

func handleWSNightAction(client *Client, msg WSMessage) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}

	role := engine.RoleID(msg.Role)
	action := engine.Action{Target: msg.Target, Pair: msg.Pair, Save: msg.Save, Kill: msg.Kill}
	var result engine.ActionResult
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		res, err := s.SubmitNightAction(role, action)
		if err != nil {
			return nil, err
		}
		result = res
		logger.WithFields(logrus.Fields{"session": s.ID(), "round": s.Round(), "role": role}).Info("Night action recorded")
		return nil, nil
	})
	if err != nil {
		reportError(client, "handleWSNightAction", err)
		return
	}

	if result.Revealed != "" || result.WerewolfNearby != nil {
		if d, ok := engine.DefaultCatalog().Resolve(msg.Role); ok {
			role = d.ID
		}
		out, _ := json.Marshal(ActionResultMessage{Type: "action_result", Role: role, Target: msg.Target, Result: result})
		hub.sendToSeat(0, out)
	}
	broadcastGameUpdate()
}

func handleWSSkipTurn(client *Client) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		d, err := s.SkipTurn()
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"session": s.ID(), "round": s.Round(), "role": d.ID}).Info("Turn skipped")
		return nil, nil
	})
	if err != nil {
		reportError(client, "handleWSSkipTurn", err)
		return
	}
	broadcastGameUpdate()
}

func handleWSFinishNight(client *Client) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}

	var report engine.NightReport
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		r, err := s.FinishNight()
		if err != nil {
			return nil, err
		}
		report = r

		events := deathEvents(s, r.Round, "night", EventNightDeath, r.Deaths)
		if len(r.Deaths) == 0 {
			events = append(events, HistoryEvent{Round: r.Round, Phase: "night", Kind: EventNoDeath, Description: nightLine(r.Round, "nobody died")})
		}
		return append(events, endGameEvent(s, r.Outcome)...), nil
	})
	if err != nil {
		reportError(client, "handleWSFinishNight", err)
		return
	}

	DebugLog("handleWSFinishNight: round %d, %d deaths, %d pending", report.Round, len(report.Deaths), len(report.Pending))
	if len(report.Deaths) > 0 {
		maybeGenerateStory(game.id, report.Round, "night")
	}
	broadcastGameUpdate()
	announceOutcome(report.Outcome)
}

func nightLine(round int, text string) string {
	return fmt.Sprintf("%s %d: %s", phaseLabel("night"), round, text)
}
