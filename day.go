package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"loupgarou/engine"
)

func handleWSOpenVote(client *Client) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		return nil, s.OpenVote()
	})
	if err != nil {
		reportError(client, "handleWSOpenVote", err)
		return
	}
	broadcastGameUpdate()
}

// handleWSSubmitVotes takes the ballots the moderator collected around the
// table, one voter to one target.
func handleWSSubmitVotes(client *Client, msg WSMessage) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}

	var report engine.VoteReport
	var round int
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		round = s.Round()
		r, err := s.SubmitVotes(msg.Votes)
		if err != nil {
			return nil, err
		}
		report = r

		if r.Eliminated == 0 {
			return append([]HistoryEvent{{
				Round:       round,
				Phase:       "day",
				Kind:        EventNoMajority,
				Description: fmt.Sprintf("Day %d: no majority (%s), nobody is eliminated", round, tallyLine(s, r.Tally)),
			}}, endGameEvent(s, r.Outcome)...), nil
		}
		events := deathEvents(s, round, "day", EventElimination, r.Deaths)
		return append(events, endGameEvent(s, r.Outcome)...), nil
	})
	if err != nil {
		reportError(client, "handleWSSubmitVotes", err)
		return
	}

	logger.WithFields(logrus.Fields{"session": game.id, "round": round, "eliminated": report.Eliminated}).Info("Village vote resolved")
	if report.Eliminated != 0 {
		maybeGenerateStory(game.id, round, "day")
	}
	broadcastGameUpdate()
	announceOutcome(report.Outcome)
}

// tallyLine lists the top of the tally as "Alice 3, Bob 3".
func tallyLine(s *engine.Session, tally engine.VoteTally) string {
	roster := s.Roster()
	var top int
	for _, n := range tally.Counts {
		top = max(top, n)
	}
	var parts []string
	for _, p := range roster {
		if n := tally.Counts[p.ID]; n == top && n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", p.Name, n))
		}
	}
	if len(parts) == 0 {
		return "no ballots"
	}
	return strings.Join(parts, ", ")
}

// handleWSHunterRevenge fires (or, with target 0, declines) a dead hunter's
// shot.
func handleWSHunterRevenge(client *Client, msg WSMessage) {
	game, ok := requireModerator(client)
	if !ok {
		return
	}

	var report engine.RevengeReport
	err := game.command(context.Background(), func(s *engine.Session) ([]HistoryEvent, error) {
		round := s.Round()
		phase := "day"
		if s.Phase() == engine.PhaseDayResults {
			phase = "night"
		}
		r, err := s.SubmitRevenge(msg.Hunter, msg.Target)
		if err != nil {
			return nil, err
		}
		report = r

		events := deathEvents(s, round, phase, EventRevenge, r.Deaths)
		if len(r.Deaths) == 0 {
			hunter := s.Roster()[msg.Hunter-1]
			events = append(events, HistoryEvent{
				Round:       round,
				Phase:       phase,
				Kind:        EventRevenge,
				Description: fmt.Sprintf("%s %d: %s lowers their rifle", phaseLabel(phase), round, hunter.Name),
			})
		}
		return append(events, endGameEvent(s, r.Outcome)...), nil
	})
	if err != nil {
		reportError(client, "handleWSHunterRevenge", err)
		return
	}

	DebugLog("handleWSHunterRevenge: hunter %d shot %d, %d deaths, outcome %q", msg.Hunter, msg.Target, len(report.Deaths), report.Outcome)
	broadcastGameUpdate()
	announceOutcome(report.Outcome)
}
