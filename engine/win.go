package engine

// Outcome is the state of the game after a death-producing event.
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeVillageWins   Outcome = "village"
	OutcomeWerewolvesWin Outcome = "werewolves"
	OutcomeLoversWin     Outcome = "lovers"
	OutcomeFoolWins      Outcome = "fool"
)

// Terminal reports whether the game is over.
func (o Outcome) Terminal() bool {
	return o != OutcomeNone
}

// Evaluate checks the win conditions in priority order: the Fool voted out,
// the lovers as last two survivors, no werewolves left, then werewolf parity.
func Evaluate(catalog *Catalog, roster []Player) Outcome {
	for _, p := range roster {
		if p.Role == RoleFool && !p.Alive && p.HasStatus(StatusVotedByVillage) {
			return OutcomeFoolWins
		}
	}

	var alive []Player
	wolves := 0
	for _, p := range roster {
		if !p.Alive {
			continue
		}
		alive = append(alive, p)
		if factionOf(catalog, p) == FactionWerewolf {
			wolves++
		}
	}

	if len(alive) == 2 && alive[0].HasStatus(StatusLover) && alive[1].HasStatus(StatusLover) &&
		loverPartner(roster, alive[0].ID) == alive[1].ID {
		return OutcomeLoversWin
	}
	if wolves == 0 {
		return OutcomeVillageWins
	}
	if wolves >= len(alive)-wolves {
		return OutcomeWerewolvesWin
	}
	return OutcomeNone
}
