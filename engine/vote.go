package engine

import "sort"

// RavenBonus is the number of extra votes the Corbeau's target carries.
const RavenBonus = 2

// Votes maps each voter to the player they want eliminated.
type Votes map[PlayerID]PlayerID

// VoteTally is the counted result of a day vote.
type VoteTally struct {
	Counts     map[PlayerID]int `json:"counts"`
	Max        int              `json:"max"`
	Leaders    []PlayerID       `json:"leaders"`
	Eliminated PlayerID         `json:"eliminated"`
}

// Tie reports whether two or more players share the highest count.
func (t VoteTally) Tie() bool {
	return len(t.Leaders) > 1
}

// TallyVotes counts votes by plurality. Voters and targets must be alive.
// bonus adds extra votes to a player (the Corbeau's mark) as long as at least
// one vote was cast. When the highest count is shared nobody is eliminated.
func TallyVotes(roster []Player, votes Votes, bonus map[PlayerID]int) (VoteTally, error) {
	for voter, target := range votes {
		if _, err := livingTarget(roster, voter); err != nil {
			return VoteTally{}, newError(CodeInvalidTarget, "voter %d: %v", voter, err)
		}
		if _, err := livingTarget(roster, target); err != nil {
			return VoteTally{}, err
		}
	}

	tally := VoteTally{Counts: make(map[PlayerID]int)}
	if len(votes) == 0 {
		return tally, nil
	}
	for _, target := range votes {
		tally.Counts[target]++
	}
	for id, extra := range bonus {
		if p, ok := lookup(roster, id); ok && p.Alive && extra > 0 {
			tally.Counts[id] += extra
		}
	}

	for id, n := range tally.Counts {
		switch {
		case n > tally.Max:
			tally.Max = n
			tally.Leaders = []PlayerID{id}
		case n == tally.Max:
			tally.Leaders = append(tally.Leaders, id)
		}
	}
	sort.Slice(tally.Leaders, func(i, j int) bool { return tally.Leaders[i] < tally.Leaders[j] })
	if len(tally.Leaders) == 1 {
		tally.Eliminated = tally.Leaders[0]
	}
	return tally, nil
}

// ResolveVotes returns the eliminated player, or 0 when there is no majority.
func ResolveVotes(roster []Player, votes Votes) (PlayerID, error) {
	tally, err := TallyVotes(roster, votes, nil)
	if err != nil {
		return 0, err
	}
	return tally.Eliminated, nil
}
