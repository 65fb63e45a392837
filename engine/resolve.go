package engine

import "slices"

// Cause explains why a player died.
type Cause string

const (
	CauseWerewolves    Cause = "werewolves"
	CauseWhiteWerewolf Cause = "white-werewolf"
	CausePoison        Cause = "poison"
	CauseHeartbreak    Cause = "heartbreak"
	CauseRevenge       Cause = "revenge"
	CauseVillageVote   Cause = "village-vote"
)

// Death is one newly dead player.
type Death struct {
	Player PlayerID `json:"player"`
	Cause  Cause    `json:"cause"`
}

// Resolution is the outcome of a death-producing event.
type Resolution struct {
	// Deaths are deduplicated and ordered by seat.
	Deaths []Death
	// Pending lists dying players whose revenge shot is still unknown.
	Pending []PlayerID
}

// IDs returns the dead players' ids in seat order.
func (r Resolution) IDs() []PlayerID {
	out := make([]PlayerID, len(r.Deaths))
	for i, d := range r.Deaths {
		out[i] = d.Player
	}
	return out
}

// ResolveNight computes who dies from the recorded night actions. The roster
// is not modified. shots holds revenge targets already chosen by Chasseur
// holders (0 means the shot was declined).
//
// Precedence:
//  1. the werewolf victim dies unless the Sorcière saved them or the Docteur protected them
//  2. the Loup Blanc kill and the Sorcière's poison add deaths independently
//  3. lovers share one fate
//  4. revenge shots of dying Chasseurs, in seat order, until nothing changes
func ResolveNight(catalog *Catalog, roster []Player, actions NightActions, shots map[PlayerID]PlayerID) Resolution {
	scratch := CloneRoster(roster)
	if pair, ok := actions[RoleCupid]; ok {
		for _, id := range pair.Pair {
			if id >= 1 && int(id) <= len(scratch) {
				scratch[id-1].addStatus(StatusLover)
			}
		}
	}

	var initial []Death
	witch := actions[RoleWitch]
	if victim := actions.WerewolfVictim(); victim != 0 {
		protected := actions[RoleDoctor].Target == victim
		if !witch.Save && !protected {
			initial = append(initial, Death{victim, CauseWerewolves})
		}
	}
	if t := actions[RoleWhiteWerewolf].Target; t != 0 {
		initial = append(initial, Death{t, CauseWhiteWerewolf})
	}
	if witch.Kill != 0 {
		initial = append(initial, Death{witch.Kill, CausePoison})
	}
	return resolveDeaths(catalog, scratch, initial, shots)
}

// ResolveDeaths runs the linked-fate and revenge passes for deaths that
// happened outside the night (a village vote, a revenge shot).
func ResolveDeaths(catalog *Catalog, roster []Player, initial []Death, shots map[PlayerID]PlayerID) Resolution {
	return resolveDeaths(catalog, CloneRoster(roster), initial, shots)
}

func resolveDeaths(catalog *Catalog, roster []Player, initial []Death, shots map[PlayerID]PlayerID) Resolution {
	causes := make(map[PlayerID]Cause)
	add := func(id PlayerID, cause Cause) bool {
		p, ok := lookup(roster, id)
		if !ok || !p.Alive {
			return false
		}
		if _, dying := causes[id]; dying {
			return false
		}
		causes[id] = cause
		return true
	}
	for _, d := range initial {
		add(d.Player, d.Cause)
	}

	fired := make(map[PlayerID]bool)
	// Every pass either kills someone or stops, so a roster of n players
	// settles within n+1 passes.
	for pass := 0; pass <= len(roster); pass++ {
		changed := false
		for _, p := range roster {
			if _, dying := causes[p.ID]; !dying {
				continue
			}
			if partner := loverPartner(roster, p.ID); partner != 0 && add(partner, CauseHeartbreak) {
				changed = true
			}
		}
		for _, p := range roster {
			if _, dying := causes[p.ID]; !dying || fired[p.ID] {
				continue
			}
			if d, _ := catalog.Lookup(p.Role); d.Reaction != ReactionRevenge {
				continue
			}
			target, chosen := shots[p.ID]
			if !chosen {
				continue
			}
			fired[p.ID] = true
			if target != 0 && add(target, CauseRevenge) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var res Resolution
	for _, p := range roster {
		cause, dying := causes[p.ID]
		if !dying {
			continue
		}
		res.Deaths = append(res.Deaths, Death{p.ID, cause})
		if d, _ := catalog.Lookup(p.Role); d.Reaction == ReactionRevenge && !fired[p.ID] {
			res.Pending = append(res.Pending, p.ID)
		}
	}
	slices.SortFunc(res.Deaths, func(a, b Death) int { return int(a.Player - b.Player) })
	return res
}
