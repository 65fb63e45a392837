package engine

// Roster helpers shared by the resolvers. A roster is indexed by seat: the
// player with ID n sits at index n-1.

func lookup(roster []Player, id PlayerID) (Player, bool) {
	if id < 1 || int(id) > len(roster) {
		return Player{}, false
	}
	return roster[id-1], true
}

func livingTarget(roster []Player, id PlayerID) (Player, error) {
	p, ok := lookup(roster, id)
	if !ok {
		return Player{}, newError(CodeInvalidTarget, "player %d is not at the table", id)
	}
	if !p.Alive {
		return Player{}, newError(CodeInvalidTarget, "%s is dead", p.Name)
	}
	return p, nil
}

func factionOf(catalog *Catalog, p Player) Faction {
	d, _ := catalog.Lookup(p.Role)
	return d.Faction
}

func hasLivingHolder(roster []Player, role RoleID) bool {
	for _, p := range roster {
		if p.Alive && p.Role == role {
			return true
		}
	}
	return false
}

// loverPartner returns the other half of id's pair, or 0.
func loverPartner(roster []Player, id PlayerID) PlayerID {
	p, ok := lookup(roster, id)
	if !ok || !p.HasStatus(StatusLover) {
		return 0
	}
	for _, q := range roster {
		if q.ID != id && q.HasStatus(StatusLover) {
			return q.ID
		}
	}
	return 0
}

// ApplyDeaths marks every id in deaths as dead. Applying the same set twice
// leaves the roster as applying it once.
func ApplyDeaths(roster []Player, deaths []PlayerID) {
	for _, id := range deaths {
		if id >= 1 && int(id) <= len(roster) {
			roster[id-1].Alive = false
		}
	}
}

// CloneRoster deep-copies a roster so resolvers can work on a scratch copy.
func CloneRoster(roster []Player) []Player {
	out := make([]Player, len(roster))
	for i, p := range roster {
		p.Status = append([]Status(nil), p.Status...)
		out[i] = p
	}
	return out
}

// neighbours returns the closest living players on each side of seat id.
func neighbours(roster []Player, id PlayerID) []PlayerID {
	n := len(roster)
	var out []PlayerID
	for _, step := range []int{-1, 1} {
		for k := 1; k < n; k++ {
			idx := ((int(id)-1+step*k)%n + n) % n
			if roster[idx].Alive && roster[idx].ID != id {
				if len(out) == 0 || out[0] != roster[idx].ID {
					out = append(out, roster[idx].ID)
				}
				break
			}
		}
	}
	return out
}
