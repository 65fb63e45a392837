package engine

import (
	"slices"

	"github.com/sirupsen/logrus"
)

// Snapshot is the serializable state of a session. Restoring it yields a
// session that behaves exactly like the one it was taken from.
type Snapshot struct {
	ID         string       `json:"id"`
	Roster     []Player     `json:"roster"`
	Round      int          `json:"round"`
	Phase      Phase        `json:"phase"`
	Outcome    Outcome      `json:"outcome,omitempty"`
	Actions    NightActions `json:"actions,omitempty"`
	Potions    Potions      `json:"potions"`
	Current    RoleID       `json:"current,omitempty"`
	Cursor     int          `json:"cursor"`
	Used       []RoleID     `json:"used,omitempty"`
	Disabled   []RoleID     `json:"disabled,omitempty"`
	RavenMark  PlayerID     `json:"raven_mark,omitempty"`
	Pending    []PlayerID   `json:"pending,omitempty"`
	VoteDone   bool         `json:"vote_done,omitempty"`
	LastDeaths []Death      `json:"last_deaths,omitempty"`
}

// Snapshot captures the session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:         s.id,
		Roster:     CloneRoster(s.roster),
		Round:      s.round,
		Phase:      s.phase,
		Outcome:    s.outcome,
		Actions:    s.collector.Actions(),
		Potions:    s.collector.Potions(),
		Current:    s.current,
		Cursor:     s.seq.cursor,
		Used:       sortedKeys(s.seq.used),
		Disabled:   sortedKeys(s.seq.disabled),
		RavenMark:  s.ravenMark,
		Pending:    s.PendingRevenge(),
		VoteDone:   s.voteDone,
		LastDeaths: append([]Death(nil), s.lastDeaths...),
	}
}

// LastDeaths returns the deaths announced since the last night ended.
func (s *Session) LastDeaths() []Death {
	return append([]Death(nil), s.lastDeaths...)
}

// Restore rebuilds a session from a snapshot. WithRand is ignored since the
// roles are already dealt.
func Restore(snap Snapshot, opts ...Option) (*Session, error) {
	if snap.ID != "" {
		opts = append([]Option{WithID(snap.ID)}, opts...)
	}
	o := buildOptions(opts)
	catalog := DefaultCatalog()

	if len(snap.Roster) < MinPlayers || len(snap.Roster) > MaxPlayers {
		return nil, newError(CodeInvalidConfiguration, "snapshot has %d players", len(snap.Roster))
	}
	for i, p := range snap.Roster {
		if p.ID != PlayerID(i+1) {
			return nil, newError(CodeInvalidConfiguration, "snapshot seat %d has id %d", i+1, p.ID)
		}
		if _, ok := catalog.Lookup(p.Role); !ok {
			return nil, newError(CodeInvalidConfiguration, "snapshot has unknown role %q", p.Role)
		}
	}
	switch snap.Phase {
	case PhaseSetup, PhaseNight, PhaseDayResults, PhaseDayVote, PhaseEnded:
	default:
		return nil, newError(CodeInvalidConfiguration, "snapshot has unknown phase %q", snap.Phase)
	}
	if snap.Round < 1 {
		return nil, newError(CodeInvalidConfiguration, "snapshot round %d", snap.Round)
	}
	if err := checkSnapshotRefs(catalog, snap); err != nil {
		return nil, err
	}

	seq := NewNightSequencer(catalog)
	seq.Restart(snap.Round)
	seq.cursor = snap.Cursor
	for _, r := range snap.Used {
		seq.used[r] = true
	}
	for _, r := range snap.Disabled {
		seq.disabled[r] = true
	}

	collector := NewActionCollector(catalog)
	collector.Reset(snap.Round)
	collector.potions = snap.Potions
	for role, a := range snap.Actions {
		collector.actions[role] = a
	}

	s := &Session{
		id:         o.id,
		catalog:    catalog,
		log:        o.log.WithField("session", o.id),
		roster:     CloneRoster(snap.Roster),
		round:      snap.Round,
		phase:      snap.Phase,
		seq:        seq,
		collector:  collector,
		current:    snap.Current,
		ravenMark:  snap.RavenMark,
		pending:    append([]PlayerID(nil), snap.Pending...),
		voteDone:   snap.VoteDone,
		outcome:    snap.Outcome,
		lastDeaths: append([]Death(nil), snap.LastDeaths...),
	}
	s.log.WithFields(logrus.Fields{"round": s.round, "phase": s.phase}).Info("session restored")
	return s, nil
}

// checkSnapshotRefs makes sure every seat and role a snapshot points at
// exists, so that a restored session never indexes past its roster.
func checkSnapshotRefs(catalog *Catalog, snap Snapshot) error {
	seat := func(what string, id PlayerID, zeroOK bool) error {
		if id == 0 && zeroOK {
			return nil
		}
		if id < 1 || int(id) > len(snap.Roster) {
			return newError(CodeInvalidConfiguration, "snapshot %s points at seat %d", what, id)
		}
		return nil
	}

	order := catalog.NightOrder()
	if snap.Current != "" && !slices.Contains(order, snap.Current) {
		return newError(CodeInvalidConfiguration, "snapshot current role %q does not act at night", snap.Current)
	}
	if snap.Cursor < 0 || snap.Cursor > len(order) {
		return newError(CodeInvalidConfiguration, "snapshot cursor %d", snap.Cursor)
	}
	for _, r := range append(append([]RoleID(nil), snap.Used...), snap.Disabled...) {
		if !slices.Contains(order, r) {
			return newError(CodeInvalidConfiguration, "snapshot tracks unknown night role %q", r)
		}
	}
	if err := seat("raven mark", snap.RavenMark, true); err != nil {
		return err
	}
	for _, id := range snap.Pending {
		if err := seat("pending revenge", id, false); err != nil {
			return err
		}
		p := snap.Roster[id-1]
		d, _ := catalog.Lookup(p.Role)
		if p.Alive || d.Reaction != ReactionRevenge {
			return newError(CodeInvalidConfiguration, "snapshot pending revenge for %s who is not a dead %s", p.Name, RoleHunter)
		}
	}
	for _, d := range snap.LastDeaths {
		if err := seat("death", d.Player, false); err != nil {
			return err
		}
	}
	for role, a := range snap.Actions {
		if !slices.Contains(order, role) {
			return newError(CodeInvalidConfiguration, "snapshot has an action for %q", role)
		}
		for _, id := range []PlayerID{a.Target, a.Kill, a.Pair[0], a.Pair[1]} {
			if err := seat("action", id, true); err != nil {
				return err
			}
		}
		if role == RoleCupid && (a.Pair[0] == 0 || a.Pair[1] == 0) {
			return newError(CodeInvalidConfiguration, "snapshot cupid action without a pair")
		}
	}
	return nil
}

func sortedKeys(m map[RoleID]bool) []RoleID {
	var out []RoleID
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}
