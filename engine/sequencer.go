package engine

// NightSequencer walks the fixed night precedence and hands out the roles that
// wake up this round. Once-only usage and disabled roles persist across rounds;
// the cursor is reset by Restart.
type NightSequencer struct {
	catalog  *Catalog
	order    []RoleID
	cursor   int
	round    int
	used     map[RoleID]bool
	disabled map[RoleID]bool
}

// NewNightSequencer builds a sequencer over the catalog's night order.
func NewNightSequencer(catalog *Catalog) *NightSequencer {
	return &NightSequencer{
		catalog:  catalog,
		order:    catalog.NightOrder(),
		round:    1,
		used:     make(map[RoleID]bool),
		disabled: make(map[RoleID]bool),
	}
}

// Restart rewinds the cursor for a new round.
func (s *NightSequencer) Restart(round int) {
	s.cursor = 0
	s.round = round
}

// Next returns the next role that can act, or false when the night is over.
func (s *NightSequencer) Next(roster []Player) (RoleDefinition, bool) {
	for s.cursor < len(s.order) {
		id := s.order[s.cursor]
		s.cursor++
		if d, ok := s.eligible(id, roster); ok {
			return d, true
		}
	}
	return RoleDefinition{}, false
}

func (s *NightSequencer) eligible(id RoleID, roster []Player) (RoleDefinition, bool) {
	d, ok := s.catalog.Lookup(id)
	if !ok || !d.ActsOn(s.round) {
		return RoleDefinition{}, false
	}
	if s.disabled[id] || (d.OnceOnly && s.used[id]) {
		return RoleDefinition{}, false
	}
	if !hasLivingHolder(roster, id) {
		return RoleDefinition{}, false
	}
	return d, true
}

// MarkUsed records that role has acted, which retires once-only roles.
func (s *NightSequencer) MarkUsed(role RoleID) {
	s.used[role] = true
}

// Disable removes role from every later night.
func (s *NightSequencer) Disable(role RoleID) {
	s.disabled[role] = true
}

// Used reports whether role has acted at least once this session.
func (s *NightSequencer) Used(role RoleID) bool {
	return s.used[role]
}

// Disabled reports whether role lost its night action.
func (s *NightSequencer) Disabled(role RoleID) bool {
	return s.disabled[role]
}
