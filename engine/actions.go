package engine

import "slices"

// Action is the payload a role submits at night. Which fields matter depends
// on the role:
//
//	loup-garou, loup-blanc, voyante, renard, corbeau, docteur: Target
//	cupidon: Pair
//	sorciere: Save and/or Kill
type Action struct {
	Target PlayerID    `json:"target,omitempty"`
	Pair   [2]PlayerID `json:"pair,omitempty"`
	Save   bool        `json:"save,omitempty"`
	Kill   PlayerID    `json:"kill,omitempty"`
}

// NightActions holds at most one action per role for the current round.
type NightActions map[RoleID]Action

// WerewolfVictim returns the pack's target for the round, or 0.
func (n NightActions) WerewolfVictim() PlayerID {
	return n[RoleWerewolf].Target
}

// ActionResult is what the acting role learns. Only the Voyante and the
// Renard learn anything.
type ActionResult struct {
	Revealed       RoleID `json:"revealed,omitempty"`
	WerewolfNearby *bool  `json:"werewolf_nearby,omitempty"`
}

// Potions tracks the Sorcière's single-use potions.
type Potions struct {
	HealUsed   bool `json:"heal_used"`
	PoisonUsed bool `json:"poison_used"`
}

// ActionCollector validates and stores night actions for one round.
type ActionCollector struct {
	catalog *Catalog
	round   int
	actions NightActions
	potions Potions
}

// NewActionCollector starts collecting for round 1.
func NewActionCollector(catalog *Catalog) *ActionCollector {
	return &ActionCollector{catalog: catalog, round: 1, actions: NightActions{}}
}

// Reset discards the recorded actions and moves to round. Potions carry over.
func (c *ActionCollector) Reset(round int) {
	c.round = round
	c.actions = NightActions{}
}

// Actions returns a copy of the actions recorded this round.
func (c *ActionCollector) Actions() NightActions {
	out := make(NightActions, len(c.actions))
	for k, v := range c.actions {
		out[k] = v
	}
	return out
}

// Potions returns the Sorcière's potion usage.
func (c *ActionCollector) Potions() Potions {
	return c.potions
}

// Check validates an action without recording it.
func (c *ActionCollector) Check(roster []Player, role RoleID, a Action) (ActionResult, error) {
	d, ok := c.catalog.Lookup(role)
	if !ok || !d.HasNightAction {
		return ActionResult{}, newError(CodeActionNotPermitted, "role %q has no night action", role)
	}
	if _, done := c.actions[role]; done {
		return ActionResult{}, newError(CodeDuplicateAction, "%s already acted this night", d.Name)
	}
	if !d.ActsOn(c.round) {
		return ActionResult{}, newError(CodeActionNotPermitted, "%s cannot act on night %d", d.Name, c.round)
	}
	if !hasLivingHolder(roster, role) {
		return ActionResult{}, newError(CodeActionNotPermitted, "no living %s", d.Name)
	}

	switch role {
	case RoleWerewolf:
		t, err := livingTarget(roster, a.Target)
		if err != nil {
			return ActionResult{}, err
		}
		if factionOf(c.catalog, t) == FactionWerewolf {
			return ActionResult{}, newError(CodeInvalidTarget, "werewolves cannot devour %s", t.Name)
		}
	case RoleWhiteWerewolf:
		t, err := livingTarget(roster, a.Target)
		if err != nil {
			return ActionResult{}, err
		}
		if factionOf(c.catalog, t) != FactionWerewolf || t.Role == RoleWhiteWerewolf {
			return ActionResult{}, newError(CodeInvalidTarget, "%s is not another werewolf", t.Name)
		}
	case RoleSeer:
		t, err := livingTarget(roster, a.Target)
		if err != nil {
			return ActionResult{}, err
		}
		return ActionResult{Revealed: t.Role}, nil
	case RoleFox:
		if _, err := livingTarget(roster, a.Target); err != nil {
			return ActionResult{}, err
		}
		found := false
		for _, id := range append([]PlayerID{a.Target}, neighbours(roster, a.Target)...) {
			p, _ := lookup(roster, id)
			if factionOf(c.catalog, p) == FactionWerewolf {
				found = true
				break
			}
		}
		return ActionResult{WerewolfNearby: &found}, nil
	case RoleRaven, RoleDoctor:
		if _, err := livingTarget(roster, a.Target); err != nil {
			return ActionResult{}, err
		}
	case RoleCupid:
		if a.Pair[0] == a.Pair[1] {
			return ActionResult{}, newError(CodeInvalidTarget, "cupid needs two different players")
		}
		for _, id := range a.Pair {
			if _, err := livingTarget(roster, id); err != nil {
				return ActionResult{}, err
			}
		}
	case RoleWitch:
		return ActionResult{}, c.checkWitch(roster, a)
	}
	return ActionResult{}, nil
}

func (c *ActionCollector) checkWitch(roster []Player, a Action) error {
	victim := c.actions.WerewolfVictim()
	if a.Save && victim != 0 && c.potions.HealUsed {
		return newError(CodeActionNotPermitted, "the healing potion is already used")
	}
	if a.Kill == 0 {
		return nil
	}
	if c.potions.PoisonUsed {
		return newError(CodeActionNotPermitted, "the poison potion is already used")
	}
	t, err := livingTarget(roster, a.Kill)
	if err != nil {
		return err
	}
	if a.Save && a.Kill == victim {
		return newError(CodeInvalidTarget, "cannot poison %s while saving them", t.Name)
	}
	return nil
}

// Record validates and stores an action. Recorded actions are final.
func (c *ActionCollector) Record(roster []Player, role RoleID, a Action) (ActionResult, error) {
	res, err := c.Check(roster, role, a)
	if err != nil {
		return ActionResult{}, err
	}
	if role == RoleWitch {
		// A save only spends the potion when it is what keeps the victim alive
		victim := c.actions.WerewolfVictim()
		if a.Save && victim != 0 && c.actions[RoleDoctor].Target != victim {
			c.potions.HealUsed = true
		} else {
			a.Save = false
		}
		if a.Kill != 0 {
			c.potions.PoisonUsed = true
		}
	}
	if role == RoleCupid {
		slices.Sort(a.Pair[:])
	}
	c.actions[role] = a
	return res, nil
}
