// Package engine implements the Loup-Garou rules: role catalog, role
// assignment, night turn order, night and day resolution and win detection.
//
// A Session is the only mutable type. It assumes a single writer; callers that
// accept input from several devices serialize it before calling in.
package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RoleID identifies a role in the catalog.
type RoleID string

const (
	RoleWerewolf      RoleID = "loup-garou"
	RoleWhiteWerewolf RoleID = "loup-blanc"
	RoleSeer          RoleID = "voyante"
	RoleWitch         RoleID = "sorciere"
	RoleHunter        RoleID = "chasseur"
	RoleCupid         RoleID = "cupidon"
	RoleFool          RoleID = "fou"
	RoleRaven         RoleID = "corbeau"
	RoleFox           RoleID = "renard"
	RoleDoctor        RoleID = "docteur"
	RoleWiseMan       RoleID = "homme-sage"
	RoleVillager      RoleID = "villageois"
)

// Faction is the team a role plays for.
type Faction string

const (
	FactionWerewolf Faction = "werewolf"
	FactionVillage  Faction = "village"
	FactionSolo     Faction = "solo"
)

// Reaction is what a role does when it dies.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionRevenge Reaction = "revenge"
)

const (
	MinPlayers = 5
	MaxPlayers = 30
)

// RoleDefinition is immutable catalog data.
type RoleDefinition struct {
	ID             RoleID  `json:"id"`
	Name           string  `json:"name"`
	Faction        Faction `json:"faction"`
	Description    string  `json:"description"`
	HasNightAction bool    `json:"has_night_action"`
	// OnceOnly roles act on round 1 and never again.
	OnceOnly     bool     `json:"once_only"`
	MinimumCount int      `json:"minimum_count"`
	Default      bool     `json:"default"`
	Reaction     Reaction `json:"reaction,omitempty"`
	// ActsEvery is 1 for every night, 2 for every other night (even rounds).
	ActsEvery int `json:"acts_every,omitempty"`
}

// ActsOn reports whether the role may wake up on the given round, ignoring
// holders and usage history.
func (d RoleDefinition) ActsOn(round int) bool {
	if !d.HasNightAction {
		return false
	}
	if d.OnceOnly && round != 1 {
		return false
	}
	if d.ActsEvery > 1 && round%d.ActsEvery != 0 {
		return false
	}
	return true
}

// Catalog is a read-only registry of role definitions.
type Catalog struct {
	roles []RoleDefinition
	byID  map[RoleID]RoleDefinition
	order []RoleID
}

var defaultCatalog = newCatalog([]RoleDefinition{
	{ID: RoleWerewolf, Name: "Loup-Garou", Faction: FactionWerewolf, Description: "Dévore un villageois chaque nuit", HasNightAction: true, MinimumCount: 1, Default: true, ActsEvery: 1},
	{ID: RoleWhiteWerewolf, Name: "Loup Blanc", Faction: FactionWerewolf, Description: "Loup-Garou qui peut éliminer un autre loup une nuit sur deux", HasNightAction: true, ActsEvery: 2},
	{ID: RoleSeer, Name: "Voyante", Faction: FactionVillage, Description: "Découvre l'identité d'un joueur chaque nuit", HasNightAction: true, Default: true, ActsEvery: 1},
	{ID: RoleWitch, Name: "Sorcière", Faction: FactionVillage, Description: "Possède deux potions : une pour sauver, une pour tuer", HasNightAction: true, Default: true, ActsEvery: 1},
	{ID: RoleHunter, Name: "Chasseur", Faction: FactionVillage, Description: "Peut éliminer un joueur en mourant", Default: true, Reaction: ReactionRevenge},
	{ID: RoleCupid, Name: "Cupidon", Faction: FactionVillage, Description: "Désigne deux amoureux qui partageront le même destin", HasNightAction: true, OnceOnly: true, Default: true, ActsEvery: 1},
	{ID: RoleFool, Name: "Fou", Faction: FactionSolo, Description: "Gagne s'il se fait éliminer par le village"},
	{ID: RoleRaven, Name: "Corbeau", Faction: FactionVillage, Description: "Désigne un joueur suspect chaque nuit", HasNightAction: true, ActsEvery: 1},
	{ID: RoleFox, Name: "Renard", Faction: FactionVillage, Description: "Peut détecter la présence de loups-garous", HasNightAction: true, ActsEvery: 1},
	{ID: RoleDoctor, Name: "Docteur", Faction: FactionVillage, Description: "Peut protéger un joueur chaque nuit", HasNightAction: true, ActsEvery: 1},
	{ID: RoleWiseMan, Name: "Homme Sage", Faction: FactionVillage, Description: "Connaît tous les rôles en jeu"},
	{ID: RoleVillager, Name: "Villageois", Faction: FactionVillage, Description: "Doit démasquer les loups-garous", Default: true},
}, []RoleID{RoleCupid, RoleSeer, RoleFox, RoleRaven, RoleDoctor, RoleWerewolf, RoleWhiteWerewolf, RoleWitch})

func newCatalog(roles []RoleDefinition, order []RoleID) *Catalog {
	c := &Catalog{roles: roles, byID: make(map[RoleID]RoleDefinition, len(roles)), order: order}
	for _, r := range roles {
		c.byID[r.ID] = r
	}
	return c
}

// DefaultCatalog returns the process-wide role catalog.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id RoleID) (RoleDefinition, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Resolve accepts an id or a display name in any case, with or without accents
// ("Sorcière", "sorciere", "SORCIERE", "Homme Sage").
func (c *Catalog) Resolve(name string) (RoleDefinition, bool) {
	if d, ok := c.byID[RoleID(name)]; ok {
		return d, true
	}
	key := normalizeRoleName(name)
	for _, d := range c.roles {
		if normalizeRoleName(string(d.ID)) == key || normalizeRoleName(d.Name) == key {
			return d, true
		}
	}
	return RoleDefinition{}, false
}

// Roles returns every definition in catalog order.
func (c *Catalog) Roles() []RoleDefinition {
	return append([]RoleDefinition(nil), c.roles...)
}

// DefinitionsFor returns the roles of one faction in catalog order.
func (c *Catalog) DefinitionsFor(f Faction) []RoleDefinition {
	var out []RoleDefinition
	for _, d := range c.roles {
		if d.Faction == f {
			out = append(out, d)
		}
	}
	return out
}

// NightOrder returns the fixed night precedence.
func (c *Catalog) NightOrder() []RoleID {
	return append([]RoleID(nil), c.order...)
}

// DefaultSelection proposes a role selection for playerCount players:
// max(1, n/4) werewolves, one of each default special role, villagers for the rest.
func (c *Catalog) DefaultSelection(playerCount int) (Selection, error) {
	if playerCount < MinPlayers || playerCount > MaxPlayers {
		return nil, newError(CodeInvalidConfiguration, "player count %d outside %d..%d", playerCount, MinPlayers, MaxPlayers)
	}
	sel := Selection{RoleWerewolf: max(1, playerCount/4)}
	used := sel[RoleWerewolf]
	for _, d := range c.roles {
		if !d.Default || d.ID == RoleWerewolf || d.ID == RoleVillager {
			continue
		}
		if used == playerCount {
			break
		}
		sel[d.ID] = 1
		used++
	}
	if rest := playerCount - used; rest > 0 {
		sel[RoleVillager] = rest
	}
	return sel, nil
}

func normalizeRoleName(s string) string {
	// Transformers keep state, so each call builds its own chain.
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}
	folded = cases.Lower(language.French).String(strings.TrimSpace(folded))
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "-")
}
