package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"slices"
)

// PlayerID is a 1-based seat number. Zero means "nobody".
type PlayerID int

// Status is a special marker attached to a player during a game.
type Status string

const (
	StatusLover          Status = "lover"
	StatusVotedByVillage Status = "voted-by-village"
)

// Player is one seat at the table.
type Player struct {
	ID     PlayerID `json:"id"`
	Name   string   `json:"name"`
	Role   RoleID   `json:"role"`
	Alive  bool     `json:"alive"`
	Status []Status `json:"status,omitempty"`
}

// HasStatus reports whether s was attached to the player.
func (p Player) HasStatus(s Status) bool {
	return slices.Contains(p.Status, s)
}

func (p *Player) addStatus(s Status) {
	if !p.HasStatus(s) {
		p.Status = append(p.Status, s)
	}
}

// Selection maps a role to the number of seats that receive it.
type Selection map[RoleID]int

// Size is the total number of seats the selection fills.
func (s Selection) Size() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Shuffler is the random source used for role assignment. *rand.Rand from
// math/rand/v2 satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// NewRandom returns a ChaCha8 generator seeded from crypto/rand.
func NewRandom() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		binary.LittleEndian.PutUint64(seed[:], rand.Uint64())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// Assign expands selection into a multiset of roles, shuffles it and hands the
// roles out to players in order. The roster it returns is new; neither input
// is modified.
func Assign(catalog *Catalog, players []string, selection Selection, rnd Shuffler) ([]Player, error) {
	pool := expand(catalog, selection)
	if len(pool) != len(players) {
		return nil, newError(CodeRoleCountMismatch, "selection has %d roles for %d players", len(pool), len(players))
	}
	rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	roster := make([]Player, len(players))
	for i, name := range players {
		roster[i] = Player{ID: PlayerID(i + 1), Name: name, Role: pool[i], Alive: true}
	}
	return roster, nil
}

// expand lists role ids in catalog order so that the same seed always yields
// the same assignment regardless of map iteration order.
func expand(catalog *Catalog, selection Selection) []RoleID {
	var pool []RoleID
	for _, d := range catalog.roles {
		for range selection[d.ID] {
			pool = append(pool, d.ID)
		}
	}
	return pool
}
