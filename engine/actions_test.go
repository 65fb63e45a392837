package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRejectsDuplicates(t *testing.T) {
	roster := table(RoleWerewolf, RoleSeer, RoleVillager, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())

	_, err := c.Record(roster, RoleWerewolf, Action{Target: 3})
	require.NoError(t, err)
	_, err = c.Record(roster, RoleWerewolf, Action{Target: 4})
	assert.ErrorIs(t, err, ErrDuplicateAction)
	assert.Equal(t, PlayerID(3), c.Actions().WerewolfVictim())
}

func TestCollectorTargets(t *testing.T) {
	roster := table(RoleWerewolf, RoleWhiteWerewolf, RoleSeer, RoleDoctor, RoleVillager, RoleVillager)
	roster[5].Alive = false

	tests := []struct {
		name string
		role RoleID
		a    Action
		want error
	}{
		{"wolves cannot eat a wolf", RoleWerewolf, Action{Target: 2}, ErrInvalidTarget},
		{"wolves cannot eat the dead", RoleWerewolf, Action{Target: 6}, ErrInvalidTarget},
		{"wolves need a seat", RoleWerewolf, Action{}, ErrInvalidTarget},
		{"seat out of range", RoleSeer, Action{Target: 9}, ErrInvalidTarget},
		{"doctor protects the living", RoleDoctor, Action{Target: 6}, ErrInvalidTarget},
		{"no holder", RoleRaven, Action{Target: 3}, ErrActionNotPermitted},
		{"no night action", RoleVillager, Action{Target: 3}, ErrActionNotPermitted},
		{"white wolf sleeps on odd nights", RoleWhiteWerewolf, Action{Target: 1}, ErrActionNotPermitted},
		{"wolves eat a villager", RoleWerewolf, Action{Target: 5}, nil},
		{"doctor protects their own seat", RoleDoctor, Action{Target: 4}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewActionCollector(DefaultCatalog())
			_, err := c.Check(roster, tt.role, tt.a)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestWhiteWerewolfTargetsAnotherWolf(t *testing.T) {
	roster := table(RoleWerewolf, RoleWhiteWerewolf, RoleSeer, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())
	c.Reset(2)

	_, err := c.Check(roster, RoleWhiteWerewolf, Action{Target: 3})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = c.Check(roster, RoleWhiteWerewolf, Action{Target: 2})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = c.Record(roster, RoleWhiteWerewolf, Action{Target: 1})
	assert.NoError(t, err)
}

func TestSeerLearnsTheRole(t *testing.T) {
	roster := table(RoleWerewolf, RoleSeer, RoleHunter, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())
	res, err := c.Record(roster, RoleSeer, Action{Target: 3})
	require.NoError(t, err)
	assert.Equal(t, RoleHunter, res.Revealed)
}

func TestFoxSniffsNeighbours(t *testing.T) {
	roster := table(RoleWerewolf, RoleVillager, RoleFox, RoleVillager, RoleVillager, RoleVillager)

	res, err := NewActionCollector(DefaultCatalog()).Record(roster, RoleFox, Action{Target: 2})
	require.NoError(t, err)
	require.NotNil(t, res.WerewolfNearby)
	assert.True(t, *res.WerewolfNearby)

	res, err = NewActionCollector(DefaultCatalog()).Record(roster, RoleFox, Action{Target: 4})
	require.NoError(t, err)
	assert.False(t, *res.WerewolfNearby)

	// Seat 6 sits next to seat 1 around the table.
	res, err = NewActionCollector(DefaultCatalog()).Record(roster, RoleFox, Action{Target: 6})
	require.NoError(t, err)
	assert.True(t, *res.WerewolfNearby)
}

func TestCupidPair(t *testing.T) {
	roster := table(RoleWerewolf, RoleCupid, RoleVillager, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())

	_, err := c.Check(roster, RoleCupid, Action{Pair: [2]PlayerID{3, 3}})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = c.Check(roster, RoleCupid, Action{Pair: [2]PlayerID{3, 0}})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = c.Record(roster, RoleCupid, Action{Pair: [2]PlayerID{5, 2}})
	require.NoError(t, err)
	assert.Equal(t, [2]PlayerID{2, 5}, c.Actions()[RoleCupid].Pair)

	c.Reset(2)
	_, err = c.Check(roster, RoleCupid, Action{Pair: [2]PlayerID{3, 4}})
	assert.ErrorIs(t, err, ErrActionNotPermitted)
}

func TestWitchCannotSaveAndPoisonTheSameVictim(t *testing.T) {
	roster := table(RoleWerewolf, RoleWitch, RoleVillager, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())
	_, err := c.Record(roster, RoleWerewolf, Action{Target: 3})
	require.NoError(t, err)

	_, err = c.Record(roster, RoleWitch, Action{Save: true, Kill: 3})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Equal(t, Potions{}, c.Potions())
}

func TestWitchPotionsAreSingleUse(t *testing.T) {
	roster := table(RoleWerewolf, RoleWitch, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())
	_, err := c.Record(roster, RoleWerewolf, Action{Target: 3})
	require.NoError(t, err)
	_, err = c.Record(roster, RoleWitch, Action{Save: true, Kill: 4})
	require.NoError(t, err)
	assert.Equal(t, Potions{HealUsed: true, PoisonUsed: true}, c.Potions())

	c.Reset(2)
	_, err = c.Record(roster, RoleWerewolf, Action{Target: 5})
	require.NoError(t, err)
	_, err = c.Check(roster, RoleWitch, Action{Save: true})
	assert.ErrorIs(t, err, ErrActionNotPermitted)
	_, err = c.Check(roster, RoleWitch, Action{Kill: 6})
	assert.ErrorIs(t, err, ErrActionNotPermitted)
	_, err = c.Record(roster, RoleWitch, Action{})
	assert.NoError(t, err)
}

func TestWitchSaveWithoutVictimKeepsThePotion(t *testing.T) {
	roster := table(RoleWerewolf, RoleWitch, RoleVillager, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())
	_, err := c.Record(roster, RoleWitch, Action{Save: true})
	require.NoError(t, err)
	assert.False(t, c.Potions().HealUsed)
	assert.False(t, c.Actions()[RoleWitch].Save)
}

func TestWitchSaveOnProtectedVictimKeepsThePotion(t *testing.T) {
	roster := table(RoleWerewolf, RoleWitch, RoleDoctor, RoleVillager, RoleVillager)
	c := NewActionCollector(DefaultCatalog())
	_, err := c.Record(roster, RoleDoctor, Action{Target: 4})
	require.NoError(t, err)
	_, err = c.Record(roster, RoleWerewolf, Action{Target: 4})
	require.NoError(t, err)

	_, err = c.Record(roster, RoleWitch, Action{Save: true})
	require.NoError(t, err)
	assert.False(t, c.Potions().HealUsed)

	res := ResolveNight(DefaultCatalog(), roster, c.Actions(), nil)
	assert.Empty(t, res.Deaths)
}
