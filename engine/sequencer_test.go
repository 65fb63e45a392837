package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func drain(s *NightSequencer, roster []Player) []RoleID {
	var out []RoleID
	for {
		d, ok := s.Next(roster)
		if !ok {
			return out
		}
		out = append(out, d.ID)
	}
}

func TestSequencerFirstNight(t *testing.T) {
	roster := table(RoleWerewolf, RoleWitch, RoleSeer, RoleCupid, RoleHunter, RoleVillager)
	s := NewNightSequencer(DefaultCatalog())
	assert.Equal(t, []RoleID{RoleCupid, RoleSeer, RoleWerewolf, RoleWitch}, drain(s, roster))
}

func TestSequencerLaterNights(t *testing.T) {
	roster := table(RoleWerewolf, RoleWhiteWerewolf, RoleSeer, RoleCupid, RoleVillager, RoleVillager)
	s := NewNightSequencer(DefaultCatalog())
	s.MarkUsed(RoleCupid)

	s.Restart(2)
	assert.Equal(t, []RoleID{RoleSeer, RoleWerewolf, RoleWhiteWerewolf}, drain(s, roster))

	s.Restart(3)
	assert.Equal(t, []RoleID{RoleSeer, RoleWerewolf}, drain(s, roster))
}

func TestSequencerSkipsDeadAndDisabledRoles(t *testing.T) {
	roster := table(RoleWerewolf, RoleSeer, RoleFox, RoleWitch, RoleVillager)
	roster[1].Alive = false
	s := NewNightSequencer(DefaultCatalog())
	s.Disable(RoleFox)
	assert.Equal(t, []RoleID{RoleWerewolf, RoleWitch}, drain(s, roster))
	assert.True(t, s.Disabled(RoleFox))
	assert.False(t, s.Used(RoleFox))
}

func TestSequencerKeepsRolesWithoutHoldersAsleep(t *testing.T) {
	roster := table(RoleWerewolf, RoleVillager, RoleVillager, RoleVillager, RoleVillager)
	s := NewNightSequencer(DefaultCatalog())
	assert.Equal(t, []RoleID{RoleWerewolf}, drain(s, roster))
}
