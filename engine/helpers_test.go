package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// keepOrder deals roles in catalog order.
type keepOrder struct{}

func (keepOrder) Shuffle(int, func(i, j int)) {}

// table builds a living roster where seat n+1 holds roles[n].
func table(roles ...RoleID) []Player {
	roster := make([]Player, len(roles))
	for i, r := range roles {
		roster[i] = Player{ID: PlayerID(i + 1), Name: fmt.Sprintf("P%d", i+1), Role: r, Alive: true}
	}
	return roster
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Joueur %d", i+1)
	}
	return out
}

// started returns a session in its first night with roles dealt in catalog
// order.
func started(t *testing.T, sel Selection) *Session {
	t.Helper()
	s, err := NewSession(names(sel.Size()), sel, WithRand(keepOrder{}), WithID("test"))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

func acting(t *testing.T, s *Session) RoleID {
	t.Helper()
	d, ok := s.CurrentActingRole()
	require.True(t, ok, "expected a role to be awake")
	return d.ID
}
