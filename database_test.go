package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loupgarou/engine"
)

// forEachDriver runs fn against a fresh store for both SQLite drivers.
func forEachDriver(t *testing.T, fn func(t *testing.T, s *SessionStore)) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			s, err := openStore(driver, filepath.Join(t.TempDir(), "store.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func testSnapshot(t *testing.T, id string) engine.Snapshot {
	t.Helper()
	s, err := engine.NewSession(tableNames, smallTable, engine.WithRand(keepOrder{}), engine.WithID(id))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s.Snapshot()
}

func assertSameSnapshot(t *testing.T, want, got engine.Snapshot) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}

func TestStoreSaveAndLatestActive(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		ctx := context.Background()

		_, _, ok, err := s.LatestActive(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		first := testSnapshot(t, "first")
		require.NoError(t, s.Commit(ctx, "111111", first, nil))
		second := testSnapshot(t, "second")
		require.NoError(t, s.Commit(ctx, "222222", second, nil))

		rec, snap, ok, err := s.LatestActive(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "second", rec.ID)
		assert.Equal(t, "222222", rec.Code)
		assert.Equal(t, string(engine.PhaseNight), rec.Phase)
		assertSameSnapshot(t, second, snap)

		// Saving again updates the row in place
		first.Round = 3
		require.NoError(t, s.Commit(ctx, "111111", first, nil))
		rec, snap, ok, err = s.LatestActive(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "first", rec.ID)
		assert.Equal(t, 3, rec.Round)
		assert.Equal(t, 3, snap.Round)
		assert.Equal(t, "111111", rec.Code)
	})
}

func TestStoreSkipsClosedAndEnded(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		ctx := context.Background()

		closed := testSnapshot(t, "closed")
		require.NoError(t, s.Commit(ctx, "111111", closed, nil))
		require.NoError(t, s.CloseSession(ctx, "closed"))

		ended := testSnapshot(t, "ended")
		ended.Phase = engine.PhaseEnded
		ended.Outcome = engine.OutcomeVillageWins
		require.NoError(t, s.Commit(ctx, "222222", ended, nil))

		_, _, ok, err := s.LatestActive(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStoreHistory(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, "111111", testSnapshot(t, "g"), nil))

		_, err := s.AppendEvent(ctx, HistoryEvent{SessionID: "g", Round: 1, Phase: "night", Kind: EventNightDeath, Description: "first"})
		require.NoError(t, err)
		story, err := s.AppendEvent(ctx, HistoryEvent{SessionID: "g", Round: 1, Phase: "night", Kind: EventStory})
		require.NoError(t, err)
		last, err := s.AppendEvent(ctx, HistoryEvent{SessionID: "g", Round: 1, Phase: "day", Kind: EventElimination, Description: "last"})
		require.NoError(t, err)
		_, err = s.AppendEvent(ctx, HistoryEvent{SessionID: "other", Round: 1, Phase: "day", Kind: EventElimination, Description: "elsewhere"})
		require.NoError(t, err)

		lines, err := s.Descriptions(ctx, "g")
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "last"}, lines, "empty stories stay hidden")

		require.NoError(t, s.UpdateEvent(ctx, story, "a dark tale"))
		lines, err = s.Descriptions(ctx, "g")
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "a dark tale", "last"}, lines)

		require.NoError(t, s.DeleteEvent(ctx, last))
		events, err := s.History(ctx, "g")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, EventStory, events[1].Kind)
		assert.Equal(t, "g", events[1].SessionID)
		assert.NotZero(t, events[1].CreatedAt)

		none, err := s.History(ctx, "missing")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}

func TestStoreDump(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		ctx := context.Background()
		require.NoError(t, s.Commit(ctx, "424242", testSnapshot(t, "dumped"), nil))

		var buf bytes.Buffer
		require.NoError(t, s.Dump(&buf))
		out := buf.String()
		assert.Contains(t, out, "--- Table: game_session ---")
		assert.Contains(t, out, "424242")
		assert.Contains(t, out, "--- Table: game_history ---\n(empty)")
	})
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := openStore("postgres", "whatever")
	assert.Error(t, err)
}

func TestStoreCommit(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		ctx := context.Background()
		snap := testSnapshot(t, "g")
		require.NoError(t, s.Commit(ctx, "111111", snap, []HistoryEvent{
			{Round: 1, Phase: "night", Kind: EventNoDeath, Description: "Night 1: nobody died"},
		}))

		rec, _, ok, err := s.LatestActive(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "g", rec.ID)
		lines, err := s.Descriptions(ctx, "g")
		require.NoError(t, err)
		assert.Equal(t, []string{"Night 1: nobody died"}, lines)
	})
}

func TestStoreCommitWritesNothingOnFailure(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		ctx := context.Background()
		_, err := s.db.Exec(`DROP TABLE game_history`)
		require.NoError(t, err)

		err = s.Commit(ctx, "111111", testSnapshot(t, "g"), []HistoryEvent{
			{Round: 1, Phase: "night", Kind: EventNoDeath, Description: "lost"},
		})
		assert.Error(t, err)

		_, _, ok, err := s.LatestActive(ctx)
		require.NoError(t, err)
		assert.False(t, ok, "the snapshot is rolled back with its history")
	})
}

func TestDumpReportsTableErrors(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s *SessionStore) {
		var buf bytes.Buffer
		assert.Error(t, dumpTable(&buf, s.db, "missing"))
		assert.NotContains(t, buf.String(), "(empty)")
	})
}
