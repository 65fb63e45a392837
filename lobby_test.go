package main

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loupgarou/engine"
)

func TestRolesEndpoint(t *testing.T) {
	tc := newTestContext(t)

	var roles RolesResponse
	resp := tc.getJSON("/api/roles?players=8", &roles)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, roles.Roles, len(engine.DefaultCatalog().Roles()))
	assert.Equal(t, engine.DefaultCatalog().NightOrder(), roles.NightOrder)
	assert.Equal(t, 8, roles.Default.Size())
	assert.Equal(t, 2, roles.Default[engine.RoleWerewolf])

	var plain RolesResponse
	tc.getJSON("/api/roles", &plain)
	assert.Nil(t, plain.Default)
}

func TestRolesEndpointRejectsBadCounts(t *testing.T) {
	tc := newTestContext(t)

	tests := []struct {
		query string
		code  string
	}{
		{"players=4", string(engine.CodeInvalidConfiguration)},
		{"players=31", string(engine.CodeInvalidConfiguration)},
		{"players=many", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var body map[string]string
			resp := tc.getJSON("/api/roles?"+tt.query, &body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestCreateGame(t *testing.T) {
	tc := newTestContext(t)

	var missing map[string]string
	resp := tc.getJSON("/api/game", &missing)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	view := tc.createGame()
	assert.Equal(t, "game", view.Type)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, 1, view.Round)
	require.Len(t, view.Players, 5)
	assert.Equal(t, engine.RoleWerewolf, view.Players[0].Role)
	assert.Equal(t, "Bob", view.Players[1].Name)
	require.Len(t, view.History, 1)
	assert.Equal(t, "A new game begins with 5 players", view.History[0].Description)

	var got ModeratorView
	resp = tc.getJSON("/api/game", &got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, view.SessionID, got.SessionID)
}

func TestCreateGameUsesDefaultSelection(t *testing.T) {
	tc := newTestContext(t)

	var view ModeratorView
	resp := tc.postJSON("/api/game", NewGameRequest{Players: tableNames}, &view)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	counts := map[engine.RoleID]int{}
	for _, p := range view.Players {
		counts[p.Role]++
	}
	want, err := engine.DefaultCatalog().DefaultSelection(len(tableNames))
	require.NoError(t, err)
	assert.Equal(t, map[engine.RoleID]int(want), counts)
}

func TestCreateGameRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name   string
		req    NewGameRequest
		status int
		code   engine.Code
	}{
		{
			name:   "too few players",
			req:    NewGameRequest{Players: []string{"A", "B", "C"}},
			status: http.StatusBadRequest,
			code:   engine.CodeInvalidConfiguration,
		},
		{
			name:   "count mismatch",
			req:    NewGameRequest{Players: tableNames, Roles: engine.Selection{engine.RoleWerewolf: 1, engine.RoleVillager: 3}},
			status: http.StatusBadRequest,
			code:   engine.CodeRoleCountMismatch,
		},
		{
			name:   "no werewolf",
			req:    NewGameRequest{Players: tableNames, Roles: engine.Selection{engine.RoleSeer: 1, engine.RoleVillager: 4}},
			status: http.StatusBadRequest,
			code:   engine.CodeInvalidConfiguration,
		},
		{
			name:   "duplicate names",
			req:    NewGameRequest{Players: []string{"A", "B", "C", "D", "A"}, Roles: smallTable},
			status: http.StatusBadRequest,
			code:   engine.CodeInvalidConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestContext(t)
			var body map[string]string
			resp := tc.postJSON("/api/game", tt.req, &body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, string(tt.code), body["code"])
			assert.Nil(t, currentGame())
		})
	}
}

func TestCreateGameRejectsBadBody(t *testing.T) {
	tc := newTestContext(t)
	resp, err := http.Post(tc.baseURL+"/api/game", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateGameWhileOneIsRunning(t *testing.T) {
	tc := newTestContext(t)
	first := tc.createGame()

	var body map[string]string
	resp := tc.postJSON("/api/game", NewGameRequest{Players: tableNames, Roles: smallTable}, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, first.SessionID, currentGame().id)

	resp = tc.postJSON("/api/game/reset", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Nil(t, currentGame())

	second := tc.createGame()
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestNewGameMessageResetsGame(t *testing.T) {
	tc := newTestContext(t)
	tc.createGame()

	mod := tc.dial("")
	mod.nextPhase(engine.PhaseSetup)
	mod.send(WSMessage{Action: "new_game"})
	mod.next(func(f wsFrame) bool { return f.Type == "no_game" })
	assert.Nil(t, currentGame())
}

func TestJoinQRCode(t *testing.T) {
	tc := newTestContext(t)

	resp, err := http.Get(tc.baseURL + "/game/qr.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	tc.createGame()
	resp, err = http.Get(tc.baseURL + "/game/qr.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestConcurrentCreateGameKeepsOneGame(t *testing.T) {
	newTestContext(t)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := newGame(context.Background(), NewGameRequest{Players: tableNames, Roles: smallTable})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, errGameInProgress)
	}
	assert.Equal(t, 1, created)

	var sessions int
	require.NoError(t, store.db.Get(&sessions, `SELECT COUNT(*) FROM game_session`))
	assert.Equal(t, 1, sessions)
	rec, _, ok, err := store.LatestActive(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, currentGame().id, rec.ID)
}
