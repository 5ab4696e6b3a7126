package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelligue/zvonizvonu/internal/adapters/signal"
	"github.com/pixelligue/zvonizvonu/internal/app/mesh"
	"github.com/pixelligue/zvonizvonu/internal/app/sfu"
	"github.com/pixelligue/zvonizvonu/internal/config"
	"github.com/pixelligue/zvonizvonu/internal/media"
	"github.com/pixelligue/zvonizvonu/internal/media/mediatest"
)

func newTestRouter(t *testing.T) (*gin.Engine, *sfu.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var fakes []*mediatest.Worker
	pool, err := media.NewPool(context.Background(), 1, mediatest.Factory(&fakes))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	orch := sfu.NewOrchestrator(pool, media.AudioCodecs())

	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	r := SetupRouter(context.Background(), cfg, Services{
		Rooms:      mesh.NewRegistry(),
		Forwarding: orch,
		Signal:     signal.NewSignalWSController(orch, signal.Options{}),
		Relay:      signal.NewMeshRelay(signal.Options{}),
	})
	return r, orch
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	code, body := do(t, r, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestAdmissionFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	code, body := do(t, r, http.MethodPost, "/api/rooms", "")
	require.Equal(t, http.StatusOK, code)
	room := body["code"].(string)
	require.Len(t, room, 6)
	lower := strings.ToLower(room)

	code, _ = do(t, r, http.MethodPost, "/api/rooms/"+lower+"/host", `{"peerId":"h1","name":"Host"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, r, http.MethodPost, "/api/rooms/"+room+"/request", `{"peerId":"p1","name":"Alice"}`)
	assert.Equal(t, http.StatusOK, code)

	_, body = do(t, r, http.MethodGet, "/api/rooms/"+room+"/admission/p1", "")
	assert.Equal(t, "PENDING", body["state"])

	_, body = do(t, r, http.MethodGet, "/api/rooms/"+room+"/pending", "")
	pending := body["pending"].([]any)
	require.Len(t, pending, 1)
	assert.Equal(t, "Alice", pending[0].(map[string]any)["name"])

	code, body = do(t, r, http.MethodPost, "/api/rooms/"+room+"/approve", `{"peerId":"p1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"h1", "p1"}, body["peers"])

	_, body = do(t, r, http.MethodGet, "/api/rooms/"+room+"/pending", "")
	assert.Empty(t, body["pending"])

	_, body = do(t, r, http.MethodGet, "/api/rooms/"+lower+"/admission/p1", "")
	assert.Equal(t, "ACTIVE", body["state"])
	_, body = do(t, r, http.MethodGet, "/api/rooms/"+room+"/admission/nobody", "")
	assert.Equal(t, "NONE", body["state"])

	code, body = do(t, r, http.MethodGet, "/api/rooms/"+lower, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, room, body["code"])
	assert.Equal(t, true, body["hasHost"])
	assert.Len(t, body["participants"], 2)

	code, body = do(t, r, http.MethodPost, "/api/rooms/"+room+"/screen-share", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["screenShareEnabled"])

	code, _ = do(t, r, http.MethodPost, "/api/rooms/"+room+"/allow-recording", `{"peerId":"p1"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodPost, "/api/rooms/"+room+"/disallow-recording", `{"peerId":"h1"}`)
	assert.Equal(t, http.StatusOK, code)

	_, body = do(t, r, http.MethodGet, "/api/rooms/"+room+"/settings", "")
	assert.Equal(t, false, body["screenShareEnabled"])
	assert.ElementsMatch(t, []any{"h1", "p1"}, body["recordingAllowed"])

	code, _ = do(t, r, http.MethodPost, "/api/rooms/"+room+"/leave", `{"peerId":"h1"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodGet, "/api/rooms/"+room, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUnknownRoom(t *testing.T) {
	r, _ := newTestRouter(t)
	cases := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/rooms/ZZZZZZ", ""},
		{http.MethodPost, "/api/rooms/ZZZZZZ/host", `{"peerId":"h1"}`},
		{http.MethodPost, "/api/rooms/ZZZZZZ/request", `{"peerId":"p1","name":"A"}`},
		{http.MethodPost, "/api/rooms/ZZZZZZ/approve", `{"peerId":"p1"}`},
		{http.MethodPost, "/api/rooms/ZZZZZZ/screen-share", `{"enabled":true}`},
		{http.MethodPost, "/api/rooms/ZZZZZZ/allow-recording", `{"peerId":"p1"}`},
		{http.MethodPost, "/api/rooms/ZZZZZZ/disallow-recording", `{"peerId":"p1"}`},
		{http.MethodGet, "/api/rooms/ZZZZZZ/settings", ""},
		{http.MethodGet, "/api/rooms/ZZZZZZ/admission/p1", ""},
		{http.MethodGet, "/api/sfu/ZZZZZZ/capabilities", ""},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			code, body := do(t, r, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusNotFound, code)
			assert.Equal(t, "Room not found", body["error"])
		})
	}

	code, body := do(t, r, http.MethodPost, "/api/rooms/ZZZZZZ/reject", `{"peerId":"p1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])

	_, body = do(t, r, http.MethodGet, "/api/rooms/ZZZZZZ/participants", "")
	assert.Equal(t, []any{}, body["participants"])
}

func TestBadBodies(t *testing.T) {
	r, _ := newTestRouter(t)
	_, body := do(t, r, http.MethodPost, "/api/rooms", "")
	room := body["code"].(string)

	for _, tc := range []struct{ path, body string }{
		{"/host", `{}`},
		{"/request", `{"name":"no id"}`},
		{"/approve", `not json`},
		{"/screen-share", `{}`},
		{"/host", `{"peerId":"` + strings.Repeat("x", 65) + `"}`},
	} {
		code, body := do(t, r, http.MethodPost, "/api/rooms/"+room+tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, code, tc.path)
		assert.NotEmpty(t, body["error"])
	}

	code, body := do(t, r, http.MethodGet, "/api/rooms/"+room, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["hasHost"], "rejected bodies must not mutate the room")
}

func TestCapabilities(t *testing.T) {
	r, orch := newTestRouter(t)
	_, err := orch.Join(context.Background(), "CAPS01", "p1")
	require.NoError(t, err)

	code, body := do(t, r, http.MethodGet, "/api/sfu/caps01/capabilities", "")
	assert.Equal(t, http.StatusOK, code)
	caps := body["rtpCapabilities"].(map[string]any)
	codecs := caps["codecs"].([]any)
	require.Len(t, codecs, 1)
	assert.Equal(t, "audio/opus", codecs[0].(map[string]any)["mimeType"])
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "ZvoniSessions", cookies[0].Name)
}
