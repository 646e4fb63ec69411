package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/identity"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/session"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const ownerPassphrase = "by-sigmar"

type testEnv struct {
	srv   *httptest.Server
	store *memory.Store
	mgr   *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	hash, err := bcrypt.GenerateFromPassword([]byte(ownerPassphrase), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := identity.NewAuthenticator(string(hash), logger)
	require.NoError(t, err)

	store := memory.New()
	catalog := advantage.DefaultCatalog()
	mgr := session.NewManager(store, catalog, session.Options{}, time.Minute, logger)
	api := New(mgr, auth, catalog, WebSocketOptions{WriteWait: time.Second}, logger)

	srv := httptest.NewServer(api.Router())
	t.Cleanup(func() {
		srv.Close()
		mgr.CloseAll()
	})
	return &testEnv{srv: srv, store: store, mgr: mgr}
}

func (e *testEnv) dial(t *testing.T, sessionID, name, passphrase string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/" + sessionID +
		"?name=" + name + "&passphrase=" + passphrase
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	readUntil(t, conn, func(f Frame) bool { return f.Type == FrameWelcome })
	readUntil(t, conn, func(f Frame) bool { return f.Type == FrameView })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, in Intent) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

// readUntil returns the first frame matching match, failing after a second.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f Frame
		err := conn.ReadJSON(&f)
		require.NoError(t, err, "waiting for frame")
		if match(f) {
			return f
		}
	}
}

func errorFrame(code string) func(Frame) bool {
	return func(f Frame) bool {
		return f.Type == FrameError && f.Error != nil && f.Error.Code == code
	}
}

func intPtr(v int) *int { return &v }

func TestHealthAndCatalog(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/api/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Actions []advantage.ActionDefinition `json:"actions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Actions, 5)
	assert.Equal(t, "Batter", body.Actions[0].Name)
	assert.Equal(t, 4, body.Actions[4].Cost)
}

func TestSessionSnapshotEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Set(context.Background(), "table-1", advantage.Allies, 3))

	resp, err := http.Get(env.srv.URL + "/api/sessions/table-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "table-1", snap.ID)
	assert.Equal(t, 3, snap.Allies)

	bad, err := http.Get(env.srv.URL + "/api/sessions/bad%20id")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestWebSocketRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	base := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/table-1"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?name=GM&passphrase=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketSpendFlow(t *testing.T) {
	env := newTestEnv(t)
	gm := env.dial(t, "table-1", "GM", ownerPassphrase)
	ada := env.dial(t, "table-1", "Ada", "")

	send(t, gm, Intent{Type: IntentSet, Kind: "adversaries", Value: intPtr(5)})
	readUntil(t, gm, func(f Frame) bool { return f.Type == FrameView && f.View.Adversaries == 5 })
	readUntil(t, ada, func(f Frame) bool { return f.Type == FrameView && f.View.Adversaries == 5 })

	send(t, gm, Intent{Type: IntentSpend, Kind: "adversaries", Action: "Flee from harm"})
	note := readUntil(t, ada, func(f Frame) bool { return f.Type == FrameNotification })
	require.NotNil(t, note.Notification)
	assert.Equal(t, "Flee from harm", note.Notification.ActionName)
	assert.Equal(t, 2, note.Notification.Cost)
	assert.Equal(t, advantage.DefaultOwnerLabel, note.Notification.ActorLabel)
	readUntil(t, ada, func(f Frame) bool { return f.Type == FrameView && f.View.Adversaries == 3 })

	v, err := env.store.Get(context.Background(), "table-1", advantage.Adversaries)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestWebSocketErrorFrames(t *testing.T) {
	env := newTestEnv(t)
	ada := env.dial(t, "table-1", "Ada", "")

	send(t, ada, Intent{Type: IntentSpend, Kind: "allies", Action: "Batter"})
	f := readUntil(t, ada, errorFrame(CodeInsufficientPoints))
	assert.Equal(t, IntentSpend, f.Error.Intent)

	send(t, ada, Intent{Type: IntentSpend, Kind: "adversaries", Action: "Batter"})
	readUntil(t, ada, errorFrame(CodePermissionDenied))

	send(t, ada, Intent{Type: IntentSpend, Kind: "allies", Action: "Fireball"})
	readUntil(t, ada, errorFrame(CodeUnknownAction))

	send(t, ada, Intent{Type: IntentAdjust, Kind: "allies", Delta: -1})
	readUntil(t, ada, errorFrame(CodeNegativeResult))

	send(t, ada, Intent{Type: IntentRoundAdvanced, Round: 1})
	readUntil(t, ada, errorFrame(CodePermissionDenied))

	send(t, ada, Intent{Type: "dance"})
	readUntil(t, ada, errorFrame(CodeBadRequest))

	require.NoError(t, ada.WriteMessage(websocket.TextMessage, []byte("{not json")))
	readUntil(t, ada, errorFrame(CodeBadRequest))

	send(t, ada, Intent{Type: IntentPing})
	readUntil(t, ada, func(f Frame) bool { return f.Type == FramePong })
}

func TestWebSocketViewerSetIsLocal(t *testing.T) {
	env := newTestEnv(t)
	gm := env.dial(t, "table-1", "GM", ownerPassphrase)
	ada := env.dial(t, "table-1", "Ada", "")

	send(t, ada, Intent{Type: IntentSet, Kind: "allies", Value: intPtr(10)})
	readUntil(t, ada, func(f Frame) bool { return f.Type == FrameView && f.View.Allies == 10 })

	v, err := env.store.Get(context.Background(), "table-1", advantage.Allies)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	// The owner only sees its own pong, never Ada's local value.
	send(t, gm, Intent{Type: IntentPing})
	readUntil(t, gm, func(f Frame) bool {
		if f.Type == FrameView {
			assert.Equal(t, 0, f.View.Allies)
		}
		return f.Type == FramePong
	})
}

func TestWebSocketSessionEnded(t *testing.T) {
	env := newTestEnv(t)
	gm := env.dial(t, "table-1", "GM", ownerPassphrase)
	ada := env.dial(t, "table-1", "Ada", "")

	send(t, gm, Intent{Type: IntentSet, Kind: "allies", Value: intPtr(4)})
	send(t, gm, Intent{Type: IntentRoundAdvanced, Round: 1})
	readUntil(t, ada, func(f Frame) bool {
		return f.Type == FrameView && f.View.Allies == 4 && f.View.Display == advantage.Shown
	})

	send(t, gm, Intent{Type: IntentSessionEnded})
	readUntil(t, ada, func(f Frame) bool {
		return f.Type == FrameView && f.View.Allies == 0 && f.View.Display == advantage.Hidden
	})

	snap, err := env.mgr.Snapshot(context.Background(), "table-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Allies)
	assert.False(t, snap.Shown)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeInsufficientPoints, errorCode(advantage.ErrInsufficientPoints))
	assert.Equal(t, CodeBadRequest, errorCode(advantage.ErrUnknownKind))
	assert.Equal(t, CodeUnauthorized, errorCode(identity.ErrInvalidPassphrase))
	assert.Equal(t, CodeInternal, errorCode(errors.New("disk on fire")))
}
