package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-comms/internal/auth"
	"go-comms/internal/store"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, id int64, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		ID:       id,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestServer(t *testing.T, users ...*store.User) (*httptest.Server, *fixture) {
	t.Helper()
	f := newFixture(users...)
	gate := auth.NewGate(auth.NewJWTVerifier(testSecret))
	ws := NewServer(f.hub, f.router, gate, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(ws.ServeWS))
	t.Cleanup(srv.Close)
	return srv, f
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeWSRefusesMissingToken(t *testing.T) {
	srv, f := newTestServer(t)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, _, err := websocket.DefaultDialer.Dial(url+"/?token=not-a-token", nil); err == nil {
		t.Fatal("dial with a garbage token succeeded")
	}

	// Nothing unauthenticated ever reaches the registry.
	for id := int64(1); id <= 3; id++ {
		if conns := f.hub.ConnectionsOf(id); conns != nil {
			t.Fatalf("registry holds connections for user %d after refused upgrades", id)
		}
	}
}

func TestServeWSEndToEnd(t *testing.T) {
	srv, f := newTestServer(t,
		&store.User{ID: 1, Username: "alice"},
		&store.User{ID: 2, Username: "bob"},
	)

	alice := dial(t, srv, mintToken(t, 1, "alice"))
	bob := dial(t, srv, mintToken(t, 2, "bob"))

	// Wait until both registrations land.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.hub.ConnectionsOf(1)) == 1 && len(f.hub.ConnectionsOf(2)) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := alice.WriteMessage(websocket.TextMessage, []byte(`{"action":"send_message","to":2,"message":"hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	bob.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := bob.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var ev ChatMessageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventChatMessage || ev.Content != "hi" || ev.From != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}

	// The sender must not receive their own message.
	alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := alice.ReadMessage(); err == nil {
		t.Fatalf("sender received unexpected envelope: %s", data)
	}
}

func TestServeWSDisconnectDeregisters(t *testing.T) {
	srv, f := newTestServer(t, &store.User{ID: 1, Username: "alice"})

	conn := dial(t, srv, mintToken(t, 1, "alice"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.hub.ConnectionsOf(1)) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(f.hub.ConnectionsOf(1)) != 1 {
		t.Fatal("connection never registered")
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.hub.ConnectionsOf(1) == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("connection was not deregistered after disconnect")
}
