package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"go-comms/internal/auth"
)

var testConnSeq int64

func testClient(h *Hub, userID int64, username string, buffer int) *Client {
	return &Client{
		id:       fmt.Sprintf("conn-%d", atomic.AddInt64(&testConnSeq, 1)),
		identity: auth.Identity{ID: userID, Username: username},
		hub:      h,
		logger:   zerolog.Nop(),
		send:     make(chan []byte, buffer),
	}
}

func TestRegistryAddRemove(t *testing.T) {
	h := NewHub(zerolog.Nop())

	c1 := testClient(h, 1, "alice", 8)
	c2 := testClient(h, 1, "alice", 8)
	c3 := testClient(h, 2, "bob", 8)

	h.Register(c1)
	h.Register(c2)
	h.Register(c3)

	if got := len(h.ConnectionsOf(1)); got != 2 {
		t.Fatalf("ConnectionsOf(1) = %d connections, want 2", got)
	}
	if got := len(h.ConnectionsOf(2)); got != 1 {
		t.Fatalf("ConnectionsOf(2) = %d connections, want 1", got)
	}

	h.Deregister(c1)
	conns := h.ConnectionsOf(1)
	if len(conns) != 1 || conns[0] != c2 {
		t.Fatalf("after deregister, ConnectionsOf(1) = %v, want [c2]", conns)
	}

	// Idempotent: a second deregister changes nothing.
	h.Deregister(c1)
	if got := len(h.ConnectionsOf(1)); got != 1 {
		t.Fatalf("after double deregister, ConnectionsOf(1) = %d, want 1", got)
	}

	h.Deregister(c2)
	if got := h.ConnectionsOf(1); got != nil {
		t.Fatalf("emptied identity still has connections: %v", got)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := testClient(h, 1, "alice", 8)

	h.Register(c)
	h.Register(c)

	if got := len(h.ConnectionsOf(1)); got != 1 {
		t.Fatalf("ConnectionsOf(1) = %d connections, want 1", got)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	h := NewHub(zerolog.Nop())

	const perUser = 20
	var wg sync.WaitGroup
	clients := make([][]*Client, 4)

	for u := 0; u < 4; u++ {
		clients[u] = make([]*Client, perUser)
		for i := 0; i < perUser; i++ {
			clients[u][i] = testClient(h, int64(u+1), "user", 8)
		}
	}

	for u := 0; u < 4; u++ {
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				h.Register(c)
			}(clients[u][i])
		}
	}
	wg.Wait()

	// Deregister half of each user's connections concurrently while
	// broadcasting to all of them.
	for u := 0; u < 4; u++ {
		for i := 0; i < perUser/2; i++ {
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				h.Deregister(c)
			}(clients[u][i])
		}
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			h.Broadcast(id, FriendRemoveEvent{Type: EventFriendRemove, From: 99})
		}(int64(u + 1))
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		if got := len(h.ConnectionsOf(int64(u + 1))); got != perUser/2 {
			t.Fatalf("user %d has %d connections, want %d", u+1, got, perUser/2)
		}
	}
}

func TestBroadcastReachesEveryConnectionOfTarget(t *testing.T) {
	h := NewHub(zerolog.Nop())

	sender := testClient(h, 1, "alice", 8)
	dev1 := testClient(h, 2, "bob", 8)
	dev2 := testClient(h, 2, "bob", 8)
	h.Register(sender)
	h.Register(dev1)
	h.Register(dev2)

	h.Broadcast(2, ChatMessageEvent{Type: EventChatMessage, From: 1, Content: "hi"})

	for _, c := range []*Client{dev1, dev2} {
		select {
		case data := <-c.send:
			var ev ChatMessageEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if ev.Type != EventChatMessage || ev.Content != "hi" {
				t.Fatalf("got %+v, want chat_message %q", ev, "hi")
			}
		default:
			t.Fatal("device did not receive the broadcast")
		}
	}

	select {
	case data := <-sender.send:
		t.Fatalf("sender received unexpected envelope: %s", data)
	default:
	}
}

func TestBroadcastToOfflineUserIsNoOp(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Broadcast(42, FriendRemoveEvent{Type: EventFriendRemove, From: 1})
}

func TestBroadcastDropsSlowConnectionWithoutBlockingSiblings(t *testing.T) {
	h := NewHub(zerolog.Nop())

	slow := testClient(h, 2, "bob", 1)
	fast := testClient(h, 2, "bob", 8)
	h.Register(slow)
	h.Register(fast)

	// Saturate the slow connection's buffer.
	slow.send <- []byte("occupied")

	h.Broadcast(2, FriendRemoveEvent{Type: EventFriendRemove, From: 1})

	select {
	case <-fast.send:
	default:
		t.Fatal("fast sibling did not receive the broadcast")
	}

	// The slow connection is torn down asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.ConnectionsOf(2)) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("slow connection was not deregistered")
}

func TestOutboundOrderPerConnection(t *testing.T) {
	h := NewHub(zerolog.Nop())
	c := testClient(h, 1, "alice", 64)
	h.Register(c)

	for i := 0; i < 10; i++ {
		h.Broadcast(1, ChatMessageEvent{Type: EventChatMessage, Content: fmt.Sprintf("m%d", i)})
	}

	for i := 0; i < 10; i++ {
		var ev ChatMessageEvent
		if err := json.Unmarshal(<-c.send, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if want := fmt.Sprintf("m%d", i); ev.Content != want {
			t.Fatalf("envelope %d out of order: got %q, want %q", i, ev.Content, want)
		}
	}
}
