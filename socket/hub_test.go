package socket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coscribe/internal/presence"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowListChecker struct {
	allowed map[string]bool
}

func (a *allowListChecker) CanAccess(docID, userID string) (bool, error) {
	return a.allowed[docID+"/"+userID], nil
}

func newTestServer(t *testing.T, opts Options, access AccessChecker) (*Hub, string) {
	t.Helper()

	hub := NewHub(presence.NewRegistry(), opts)
	if access != nil {
		hub.Attach(nil, access)
	}
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Auth middleware is exercised separately; tests pass identity
		// directly, the way the websocket endpoint receives it.
		userID := r.URL.Query().Get("user_id")
		username := r.URL.Query().Get("username")
		ServeWs(hub, w, r, userID, username)
	}))
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL, userID, username string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws?user_id="+userID+"&username="+username, nil)
	require.NoError(t, err, "failed to connect %s", userID)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	var msg Message
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "failed to read message")
	require.NoError(t, json.Unmarshal(p, &msg))
	return msg
}

// assertNoMessage verifies that nothing arrives within a short window,
// used for no-self-echo and room isolation checks.
func assertNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, but one arrived")
}

func joinDoc(t *testing.T, conn *websocket.Conn, docID string) []presence.Entry {
	t.Helper()
	send(t, conn, Message{Event: EventJoinDocument, DocumentID: docID})
	msg := readMessage(t, conn)
	require.Equal(t, EventActiveUsers, msg.Event)
	var entries []presence.Entry
	require.NoError(t, json.Unmarshal(msg.Payload, &entries))
	return entries
}

func TestJoinPresenceSync(t *testing.T) {
	_, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	active := joinDoc(t, conn1, "doc-1")
	require.Len(t, active, 1)
	assert.Equal(t, "user1", active[0].UserID)
	assert.Equal(t, "alice", active[0].Username)

	conn2 := dial(t, wsURL, "user2", "bob")
	active2 := joinDoc(t, conn2, "doc-1")
	assert.Len(t, active2, 2, "joiner's snapshot should contain both users")

	// The existing member hears about the arrival; the snapshot went to
	// the joiner only.
	joined := readMessage(t, conn1)
	require.Equal(t, EventUserJoined, joined.Event)
	var entry presence.Entry
	require.NoError(t, json.Unmarshal(joined.Payload, &entry))
	assert.Equal(t, "user2", entry.UserID)
	assert.Equal(t, "bob", entry.Username)
	assertNoMessage(t, conn1)
}

func TestTextChangeRelay(t *testing.T) {
	_, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	joinDoc(t, conn1, "doc-1")
	conn2 := dial(t, wsURL, "user2", "bob")
	joinDoc(t, conn2, "doc-1")
	readMessage(t, conn1) // user-joined for conn2

	outsider := dial(t, wsURL, "user3", "carol")
	joinDoc(t, outsider, "doc-other")

	delta := `{"ops":[{"retain":11},{"insert":"!"}]}`
	send(t, conn2, Message{Event: EventTextChange, Payload: json.RawMessage(delta)})

	relayed := readMessage(t, conn1)
	assert.Equal(t, EventTextChange, relayed.Event)
	assert.Equal(t, "user2", relayed.UserID)
	assert.JSONEq(t, delta, string(relayed.Payload), "delta must be relayed verbatim")

	// No echo to the sender, nothing outside the room.
	assertNoMessage(t, conn2)
	assertNoMessage(t, outsider)
}

func TestTextChangeIgnoredOutsideRoom(t *testing.T) {
	_, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	joinDoc(t, conn1, "doc-1")

	// user2 never joined a room; its delta goes nowhere.
	conn2 := dial(t, wsURL, "user2", "bob")
	send(t, conn2, Message{Event: EventTextChange, Payload: json.RawMessage(`{"ops":[]}`)})

	assertNoMessage(t, conn1)
}

func TestCursorMoveBroadcast(t *testing.T) {
	hub, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	entries := joinDoc(t, conn1, "doc-1")
	socket1 := entries[0].SocketID

	conn2 := dial(t, wsURL, "user2", "bob")
	joinDoc(t, conn2, "doc-1")
	readMessage(t, conn1) // user-joined

	position := `{"index":5,"length":0}`
	send(t, conn1, Message{Event: EventCursorMove, Payload: json.RawMessage(position)})

	moved := readMessage(t, conn2)
	require.Equal(t, EventCursorMove, moved.Event)
	var payload cursorBroadcast
	require.NoError(t, json.Unmarshal(moved.Payload, &payload))
	assert.Equal(t, "user1", payload.UserID)
	assert.JSONEq(t, position, string(payload.CursorPosition))
	// Exactly once.
	assertNoMessage(t, conn2)

	// The registry holds the updated position for future initial syncs.
	require.Eventually(t, func() bool {
		for _, e := range hub.presence.ListActive("doc-1") {
			if e.SocketID == socket1 && e.Cursor != nil {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestDocumentSavedAdvisory(t *testing.T) {
	_, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	joinDoc(t, conn1, "doc-1")
	conn2 := dial(t, wsURL, "user2", "bob")
	joinDoc(t, conn2, "doc-1")
	readMessage(t, conn1) // user-joined

	send(t, conn2, Message{Event: EventDocumentSaved, DocumentID: "doc-1"})

	notice := readMessage(t, conn1)
	assert.Equal(t, EventDocumentSaved, notice.Event)
	assert.Equal(t, "doc-1", notice.DocumentID)
	assertNoMessage(t, conn2)
}

func TestLeaveDocument(t *testing.T) {
	hub, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	entries := joinDoc(t, conn1, "doc-1")
	socket1 := entries[0].SocketID

	conn2 := dial(t, wsURL, "user2", "bob")
	joinDoc(t, conn2, "doc-1")
	readMessage(t, conn1) // user-joined

	send(t, conn1, Message{Event: EventLeaveDocument})

	left := readMessage(t, conn2)
	require.Equal(t, EventUserLeft, left.Event)
	var payload userLeftBroadcast
	require.NoError(t, json.Unmarshal(left.Payload, &payload))
	assert.Equal(t, "user1", payload.UserID)
	assert.Equal(t, socket1, payload.SocketID)

	require.Eventually(t, func() bool {
		return len(hub.presence.ListActive("doc-1")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDisconnectCleansUp(t *testing.T) {
	hub, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	joinDoc(t, conn1, "doc-1")
	conn2 := dial(t, wsURL, "user2", "bob")
	joinDoc(t, conn2, "doc-1")
	readMessage(t, conn1) // user-joined

	conn2.Close()

	left := readMessage(t, conn1)
	assert.Equal(t, EventUserLeft, left.Event)

	require.Eventually(t, func() bool {
		return len(hub.presence.ListActive("doc-1")) == 1
	}, time.Second, 10*time.Millisecond)

	conn1.Close()
	require.Eventually(t, func() bool {
		return hub.presence.RoomCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestJoinSwitchesRooms(t *testing.T) {
	_, wsURL := newTestServer(t, Options{}, nil)

	peerA := dial(t, wsURL, "peerA", "pa")
	joinDoc(t, peerA, "doc-a")

	conn := dial(t, wsURL, "user1", "alice")
	joinDoc(t, conn, "doc-a")
	readMessage(t, peerA) // user-joined

	// Joining another document implicitly leaves the first room.
	joinDoc(t, conn, "doc-b")

	left := readMessage(t, peerA)
	require.Equal(t, EventUserLeft, left.Event)
	var payload userLeftBroadcast
	require.NoError(t, json.Unmarshal(left.Payload, &payload))
	assert.Equal(t, "user1", payload.UserID)

	// Events from the connection now land in doc-b only.
	send(t, conn, Message{Event: EventTextChange, Payload: json.RawMessage(`{"ops":[]}`)})
	assertNoMessage(t, peerA)
}

// newConnPair upgrades a throwaway endpoint and hands back both ends of
// one websocket connection, for tests that build a Client by hand.
func newConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(server.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	serverSide := <-conns
	t.Cleanup(func() { serverSide.Close() })
	return serverSide, peer
}

func TestSlowReceiverDisconnected(t *testing.T) {
	hub := NewHub(presence.NewRegistry(), Options{})
	go hub.Run()

	join := func(c *Client) {
		hub.Register <- c
		hub.inbound <- inbound{client: c, msg: Message{Event: EventJoinDocument, DocumentID: "doc-1"}}
	}

	senderConn, _ := newConnPair(t)
	sender := &Client{Hub: hub, Conn: senderConn, SocketID: "sock-sender",
		UserID: "sender", Username: "sender", Send: make(chan []byte, 16)}
	join(sender)

	// One outbound slot and no write pump: the initial room snapshot
	// fills the queue and it never drains, like a stalled reader.
	slowConn, slowPeer := newConnPair(t)
	slow := &Client{Hub: hub, Conn: slowConn, SocketID: "sock-slow",
		UserID: "slow", Username: "slow", Send: make(chan []byte, 1)}
	go slow.readPump()
	join(slow)

	fastConn, fastPeer := newConnPair(t)
	fast := &Client{Hub: hub, Conn: fastConn, SocketID: "sock-fast",
		UserID: "fast", Username: "fast", Send: make(chan []byte, 16)}
	go fast.writePump()
	go fast.readPump()
	join(fast)

	hub.inbound <- inbound{client: sender, msg: Message{Event: EventTextChange, Payload: json.RawMessage(`{"ops":[{"insert":"a"}]}`)}}
	hub.inbound <- inbound{client: sender, msg: Message{Event: EventTextChange, Payload: json.RawMessage(`{"ops":[{"insert":"b"}]}`)}}

	// The healthy member still gets both deltas, in emission order.
	var deltas []string
	deadline := time.Now().Add(2 * time.Second)
	for len(deltas) < 2 {
		fastPeer.SetReadDeadline(deadline)
		_, p, err := fastPeer.ReadMessage()
		require.NoError(t, err, "room delivery must survive a stalled member")
		var msg Message
		require.NoError(t, json.Unmarshal(p, &msg))
		if msg.Event == EventTextChange {
			deltas = append(deltas, string(msg.Payload))
		}
	}
	assert.JSONEq(t, `{"ops":[{"insert":"a"}]}`, deltas[0])
	assert.JSONEq(t, `{"ops":[{"insert":"b"}]}`, deltas[1])

	// The stalled connection was torn down rather than left to block
	// the room.
	slowPeer.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := slowPeer.ReadMessage()
	require.Error(t, err, "overflowing the outbound queue must close the connection")

	// Teardown routes through the normal unregister cleanup.
	require.Eventually(t, func() bool {
		return len(hub.presence.ListActive("doc-1")) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestDeltaOrderPreservedPerReceiver(t *testing.T) {
	_, wsURL := newTestServer(t, Options{}, nil)

	conn1 := dial(t, wsURL, "user1", "alice")
	joinDoc(t, conn1, "doc-1")
	conn2 := dial(t, wsURL, "user2", "bob")
	joinDoc(t, conn2, "doc-1")
	readMessage(t, conn1) // user-joined

	const count = 25
	for i := 0; i < count; i++ {
		send(t, conn1, Message{Event: EventTextChange,
			Payload: json.RawMessage(fmt.Sprintf(`{"ops":[{"retain":%d},{"insert":"x"}]}`, i))})
	}

	for i := 0; i < count; i++ {
		msg := readMessage(t, conn2)
		require.Equal(t, EventTextChange, msg.Event)
		assert.JSONEq(t, fmt.Sprintf(`{"ops":[{"retain":%d},{"insert":"x"}]}`, i), string(msg.Payload),
			"delta %d arrived out of order", i)
	}
}

func TestGatedJoins(t *testing.T) {
	access := &allowListChecker{allowed: map[string]bool{"doc-1/user1": true}}
	_, wsURL := newTestServer(t, Options{GatedJoins: true}, access)

	allowed := dial(t, wsURL, "user1", "alice")
	entries := joinDoc(t, allowed, "doc-1")
	assert.Len(t, entries, 1)

	denied := dial(t, wsURL, "user2", "bob")
	send(t, denied, Message{Event: EventJoinDocument, DocumentID: "doc-1"})

	msg := readMessage(t, denied)
	assert.Equal(t, EventError, msg.Event)

	// The denied user is not in the room and sees no room traffic.
	send(t, allowed, Message{Event: EventTextChange, Payload: json.RawMessage(`{"ops":[]}`)})
	assertNoMessage(t, denied)
}
