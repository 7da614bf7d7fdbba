package socket

import (
	"time"

	"coscribe/internal/metrics"
	"coscribe/internal/presence"
	"coscribe/pkg/logger"
)

// UserDirectory resolves display names for presence entries.
type UserDirectory interface {
	Username(userID string) string
}

// AccessChecker reports whether a user holds any role on a document.
// Only consulted when gated joins are enabled.
type AccessChecker interface {
	CanAccess(docID, userID string) (bool, error)
}

type Options struct {
	// SendBufferSize bounds each connection's outbound queue. A client
	// that falls this far behind is disconnected rather than allowed to
	// stall delivery to the rest of its room.
	SendBufferSize int
	PingInterval   time.Duration
	// GatedJoins requires a stored permission entry before joining a
	// room. Off by default: any authenticated user who knows a document
	// id can join and watch, even without a viewer role. REST access
	// always checks permissions regardless of this setting.
	GatedJoins bool
}

func (o Options) withDefaults() Options {
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 256
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	return o
}

type inbound struct {
	client *Client
	msg    Message
}

// Hub is the session gateway and broadcast router. All room membership
// changes and fan-out run on the single Run goroutine, which gives each
// receiver the sender's events in emission order. Presence data itself
// lives in the injected registry.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	inbound   chan inbound
	closeRoom chan string

	rooms    map[string]map[*Client]bool
	presence *presence.Registry
	users    UserDirectory
	access   AccessChecker
	opts     Options
}

func NewHub(reg *presence.Registry, opts Options) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		closeRoom:  make(chan string),
		rooms:      make(map[string]map[*Client]bool),
		presence:   reg,
		opts:       opts.withDefaults(),
	}
}

// Attach wires in the name directory and permission check after
// construction. The document service and the hub reference each other,
// so one side has to be attached late.
func (h *Hub) Attach(users UserDirectory, access AccessChecker) {
	h.users = users
	h.access = access
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			metrics.ActiveConnections.Inc()
			logger.Sugar.Infof("Connection %s established for user %s", client.SocketID, client.UserID)

		case client := <-h.Unregister:
			h.leaveCurrentRoom(client)
			client.gone = true
			close(client.Send)
			metrics.ActiveConnections.Dec()
			logger.Sugar.Infof("Connection %s closed for user %s", client.SocketID, client.UserID)

		case ev := <-h.inbound:
			metrics.SessionEvents.WithLabelValues(ev.msg.Event).Inc()
			h.dispatch(ev.client, ev.msg)

		case docID := <-h.closeRoom:
			// The document is gone; closing the connections routes every
			// member through the normal unregister cleanup.
			for client := range h.rooms[docID] {
				client.Conn.Close()
			}
		}
	}
}

// CloseRoom disconnects all members of a document's room. Called by the
// document service when a document is deleted.
func (h *Hub) CloseRoom(docID string) {
	h.closeRoom <- docID
}

// dispatch handles one inbound event. A bad event from one connection
// must never take down the hub, so unknown types are only logged.
func (h *Hub) dispatch(c *Client, msg Message) {
	// Events queued before the connection unregistered can still be in
	// flight; the client's Send channel is closed, so drop them.
	if c.gone {
		return
	}
	switch msg.Event {
	case EventJoinDocument:
		h.handleJoin(c, msg.DocumentID)
	case EventLeaveDocument:
		h.leaveCurrentRoom(c)
	case EventTextChange:
		h.handleTextChange(c, msg)
	case EventCursorMove:
		h.handleCursorMove(c, msg)
	case EventDocumentSaved:
		h.handleDocumentSaved(c, msg)
	default:
		logger.Sugar.Warnf("Unknown event %q from connection %s", msg.Event, c.SocketID)
	}
}

func (h *Hub) handleJoin(c *Client, docID string) {
	if docID == "" {
		return
	}

	if h.opts.GatedJoins && h.access != nil {
		ok, err := h.access.CanAccess(docID, c.UserID)
		if err != nil {
			logger.Sugar.Errorf("Access check failed for user %s on doc %s: %v", c.UserID, docID, err)
			return
		}
		if !ok {
			c.enqueue(mustEnvelope(EventError, docID, errorNotice{Message: "no permission to join this document"}))
			return
		}
	}

	// One room per connection: joining a new document leaves the old one.
	if c.docID != "" && c.docID != docID {
		h.leaveCurrentRoom(c)
	}

	username := c.Username
	if username == "" && h.users != nil {
		username = h.users.Username(c.UserID)
	}

	h.presence.Join(docID, c.SocketID, c.UserID, username)
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Client]bool)
	}
	h.rooms[docID][c] = true
	c.docID = docID
	metrics.ActiveRooms.Set(float64(h.presence.RoomCount()))

	entry := presence.Entry{SocketID: c.SocketID, UserID: c.UserID, Username: username}
	h.broadcast(docID, c, mustEnvelope(EventUserJoined, docID, entry))

	// The full snapshot goes to the joining connection only.
	c.enqueue(mustEnvelope(EventActiveUsers, docID, h.presence.ListActive(docID)))

	logger.Sugar.Infof("%s joined document %s", username, docID)
}

// leaveCurrentRoom is the single cleanup path for explicit leaves,
// implicit leaves on re-join, and disconnects. Safe to call when the
// connection is not in any room.
func (h *Hub) leaveCurrentRoom(c *Client) {
	if c.docID == "" {
		return
	}
	docID := c.docID
	c.docID = ""

	h.presence.Leave(docID, c.SocketID)
	delete(h.rooms[docID], c)
	if len(h.rooms[docID]) == 0 {
		delete(h.rooms, docID)
	}
	metrics.ActiveRooms.Set(float64(h.presence.RoomCount()))

	h.broadcast(docID, nil, mustEnvelope(EventUserLeft, docID, userLeftBroadcast{
		UserID:   c.UserID,
		SocketID: c.SocketID,
	}))

	logger.Sugar.Infof("User %s left document %s", c.UserID, docID)
}

// handleTextChange relays the delta verbatim to everyone else in the
// sender's room. The payload is never inspected or transformed, and no
// merge is attempted between concurrent editors.
func (h *Hub) handleTextChange(c *Client, msg Message) {
	if c.docID == "" {
		return
	}
	out := Message{Event: EventTextChange, DocumentID: c.docID, UserID: c.UserID, Payload: msg.Payload}
	h.broadcast(c.docID, c, marshal(out))
}

func (h *Hub) handleCursorMove(c *Client, msg Message) {
	if c.docID == "" {
		return
	}
	h.presence.MoveCursor(c.docID, c.SocketID, msg.Payload)
	h.broadcast(c.docID, c, mustEnvelope(EventCursorMove, c.docID, cursorBroadcast{
		UserID:         c.UserID,
		CursorPosition: msg.Payload,
	}))
}

// handleDocumentSaved is advisory only: the saving client persists
// through the REST save path on its own, then emits this so peers can
// refresh their saved-state indicator.
func (h *Hub) handleDocumentSaved(c *Client, msg Message) {
	docID := msg.DocumentID
	if docID == "" {
		docID = c.docID
	}
	if docID == "" {
		return
	}
	h.broadcast(docID, c, mustEnvelope(EventDocumentSaved, docID, savedNotice{
		Message: "Document saved by a collaborator.",
	}))
}

// broadcast fans data out to every connection in the room except the
// excluded one. Delivery never blocks: a receiver whose buffer is full
// gets its connection closed instead of holding up the room.
func (h *Hub) broadcast(docID string, except *Client, data []byte) {
	for client := range h.rooms[docID] {
		if client == except {
			continue
		}
		client.enqueue(data)
	}
}
