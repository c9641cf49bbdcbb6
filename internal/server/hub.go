// Package server coordinates the per-connection lifecycle, room membership,
// message broadcast, and connection cleanup for the minichat relay via the
// Hub type.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// timestampLayout renders server-assigned timestamps with microsecond
// precision and a zone offset, matching the stored history format.
const timestampLayout = "2006-01-02T15:04:05.000000-07:00"

// Hub owns the room registry and runs the serialization point for all
// membership changes and broadcasts. Joins, leaves, and fan-out all execute
// on the Run loop, which guarantees per-room delivery order and makes the
// name-assignment-plus-join sequence atomic under concurrent joins.
type Hub struct {
	cfg      *Config
	registry *Registry
	history  HistoryGateway
	presence PresenceGateway
	persist  *persister
	log      *slog.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	historyLimit int
	loc          *time.Location

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub wired to the given gateways. The display timezone and
// history limit come from cfg; an unknown timezone falls back to UTC.
func NewHub(cfg *Config, history HistoryGateway, presence PresenceGateway, log *slog.Logger) *Hub {
	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		log.Warn("unknown display timezone, using UTC", "timezone", cfg.DisplayTimezone)
		loc = time.UTC
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:          cfg,
		registry:     NewRegistry(),
		history:      history,
		presence:     presence,
		persist:      newPersister(cfg.PersistQueueSize, log),
		log:          log,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan *Message),
		historyLimit: cfg.HistoryLimit,
		loc:          loc,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go h.persist.run()
	return h
}

// Run is the hub's main event loop. It should be called in its own goroutine;
// it returns only after Shutdown is invoked.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("nil client registration, skipping")
				continue
			}
			h.join(client)
			h.startPumps(client)

		case client := <-h.unregister:
			h.cleanup(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// join runs the joining phase: assign a collision-free name, register the
// membership, send the private assign and history messages, then announce the
// updated member list and the join notice to the room.
func (h *Hub) join(c *Client) {
	assigned := assignName(c.desiredName, h.registry.NameSet(c.roomName))
	h.registry.Join(c, c.roomName, assigned)
	connectionsTotal.Inc()
	activeConnections.Inc()
	h.log.Info("client joined", "addr", c.addr, "room", c.roomName, "name", assigned)

	if assigned != c.desiredName {
		h.send(c, &Message{Type: MessageAssign, Name: assigned, Room: c.roomName})
	}

	h.sendHistory(c, c.roomName)

	room, name := c.roomName, assigned
	h.persist.enqueue(func() {
		if err := h.presence.RecordJoin(room, name); err != nil {
			h.log.Warn("presence join record failed", "room", room, "name", name, "err", err)
		}
	})

	h.deliver(usersMessage(room, h.registry.Names(room)))

	notice := systemMessage(room, fmt.Sprintf("%s 님이 '%s' 룸에 입장하셨습니다.", assigned, room))
	h.deliver(notice)
	h.appendHistory(room, *notice)
}

// sendHistory fetches the recent messages for a room and sends them privately
// to c. The fetch happens off the run loop so a slow store never delays other
// joins; a fetch error degrades to an empty snapshot. A joining client may
// therefore see a small duplicate or gap relative to concurrent broadcasts.
func (h *Hub) sendHistory(c *Client, room string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		messages, err := h.history.Recent(room, h.historyLimit)
		if err != nil {
			h.log.Warn("history fetch failed", "room", room, "err", err)
			messages = nil
		}
		if messages == nil {
			messages = []Message{}
		}

		data, err := json.Marshal(historyMessage{Type: MessageHistory, Room: room, Messages: messages})
		if err != nil {
			h.log.Error("history marshal failed", "room", room, "err", err)
			return
		}
		c.enqueue(data)
	}()
}

// startPumps launches the read/write goroutines for a freshly joined client.
func (h *Hub) startPumps(c *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// HandleInbound normalizes a raw client payload and submits it for fan-out
// and persistence. Payloads from connections without a session (already
// cleaned up) are discarded.
func (h *Hub) HandleInbound(c *Client, raw []byte) {
	sess, ok := h.registry.Session(c)
	if !ok {
		return
	}

	msg := decodeInbound(raw)
	msg.Sender = sess.Name
	msg.Room = sess.Room
	msg.Timestamp = h.timestamp()

	if !h.Broadcast(&msg) {
		return
	}
	h.appendHistory(sess.Room, msg)
}

// Broadcast submits a message for delivery to every member of msg.Room.
// Delivery problems are absorbed by the run loop; it reports false only when
// the hub is shutting down and the message was dropped.
func (h *Hub) Broadcast(msg *Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// deliver stamps, serializes once, and fans a message out to a snapshot of
// the room's members. Connections that cannot accept the payload are routed
// through cleanup. Runs on the hub loop only.
func (h *Hub) deliver(msg *Message) {
	if msg.Room == "" {
		h.log.Warn("dropping broadcast without room", "type", msg.Type)
		return
	}
	if msg.Timestamp == "" {
		msg.Timestamp = h.timestamp()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("broadcast marshal failed", "room", msg.Room, "err", err)
		return
	}

	var dead []*Client
	for _, member := range h.registry.Members(msg.Room) {
		if !member.enqueue(data) {
			dead = append(dead, member)
		}
	}
	broadcastsTotal.Inc()

	for _, member := range dead {
		deliveryFailuresTotal.Inc()
		h.log.Warn("evicting unresponsive client", "addr", member.addr, "room", msg.Room)
		h.cleanup(member)
	}
}

// send delivers a message privately to a single connection.
func (h *Hub) send(c *Client, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("private message marshal failed", "err", err)
		return
	}
	c.enqueue(data)
}

// cleanup tears down a connection's session: registry removal, membership
// broadcast, leave notice, and presence/history records. Invoking it again
// for the same connection is a no-op. Runs on the hub loop only.
func (h *Hub) cleanup(c *Client) {
	sess, ok := h.registry.Remove(c)
	if !ok {
		return
	}
	close(c.send)
	activeConnections.Dec()
	abnormal := c.abnormal.Load()
	h.log.Info("client left", "addr", c.addr, "room", sess.Room, "name", sess.Name, "abnormal", abnormal)

	room, name := sess.Room, sess.Name
	h.persist.enqueue(func() {
		if err := h.presence.RecordLeave(room, name); err != nil {
			h.log.Warn("presence leave record failed", "room", room, "name", name, "err", err)
		}
	})

	h.deliver(usersMessage(room, h.registry.Names(room)))

	text := fmt.Sprintf("%s 님이 '%s' 룸에서 나갔습니다.", name, room)
	if abnormal {
		text = fmt.Sprintf("%s 연결이 끊어졌습니다", name)
	}
	notice := systemMessage(room, text)
	h.deliver(notice)
	h.appendHistory(room, *notice)
}

func (h *Hub) appendHistory(room string, msg Message) {
	h.persist.enqueue(func() {
		if err := h.history.Append(room, msg); err != nil {
			h.log.Warn("history append failed", "room", room, "err", err)
		}
	})
}

func (h *Hub) timestamp() string {
	return time.Now().In(h.loc).Format(timestampLayout)
}

// Register returns the channel used to hand freshly upgraded connections to
// the hub. Write-only from the caller's perspective.
func (h *Hub) Register() chan<- *Client {
	return h.register
}

// shutdownClients closes every live connection so the pumps drain out. The
// send channels are closed too, otherwise writePump would idle until the next
// ping tick.
func (h *Hub) shutdownClients() {
	clients := h.registry.Clients()
	h.log.Info("closing client connections", "count", len(clients))

	for _, client := range clients {
		if _, ok := h.registry.Remove(client); ok {
			close(client.send)
			activeConnections.Dec()
		}
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("error closing client connection", "addr", client.addr, "err", err)
			}
		}
	}
}

// Shutdown stops the run loop, waits for client goroutines to finish or the
// timeout to expire, and flushes the persistence queue.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub shutdown starting")
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		err = context.DeadlineExceeded
	}

	h.persist.close()
	return err
}
