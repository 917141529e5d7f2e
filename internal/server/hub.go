// Package server coordinates connection registration, room membership and
// message fanout for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// HubOptions tunes the room session protocol.
type HubOptions struct {
	HistoryLimit  int
	RoomRetention RetentionPolicy
}

type inboundEvent struct {
	client *Client
	raw    []byte
}

// Hub owns every piece of shared chat state: the connected clients, the
// Registry, the Directory and the presence snapshot. All of it is touched only
// by the Run goroutine, one event at a time. Store calls run on their own
// goroutines and hand their continuation back to Run as a task.
type Hub struct {
	clients  map[ConnID]*Client
	registry *Registry
	rooms    *Directory
	presence *Presence
	relay    *Relay
	history  chat.MessageStore

	historyLimit int

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	tasks      chan func()

	// dropped collects clients whose send buffer overflowed during the
	// current event; they are disconnected once the event completes.
	dropped []*Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub backed by store. The returned Hub must be started with Run.
func NewHub(store chat.MessageStore, opts HubOptions) *Hub {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:      make(map[ConnID]*Client),
		registry:     NewRegistry(),
		rooms:        NewDirectory(opts.RoomRetention),
		history:      store,
		historyLimit: opts.HistoryLimit,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan inboundEvent),
		tasks:        make(chan func()),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	h.presence = NewPresence(h.rooms, h.registry, h.broadcastAll)
	h.relay = NewRelay(store, h.emitChatMessage, h.sendError)
	return h
}

// Register hands a new connection to the hub. It returns false if the hub
// has shut down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister runs the disconnect transition for c.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Dispatch queues one raw inbound frame from c.
func (h *Hub) Dispatch(c *Client, raw []byte) bool {
	select {
	case h.inbound <- inboundEvent{client: c, raw: raw}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// post schedules task on the Run goroutine.
func (h *Hub) post(task func()) bool {
	select {
	case h.tasks <- task:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// async runs work off the hub goroutine and posts the continuation it returns.
func (h *Hub) async(work func(ctx context.Context) func()) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if next := work(h.ctx); next != nil {
			h.post(next)
		}
	}()
}

// ActiveRooms returns the current presence snapshot, computed on the hub goroutine.
func (h *Hub) ActiveRooms(ctx context.Context) (map[string][]string, error) {
	result := make(chan map[string][]string, 1)
	select {
	case h.tasks <- func() { result <- h.presence.Snapshot() }:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ctx.Done():
		return nil, context.Canceled
	}
	select {
	case snapshot := <-result:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the hub's main event loop. It should be called in its own
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}
			h.connect(client)

		case client := <-h.unregister:
			h.disconnect(client)

		case ev := <-h.inbound:
			h.handleEvent(ev.client, ev.raw)

		case task := <-h.tasks:
			task()
		}

		h.flushDropped()
	}
}

func (h *Hub) connect(c *Client) {
	c.closed = false
	h.clients[c.id] = c
	log.Printf("Client registered from %s. Total clients: %d", c.addr, len(h.clients))

	if c.conn != nil {
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

	if c.identity != "" {
		h.registry.Bind(c.id, c.identity)
		h.presence.Publish()
	}
}

// deliver queues payload for c. A full buffer marks c for removal.
func (h *Hub) deliver(c *Client, payload []byte) {
	if c == nil || c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.dropped = append(h.dropped, c)
	}
}

func (h *Hub) sendTo(c *Client, event string, data any) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("Error encoding %s for %s: %v", event, c.addr, err)
		return
	}
	h.deliver(c, payload)
}

func (h *Hub) sendError(c *Client, message string) {
	h.sendTo(c, EventRoomError, message)
}

// emitToRoom sends one event to every current member of room.
func (h *Hub) emitToRoom(room, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("Error encoding %s for room %q: %v", event, room, err)
		return
	}
	members := h.rooms.MembersOf(room)
	for _, id := range members {
		h.deliver(h.clients[id], payload)
	}
}

func (h *Hub) emitChatMessage(msg chat.Message) {
	h.emitToRoom(msg.Room, EventChatMessage, msg)
}

func (h *Hub) broadcastAll(payload []byte) {
	for _, c := range h.clients {
		h.deliver(c, payload)
	}
}

func (h *Hub) flushDropped() {
	for len(h.dropped) > 0 {
		c := h.dropped[0]
		h.dropped = h.dropped[1:]
		if _, ok := h.clients[c.id]; !ok {
			continue
		}
		log.Printf("Client from %s removed due to full send buffer", c.addr)
		h.disconnect(c)
	}
}

// shutdownClients closes every connection and releases its write pump.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	count := 0
	for id, c := range h.clients {
		delete(h.clients, id)
		c.closed = true
		close(c.send)
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing client connection from %s: %v", c.addr, err)
			}
		}
		count++
	}

	log.Printf("Closed %d client connections", count)
}

// Shutdown initiates graceful shutdown of the hub and waits for client pumps
// and in-flight store calls to finish, or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
