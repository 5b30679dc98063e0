package hub

import (
	"Deskwire/internal/event"
	"Deskwire/internal/model"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

// MessageStore is the durable per-ticket message log the hub appends
// to and replays from. Append must assign a strictly increasing id
// within the ticket.
type MessageStore interface {
	Append(ctx context.Context, ticketID, senderID, senderRole, body string) (model.ChatMessage, error)
	History(ctx context.Context, ticketID string) ([]model.ChatMessage, error)
}

// TicketStatusSource answers the current lifecycle state of a ticket.
// Sends into terminal tickets are rejected before anything is appended
// or broadcast.
type TicketStatusSource interface {
	Status(ctx context.Context, ticketID string) (model.TicketStatus, error)
}

// Options carries the hub's liveness tuning.
type Options struct {
	// HeartbeatInterval is the probe cadence expected from clients.
	HeartbeatInterval time.Duration
	// HeartbeatMissLimit is how many consecutive probe intervals a
	// session may stay silent before it is treated as dead.
	HeartbeatMissLimit int
}

func (o *Options) withDefaults() {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.HeartbeatMissLimit <= 0 {
		o.HeartbeatMissLimit = 3
	}
}

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// Room holds the connections currently subscribed to one ticket's live
// events. Created lazily on first join, removed when the member set
// empties.
type Room struct {
	TicketID string
	Members  map[string]*Client // keyed by connection ID
	mu       sync.RWMutex

	// sendMu serializes append+broadcast for this ticket so delivery
	// order always matches log order. The collector also takes it
	// before dropping the room, so a room with a send in flight stays
	// in the shard map until that send has broadcast.
	sendMu sync.Mutex
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]*Room
}

// Hub is the server-side session and room registry. It is an explicit
// object built by the container and injected into handlers; nothing in
// this package keeps ambient state.
type Hub struct {
	shards [shardCount]*roomBucket

	// sessions maps a user ID to its live connections. An identity is
	// online iff it has at least one entry here.
	sessions   map[string][]*Client
	sessionsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	store   MessageStore
	tickets TicketStatusSource

	opts     Options
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewHub(store MessageStore, tickets TicketStatusSource, opts Options) *Hub {
	opts.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		sessions:   make(map[string][]*Client),
		register:   make(chan *Client, 1024),
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		store:      store,
		tickets:    tickets,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < shardCount; i++ {
		h.shards[i] = &roomBucket{
			rooms: make(map[string]*Room),
		}
	}

	// run manager loop
	go h.run()

	// reap half-open sessions that stopped answering probes
	go h.reapStaleSessions()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}

					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addSession(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// removeClient drops the connection from every room it joined and from
// the session registry.
func (h *Hub) removeClient(c *Client) {
	for _, ticketID := range c.Rooms() {
		h.leaveRoom(c, ticketID)
	}
	h.removeSession(c)
	c.Close()
}

// Stop shuts the hub down. Safe to call more than once; the container
// and the server shutdown path both reach it.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.cancel()

		// Close all client connections
		h.sessionsMu.RLock()
		for _, clients := range h.sessions {
			for _, client := range clients {
				client.Close()
			}
		}
		h.sessionsMu.RUnlock()

		// Workers drain off ctx cancellation. The inbound channel is
		// left open so read pumps still winding down cannot panic on a
		// closed channel.
		h.wg.Wait()
	})
}

func getShard(ticketID string) uint32 {
	if ticketID == "" {
		return 0
	}

	h := sha1.Sum([]byte(ticketID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

var (
	websocketUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
)

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	switch origin {
	case "":
		// non-browser clients (native apps, CLI tools) send no Origin
		return true
	case "http://localhost:4200":
		return true
	case "https://www.deskwire.app":
		return true
	default:
		return false
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity Identity) {
	conn, err := websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	RegisterClient(identity, conn, h)
}
