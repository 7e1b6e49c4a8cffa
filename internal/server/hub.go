package server

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/streamchat/internal/chat"
	"github.com/Tyrowin/streamchat/internal/room"
)

// Hub supervises live connections. It registers clients, starts their pumps
// and chat sessions, and tears them all down on shutdown. Room membership
// lives in the room registry, not here.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	config   Config
	registry *room.Registry
	deps     chat.Deps
	lastID   atomic.Uint64
}

// NewHub creates a Hub whose sessions use registry and deps.
func NewHub(cfg Config, registry *room.Registry, deps chat.Deps) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		config:     cfg.Sanitized(),
		registry:   registry,
		deps:       deps,
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Registry returns the room registry shared by the hub's sessions.
func (h *Hub) Registry() *room.Registry {
	return h.registry
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) nextClientID() uint64 {
	return h.lastID.Add(1)
}

// registerClient hands c to the hub, or reports false if the hub has stopped.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine.
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
			h.start(client)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				clientCount := len(h.clients)
				h.mutex.Unlock()
				log.Printf("Client unregistered from %s (connection %d). Total clients: %d", client.addr, client.id, clientCount)
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// start records the client and launches its session and pump goroutines.
func (h *Hub) start(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client registered from %s (connection %d). Total clients: %d", client.addr, client.id, clientCount)

	h.wg.Add(3)
	go func() {
		defer h.wg.Done()
		client.session.Run(h.ctx)
	}()
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// shutdownClients closes every live connection. Each session then leaves its
// room and its pumps exit.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	// Unregister is no longer served after this point.
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		client.session.Stop()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
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
