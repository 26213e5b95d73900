// Package server coordinates connection registration, pump startup, and
// connection cleanup for the Roomcast WebSocket transport via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcast/roomcast/internal/chat"
)

// Hub owns the set of live WebSocket clients. It serializes transport
// lifecycle through register/unregister channels so that presence
// registration, pump startup, and send-channel teardown never race: the
// coordinator hears about a connection before its pumps run, and hears about
// its disconnect before the send channel closes.
type Hub struct {
	coordinator *chat.Coordinator
	clients     map[*Client]struct{}
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	log         zerolog.Logger
}

// NewHub creates a Hub bound to the given presence coordinator. The returned
// Hub is inert until Run is started in its own goroutine.
func NewHub(coordinator *chat.Coordinator, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		coordinator: coordinator,
		clients:     make(map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		log:         logger,
	}
}

// Coordinator returns the presence coordinator this hub feeds.
func (h *Hub) Coordinator() *chat.Coordinator {
	return h.coordinator
}

// Run is the hub's event loop. It must be called in a separate goroutine and
// exits only when Shutdown cancels it.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.admit(client)

		case client := <-h.unregister:
			h.evict(client)
		}
	}
}

// admit registers the connection with the presence core and starts its
// pumps. The welcome notice is already queued on the send channel before the
// write pump starts, so it is always the first event the client sees.
func (h *Hub) admit(client *Client) {
	if err := h.coordinator.Connect(client); err != nil {
		h.log.Error().Str("addr", client.addr).Err(err).Msg("rejecting connection")
		_ = client.conn.Close()
		return
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mutex.Unlock()

	h.log.Info().Str("conn", string(client.id)).Str("addr", client.addr).Int("total", total).Msg("client connected")

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// evict removes the connection from the presence core and tears down its
// send channel. Safe to call for clients that were never admitted or were
// already evicted.
func (h *Hub) evict(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	total := len(h.clients)
	h.mutex.Unlock()

	// Disconnect first: once it returns the coordinator can no longer
	// deliver to this client, so closing the channel cannot race a send.
	h.coordinator.Disconnect(client.id)
	client.closed.Store(true)
	close(client.send)

	h.log.Info().Str("conn", string(client.id)).Str("addr", client.addr).Int("total", total).Msg("client disconnected")
}

// closeAllClients force-closes every live socket so the pumps unwind.
func (h *Hub) closeAllClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Debug().Str("addr", client.addr).Err(err).Msg("error closing client connection")
			}
		}
	}

	h.log.Info().Int("count", len(clients)).Msg("closed client connections")
}

// Shutdown stops the run loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
