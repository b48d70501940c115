package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
	"chorus/messaging-service/utils"
)

const lifecycleTimeout = 5 * time.Second

// Services are the core components the gateway drives.
type Services struct {
	Presence *services.PresenceTracker
	Pipeline *services.MessagePipeline
	Delivery *services.DeliveryMachine
	Inbox    *services.Inbox
	Notifier *services.Notifier
}

type Options struct {
	EventsPerSecond float64
	EventBurst      int
	SendBufferSize  int
}

// Gateway owns the session lifecycle of live connections: presence
// registration, the reconciliation sweep on connect and event dispatch.
type Gateway struct {
	hub    *Hub
	router *Router
	svc    Services
	opts   Options
	logger *utils.Logger

	// mu orders session registration against Shutdown: every wg.Add
	// happens before closed is set, so Wait never races an Add.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(hub *Hub, svc Services, opts Options, logger *utils.Logger) *Gateway {
	g := &Gateway{
		hub:    hub,
		router: NewRouter(opts.EventsPerSecond, opts.EventBurst, logger),
		svc:    svc,
		opts:   opts,
		logger: logger.With("component", "gateway"),
	}
	g.registerHandlers()
	return g
}

// Router exposes the event router so callers can add handlers.
func (g *Gateway) Router() *Router {
	return g.router
}

// Serve takes ownership of an upgraded connection for an authenticated
// user and returns immediately.
func (g *Gateway) Serve(conn *websocket.Conn, userID uuid.UUID, displayName string) error {
	c := newClient(g.hub, conn, userID, displayName, g.opts.SendBufferSize, g.logger)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		c.closeConn()
		return ErrClientClosed
	}
	g.wg.Add(2)
	g.mu.Unlock()

	if err := g.hub.Join(c); err != nil {
		g.wg.Done()
		g.wg.Done()
		c.closeConn()
		return err
	}
	g.connect(c)

	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		c.readPump(g.router.Dispatch)
		g.disconnect(c)
	}()
	return nil
}

func (g *Gateway) connect(c *Client) {
	ctx, cancel := context.WithTimeout(c.Context(), lifecycleTimeout)
	defer cancel()

	change, err := g.svc.Presence.Connect(ctx, c.UserID, c.ID)
	if err != nil {
		g.logger.Warn("Failed to register presence", "user_id", c.UserID, "error", err)
	}
	g.svc.Notifier.PresenceChanged(change)

	// Sweep on every connect, not only on the online edge: a session that
	// re-registers closes gaps left by sends that raced its first connect.
	updates, err := g.svc.Delivery.Sweep(ctx, c.UserID)
	if err != nil {
		g.logger.Warn("Connect sweep failed", "user_id", c.UserID, "error", err)
	}
	g.svc.Notifier.DeliveryAdvanced(updates)

	g.logger.Info("Client connected", "user_id", c.UserID, "connection_id", c.ID, "transition", change.Transition.String())
}

func (g *Gateway) disconnect(c *Client) {
	if !g.hub.Leave(c) {
		return
	}
	if len(g.hub.Connections(c.UserID)) == 0 {
		g.router.limiter.Forget(c.UserID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()

	change, err := g.svc.Presence.Disconnect(ctx, c.UserID, c.ID)
	if err != nil {
		g.logger.Warn("Failed to unregister presence", "user_id", c.UserID, "error", err)
		return
	}
	g.svc.Notifier.PresenceChanged(change)

	g.logger.Info("Client disconnected", "user_id", c.UserID, "connection_id", c.ID, "transition", change.Transition.String())
}

// Shutdown closes every live connection and waits for their cleanup.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) registerHandlers() {
	g.router.Handle(models.EventRequestUserList, g.handleUserList)
	g.router.Handle(models.EventRequestChatList, g.handleChatList)
	g.router.Handle(models.EventRequestChatHistory, g.handleChatHistory)
	g.router.Handle(models.EventSendMessage, g.handleSendMessage)
	g.router.Handle(models.EventMarkMessageRead, g.handleMarkRead)
	g.router.Handle(models.EventTypingStart, g.handleTyping(true))
	g.router.Handle(models.EventTypingStop, g.handleTyping(false))
}
