package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chorus/messaging-service/metrics"
	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("malformed payload")
	ErrThrottled    = errors.New("too many events")
)

// HandlerFunc handles one inbound event. A returned error is reported to
// the originating connection as an event-error frame.
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) error

// Router dispatches inbound events by name.
type Router struct {
	handlers map[string]HandlerFunc
	limiter  *limiterPool
	logger   *utils.Logger
}

func NewRouter(eventsPerSecond float64, burst int, logger *utils.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		limiter:  newLimiterPool(eventsPerSecond, burst),
		logger:   logger.With("component", "router"),
	}
}

func (r *Router) Handle(event string, h HandlerFunc) {
	r.handlers[event] = h
}

// Dispatch runs the handler registered for env.Event.
func (r *Router) Dispatch(c *Client, env models.Envelope) {
	h, ok := r.handlers[env.Event]
	if !ok {
		metrics.EventsHandled.WithLabelValues("unknown", "rejected").Inc()
		r.reject(c, env.Event, ErrUnknownEvent)
		return
	}
	if !r.limiter.Allow(c.UserID) {
		metrics.EventsHandled.WithLabelValues(env.Event, "throttled").Inc()
		r.reject(c, env.Event, ErrThrottled)
		return
	}

	if err := h(c.Context(), c, env.Data); err != nil {
		metrics.EventsHandled.WithLabelValues(env.Event, "error").Inc()
		r.reject(c, env.Event, err)
		return
	}
	metrics.EventsHandled.WithLabelValues(env.Event, "ok").Inc()
}

func (r *Router) reject(c *Client, event string, err error) {
	r.logger.Debug("Event rejected", "event", event, "user_id", c.UserID, "error", err)
	if emitErr := c.Emit(models.EventError, models.ErrorPayload{Event: event, Error: err.Error()}); emitErr != nil {
		r.logger.Warn("Failed to report event error", "event", event, "user_id", c.UserID, "error", emitErr)
	}
}

// decode unmarshals an event payload, treating an empty payload as {}.
func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
