package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

func errorPayload(t *testing.T, env models.Envelope) models.ErrorPayload {
	t.Helper()
	require.Equal(t, models.EventError, env.Event)
	var p models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestRouterDispatch(t *testing.T) {
	h := NewHub(utils.Discard())
	c := testClient(h, uuid.New(), 8)
	require.NoError(t, h.Join(c))

	r := NewRouter(100, 100, utils.Discard())
	var got models.TypingRequest
	r.Handle("echo", func(ctx context.Context, c *Client, data json.RawMessage) error {
		if err := decode(data, &got); err != nil {
			return err
		}
		return c.Emit("echoed", got)
	})
	r.Handle("fail", func(ctx context.Context, c *Client, data json.RawMessage) error {
		return errors.New("boom")
	})

	target := uuid.New()
	r.Dispatch(c, models.Envelope{Event: "echo", Data: json.RawMessage(`{"receiverId":"` + target.String() + `"}`)})
	assert.Equal(t, "echoed", readFrame(t, c).Event)
	assert.Equal(t, target, got.ReceiverID)

	r.Dispatch(c, models.Envelope{Event: "nope"})
	p := errorPayload(t, readFrame(t, c))
	assert.Equal(t, "nope", p.Event)
	assert.Equal(t, ErrUnknownEvent.Error(), p.Error)

	r.Dispatch(c, models.Envelope{Event: "fail"})
	assert.Equal(t, "boom", errorPayload(t, readFrame(t, c)).Error)

	r.Dispatch(c, models.Envelope{Event: "echo", Data: json.RawMessage(`{"receiverId":42}`)})
	assert.Contains(t, errorPayload(t, readFrame(t, c)).Error, ErrBadPayload.Error())
}

func TestRouterThrottlesPerUser(t *testing.T) {
	h := NewHub(utils.Discard())
	user := uuid.New()
	c1 := testClient(h, user, 8)
	c2 := testClient(h, user, 8)
	require.NoError(t, h.Join(c1))
	require.NoError(t, h.Join(c2))

	r := NewRouter(0.001, 2, utils.Discard())
	calls := 0
	r.Handle("tick", func(ctx context.Context, c *Client, data json.RawMessage) error {
		calls++
		return nil
	})

	r.Dispatch(c1, models.Envelope{Event: "tick"})
	r.Dispatch(c2, models.Envelope{Event: "tick"})
	r.Dispatch(c1, models.Envelope{Event: "tick"})

	assert.Equal(t, 2, calls)
	assert.Equal(t, ErrThrottled.Error(), errorPayload(t, readFrame(t, c1)).Error)

	r.limiter.Forget(user)
	r.Dispatch(c2, models.Envelope{Event: "tick"})
	assert.Equal(t, 3, calls)
}
