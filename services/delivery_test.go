package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
)

func TestParseUnreadPolicy(t *testing.T) {
	p, err := services.ParseUnreadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, services.UnreadClearsOnSeen, p)

	p, err = services.ParseUnreadPolicy("Delivered")
	require.NoError(t, err)
	assert.Equal(t, services.UnreadClearsOnDelivered, p)

	_, err = services.ParseUnreadPolicy("never")
	assert.Error(t, err)
}

func TestOfflineMessageDeliveredWhenReceiverConnects(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	sent, err := e.pipeline.Send(ctx, b.ID, a.ID, "are you there?", "text")
	require.NoError(t, err)
	receipt, _ := sent.Message.ReceiptFor(a.ID)
	require.Nil(t, receipt.DeliveredAt)

	change, err := e.presence.Connect(ctx, a.ID, "a1")
	require.NoError(t, err)
	require.Equal(t, services.TransitionOnline, change.Transition)

	updates, err := e.delivery.Sweep(ctx, a.ID)
	require.NoError(t, err)
	e.notifier.DeliveryAdvanced(updates)

	stored, err := e.messages.GetMessage(ctx, sent.Message.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Receipts[0].DeliveredAt)
	assert.Nil(t, stored.Receipts[0].ReadAt)

	echoes := e.pushes.byEvent(models.EventMessageStatus)
	require.Len(t, echoes, 1)
	assert.Equal(t, b.ID, echoes[0].userID)
	payload := echoes[0].payload.(models.StatusUpdatePayload)
	assert.Equal(t, models.DeliveryStatusDelivered, payload.Status)
	assert.Equal(t, sent.Message.ConversationID, payload.ChatID)
	assert.Equal(t, []uuid.UUID{sent.Message.ID}, payload.MessageIDs)
	assert.Equal(t, a.ID, payload.UserID)
}

func TestSweepIsIdempotent(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	for i := 0; i < 3; i++ {
		_, err := e.pipeline.Send(ctx, b.ID, a.ID, "ping", "text")
		require.NoError(t, err)
	}

	first, err := e.delivery.Sweep(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	var before []models.Receipt
	require.NoError(t, e.db.Where("recipient_id = ?", a.ID).Order("message_id").Find(&before).Error)

	second, err := e.delivery.Sweep(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, second)

	var after []models.Receipt
	require.NoError(t, e.db.Where("recipient_id = ?", a.ID).Order("message_id").Find(&after).Error)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].DeliveredAt.Equal(*after[i].DeliveredAt))
	}
}

func TestMarkReadSetsEveryUnreadMessage(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	for i := 0; i < 3; i++ {
		_, err := e.pipeline.Send(ctx, a.ID, b.ID, "note", "text")
		require.NoError(t, err)
	}
	// B's own message must not be touched by B reading A's messages.
	own, err := e.pipeline.Send(ctx, b.ID, a.ID, "reply", "text")
	require.NoError(t, err)

	result, err := e.delivery.MarkRead(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(3), result.Modified)
	assert.Equal(t, own.Message.ConversationID, result.ChatID)
	assert.Equal(t, services.UnreadClearsOnSeen, result.Policy)

	e.notifier.ReadAcknowledged(result)
	echoes := e.pushes.byEvent(models.EventMessageStatus)
	require.Len(t, echoes, 1, "one status event per conversation")
	assert.Equal(t, a.ID, echoes[0].userID)
	payload := echoes[0].payload.(models.StatusUpdatePayload)
	assert.Equal(t, models.DeliveryStatusSeen, payload.Status)
	assert.Equal(t, int64(3), payload.Count)

	var receipts []models.Receipt
	require.NoError(t, e.db.Where("recipient_id = ?", b.ID).Find(&receipts).Error)
	require.Len(t, receipts, 3)
	for _, r := range receipts {
		require.NotNil(t, r.ReadAt)
		require.NotNil(t, r.DeliveredAt, "read implies delivered")
	}

	stored, err := e.messages.GetMessage(ctx, own.Message.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Receipts[0].ReadAt)

	again, err := e.delivery.MarkRead(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Modified)
}

func TestMarkReadWithoutConversationIsNoop(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	result, err := e.delivery.MarkRead(context.Background(), a.ID, b.ID)
	require.NoError(t, err)
	assert.Nil(t, result)

	e.notifier.ReadAcknowledged(result)
	assert.Empty(t, e.pushes.byEvent(models.EventMessageStatus))
}

func TestReadThenSweepNeverRegresses(t *testing.T) {
	e := newEnv(t, services.UnreadClearsOnSeen)
	ctx := context.Background()
	a := e.user(t, "ann")
	b := e.user(t, "ben")

	sent, err := e.pipeline.Send(ctx, b.ID, a.ID, "hey", "text")
	require.NoError(t, err)

	_, err = e.delivery.MarkRead(ctx, a.ID, b.ID)
	require.NoError(t, err)

	updates, err := e.delivery.Sweep(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, updates)

	stored, err := e.messages.GetMessage(ctx, sent.Message.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusSeen, stored.Status)
	assert.False(t, stored.Receipts[0].ReadAt.Before(*stored.Receipts[0].DeliveredAt))
}
