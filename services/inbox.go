package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

const previewLength = 100

// PageSizes bounds the page size of each listing.
type PageSizes struct {
	Default int
	History int
	Max     int
}

// LivePresence reports which users currently hold a live connection.
type LivePresence interface {
	OnlineAmong(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Inbox builds the denormalized read views: conversation list, user
// directory and message history.
type Inbox struct {
	users    UserStore
	convs    ConversationStore
	messages MessageStore
	resolver *ConversationResolver
	presence LivePresence
	policy   UnreadPolicy
	sizes    PageSizes
	logger   *utils.Logger
}

func NewInbox(users UserStore, convs ConversationStore, messages MessageStore, resolver *ConversationResolver, presence LivePresence, policy UnreadPolicy, sizes PageSizes, logger *utils.Logger) *Inbox {
	if sizes.Default <= 0 {
		sizes.Default = 10
	}
	if sizes.History <= 0 {
		sizes.History = 20
	}
	if sizes.Max < sizes.Default || sizes.Max < sizes.History {
		sizes.Max = max(sizes.Default, sizes.History, 100)
	}
	return &Inbox{
		users:    users,
		convs:    convs,
		messages: messages,
		resolver: resolver,
		presence: presence,
		policy:   policy,
		sizes:    sizes,
		logger:   logger.With("component", "inbox"),
	}
}

// normalizePage clamps out-of-range paging input instead of rejecting it.
func (ib *Inbox) normalizePage(page, size, def int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = def
	}
	if size > ib.sizes.Max {
		size = ib.sizes.Max
	}
	return page, size
}

// liveStatus returns the live presence of ids. The persisted flag is only a
// fallback for when the presence store cannot be reached.
func (ib *Inbox) liveStatus(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]bool {
	online, err := ib.presence.OnlineAmong(ctx, ids)
	if err != nil {
		ib.logger.Warn("Falling back to stored presence", "error", err)
		return nil
	}
	return online
}

func pageBounds(n, page, size int) (int, int) {
	start := (page - 1) * size
	if start > n {
		start = n
	}
	end := start + size
	if end > n {
		end = n
	}
	return start, end
}

// ListConversations returns the conversations of userID, online
// counterparts first, then by latest activity.
func (ib *Inbox) ListConversations(ctx context.Context, userID uuid.UUID, page, size int) (*models.ConversationPage, error) {
	page, size = ib.normalizePage(page, size, ib.sizes.Default)

	convs, err := ib.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := ib.convs.UnreadCounts(ctx, userID, ib.policy == UnreadClearsOnDelivered)
	if err != nil {
		return nil, err
	}

	items := make([]models.ConversationItem, 0, len(convs))
	for i := range convs {
		items = append(items, buildConversationItem(&convs[i], userID, unread[convs[i].ID]))
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.Counterpart != nil {
			ids = append(ids, item.Counterpart.ID)
		}
	}
	if live := ib.liveStatus(ctx, ids); live != nil {
		for _, item := range items {
			if item.Counterpart != nil {
				item.Counterpart.IsOnline = live[item.Counterpart.ID]
			}
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ao, bo := itemOnline(a), itemOnline(b); ao != bo {
			return ao
		}
		if ar, br := itemRecency(a), itemRecency(b); !ar.Equal(br) {
			return ar.After(br)
		}
		return a.ChatID.String() < b.ChatID.String()
	})

	pagination := models.NewPagination(int64(len(items)), page, size)
	start, end := pageBounds(len(items), page, size)
	return &models.ConversationPage{Items: items[start:end], Pagination: pagination}, nil
}

func buildConversationItem(conv *models.Conversation, userID uuid.UUID, unread int64) models.ConversationItem {
	item := models.ConversationItem{
		ChatID:      conv.ID,
		Kind:        conv.Kind,
		Title:       conv.Name,
		UnreadCount: unread,
		UpdatedAt:   conv.UpdatedAt,
	}

	if conv.Kind == models.ConversationKindDirect {
		for _, p := range conv.Participants {
			if p.UserID == userID || p.User == nil {
				continue
			}
			item.Counterpart = &models.Counterpart{
				ID:         p.User.ID,
				FullName:   p.User.DisplayName(),
				IsOnline:   p.User.IsOnline,
				LastSeenAt: p.User.LastSeenAt,
			}
			item.Title = item.Counterpart.FullName
			break
		}
	}

	if m := conv.LatestMessage; m != nil {
		item.LatestMessage = &models.MessagePreview{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   truncate(m.Content, previewLength),
			Kind:      m.Kind,
			Status:    models.AggregateStatus(m.Receipts),
			CreatedAt: m.CreatedAt,
		}
	}
	return item
}

func itemOnline(item models.ConversationItem) bool {
	return item.Counterpart != nil && item.Counterpart.IsOnline
}

func itemRecency(item models.ConversationItem) time.Time {
	if item.LatestMessage != nil {
		return item.LatestMessage.CreatedAt
	}
	return item.UpdatedAt
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ListUsers returns the user directory as seen by userID: every other
// active user with the last direct message they exchanged.
func (ib *Inbox) ListUsers(ctx context.Context, userID uuid.UUID, page, size int) (*models.UserPage, error) {
	page, size = ib.normalizePage(page, size, ib.sizes.Default)

	users, err := ib.users.ListActiveUsers(ctx, userID)
	if err != nil {
		return nil, err
	}
	convs, err := ib.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	live := ib.liveStatus(ctx, ids)

	direct := make(map[uuid.UUID]*models.Conversation, len(convs))
	for i := range convs {
		c := &convs[i]
		if c.Kind != models.ConversationKindDirect {
			continue
		}
		for _, other := range c.Others(userID) {
			direct[other] = c
		}
	}

	items := make([]models.UserListItem, 0, len(users))
	for _, u := range users {
		item := models.UserListItem{
			ID:         u.ID,
			FullName:   u.DisplayName(),
			Email:      u.Email,
			IsOnline:   u.IsOnline,
			LastSeenAt: u.LastSeenAt,
		}
		if live != nil {
			item.IsOnline = live[u.ID]
		}
		if c, ok := direct[u.ID]; ok {
			chatID := c.ID
			item.ChatID = &chatID
			if m := c.LatestMessage; m != nil {
				preview := truncate(m.Content, previewLength)
				at := m.CreatedAt
				item.LastMessage = &preview
				item.LastMessageTime = &at
			}
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsOnline != b.IsOnline {
			return a.IsOnline
		}
		switch {
		case a.LastMessageTime != nil && b.LastMessageTime != nil:
			if !a.LastMessageTime.Equal(*b.LastMessageTime) {
				return a.LastMessageTime.After(*b.LastMessageTime)
			}
		case a.LastMessageTime != nil:
			return true
		case b.LastMessageTime != nil:
			return false
		}
		return a.FullName < b.FullName
	})

	pagination := models.NewPagination(int64(len(items)), page, size)
	start, end := pageBounds(len(items), page, size)
	return &models.UserPage{Items: items[start:end], Pagination: pagination}, nil
}

// History returns one page of a conversation, newest page first and
// ascending within the page. The conversation is addressed by chatID, or by
// the counterpart of a direct conversation; the latter never creates one.
func (ib *Inbox) History(ctx context.Context, userID uuid.UUID, chatID, receiverID *uuid.UUID, page, size int) (*models.HistoryPage, error) {
	page, size = ib.normalizePage(page, size, ib.sizes.History)

	var conv *models.Conversation
	var err error
	switch {
	case chatID != nil:
		conv, err = ib.convs.GetConversation(ctx, *chatID)
		if err != nil {
			return nil, err
		}
		if !conv.HasParticipant(userID) {
			return nil, ErrNotParticipant
		}
	case receiverID != nil:
		conv, err = ib.resolver.Find(ctx, userID, *receiverID)
		if errors.Is(err, ErrNotFound) {
			return &models.HistoryPage{
				Messages:   []models.Message{},
				Pagination: models.NewPagination(0, page, size),
			}, nil
		}
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: chat or receiver required", ErrInvalidRecipient)
	}

	messages, total, err := ib.messages.History(ctx, conv.ID, (page-1)*size, size)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	for i := range messages {
		messages[i].Hydrate()
	}
	if messages == nil {
		messages = []models.Message{}
	}

	id := conv.ID
	return &models.HistoryPage{
		ChatID:     &id,
		Messages:   messages,
		Pagination: models.NewPagination(total, page, size),
	}, nil
}
