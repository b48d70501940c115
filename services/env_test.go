package services_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"chorus/messaging-service/db"
	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
	"chorus/messaging-service/testutil"
	"chorus/messaging-service/utils"
)

type pushed struct {
	userID  uuid.UUID
	event   string
	payload interface{}
	exclude uuid.UUID
}

// recorder captures fan-out instead of writing to sockets.
type recorder struct {
	mu     sync.Mutex
	events []pushed
}

func (r *recorder) PushToUser(userID uuid.UUID, event string, payload interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pushed{userID: userID, event: event, payload: payload})
	return 1
}

func (r *recorder) Broadcast(event string, payload interface{}, exclude uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pushed{event: event, payload: payload, exclude: exclude})
	return 1
}

func (r *recorder) byEvent(event string) []pushed {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []pushed
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type env struct {
	db       *gorm.DB
	redis    *redis.Client
	clock    *testutil.Clock
	users    *db.UserRepository
	convs    *db.ConversationRepository
	messages *db.MessageRepository
	presence *services.PresenceTracker
	resolver *services.ConversationResolver
	delivery *services.DeliveryMachine
	pipeline *services.MessagePipeline
	inbox    *services.Inbox
	notifier *services.Notifier
	pushes   *recorder
}

func newEnv(t *testing.T, policy services.UnreadPolicy) *env {
	t.Helper()

	database := testutil.NewDB(t)
	redisClient, _ := testutil.NewRedis(t)
	logger := utils.Discard()
	clock := testutil.NewClock()

	e := &env{
		db:       database,
		redis:    redisClient,
		clock:    clock,
		users:    db.NewUserRepository(database),
		convs:    db.NewConversationRepository(database),
		messages: db.NewMessageRepository(database),
		pushes:   &recorder{},
	}
	e.presence = services.NewPresenceTracker(redisClient, e.users, logger)
	e.resolver = services.NewConversationResolver(e.convs, logger)
	e.delivery = services.NewDeliveryMachine(e.messages, e.resolver, policy, logger)
	e.pipeline = services.NewMessagePipeline(e.users, e.messages, e.convs, e.resolver, e.presence, e.delivery, logger)
	e.inbox = services.NewInbox(e.users, e.convs, e.messages, e.resolver, e.presence, policy, services.PageSizes{Default: 10, History: 20, Max: 100}, logger)
	e.notifier = services.NewNotifier(e.pushes, logger)

	e.presence.SetClock(clock.Now)
	e.resolver.SetClock(clock.Now)
	e.delivery.SetClock(clock.Now)
	e.pipeline.SetClock(clock.Now)
	return e
}

func (e *env) user(t *testing.T, name string) *models.User {
	return testutil.CreateUser(t, e.db, name)
}
