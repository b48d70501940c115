package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chorus/messaging-service/db"
	"chorus/messaging-service/handlers"
	"chorus/messaging-service/models"
	"chorus/messaging-service/services"
	"chorus/messaging-service/testutil"
	"chorus/messaging-service/utils"
)

const secret = "test-secret"

type fixedCount int

func (n fixedCount) Count() int { return int(n) }

type noSessions struct{}

func (noSessions) Serve(conn *websocket.Conn, userID uuid.UUID, displayName string) error {
	return conn.Close()
}

type api struct {
	router   *gin.Engine
	db       *gorm.DB
	pipeline *services.MessagePipeline
	presence *services.PresenceTracker
}

func newAPI(t *testing.T) *api {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := testutil.NewDB(t)
	redisClient, _ := testutil.NewRedis(t)
	logger := utils.Discard()

	users := db.NewUserRepository(database)
	convs := db.NewConversationRepository(database)
	messages := db.NewMessageRepository(database)

	presence := services.NewPresenceTracker(redisClient, users, logger)
	resolver := services.NewConversationResolver(convs, logger)
	delivery := services.NewDeliveryMachine(messages, resolver, services.UnreadClearsOnSeen, logger)
	pipeline := services.NewMessagePipeline(users, messages, convs, resolver, presence, delivery, logger)
	inbox := services.NewInbox(users, convs, messages, resolver, presence, services.UnreadClearsOnSeen,
		services.PageSizes{Default: 10, History: 20, Max: 100}, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		JWTSecret:   secret,
		Connections: fixedCount(3),
		WebSocket:   handlers.NewWebSocketHandler(noSessions{}, logger),
		Chat:        handlers.NewChatHandler(inbox, presence, logger),
		Logger:      logger,
	})

	return &api{router: router, db: database, pipeline: pipeline, presence: presence}
}

func (a *api) get(t *testing.T, user *models.User, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != nil {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": user.ID.String(),
			"name":    user.DisplayName(),
			"exp":     time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(secret))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+signed)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	a := newAPI(t)

	w := a.get(t, nil, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body handlers.HealthResponse
	decodeBody(t, w, &body)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 3, body.Connections)
}

func TestAPIRequiresAuth(t *testing.T) {
	a := newAPI(t)

	for _, path := range []string{"/api/v1/conversations", "/api/v1/users", "/api/v1/presence/online", "/ws"} {
		assert.Equal(t, http.StatusUnauthorized, a.get(t, nil, path).Code, path)
	}
}

func TestListConversationsAndMessages(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	ann := testutil.CreateUser(t, a.db, "ann")
	ben := testutil.CreateUser(t, a.db, "ben")
	cat := testutil.CreateUser(t, a.db, "cat")

	var chatID uuid.UUID
	for i := 0; i < 3; i++ {
		result, err := a.pipeline.Send(ctx, ben.ID, ann.ID, "hello", "text")
		require.NoError(t, err)
		chatID = result.Message.ConversationID
	}

	w := a.get(t, ann, "/api/v1/conversations")
	require.Equal(t, http.StatusOK, w.Code)
	var convs models.ListResponse[models.ConversationItem]
	decodeBody(t, w, &convs)
	require.Len(t, convs.Data, 1)
	assert.Equal(t, chatID, convs.Data[0].ChatID)
	assert.Equal(t, int64(3), convs.Data[0].UnreadCount)
	assert.Equal(t, int64(1), convs.Total)

	w = a.get(t, ann, "/api/v1/conversations/"+chatID.String()+"/messages?page=1&page_size=2")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs models.ListResponse[models.Message]
	decodeBody(t, w, &msgs)
	assert.Len(t, msgs.Data, 2)
	assert.Equal(t, 2, msgs.TotalPages)

	assert.Equal(t, http.StatusForbidden, a.get(t, cat, "/api/v1/conversations/"+chatID.String()+"/messages").Code)
	assert.Equal(t, http.StatusNotFound, a.get(t, ann, "/api/v1/conversations/"+uuid.NewString()+"/messages").Code)
	assert.Equal(t, http.StatusBadRequest, a.get(t, ann, "/api/v1/conversations/not-a-uuid/messages").Code)
}

func TestListUsersAndOnline(t *testing.T) {
	a := newAPI(t)
	ctx := context.Background()
	ann := testutil.CreateUser(t, a.db, "ann")
	ben := testutil.CreateUser(t, a.db, "ben")
	testutil.CreateUser(t, a.db, "cat")

	_, err := a.presence.Connect(ctx, ben.ID, "b1")
	require.NoError(t, err)

	w := a.get(t, ann, "/api/v1/users")
	require.Equal(t, http.StatusOK, w.Code)
	var users models.ListResponse[models.UserListItem]
	decodeBody(t, w, &users)
	require.Len(t, users.Data, 2)
	assert.Equal(t, ben.ID, users.Data[0].ID)
	assert.True(t, users.Data[0].IsOnline)

	w = a.get(t, ann, "/api/v1/presence/online")
	require.Equal(t, http.StatusOK, w.Code)
	var online struct {
		Users []uuid.UUID `json:"users"`
		Count int         `json:"count"`
	}
	decodeBody(t, w, &online)
	assert.Equal(t, 1, online.Count)
	assert.Equal(t, []uuid.UUID{ben.ID}, online.Users)

	w = a.get(t, ann, "/api/v1/presence/"+ben.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	var status models.PresenceStatus
	decodeBody(t, w, &status)
	assert.True(t, status.IsOnline)
	assert.Equal(t, int64(1), status.Connections)

	assert.Equal(t, http.StatusNotFound, a.get(t, ann, "/api/v1/presence/"+uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, a.get(t, ann, "/api/v1/presence/nope").Code)
}
