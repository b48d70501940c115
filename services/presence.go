package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chorus/messaging-service/metrics"
	"chorus/messaging-service/models"
	"chorus/messaging-service/utils"
)

const (
	connectionsKeyPrefix = "presence:conns:"
	onlineSetKey         = "online_users"
)

// Transition is the presence edge produced by a connect or disconnect.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionOnline
	TransitionOffline
)

func (t Transition) String() string {
	switch t {
	case TransitionOnline:
		return "became-online"
	case TransitionOffline:
		return "became-offline"
	default:
		return "none"
	}
}

// PresenceChange is returned to the caller, which owns notification and
// the reconciliation sweep.
type PresenceChange struct {
	UserID     uuid.UUID
	Transition Transition
	LastSeenAt *time.Time
}

// PresenceTracker counts live connections per user in Redis sets. The set
// holds connection ids so repeated connects and unknown disconnects never
// change the count.
type PresenceTracker struct {
	redis  *redis.Client
	users  UserStore
	logger *utils.Logger
	now    Clock
}

func NewPresenceTracker(redisClient *redis.Client, users UserStore, logger *utils.Logger) *PresenceTracker {
	return &PresenceTracker{
		redis:  redisClient,
		users:  users,
		logger: logger.With("component", "presence"),
		now:    systemClock,
	}
}

func (pt *PresenceTracker) SetClock(clock Clock) {
	pt.now = clock
}

func connectionsKey(userID uuid.UUID) string {
	return connectionsKeyPrefix + userID.String()
}

// The online set is maintained inside the same script as the connection
// set, so it always agrees with the cardinality the edge was derived from.
var (
	connectScript = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
local n = redis.call('SCARD', KEYS[1])
if n > 0 then
	redis.call('SADD', KEYS[2], ARGV[2])
end
return {added, n}
`)

	disconnectScript = redis.NewScript(`
local removed = redis.call('SREM', KEYS[1], ARGV[1])
local n = redis.call('SCARD', KEYS[1])
if n == 0 then
	redis.call('SREM', KEYS[2], ARGV[2])
end
return {removed, n}
`)
)

// runEdge executes an edge script and returns the membership change and the
// resulting connection count.
func (pt *PresenceTracker) runEdge(ctx context.Context, script *redis.Script, userID uuid.UUID, connectionID string) (int64, int64, error) {
	keys := []string{connectionsKey(userID), onlineSetKey}
	res, err := script.Run(ctx, pt.redis, keys, connectionID, userID.String()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected presence script reply %v", res)
	}
	return res[0], res[1], nil
}

// Connect registers connectionID for userID.
func (pt *PresenceTracker) Connect(ctx context.Context, userID uuid.UUID, connectionID string) (PresenceChange, error) {
	change := PresenceChange{UserID: userID}

	added, count, err := pt.runEdge(ctx, connectScript, userID, connectionID)
	if err != nil {
		return change, fmt.Errorf("failed to register connection: %w", err)
	}
	if added != 1 || count != 1 {
		return change, nil
	}

	change.Transition = TransitionOnline
	metrics.PresenceTransitions.WithLabelValues(change.Transition.String()).Inc()
	pt.persist(ctx, userID, true, nil)

	pt.logger.Debug("User came online", "user_id", userID, "connection_id", connectionID)
	return change, nil
}

// Disconnect removes connectionID. Unknown ids are a no-op.
func (pt *PresenceTracker) Disconnect(ctx context.Context, userID uuid.UUID, connectionID string) (PresenceChange, error) {
	change := PresenceChange{UserID: userID}

	removed, count, err := pt.runEdge(ctx, disconnectScript, userID, connectionID)
	if err != nil {
		return change, fmt.Errorf("failed to unregister connection: %w", err)
	}
	if removed != 1 || count != 0 {
		return change, nil
	}

	lastSeen := pt.now()
	change.Transition = TransitionOffline
	change.LastSeenAt = &lastSeen
	metrics.PresenceTransitions.WithLabelValues(change.Transition.String()).Inc()
	pt.persist(ctx, userID, false, &lastSeen)

	pt.logger.Debug("User went offline", "user_id", userID, "connection_id", connectionID)
	return change, nil
}

// persist writes the presence flag of an edge, then re-reads the live
// connection count and rewrites the flag if another edge overtook this one
// between the Redis update and the database write.
func (pt *PresenceTracker) persist(ctx context.Context, userID uuid.UUID, online bool, lastSeen *time.Time) {
	if err := pt.users.SetPresence(ctx, userID, online, lastSeen); err != nil {
		pt.logger.Warn("Failed to persist presence", "user_id", userID, "online", online, "error", err)
	}

	live, err := pt.IsOnline(ctx, userID)
	if err != nil {
		pt.logger.Warn("Failed to confirm presence", "user_id", userID, "error", err)
		return
	}
	if live == online {
		return
	}

	var seen *time.Time
	if !live {
		at := pt.now()
		seen = &at
	}
	if err := pt.users.SetPresence(ctx, userID, live, seen); err != nil {
		pt.logger.Warn("Failed to correct presence", "user_id", userID, "online", live, "error", err)
		return
	}
	pt.logger.Debug("Corrected overtaken presence write", "user_id", userID, "online", live)
}

// IsOnline reports whether userID has at least one live connection.
func (pt *PresenceTracker) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := pt.redis.SCard(ctx, connectionsKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read presence: %w", err)
	}
	return n > 0, nil
}

// ConnectionCount returns the number of live connections of userID.
func (pt *PresenceTracker) ConnectionCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := pt.redis.SCard(ctx, connectionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read presence: %w", err)
	}
	return n, nil
}

// Status combines the live connection count with the user's last seen
// time. Unknown users yield ErrNotFound.
func (pt *PresenceTracker) Status(ctx context.Context, userID uuid.UUID) (*models.PresenceStatus, error) {
	user, err := pt.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	n, err := pt.ConnectionCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.PresenceStatus{
		UserID:      userID,
		IsOnline:    n > 0,
		Connections: n,
		LastSeenAt:  user.LastSeenAt,
	}, nil
}

// OnlineAmong reports the live presence of each of ids in one round trip.
func (pt *PresenceTracker) OnlineAmong(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	online := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return online, nil
	}

	pipe := pt.redis.Pipeline()
	counts := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		counts[i] = pipe.SCard(ctx, connectionsKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}
	for i, id := range ids {
		online[id] = counts[i].Val() > 0
	}
	return online, nil
}

// OnlineUsers lists every user with a live connection.
func (pt *PresenceTracker) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	members, err := pt.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			pt.logger.Warn("Skipping malformed online user id", "value", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Reset drops every connection left over from a previous process and marks
// all users offline. It must run before the gateway accepts connections.
func (pt *PresenceTracker) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := pt.redis.Scan(ctx, cursor, connectionsKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan presence keys: %w", err)
		}
		if len(keys) > 0 {
			if err := pt.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear presence keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if err := pt.redis.Del(ctx, onlineSetKey).Err(); err != nil {
		return fmt.Errorf("failed to clear online set: %w", err)
	}

	if err := pt.users.ResetPresence(ctx); err != nil {
		return err
	}

	pt.logger.Info("Presence state reset")
	return nil
}
