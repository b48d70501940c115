// Package testutil provides fixtures shared by package tests: an in-memory
// SQL database with the service schema, an in-memory Redis and users.
package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chorus/messaging-service/db"
	"chorus/messaging-service/models"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory database and migrates it. A single
// pooled connection keeps every query on the same memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(database))

	t.Cleanup(func() { sqlDB.Close() })
	return database
}

// NewRedis starts a miniredis server bound to the test's lifetime.
func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// CreateUser inserts a user with the given first name.
func CreateUser(t testing.TB, database *gorm.DB, firstName string) *models.User {
	t.Helper()

	user := &models.User{
		ID:        uuid.New(),
		FirstName: firstName,
		LastName:  "Tester",
		Email:     fmt.Sprintf("%s.%s@example.com", firstName, uuid.NewString()[:8]),
	}
	require.NoError(t, database.Create(user).Error)
	user.FullName = user.DisplayName()
	return user
}

// Clock is a manually advanced time source. Every call returns a strictly
// later instant so rows created in sequence have distinct timestamps.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewClock() *Clock {
	return &Clock{
		now:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		step: time.Second,
	}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
