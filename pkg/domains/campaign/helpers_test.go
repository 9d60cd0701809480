package campaign

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wadispatch/pkg/database"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// seedCampaign stores a pending campaign, eligible now, with one contact per
// phone.
func seedCampaign(t *testing.T, repo Repository, ownerID uint, phones []string, mutate func(*entities.Campaign)) entities.Campaign {
	t.Helper()
	contacts := make([]entities.Contact, len(phones))
	for i, p := range phones {
		contacts[i] = entities.Contact{Position: i, Name: "contact", Phone: p}
	}
	c := entities.Campaign{
		OwnerID:      ownerID,
		Name:         "launch",
		Message:      "Hi {{name}}",
		Status:       entities.CampaignPending,
		Stats:        entities.CampaignStats{Total: len(phones), Pending: len(phones)},
		ScheduledFor: time.Now().UTC().Add(-time.Minute),
		Contacts:     contacts,
	}
	if mutate != nil {
		mutate(&c)
	}
	require.NoError(t, repo.Create(context.Background(), &c))
	return c
}

func reload(t *testing.T, repo Repository, id uint) entities.Campaign {
	t.Helper()
	c, err := repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) ofType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
