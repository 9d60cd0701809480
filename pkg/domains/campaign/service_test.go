package campaign

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
)

type countingKicker struct {
	kicks int32
}

func (k *countingKicker) Kick() { atomic.AddInt32(&k.kicks, 1) }

func newTestService(t *testing.T) (Service, Repository, *gorm.DB, *countingKicker, *recorder) {
	db := newTestDB(t)
	repo := NewRepo(db)
	kicker := &countingKicker{}
	rec := &recorder{}
	return NewService(repo, kicker, rec), repo, db, kicker, rec
}

func createRequest() dtos.CreateCampaignDTO {
	return dtos.CreateCampaignDTO{
		Name:    "Spring sale",
		Message: "{Hi|Hello} {{name}}",
		Contacts: []dtos.ContactDTO{
			{Name: "Ana", Phone: "11 4555-1234", Attributes: map[string]string{"city": "Rosario"}},
			{Name: "Bob", Phone: "11 4555-9999"},
		},
		DelayMin: 1,
		DelayMax: 4,
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	s, repo, _, _, rec := newTestService(t)

	c, err := s.Create(ctx, 7, createRequest())
	require.NoError(t, err)
	assert.Equal(t, entities.CampaignPending, c.Status)
	assert.Equal(t, entities.CampaignStats{Total: 2, Pending: 2}, c.Stats)
	assert.WithinDuration(t, time.Now(), c.ScheduledFor, time.Minute)

	contacts, err := repo.Contacts(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, 0, contacts[0].Position)
	assert.Equal(t, "Ana", contacts[0].Name)
	assert.Equal(t, "Rosario", contacts[0].Attributes["city"])
	assert.Equal(t, 1, contacts[1].Position)

	assert.Len(t, rec.ofType(events.CampaignsChanged), 1)
}

func TestService_CreateValidation(t *testing.T) {
	s, _, _, _, _ := newTestService(t)

	req := createRequest()
	req.Contacts = nil
	_, err := s.Create(context.Background(), 7, req)
	assert.ErrorIs(t, err, ErrEmptyContacts)

	req = createRequest()
	req.DelayMin, req.DelayMax = 10, 2
	_, err = s.Create(context.Background(), 7, req)
	assert.ErrorIs(t, err, ErrInvalidDelayRange)
}

func TestService_CreateScheduledLater(t *testing.T) {
	ctx := context.Background()
	s, repo, _, _, _ := newTestService(t)

	req := createRequest()
	at := time.Now().Add(2 * time.Hour)
	req.ScheduledFor = &at
	_, err := s.Create(ctx, 7, req)
	require.NoError(t, err)

	_, err = repo.Claim(ctx, time.Now().UTC())
	assert.ErrorIs(t, err, ErrNoEligibleCampaign)
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, repo, _, kicker, rec := newTestService(t)
	req := createRequest()
	later := time.Now().Add(time.Hour)
	req.ScheduledFor = &later
	c, err := s.Create(ctx, 7, req)
	require.NoError(t, err)

	require.NoError(t, s.Start(ctx, 7, c.ID))
	assert.Equal(t, int32(1), atomic.LoadInt32(&kicker.kicks))
	assert.WithinDuration(t, time.Now(), reload(t, repo, c.ID).ScheduledFor, time.Minute)

	require.NoError(t, s.Pause(ctx, 7, c.ID))
	assert.Equal(t, entities.CampaignPaused, reload(t, repo, c.ID).Status)
	assert.ErrorIs(t, s.Pause(ctx, 7, c.ID), ErrInvalidTransition)
	assert.ErrorIs(t, s.Start(ctx, 7, c.ID), ErrInvalidTransition)

	require.NoError(t, s.Resume(ctx, 7, c.ID))
	assert.Equal(t, entities.CampaignPending, reload(t, repo, c.ID).Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&kicker.kicks))
	assert.ErrorIs(t, s.Resume(ctx, 7, c.ID), ErrInvalidTransition)

	assert.Len(t, rec.ofType(events.CampaignStatus), 3)
}

func TestService_CancelDeletesRun(t *testing.T) {
	ctx := context.Background()
	s, repo, db, _, _ := newTestService(t)
	c, err := s.Create(ctx, 7, createRequest())
	require.NoError(t, err)
	claimed, err := repo.Claim(ctx, time.Now().UTC())
	require.NoError(t, err)
	msg := &entities.Message{OwnerID: 7, CampaignID: &c.ID, ChatID: "5491145551234", Direction: entities.DirectionOutbound, Status: entities.MessageSent}
	ok, err := repo.Commit(ctx, c.ID, claimed.ClaimToken, 0, OutcomeSent, msg)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Cancel(ctx, 7, c.ID))

	got := reload(t, repo, c.ID)
	assert.Equal(t, entities.CampaignCancelled, got.Status)
	assert.NotNil(t, got.FinishedAt)
	contacts, err := repo.Contacts(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)
	var count int64
	require.NoError(t, db.Unscoped().Model(&entities.Message{}).Count(&count).Error)
	assert.Zero(t, count)

	assert.ErrorIs(t, s.Cancel(ctx, 7, c.ID), ErrInvalidTransition)
}

func TestService_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	s, _, _, _, _ := newTestService(t)
	c, err := s.Create(ctx, 7, createRequest())
	require.NoError(t, err)

	_, err = s.Get(ctx, 8, c.ID)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
	assert.ErrorIs(t, s.Pause(ctx, 8, c.ID), ErrCampaignNotFound)
	_, _, err = s.Messages(ctx, 8, c.ID, 1)
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	list, pages, err := s.List(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	assert.Len(t, list, 1)

	list, pages, err = s.List(ctx, 8, 1)
	require.NoError(t, err)
	assert.Zero(t, pages)
	assert.Empty(t, list)
}
