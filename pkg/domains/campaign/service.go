package campaign

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
)

// Kicker triggers a scheduler tick ahead of the interval.
type Kicker interface {
	Kick()
}

type Service interface {
	Create(ctx context.Context, ownerID uint, req dtos.CreateCampaignDTO) (entities.Campaign, error)
	Get(ctx context.Context, ownerID, id uint) (entities.Campaign, error)
	List(ctx context.Context, ownerID uint, page int) ([]entities.Campaign, int, error)
	Messages(ctx context.Context, ownerID, id uint, page int) ([]entities.Message, int, error)
	Start(ctx context.Context, ownerID, id uint) error
	Pause(ctx context.Context, ownerID, id uint) error
	Resume(ctx context.Context, ownerID, id uint) error
	Cancel(ctx context.Context, ownerID, id uint) error
}

type service struct {
	repository Repository
	kicker     Kicker
	publisher  events.Publisher
	now        func() time.Time
}

func NewService(r Repository, kicker Kicker, publisher events.Publisher) Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &service{
		repository: r,
		kicker:     kicker,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Create(ctx context.Context, ownerID uint, req dtos.CreateCampaignDTO) (entities.Campaign, error) {
	if len(req.Contacts) == 0 {
		return entities.Campaign{}, ErrEmptyContacts
	}
	if req.DelayMin > req.DelayMax {
		return entities.Campaign{}, ErrInvalidDelayRange
	}

	scheduledFor := s.now()
	if req.ScheduledFor != nil {
		scheduledFor = req.ScheduledFor.UTC()
	}

	contacts := make([]entities.Contact, len(req.Contacts))
	for i, ct := range req.Contacts {
		contacts[i] = entities.Contact{
			Position:   i,
			Name:       ct.Name,
			Phone:      ct.Phone,
			Email:      ct.Email,
			Attributes: ct.Attributes,
		}
	}

	c := entities.Campaign{
		OwnerID: ownerID,
		Name:    req.Name,
		Message: req.Message,
		Status:  entities.CampaignPending,
		Stats: entities.CampaignStats{
			Total:   len(contacts),
			Pending: len(contacts),
		},
		DelayMin:            req.DelayMin,
		DelayMax:            req.DelayMax,
		BatchSize:           req.BatchSize,
		PauseBetweenBatches: req.PauseBetweenBatches,
		ScheduledFor:        scheduledFor,
		Contacts:            contacts,
	}
	if err := s.repository.Create(ctx, &c); err != nil {
		return entities.Campaign{}, err
	}

	logrus.WithFields(logrus.Fields{"campaign_id": c.ID, "owner_id": ownerID, "contacts": len(contacts)}).Info("campaign created")
	s.publisher.Publish(ctx, events.New(events.CampaignsChanged, ownerID, map[string]interface{}{"campaign_id": c.ID, "action": "created"}))
	return c, nil
}

func (s *service) Get(ctx context.Context, ownerID, id uint) (entities.Campaign, error) {
	return s.repository.FindForOwner(ctx, ownerID, id)
}

func (s *service) List(ctx context.Context, ownerID uint, page int) ([]entities.Campaign, int, error) {
	return s.repository.List(ctx, ownerID, page)
}

func (s *service) Messages(ctx context.Context, ownerID, id uint, page int) ([]entities.Message, int, error) {
	if _, err := s.repository.FindForOwner(ctx, ownerID, id); err != nil {
		return nil, 0, err
	}
	return s.repository.ListMessages(ctx, id, page)
}

// Start makes a pending campaign eligible now.
func (s *service) Start(ctx context.Context, ownerID, id uint) error {
	err := s.transition(ctx, ownerID, id,
		[]entities.CampaignStatus{entities.CampaignPending}, entities.CampaignPending,
		map[string]interface{}{"scheduled_for": s.now()})
	if err != nil {
		return err
	}
	s.kick()
	return nil
}

// Pause takes effect at the running pipeline's next contact.
func (s *service) Pause(ctx context.Context, ownerID, id uint) error {
	return s.transition(ctx, ownerID, id,
		[]entities.CampaignStatus{entities.CampaignRunning, entities.CampaignPending}, entities.CampaignPaused, nil)
}

// Resume queues a paused campaign again; the next run starts at its cursor.
func (s *service) Resume(ctx context.Context, ownerID, id uint) error {
	err := s.transition(ctx, ownerID, id,
		[]entities.CampaignStatus{entities.CampaignPaused}, entities.CampaignPending,
		map[string]interface{}{"scheduled_for": s.now(), "claim_token": ""})
	if err != nil {
		return err
	}
	s.kick()
	return nil
}

// Cancel ends the campaign and deletes its contacts and message records.
func (s *service) Cancel(ctx context.Context, ownerID, id uint) error {
	err := s.transition(ctx, ownerID, id,
		[]entities.CampaignStatus{entities.CampaignPending, entities.CampaignRunning, entities.CampaignPaused}, entities.CampaignCancelled,
		map[string]interface{}{"finished_at": s.now()})
	if err != nil {
		return err
	}
	if err := s.repository.DeleteRun(ctx, id); err != nil {
		return err
	}
	s.publisher.Publish(ctx, events.New(events.CampaignsChanged, ownerID, map[string]interface{}{"campaign_id": id, "action": "cancelled"}))
	return nil
}

func (s *service) transition(ctx context.Context, ownerID, id uint, from []entities.CampaignStatus, to entities.CampaignStatus, fields map[string]interface{}) error {
	if _, err := s.repository.FindForOwner(ctx, ownerID, id); err != nil {
		return err
	}
	ok, err := s.repository.Transition(ctx, id, from, to, fields)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	logrus.WithFields(logrus.Fields{"campaign_id": id, "owner_id": ownerID, "status": to}).Info("campaign status changed")
	s.publisher.Publish(ctx, events.New(events.CampaignStatus, ownerID, map[string]interface{}{
		"campaign_id": id,
		"status":      to,
	}))
	return nil
}

func (s *service) kick() {
	if s.kicker != nil {
		s.kicker.Kick()
	}
}
