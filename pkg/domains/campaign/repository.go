package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/utils"
)

// Outcome is the committed result of processing one contact.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// claimAttempts bounds how many candidates one Claim call tries when other
// claimers win the race.
const claimAttempts = 5

type Repository interface {
	Create(ctx context.Context, c *entities.Campaign) error
	FindByID(ctx context.Context, id uint) (entities.Campaign, error)
	FindForOwner(ctx context.Context, ownerID, id uint) (entities.Campaign, error)
	List(ctx context.Context, ownerID uint, page int) ([]entities.Campaign, int, error)
	ListMessages(ctx context.Context, campaignID uint, page int) ([]entities.Message, int, error)
	Contacts(ctx context.Context, campaignID uint) ([]entities.Contact, error)
	Claim(ctx context.Context, now time.Time) (entities.Campaign, error)
	Transition(ctx context.Context, id uint, from []entities.CampaignStatus, to entities.CampaignStatus, fields map[string]interface{}) (bool, error)
	Release(ctx context.Context, id uint, token string, to entities.CampaignStatus, fields map[string]interface{}) (bool, error)
	Commit(ctx context.Context, id uint, token string, cursor int, outcome Outcome, msg *entities.Message) (bool, error)
	Reconcile(ctx context.Context, staleBefore time.Time) (int64, error)
	DeleteRun(ctx context.Context, id uint) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// Create stores the campaign and its contacts in one transaction.
func (r *repository) Create(ctx context.Context, c *entities.Campaign) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *repository) FindByID(ctx context.Context, id uint) (entities.Campaign, error) {
	var c entities.Campaign
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, ErrCampaignNotFound
	}
	return c, err
}

func (r *repository) FindForOwner(ctx context.Context, ownerID, id uint) (entities.Campaign, error) {
	var c entities.Campaign
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, ErrCampaignNotFound
	}
	return c, err
}

func (r *repository) List(ctx context.Context, ownerID uint, page int) ([]entities.Campaign, int, error) {
	var campaigns []entities.Campaign
	pages, err := utils.Pagination(&campaigns, page, r.db, ctx, "created_at desc, id desc", "owner_id = ?", ownerID)
	return campaigns, pages, err
}

func (r *repository) ListMessages(ctx context.Context, campaignID uint, page int) ([]entities.Message, int, error) {
	var messages []entities.Message
	pages, err := utils.Pagination(&messages, page, r.db, ctx, "id asc", "campaign_id = ?", campaignID)
	return messages, pages, err
}

func (r *repository) Contacts(ctx context.Context, campaignID uint) ([]entities.Contact, error) {
	var contacts []entities.Contact
	err := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID).Order("position asc").Find(&contacts).Error
	return contacts, err
}

// Claim moves the oldest eligible pending campaign to running. The update is
// conditioned on the row still being pending, so concurrent claimers in this
// or another process never both win the same campaign.
func (r *repository) Claim(ctx context.Context, now time.Time) (entities.Campaign, error) {
	db := r.db.WithContext(ctx)
	for i := 0; i < claimAttempts; i++ {
		var candidate entities.Campaign
		err := db.Where("status = ? AND scheduled_for <= ?", entities.CampaignPending, now).
			Order("scheduled_for asc, id asc").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Campaign{}, ErrNoEligibleCampaign
		}
		if err != nil {
			return entities.Campaign{}, fmt.Errorf("campaign: find candidate: %w", err)
		}

		token := uuid.NewString()
		res := db.Model(&entities.Campaign{}).
			Where("id = ? AND status = ?", candidate.ID, entities.CampaignPending).
			Updates(map[string]interface{}{
				"status":      entities.CampaignRunning,
				"claim_token": token,
				"started_at":  gorm.Expr("COALESCE(started_at, ?)", now),
			})
		if res.Error != nil {
			return entities.Campaign{}, fmt.Errorf("campaign: claim %d: %w", candidate.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			return r.FindByID(ctx, candidate.ID)
		}
	}
	return entities.Campaign{}, ErrNoEligibleCampaign
}

// Transition moves the campaign to status to when its current status is one
// of from. It reports whether the row changed.
func (r *repository) Transition(ctx context.Context, id uint, from []entities.CampaignStatus, to entities.CampaignStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("campaign: transition %d to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release ends the run identified by token. Nothing changes when the campaign
// is no longer running under that token.
func (r *repository) Release(ctx context.Context, id uint, token string, to entities.CampaignStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, entities.CampaignRunning, token).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("campaign: release %d to %s: %w", id, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Commit records the outcome for the contact at cursor and advances the
// cursor in one transaction. It reports false, writing nothing, when the
// campaign was cancelled, reclaimed or already moved past cursor.
func (r *repository) Commit(ctx context.Context, id uint, token string, cursor int, outcome Outcome, msg *entities.Message) (bool, error) {
	committed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if msg != nil {
			if err := tx.Create(msg).Error; err != nil {
				return fmt.Errorf("campaign: save message: %w", err)
			}
		}

		column := "stats_" + string(outcome)
		res := tx.Model(&entities.Campaign{}).
			Where("id = ? AND claim_token = ? AND cursor_pos = ? AND status IN ?", id, token, cursor,
				[]entities.CampaignStatus{entities.CampaignRunning, entities.CampaignPaused}).
			Updates(map[string]interface{}{
				"cursor_pos":    gorm.Expr("cursor_pos + 1"),
				column:          gorm.Expr(column + " + 1"),
				"stats_pending": gorm.Expr("stats_pending - 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("campaign: advance cursor: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errCommitRejected
		}
		committed = true
		return nil
	})
	if errors.Is(err, errCommitRejected) {
		return false, nil
	}
	return committed, err
}

var errCommitRejected = errors.New("campaign: commit precondition failed")

// Reconcile returns campaigns left running by a crashed process to pending.
func (r *repository) Reconcile(ctx context.Context, staleBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entities.Campaign{}).
		Where("status = ? AND updated_at < ?", entities.CampaignRunning, staleBefore).
		Updates(map[string]interface{}{
			"status":      entities.CampaignPending,
			"claim_token": "",
			"attempts":    gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("campaign: reconcile: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteRun removes the campaign's contacts and the message records it
// produced.
func (r *repository) DeleteRun(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("campaign_id = ?", id).Delete(&entities.Message{}).Error; err != nil {
			return fmt.Errorf("campaign: delete messages: %w", err)
		}
		if err := tx.Where("campaign_id = ?", id).Delete(&entities.Contact{}).Error; err != nil {
			return fmt.Errorf("campaign: delete contacts: %w", err)
		}
		return nil
	})
}
