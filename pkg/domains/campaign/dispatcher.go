package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
	"github.com/wadispatch/pkg/metrics"
	"github.com/wadispatch/pkg/utils"
)

// Sessions is the part of the session manager the pipeline needs.
type Sessions interface {
	IsReady(tenantID uint) bool
	EnsureSession(tenantID uint)
	SendMessage(ctx context.Context, tenantID uint, to, body string) error
}

// Progress is the payload of campaign progress events.
type Progress struct {
	CampaignID uint                    `json:"campaign_id"`
	Status     entities.CampaignStatus `json:"status"`
	Cursor     int                     `json:"cursor"`
	Stats      entities.CampaignStats  `json:"stats"`
	Percent    int                     `json:"percent"`
}

// Dispatcher walks a claimed campaign's contacts from its cursor, committing
// one outcome per contact.
type Dispatcher struct {
	repo      Repository
	sessions  Sessions
	throttle  *Throttle
	publisher events.Publisher
	phones    utils.PhoneNormalizer
	template  utils.Template
	cfg       config.Dispatch
	log       *logrus.Entry

	// Replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
	delay func(min, max int) time.Duration
	now   func() time.Time
}

func NewDispatcher(repo Repository, sessions Sessions, throttle *Throttle, publisher events.Publisher, dc config.Dispatch, wc config.WhatsApp) *Dispatcher {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Dispatcher{
		repo:      repo,
		sessions:  sessions,
		throttle:  throttle,
		publisher: publisher,
		phones: utils.PhoneNormalizer{
			CountryCode:  wc.CountryCode,
			MobilePrefix: wc.MobilePrefix,
			TrunkPrefix:  wc.TrunkPrefix,
		},
		cfg:   dc,
		log:   logrus.WithField("component", "dispatcher"),
		sleep: utils.SleepContext,
		delay: randomDelay,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// randomDelay is uniform in [min, max] seconds with millisecond resolution.
func randomDelay(min, max int) time.Duration {
	if max <= min {
		return time.Duration(min) * time.Second
	}
	span := int64(max-min) * 1000
	return time.Duration(min)*time.Second + time.Duration(rand.Int64N(span+1))*time.Millisecond
}

// Process runs a claimed campaign until it completes, is paused, cancelled or
// reclaimed, or the session stops being ready. Returned errors are store or
// context errors; the caller decides what the campaign becomes.
func (d *Dispatcher) Process(ctx context.Context, claimed entities.Campaign) error {
	log := d.log.WithFields(logrus.Fields{"campaign_id": claimed.ID, "owner_id": claimed.OwnerID})

	if !d.sessions.IsReady(claimed.OwnerID) {
		d.sessions.EnsureSession(claimed.OwnerID)
		return d.yield(ctx, claimed, log)
	}
	d.publisher.Publish(ctx, events.New(events.CampaignStatus, claimed.OwnerID, map[string]interface{}{
		"campaign_id": claimed.ID,
		"status":      entities.CampaignRunning,
	}))

	contacts, err := d.repo.Contacts(ctx, claimed.ID)
	if err != nil {
		return fmt.Errorf("campaign: load contacts: %w", err)
	}
	total := len(contacts)
	stats := claimed.Stats

	seen := make(map[string]struct{}, total)
	for i := 0; i < claimed.Cursor && i < total; i++ {
		if key := d.phones.Key(contacts[i].Phone); key != "" {
			seen[key] = struct{}{}
		}
	}

	gate := newProgressGate(total, d.cfg.ProgressInterval)
	log.WithFields(logrus.Fields{"cursor": claimed.Cursor, "total": total}).Info("campaign run started")

	for i := claimed.Cursor; i < total; i++ {
		current, err := d.repo.FindByID(ctx, claimed.ID)
		if err != nil {
			return fmt.Errorf("campaign: reload: %w", err)
		}
		if current.Status != entities.CampaignRunning || current.ClaimToken != claimed.ClaimToken {
			log.WithField("status", current.Status).Info("campaign run stopped")
			return nil
		}

		outcome, msg, err := d.deliver(ctx, claimed, contacts[i], seen)
		if errors.Is(err, whatsapp.ErrNotReady) {
			return d.yield(ctx, claimed, log)
		}
		if err != nil {
			return err
		}

		ok, err := d.repo.Commit(ctx, claimed.ID, claimed.ClaimToken, i, outcome, msg)
		if err != nil {
			return err
		}
		if !ok {
			log.WithField("cursor", i).Info("commit rejected, campaign run stopped")
			return nil
		}
		stats.Pending--
		switch outcome {
		case OutcomeSent:
			stats.Sent++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeSkipped:
			stats.Skipped++
		}
		metrics.MessagesSent.WithLabelValues(string(outcome)).Inc()

		last := i == total-1
		if gate.due(d.now(), last) {
			d.emitProgress(ctx, claimed, entities.CampaignRunning, i+1, total, stats)
		}
		if last {
			break
		}

		if err := d.sleep(ctx, d.delay(claimed.DelayMin, claimed.DelayMax)); err != nil {
			return err
		}
		if claimed.BatchSize > 0 && claimed.PauseBetweenBatches > 0 && (i+1)%claimed.BatchSize == 0 {
			log.WithField("cursor", i+1).Info("batch finished, pausing")
			if err := d.sleep(ctx, time.Duration(claimed.PauseBetweenBatches)*time.Minute); err != nil {
				return err
			}
		}
	}

	now := d.now()
	ok, err := d.repo.Release(ctx, claimed.ID, claimed.ClaimToken, entities.CampaignCompleted, map[string]interface{}{
		"finished_at": now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	metrics.CampaignsFinished.WithLabelValues(string(entities.CampaignCompleted)).Inc()
	d.emitProgress(ctx, claimed, entities.CampaignCompleted, total, total, stats)
	d.publisher.Publish(ctx, events.New(events.CampaignStatus, claimed.OwnerID, map[string]interface{}{
		"campaign_id": claimed.ID,
		"status":      entities.CampaignCompleted,
	}))
	log.WithFields(logrus.Fields{"sent": stats.Sent, "failed": stats.Failed, "skipped": stats.Skipped}).Info("campaign completed")
	return nil
}

// deliver decides the outcome for one contact. It only returns an error for
// ErrNotReady and context cancellation; the contact is then not committed.
func (d *Dispatcher) deliver(ctx context.Context, c entities.Campaign, contact entities.Contact, seen map[string]struct{}) (Outcome, *entities.Message, error) {
	key := d.phones.Key(contact.Phone)
	body := d.template.Render(c.Message, contactFields(contact))

	if key == "" {
		return OutcomeFailed, d.record(c, contact, key, body, entities.MessageFailed, "unusable phone number"), nil
	}
	if _, dup := seen[key]; dup {
		metrics.DuplicatesSkipped.Inc()
		return OutcomeSkipped, nil, nil
	}
	seen[key] = struct{}{}

	err := d.send(ctx, c.OwnerID, key, body)
	switch {
	case err == nil:
		return OutcomeSent, d.record(c, contact, key, body, entities.MessageSent, ""), nil
	case ctx.Err() != nil:
		return "", nil, ctx.Err()
	case errors.Is(err, whatsapp.ErrNotReady):
		return "", nil, err
	default:
		return OutcomeFailed, d.record(c, contact, key, body, entities.MessageFailed, err.Error()), nil
	}
}

// send retries provider rate limits with exponential backoff. Every attempt
// goes through the global throttle.
func (d *Dispatcher) send(ctx context.Context, ownerID uint, to, body string) error {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxSendAttempts; attempt++ {
		if err = d.throttle.Wait(ctx); err != nil {
			return err
		}
		err = d.sessions.SendMessage(ctx, ownerID, to, body)
		if err == nil || !whatsapp.IsRateLimited(err) || attempt == d.cfg.MaxSendAttempts {
			return err
		}
		metrics.SendRetries.Inc()
		backoff := d.cfg.RateLimitBackoff << (attempt - 1)
		d.log.WithFields(logrus.Fields{"attempt": attempt, "backoff": backoff}).Warn("rate limited, retrying")
		if serr := d.sleep(ctx, backoff); serr != nil {
			return serr
		}
	}
	return err
}

// yield hands a claimed campaign back to the scheduler without failing it.
// The campaign is not eligible again before NotReadyRetry has passed.
func (d *Dispatcher) yield(ctx context.Context, c entities.Campaign, log *logrus.Entry) error {
	retryAt := d.now().Add(d.cfg.NotReadyRetry)
	if _, err := d.repo.Release(ctx, c.ID, c.ClaimToken, entities.CampaignPending, map[string]interface{}{
		"claim_token":   "",
		"scheduled_for": retryAt,
	}); err != nil {
		return err
	}
	log.WithField("retry_at", retryAt).Info("session not ready, campaign returned to pending")
	return nil
}

func (d *Dispatcher) record(c entities.Campaign, contact entities.Contact, chatID, body, status, reason string) *entities.Message {
	campaignID, contactID := c.ID, contact.ID
	return &entities.Message{
		OwnerID:    c.OwnerID,
		CampaignID: &campaignID,
		ContactID:  &contactID,
		ChatID:     chatID,
		Direction:  entities.DirectionOutbound,
		Status:     status,
		Body:       body,
		Error:      reason,
		Timestamp:  d.now(),
	}
}

func (d *Dispatcher) emitProgress(ctx context.Context, c entities.Campaign, status entities.CampaignStatus, cursor, total int, stats entities.CampaignStats) {
	percent := 100
	if total > 0 {
		percent = cursor * 100 / total
	}
	d.publisher.Publish(ctx, events.New(events.CampaignProgress, c.OwnerID, Progress{
		CampaignID: c.ID,
		Status:     status,
		Cursor:     cursor,
		Stats:      stats,
		Percent:    percent,
	}))
}

// contactFields are the values available to {{placeholders}}. Attributes
// cannot shadow the built-in fields.
func contactFields(c entities.Contact) map[string]string {
	fields := make(map[string]string, len(c.Attributes)+3)
	for k, v := range c.Attributes {
		fields[utils.FieldKey(k)] = v
	}
	fields["name"] = c.Name
	fields["phone"] = c.Phone
	fields["email"] = c.Email
	return fields
}

// progressGate limits progress events to one per interval, but always lets
// through every `every`-th contact and the final one.
type progressGate struct {
	every    int
	interval time.Duration
	last     time.Time
	since    int
}

func newProgressGate(total int, interval time.Duration) *progressGate {
	every := total / 50
	if every < 1 {
		every = 1
	}
	return &progressGate{every: every, interval: interval}
}

func (g *progressGate) due(now time.Time, final bool) bool {
	g.since++
	if final || g.since >= g.every || now.Sub(g.last) >= g.interval {
		g.since = 0
		g.last = now
		return true
	}
	return false
}
