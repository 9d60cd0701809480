package autoresponse

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
	"github.com/wadispatch/pkg/metrics"
)

const (
	maxKeywordLength  = 255
	maxResponseLength = 4096
	chatLockStripes   = 64
)

// Sender delivers an auto reply through the tenant's session.
type Sender interface {
	SendMessage(ctx context.Context, tenantID uint, to, body string) error
}

type Service interface {
	ListRules(ctx context.Context, ownerID uint) ([]entities.AutoResponseRule, error)
	CreateRule(ctx context.Context, ownerID uint, req dtos.AutoResponseRuleDTO) (entities.AutoResponseRule, error)
	UpdateRule(ctx context.Context, ownerID, id uint, req dtos.AutoResponseRuleDTO) (entities.AutoResponseRule, error)
	DeleteRule(ctx context.Context, ownerID, id uint) error
	HandleInbound(ctx context.Context, tenantID uint, msg whatsapp.InboundMessage)
}

type service struct {
	repository Repository
	sender     Sender
	publisher  events.Publisher
	window     time.Duration
	log        *logrus.Entry
	now        func() time.Time

	// Serializes the window check and the reply per chat.
	chatLocks [chatLockStripes]sync.Mutex
}

func NewService(r Repository, sender Sender, publisher events.Publisher, ac config.AutoResponse) Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &service{
		repository: r,
		sender:     sender,
		publisher:  publisher,
		window:     ac.Window,
		log:        logrus.WithField("component", "autoresponse"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) ListRules(ctx context.Context, ownerID uint) ([]entities.AutoResponseRule, error) {
	return s.repository.ListRules(ctx, ownerID)
}

func (s *service) CreateRule(ctx context.Context, ownerID uint, req dtos.AutoResponseRuleDTO) (entities.AutoResponseRule, error) {
	rule := entities.AutoResponseRule{OwnerID: ownerID, Active: true}
	if err := s.apply(ctx, &rule, req); err != nil {
		return entities.AutoResponseRule{}, err
	}
	if err := s.repository.CreateRule(ctx, &rule); err != nil {
		return entities.AutoResponseRule{}, err
	}
	return rule, nil
}

func (s *service) UpdateRule(ctx context.Context, ownerID, id uint, req dtos.AutoResponseRuleDTO) (entities.AutoResponseRule, error) {
	rule, err := s.repository.FindRule(ctx, ownerID, id)
	if err != nil {
		return entities.AutoResponseRule{}, err
	}
	if err := s.apply(ctx, &rule, req); err != nil {
		return entities.AutoResponseRule{}, err
	}
	if err := s.repository.UpdateRule(ctx, &rule); err != nil {
		return entities.AutoResponseRule{}, err
	}
	return rule, nil
}

func (s *service) DeleteRule(ctx context.Context, ownerID, id uint) error {
	return s.repository.DeleteRule(ctx, ownerID, id)
}

// apply validates req and copies it onto rule. Keyword and fallback
// uniqueness are checked against the owner's other rules.
func (s *service) apply(ctx context.Context, rule *entities.AutoResponseRule, req dtos.AutoResponseRuleDTO) error {
	response := strings.TrimSpace(req.Response)
	if response == "" {
		return fmt.Errorf("%w: response is required", ErrInvalidRule)
	}
	if utf8.RuneCountInString(response) > maxResponseLength {
		return fmt.Errorf("%w: response exceeds %d characters", ErrInvalidRule, maxResponseLength)
	}

	mode := req.MatchMode
	if mode == "" {
		mode = entities.MatchExact
	}
	if mode != entities.MatchExact && mode != entities.MatchContains {
		return fmt.Errorf("%w: unknown match mode %q", ErrInvalidRule, mode)
	}

	var keyword *string
	normalized := ""
	if req.Keyword != nil {
		trimmed := strings.TrimSpace(*req.Keyword)
		if trimmed != "" {
			keyword = &trimmed
			normalized = normalize(trimmed)
		}
	}

	if req.IsFallback {
		if keyword != nil {
			return fmt.Errorf("%w: the fallback rule has no keyword", ErrInvalidRule)
		}
		taken, err := s.repository.FallbackTaken(ctx, rule.OwnerID, rule.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateFallback
		}
	} else {
		if keyword == nil {
			return ErrInvalidRule
		}
		if utf8.RuneCountInString(*keyword) > maxKeywordLength {
			return fmt.Errorf("%w: keyword exceeds %d characters", ErrInvalidRule, maxKeywordLength)
		}
		taken, err := s.repository.KeywordTaken(ctx, rule.OwnerID, normalized, rule.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateKeyword
		}
	}

	rule.Keyword = keyword
	rule.NormalizedKeyword = normalized
	rule.MatchMode = mode
	rule.Response = response
	rule.IsFallback = req.IsFallback
	if req.Active != nil {
		rule.Active = *req.Active
	}
	return nil
}

// HandleInbound reacts to a message received on a tenant session. Chats that
// never received an outbound message are only forwarded to observers.
func (s *service) HandleInbound(ctx context.Context, tenantID uint, msg whatsapp.InboundMessage) {
	log := s.log.WithFields(logrus.Fields{"owner_id": tenantID, "chat_id": msg.ChatID})
	s.publisher.Publish(ctx, events.New(events.InboundMessage, tenantID, msg))

	latest, found, err := s.repository.LatestOutbound(ctx, tenantID, msg.ChatID)
	if err != nil {
		log.WithError(err).Error("failed to look up outbound messages")
		return
	}
	if !found {
		metrics.AutoReplies.WithLabelValues("untracked").Inc()
		return
	}

	if err := s.repository.MarkReplied(ctx, tenantID, msg.ChatID); err != nil {
		log.WithError(err).Error("failed to mark messages replied")
	}
	received := msg.Timestamp
	if received.IsZero() {
		received = s.now()
	}
	inbound := entities.Message{
		OwnerID:    tenantID,
		CampaignID: latest.CampaignID,
		ChatID:     msg.ChatID,
		Direction:  entities.DirectionInbound,
		Status:     entities.MessageReceived,
		Body:       msg.Body,
		Timestamp:  received,
	}
	if err := s.repository.CreateMessage(ctx, &inbound); err != nil {
		log.WithError(err).Error("failed to store inbound message")
	}

	rules, err := s.repository.ActiveRules(ctx, tenantID)
	if err != nil {
		log.WithError(err).Error("failed to load rules")
		return
	}
	rule := Match(rules, msg.Body)
	if rule == nil {
		metrics.AutoReplies.WithLabelValues("no_rule").Inc()
		return
	}

	lock := s.chatLock(tenantID, msg.ChatID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()
	recent, err := s.repository.RepliedSince(ctx, tenantID, msg.ChatID, now.Add(-s.window))
	if err != nil {
		log.WithError(err).Error("failed to check reply window")
		return
	}
	if recent {
		metrics.AutoReplies.WithLabelValues("suppressed").Inc()
		log.Debug("auto reply suppressed by window")
		return
	}

	if err := s.sender.SendMessage(ctx, tenantID, msg.ChatID, rule.Response); err != nil {
		metrics.AutoReplies.WithLabelValues("failed").Inc()
		log.WithError(err).Warn("auto reply failed")
		return
	}
	if err := s.repository.LogReply(ctx, &entities.AutoResponseLog{
		OwnerID:   tenantID,
		ChatID:    msg.ChatID,
		RuleID:    rule.ID,
		CreatedAt: now,
	}); err != nil {
		log.WithError(err).Error("failed to log auto reply")
	}

	metrics.AutoReplies.WithLabelValues("sent").Inc()
	s.publisher.Publish(ctx, events.New(events.AutoReplySent, tenantID, map[string]interface{}{
		"chat_id": msg.ChatID,
		"rule_id": rule.ID,
	}))
	log.WithField("rule_id", rule.ID).Info("auto reply sent")
}

func (s *service) chatLock(ownerID uint, chatID string) *sync.Mutex {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%s", ownerID, chatID)
	return &s.chatLocks[h.Sum32()%chatLockStripes]
}
