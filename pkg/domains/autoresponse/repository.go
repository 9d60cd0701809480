package autoresponse

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/wadispatch/pkg/entities"
)

type Repository interface {
	ListRules(ctx context.Context, ownerID uint) ([]entities.AutoResponseRule, error)
	ActiveRules(ctx context.Context, ownerID uint) ([]entities.AutoResponseRule, error)
	FindRule(ctx context.Context, ownerID, id uint) (entities.AutoResponseRule, error)
	CreateRule(ctx context.Context, rule *entities.AutoResponseRule) error
	UpdateRule(ctx context.Context, rule *entities.AutoResponseRule) error
	DeleteRule(ctx context.Context, ownerID, id uint) error
	KeywordTaken(ctx context.Context, ownerID uint, normalized string, exceptID uint) (bool, error)
	FallbackTaken(ctx context.Context, ownerID uint, exceptID uint) (bool, error)

	LatestOutbound(ctx context.Context, ownerID uint, chatID string) (entities.Message, bool, error)
	MarkReplied(ctx context.Context, ownerID uint, chatID string) error
	CreateMessage(ctx context.Context, msg *entities.Message) error
	RepliedSince(ctx context.Context, ownerID uint, chatID string, since time.Time) (bool, error)
	LogReply(ctx context.Context, entry *entities.AutoResponseLog) error
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) ListRules(ctx context.Context, ownerID uint) ([]entities.AutoResponseRule, error) {
	var rules []entities.AutoResponseRule
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id asc").Find(&rules).Error
	return rules, err
}

// ActiveRules returns the owner's active rules in creation order.
func (r *repository) ActiveRules(ctx context.Context, ownerID uint) ([]entities.AutoResponseRule, error) {
	var rules []entities.AutoResponseRule
	err := r.db.WithContext(ctx).Where("owner_id = ? AND active = ?", ownerID, true).Order("id asc").Find(&rules).Error
	return rules, err
}

func (r *repository) FindRule(ctx context.Context, ownerID, id uint) (entities.AutoResponseRule, error) {
	var rule entities.AutoResponseRule
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rule, ErrRuleNotFound
	}
	return rule, err
}

func (r *repository) CreateRule(ctx context.Context, rule *entities.AutoResponseRule) error {
	return ruleConflict(rule, r.db.WithContext(ctx).Create(rule).Error)
}

func (r *repository) UpdateRule(ctx context.Context, rule *entities.AutoResponseRule) error {
	return ruleConflict(rule, r.db.WithContext(ctx).Save(rule).Error)
}

// ruleConflict turns a violation of idx_rule_keyword into the error the
// pre-insert check would have returned.
func ruleConflict(rule *entities.AutoResponseRule, err error) error {
	if err == nil || !duplicateKey(err) {
		return err
	}
	if rule.IsFallback {
		return ErrDuplicateFallback
	}
	return ErrDuplicateKeyword
}

// duplicateKey matches drivers without an error translator on their message.
func duplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

// DeleteRule removes the row for good so its keyword can be reused.
func (r *repository) DeleteRule(ctx context.Context, ownerID, id uint) error {
	res := r.db.WithContext(ctx).Unscoped().Where("id = ? AND owner_id = ?", id, ownerID).Delete(&entities.AutoResponseRule{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *repository) KeywordTaken(ctx context.Context, ownerID uint, normalized string, exceptID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.AutoResponseRule{}).
		Where("owner_id = ? AND normalized_keyword = ? AND is_fallback = ? AND id <> ?", ownerID, normalized, false, exceptID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) FallbackTaken(ctx context.Context, ownerID uint, exceptID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.AutoResponseRule{}).
		Where("owner_id = ? AND is_fallback = ? AND id <> ?", ownerID, true, exceptID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) LatestOutbound(ctx context.Context, ownerID uint, chatID string) (entities.Message, bool, error) {
	var msg entities.Message
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND chat_id = ? AND direction = ?", ownerID, chatID, entities.DirectionOutbound).
		Order("id desc").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return msg, false, nil
	}
	if err != nil {
		return msg, false, err
	}
	return msg, true, nil
}

// MarkReplied flags every outbound record to the chat not yet marked.
func (r *repository) MarkReplied(ctx context.Context, ownerID uint, chatID string) error {
	return r.db.WithContext(ctx).Model(&entities.Message{}).
		Where("owner_id = ? AND chat_id = ? AND direction = ? AND replied = ?", ownerID, chatID, entities.DirectionOutbound, false).
		Update("replied", true).Error
}

func (r *repository) CreateMessage(ctx context.Context, msg *entities.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *repository) RepliedSince(ctx context.Context, ownerID uint, chatID string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.AutoResponseLog{}).
		Where("owner_id = ? AND chat_id = ? AND created_at >= ?", ownerID, chatID, since).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) LogReply(ctx context.Context, entry *entities.AutoResponseLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
