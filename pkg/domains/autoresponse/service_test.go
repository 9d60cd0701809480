package autoresponse

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wadispatch/pkg/config"
	"github.com/wadispatch/pkg/database"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/entities"
	"github.com/wadispatch/pkg/events"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeSender) SendMessage(_ context.Context, _ uint, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+": "+body)
	return nil
}

func (f *fakeSender) replies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) Publish(_ context.Context, evt events.Event) {
	r.mu.Lock()
	r.types = append(r.types, evt.Type)
	r.mu.Unlock()
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	db      *gorm.DB
	service *service
	sender  *fakeSender
	events  *recorder
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		db:     newTestDB(t),
		sender: &fakeSender{},
		events: &recorder{},
		clock:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(NewRepo(f.db), f.sender, f.events, config.AutoResponse{Window: 30 * time.Minute}).(*service)
	f.service.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) outbound(t *testing.T, ownerID, campaignID uint, chatID string) {
	t.Helper()
	require.NoError(t, f.db.Create(&entities.Message{
		OwnerID:    ownerID,
		CampaignID: &campaignID,
		ChatID:     chatID,
		Direction:  entities.DirectionOutbound,
		Status:     entities.MessageSent,
		Body:       "Hi",
	}).Error)
}

func (f *fixture) rule(t *testing.T, ownerID uint, keyword, mode, response string) entities.AutoResponseRule {
	t.Helper()
	rule, err := f.service.CreateRule(context.Background(), ownerID, dtos.AutoResponseRuleDTO{
		Keyword:   &keyword,
		MatchMode: mode,
		Response:  response,
	})
	require.NoError(t, err)
	return rule
}

func inboundMsg(chatID, body string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{ID: "ABC", ChatID: chatID, Body: body}
}

func strPtr(s string) *string { return &s }

func TestCreateRule_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Response: "hello"})
	assert.ErrorIs(t, err, ErrInvalidRule, "keyword required unless fallback")

	_, err = f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Keyword: strPtr("x"), Response: strings.Repeat("a", 4097)})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Keyword: strPtr(strings.Repeat("k", 256)), Response: "ok"})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Keyword: strPtr("x"), MatchMode: "regex", Response: "ok"})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, err = f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Keyword: strPtr("x"), Response: "ok", IsFallback: true})
	assert.ErrorIs(t, err, ErrInvalidRule, "fallback has no keyword")
}

func TestCreateRule_Uniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rule := f.rule(t, 1, "  Precio ", entities.MatchExact, "Price list")
	assert.Equal(t, "Precio", *rule.Keyword)
	assert.True(t, rule.Active)

	_, err := f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Keyword: strPtr("PRECIO"), Response: "dup"})
	assert.ErrorIs(t, err, ErrDuplicateKeyword)

	other := f.rule(t, 2, "precio", entities.MatchExact, "other owner")
	assert.NotZero(t, other.ID)

	_, err = f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Response: "fallback", IsFallback: true})
	require.NoError(t, err)
	_, err = f.service.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Response: "second fallback", IsFallback: true})
	assert.ErrorIs(t, err, ErrDuplicateFallback)
}

// racingRepo inserts a competing rule between the uniqueness check and the
// insert, as a concurrent request would.
type racingRepo struct {
	Repository
	db *gorm.DB
}

func (r racingRepo) KeywordTaken(ctx context.Context, ownerID uint, normalized string, excludeID uint) (bool, error) {
	taken, err := r.Repository.KeywordTaken(ctx, ownerID, normalized, excludeID)
	if err != nil || taken {
		return taken, err
	}
	keyword := normalized
	return false, r.db.Create(&entities.AutoResponseRule{
		OwnerID: ownerID, Keyword: &keyword, NormalizedKeyword: normalized,
		MatchMode: entities.MatchExact, Response: "winner", Active: true,
	}).Error
}

func (r racingRepo) FallbackTaken(ctx context.Context, ownerID, excludeID uint) (bool, error) {
	taken, err := r.Repository.FallbackTaken(ctx, ownerID, excludeID)
	if err != nil || taken {
		return taken, err
	}
	return false, r.db.Create(&entities.AutoResponseRule{
		OwnerID: ownerID, MatchMode: entities.MatchExact, Response: "winner", Active: true, IsFallback: true,
	}).Error
}

func TestCreateRule_ConcurrentInsertLoses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewService(racingRepo{Repository: NewRepo(f.db), db: f.db}, f.sender, f.events, config.AutoResponse{Window: 30 * time.Minute})

	_, err := svc.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Keyword: strPtr("Precio"), Response: "loser"})
	assert.ErrorIs(t, err, ErrDuplicateKeyword)

	_, err = svc.CreateRule(ctx, 1, dtos.AutoResponseRuleDTO{Response: "loser", IsFallback: true})
	assert.ErrorIs(t, err, ErrDuplicateFallback)

	rules, err := f.service.ListRules(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, r := range rules {
		assert.Equal(t, "winner", r.Response)
	}
}

func TestUpdateAndDeleteRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.rule(t, 1, "hola", entities.MatchExact, "Hola!")
	b := f.rule(t, 1, "precio", entities.MatchExact, "Price")

	_, err := f.service.UpdateRule(ctx, 1, b.ID, dtos.AutoResponseRuleDTO{Keyword: strPtr("HOLA"), Response: "dup"})
	assert.ErrorIs(t, err, ErrDuplicateKeyword)

	inactive := false
	updated, err := f.service.UpdateRule(ctx, 1, a.ID, dtos.AutoResponseRuleDTO{
		Keyword: strPtr("hola"), MatchMode: entities.MatchContains, Response: "Hi there", Active: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, entities.MatchContains, updated.MatchMode)

	_, err = f.service.UpdateRule(ctx, 2, a.ID, dtos.AutoResponseRuleDTO{Keyword: strPtr("x"), Response: "y"})
	assert.ErrorIs(t, err, ErrRuleNotFound)

	require.NoError(t, f.service.DeleteRule(ctx, 1, a.ID))
	assert.ErrorIs(t, f.service.DeleteRule(ctx, 1, a.ID), ErrRuleNotFound)

	recreated := f.rule(t, 1, "hola", entities.MatchExact, "back again")
	assert.NotZero(t, recreated.ID)

	rules, err := f.service.ListRules(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestHandleInbound_UntrackedChatOnlyForwarded(t *testing.T) {
	f := newFixture(t)
	f.rule(t, 1, "hola", entities.MatchExact, "Hola!")

	f.service.HandleInbound(context.Background(), 1, inboundMsg("5491100000000", "hola"))

	assert.Empty(t, f.sender.replies())
	assert.Equal(t, 1, f.events.count(events.InboundMessage))
	var count int64
	require.NoError(t, f.db.Model(&entities.Message{}).Where("direction = ?", entities.DirectionInbound).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleInbound_RepliesAndRecords(t *testing.T) {
	f := newFixture(t)
	chat := "5491145551234"
	f.outbound(t, 1, 10, chat)
	f.outbound(t, 1, 11, chat)
	f.rule(t, 1, "precio", entities.MatchContains, "Our prices: ...")

	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "  Cual es el PRECIO? "))

	assert.Equal(t, []string{chat + ": Our prices: ..."}, f.sender.replies())
	assert.Equal(t, 1, f.events.count(events.AutoReplySent))

	var outbound []entities.Message
	require.NoError(t, f.db.Where("direction = ?", entities.DirectionOutbound).Find(&outbound).Error)
	for _, m := range outbound {
		assert.True(t, m.Replied)
	}

	var in entities.Message
	require.NoError(t, f.db.Where("direction = ?", entities.DirectionInbound).First(&in).Error)
	require.NotNil(t, in.CampaignID)
	assert.Equal(t, uint(11), *in.CampaignID)
	assert.Equal(t, entities.MessageReceived, in.Status)
}

func TestHandleInbound_FallbackAndNoRule(t *testing.T) {
	f := newFixture(t)
	chat := "5491145551234"
	f.outbound(t, 1, 10, chat)
	f.rule(t, 1, "precio", entities.MatchExact, "Prices")

	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "gracias"))
	assert.Empty(t, f.sender.replies(), "no rule and no fallback")

	_, err := f.service.CreateRule(context.Background(), 1, dtos.AutoResponseRuleDTO{Response: "We will get back to you", IsFallback: true})
	require.NoError(t, err)
	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "gracias"))
	assert.Equal(t, []string{chat + ": We will get back to you"}, f.sender.replies())
}

func TestHandleInbound_AntiSpamWindow(t *testing.T) {
	f := newFixture(t)
	chat := "5491145551234"
	f.outbound(t, 1, 10, chat)
	f.rule(t, 1, "hola", entities.MatchExact, "Hola!")

	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "hola"))
	f.clock = f.clock.Add(10 * time.Minute)
	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "hola"))
	assert.Len(t, f.sender.replies(), 1)

	f.clock = f.clock.Add(31 * time.Minute)
	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "hola"))
	assert.Len(t, f.sender.replies(), 2)

	other := "5491145559999"
	f.outbound(t, 1, 10, other)
	f.service.HandleInbound(context.Background(), 1, inboundMsg(other, "hola"))
	assert.Len(t, f.sender.replies(), 3, "window is per chat")
}

func TestHandleInbound_ConcurrentMessagesReplyOnce(t *testing.T) {
	f := newFixture(t)
	chat := "5491145551234"
	f.outbound(t, 1, 10, chat)
	f.rule(t, 1, "hola", entities.MatchExact, "Hola!")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "hola"))
		}()
	}
	wg.Wait()
	assert.Len(t, f.sender.replies(), 1)
}

func TestHandleInbound_FailedSendIsNotLogged(t *testing.T) {
	f := newFixture(t)
	chat := "5491145551234"
	f.outbound(t, 1, 10, chat)
	f.rule(t, 1, "hola", entities.MatchExact, "Hola!")

	f.sender.err = whatsapp.ErrNotReady
	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "hola"))

	var logs int64
	require.NoError(t, f.db.Model(&entities.AutoResponseLog{}).Count(&logs).Error)
	assert.Zero(t, logs)

	f.sender.err = nil
	f.service.HandleInbound(context.Background(), 1, inboundMsg(chat, "hola"))
	assert.Len(t, f.sender.replies(), 1, "a failed reply does not open the window")
}
