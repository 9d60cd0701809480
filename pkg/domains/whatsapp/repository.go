package whatsapp

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wadispatch/pkg/entities"
)

type Repository interface {
	SaveState(ctx context.Context, st Status) error
	FindByTenant(ctx context.Context, tenantID uint) (entities.WhatsAppSession, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// SaveState upserts the tenant's row.
func (r *repository) SaveState(ctx context.Context, st Status) error {
	row := entities.WhatsAppSession{
		OwnerID:           st.TenantID,
		State:             string(st.State),
		IsConnected:       st.Ready,
		IsLoggedIn:        st.LoggedIn,
		ReconnectAttempts: st.ReconnectAttempts,
		LastError:         st.LastError,
		LastActiveAt:      time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "is_connected", "is_logged_in", "reconnect_attempts", "last_error", "last_active_at", "updated_at",
		}),
	}).Create(&row).Error
}

func (r *repository) FindByTenant(ctx context.Context, tenantID uint) (entities.WhatsAppSession, error) {
	var row entities.WhatsAppSession
	err := r.db.WithContext(ctx).Where("owner_id = ?", tenantID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrSessionNotFound
	}
	return row, err
}
