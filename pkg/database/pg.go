package database

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wadispatch/pkg/config"
)

var (
	db          *gorm.DB
	err         error
	client_once sync.Once
)

// DSN builds the Postgres connection string for the database section.
func DSN(dbc config.Database) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbc.Host, dbc.Port, dbc.User, dbc.Pass, dbc.Name)
}

// Open connects to Postgres and verifies the connection. Timestamps are
// written in UTC so scheduling comparisons do not depend on the host zone.
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(
		postgres.New(
			postgres.Config{
				DSN:                  dsn,
				PreferSimpleProtocol: true,
			},
		),
		&gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: false,
			TranslateError:                           true,
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying connection: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return conn, nil
}

// InitDB opens the process-wide connection once and runs migrations.
func InitDB(dbc config.Database) error {
	client_once.Do(func() {
		log := logrus.WithField("component", "database")
		db, err = Open(DSN(dbc))
		if err != nil {
			log.WithError(err).Error("failed to initialize database")
			return
		}
		log.Info("database connection established successfully")

		if err = AutoMigrate(db); err != nil {
			log.WithError(err).Error("migration failed")
			return
		}
		log.Info("database migrations completed successfully")
	})
	return err
}

func DBClient() *gorm.DB {
	if db == nil {
		logrus.Panic("Postgres is not initialized. Call InitDB first.")
	}
	return db
}
