package utils

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wadispatch/pkg/constant"
)

const PageSize = 10

var ErrPageOutOfRange = errors.New(constant.PAGE_NUMBER_OUT_OF_RANGE)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		// Environment variables can be provided via Docker Compose or system
		logrus.Info(".env file not found, using system environment variables")
	}
}

// Pagination loads one page of item matching query, ordered by order, and
// returns the total page count. An empty result set is page 0 of 0.
func Pagination(item interface{}, pageNumber int, db *gorm.DB, c context.Context, order string, query interface{}, args ...interface{}) (int, error) {
	limit := PageSize
	offset := 0

	var totalCount int64
	if err := db.WithContext(c).Model(item).Where(query, args...).Count(&totalCount).Error; err != nil {
		return 0, err
	}
	if totalCount == 0 {
		return 0, nil
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(limit)))

	if pageNumber > totalPages || pageNumber <= 0 {
		return 0, ErrPageOutOfRange
	}
	offset = (pageNumber - 1) * limit

	if err := db.WithContext(c).Order(order).Limit(limit).Offset(offset).Where(query, args...).Find(item).Error; err != nil {
		return 0, err
	}
	return totalPages, nil
}

// SleepContext waits for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
