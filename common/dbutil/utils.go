package dbutil

import (
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"gorm.io/gorm"
)

// FindOne loads the first row matched by db, or NotFound when there is none
func FindOne[T any](db *gorm.DB) (*T, error) {
	var item T
	result := db.Limit(1).Find(&item)
	if result.Error != nil {
		return nil, WrapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NotFound
	}
	return &item, nil
}
