package models

import (
	"gorm.io/gorm"
)

// MigrateTable creates or alters the import tables.
func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Organization{},
		&Employee{},
		&ImportRun{},
	)
}
