package database

import (
	"fmt"
	"log"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"cellar/models"
)

// HasSchema reports whether the block_headers table exists
func HasSchema(db *gorm.DB) bool {
	return db.Migrator().HasTable(&models.BlockHeader{})
}

// CreateSchema creates every missing table. Existing tables are left as they are.
func CreateSchema(db *gorm.DB) error {
	migrator := db.Migrator()
	created := 0
	for i, model := range models.All() {
		if migrator.HasTable(model) {
			continue
		}
		if err := migrator.CreateTable(model); err != nil {
			return fmt.Errorf("create table %s: %w", models.TableNames()[i], err)
		}
		created++
	}
	if created > 0 {
		log.Printf("[OK] Created %d tables", created)
	}
	return nil
}

// DropSchema drops all tables, attempting every table and reporting every failure
func DropSchema(db *gorm.DB) error {
	var result *multierror.Error
	for _, table := range models.TableNames() {
		if err := db.Migrator().DropTable(table); err != nil {
			result = multierror.Append(result, fmt.Errorf("drop table %s: %w", table, err))
		}
	}
	return result.ErrorOrNil()
}
