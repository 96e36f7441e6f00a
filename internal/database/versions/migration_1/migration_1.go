package migration_1

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ArtifactLoad struct {
	Summary datatypes.JSON

	CreationTime time.Time `gorm:"index"`
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&ArtifactLoad{}, "Summary"); err != nil {
		return err
	}
	return db.Migrator().CreateIndex(&ArtifactLoad{}, "CreationTime")
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropIndex(&ArtifactLoad{}, "CreationTime"); err != nil {
		return err
	}
	return db.Migrator().DropColumn(&ArtifactLoad{}, "Summary")
}
