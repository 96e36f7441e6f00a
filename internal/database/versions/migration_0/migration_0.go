package migration_0

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ArtifactLoad struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Source     string `gorm:"not null"`
	Status     string `gorm:"size:20;not null"`
	Digest     sql.NullString
	SizeBytes  int64
	DurationMs int64
	Error      sql.NullString

	CreationTime time.Time
}

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&ArtifactLoad{})
}
