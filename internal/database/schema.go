package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	LoadSucceeded string = "SUCCEEDED"
	LoadFailed    string = "FAILED"
)

// ArtifactLoad records one attempt to fetch and decode the model artifact.
type ArtifactLoad struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Source     string `gorm:"not null"`
	Status     string `gorm:"size:20;not null"`
	Digest     sql.NullString
	SizeBytes  int64
	DurationMs int64
	Error      sql.NullString

	Summary datatypes.JSON

	CreationTime time.Time `gorm:"index"`
}
