package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"gbr-server/internal/artifact"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger persists artifact load attempts.
type Ledger struct {
	db *gorm.DB
}

var _ artifact.Observer = (*Ledger)(nil)

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) ObserveLoad(ctx context.Context, attempt artifact.Attempt) {
	record := ArtifactLoad{
		Id:           uuid.New(),
		Source:       attempt.Source,
		Status:       LoadSucceeded,
		Digest:       sql.NullString{String: attempt.Digest, Valid: attempt.Digest != ""},
		SizeBytes:    attempt.SizeBytes,
		DurationMs:   attempt.Duration.Milliseconds(),
		CreationTime: time.Now().UTC(),
	}

	if attempt.Err != nil {
		record.Status = LoadFailed
		record.Error = sql.NullString{String: attempt.Err.Error(), Valid: true}
	} else {
		summary, err := json.Marshal(attempt.Summary)
		if err != nil {
			slog.Error("error serializing pipeline summary", "error", err)
		} else {
			record.Summary = datatypes.JSON(summary)
		}
	}

	if err := l.db.WithContext(ctx).Create(&record).Error; err != nil {
		slog.Error("error recording artifact load", "source", attempt.Source, "error", err)
	}
}

// Recent returns the most recent load attempts, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]ArtifactLoad, error) {
	var loads []ArtifactLoad
	if err := l.db.WithContext(ctx).Order("creation_time desc").Limit(limit).Find(&loads).Error; err != nil {
		slog.Error("error listing artifact loads", "error", err)
		return nil, err
	}
	return loads, nil
}
