package api

import (
	"time"

	"github.com/google/uuid"
)

type HealthResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type PredictResponse struct {
	Prediction []float64
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PipelineSummary struct {
	InputColumns []string
	NFeatures    int
	NEstimators  int
}

type ArtifactLoad struct {
	Id           uuid.UUID
	Source       string
	Status       string
	Digest       string `json:"Digest,omitempty"`
	SizeBytes    int64
	DurationMs   int64
	Error        string `json:"Error,omitempty"`
	CreationTime time.Time
}

type ArtifactStatus struct {
	Source string
	Loaded bool

	Digest         string           `json:"Digest,omitempty"`
	SizeBytes      int64            `json:"SizeBytes,omitempty"`
	LoadedAt       *time.Time       `json:"LoadedAt,omitempty"`
	LoadDurationMs int64            `json:"LoadDurationMs,omitempty"`
	Summary        *PipelineSummary `json:"Summary,omitempty"`

	History []ArtifactLoad `json:"History,omitempty"`
}

type ArtifactStatusParams struct {
	History *int `schema:"history"`
}
