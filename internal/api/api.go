package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"gbr-server/internal/artifact"
	"gbr-server/internal/core"
	"gbr-server/internal/database"
	"gbr-server/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultHistory = 10
	maxHistory     = 1000
)

// PipelineProvider hands out the cached pipeline. Status must not trigger a
// load.
type PipelineProvider interface {
	Get(ctx context.Context) (*core.Pipeline, error)
	Status() artifact.Status
}

type LoadHistory interface {
	Recent(ctx context.Context, limit int) ([]database.ArtifactLoad, error)
}

type PredictObserver interface {
	ObservePredict(code int, rows int)
}

type PredictionService struct {
	provider     PipelineProvider
	history      LoadHistory
	observer     PredictObserver
	maxBodyBytes int64
}

// NewPredictionService builds the HTTP surface. history and observer may be
// nil.
func NewPredictionService(provider PipelineProvider, history LoadHistory, observer PredictObserver, maxBodyBytes int64) *PredictionService {
	return &PredictionService{
		provider:     provider,
		history:      history,
		observer:     observer,
		maxBodyBytes: maxBodyBytes,
	}
}

func (s *PredictionService) AddRoutes(r chi.Router) {
	r.Get("/", RestHandler(s.Health))
	r.With(middleware.RequestSize(s.maxBodyBytes)).Post("/predict", RestHandler(s.Predict))
	r.Get("/artifact", RestHandler(s.ArtifactStatus))
}

func (s *PredictionService) Health(r *http.Request) (any, error) {
	return api.HealthResponse{Message: "API is running successfully", Status: "ok"}, nil
}

func (s *PredictionService) Predict(r *http.Request) (any, error) {
	res, rows, err := s.predict(r)
	if s.observer != nil {
		s.observer.ObservePredict(statusCode(err), rows)
	}
	return res, err
}

func (s *PredictionService) predict(r *http.Request) (any, int, error) {
	payload, err := readPayload(r.Body)
	if err != nil {
		return nil, 0, err
	}

	table, err := core.TableFromJSON(payload)
	if err != nil {
		return nil, 0, CodedError(http.StatusInternalServerError, err)
	}

	pipeline, err := s.provider.Get(r.Context())
	if err != nil {
		return nil, 0, CodedError(http.StatusInternalServerError, err)
	}

	predictions, err := core.RunInference(pipeline, table)
	if err != nil {
		return nil, 0, CodedError(http.StatusInternalServerError, err)
	}

	return api.PredictResponse{Prediction: predictions}, len(predictions), nil
}

// readPayload returns the request body if it holds a JSON document with
// content. An absent, unreadable, or malformed body is a client error, as is
// a falsy document: null, false, 0, "", {} or [].
func readPayload(body io.Reader) ([]byte, error) {
	noData := CodedErrorf(http.StatusBadRequest, "No JSON data provided")

	if body == nil {
		return nil, noData
	}

	data, err := io.ReadAll(body)
	if err != nil {
		slog.Warn("error reading request body", "error", err)
		return nil, noData
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil || isEmptyDocument(doc) {
		return nil, noData
	}

	return data, nil
}

func isEmptyDocument(doc any) bool {
	switch v := doc.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

func (s *PredictionService) ArtifactStatus(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ArtifactStatusParams](r)
	if err != nil {
		return nil, err
	}

	limit := defaultHistory
	if params.History != nil {
		limit = *params.History
	}
	if limit < 0 || limit > maxHistory {
		return nil, CodedErrorf(http.StatusBadRequest, "history must be between 0 and %d", maxHistory)
	}

	status := convertArtifactStatus(s.provider.Status())

	if s.history != nil && limit > 0 {
		loads, err := s.history.Recent(r.Context(), limit)
		if err != nil {
			return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving artifact load history")
		}
		status.History = convertArtifactLoads(loads)
	}

	return status, nil
}
