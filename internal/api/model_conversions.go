package api

import (
	"gbr-server/internal/artifact"
	"gbr-server/internal/database"
	"gbr-server/pkg/api"
)

func convertArtifactStatus(s artifact.Status) api.ArtifactStatus {
	status := api.ArtifactStatus{
		Source: s.Source,
		Loaded: s.Loaded,
	}

	if s.Loaded {
		loadedAt := s.LoadedAt
		status.Digest = s.Digest
		status.SizeBytes = s.SizeBytes
		status.LoadedAt = &loadedAt
		status.LoadDurationMs = s.LoadDuration.Milliseconds()
		status.Summary = &api.PipelineSummary{
			InputColumns: s.Summary.InputColumns,
			NFeatures:    s.Summary.NFeatures,
			NEstimators:  s.Summary.NEstimators,
		}
	}

	return status
}

func convertArtifactLoad(l database.ArtifactLoad) api.ArtifactLoad {
	return api.ArtifactLoad{
		Id:           l.Id,
		Source:       l.Source,
		Status:       l.Status,
		Digest:       l.Digest.String,
		SizeBytes:    l.SizeBytes,
		DurationMs:   l.DurationMs,
		Error:        l.Error.String,
		CreationTime: l.CreationTime,
	}
}

func convertArtifactLoads(ls []database.ArtifactLoad) []api.ArtifactLoad {
	loads := make([]api.ArtifactLoad, 0, len(ls))
	for _, l := range ls {
		loads = append(loads, convertArtifactLoad(l))
	}
	return loads
}
