package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"gbr-server/cmd"
	"gbr-server/internal/config"
	"gbr-server/internal/core"
	"gbr-server/internal/logging"
	"gbr-server/pkg/api"
)

func main() {
	var path, url, input string
	flag.StringVar(&path, "path", "", "local artifact path, overrides MODEL_PATH")
	flag.StringVar(&url, "url", "", "artifact url, overrides MODEL_URL")
	flag.StringVar(&input, "input", "", "optional json payload to score with the artifact")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if path != "" {
		cfg.ModelPath = path
		cfg.ModelURL = ""
	}
	if url != "" {
		cfg.ModelURL = url
	}

	logging.InitLogger(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stderr)

	ctx := context.Background()

	loader, err := cmd.NewLoader(ctx, cfg)
	if err != nil {
		log.Fatalf("invalid model source: %v", err)
	}

	pipeline, err := loader.Get(ctx)
	if err != nil {
		log.Fatalf("artifact validation failed: %v", err)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	status := loader.Status()
	if err := out.Encode(map[string]any{
		"source":  status.Source,
		"sha256":  status.Digest,
		"bytes":   status.SizeBytes,
		"summary": status.Summary,
	}); err != nil {
		log.Fatalf("error writing summary: %v", err)
	}

	if input == "" {
		return
	}

	payload, err := os.ReadFile(input)
	if err != nil {
		log.Fatalf("error reading input: %v", err)
	}

	predictions, err := predict(pipeline, payload)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := out.Encode(api.PredictResponse{Prediction: predictions}); err != nil {
		log.Fatalf("error writing predictions: %v", err)
	}
}

func predict(pipeline *core.Pipeline, payload []byte) ([]float64, error) {
	table, err := core.TableFromJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return core.RunInference(pipeline, table)
}
