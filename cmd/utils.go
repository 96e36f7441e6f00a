package cmd

import (
	"context"
	"flag"
	"log"

	"gbr-server/internal/artifact"
	"gbr-server/internal/config"

	"github.com/joho/godotenv"
)

// LoadEnvFile parses command line flags, including any the caller registered
// beforehand, and loads the file named by -env into the environment.
func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func NewLoader(ctx context.Context, cfg *config.Config, observers ...artifact.Observer) (*artifact.Loader, error) {
	source, err := artifact.NewSource(ctx, cfg.SourceConfig())
	if err != nil {
		return nil, err
	}

	opts := []artifact.Option{
		artifact.WithTempDir(cfg.ModelTempDir),
		artifact.WithTimeout(cfg.ModelFetchTimeout),
	}
	for _, o := range observers {
		opts = append(opts, artifact.WithObserver(o))
	}

	return artifact.NewLoader(source, opts...), nil
}
