package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"gbr-server/internal/storage"

	"github.com/go-resty/resty/v2"
)

// Source identifies where the artifact lives. Sources are either a
// *LocalSource, read in place, or a RemoteSource, fetched into a scoped
// temporary file first.
type Source interface {
	String() string
}

type RemoteSource interface {
	Source
	Fetch(ctx context.Context, dst *os.File) (int64, error)
}

type LocalSource struct {
	Path string

	// fromURL is set when the path came from a file:// MODEL_URL rather
	// than the default local artifact location.
	fromURL bool
}

func (s *LocalSource) String() string {
	return s.Path
}

type HTTPSource struct {
	url    *url.URL
	client *resty.Client
}

func NewHTTPSource(rawURL string, timeout time.Duration) (*HTTPSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid model url: %v", ErrConfiguration, err)
	}
	client := resty.New().SetTimeout(timeout)
	return &HTTPSource{url: u, client: client}, nil
}

// String omits the query string, which often carries signatures.
func (s *HTTPSource) String() string {
	redacted := *s.url
	redacted.RawQuery = ""
	redacted.User = nil
	return redacted.String()
}

func (s *HTTPSource) Fetch(ctx context.Context, dst *os.File) (int64, error) {
	res, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(s.url.String())
	if err != nil {
		return 0, fmt.Errorf("error fetching artifact: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		return 0, fmt.Errorf("unexpected status %d fetching artifact", res.StatusCode())
	}

	n, err := io.Copy(dst, body)
	if err != nil {
		return n, fmt.Errorf("error reading artifact body: %w", err)
	}
	return n, nil
}

type S3Source struct {
	store  storage.ObjectStore
	bucket string
	key    string
}

func NewS3Source(store storage.ObjectStore, bucket, key string) *S3Source {
	return &S3Source{store: store, bucket: bucket, key: key}
}

func (s *S3Source) String() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func (s *S3Source) Fetch(ctx context.Context, dst *os.File) (int64, error) {
	return s.store.DownloadObject(ctx, s.bucket, s.key, dst)
}

type SourceConfig struct {
	URL          string
	LocalPath    string
	FetchTimeout time.Duration
	S3           storage.S3ClientConfig
}

// NewSource resolves the configured artifact location. MODEL_URL wins over
// the local path when both are present.
func NewSource(ctx context.Context, cfg SourceConfig) (Source, error) {
	if cfg.URL == "" {
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("%w: neither MODEL_URL nor a local model path is set", ErrConfiguration)
		}
		return &LocalSource{Path: cfg.LocalPath}, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MODEL_URL: %v", ErrConfiguration, err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPSource(cfg.URL, cfg.FetchTimeout)
	case "s3":
		bucket, key, err := storage.ParseS3URL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		store, err := storage.NewS3ObjectStore(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		return NewS3Source(store, bucket, key), nil
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return &LocalSource{Path: path, fromURL: true}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported MODEL_URL scheme %q", ErrConfiguration, u.Scheme)
	}
}
