package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"gbr-server/internal/core"

	"golang.org/x/sync/singleflight"
)

const (
	defaultFetchTimeout = 2 * time.Minute
	loadKey             = "pipeline"
)

// Attempt describes one fetch and decode of the artifact, successful or not.
type Attempt struct {
	Source    string
	Digest    string
	SizeBytes int64
	Duration  time.Duration
	Summary   core.Summary
	Err       error
}

// Observer is notified after every load attempt.
type Observer interface {
	ObserveLoad(ctx context.Context, attempt Attempt)
}

// Status is a snapshot of the loader that never triggers a load.
type Status struct {
	Source       string
	Loaded       bool
	Digest       string
	SizeBytes    int64
	LoadedAt     time.Time
	LoadDuration time.Duration
	Summary      core.Summary
}

type loaded struct {
	pipeline *core.Pipeline
	attempt  Attempt
	at       time.Time
}

// Loader materializes the pipeline from its Source at most once per process
// and caches it. Concurrent callers of Get share a single in-flight load.
// Failed loads are not cached; the next call after a failure retries.
type Loader struct {
	source    Source
	tempDir   string
	timeout   time.Duration
	decode    func(io.Reader) (*core.Pipeline, error)
	observers []Observer

	group singleflight.Group

	mu    sync.RWMutex
	state *loaded
}

type Option func(*Loader)

func WithTempDir(dir string) Option {
	return func(l *Loader) { l.tempDir = dir }
}

func WithTimeout(timeout time.Duration) Option {
	return func(l *Loader) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

func WithDecoder(decode func(io.Reader) (*core.Pipeline, error)) Option {
	return func(l *Loader) { l.decode = decode }
}

func WithObserver(o Observer) Option {
	return func(l *Loader) { l.observers = append(l.observers, o) }
}

func NewLoader(source Source, opts ...Option) *Loader {
	l := &Loader{
		source:  source,
		timeout: defaultFetchTimeout,
		decode:  core.Decode,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) cached() *loaded {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Get returns the cached pipeline, loading it first if needed. The load runs
// on a context detached from ctx and bounded by the loader timeout, so a
// caller that gives up does not fail the load for everyone else waiting on it.
func (l *Loader) Get(ctx context.Context) (*core.Pipeline, error) {
	if state := l.cached(); state != nil {
		return state.pipeline, nil
	}

	ch := l.group.DoChan(loadKey, func() (any, error) {
		if state := l.cached(); state != nil {
			return state, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		state, err := l.load(loadCtx)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.state = state
		l.mu.Unlock()

		return state, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*loaded).pipeline, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Loader) Status() Status {
	status := Status{Source: l.source.String()}
	if state := l.cached(); state != nil {
		status.Loaded = true
		status.Digest = state.attempt.Digest
		status.SizeBytes = state.attempt.SizeBytes
		status.LoadedAt = state.at
		status.LoadDuration = state.attempt.Duration
		status.Summary = state.attempt.Summary
	}
	return status
}

func (l *Loader) load(ctx context.Context) (*loaded, error) {
	start := time.Now()
	attempt := Attempt{Source: l.source.String()}

	slog.Info("loading model artifact", "source", attempt.Source)

	pipeline, digest, size, err := l.fetchAndDecode(ctx)
	attempt.Duration = time.Since(start)
	attempt.Digest = digest
	attempt.SizeBytes = size
	attempt.Err = err
	if pipeline != nil {
		attempt.Summary = pipeline.Summary()
	}

	// Observers outlive the load deadline so timed out attempts are still
	// recorded.
	observeCtx := context.WithoutCancel(ctx)
	for _, o := range l.observers {
		o.ObserveLoad(observeCtx, attempt)
	}

	if err != nil {
		slog.Error("error loading model artifact", "source", attempt.Source, "duration", attempt.Duration, "error", err)
		return nil, err
	}

	slog.Info("model artifact loaded", "source", attempt.Source, "sha256", digest, "bytes", size, "duration", attempt.Duration,
		"n_features", attempt.Summary.NFeatures, "n_estimators", attempt.Summary.NEstimators)

	return &loaded{pipeline: pipeline, attempt: attempt, at: time.Now()}, nil
}

func (l *Loader) fetchAndDecode(ctx context.Context) (*core.Pipeline, string, int64, error) {
	switch src := l.source.(type) {
	case *LocalSource:
		file, err := os.Open(src.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && !src.fromURL {
				return nil, "", 0, fmt.Errorf("%w: MODEL_URL is not set and no model artifact found at %s", ErrConfiguration, src.Path)
			}
			return nil, "", 0, &LoadError{Source: src.String(), Err: err}
		}
		defer file.Close()

		return l.decodeFrom(file, src)

	case RemoteSource:
		return l.fetchRemote(ctx, src)

	default:
		return nil, "", 0, fmt.Errorf("%w: unsupported source type %T", ErrConfiguration, src)
	}
}

func (l *Loader) fetchRemote(ctx context.Context, src RemoteSource) (*core.Pipeline, string, int64, error) {
	tmp, err := os.CreateTemp(l.tempDir, "gbr-artifact-*")
	if err != nil {
		return nil, "", 0, &LoadError{Source: src.String(), Err: fmt.Errorf("error creating temp file: %w", err)}
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("error removing temp artifact file", "path", tmp.Name(), "error", err)
		}
	}()

	if _, err := src.Fetch(ctx, tmp); err != nil {
		return nil, "", 0, &LoadError{Source: src.String(), Err: err}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, "", 0, &LoadError{Source: src.String(), Err: err}
	}

	return l.decodeFrom(tmp, src)
}

func (l *Loader) decodeFrom(r io.Reader, src Source) (*core.Pipeline, string, int64, error) {
	hash := sha256.New()
	counter := &countingReader{r: io.TeeReader(r, hash)}

	pipeline, err := l.decode(counter)
	if err != nil {
		return nil, "", counter.n, &LoadError{Source: src.String(), Err: err}
	}

	// Drain whatever the decoder left unread so the digest covers the file.
	if _, err := io.Copy(io.Discard, counter); err != nil {
		return nil, "", counter.n, &LoadError{Source: src.String(), Err: err}
	}

	return pipeline, hex.EncodeToString(hash.Sum(nil)), counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
