package artifact_test

import (
	"context"
	"encoding/json"
	"errors"
	"gbr-server/internal/artifact"
	"gbr-server/internal/core"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactBytes(t *testing.T) []byte {
	t.Helper()
	a := core.Artifact{
		Format:  core.ArtifactFormat,
		Version: core.ArtifactVersion,
		NamedSteps: core.NamedSteps{
			Preprocessor: &core.PreprocessorSpec{
				Transformers: []core.TransformerSpec{{Name: "raw", Kind: core.Passthrough, Columns: []string{"x"}}},
			},
			Regressor: &core.RegressorSpec{
				Kind:         "gradient_boosting",
				NFeatures:    1,
				LearningRate: 1,
				Trees: []core.TreeSpec{{
					ChildrenLeft:  []int{1, -1, -1},
					ChildrenRight: []int{2, -1, -1},
					Feature:       []int{0, -2, -2},
					Threshold:     []float64{0, -2, -2},
					Value:         []float64{0, -1, 1},
				}},
			},
		},
	}
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return data
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind in %s", dir)
}

type countingServer struct {
	hits    atomic.Int32
	release chan struct{}

	mu     sync.Mutex
	status int
	body   []byte
}

func (s *countingServer) respondWith(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status, s.body = status, body
}

func (s *countingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	if s.release != nil {
		<-s.release
	}

	s.mu.Lock()
	status, body := s.status, s.body
	s.mu.Unlock()

	if status != 0 && status != http.StatusOK {
		http.Error(w, "nope", status)
		return
	}
	w.Write(body) //nolint:errcheck
}

func newHTTPLoader(t *testing.T, srv *httptest.Server, query string, opts ...artifact.Option) (*artifact.Loader, string) {
	t.Helper()
	tempDir := t.TempDir()
	src, err := artifact.NewSource(context.Background(), artifact.SourceConfig{URL: srv.URL + "/gbr_pipeline.json" + query})
	require.NoError(t, err)
	return artifact.NewLoader(src, append([]artifact.Option{artifact.WithTempDir(tempDir)}, opts...)...), tempDir
}

func TestLoaderLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gbr_pipeline.json")
	require.NoError(t, os.WriteFile(path, artifactBytes(t), 0o644))

	src, err := artifact.NewSource(context.Background(), artifact.SourceConfig{LocalPath: path})
	require.NoError(t, err)

	decodes := 0
	loader := artifact.NewLoader(src, artifact.WithDecoder(func(r io.Reader) (*core.Pipeline, error) {
		decodes++
		return core.Decode(r)
	}))

	first, err := loader.Get(context.Background())
	require.NoError(t, err)
	second, err := loader.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, decodes)

	status := loader.Status()
	assert.True(t, status.Loaded)
	assert.Equal(t, path, status.Source)
	assert.Len(t, status.Digest, 64)
	assert.Equal(t, int64(len(artifactBytes(t))), status.SizeBytes)
	assert.Equal(t, []string{"x"}, status.Summary.InputColumns)
}

func TestLoaderMissingLocalArtifactIsConfigurationError(t *testing.T) {
	src, err := artifact.NewSource(context.Background(), artifact.SourceConfig{LocalPath: filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)

	_, err = artifact.NewLoader(src).Get(context.Background())
	assert.ErrorIs(t, err, artifact.ErrConfiguration)
}

func TestLoaderMissingFileURLIsLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	src, err := artifact.NewSource(context.Background(), artifact.SourceConfig{URL: "file://" + path})
	require.NoError(t, err)

	_, err = artifact.NewLoader(src).Get(context.Background())
	var loadErr *artifact.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, path, loadErr.Source)
	assert.Contains(t, err.Error(), path)
}

func TestLoaderHTTPSuccessRemovesTempFile(t *testing.T) {
	server := &countingServer{body: artifactBytes(t)}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, tempDir := newHTTPLoader(t, srv, "")

	pipeline, err := loader.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pipeline)

	assertDirEmpty(t, tempDir)

	_, err = loader.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), server.hits.Load())
}

func TestLoaderHTTPFailureIsNotCached(t *testing.T) {
	server := &countingServer{status: http.StatusNotFound}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, tempDir := newHTTPLoader(t, srv, "?X-Amz-Signature=secret")

	for i := 1; i <= 2; i++ {
		_, err := loader.Get(context.Background())
		var loadErr *artifact.LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Contains(t, err.Error(), srv.URL+"/gbr_pipeline.json")
		assert.NotContains(t, err.Error(), "secret")
		assert.Contains(t, err.Error(), "404")

		assert.Equal(t, int32(i), server.hits.Load())
		assertDirEmpty(t, tempDir)
	}

	assert.False(t, loader.Status().Loaded)
}

func TestLoaderCorruptArtifactRemovesTempFile(t *testing.T) {
	server := &countingServer{body: []byte("\x80\x04\x95 pickled bytes")}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, tempDir := newHTTPLoader(t, srv, "")

	_, err := loader.Get(context.Background())
	var loadErr *artifact.LoadError
	require.ErrorAs(t, err, &loadErr)
	assertDirEmpty(t, tempDir)
}

func TestLoaderSchemaMismatchIsLoadError(t *testing.T) {
	server := &countingServer{body: []byte(`{"format": "gbr-pipeline", "version": 1, "named_steps": {"preprocessor": {"transformers": []}}}`)}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, _ := newHTTPLoader(t, srv, "")

	_, err := loader.Get(context.Background())
	var loadErr *artifact.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, core.ErrInvalidArtifact)
}

func TestLoaderConcurrentFirstLoad(t *testing.T) {
	server := &countingServer{body: artifactBytes(t), release: make(chan struct{})}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, tempDir := newHTTPLoader(t, srv, "")

	const callers = 50
	results := make([]*core.Pipeline, callers)
	errs := make([]error, callers)

	wg := sync.WaitGroup{}
	wg.Add(callers)
	for i := range callers {
		go func() {
			defer wg.Done()
			results[i], errs[i] = loader.Get(context.Background())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(server.release)
	wg.Wait()

	assert.Equal(t, int32(1), server.hits.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assertDirEmpty(t, tempDir)
}

func TestLoaderConcurrentFailureSharedByWaiters(t *testing.T) {
	server := &countingServer{status: http.StatusInternalServerError, release: make(chan struct{})}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, _ := newHTTPLoader(t, srv, "")

	const callers = 10
	errs := make([]error, callers)
	wg := sync.WaitGroup{}
	wg.Add(callers)
	for i := range callers {
		go func() {
			defer wg.Done()
			_, errs[i] = loader.Get(context.Background())
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(server.release)
	wg.Wait()

	for _, err := range errs {
		var loadErr *artifact.LoadError
		assert.ErrorAs(t, err, &loadErr)
	}
	// Every caller joined the attempt before the server answered.
	assert.Equal(t, int32(1), server.hits.Load())
}

func TestLoaderCallerCancellationDoesNotAbortLoad(t *testing.T) {
	server := &countingServer{body: artifactBytes(t), release: make(chan struct{})}
	srv := httptest.NewServer(server)
	defer srv.Close()

	loader, _ := newHTTPLoader(t, srv, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := loader.Get(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(server.release)
	pipeline, err := loader.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pipeline)
	assert.Equal(t, int32(1), server.hits.Load())
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []artifact.Attempt
}

func (o *recordingObserver) ObserveLoad(_ context.Context, a artifact.Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, a)
}

func TestLoaderNotifiesObservers(t *testing.T) {
	server := &countingServer{status: http.StatusBadGateway}
	srv := httptest.NewServer(server)
	defer srv.Close()

	observer := &recordingObserver{}
	loader, _ := newHTTPLoader(t, srv, "", artifact.WithObserver(observer))

	_, err := loader.Get(context.Background())
	require.Error(t, err)

	server.respondWith(http.StatusOK, artifactBytes(t))

	_, err = loader.Get(context.Background())
	require.NoError(t, err)

	require.Len(t, observer.attempts, 2)
	assert.Error(t, observer.attempts[0].Err)
	assert.NoError(t, observer.attempts[1].Err)
	assert.Len(t, observer.attempts[1].Digest, 64)
	assert.Equal(t, 1, observer.attempts[1].Summary.NEstimators)
}

func TestNewSource(t *testing.T) {
	ctx := context.Background()

	src, err := artifact.NewSource(ctx, artifact.SourceConfig{URL: "https://example.com/models/gbr.json?sig=abc"})
	require.NoError(t, err)
	assert.IsType(t, &artifact.HTTPSource{}, src)
	assert.Equal(t, "https://example.com/models/gbr.json", src.String())

	src, err = artifact.NewSource(ctx, artifact.SourceConfig{URL: "file:///srv/models/gbr.json", LocalPath: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "/srv/models/gbr.json", src.String())

	_, err = artifact.NewSource(ctx, artifact.SourceConfig{})
	assert.ErrorIs(t, err, artifact.ErrConfiguration)

	_, err = artifact.NewSource(ctx, artifact.SourceConfig{URL: "ftp://example.com/gbr.json"})
	assert.ErrorIs(t, err, artifact.ErrConfiguration)

	_, err = artifact.NewSource(ctx, artifact.SourceConfig{URL: "s3://only-bucket"})
	assert.ErrorIs(t, err, artifact.ErrConfiguration)
}

func TestLoaderErrorTypes(t *testing.T) {
	err := &artifact.LoadError{Source: "s3://b/k", Err: errors.New("boom")}
	assert.EqualError(t, err, "failed to load model artifact from s3://b/k: boom")
}
