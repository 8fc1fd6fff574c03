package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imgshare-bot/internal/config"
	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/image"
	"imgshare-bot/internal/state"
	"imgshare-bot/internal/telegraph"
)

type fakeFetcher struct {
	mu   sync.Mutex
	data []byte
	err  error
	refs []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refs = append(f.refs, ref)
	return f.data, f.err
}

type passthrough struct{ err error }

func (p passthrough) Process(data []byte) (*image.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &image.Result{Data: data, ContentType: "image/jpeg", Filename: "image.jpg"}, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	link string
	err  error
	got  [][]byte
}

func (u *fakeUploader) Upload(_ context.Context, data []byte, _, _ string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.got = append(u.got, data)
	return u.link, u.err
}

type failingRecorder struct{}

func (failingRecorder) Mutate(context.Context, func(*state.Document) error) error {
	return errors.New("disk full")
}

type releases struct {
	mu    sync.Mutex
	paths []string
}

func (r *releases) release(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) *state.Store {
	t.Helper()
	backend, err := state.NewFileBackend(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	st, err := state.Open(context.Background(), backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func totals(st *state.Store, user int64) (int64, int) {
	var total int64
	var seen int
	st.View(func(d *state.Document) {
		total = d.Stats.TotalRequests
		seen = d.Stats.UsersSeen[user]
	})
	return total, seen
}

func TestPublish_Success(t *testing.T) {
	st := newStore(t)
	f := &fakeFetcher{data: []byte("img")}
	u := &fakeUploader{link: "https://telegra.ph/file/abc123"}
	p := NewPipeline(f, passthrough{}, u, st, nil, time.Second, discard())

	res, err := p.Publish(context.Background(), Request{OwnerID: 7, SourceRef: "file-1"})
	require.NoError(t, err)
	require.Equal(t, "https://telegra.ph/file/abc123", res.Link)
	require.Equal(t, []string{"file-1"}, f.refs)

	total, seen := totals(st, 7)
	require.EqualValues(t, 1, total)
	require.Equal(t, 1, seen)

	var hist []state.HistoryEntry
	st.View(func(d *state.Document) { hist = d.UserHistory(7) })
	require.Len(t, hist, 1)
	require.Equal(t, res.Link, hist[0].Link)
}

// End to end against a hosting stub.
func TestPublish_AgainstHostingService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"src":"/file/abc123"}]`))
	}))
	defer srv.Close()

	st := newStore(t)
	host := telegraph.NewClient(config.HostingConfig{BaseURL: srv.URL, Timeout: time.Second}, discard())
	p := NewPipeline(&fakeFetcher{data: []byte("img")}, passthrough{}, host, st, nil, time.Second, discard())

	res, err := p.Publish(context.Background(), Request{OwnerID: 7, SourceRef: "f"})
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/file/abc123", res.Link)

	total, seen := totals(st, 7)
	require.EqualValues(t, 1, total)
	require.Equal(t, 1, seen)
}

// A response without src never reaches the ledger.
func TestPublish_MalformedResponseLeavesLedger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	st := newStore(t)
	host := telegraph.NewClient(config.HostingConfig{BaseURL: srv.URL, Timeout: time.Second}, discard())
	p := NewPipeline(&fakeFetcher{data: []byte("img")}, passthrough{}, host, st, nil, time.Second, discard())

	res, err := p.Publish(context.Background(), Request{OwnerID: 7, SourceRef: "f"})
	require.Nil(t, res)
	require.ErrorIs(t, err, apperrors.ErrMalformedUploadResponse)

	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, StageUpload, se.Stage)
	require.Equal(t, apperrors.ErrMalformedUploadResponse.UserMsg, apperrors.GetUserMessage(err))

	total, _ := totals(st, 7)
	require.Zero(t, total)
}

func TestPublish_StageFailures(t *testing.T) {
	tests := []struct {
		name     string
		fetcher  *fakeFetcher
		xform    passthrough
		uploader *fakeUploader
		stage    Stage
		want     error
	}{
		{
			name:     "fetch",
			fetcher:  &fakeFetcher{err: errors.New("timeout")},
			uploader: &fakeUploader{link: "x"},
			stage:    StageFetch,
			want:     apperrors.ErrFetchFailed,
		},
		{
			name:     "transform",
			fetcher:  &fakeFetcher{data: []byte("img")},
			xform:    passthrough{err: errors.New("bad image")},
			uploader: &fakeUploader{link: "x"},
			stage:    StageTransform,
			want:     apperrors.ErrTransformFailed,
		},
		{
			name:     "upload",
			fetcher:  &fakeFetcher{data: []byte("img")},
			uploader: &fakeUploader{err: errors.New("connection reset")},
			stage:    StageUpload,
			want:     apperrors.ErrUploadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStore(t)
			rel := &releases{}
			p := NewPipeline(tt.fetcher, tt.xform, tt.uploader, st, rel.release, time.Second, discard())

			res, err := p.Publish(context.Background(), Request{OwnerID: 1, SourceRef: "f"})
			require.Nil(t, res)
			require.ErrorIs(t, err, tt.want)

			var se *StageError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.stage, se.Stage)

			total, _ := totals(st, 1)
			require.Zero(t, total)
			require.Empty(t, rel.paths)
		})
	}
}

func TestPublish_RecordFailure(t *testing.T) {
	p := NewPipeline(&fakeFetcher{data: []byte("img")}, passthrough{}, &fakeUploader{link: "l"}, failingRecorder{}, nil, time.Second, discard())

	res, err := p.Publish(context.Background(), Request{OwnerID: 1, SourceRef: "f"})
	require.Nil(t, res)
	require.ErrorIs(t, err, apperrors.ErrPersistFailed)
}

func TestPublish_UsesAndReleasesArtifact(t *testing.T) {
	st := newStore(t)
	proc := image.NewProcessor(true, 100, 80, t.TempDir())
	path, err := proc.WriteArtifact([]byte("transformed"))
	require.NoError(t, err)

	f := &fakeFetcher{err: errors.New("must not fetch")}
	u := &fakeUploader{link: "https://telegra.ph/file/a"}
	p := NewPipeline(f, passthrough{err: errors.New("must not transform")}, u, st, nil, time.Second, discard())

	_, err = p.Publish(context.Background(), Request{OwnerID: 3, ArtifactPath: path})
	require.NoError(t, err)
	require.Empty(t, f.refs)
	require.Equal(t, [][]byte{[]byte("transformed")}, u.got)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestPublish_ReleasesArtifactOnFailure(t *testing.T) {
	st := newStore(t)
	proc := image.NewProcessor(true, 100, 80, t.TempDir())
	path, err := proc.WriteArtifact([]byte("transformed"))
	require.NoError(t, err)

	rel := &releases{}
	p := NewPipeline(&fakeFetcher{}, passthrough{}, &fakeUploader{err: errors.New("down")}, st, rel.release, time.Second, discard())

	_, err = p.Publish(context.Background(), Request{OwnerID: 3, ArtifactPath: path})
	require.Error(t, err)
	require.Equal(t, []string{path}, rel.paths)
}

func TestPublish_ConcurrentCallsAreIndependent(t *testing.T) {
	st := newStore(t)
	p := NewPipeline(&fakeFetcher{data: []byte("img")}, passthrough{}, &fakeUploader{link: "l"}, st, nil, time.Second, discard())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, _ = p.Publish(context.Background(), Request{OwnerID: user, SourceRef: "f"})
		}(int64(i % 3))
	}
	wg.Wait()

	total, _ := totals(st, 0)
	require.EqualValues(t, 10, total)
}
