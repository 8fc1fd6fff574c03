package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/image"
	"imgshare-bot/internal/metrics"
	"imgshare-bot/internal/state"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageTransform Stage = "transform"
	StageUpload    Stage = "upload"
	StageRecord    Stage = "record"
)

// StageError is a pipeline failure attributed to the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Fetcher resolves a platform file reference to bytes.
type Fetcher interface {
	Fetch(ctx context.Context, sourceRef string) ([]byte, error)
}

// Transformer prepares raw bytes for upload.
type Transformer interface {
	Process(data []byte) (*image.Result, error)
}

// Uploader posts bytes to the hosting service and returns the public link.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

// Recorder persists a ledger mutation.
type Recorder interface {
	Mutate(ctx context.Context, fn func(d *state.Document) error) error
}

// Request is everything one publish needs, captured by value.
type Request struct {
	OwnerID      int64
	SourceRef    string
	ArtifactPath string
	Caption      string
}

// Result is a successful publish.
type Result struct {
	Link        string
	PublishedAt time.Time
}

// Pipeline runs fetch, transform, upload and record. It keeps no state
// between calls, so immediate and scheduled publishes share one instance.
type Pipeline struct {
	fetcher      Fetcher
	transformer  Transformer
	uploader     Uploader
	recorder     Recorder
	release      func(path string) error
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewPipeline creates a publish pipeline. release deletes local artifacts.
func NewPipeline(fetcher Fetcher, transformer Transformer, uploader Uploader, recorder Recorder,
	release func(path string) error, fetchTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if release == nil {
		release = image.RemoveArtifact
	}
	return &Pipeline{
		fetcher:      fetcher,
		transformer:  transformer,
		uploader:     uploader,
		recorder:     recorder,
		release:      release,
		fetchTimeout: fetchTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Publish runs the pipeline for req. The caller hands over ownership of
// req.ArtifactPath: it is released on every return path. The ledger is only
// touched once a validated link exists.
func (p *Pipeline) Publish(ctx context.Context, req Request) (res *Result, err error) {
	start := p.now()
	logger := p.logger.With("user_id", req.OwnerID)

	defer func() {
		if req.ArtifactPath != "" {
			if rerr := p.release(req.ArtifactPath); rerr != nil {
				logger.Warn("failed to release artifact", "error", rerr, "path", req.ArtifactPath)
			}
		}

		metrics.PublishDuration.Observe(time.Since(start).Seconds())
		var se *StageError
		if errors.As(err, &se) {
			metrics.Publishes.WithLabelValues("failure", string(se.Stage)).Inc()
			logger.Error("publish failed", "stage", se.Stage, "retryable", apperrors.IsRetryable(se.Err), "error", se.Err)
			return
		}
		metrics.Publishes.WithLabelValues("success", "").Inc()
	}()

	img, serr := p.prepare(ctx, req)
	if serr != nil {
		return nil, serr
	}

	link, uerr := p.uploader.Upload(ctx, img.Data, img.Filename, img.ContentType)
	if uerr != nil {
		if !errors.Is(uerr, apperrors.ErrMalformedUploadResponse) && !errors.Is(uerr, apperrors.ErrUploadFailed) {
			uerr = fmt.Errorf("%w: %v", apperrors.ErrUploadFailed, uerr)
		}
		return nil, &StageError{Stage: StageUpload, Err: uerr}
	}

	publishedAt := p.now()
	if rerr := p.recorder.Mutate(ctx, func(d *state.Document) error {
		d.RecordPublish(req.OwnerID, link, publishedAt)
		return nil
	}); rerr != nil {
		return nil, &StageError{Stage: StageRecord, Err: fmt.Errorf("%w: %v", apperrors.ErrPersistFailed, rerr)}
	}

	logger.Info("image published", "link", link, "bytes", len(img.Data), "duration", time.Since(start))
	return &Result{Link: link, PublishedAt: publishedAt}, nil
}

// prepare returns upload-ready bytes, either from the local artifact or by
// fetching and transforming the source.
func (p *Pipeline) prepare(ctx context.Context, req Request) (*image.Result, error) {
	if req.ArtifactPath != "" {
		img, err := image.ReadArtifact(req.ArtifactPath)
		if err != nil {
			return nil, &StageError{Stage: StageFetch, Err: fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)}
		}
		return img, nil
	}

	fetchCtx := ctx
	if p.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.fetchTimeout)
		defer cancel()
	}

	data, err := p.fetcher.Fetch(fetchCtx, req.SourceRef)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: fmt.Errorf("%w: %v", apperrors.ErrFetchFailed, err)}
	}

	img, err := p.transformer.Process(data)
	if err != nil {
		return nil, &StageError{Stage: StageTransform, Err: fmt.Errorf("%w: %v", apperrors.ErrTransformFailed, err)}
	}
	return img, nil
}
