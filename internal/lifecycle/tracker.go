package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/colorize-be/internal/blob"
	"github.com/cuongbtq/colorize-be/internal/colorize"
	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/durable"
	"github.com/cuongbtq/colorize-be/internal/metrics"
	"github.com/google/uuid"
)

const (
	storageFailedMessage  = "Failed to store the colorized image. Please try again later."
	dispatchFailedMessage = "Failed to schedule colorization. Please try again later."
)

// Colorizer turns image bytes into a colorized PNG.
type Colorizer interface {
	Colorize(ctx context.Context, data []byte) ([]byte, error)
}

// EventRecorder records analytics events.
type EventRecorder interface {
	Record(ctx context.Context, event domain.ColorizeEvent) error
}

// Deps are the collaborators of a Tracker. Dispatcher defaults to an
// InlineDispatcher bound to the tracker; Events is optional.
type Deps struct {
	Repo       Repository
	Blobs      blob.Store
	Colorizer  Colorizer
	Executor   *durable.Executor
	Dispatcher Dispatcher
	Events     EventRecorder
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Buckets names the object store buckets.
type Buckets struct {
	Original  string
	Colorized string
}

// Tracker owns the lifecycle of persistent colorize requests: submission,
// the background transition to a terminal state and status lookups.
type Tracker struct {
	repo        Repository
	blobs       blob.Store
	provisioner *blob.Provisioner
	colorizer   Colorizer
	exec        *durable.Executor
	dispatcher  Dispatcher
	events      EventRecorder
	metrics     *metrics.Metrics
	logger      *slog.Logger
	buckets     Buckets

	now   func() time.Time
	newID func() string
}

func NewTracker(deps Deps, buckets Buckets) *Tracker {
	t := &Tracker{
		repo:        deps.Repo,
		blobs:       deps.Blobs,
		provisioner: blob.NewProvisioner(deps.Blobs, buckets.Original, buckets.Colorized),
		colorizer:   deps.Colorizer,
		exec:        deps.Executor,
		dispatcher:  deps.Dispatcher,
		events:      deps.Events,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		buckets:     buckets,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	if t.dispatcher == nil {
		t.dispatcher = NewInlineDispatcher(t, deps.Logger)
	}
	return t
}

// Dispatcher returns the dispatcher in use.
func (t *Tracker) Dispatcher() Dispatcher {
	return t.dispatcher
}

// SubmitInput is one persistent upload.
type SubmitInput struct {
	UserID    string
	UserEmail string
	Platform  string
	Image     []byte
}

// Submit stores the original, creates the processing record and schedules
// the background transition. The record exists before the job is dispatched.
func (t *Tracker) Submit(ctx context.Context, in SubmitInput) (*domain.ColorizeRequest, error) {
	id := t.newID()
	path := fmt.Sprintf("%s/%s.png", in.UserID, id)

	if err := t.exec.Execute(ctx, "ensure_buckets", t.provisioner.Ensure); err != nil {
		return nil, err
	}

	err := t.exec.Execute(ctx, "upload_original", func(ctx context.Context) error {
		return t.blobs.Upload(ctx, t.buckets.Original, path, in.Image, "image/png")
	})
	if err != nil {
		return nil, err
	}

	req := &domain.ColorizeRequest{
		ID:           id,
		UserID:       in.UserID,
		UserEmail:    optional(in.UserEmail),
		Status:       domain.StatusProcessing,
		OriginalPath: path,
		OriginalURL:  t.blobs.PublicURL(t.buckets.Original, path),
		CreatedAt:    t.now(),
	}

	err = t.exec.Execute(ctx, "insert_request", func(ctx context.Context) error {
		return t.repo.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	job := domain.Job{
		RequestID:    id,
		UserID:       in.UserID,
		OriginalPath: path,
		Platform:     in.Platform,
		Image:        in.Image,
	}
	if err := t.dispatcher.Dispatch(ctx, job); err != nil {
		t.logger.Error("Failed to dispatch colorization",
			slog.String("request_id", id),
			slog.String("error", err.Error()),
		)
		if ferr := t.markFailed(ctx, id, dispatchFailedMessage); ferr != nil {
			t.logger.Error("Failed to mark undispatched request failed",
				slog.String("request_id", id),
				slog.String("error", ferr.Error()),
			)
		}
		return nil, err
	}

	t.logger.Info("Colorize request submitted",
		slog.String("request_id", id),
		slog.String("user_id", in.UserID),
		slog.Int("image_bytes", len(in.Image)),
	)
	return req, nil
}

// Get returns the record for id or domain.ErrRequestNotFound. A missing
// record is neither retried nor counted as a store failure.
func (t *Tracker) Get(ctx context.Context, id string) (*domain.ColorizeRequest, error) {
	var notFound error
	rec, err := durable.Query(ctx, t.exec, "get_request", func(ctx context.Context) (*domain.ColorizeRequest, error) {
		rec, err := t.repo.Get(ctx, id)
		if errors.Is(err, domain.ErrRequestNotFound) {
			notFound = err
			return nil, nil
		}
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	if notFound != nil {
		return nil, notFound
	}
	return rec, nil
}

// Process runs the background transition for job. Records that are already
// terminal are left untouched. Every colorization or storage failure ends in
// the failed state; an error is returned only when the record could not be
// loaded or its terminal state could not be written.
func (t *Tracker) Process(ctx context.Context, job domain.Job) error {
	logger := t.logger.With(slog.String("request_id", job.RequestID))

	req, err := t.Get(ctx, job.RequestID)
	if err != nil {
		return err
	}
	if req.Status.IsTerminal() {
		logger.Info("Request already finalized, skipping", slog.String("status", string(req.Status)))
		return nil
	}

	image := job.Image
	if image == nil {
		image, err = durable.Query(ctx, t.exec, "download_original", func(ctx context.Context) ([]byte, error) {
			return t.blobs.Download(ctx, t.buckets.Original, req.OriginalPath)
		})
		if err != nil {
			logger.Error("Failed to load original image", slog.String("error", err.Error()))
			return t.finishFailed(ctx, req.ID, storageFailedMessage)
		}
	}

	start := time.Now()
	colorized, err := t.colorizer.Colorize(ctx, image)
	if err != nil {
		t.metrics.ObserveColorization(metrics.PathPersistent, metrics.OutcomeFailure, time.Since(start))
		logger.Warn("Colorization failed",
			slog.String("kind", colorize.KindOf(err).String()),
			slog.String("error", errorDetail(err)),
		)
		return t.finishFailed(ctx, req.ID, colorize.UserMessage(err))
	}
	t.metrics.ObserveColorization(metrics.PathPersistent, metrics.OutcomeSuccess, time.Since(start))

	completion, err := t.storeColorized(ctx, req, colorized)
	if err != nil {
		logger.Error("Failed to store colorized image", slog.String("error", err.Error()))
		return t.finishFailed(ctx, req.ID, storageFailedMessage)
	}

	err = t.exec.Execute(ctx, "complete_request", func(ctx context.Context) error {
		return t.repo.MarkComplete(ctx, req.ID, completion)
	})
	if errors.Is(err, domain.ErrRequestFinalized) {
		logger.Warn("Request finalized concurrently, completion dropped")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("Colorize request complete", slog.String("colorized_url", completion.ColorizedURL))
	t.recordEvent(ctx, req, job.Platform)
	return nil
}

func (t *Tracker) storeColorized(ctx context.Context, req *domain.ColorizeRequest, data []byte) (domain.Completion, error) {
	if err := t.exec.Execute(ctx, "ensure_buckets", t.provisioner.Ensure); err != nil {
		return domain.Completion{}, err
	}

	path := req.OriginalPath
	err := t.exec.Execute(ctx, "upload_colorized", func(ctx context.Context) error {
		return t.blobs.Upload(ctx, t.buckets.Colorized, path, data, "image/png")
	})
	if err != nil {
		return domain.Completion{}, err
	}

	return domain.Completion{
		OriginalURL:   t.blobs.PublicURL(t.buckets.Original, req.OriginalPath),
		ColorizedPath: path,
		ColorizedURL:  t.blobs.PublicURL(t.buckets.Colorized, path),
		CompletedAt:   t.now(),
	}, nil
}

// finishFailed writes the failed state; a concurrent finalization is not an error.
func (t *Tracker) finishFailed(ctx context.Context, id, message string) error {
	err := t.markFailed(ctx, id, message)
	if errors.Is(err, domain.ErrRequestFinalized) {
		return nil
	}
	return err
}

func (t *Tracker) markFailed(ctx context.Context, id, message string) error {
	return t.exec.Execute(ctx, "fail_request", func(ctx context.Context) error {
		return t.repo.MarkFailed(ctx, id, message, t.now())
	})
}

func (t *Tracker) recordEvent(ctx context.Context, req *domain.ColorizeRequest, platform string) {
	if t.events == nil {
		return
	}
	if platform == "" {
		platform = domain.PlatformUnknown
	}

	err := t.events.Record(ctx, domain.ColorizeEvent{
		UserID:    optional(req.UserID),
		UserEmail: req.UserEmail,
		Platform:  platform,
		Source:    domain.SourcePersistent,
		CreatedAt: t.now(),
	})
	if err != nil {
		t.logger.Warn("Failed to record analytics event",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()),
		)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func errorDetail(err error) string {
	var cerr *colorize.Error
	if errors.As(err, &cerr) {
		return cerr.Detail()
	}
	return err.Error()
}
