package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/colorize-be/internal/blob"
	"github.com/cuongbtq/colorize-be/internal/colorize"
	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/durable"
	"github.com/cuongbtq/colorize-be/internal/metrics"
	"github.com/cuongbtq/colorize-be/shared/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[string]domain.ColorizeRequest
	getErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]domain.ColorizeRequest{}}
}

func (r *fakeRepo) Create(_ context.Context, req *domain.ColorizeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[req.ID] = *req
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (*domain.ColorizeRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, domain.ErrRequestNotFound)
	}
	return &rec, nil
}

func (r *fakeRepo) MarkComplete(_ context.Context, id string, c domain.Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != domain.StatusProcessing {
		return domain.ErrRequestFinalized
	}
	rec.Status = domain.StatusComplete
	rec.OriginalURL = c.OriginalURL
	rec.ColorizedPath = &c.ColorizedPath
	rec.ColorizedURL = &c.ColorizedURL
	rec.CompletedAt = &c.CompletedAt
	r.records[id] = rec
	return nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != domain.StatusProcessing {
		return domain.ErrRequestFinalized
	}
	rec.Status = domain.StatusFailed
	rec.ErrorMessage = &message
	rec.CompletedAt = &at
	r.records[id] = rec
	return nil
}

func (r *fakeRepo) snapshot(id string) domain.ColorizeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploadErrs  []error
	uploadCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) EnsureBucket(context.Context, string) error { return nil }

func (s *fakeStore) Upload(_ context.Context, bucket, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadCalls++
	if len(s.uploadErrs) > 0 {
		err := s.uploadErrs[0]
		s.uploadErrs = s.uploadErrs[1:]
		if err != nil {
			return err
		}
	}
	s.objects[bucket+"/"+path] = data
	return nil
}

func (s *fakeStore) Download(_ context.Context, bucket, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+path]
	if !ok {
		return nil, blob.ErrObjectNotFound
	}
	return data, nil
}

func (s *fakeStore) PublicURL(bucket, path string) string {
	return "https://cdn.test/" + bucket + "/" + path
}

type fakeColorizer struct {
	mu    sync.Mutex
	calls int
	input []byte
	err   error
}

func (c *fakeColorizer) Colorize(_ context.Context, data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.input = data
	if c.err != nil {
		return nil, c.err
	}
	return []byte("colorized:" + string(data)), nil
}

type recordingDispatcher struct {
	jobs  []domain.Job
	err   error
	check func(job domain.Job)
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job domain.Job) error {
	if d.check != nil {
		d.check(job)
	}
	d.jobs = append(d.jobs, job)
	return d.err
}

type fakeEvents struct {
	mu     sync.Mutex
	events []domain.ColorizeEvent
}

func (e *fakeEvents) Record(_ context.Context, ev domain.ColorizeEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type fixture struct {
	repo       *fakeRepo
	store      *fakeStore
	colorizer  *fakeColorizer
	dispatcher *recordingDispatcher
	events     *fakeEvents
	tracker    *Tracker
}

func newFixture(t *testing.T, dispatcher Dispatcher) *fixture {
	t.Helper()
	return newFixtureWithMetrics(t, dispatcher, nil)
}

func newFixtureWithMetrics(t *testing.T, dispatcher Dispatcher, m *metrics.Metrics) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newFakeRepo(),
		store:     newFakeStore(),
		colorizer: &fakeColorizer{},
		events:    &fakeEvents{},
	}
	if d, ok := dispatcher.(*recordingDispatcher); ok {
		f.dispatcher = d
	}

	exec := durable.NewExecutor(durable.Options{MaxRetries: 3, BackoffBase: time.Millisecond}, logger.Discard(), m)
	f.tracker = NewTracker(Deps{
		Repo:       f.repo,
		Blobs:      f.store,
		Colorizer:  f.colorizer,
		Executor:   exec,
		Dispatcher: dispatcher,
		Events:     f.events,
		Metrics:    m,
		Logger:     logger.Discard(),
	}, Buckets{Original: "original-images", Colorized: "colorized-images"})
	f.tracker.newID = func() string { return "req-1" }
	return f
}

func TestTracker_SubmitCreatesRecordBeforeDispatch(t *testing.T) {
	d := &recordingDispatcher{}
	f := newFixture(t, d)
	d.check = func(job domain.Job) {
		rec := f.repo.snapshot(job.RequestID)
		assert.Equal(t, domain.StatusProcessing, rec.Status, "record must exist before dispatch")
	}

	req, err := f.tracker.Submit(context.Background(), SubmitInput{
		UserID:    "user-1",
		UserEmail: "a@example.com",
		Platform:  domain.PlatformIOS,
		Image:     []byte("bw"),
	})
	require.NoError(t, err)

	assert.Equal(t, "req-1", req.ID)
	assert.Equal(t, domain.StatusProcessing, req.Status)
	assert.Equal(t, "user-1/req-1.png", req.OriginalPath)
	assert.Equal(t, "https://cdn.test/original-images/user-1/req-1.png", req.OriginalURL)
	require.NotNil(t, req.UserEmail)
	assert.Equal(t, "a@example.com", *req.UserEmail)
	assert.Nil(t, req.CompletedAt)
	assert.Nil(t, req.ColorizedURL)
	assert.Nil(t, req.ErrorMessage)

	assert.Equal(t, []byte("bw"), f.store.objects["original-images/user-1/req-1.png"])
	require.Len(t, d.jobs, 1)
	assert.Equal(t, domain.Job{
		RequestID:    "req-1",
		UserID:       "user-1",
		OriginalPath: "user-1/req-1.png",
		Platform:     domain.PlatformIOS,
		Image:        []byte("bw"),
	}, d.jobs[0])
}

func TestTracker_SubmitRetriesTransientUpload(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	f.store.uploadErrs = []error{errors.New("read: connection reset by peer")}

	_, err := f.tracker.Submit(context.Background(), SubmitInput{UserID: "user-1", Image: []byte("bw")})
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.uploadCalls)
}

func TestTracker_SubmitFailsOnStorageError(t *testing.T) {
	d := &recordingDispatcher{}
	f := newFixture(t, d)
	f.store.uploadErrs = []error{errors.New("status 403: unauthorized")}

	_, err := f.tracker.Submit(context.Background(), SubmitInput{UserID: "user-1", Image: []byte("bw")})
	require.Error(t, err)
	assert.ErrorIs(t, err, durable.ErrStorageOperationFailed)
	assert.Empty(t, d.jobs)
	assert.Empty(t, f.repo.records)
}

func TestTracker_SubmitDispatchFailureMarksFailed(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("channel closed")}
	f := newFixture(t, d)

	_, err := f.tracker.Submit(context.Background(), SubmitInput{UserID: "user-1", Image: []byte("bw")})
	require.Error(t, err)

	rec := f.repo.snapshot("req-1")
	assert.Equal(t, domain.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.NotNil(t, rec.CompletedAt)
}

func submitted(t *testing.T, f *fixture) domain.Job {
	t.Helper()
	_, err := f.tracker.Submit(context.Background(), SubmitInput{UserID: "user-1", Image: []byte("bw")})
	require.NoError(t, err)
	require.Len(t, f.dispatcher.jobs, 1)
	return f.dispatcher.jobs[0]
}

func TestTracker_ProcessCompletes(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	job := submitted(t, f)

	require.NoError(t, f.tracker.Process(context.Background(), job))

	rec := f.repo.snapshot(job.RequestID)
	assert.Equal(t, domain.StatusComplete, rec.Status)
	require.NotNil(t, rec.ColorizedPath)
	assert.Equal(t, rec.OriginalPath, *rec.ColorizedPath)
	require.NotNil(t, rec.ColorizedURL)
	assert.Equal(t, "https://cdn.test/colorized-images/user-1/req-1.png", *rec.ColorizedURL)
	assert.NotNil(t, rec.CompletedAt)
	assert.Nil(t, rec.ErrorMessage)
	assert.Equal(t, []byte("colorized:bw"), f.store.objects["colorized-images/user-1/req-1.png"])

	require.Len(t, f.events.events, 1)
	assert.Equal(t, domain.SourcePersistent, f.events.events[0].Source)
	assert.Equal(t, domain.PlatformUnknown, f.events.events[0].Platform)
}

func TestTracker_ProcessDownloadsOriginalWhenJobHasNoImage(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	job := submitted(t, f)
	job.Image = nil

	require.NoError(t, f.tracker.Process(context.Background(), job))

	assert.Equal(t, []byte("bw"), f.colorizer.input)
	assert.Equal(t, domain.StatusComplete, f.repo.snapshot(job.RequestID).Status)
}

func TestTracker_ProcessMissingOriginalFails(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	job := submitted(t, f)
	job.Image = nil
	delete(f.store.objects, "original-images/user-1/req-1.png")

	require.NoError(t, f.tracker.Process(context.Background(), job))

	rec := f.repo.snapshot(job.RequestID)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, 0, f.colorizer.calls)
}

func TestTracker_ProcessColorizationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid format", colorize.ErrInvalidImageFormat},
		{"no image returned", colorize.ErrNoImageReturned},
		{"timeout", colorize.ErrTimeout},
		{"untyped", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &recordingDispatcher{})
			job := submitted(t, f)
			f.colorizer.err = tt.err

			require.NoError(t, f.tracker.Process(context.Background(), job))

			rec := f.repo.snapshot(job.RequestID)
			assert.Equal(t, domain.StatusFailed, rec.Status)
			require.NotNil(t, rec.ErrorMessage)
			assert.Equal(t, colorize.UserMessage(tt.err), *rec.ErrorMessage)
			assert.NotNil(t, rec.CompletedAt)
			assert.Nil(t, rec.ColorizedURL)
			assert.Empty(t, f.events.events)
		})
	}
}

func TestTracker_ProcessColorizedUploadFailure(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	job := submitted(t, f)
	f.store.uploadErrs = []error{errors.New("status 413: payload too large")}

	require.NoError(t, f.tracker.Process(context.Background(), job))

	rec := f.repo.snapshot(job.RequestID)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Equal(t, storageFailedMessage, *rec.ErrorMessage)
}

func TestTracker_ProcessTerminalRecordIsSkipped(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	job := submitted(t, f)

	require.NoError(t, f.tracker.Process(context.Background(), job))
	before := f.repo.snapshot(job.RequestID)

	require.NoError(t, f.tracker.Process(context.Background(), job))

	assert.Equal(t, 1, f.colorizer.calls)
	assert.Equal(t, before, f.repo.snapshot(job.RequestID))
}

func TestTracker_ProcessUnknownRequest(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})

	err := f.tracker.Process(context.Background(), domain.Job{RequestID: "missing"})
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestTracker_Get(t *testing.T) {
	f := newFixture(t, &recordingDispatcher{})
	job := submitted(t, f)

	rec, err := f.tracker.Get(context.Background(), job.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, rec.Status)

	_, err = f.tracker.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)
}

func TestTracker_GetStoreFailureAccounting(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		getErr       error
		wantErr      error
		wantFailures int
	}{
		{name: "existing record", id: "req-1"},
		{name: "unknown id is not a store failure", id: "nope", wantErr: domain.ErrRequestNotFound},
		{name: "repository error", id: "req-1", getErr: errors.New("permission denied"), wantErr: durable.ErrStorageOperationFailed, wantFailures: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			f := newFixtureWithMetrics(t, &recordingDispatcher{}, metrics.New(reg))
			submitted(t, f)
			f.repo.getErr = tt.getErr

			rec, err := f.tracker.Get(context.Background(), tt.id)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rec)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.id, rec.ID)
			}

			count, err := testutil.GatherAndCount(reg, "store_operation_failures_total")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFailures, count)
		})
	}
}

func TestTracker_InlineDispatchByDefault(t *testing.T) {
	f := newFixture(t, nil)

	req, err := f.tracker.Submit(context.Background(), SubmitInput{UserID: "user-1", Image: []byte("bw")})
	require.NoError(t, err)

	inline, ok := f.tracker.Dispatcher().(*InlineDispatcher)
	require.True(t, ok)
	inline.Wait()

	assert.Equal(t, domain.StatusComplete, f.repo.snapshot(req.ID).Status)
}

func TestTracker_InlineJobOutlivesRequestContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	req, err := f.tracker.Submit(ctx, SubmitInput{UserID: "user-1", Image: []byte("bw")})
	require.NoError(t, err)
	cancel()

	f.tracker.Dispatcher().(*InlineDispatcher).Wait()
	assert.Equal(t, domain.StatusComplete, f.repo.snapshot(req.ID).Status)
}
