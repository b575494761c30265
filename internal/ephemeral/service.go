package ephemeral

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/colorize-be/internal/domain"
	"github.com/cuongbtq/colorize-be/internal/identity"
	"github.com/cuongbtq/colorize-be/internal/metrics"
)

// Colorizer turns image bytes into a colorized PNG.
type Colorizer interface {
	Colorize(ctx context.Context, data []byte) ([]byte, error)
}

// EventRecorder records analytics events.
type EventRecorder interface {
	Record(ctx context.Context, event domain.ColorizeEvent) error
}

// Input is one ephemeral colorization.
type Input struct {
	Image       []byte
	ContentType string
	Caller      identity.Input
}

// Result carries both images in-band as data URIs.
type Result struct {
	OriginalBase64  string
	ColorizedBase64 string
	ExpiresIn       time.Duration
}

// Options configures a Service.
type Options struct {
	ExpiresIn        time.Duration
	AnalyticsTimeout time.Duration
}

// Service colorizes without persisting anything but an anonymous analytics
// event, which is written in the background and never affects the result.
type Service struct {
	colorizer Colorizer
	events    EventRecorder
	opts      Options
	metrics   *metrics.Metrics
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewService(colorizer Colorizer, events EventRecorder, opts Options, m *metrics.Metrics, logger *slog.Logger) *Service {
	if opts.ExpiresIn <= 0 {
		opts.ExpiresIn = 10 * time.Minute
	}
	if opts.AnalyticsTimeout <= 0 {
		opts.AnalyticsTimeout = 10 * time.Second
	}
	return &Service{colorizer: colorizer, events: events, opts: opts, metrics: m, logger: logger}
}

// Colorize runs the model and returns both images. Failures are the
// colorizer's typed errors.
func (s *Service) Colorize(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	colorized, err := s.colorizer.Colorize(ctx, in.Image)
	if err != nil {
		s.metrics.ObserveColorization(metrics.PathEphemeral, metrics.OutcomeFailure, time.Since(start))
		return nil, err
	}
	s.metrics.ObserveColorization(metrics.PathEphemeral, metrics.OutcomeSuccess, time.Since(start))

	caller := identity.Resolve(in.Caller)
	s.recordAsync(ctx, domain.ColorizeEvent{
		UserID:    optional(caller.UserID),
		UserEmail: optional(caller.Email),
		Platform:  caller.Platform,
		Source:    domain.SourceEphemeral,
	})

	return &Result{
		OriginalBase64:  dataURI(mimeOrPNG(in.ContentType), in.Image),
		ColorizedBase64: dataURI("image/png", colorized),
		ExpiresIn:       s.opts.ExpiresIn,
	}, nil
}

// Wait blocks until background analytics writes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) recordAsync(ctx context.Context, event domain.ColorizeEvent) {
	if s.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.AnalyticsTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Analytics recording panicked", slog.Any("panic", r))
			}
		}()

		if err := s.events.Record(ctx, event); err != nil {
			s.logger.Warn("Failed to record analytics event",
				slog.String("platform", event.Platform),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func mimeOrPNG(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(mime, "image/") {
		return "image/png"
	}
	return mime
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
