package colorize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
)

// RestorationPrompt is sent with every image.
const RestorationPrompt = "Colorize and restore the original photograph while keeping its authenticity. Tasks:  " +
	"- Apply subtle, historically accurate colorization with natural skin tones, hair colors, and clothing hues.  " +
	"- Remove blurriness and restore fine details in faces, clothing, and background.  " +
	"- Repair discoloration, fading, stains, and spots while preserving the natural texture and grain.  " +
	"- Avoid oversaturation or artificial enhancements.  " +
	"- Should look like AI generated  " +
	"Goal: Deliver a clean, sharp, and realistic version of the original photograph that feels historically authentic and emotionally true to its time."

// SafetyThreshold is the block level applied to every harm category.
type SafetyThreshold int

const (
	SafetyBlockOnlyHigh SafetyThreshold = iota
	SafetyBlockMediumAndAbove
)

// GenerateRequest is one call to the image model.
type GenerateRequest struct {
	Prompt          string
	Image           []byte
	MIMEType        string
	Temperature     float32
	CandidateCount  int32
	SafetyThreshold SafetyThreshold
}

// Model is a generative image model.
type Model interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Response, error)
}

// Options configures a Colorizer.
type Options struct {
	Prompt       string
	Temperature  float32
	MaxImageEdge int
	Timeout      time.Duration
}

// Colorizer turns a black-and-white photo into a colorized PNG through Model.
type Colorizer struct {
	model  Model
	opts   Options
	logger *slog.Logger
}

// New creates a Colorizer, filling zero options with defaults.
func New(model Model, opts Options, logger *slog.Logger) *Colorizer {
	if opts.Prompt == "" {
		opts.Prompt = RestorationPrompt
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxImageEdge <= 0 {
		opts.MaxImageEdge = 2048
	}
	return &Colorizer{model: model, opts: opts, logger: logger}
}

// Colorize validates and prepares the image, calls the model once and
// normalizes its answer. Failures are *Error values; nothing is retried.
func (c *Colorizer) Colorize(ctx context.Context, data []byte) ([]byte, error) {
	prepared, err := c.Prepare(data)
	if err != nil {
		c.logger.Warn("Rejected input image",
			slog.String("kind", KindOf(err).String()),
			slog.String("error", err.(*Error).Detail()),
		)
		return nil, err
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.model.Generate(ctx, &GenerateRequest{
		Prompt:          c.opts.Prompt,
		Image:           prepared,
		MIMEType:        "image/png",
		Temperature:     c.opts.Temperature,
		CandidateCount:  1,
		SafetyThreshold: SafetyBlockOnlyHigh,
	})
	if err != nil {
		kind := KindColorizationFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		c.logger.Error("Model call failed",
			slog.String("kind", kind.String()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, newError(kind, err)
	}

	out, err := Normalize(resp)
	if err != nil {
		c.logger.Warn("Model returned no usable image",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.(*Error).Detail()),
		)
		return nil, err
	}

	c.logger.Debug("Model call succeeded",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("output_bytes", len(out)),
	)
	return out, nil
}

// Prepare decodes the input, converts unsupported colour models, downscales
// images larger than MaxImageEdge and re-encodes to PNG.
func (c *Colorizer) Prepare(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, newError(KindInvalidImageFormat, err)
		}
		return nil, newError(KindCorruptImage, err)
	}

	img = normalizeColorModel(img)

	b := img.Bounds()
	if b.Dx() > c.opts.MaxImageEdge || b.Dy() > c.opts.MaxImageEdge {
		img = imaging.Fit(img, c.opts.MaxImageEdge, c.opts.MaxImageEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, newError(KindColorizationFailed, fmt.Errorf("encode prepared image: %w", err))
	}
	return buf.Bytes(), nil
}

// normalizeColorModel keeps RGB, RGBA, grayscale and paletted images and
// converts everything else (CMYK, 16-bit, ...) to 8-bit NRGBA.
func normalizeColorModel(img image.Image) image.Image {
	switch img.(type) {
	case *image.Gray, *image.Paletted, *image.RGBA, *image.NRGBA, *image.YCbCr:
		return img
	default:
		return imaging.Clone(img)
	}
}
