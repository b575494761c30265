package colorize

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Part is one element of a model candidate. Inline is nil for parts that
// carry no binary data (text, function calls, ...).
type Part struct {
	MIMEType string
	Inline   *Payload
}

// Candidate is one generated answer.
type Candidate struct {
	Parts []Part
}

// Response is the model output in a transport-independent shape.
type Response struct {
	Candidates []Candidate
}

// Normalize extracts the first usable image from the first candidate and
// returns it as PNG. Parts that fail to decode are skipped. Bytes that were
// decoded but cannot be opened as an image are returned unchanged.
func Normalize(resp *Response) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, newError(KindNoImageReturned, fmt.Errorf("model returned no candidates"))
	}

	for _, part := range resp.Candidates[0].Parts {
		if part.Inline == nil || part.Inline.Empty() {
			continue
		}
		if part.MIMEType != "" && !strings.HasPrefix(part.MIMEType, "image/") {
			continue
		}

		raw, err := part.Inline.Decode()
		if err != nil || len(raw) == 0 {
			continue
		}

		if out, err := toPNG(raw); err == nil {
			return out, nil
		}
		return raw, nil
	}

	return nil, newError(KindNoImageReturned, fmt.Errorf("no inline image in %d candidate parts", len(resp.Candidates[0].Parts)))
}

func toPNG(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
