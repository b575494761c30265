package colorize

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpegSOI      = []byte{0xFF, 0xD8}
)

// Payload is inline data returned by the model: either a byte sequence or
// text, depending on model version and transport.
type Payload struct {
	bytes  []byte
	text   string
	isText bool
}

// BytesPayload wraps a byte payload.
func BytesPayload(b []byte) *Payload {
	return &Payload{bytes: b}
}

// TextPayload wraps a textual payload.
func TextPayload(s string) *Payload {
	return &Payload{text: s, isText: true}
}

// Empty reports whether the payload carries no data.
func (p *Payload) Empty() bool {
	if p == nil {
		return true
	}
	if p.isText {
		return strings.TrimSpace(p.text) == ""
	}
	return len(p.bytes) == 0
}

// Encoding is the representation of a payload resolved by inspection.
type Encoding int

const (
	EncodingRawPNG Encoding = iota
	EncodingRawJPEG
	EncodingBase64Bytes
	EncodingBase64Text
	EncodingDataURI
)

func (e Encoding) String() string {
	switch e {
	case EncodingRawPNG:
		return "raw_png"
	case EncodingRawJPEG:
		return "raw_jpeg"
	case EncodingBase64Bytes:
		return "base64_bytes"
	case EncodingBase64Text:
		return "base64_text"
	default:
		return "data_uri"
	}
}

// Classify resolves the payload representation.
func (p *Payload) Classify() Encoding {
	if p.isText {
		if isDataURI(p.text) {
			return EncodingDataURI
		}
		return EncodingBase64Text
	}
	switch {
	case bytes.HasPrefix(p.bytes, pngSignature):
		return EncodingRawPNG
	case bytes.HasPrefix(p.bytes, jpegSOI):
		return EncodingRawJPEG
	default:
		return EncodingBase64Bytes
	}
}

// Decode returns the image bytes carried by the payload.
func (p *Payload) Decode() ([]byte, error) {
	switch p.Classify() {
	case EncodingRawPNG, EncodingRawJPEG:
		return p.bytes, nil
	case EncodingBase64Bytes:
		return decodeBase64(string(p.bytes))
	case EncodingDataURI:
		_, data, _ := strings.Cut(strings.TrimSpace(p.text), ",")
		return decodeBase64(data)
	default:
		return decodeBase64(p.text)
	}
}

func isDataURI(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "data:") && strings.Contains(s, ",")
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, errors.New("empty base64 payload")
	}

	if out, err := base64.StdEncoding.DecodeString(s); err == nil {
		return out, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
