// Package memo extracts the human-readable transfer comment from the
// opaque payload the broker attaches to transaction parameters.
package memo

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode turns a base64 payload into the transfer comment. The payload
// is a binary cell, so non-printable bytes are mapped to spaces and the
// text is anchored at "<quantity> Telegram Stars" when that marker is
// present. Decoding is best effort; any failure degrades to an empty
// memo and never fails a purchase.
func (d *Decoder) Decode(payload string, quantity int64) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(padBase64(payload))
	if err != nil {
		d.logger.Debug("memo payload is not valid base64", zap.Error(err))
		return ""
	}

	text := make([]byte, len(raw))
	for i, b := range raw {
		if b >= 32 && b < 127 {
			text[i] = b
		} else {
			text[i] = ' '
		}
	}

	clean := strings.TrimSpace(whitespaceRun.ReplaceAllString(string(text), " "))
	if clean == "" {
		return ""
	}

	marker := fmt.Sprintf("%d Telegram Stars", quantity)
	if idx := strings.Index(clean, marker); idx >= 0 {
		return clean[idx:]
	}

	return clean
}

// padBase64 restores the padding the broker strips from payloads.
func padBase64(s string) string {
	if rem := len(s) % 4; rem != 0 {
		return s + strings.Repeat("=", 4-rem)
	}
	return s
}
