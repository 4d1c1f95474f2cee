package cache

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/klauspost/compress/flate"
)

// Compress deflates the text and returns it base64-encoded, for storing
// long payloads when quota pressure is high. Round-trips exactly, including
// empty strings and multi-byte Unicode.
func Compress(text string) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write([]byte(text)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress reverses Compress. Invalid input yields "" rather than an
// error: a corrupt cached blob should degrade to empty, not break the read
// path.
func Decompress(compressed string) string {
	raw, err := base64.StdEncoding.DecodeString(compressed)
	if err != nil {
		return ""
	}

	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()

	text, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return string(text)
}
