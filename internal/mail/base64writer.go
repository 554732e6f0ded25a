package mail

import (
	"encoding/base64"
	"io"
)

// base64LineWrapper wraps base64-encoded output at 76 characters per line,
// as RFC 2045 requires for base64 body parts.
type base64LineWrapper struct {
	w       io.Writer
	lineLen int
}

func (w *base64LineWrapper) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		remaining := 76 - w.lineLen
		if remaining <= 0 {
			if _, err := w.w.Write([]byte("\r\n")); err != nil {
				return n, err
			}
			w.lineLen = 0
			remaining = 76
		}
		chunk := len(p)
		if chunk > remaining {
			chunk = remaining
		}
		written, err := w.w.Write(p[:chunk])
		n += written
		w.lineLen += written
		if err != nil {
			return n, err
		}
		p = p[chunk:]
	}
	return n, nil
}

func newBase64LineEncoder(w io.Writer) io.WriteCloser {
	wrapped := &base64LineWrapper{w: w}
	return base64.NewEncoder(base64.StdEncoding, wrapped)
}
