package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"
)

// BodyLimit caps request payload size. A checkout cart is a few kilobytes;
// anything approaching the limit is either a bug or abuse.
type BodyLimit struct {
	Max int64
}

// Middleware rejects oversized payloads with 413. The declared Content-Length
// is checked first to avoid reading bodies that announce themselves too big.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength != -1 && r.ContentLength > b.Max {
			tooLarge(w)
			return
		}

		body, ok := b.readCapped(w, r)
		if !ok {
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

// readCapped buffers up to Max+1 bytes; one byte over the cap proves the
// body is too big without reading the rest of it.
func (b BodyLimit) readCapped(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	buf, err := io.ReadAll(io.LimitReader(r.Body, b.Max+1))
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	if int64(len(buf)) > b.Max {
		tooLarge(w)
		return nil, false
	}
	_ = r.Body.Close()
	return buf, true
}

func tooLarge(w http.ResponseWriter) {
	http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
}
