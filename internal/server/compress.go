package server

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
)

// Compress negotiates brotli or gzip from Accept-Encoding and encodes the
// response body. Responses that already carry a Content-Encoding, bodiless
// statuses and HEAD requests pass through unchanged.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead || r.Header.Get("Accept-Encoding") == "" {
			next.ServeHTTP(w, r)
			return
		}
		cw := &compressWriter{ResponseWriter: w, r: r}
		defer cw.Close()
		next.ServeHTTP(cw, r)
	})
}

type compressWriter struct {
	http.ResponseWriter
	r           *http.Request
	enc         io.WriteCloser
	wroteHeader bool
}

func (cw *compressWriter) WriteHeader(code int) {
	if cw.wroteHeader {
		return
	}
	cw.wroteHeader = true

	h := cw.Header()
	if bodyAllowed(code) && h.Get("Content-Encoding") == "" {
		h.Del("Content-Length")
		cw.enc = brotli.HTTPCompressor(cw.ResponseWriter, cw.r)
	}
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	if !cw.wroteHeader {
		cw.WriteHeader(http.StatusOK)
	}
	if cw.enc == nil {
		return cw.ResponseWriter.Write(p)
	}
	return cw.enc.Write(p)
}

func (cw *compressWriter) Close() error {
	if cw.enc == nil {
		return nil
	}
	return cw.enc.Close()
}

func (cw *compressWriter) Flush() {
	if f, ok := cw.enc.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func bodyAllowed(code int) bool {
	switch {
	case code >= 100 && code < 200:
		return false
	case code == http.StatusNoContent, code == http.StatusNotModified:
		return false
	}
	return true
}
