package bridge

import (
	"errors"
	"io"
	"net/http"

	"github.com/cryguy/winter/internal/core"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// ServeHTTP implements http.Handler on top of Serve.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, status, err := b.convertRequest(w, r)
	if err != nil {
		b.logger.Debug("rejecting request body", "request_id", req.ID, "status", status, "error", err)
		writeResponse(w, req.ID, errorResponse(status, http.StatusText(status)))
		return
	}
	writeResponse(w, req.ID, b.Serve(r.Context(), req))
}

// convertRequest reads the body and builds the core.Request. On failure
// it returns the status to answer with.
func (b *Bridge) convertRequest(w http.ResponseWriter, r *http.Request) (*core.Request, int, error) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	headers := r.Header.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if r.Host != "" {
		headers.Set("Host", r.Host)
	}

	req := &core.Request{
		ID:         id,
		Method:     r.Method,
		URL:        absoluteURL(r),
		Headers:    headers,
		RemoteAddr: r.RemoteAddr,
	}

	if r.Body == nil || r.Body == http.NoBody {
		return req, 0, nil
	}
	body := r.Body
	if b.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, b.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, http.StatusRequestEntityTooLarge, err
		}
		return req, http.StatusBadRequest, err
	}
	req.Body = data
	return req, 0, nil
}

func absoluteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func writeResponse(w http.ResponseWriter, requestID string, resp *core.Response) {
	h := w.Header()
	for k, vs := range resp.Headers {
		// The transport frames the body itself; it may also be compressed.
		if http.CanonicalHeaderKey(k) == "Content-Length" {
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	if h.Get(RequestIDHeader) == "" {
		h.Set(RequestIDHeader, requestID)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
