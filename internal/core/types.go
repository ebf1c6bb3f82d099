package core

import (
	"net/http"
	"time"
)

// Request is an inbound HTTP request in the form handed to a script context.
type Request struct {
	ID         string
	Method     string
	URL        string
	Headers    http.Header
	Body       []byte
	RemoteAddr string
}

// Response is the HTTP response produced by the script.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Result wraps the outcome of one script invocation with execution metadata.
// Exactly one of Response and Error is set.
type Result struct {
	Response *Response
	Error    error
	Logs     []LogEntry
	Duration time.Duration
	WorkerID string
}

// LogEntry is a single console.log/warn/error captured from the script.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
