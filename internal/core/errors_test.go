package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptErrorKinds(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  ScriptErrorKind
		reset bool
	}{
		{"thrown", NewThrown(errors.New("boom")), Thrown, false},
		{"internal", NewInternal("decoding %s", "body"), Internal, true},
		{"timeout", &ScriptError{Kind: Timeout, Message: "interrupted"}, Timeout, true},
		{"wrapped timeout", fmt.Errorf("worker 3: %w", &ScriptError{Kind: Timeout}), Timeout, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsKind(tt.err, tt.kind))
			assert.Equal(t, tt.reset, NeedsReset(tt.err))
		})
	}

	assert.False(t, IsKind(errors.New("plain"), Thrown))
	assert.False(t, NeedsReset(errors.New("plain")))
	assert.False(t, NeedsReset(nil))
}

func TestScriptErrorMessage(t *testing.T) {
	cause := errors.New("ReferenceError: x is not defined")
	err := NewThrown(cause)
	assert.Equal(t, "script thrown: ReferenceError: x is not defined", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := &ScriptError{Kind: Internal, Err: cause}
	assert.Equal(t, "script internal: ReferenceError: x is not defined", bare.Error())

	assert.Equal(t, "unknown", ScriptErrorKind(42).String())
}

func TestStartupAndCompileErrorsUnwrap(t *testing.T) {
	compile := &CompileError{Err: ErrNoHandler}
	startup := &StartupError{Op: "loading file:app.js", Err: compile}

	assert.ErrorIs(t, startup, ErrNoHandler)
	var got *CompileError
	require.ErrorAs(t, startup, &got)
	assert.Equal(t, "startup: loading file:app.js: compiling script: script did not register a fetch handler", startup.Error())
}

func TestLogBuffer(t *testing.T) {
	var b LogBuffer
	b.Add("log", "first")
	b.Add("warn", strings.Repeat("x", MaxLogMessageSize+10))

	entries := b.Take()
	require.Len(t, entries, 2)
	assert.Equal(t, "log", entries[0].Level)
	assert.Equal(t, "first", entries[0].Message)
	assert.False(t, entries[0].Time.IsZero())
	assert.True(t, strings.HasSuffix(entries[1].Message, "...(truncated)"))
	assert.Len(t, entries[1].Message, MaxLogMessageSize+len("...(truncated)"))

	assert.Zero(t, b.Len())
	assert.Nil(t, b.Take())
}

func TestLogBufferCapsEntries(t *testing.T) {
	var b LogBuffer
	for i := 0; i < MaxLogEntries+5; i++ {
		b.Add("log", "line")
	}
	assert.Equal(t, MaxLogEntries, b.Len())
}

func TestJsEscape(t *testing.T) {
	assert.Equal(t, `"a\"b\nc"`, JsEscape("a\"b\nc"))
	assert.Equal(t, `"\u003c/script\u003e"`, JsEscape("</script>"))
}
