package dispatcher

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/pkg/errors"
)

const (
	MsgEmptyQuery    = "Please enter a question."
	MsgNoResponse    = "No response received"
	MsgConnectFailed = "Failed to connect to server"
	MsgGeneric       = "An error occurred"
)

// Failure describes a query that did not produce an answer. StatusCode and Body
// are only set when the backend responded with a non-2xx status.
type Failure struct {
	Err        error
	StatusCode int
	Body       []byte

	parsed bool
	object map[string]interface{}
}

func NewFailure(err error) *Failure {
	ret := &Failure{Err: err}
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		ret.StatusCode = httpErr.StatusCode
		ret.Body = httpErr.Body
	}
	return ret
}

// BodyObject returns the response body decoded as a JSON object, or nil.
func (f *Failure) BodyObject() map[string]interface{} {
	if !f.parsed {
		f.parsed = true
		var m map[string]interface{}
		if len(f.Body) > 0 && json.Unmarshal(f.Body, &m) == nil {
			f.object = m
		}
	}
	return f.object
}

// ErrorExtractor derives a user-facing message from a failure, reporting false
// when it does not apply.
type ErrorExtractor func(f *Failure) (string, bool)

// DefaultExtractors is the precedence used for failed queries: structured
// detail message, plain message, connectivity, generic.
func DefaultExtractors() []ErrorExtractor {
	return []ErrorExtractor{
		DetailMessage,
		PlainMessage,
		Connectivity,
		Generic,
	}
}

// Describe runs the extractors in order and returns the first non-blank message.
func Describe(f *Failure, extractors []ErrorExtractor) string {
	for _, extract := range extractors {
		if msg, ok := extract(f); ok && strings.TrimSpace(msg) != "" {
			return msg
		}
	}
	return MsgGeneric
}

// DetailMessage extracts body.detail.message.
func DetailMessage(f *Failure) (string, bool) {
	body := f.BodyObject()
	if body == nil {
		return "", false
	}
	detail, ok := body["detail"].(map[string]interface{})
	if !ok {
		return "", false
	}
	msg, ok := detail["message"].(string)
	return msg, ok
}

// PlainMessage extracts body.message.
func PlainMessage(f *Failure) (string, bool) {
	body := f.BodyObject()
	if body == nil {
		return "", false
	}
	msg, ok := body["message"].(string)
	return msg, ok
}

func Connectivity(f *Failure) (string, bool) {
	if f.StatusCode != 0 || !IsConnectivityError(f.Err) {
		return "", false
	}
	return MsgConnectFailed, true
}

func Generic(*Failure) (string, bool) {
	return MsgGeneric, true
}

// IsConnectivityError reports whether err means the backend could not be reached
// or did not answer in time. Cancellation by the caller is not a connectivity failure.
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
