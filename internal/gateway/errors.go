package gateway

import (
	"errors"
	"fmt"

	"hemlock/internal/wire"
)

// ErrSessionExpired marks a previously-valid auth token the server no
// longer accepts. The request-issuing layer may recover from it exactly
// once per logical operation.
var ErrSessionExpired = errors.New("session expired")

// TransportError is an HTTP/network-level failure. The core does not
// inspect it beyond surfacing it to the caller.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gateway transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a malformed or unrecognized response envelope.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "decode gateway response: " + e.Reason }

// Is compares by reason, so MissingField("status") matches another
// MissingField("status") regardless of instance.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Reason == e.Reason
}

// MissingField reports a required envelope field that was absent.
func MissingField(name string) *DecodeError {
	return &DecodeError{Reason: fmt.Sprintf("missing field %q", name)}
}

// UnexpectedPayloadShape reports a payload that is none of the
// recognized wire shapes (object, string, list).
func UnexpectedPayloadShape() *DecodeError {
	return &DecodeError{Reason: "unexpected payload shape"}
}

// ShapeError reports a payload that decoded fine but is not the shape
// the caller asked for.
type ShapeError struct {
	Expected string
}

func (e *ShapeError) Error() string { return "unexpected response shape: expected " + e.Expected }

func (e *ShapeError) Is(target error) bool {
	t, ok := target.(*ShapeError)
	return ok && t.Expected == e.Expected
}

// GatewayError is the server's own application-level failure, carrying
// whatever human-readable text the server supplied.
type GatewayError struct {
	Status   int
	TextCode string
	Message  string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("gateway error %d", e.Status)
}

// Event is the ilsevent failure object many methods embed in an
// otherwise-successful envelope.
type Event struct {
	ILSEvent int
	TextCode string
	Desc     string
}

// Failed reports whether the event describes a failure. ilsevent 0 is
// the server's success marker.
func (ev *Event) Failed() bool {
	return ev != nil && ev.ILSEvent != 0
}

// EventOf extracts an ilsevent object, or nil when obj is not one.
func EventOf(obj *wire.Object) *Event {
	if obj == nil || !obj.Has("ilsevent") {
		return nil
	}
	code, ok := obj.GetInt("ilsevent")
	if !ok {
		return nil
	}
	return &Event{
		ILSEvent: code,
		TextCode: obj.GetString("textcode"),
		Desc:     obj.GetString("desc"),
	}
}
