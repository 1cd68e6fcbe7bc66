package gateway

import (
	"hemlock/internal/wire"
)

// PayloadType classifies the unwrapped payload.
type PayloadType int

const (
	PayloadEmpty PayloadType = iota
	PayloadObject
	PayloadString
	PayloadArray
)

// Response is one decoded gateway envelope. The wire payload is always a
// 0- or 1-element array at the outer layer; the decoder unwraps that
// immediately, so callers only ever see the classified inner shape.
type Response struct {
	Status int
	Type   PayloadType
	Err    error

	obj  *wire.Object
	str  string
	list []wire.Value
}

// Failed is exactly "a classified error is present".
func (r *Response) Failed() bool { return r.Err != nil }

// DecodeResponse decodes one raw gateway body. It never panics on shape
// surprises; everything unexpected lands in Response.Err.
func DecodeResponse(data []byte, reg *wire.Registry) *Response {
	r := &Response{Status: -1}
	top, err := wire.Decode(data, reg)
	if err != nil {
		r.Err = &DecodeError{Reason: err.Error()}
		return r
	}
	envelope := top.Object()
	if envelope == nil {
		r.Err = &DecodeError{Reason: "envelope is not an object"}
		return r
	}
	status, ok := envelope.GetInt("status")
	if !ok {
		r.Err = MissingField("status")
		return r
	}
	r.Status = status

	if payload := envelope.Get("payload"); payload.Kind() == wire.KindList {
		if err := r.unwrap(payload.ListValue()); err != nil {
			r.Err = err
			return r
		}
	} else if !payload.IsNull() {
		r.Err = UnexpectedPayloadShape()
		return r
	}

	r.classifyFailure()
	return r
}

// unwrap peels the outer 0/1-element array and classifies the element.
func (r *Response) unwrap(outer []wire.Value) error {
	if len(outer) == 0 {
		r.Type = PayloadEmpty
		return nil
	}
	inner := outer[0]
	switch inner.Kind() {
	case wire.KindObject:
		r.Type = PayloadObject
		r.obj = inner.Object()
	case wire.KindString:
		r.Type = PayloadString
		r.str = inner.Str()
	case wire.KindList:
		// [[]] is the server's way of sending an empty object, not an
		// absent payload and not an error.
		if len(inner.ListValue()) == 0 {
			r.Type = PayloadObject
			r.obj = wire.NewObject()
		} else {
			r.Type = PayloadArray
			r.list = inner.ListValue()
		}
	case wire.KindNull:
		r.Type = PayloadEmpty
	default:
		return UnexpectedPayloadShape()
	}
	return nil
}

// classifyFailure turns protocol-level failure signals into classified
// errors: a non-200 envelope status, or a NO_SESSION event riding in an
// otherwise-successful envelope.
func (r *Response) classifyFailure() {
	if ev := r.Event(); ev.Failed() && ev.TextCode == "NO_SESSION" {
		r.Err = ErrSessionExpired
		return
	}
	if r.Status != 200 {
		ge := &GatewayError{Status: r.Status}
		if ev := r.Event(); ev.Failed() {
			ge.TextCode = ev.TextCode
			ge.Message = ev.Desc
		} else if r.Type == PayloadString {
			ge.Message = r.str
		}
		r.Err = ge
	}
}

// Event returns the ilsevent object when the payload is one, else nil.
func (r *Response) Event() *Event {
	if r.Type != PayloadObject {
		return nil
	}
	return EventOf(r.obj)
}

// Object requires a single object payload.
func (r *Response) Object() (*wire.Object, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Type != PayloadObject {
		return nil, &ShapeError{Expected: "object"}
	}
	return r.obj, nil
}

// OptionalObject is Object, except an absent payload is a legitimate
// nothing (e.g. no address on file) rather than an error.
func (r *Response) OptionalObject() (*wire.Object, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	switch r.Type {
	case PayloadEmpty:
		return nil, nil
	case PayloadObject:
		return r.obj, nil
	}
	return nil, &ShapeError{Expected: "object"}
}

// Array requires a list-of-objects payload, each element decoded
// individually.
func (r *Response) Array() ([]*wire.Object, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Type != PayloadArray {
		return nil, &ShapeError{Expected: "array"}
	}
	objs := make([]*wire.Object, 0, len(r.list))
	for _, v := range r.list {
		obj := v.Object()
		if obj == nil {
			return nil, &ShapeError{Expected: "array of objects"}
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// List returns the raw payload list, for methods whose payload is a bare
// list of scalars (bulk ID responses).
func (r *Response) List() ([]wire.Value, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Type != PayloadArray {
		return nil, &ShapeError{Expected: "array"}
	}
	return r.list, nil
}

// String requires a bare string payload (the auth nonce).
func (r *Response) String() (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	if r.Type != PayloadString {
		return "", &ShapeError{Expected: "string"}
	}
	return r.str, nil
}
