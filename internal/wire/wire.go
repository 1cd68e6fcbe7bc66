// Package wire decodes OSRF gateway payloads into a loosely-schematized
// value graph. The gateway is inconsistent about field types (numbers
// arrive as strings, booleans as "t"/"f", dates in several layouts), so
// every accessor coerces where it can and returns the zero answer where
// it cannot. Decoding never fails on a shape mismatch; error handling
// stays at the call site.
package wire

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind tags a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

// Value is a tagged union over the JSON types the gateway emits.
// Values are immutable after construction.
type Value struct {
	kind Kind
	b    bool
	// numbers keep their raw decimal text so encoding round-trips exactly
	num  string
	str  string
	list []Value
	obj  *Object
}

func Null() Value            { return Value{kind: KindNull} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Int(i int) Value        { return Value{kind: KindNumber, num: strconv.Itoa(i)} }
func Double(f float64) Value { return Value{kind: KindNumber, num: strconv.FormatFloat(f, 'g', -1, 64)} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func List(vs []Value) Value  { return Value{kind: KindList, list: vs} }

// ObjectValue wraps an Object. A nil object yields a null Value.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Null()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string form: the string itself, or a number's decimal
// text. Everything else yields "".
func (v Value) Str() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	}
	return ""
}

// Int coerces a number or numeric string to an int.
func (v Value) Int() (int, bool) {
	switch v.kind {
	case KindNumber:
		if i, err := strconv.Atoi(v.num); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(v.num, 64); err == nil {
			return int(f), true
		}
	case KindString:
		if i, err := strconv.Atoi(strings.TrimSpace(v.str)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Double coerces a number or numeric string to a float64.
func (v Value) Double() (float64, bool) {
	switch v.kind {
	case KindNumber:
		if f, err := strconv.ParseFloat(v.num, 64); err == nil {
			return f, true
		}
	case KindString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Bool coerces to bool. The gateway transmits booleans as true/false,
// "t"/"f", or 0/1 depending on the service.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindString:
		return v.str == "t" || v.str == "true" || v.str == "1"
	case KindNumber:
		return v.num != "0" && v.num != ""
	}
	return false
}

// Object returns the wrapped object, or nil for any other kind.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// ListValue returns the wrapped list, or nil for any other kind.
func (v Value) ListValue() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

// Gateway date layouts, most common first.
var dateLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Date parses a string value using the layouts the gateway is known to
// emit.
func (v Value) Date() (time.Time, bool) {
	if v.kind != KindString || v.str == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v.str); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Object is a mapping from field name to Value. An explicit wire null is
// stored as a null Value and is distinguishable from an absent field.
type Object struct {
	fields map[string]Value
}

func NewObject() *Object {
	return &Object{fields: map[string]Value{}}
}

func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = map[string]Value{}
	}
	o.fields[key] = v
}

// Get returns the field value, or a null Value when absent.
func (o *Object) Get(key string) Value {
	if o == nil {
		return Null()
	}
	return o.fields[key]
}

// Has reports whether the field is present, including explicit nulls.
func (o *Object) Has(key string) bool {
	if o == nil {
		return false
	}
	_, ok := o.fields[key]
	return ok
}

// Keys returns the field names in sorted order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, 0, len(o.fields))
	for k := range o.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

func (o *Object) GetString(key string) string          { return o.Get(key).Str() }
func (o *Object) GetInt(key string) (int, bool)        { return o.Get(key).Int() }
func (o *Object) GetDouble(key string) (float64, bool) { return o.Get(key).Double() }
func (o *Object) GetBool(key string) bool              { return o.Get(key).Bool() }
func (o *Object) GetDate(key string) (time.Time, bool) { return o.Get(key).Date() }
func (o *Object) GetObject(key string) *Object         { return o.Get(key).Object() }
func (o *Object) GetList(key string) []Value           { return o.Get(key).ListValue() }

// GetIDList normalizes a list whose elements arrive as strings or
// integers depending on the service. Elements that parse as neither are
// dropped; order is preserved for the rest.
func (o *Object) GetIDList(key string) []int {
	return IDList(o.GetList(key))
}

// IDList applies GetIDList's normalization to a bare value list.
func IDList(vs []Value) []int {
	var ids []int
	for _, v := range vs {
		if id, ok := v.Int(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Equal compares by key set and canonical serialization, so field order
// and coercible representations that serialize identically compare equal.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	return bytes.Equal(o.JSON(), other.JSON())
}

// JSON renders the canonical (sorted-key) serialization.
func (o *Object) JSON() []byte {
	return ObjectValue(o).JSON()
}

// JSON renders the canonical serialization of the value.
func (v Value) JSON() []byte {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) []byte {
	switch v.kind {
	case KindBool:
		return strconv.AppendBool(buf, v.b)
	case KindNumber:
		return append(buf, v.num...)
	case KindString:
		quoted, _ := json.Marshal(v.str)
		return append(buf, quoted...)
	case KindList:
		buf = append(buf, '[')
		for i, e := range v.list {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = e.appendJSON(buf)
		}
		return append(buf, ']')
	case KindObject:
		buf = append(buf, '{')
		for i, k := range v.obj.Keys() {
			if i > 0 {
				buf = append(buf, ',')
			}
			quoted, _ := json.Marshal(k)
			buf = append(buf, quoted...)
			buf = append(buf, ':')
			buf = v.obj.fields[k].appendJSON(buf)
		}
		return append(buf, '}')
	}
	return append(buf, "null"...)
}

// MarshalJSON emits the canonical serialization, so decoded payloads can
// be re-encoded (CLI --json output, request arguments).
func (v Value) MarshalJSON() ([]byte, error) { return v.JSON(), nil }

func (o *Object) MarshalJSON() ([]byte, error) { return o.JSON(), nil }

// Decode parses raw JSON into a Value. reg may be nil; when present,
// class-tagged maps ({"__c": ..., "__p": [...]}) are expanded through it.
// Malformed JSON is the only failure; shape surprises inside valid JSON
// never are.
func Decode(data []byte, reg *Registry) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Null(), err
	}
	return FromAny(raw, reg), nil
}

// FromAny converts a generic json.Unmarshal result into a Value.
func FromAny(raw any, reg *Registry) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case json.Number:
		return Value{kind: KindNumber, num: string(t)}
	case float64:
		return Double(t)
	case string:
		return String(t)
	case []any:
		list := make([]Value, 0, len(t))
		for _, e := range t {
			list = append(list, FromAny(e, reg))
		}
		return List(list)
	case map[string]any:
		return decodeMap(t, reg)
	}
	return Null()
}

func decodeMap(m map[string]any, reg *Registry) Value {
	if obj, ok := decodeClassTagged(m, reg); ok {
		return ObjectValue(obj)
	}
	obj := NewObject()
	for k, e := range m {
		obj.Set(k, FromAny(e, reg))
	}
	return ObjectValue(obj)
}

// decodeClassTagged expands the gateway's positional object encoding:
// {"__c": class, "__p": [values...]} zipped against the registered field
// list. Unregistered classes fall through to a plain map decode so the
// raw shape stays inspectable.
func decodeClassTagged(m map[string]any, reg *Registry) (*Object, bool) {
	if reg == nil || len(m) != 2 {
		return nil, false
	}
	class, ok := m["__c"].(string)
	if !ok {
		return nil, false
	}
	payload, ok := m["__p"].([]any)
	if !ok {
		return nil, false
	}
	fields, ok := reg.Fields(class)
	if !ok {
		return nil, false
	}
	obj := NewObject()
	for i, name := range fields {
		if i >= len(payload) {
			break
		}
		obj.Set(name, FromAny(payload[i], reg))
	}
	return obj, true
}
