package wire

import (
	"testing"
	"time"
)

func mustDecode(t *testing.T, data string, reg *Registry) Value {
	t.Helper()
	v, err := Decode([]byte(data), reg)
	if err != nil {
		t.Fatalf("Decode(%s): %v", data, err)
	}
	return v
}

func TestDecodeScalars(t *testing.T) {
	if v := mustDecode(t, `null`, nil); !v.IsNull() {
		t.Error("expected null")
	}
	if v := mustDecode(t, `true`, nil); !v.Bool() {
		t.Error("expected true")
	}
	if v := mustDecode(t, `"hello"`, nil); v.Str() != "hello" {
		t.Errorf("Str = %q", v.Str())
	}
	if i, ok := mustDecode(t, `42`, nil).Int(); !ok || i != 42 {
		t.Errorf("Int = %d, %v", i, ok)
	}
	if f, ok := mustDecode(t, `3.5`, nil).Double(); !ok || f != 3.5 {
		t.Errorf("Double = %v, %v", f, ok)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"unterminated`), nil); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestNumberRoundTrip(t *testing.T) {
	// Numbers keep their raw decimal text; re-encoding must not drift
	// through float64.
	for _, raw := range []string{`9007199254740993`, `0.1`, `1e10`, `-3`} {
		v := mustDecode(t, raw, nil)
		if got := string(v.JSON()); got != raw {
			t.Errorf("round trip %s -> %s", raw, got)
		}
	}
}

func TestStringCoercions(t *testing.T) {
	v := String("17")
	if i, ok := v.Int(); !ok || i != 17 {
		t.Errorf("Int(%q) = %d, %v", "17", i, ok)
	}
	if f, ok := v.Double(); !ok || f != 17 {
		t.Errorf("Double(%q) = %v, %v", "17", f, ok)
	}
	if _, ok := String("spruce").Int(); ok {
		t.Error("non-numeric string coerced to int")
	}
	if Int(7).Str() != "7" {
		t.Errorf("number Str = %q", Int(7).Str())
	}
	if Bool(true).Str() != "" {
		t.Error("bool Str should be empty")
	}
}

func TestBoolCoercions(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Bool(true), true},
		{Bool(false), false},
		{String("t"), true},
		{String("f"), false},
		{String("true"), true},
		{String("1"), true},
		{String(""), false},
		{Int(1), true},
		{Int(0), false},
		{Null(), false},
	}
	for _, c := range cases {
		if got := c.v.Bool(); got != c.want {
			t.Errorf("Bool(%s) = %v, want %v", c.v.JSON(), got, c.want)
		}
	}
}

func TestDateLayouts(t *testing.T) {
	cases := []string{
		"2026-09-12T23:59:59-0400",
		"2026-09-12T23:59:59-04:00",
		"2026-09-12 23:59:59",
		"2026-09-12",
	}
	for _, s := range cases {
		d, ok := String(s).Date()
		if !ok {
			t.Errorf("Date(%q) failed", s)
			continue
		}
		if d.Year() != 2026 || d.Month() != time.September || d.Day() != 12 {
			t.Errorf("Date(%q) = %v", s, d)
		}
	}
	if _, ok := String("next tuesday").Date(); ok {
		t.Error("nonsense date parsed")
	}
	if _, ok := Null().Date(); ok {
		t.Error("null parsed as date")
	}
}

func TestNullVersusAbsent(t *testing.T) {
	obj := mustDecode(t, `{"a": null}`, nil).Object()
	if !obj.Has("a") {
		t.Error("explicit null field reported absent")
	}
	if obj.Has("b") {
		t.Error("absent field reported present")
	}
	if !obj.Get("a").IsNull() || !obj.Get("b").IsNull() {
		t.Error("both lookups should yield null values")
	}
}

func TestNilObjectAccessors(t *testing.T) {
	var obj *Object
	if obj.GetString("x") != "" {
		t.Error("nil object GetString")
	}
	if _, ok := obj.GetInt("x"); ok {
		t.Error("nil object GetInt")
	}
	if obj.Has("x") || obj.Len() != 0 || obj.Keys() != nil {
		t.Error("nil object introspection")
	}
	if obj.GetObject("x") != nil {
		t.Error("nil object GetObject")
	}
}

func TestIDListNormalization(t *testing.T) {
	obj := mustDecode(t, `{"strings": ["101","202"], "ints": [101,202], "mixed": ["101","oak",202]}`, nil).Object()
	check := func(key string, want []int) {
		t.Helper()
		got := obj.GetIDList(key)
		if len(got) != len(want) {
			t.Fatalf("GetIDList(%s) = %v, want %v", key, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("GetIDList(%s) = %v, want %v", key, got, want)
			}
		}
	}
	check("strings", []int{101, 202})
	check("ints", []int{101, 202})
	check("mixed", []int{101, 202})
}

func TestObjectEqual(t *testing.T) {
	a := mustDecode(t, `{"x": 1, "y": "two"}`, nil).Object()
	b := mustDecode(t, `{"y": "two", "x": 1}`, nil).Object()
	if !a.Equal(b) {
		t.Error("field order should not affect equality")
	}
	c := mustDecode(t, `{"x": 1}`, nil).Object()
	if a.Equal(c) {
		t.Error("different key sets compare equal")
	}
}

func TestCanonicalJSON(t *testing.T) {
	obj := NewObject()
	obj.Set("zebra", Int(1))
	obj.Set("apple", String("a"))
	obj.Set("list", List([]Value{Bool(true), Null()}))
	if got := string(obj.JSON()); got != `{"apple":"a","list":[true,null],"zebra":1}` {
		t.Errorf("JSON = %s", got)
	}
}

func TestClassTaggedDecode(t *testing.T) {
	reg := NewRegistry()
	reg.Register("circ", []string{"id", "due_date", "renewal_remaining"})

	v := mustDecode(t, `{"__c":"circ","__p":[7001,"2026-09-12",2]}`, reg)
	obj := v.Object()
	if obj == nil {
		t.Fatal("expected object")
	}
	if id, _ := obj.GetInt("id"); id != 7001 {
		t.Errorf("id = %d", id)
	}
	if obj.GetString("due_date") != "2026-09-12" {
		t.Errorf("due_date = %q", obj.GetString("due_date"))
	}
	if obj.Has("__c") || obj.Has("__p") {
		t.Error("tag keys leaked into the decoded object")
	}
}

func TestClassTaggedShortPayload(t *testing.T) {
	reg := NewRegistry()
	reg.Register("circ", []string{"id", "due_date", "renewal_remaining"})

	obj := mustDecode(t, `{"__c":"circ","__p":[7001]}`, reg).Object()
	if id, _ := obj.GetInt("id"); id != 7001 {
		t.Errorf("id = %d", id)
	}
	if obj.Has("due_date") {
		t.Error("trailing field present despite short payload")
	}
}

func TestUnknownClassFallsThrough(t *testing.T) {
	reg := NewRegistry()
	obj := mustDecode(t, `{"__c":"mystery","__p":[1,2]}`, reg).Object()
	if obj.GetString("__c") != "mystery" {
		t.Error("raw tag not preserved for unknown class")
	}
	if len(obj.GetList("__p")) != 2 {
		t.Error("raw payload not preserved for unknown class")
	}
}

func TestNestedClassTaggedDecode(t *testing.T) {
	reg := NewRegistry()
	reg.Register("outer", []string{"inner"})
	reg.Register("inner", []string{"name"})

	obj := mustDecode(t, `{"__c":"outer","__p":[{"__c":"inner","__p":["willow"]}]}`, reg).Object()
	if got := obj.GetObject("inner").GetString("name"); got != "willow" {
		t.Errorf("nested name = %q", got)
	}
}
