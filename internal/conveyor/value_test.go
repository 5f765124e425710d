package conveyor

import (
	"encoding/json"
	"testing"
)

func TestValueConversions(t *testing.T) {
	if got := String("42").Text(); got != "42" {
		t.Errorf("Text() = %q, want %q", got, "42")
	}

	n, err := String("42").Number()
	if err != nil || n != 42 {
		t.Errorf("Number() = %v, %v, want 42, nil", n, err)
	}

	if _, err := String("not a number").Number(); err == nil {
		t.Error("expected error parsing non-numeric string")
	}

	if _, err := Structured(map[string]any{"a": 1}).Number(); err == nil {
		t.Error("expected error converting structured value to number")
	}

	if Null().Bool() {
		t.Error("null should be falsy")
	}
	if !Number(1).Bool() {
		t.Error("non-zero number should be truthy")
	}
	if String("").Bool() {
		t.Error("empty string should be falsy")
	}

	if got := Number(3.5).Text(); got != "3.5" {
		t.Errorf("Text() = %q, want %q", got, "3.5")
	}
}

func TestValueJSONRoundTrip(t *testing.T) {
	vars := Variables{
		"flag":  Bool(true),
		"count": Number(3),
		"name":  String("elephant"),
		"doc":   Structured(map[string]any{"k": "v"}),
		"gone":  Null(),
	}

	data, err := json.Marshal(vars)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Variables
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for k, want := range vars {
		got, ok := back[k]
		if !ok {
			t.Fatalf("missing key %q after round trip", k)
		}
		if got.Kind() != want.Kind() {
			t.Errorf("key %q: kind = %v, want %v", k, got.Kind(), want.Kind())
		}
	}
	if back["count"].Text() != "3" {
		t.Errorf("count = %q, want 3", back["count"].Text())
	}
}

func TestVariablesCloneIsIndependent(t *testing.T) {
	doc := map[string]any{"nested": []any{"a"}}
	vars := Variables{"doc": Structured(doc)}

	cp := vars.Clone()
	doc["nested"] = []any{"mutated"}

	got, ok := cp["doc"].Any().(map[string]any)
	if !ok {
		t.Fatalf("clone lost structured payload: %#v", cp["doc"])
	}
	nested, _ := got["nested"].([]any)
	if len(nested) != 1 || nested[0] != "a" {
		t.Errorf("clone shares memory with original: %#v", nested)
	}
}

func TestVariablesMerge(t *testing.T) {
	var vars Variables
	vars = vars.Merge(Variables{"a": Number(1)})
	vars = vars.Merge(Variables{"a": Number(2), "b": String("x")})

	if n, _ := vars["a"].Number(); n != 2 {
		t.Errorf("a = %v, want 2 (later merge wins)", n)
	}
	if vars["b"].Text() != "x" {
		t.Errorf("b = %q, want x", vars["b"].Text())
	}
	if got := vars.Merge(nil); len(got) != 2 {
		t.Errorf("merging nil changed size: %d", len(got))
	}
}

func TestFromAny(t *testing.T) {
	if FromAny(nil).Kind() != KindNull {
		t.Error("nil should map to null")
	}
	if FromAny(3).Kind() != KindNumber {
		t.Error("int should map to number")
	}
	if FromAny([]any{1}).Kind() != KindStructured {
		t.Error("slice should map to structured")
	}
}
