package conveyor

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind enumerates the closed set of variable value types.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindStructured
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindStructured:
		return "structured"
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Value is a tagged union carried by workflow variables. Activities of
// unrelated types interoperate through the explicit conversion methods
// rather than open-ended dynamic typing.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	v    any // map[string]any or []any for KindStructured
}

func Null() Value { return Value{kind: KindNull} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Structured(v any) Value { return Value{kind: KindStructured, v: v} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool converts the value to a boolean. Null is false, numbers are true
// when non-zero, strings when non-empty, structured values when non-nil.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindStructured:
		return v.v != nil
	}
	return false
}

// Number converts the value to a float64. Strings are parsed; anything
// unparseable, null, or structured yields an error.
func (v Value) Number() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.n, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", v.s)
		}
		return n, nil
	}
	return 0, fmt.Errorf("cannot convert %s value to number", v.kind)
}

// Text converts the value to its string form. Structured values render
// as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStructured:
		data, err := json.Marshal(v.v)
		if err != nil {
			return ""
		}
		return string(data)
	}
	return ""
}

// Any returns the value as a plain Go value for use in expression
// environments and JSON payloads.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindStructured:
		return v.v
	}
	return nil
}

// FromAny builds a Value from a plain Go value, such as decoded JSON.
// Unrecognized types become their structured form.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case float64:
		return Number(x)
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case string:
		return String(x)
	case map[string]any, []any:
		return Structured(x)
	}
	return Structured(raw)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// Variables maps variable names to values. Input and output of a
// workflow instance flow through this mapping.
type Variables map[string]Value

// Clone returns an independent copy. Structured payloads are copied via
// a JSON round-trip so mutations never leak between rows.
func (vars Variables) Clone() Variables {
	if vars == nil {
		return nil
	}
	out := make(Variables, len(vars))
	for k, v := range vars {
		if v.kind == KindStructured {
			data, err := json.Marshal(v.v)
			if err == nil {
				var cp any
				if json.Unmarshal(data, &cp) == nil {
					out[k] = Structured(cp)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

// Merge writes every entry of in over the receiver, allocating it first
// if needed, and returns the result.
func (vars Variables) Merge(in Variables) Variables {
	if len(in) == 0 {
		return vars
	}
	if vars == nil {
		vars = make(Variables, len(in))
	}
	for k, v := range in {
		vars[k] = v
	}
	return vars
}

// Env returns the variables as a plain map for expression evaluation.
func (vars Variables) Env() map[string]any {
	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = v.Any()
	}
	return env
}
