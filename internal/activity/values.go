package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"

	"github.com/drblury/activityflow/internal/runtime/jsoncodec"
)

// Kind identifies which member of the Value union is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a JSON value in a payload snapshot. Numbers keep their exact
// literal so a decoded snapshot re-encodes byte for byte.
type Value struct {
	kind Kind
	str  string
	b    bool
	obj  *Values
	list []Value
}

func NullValue() Value            { return Value{kind: KindNull} }
func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func IntValue(n int64) Value      { return Value{kind: KindNumber, str: strconv.FormatInt(n, 10)} }
func ObjectValue(v *Values) Value { return Value{kind: KindObject, obj: v} }
func ListValue(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// FloatValue returns a number value. NaN and infinities have no JSON form and
// become null.
func FloatValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NullValue()
	}
	return Value{kind: KindNumber, str: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NumberValue returns a number value from a JSON number literal.
func NumberValue(literal json.Number) (Value, error) {
	if _, err := strconv.ParseFloat(string(literal), 64); err != nil {
		return Value{}, fmt.Errorf("activity: invalid number literal %q", literal)
	}
	return Value{kind: KindNumber, str: string(literal)}, nil
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) Number() (json.Number, bool) {
	return json.Number(v.str), v.kind == KindNumber
}

func (v Value) Int64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(v.str, 10, 64)
	return n, err == nil
}

func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.str, 64)
	return f, err == nil
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Object() (*Values, bool) {
	return v.obj, v.kind == KindObject
}

func (v Value) List() ([]Value, bool) {
	return v.list, v.kind == KindList
}

// Display renders the value for human-readable descriptions.
func (v Value) Display() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return "null"
	default:
		raw, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		raw, err := jsoncodec.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case KindNumber:
		buf.WriteString(v.str)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindObject:
		if v.obj == nil {
			buf.WriteString("null")
			return nil
		}
		return v.obj.writeJSON(buf)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("activity: unknown value kind %d", v.kind)
	}
	return nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	node, err := sonic.Get(data)
	if err != nil {
		return fmt.Errorf("activity: decode value: %w", err)
	}
	parsed, err := valueFromNode(&node)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Values is an ordered mapping from key to Value. The zero value is empty and
// ready to use.
type Values struct {
	keys    []string
	entries map[string]Value
}

// NewValues returns an empty snapshot.
func NewValues() *Values {
	return &Values{}
}

// Set stores value under key. Overwriting keeps the key's original position.
func (vs *Values) Set(key string, value Value) *Values {
	if vs.entries == nil {
		vs.entries = make(map[string]Value)
	}
	if _, exists := vs.entries[key]; !exists {
		vs.keys = append(vs.keys, key)
	}
	vs.entries[key] = value
	return vs
}

func (vs *Values) Get(key string) (Value, bool) {
	if vs == nil {
		return Value{}, false
	}
	v, ok := vs.entries[key]
	return v, ok
}

func (vs *Values) Delete(key string) {
	if vs == nil {
		return
	}
	if _, ok := vs.entries[key]; !ok {
		return
	}
	delete(vs.entries, key)
	for i, k := range vs.keys {
		if k == key {
			vs.keys = append(vs.keys[:i], vs.keys[i+1:]...)
			break
		}
	}
}

func (vs *Values) Len() int {
	if vs == nil {
		return 0
	}
	return len(vs.keys)
}

// Keys returns the keys in insertion order.
func (vs *Values) Keys() []string {
	if vs == nil {
		return nil
	}
	return append([]string(nil), vs.keys...)
}

// Range calls fn for every entry in insertion order until fn returns false.
func (vs *Values) Range(fn func(key string, value Value) bool) {
	if vs == nil {
		return
	}
	for _, k := range vs.keys {
		if !fn(k, vs.entries[k]) {
			return
		}
	}
}

func (vs *Values) Clone() *Values {
	if vs == nil {
		return nil
	}
	out := &Values{}
	vs.Range(func(k string, v Value) bool {
		out.Set(k, v.clone())
		return true
	})
	return out
}

func (v Value) clone() Value {
	switch v.kind {
	case KindObject:
		return ObjectValue(v.obj.Clone())
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.clone()
		}
		return Value{kind: KindList, list: items}
	default:
		return v
	}
}

// ValuesFromMap converts a plain map into a snapshot. Keys are sorted so the
// result is deterministic.
func ValuesFromMap(m map[string]any) (*Values, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := NewValues()
	for _, k := range keys {
		v, err := ValueOf(m[k])
		if err != nil {
			return nil, fmt.Errorf("activity: key %q: %w", k, err)
		}
		out.Set(k, v)
	}
	return out, nil
}

// ValueOf converts common Go values into a Value.
func ValueOf(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case *Values:
		return ObjectValue(t), nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case uint:
		return Value{kind: KindNumber, str: strconv.FormatUint(uint64(t), 10)}, nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint64:
		return Value{kind: KindNumber, str: strconv.FormatUint(t, 10)}, nil
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		return FloatValue(t), nil
	case json.Number:
		return NumberValue(t)
	case map[string]any:
		obj, err := ValuesFromMap(t)
		if err != nil {
			return Value{}, err
		}
		return ObjectValue(obj), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := ValueOf(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ListValue(items...), nil
	case fmt.Stringer:
		return StringValue(t.String()), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func (vs *Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := vs.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (vs *Values) writeJSON(buf *bytes.Buffer) error {
	if vs == nil {
		buf.WriteString("null")
		return nil
	}
	buf.WriteByte('{')
	for i, k := range vs.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsoncodec.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if err := vs.entries[k].writeJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func (vs *Values) UnmarshalJSON(data []byte) error {
	node, err := sonic.Get(data)
	if err != nil {
		return fmt.Errorf("activity: decode values: %w", err)
	}
	if node.Type() != ast.V_OBJECT {
		return fmt.Errorf("activity: values must be a JSON object")
	}
	parsed, err := valuesFromNode(&node)
	if err != nil {
		return err
	}
	*vs = *parsed
	return nil
}

func valuesFromNode(node *ast.Node) (*Values, error) {
	if err := node.LoadAll(); err != nil {
		return nil, fmt.Errorf("activity: decode object: %w", err)
	}
	it, err := node.Properties()
	if err != nil {
		return nil, fmt.Errorf("activity: decode object: %w", err)
	}
	out := NewValues()
	var pair ast.Pair
	for it.Next(&pair) {
		v, err := valueFromNode(&pair.Value)
		if err != nil {
			return nil, fmt.Errorf("activity: key %q: %w", pair.Key, err)
		}
		out.Set(pair.Key, v)
	}
	return out, nil
}

func valueFromNode(node *ast.Node) (Value, error) {
	switch node.Type() {
	case ast.V_NULL:
		return NullValue(), nil
	case ast.V_TRUE:
		return BoolValue(true), nil
	case ast.V_FALSE:
		return BoolValue(false), nil
	case ast.V_STRING:
		s, err := node.String()
		if err != nil {
			return Value{}, err
		}
		return StringValue(s), nil
	case ast.V_NUMBER:
		raw, err := node.Raw()
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindNumber, str: raw}, nil
	case ast.V_OBJECT:
		obj, err := valuesFromNode(node)
		if err != nil {
			return Value{}, err
		}
		return ObjectValue(obj), nil
	case ast.V_ARRAY:
		if err := node.LoadAll(); err != nil {
			return Value{}, err
		}
		it, err := node.Values()
		if err != nil {
			return Value{}, err
		}
		items := []Value{}
		var elem ast.Node
		for it.Next(&elem) {
			v, err := valueFromNode(&elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return ListValue(items...), nil
	default:
		return Value{}, fmt.Errorf("activity: unsupported JSON value type %d", node.Type())
	}
}
