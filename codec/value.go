package codec

import (
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// maxDepth bounds container nesting in encoded arguments, matching encoding/json's cycle
// detection threshold. Replies are bounded separately by jx's decoder depth limit;
// DecodeResponse reports deeper replies as MalformedJSON.
const maxDepth = 1000

var errCycle = errors.New("cyclic structure")

// visit identifies a container already on the write path.
type visit struct {
	ptr uintptr
	len int
}

// valueWriter streams argument values into a jx.Encoder.
//
// The generic shapes (nil, string, bool, numbers, []any, map[string]any, raw JSON) are
// written directly. Anything else goes through encoding/json and is embedded raw, which
// covers structs, typed slices and json.Marshaler implementations.
type valueWriter struct {
	e     *jx.Encoder
	depth int
	seen  map[visit]struct{}
}

func (w *valueWriter) write(v any) error {
	switch x := v.(type) {
	case nil:
		w.e.Null()
	case string:
		w.e.Str(x)
	case bool:
		w.e.Bool(x)
	case int:
		w.e.Int64(int64(x))
	case int8:
		w.e.Int64(int64(x))
	case int16:
		w.e.Int64(int64(x))
	case int32:
		w.e.Int64(int64(x))
	case int64:
		w.e.Int64(x)
	case uint:
		w.e.UInt64(uint64(x))
	case uint8:
		w.e.UInt64(uint64(x))
	case uint16:
		w.e.UInt64(uint64(x))
	case uint32:
		w.e.UInt64(uint64(x))
	case uint64:
		w.e.UInt64(x)
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.Errorf("unsupported float value %v", x)
		}
		w.e.Float32(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Errorf("unsupported float value %v", x)
		}
		w.e.Float64(x)
	case json.Number:
		return w.raw([]byte(x), jx.Number)
	case jx.Raw:
		return w.raw(x, jx.Invalid)
	case json.RawMessage:
		return w.raw(x, jx.Invalid)
	case []any:
		return w.array(x)
	case map[string]any:
		return w.object(x)
	default:
		return w.reflected(v)
	}
	return nil
}

// raw embeds pre-encoded JSON after checking it is a single value of the wanted type.
// jx.Invalid accepts any type.
func (w *valueWriter) raw(b []byte, want jx.Type) error {
	if !jx.Valid(b) {
		return errors.Errorf("invalid raw JSON %q", b)
	}
	if want != jx.Invalid && jx.DecodeBytes(b).Next() != want {
		return errors.Errorf("raw JSON %q is not a %s", b, want)
	}
	w.e.Raw(b)
	return nil
}

func (w *valueWriter) array(items []any) error {
	leave, err := w.enter(reflect.ValueOf(items).Pointer(), len(items))
	if err != nil {
		return err
	}
	defer leave()

	w.e.ArrStart()
	for i, item := range items {
		if err := w.write(item); err != nil {
			return errors.Wrapf(err, "[%d]", i)
		}
	}
	w.e.ArrEnd()
	return nil
}

func (w *valueWriter) object(fields map[string]any) error {
	leave, err := w.enter(uintptr(reflect.ValueOf(fields).UnsafePointer()), len(fields))
	if err != nil {
		return err
	}
	defer leave()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	w.e.ObjStart()
	for _, k := range keys {
		w.e.FieldStart(k)
		if err := w.write(fields[k]); err != nil {
			return errors.Wrapf(err, "[%q]", k)
		}
	}
	w.e.ObjEnd()
	return nil
}

// enter records a container on the current path. Empty containers cannot form a cycle.
func (w *valueWriter) enter(ptr uintptr, n int) (func(), error) {
	w.depth++
	if w.depth > maxDepth {
		w.depth--
		return nil, errors.Errorf("nesting deeper than %d", maxDepth)
	}
	if ptr == 0 || n == 0 {
		return func() { w.depth-- }, nil
	}

	key := visit{ptr: ptr, len: n}
	if _, ok := w.seen[key]; ok {
		w.depth--
		return nil, errCycle
	}
	if w.seen == nil {
		w.seen = make(map[visit]struct{})
	}
	w.seen[key] = struct{}{}
	return func() {
		delete(w.seen, key)
		w.depth--
	}, nil
}

func (w *valueWriter) reflected(v any) error {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return errors.Errorf("unsupported type %T", v)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %T", v)
	}
	w.e.Raw(b)
	return nil
}

// Value converts a raw JSON value into plain Go values: string, bool, nil, int64 for
// integral numbers that fit, float64 for other numbers, []any and map[string]any.
// Numbers outside float64 range are kept as their literal in a json.Number.
func Value(raw jx.Raw) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return readValue(jx.DecodeBytes(raw))
}

func readValue(d *jx.Decoder) (any, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return nil, d.Null()
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return nil, err
		}
		return parseNumber(strings.TrimSpace(string(raw)))
	case jx.Array:
		items := make([]any, 0)
		err := d.Arr(func(d *jx.Decoder) error {
			item, err := readValue(d)
			if err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
		return items, err
	case jx.Object:
		fields := make(map[string]any)
		err := d.Obj(func(d *jx.Decoder, key string) error {
			field, err := readValue(d)
			if err != nil {
				return err
			}
			fields[key] = field
			return nil
		})
		return fields, err
	default:
		return nil, errors.New("unexpected JSON token")
	}
}

func parseNumber(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if errors.Is(err, strconv.ErrRange) {
		return json.Number(s), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "number %s", s)
	}
	return f, nil
}
